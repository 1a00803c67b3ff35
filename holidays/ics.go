// Package holidays imports public holidays from iCalendar (RFC 5545) files
// into the non-working date list of the vacation settings.
//
// Every VEVENT contributes the days it covers. All-day events use an exclusive
// DTEND; timed events contribute the calendar days between start and end.
// Recurring events are taken at their first occurrence only.
package holidays

import (
	"io"
	"os"
	"sort"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/pkg/errors"
	"github.com/warp/vacation-engine/vacation"
)

// maxEventDays bounds a single event so a malformed DTEND cannot flood the list.
const maxEventDays = 31

// Holiday is one non-working day taken from a calendar feed.
type Holiday struct {
	Date vacation.Date `json:"date"`
	Name string        `json:"name"`
}

// ParseICS reads every event in the calendar and returns one Holiday per
// covered day, ordered by date.
func ParseICS(r io.Reader) ([]Holiday, error) {
	cal, err := ics.ParseCalendar(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse ICS")
	}

	var out []Holiday
	for _, evt := range cal.Events() {
		start, allDay, err := eventTime(evt, ics.ComponentPropertyDtStart)
		if err != nil {
			continue
		}
		name := ""
		if p := evt.GetProperty(ics.ComponentPropertySummary); p != nil {
			name = strings.TrimSpace(p.Value)
		}

		first := vacation.DateOf(start)
		last := first
		if end, _, err := eventTime(evt, ics.ComponentPropertyDtEnd); err == nil {
			if allDay {
				last = vacation.DateOf(end).AddDays(-1)
			} else {
				last = vacation.DateOf(end.Add(-time.Nanosecond))
			}
		}
		if last.Before(first) {
			last = first
		}
		if last.After(first.AddDays(maxEventDays - 1)) {
			last = first.AddDays(maxEventDays - 1)
		}

		for d := first; !d.After(last); d = d.AddDays(1) {
			out = append(out, Holiday{Date: d, Name: name})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// LoadFile parses the ICS file at path.
func LoadFile(path string) ([]Holiday, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return ParseICS(f)
}

// Dates returns the distinct YYYY-MM-DD strings of hs merged with extra,
// sorted ascending.
func Dates(hs []Holiday, extra ...string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(s string) {
		if s == "" || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for _, h := range hs {
		add(h.Date.String())
	}
	for _, s := range extra {
		add(strings.TrimSpace(s))
	}
	sort.Strings(out)
	return out
}

// eventTime reads a DTSTART/DTEND property. allDay reports a VALUE=DATE value.
func eventTime(evt *ics.VEvent, prop ics.ComponentProperty) (t time.Time, allDay bool, err error) {
	p := evt.GetProperty(prop)
	if p == nil {
		return time.Time{}, false, errors.Errorf("missing property %s", prop)
	}
	val := strings.TrimSpace(p.Value)

	if t, err := time.Parse("20060102", val); err == nil {
		return t, true, nil
	}
	if t, err := time.Parse("20060102T150405Z", val); err == nil {
		return t, false, nil
	}

	loc := time.UTC
	for k, v := range p.ICalParameters {
		if strings.EqualFold(k, "TZID") && len(v) > 0 {
			if tz, err := time.LoadLocation(v[0]); err == nil {
				loc = tz
			}
		}
	}
	if t, err := time.ParseInLocation("20060102T150405", val, loc); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, errors.Errorf("unsupported date %q", val)
}
