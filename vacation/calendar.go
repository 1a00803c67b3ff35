package vacation

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// WORKING CALENDAR
// =============================================================================

// Calendar answers working-day questions for one settings snapshot.
// A day is non-working when it falls on a weekend or its "YYYY-MM-DD" form is
// in the configured set.
type Calendar struct {
	nonWorking map[string]struct{}
}

func NewCalendar(nonWorkingDates []string) *Calendar {
	set := make(map[string]struct{}, len(nonWorkingDates))
	for _, d := range nonWorkingDates {
		set[d] = struct{}{}
	}
	return &Calendar{nonWorking: set}
}

func (c *Calendar) IsWorkingDay(d Date) bool {
	if d.IsWeekend() {
		return false
	}
	_, holiday := c.nonWorking[d.String()]
	return !holiday
}

// WorkingDaysBetween counts working days in [start, end]. Zero when start > end.
func (c *Calendar) WorkingDaysBetween(start, end Date) decimal.Decimal {
	if start.After(end) {
		return decimal.Zero
	}
	n := int64(0)
	for d := start; !d.After(end); d = d.AddDays(1) {
		if c.IsWorkingDay(d) {
			n++
		}
	}
	return decimal.NewFromInt(n)
}

// NextReturnDate is the first working day strictly after end.
func (c *Calendar) NextReturnDate(end Date) Date {
	d := end.AddDays(1)
	for !c.IsWorkingDay(d) {
		d = d.AddDays(1)
	}
	return d
}

// Plan is the derived shape of a date range.
type Plan struct {
	Days       decimal.Decimal
	ReturnDate Date
}

func (c *Calendar) Plan(start, end Date) Plan {
	return Plan{
		Days:       c.WorkingDaysBetween(start, end),
		ReturnDate: c.NextReturnDate(end),
	}
}

// CalendarDaysBetween counts calendar days in [start, end], weekends included.
func CalendarDaysBetween(start, end Date) int {
	if start.After(end) {
		return 0
	}
	return start.DaysUntil(end) + 1
}

// Overlaps reports whether [aStart, aEnd] and [bStart, bEnd] share a day.
func Overlaps(aStart, aEnd, bStart, bEnd Date) bool {
	return aStart.BeforeOrEqual(bEnd) && aEnd.AfterOrEqual(bStart)
}
