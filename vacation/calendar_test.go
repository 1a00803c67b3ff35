package vacation_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/vacation"
)

func d(s string) vacation.Date { return vacation.MustParseDate(s) }

// =============================================================================
// WORKING DAYS
// =============================================================================

func TestCalendar_WorkingDaysBetween_FullWeek(t *testing.T) {
	// GIVEN: no configured holidays
	// WHEN: counting Monday 2025-06-02 through Sunday 2025-06-08
	// THEN: only the five weekdays count
	cal := vacation.NewCalendar(nil)

	assert.True(t, cal.WorkingDaysBetween(d("2025-06-02"), d("2025-06-08")).Equal(decimalInt(5)))
	assert.True(t, cal.WorkingDaysBetween(d("2025-06-07"), d("2025-06-08")).IsZero(), "weekend only")
}

func TestCalendar_WorkingDaysBetween_MatchesWeekdayCount(t *testing.T) {
	// GIVEN: every sub-range of a two-week window
	// THEN: the count equals the number of weekdays in the range
	cal := vacation.NewCalendar(nil)
	base := d("2025-03-03")

	for i := 0; i < 14; i++ {
		for j := i; j < 14; j++ {
			start, end := base.AddDays(i), base.AddDays(j)
			weekdays := int64(0)
			for x := start; !x.After(end); x = x.AddDays(1) {
				if x.Weekday() != time.Saturday && x.Weekday() != time.Sunday {
					weekdays++
				}
			}
			assert.True(t, cal.WorkingDaysBetween(start, end).Equal(decimalInt(weekdays)),
				"range %s..%s", start, end)
		}
	}
}

func TestCalendar_Holidays(t *testing.T) {
	cal := vacation.NewCalendar([]string{"2025-06-04"})

	assert.False(t, cal.IsWorkingDay(d("2025-06-04")))
	assert.True(t, cal.IsWorkingDay(d("2025-06-05")))
	assert.True(t, cal.WorkingDaysBetween(d("2025-06-02"), d("2025-06-06")).Equal(decimalInt(4)))
}

func TestCalendar_StartAfterEnd_IsZero(t *testing.T) {
	cal := vacation.NewCalendar(nil)
	assert.True(t, cal.WorkingDaysBetween(d("2025-06-06"), d("2025-06-02")).IsZero())
	assert.Equal(t, 0, vacation.CalendarDaysBetween(d("2025-06-06"), d("2025-06-02")))
}

// =============================================================================
// RETURN DATE
// =============================================================================

func TestCalendar_NextReturnDate(t *testing.T) {
	cal := vacation.NewCalendar([]string{"2025-06-09"})

	tests := []struct {
		name string
		end  string
		want string
	}{
		{"midweek", "2025-06-03", "2025-06-04"},
		{"friday skips weekend", "2025-05-30", "2025-06-02"},
		{"friday skips weekend and holiday monday", "2025-06-06", "2025-06-10"},
		{"ends on saturday", "2025-06-14", "2025-06-16"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.NextReturnDate(d(tt.end)).String())
		})
	}
}

func TestCalendar_NextReturnDate_AlwaysLaterWorkingDay(t *testing.T) {
	cal := vacation.NewCalendar([]string{"2025-12-25", "2025-12-26", "2026-01-01"})
	end := d("2025-12-01")
	for i := 0; i < 60; i++ {
		got := cal.NextReturnDate(end)
		assert.True(t, got.After(end), "return %s after %s", got, end)
		assert.True(t, cal.IsWorkingDay(got), "return %s is a working day", got)
		end = end.AddDays(1)
	}
}

func TestCalendar_Plan(t *testing.T) {
	cal := vacation.NewCalendar(nil)
	plan := cal.Plan(d("2025-06-02"), d("2025-06-06"))

	assert.True(t, plan.Days.Equal(decimalInt(5)))
	assert.Equal(t, "2025-06-09", plan.ReturnDate.String())
}

func TestOverlaps(t *testing.T) {
	assert.True(t, vacation.Overlaps(d("2025-06-02"), d("2025-06-06"), d("2025-06-06"), d("2025-06-10")))
	assert.True(t, vacation.Overlaps(d("2025-06-02"), d("2025-06-30"), d("2025-06-10"), d("2025-06-12")))
	assert.False(t, vacation.Overlaps(d("2025-06-02"), d("2025-06-05"), d("2025-06-06"), d("2025-06-10")))
}

// =============================================================================
// DATE
// =============================================================================

func TestParseDate_Invalid(t *testing.T) {
	_, err := vacation.ParseDate("2025-13-01")
	assert.ErrorIs(t, err, vacation.ErrInvalidDateRange)
}

func TestDate_JSON(t *testing.T) {
	var out struct {
		Start vacation.Date `json:"start"`
		End   vacation.Date `json:"end"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"start":"2025-06-02","end":""}`), &out))
	assert.Equal(t, "2025-06-02", out.Start.String())
	assert.True(t, out.End.IsZero())

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start":"2025-06-02","end":null}`, string(b))
}

func TestDate_Scan(t *testing.T) {
	var got vacation.Date
	require.NoError(t, got.Scan("2025-06-02T00:00:00Z"))
	assert.Equal(t, "2025-06-02", got.String())

	require.NoError(t, got.Scan(time.Date(2025, time.July, 1, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-07-01", got.String())

	require.NoError(t, got.Scan(nil))
	assert.True(t, got.IsZero())
}
