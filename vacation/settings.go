package vacation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTINGS - Process-wide configuration snapshot
// =============================================================================

// Settings is the active vacation configuration. The engine reads one snapshot
// per command and never re-queries it mid-transition.
type Settings struct {
	ID                   string          `json:"id"`
	NonWorkingDates      []string        `json:"non_working_dates"`
	DefaultHRApproverID  string          `json:"default_hr_approver_id,omitempty"`
	AllowNegativeBalance bool            `json:"allow_negative_balance"`
	MaxScheduleEdits     int             `json:"max_schedule_edits"`
	NotificationLeadDays int             `json:"notification_lead_days"`
	DefaultYearlyDays    decimal.Decimal `json:"default_yearly_days"`
	Active               bool            `json:"active"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// DefaultSettings is used when no active settings row exists.
func DefaultSettings() Settings {
	return Settings{
		ID:                   "default",
		MaxScheduleEdits:     3,
		NotificationLeadDays: 7,
		DefaultYearlyDays:    decimal.NewFromInt(20),
		Active:               true,
	}
}

// Calendar builds the working-day calendar for this snapshot.
func (s Settings) Calendar() *Calendar {
	return NewCalendar(s.NonWorkingDates)
}

// SettingsSource yields the active settings snapshot.
// Implementations return ErrNotFound when nothing is configured.
type SettingsSource interface {
	ActiveSettings(ctx context.Context) (Settings, error)
}

// StaticSettings serves a fixed snapshot.
type StaticSettings Settings

func (s StaticSettings) ActiveSettings(context.Context) (Settings, error) {
	return Settings(s), nil
}

// =============================================================================
// VACATION TYPE
// =============================================================================

type VacationType struct {
	Code               string     `json:"code"`
	Name               string     `json:"name"`
	RequiresApproval   bool       `json:"requires_approval"`
	AffectsBalance     bool       `json:"affects_balance"`
	MaxConsecutiveDays *int       `json:"max_consecutive_days,omitempty"`
	Color              string     `json:"color,omitempty"`
	Active             bool       `json:"active"`
	DeletedAt          *time.Time `json:"deleted_at,omitempty"`
}

// CheckConsecutive validates an inclusive calendar-day span against the type cap.
func (vt VacationType) CheckConsecutive(start, end Date) error {
	if vt.MaxConsecutiveDays == nil {
		return nil
	}
	days := CalendarDaysBetween(start, end)
	if days > *vt.MaxConsecutiveDays {
		return &ConsecutiveDaysError{TypeCode: vt.Code, Max: *vt.MaxConsecutiveDays, Requested: days}
	}
	return nil
}

// =============================================================================
// EMPLOYEE DIRECTORY
// =============================================================================

// Employee is the slice of the HR record the engine needs.
type Employee struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	DepartmentID  string `json:"department_id,omitempty"`
	LineManagerID string `json:"line_manager_id,omitempty"`
	IsHR          bool   `json:"is_hr"`
	Active        bool   `json:"active"`
}

// Directory is the employee lookup owned by another module.
type Directory interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	ListActiveEmployees(ctx context.Context) ([]Employee, error)
}

// =============================================================================
// CLOCK
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

// Today returns the clock's current calendar day.
func Today(c Clock) Date { return DateOf(c.Now()) }
