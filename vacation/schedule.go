package vacation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SCHEDULE - Forward-planned vacation entry
// =============================================================================

type ScheduleStatus string

const (
	ScheduleScheduled  ScheduleStatus = "SCHEDULED"
	ScheduleRegistered ScheduleStatus = "REGISTERED"
)

// Schedule reserves ledger days on creation and consumes them on registration.
type Schedule struct {
	ID           string          `json:"id"`
	EmployeeID   string          `json:"employee_id"`
	CreatedBy    string          `json:"created_by"`
	TypeCode     string          `json:"type_code"`
	StartDate    Date            `json:"start_date"`
	EndDate      Date            `json:"end_date"`
	ReturnDate   Date            `json:"return_date"`
	NumberOfDays decimal.Decimal `json:"number_of_days"`
	Comment      string          `json:"comment,omitempty"`
	Status       ScheduleStatus  `json:"status"`

	EditCount    int        `json:"edit_count"`
	LastEditedBy string     `json:"last_edited_by,omitempty"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`
	Registration *Decision  `json:"registration,omitempty"`

	ReservedDays decimal.Decimal `json:"reserved_days"`
	UsedDays     decimal.Decimal `json:"used_days"`

	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (s *Schedule) BalanceYear() int { return s.StartDate.Year() }

func (s *Schedule) illegal(action string) error {
	return &TransitionError{Subject: SubjectSchedule, ID: s.ID, From: string(s.Status), Action: action}
}

// checkEditable returns ErrEditLimitExceeded once registered or at the cap.
func (s *Schedule) checkEditable(maxEdits int) error {
	if s.Status != ScheduleScheduled {
		return &EditLimitError{Subject: SubjectSchedule, ID: s.ID, EditCount: s.EditCount, Max: maxEdits, Reason: "registered"}
	}
	if s.EditCount >= maxEdits {
		return &EditLimitError{Subject: SubjectSchedule, ID: s.ID, EditCount: s.EditCount, Max: maxEdits, Reason: "cap reached"}
	}
	return nil
}

func (s *Schedule) markEdited(actor string, at time.Time) {
	s.EditCount++
	s.LastEditedBy = actor
	s.LastEditedAt = &at
}

func (s *Schedule) register(actor string, at time.Time) error {
	if s.Status != ScheduleScheduled {
		return s.illegal("register")
	}
	s.Registration = &Decision{ActorID: actor, At: at}
	s.Status = ScheduleRegistered
	return nil
}
