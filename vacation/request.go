/*
request.go - Vacation request entity and its state machine

STATES:
  DRAFT -> IN_PROGRESS -> PENDING_LINE_MANAGER -> PENDING_HR -> APPROVED
                                    |                 |           |
                      REJECTED_LINE_MANAGER     REJECTED_HR       +-> REGISTERED (SCHEDULED)
                                                                  +-> COMPLETED  (IMMEDIATE)
  CANCELLED is reachable from DRAFT, IN_PROGRESS, both pending states and APPROVED.

EDITABILITY:
  IMMEDIATE  editable only in DRAFT
  SCHEDULED  editable only in DRAFT and while edit_count < max_schedule_edits

The methods here only check legality and record metadata. Ledger and
activity writes are done by the Engine inside the same transaction.

SEE ALSO:
  - engine_request.go: command handlers
  - router.go: approval chain resolution
*/
package vacation

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// =============================================================================
// STATUS & TYPE
// =============================================================================

type RequestStatus string

const (
	StatusDraft               RequestStatus = "DRAFT"
	StatusInProgress          RequestStatus = "IN_PROGRESS"
	StatusPendingLineManager  RequestStatus = "PENDING_LINE_MANAGER"
	StatusPendingHR           RequestStatus = "PENDING_HR"
	StatusApproved            RequestStatus = "APPROVED"
	StatusRejectedLineManager RequestStatus = "REJECTED_LINE_MANAGER"
	StatusRejectedHR          RequestStatus = "REJECTED_HR"
	StatusCancelled           RequestStatus = "CANCELLED"
	StatusRegistered          RequestStatus = "REGISTERED"
	StatusCompleted           RequestStatus = "COMPLETED"
)

// IsPending reports whether the request waits on an approver.
func (s RequestStatus) IsPending() bool {
	return s == StatusInProgress || s == StatusPendingLineManager || s == StatusPendingHR
}

// Cancellable lists every status cancel is legal from.
func (s RequestStatus) Cancellable() bool {
	return s == StatusDraft || s.IsPending() || s == StatusApproved
}

// ActiveStatuses are the statuses the conflict detector looks at.
var ActiveStatuses = []RequestStatus{
	StatusInProgress, StatusPendingLineManager, StatusPendingHR, StatusApproved,
}

type RequestType string

const (
	RequestImmediate RequestType = "IMMEDIATE"
	RequestScheduled RequestType = "SCHEDULED"
)

func (t RequestType) Valid() bool {
	return t == RequestImmediate || t == RequestScheduled
}

// =============================================================================
// DECISION - Who did what when, stored as a JSON column
// =============================================================================

type Decision struct {
	ActorID string    `json:"actor_id"`
	At      time.Time `json:"at"`
	Comment string    `json:"comment,omitempty"`
}

func (d Decision) Value() (driver.Value, error) {
	b, err := json.Marshal(d)
	return string(b), err
}

func (d *Decision) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, d)
	case string:
		return json.Unmarshal([]byte(v), d)
	default:
		return fmt.Errorf("cannot scan %T into Decision", value)
	}
}

// =============================================================================
// REQUEST
// =============================================================================

type Request struct {
	ID                 string          `json:"id"`
	EmployeeID         string          `json:"employee_id"`
	RequesterID        string          `json:"requester_id"`
	TypeCode           string          `json:"type_code"`
	RequestType        RequestType     `json:"request_type"`
	StartDate          Date            `json:"start_date"`
	EndDate            Date            `json:"end_date"`
	ReturnDate         Date            `json:"return_date"`
	NumberOfDays       decimal.Decimal `json:"number_of_days"`
	Comment            string          `json:"comment,omitempty"`
	LineManagerID      *string         `json:"line_manager_id,omitempty"`
	HRRepresentativeID *string         `json:"hr_representative_id,omitempty"`
	Status             RequestStatus   `json:"status"`

	LineManagerDecision *Decision `json:"line_manager_decision,omitempty"`
	HRDecision          *Decision `json:"hr_decision,omitempty"`
	Rejection           *Decision `json:"rejection,omitempty"`
	Cancellation        *Decision `json:"cancellation,omitempty"`
	Registration        *Decision `json:"registration,omitempty"`

	EditCount    int        `json:"edit_count"`
	LastEditedBy string     `json:"last_edited_by,omitempty"`
	LastEditedAt *time.Time `json:"last_edited_at,omitempty"`

	// Days currently held against the ledger by this request.
	ReservedDays decimal.Decimal `json:"reserved_days"`
	UsedDays     decimal.Decimal `json:"used_days"`

	Version   int        `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// BalanceYear is the ledger year the request draws from.
func (r *Request) BalanceYear() int { return r.StartDate.Year() }

func (r *Request) illegal(action string) error {
	return &TransitionError{Subject: SubjectRequest, ID: r.ID, From: string(r.Status), Action: action}
}

func (r *Request) expect(action string, allowed ...RequestStatus) error {
	for _, s := range allowed {
		if r.Status == s {
			return nil
		}
	}
	return r.illegal(action)
}

// applyPlan recomputes the derived date fields.
func (r *Request) applyPlan(p Plan) {
	r.NumberOfDays = p.Days
	r.ReturnDate = p.ReturnDate
}

// Editable reports whether Edit is legal under the given cap.
func (r *Request) Editable(maxScheduleEdits int) bool {
	if r.Status != StatusDraft {
		return false
	}
	if r.RequestType == RequestScheduled {
		return r.EditCount < maxScheduleEdits
	}
	return true
}

func (r *Request) markEdited(actor string, at time.Time) {
	r.EditCount++
	r.LastEditedBy = actor
	r.LastEditedAt = &at
}

// approveLineManager advances to PENDING_HR when HR is routed, else APPROVED.
func (r *Request) approveLineManager(actor, comment string, at time.Time) error {
	if err := r.expect("approve", StatusPendingLineManager); err != nil {
		return err
	}
	r.LineManagerDecision = &Decision{ActorID: actor, At: at, Comment: comment}
	if r.HRRepresentativeID != nil {
		r.Status = StatusPendingHR
	} else {
		r.Status = StatusApproved
	}
	return nil
}

func (r *Request) rejectLineManager(actor, reason string, at time.Time) error {
	if err := r.expect("reject", StatusPendingLineManager); err != nil {
		return err
	}
	if err := requireReason(r.ID, reason); err != nil {
		return err
	}
	r.Rejection = &Decision{ActorID: actor, At: at, Comment: reason}
	r.Status = StatusRejectedLineManager
	return nil
}

func requireReason(id, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return errors.Wrapf(ErrReasonRequired, "reject request %s", id)
	}
	return nil
}

func (r *Request) approveHR(actor, comment string, at time.Time) error {
	if err := r.expect("approve", StatusPendingHR); err != nil {
		return err
	}
	r.HRDecision = &Decision{ActorID: actor, At: at, Comment: comment}
	r.Status = StatusApproved
	return nil
}

func (r *Request) rejectHR(actor, reason string, at time.Time) error {
	if err := r.expect("reject", StatusPendingHR); err != nil {
		return err
	}
	if err := requireReason(r.ID, reason); err != nil {
		return err
	}
	r.Rejection = &Decision{ActorID: actor, At: at, Comment: reason}
	r.Status = StatusRejectedHR
	return nil
}

func (r *Request) register(actor string, at time.Time) error {
	if r.Status != StatusApproved || r.RequestType != RequestScheduled {
		return r.illegal("register")
	}
	r.Registration = &Decision{ActorID: actor, At: at}
	r.Status = StatusRegistered
	return nil
}

func (r *Request) complete(actor string, at time.Time) error {
	if r.Status != StatusApproved || r.RequestType != RequestImmediate {
		return r.illegal("complete")
	}
	r.Registration = &Decision{ActorID: actor, At: at}
	r.Status = StatusCompleted
	return nil
}

func (r *Request) cancel(actor, reason string, at time.Time) error {
	if !r.Status.Cancellable() {
		return r.illegal("cancel")
	}
	r.Cancellation = &Decision{ActorID: actor, At: at, Comment: reason}
	r.Status = StatusCancelled
	return nil
}

// Deletable requests hold no ledger days.
func (r *Request) Deletable() bool {
	switch r.Status {
	case StatusDraft, StatusRejectedLineManager, StatusRejectedHR, StatusCancelled:
		return true
	}
	return false
}
