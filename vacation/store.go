/*
store.go - Persistence port for the vacation engine

PURPOSE:
  Defines the interface between the lifecycle logic and the database.
  Implementations: vacation/store (memory), store/sqlite, store/postgres.

SOFT DELETE:
  Requests and schedules are never hard-deleted. Setting DeletedAt and calling
  Update hides the row: every Get/Lock/List method excludes deleted rows and
  reports ErrNotFound for them. Activities are immutable.

LOCKING:
  Lock* methods are only meaningful inside WithTx. They return the row after
  acquiring whatever per-row serialization the backend offers (SELECT ... FOR
  UPDATE, or a store-wide writer lock). Update* methods additionally compare
  Version and fail with ErrConcurrentModification when the row moved on.

ATOMIC BOUNDARY:
  WithTx runs fn in one transaction. If fn returns an error nothing fn wrote
  is kept: not the status change, not the ledger row, not the activity.

SEE ALSO:
  - engine.go: the only caller of WithTx
*/
package vacation

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE
// =============================================================================

type Store interface {
	ActivityLog

	GetRequest(ctx context.Context, id string) (*Request, error)
	LockRequest(ctx context.Context, id string) (*Request, error)
	CreateRequest(ctx context.Context, r *Request) error
	// UpdateRequest persists r if its Version matches, then increments r.Version.
	UpdateRequest(ctx context.Context, r *Request) error
	ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error)

	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	LockSchedule(ctx context.Context, id string) (*Schedule, error)
	CreateSchedule(ctx context.Context, s *Schedule) error
	UpdateSchedule(ctx context.Context, s *Schedule) error
	ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error)

	GetBalance(ctx context.Context, employeeID string, year int) (*Balance, error)
	// LockBalance returns the (employee, year) row locked for update, creating
	// it with the given yearly allotment when it does not exist yet.
	LockBalance(ctx context.Context, employeeID string, year int, yearly decimal.Decimal) (*Balance, error)
	SaveBalance(ctx context.Context, b *Balance) error

	GetVacationType(ctx context.Context, code string) (*VacationType, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// FILTERS
// =============================================================================

// RequestFilter selects non-deleted requests. Zero-valued fields match everything.
type RequestFilter struct {
	EmployeeIDs []string
	Statuses    []RequestStatus
	// ApproverID matches requests currently waiting on that approver.
	ApproverID string
	// From/To select requests whose range overlaps [From, To].
	From *Date
	To   *Date
	// StartsFrom/StartsTo select requests starting inside the window.
	StartsFrom *Date
	StartsTo   *Date
}

func (f RequestFilter) Matches(r *Request) bool {
	if r.DeletedAt != nil {
		return false
	}
	if len(f.EmployeeIDs) > 0 && !containsString(f.EmployeeIDs, r.EmployeeID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if s == r.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.ApproverID != "" && !r.WaitsOn(f.ApproverID) {
		return false
	}
	if f.From != nil && r.EndDate.Before(*f.From) {
		return false
	}
	if f.To != nil && r.StartDate.After(*f.To) {
		return false
	}
	if f.StartsFrom != nil && r.StartDate.Before(*f.StartsFrom) {
		return false
	}
	if f.StartsTo != nil && r.StartDate.After(*f.StartsTo) {
		return false
	}
	return true
}

// WaitsOn reports whether the request is pending on the given approver.
func (r *Request) WaitsOn(approverID string) bool {
	switch r.Status {
	case StatusPendingLineManager:
		return r.LineManagerID != nil && *r.LineManagerID == approverID
	case StatusPendingHR:
		return r.HRRepresentativeID != nil && *r.HRRepresentativeID == approverID
	}
	return false
}

// ScheduleFilter selects non-deleted schedules.
type ScheduleFilter struct {
	EmployeeIDs []string
	Statuses    []ScheduleStatus
	From        *Date
	To          *Date
}

func (f ScheduleFilter) Matches(s *Schedule) bool {
	if s.DeletedAt != nil {
		return false
	}
	if len(f.EmployeeIDs) > 0 && !containsString(f.EmployeeIDs, s.EmployeeID) {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if st == s.Status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.From != nil && s.EndDate.Before(*f.From) {
		return false
	}
	if f.To != nil && s.StartDate.After(*f.To) {
		return false
	}
	return true
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
