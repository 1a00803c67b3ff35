/*
errors.go - Error kinds raised by the vacation engine

PURPOSE:
  Every failure the engine reports is one of a small set of kinds. Callers
  branch on the kind with errors.Is and never on message text. Structured
  errors carry context and unwrap to their sentinel.

ERROR KINDS:
  ErrInvalidDateRange         start after end, malformed date, past start for IMMEDIATE
  ErrInsufficientBalance      capacity check failed and negative balance is disallowed
  ErrIllegalTransition        operation not permitted from the current status
  ErrEditLimitExceeded        edit beyond the cap or outside the editable window
  ErrConsecutiveDaysExceeded  vacation type cap on consecutive days violated
  ErrNotFound                 unknown request, schedule, employee or vacation type
  ErrConcurrentModification   optimistic version check lost a race (retryable)
  ErrNegativeDays             ledger operation called with a negative amount
  ErrReasonRequired           rejection without a reason

USAGE:
  if errors.Is(err, vacation.ErrInsufficientBalance) {
      var ib *vacation.InsufficientBalanceError
      errors.As(err, &ib)
  }

SEE ALSO:
  - api/handlers.go: maps kinds to HTTP status codes
*/
package vacation

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrInvalidDateRange        = errors.New("invalid date range")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrIllegalTransition       = errors.New("illegal transition")
	ErrEditLimitExceeded       = errors.New("edit limit exceeded")
	ErrConsecutiveDaysExceeded = errors.New("consecutive days exceeded")
	ErrNotFound                = errors.New("not found")
	ErrConcurrentModification  = errors.New("concurrent modification detected")
	ErrNegativeDays            = errors.New("negative day amount")
	ErrReasonRequired          = errors.New("rejection reason required")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	EmployeeID string
	Year       int
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s/%d: available %s, requested %s",
		e.EmployeeID, e.Year, e.Available, e.Requested)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// TransitionError reports an operation attempted from a status that does not allow it.
type TransitionError struct {
	Subject SubjectKind
	ID      string
	From    string
	Action  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition: cannot %s %s %s in status %s", e.Action, e.Subject, e.ID, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

// ConsecutiveDaysError reports a range longer than the vacation type allows.
type ConsecutiveDaysError struct {
	TypeCode  string
	Max       int
	Requested int
}

func (e *ConsecutiveDaysError) Error() string {
	return fmt.Sprintf("vacation type %s allows at most %d consecutive days, got %d", e.TypeCode, e.Max, e.Requested)
}

func (e *ConsecutiveDaysError) Unwrap() error { return ErrConsecutiveDaysExceeded }

// EditLimitError reports an edit outside the editable window.
type EditLimitError struct {
	Subject   SubjectKind
	ID        string
	EditCount int
	Max       int
	Reason    string
}

func (e *EditLimitError) Error() string {
	return fmt.Sprintf("edit limit exceeded for %s %s: %s (%d/%d edits)", e.Subject, e.ID, e.Reason, e.EditCount, e.Max)
}

func (e *EditLimitError) Unwrap() error { return ErrEditLimitExceeded }

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFound builds a NotFoundError. Stores use it so callers see one error shape.
func NotFound(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input or state.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidDateRange) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrEditLimitExceeded) ||
		errors.Is(err, ErrConsecutiveDaysExceeded) ||
		errors.Is(err, ErrNegativeDays) ||
		errors.Is(err, ErrReasonRequired)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
