/*
balance.go - Per-employee, per-year vacation ledger

PURPOSE:
  Tracks allotted vs consumed vs reserved days for one (employee, year) pair.
  The four ledger operations below are the only way the numeric fields change.

FIELDS:
  start_balance   days carried over from previous years
  yearly_balance  this year's allotment
  used_days       days actually taken
  scheduled_days  days reserved by forward-planned items

DERIVED:
  total     = start + yearly
  remaining = total - used - scheduled
  should_be_planned = max(0, yearly - scheduled)

INVARIANT:
  used_days >= 0 and scheduled_days >= 0 after any sequence of operations,
  provided refunds only return days previously used.

OPERATIONS:
  Reserve(d)    scheduled += d          (capacity checked)
  Unreserve(d)  scheduled -= d, floor 0
  Use(d)        used += d, scheduled -= d (floor 0)
  Refund(d)     used -= d

SEE ALSO:
  - engine_request.go, engine_schedule.go: callers
*/
package vacation

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Balance is the ledger row. Fields are unexported so only ledger
// operations can change them.
type Balance struct {
	employeeID    string
	year          int
	startBalance  decimal.Decimal
	yearlyBalance decimal.Decimal
	usedDays      decimal.Decimal
	scheduledDays decimal.Decimal
	updatedAt     time.Time
}

// NewBalance creates an empty ledger row with the given allotment.
func NewBalance(employeeID string, year int, yearly decimal.Decimal) *Balance {
	return &Balance{
		employeeID:    employeeID,
		year:          year,
		yearlyBalance: yearly,
	}
}

// RestoreBalance rebuilds a ledger row from persisted values. Stores only.
func RestoreBalance(employeeID string, year int, start, yearly, used, scheduled decimal.Decimal, updatedAt time.Time) *Balance {
	return &Balance{
		employeeID:    employeeID,
		year:          year,
		startBalance:  start,
		yearlyBalance: yearly,
		usedDays:      used,
		scheduledDays: scheduled,
		updatedAt:     updatedAt,
	}
}

// Accessors
func (b *Balance) EmployeeID() string             { return b.employeeID }
func (b *Balance) Year() int                      { return b.year }
func (b *Balance) StartBalance() decimal.Decimal  { return b.startBalance }
func (b *Balance) YearlyBalance() decimal.Decimal { return b.yearlyBalance }
func (b *Balance) UsedDays() decimal.Decimal      { return b.usedDays }
func (b *Balance) ScheduledDays() decimal.Decimal { return b.scheduledDays }
func (b *Balance) UpdatedAt() time.Time           { return b.updatedAt }

func (b *Balance) Total() decimal.Decimal {
	return b.startBalance.Add(b.yearlyBalance)
}

func (b *Balance) Remaining() decimal.Decimal {
	return b.Total().Sub(b.usedDays).Sub(b.scheduledDays)
}

func (b *Balance) ShouldBePlanned() decimal.Decimal {
	return decimal.Max(decimal.Zero, b.yearlyBalance.Sub(b.scheduledDays))
}

// CanRequest is true when remaining covers days or negative balance is allowed.
func (b *Balance) CanRequest(days decimal.Decimal, allowNegative bool) bool {
	return allowNegative || b.Remaining().GreaterThanOrEqual(days)
}

// CheckCapacity returns an InsufficientBalanceError when CanRequest is false.
func (b *Balance) CheckCapacity(days decimal.Decimal, allowNegative bool) error {
	if b.CanRequest(days, allowNegative) {
		return nil
	}
	return &InsufficientBalanceError{
		EmployeeID: b.employeeID,
		Year:       b.year,
		Available:  b.Remaining(),
		Requested:  days,
	}
}

// =============================================================================
// LEDGER OPERATIONS
// =============================================================================

// Reserve holds days for a planned item after a capacity check.
func (b *Balance) Reserve(days decimal.Decimal, allowNegative bool) error {
	if err := checkDays(days); err != nil {
		return err
	}
	if err := b.CheckCapacity(days, allowNegative); err != nil {
		return err
	}
	b.scheduledDays = b.scheduledDays.Add(days)
	return nil
}

// ReserveOverride holds days without a capacity check (administrative bypass).
func (b *Balance) ReserveOverride(days decimal.Decimal) error {
	if err := checkDays(days); err != nil {
		return err
	}
	b.scheduledDays = b.scheduledDays.Add(days)
	return nil
}

func (b *Balance) Unreserve(days decimal.Decimal) error {
	if err := checkDays(days); err != nil {
		return err
	}
	b.scheduledDays = decimal.Max(decimal.Zero, b.scheduledDays.Sub(days))
	return nil
}

func (b *Balance) Use(days decimal.Decimal) error {
	if err := checkDays(days); err != nil {
		return err
	}
	b.usedDays = b.usedDays.Add(days)
	b.scheduledDays = decimal.Max(decimal.Zero, b.scheduledDays.Sub(days))
	return nil
}

// Refund returns previously used days. Not clamped: callers must only refund
// what they used.
func (b *Balance) Refund(days decimal.Decimal) error {
	if err := checkDays(days); err != nil {
		return err
	}
	b.usedDays = b.usedDays.Sub(days)
	return nil
}

// SetAllotment replaces carried-over and yearly days. Administrative only.
func (b *Balance) SetAllotment(start, yearly decimal.Decimal) error {
	if start.IsNegative() || yearly.IsNegative() {
		return errors.Wrap(ErrNegativeDays, "allotment")
	}
	b.startBalance = start
	b.yearlyBalance = yearly
	return nil
}

func (b *Balance) touch(at time.Time) { b.updatedAt = at }

func checkDays(days decimal.Decimal) error {
	if days.IsNegative() {
		return errors.Wrapf(ErrNegativeDays, "%s", days)
	}
	return nil
}

// BalanceView is the read model of a ledger row.
type BalanceView struct {
	EmployeeID      string          `json:"employee_id"`
	Year            int             `json:"year"`
	StartBalance    decimal.Decimal `json:"start_balance"`
	YearlyBalance   decimal.Decimal `json:"yearly_balance"`
	UsedDays        decimal.Decimal `json:"used_days"`
	ScheduledDays   decimal.Decimal `json:"scheduled_days"`
	TotalBalance    decimal.Decimal `json:"total_balance"`
	Remaining       decimal.Decimal `json:"remaining_balance"`
	ShouldBePlanned decimal.Decimal `json:"should_be_planned"`
}

func (b *Balance) View() BalanceView {
	return BalanceView{
		EmployeeID:      b.employeeID,
		Year:            b.year,
		StartBalance:    b.startBalance,
		YearlyBalance:   b.yearlyBalance,
		UsedDays:        b.usedDays,
		ScheduledDays:   b.scheduledDays,
		TotalBalance:    b.Total(),
		Remaining:       b.Remaining(),
		ShouldBePlanned: b.ShouldBePlanned(),
	}
}
