package vacation_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/vacation"
)

func decimalInt(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func days(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func newBalance(start, yearly, used, scheduled float64) *vacation.Balance {
	return vacation.RestoreBalance("emp-1", 2025, days(start), days(yearly), days(used), days(scheduled), testNow)
}

// =============================================================================
// DERIVED FIELDS
// =============================================================================

func TestBalance_Derived(t *testing.T) {
	b := newBalance(3, 20, 4, 6)

	assert.True(t, b.Total().Equal(days(23)))
	assert.True(t, b.Remaining().Equal(days(13)))
	assert.True(t, b.ShouldBePlanned().Equal(days(14)))

	over := newBalance(0, 5, 0, 8)
	assert.True(t, over.ShouldBePlanned().IsZero(), "should_be_planned floors at zero")
}

func TestBalance_View(t *testing.T) {
	v := newBalance(2, 20, 5, 3).View()

	assert.Equal(t, "emp-1", v.EmployeeID)
	assert.Equal(t, 2025, v.Year)
	assert.True(t, v.TotalBalance.Equal(days(22)))
	assert.True(t, v.Remaining.Equal(days(14)))
	assert.True(t, v.ShouldBePlanned.Equal(days(17)))
}

// =============================================================================
// CAPACITY
// =============================================================================

func TestBalance_Reserve_CapacityChecked(t *testing.T) {
	// GIVEN: 20 days allotted, nothing used
	// WHEN: reserving 25 with negative balance disallowed
	// THEN: InsufficientBalanceError with both amounts, ledger unchanged
	b := newBalance(0, 20, 0, 0)

	err := b.Reserve(days(25), false)

	var ib *vacation.InsufficientBalanceError
	require.ErrorAs(t, err, &ib)
	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)
	assert.True(t, ib.Available.Equal(days(20)))
	assert.True(t, ib.Requested.Equal(days(25)))
	assert.True(t, b.ScheduledDays().IsZero())
}

func TestBalance_Reserve_AllowNegative(t *testing.T) {
	b := newBalance(0, 20, 0, 0)

	require.NoError(t, b.Reserve(days(25), true))
	assert.True(t, b.Remaining().Equal(days(-5)))
}

func TestBalance_ReserveOverride_SkipsCapacity(t *testing.T) {
	b := newBalance(0, 1, 0, 0)
	require.NoError(t, b.ReserveOverride(days(3)))
	assert.True(t, b.ScheduledDays().Equal(days(3)))
}

func TestBalance_NegativeAmountsRejected(t *testing.T) {
	b := newBalance(0, 20, 2, 2)
	neg := days(-1)

	assert.ErrorIs(t, b.Reserve(neg, true), vacation.ErrNegativeDays)
	assert.ErrorIs(t, b.Unreserve(neg), vacation.ErrNegativeDays)
	assert.ErrorIs(t, b.Use(neg), vacation.ErrNegativeDays)
	assert.ErrorIs(t, b.Refund(neg), vacation.ErrNegativeDays)
	assert.ErrorIs(t, b.SetAllotment(neg, days(20)), vacation.ErrNegativeDays)
}

// =============================================================================
// LEDGER PROPERTIES
// =============================================================================

var ledgerAmounts = []float64{0, 0.5, 1, 3, 7.5, 20}

func TestBalance_ReserveUnreserve_RoundTrip(t *testing.T) {
	for _, amount := range ledgerAmounts {
		b := newBalance(0, 20, 1, 2)
		before := b.ScheduledDays()

		require.NoError(t, b.Reserve(days(amount), true))
		require.NoError(t, b.Unreserve(days(amount)))

		assert.True(t, b.ScheduledDays().Equal(before), "amount %v", amount)
	}
}

func TestBalance_UseRefund_RoundTrip(t *testing.T) {
	for _, amount := range ledgerAmounts {
		// scheduled covers the amount, so Use does not clamp
		b := newBalance(0, 20, 1, 25)
		usedBefore, scheduledBefore := b.UsedDays(), b.ScheduledDays()

		require.NoError(t, b.Use(days(amount)))
		require.NoError(t, b.Refund(days(amount)))
		require.NoError(t, b.ReserveOverride(days(amount)))

		assert.True(t, b.UsedDays().Equal(usedBefore), "amount %v", amount)
		assert.True(t, b.ScheduledDays().Equal(scheduledBefore), "amount %v", amount)
	}
}

func TestBalance_NeverNegative(t *testing.T) {
	// GIVEN: an arbitrary sequence of ledger operations where refunds only
	// return previously used days
	// THEN: used and scheduled never drop below zero
	b := newBalance(0, 10, 0, 0)
	used := decimal.Zero
	ops := []struct {
		op     string
		amount float64
	}{
		{"reserve", 4}, {"use", 2}, {"unreserve", 5}, {"use", 3},
		{"refund", 1}, {"unreserve", 1}, {"reserve", 2.5}, {"use", 6},
		{"refund", 4}, {"unreserve", 10},
	}
	for _, step := range ops {
		amount := days(step.amount)
		switch step.op {
		case "reserve":
			require.NoError(t, b.Reserve(amount, true))
		case "unreserve":
			require.NoError(t, b.Unreserve(amount))
		case "use":
			require.NoError(t, b.Use(amount))
			used = used.Add(amount)
		case "refund":
			amount = decimal.Min(amount, used)
			require.NoError(t, b.Refund(amount))
			used = used.Sub(amount)
		}
		assert.False(t, b.UsedDays().IsNegative(), "after %s %v", step.op, step.amount)
		assert.False(t, b.ScheduledDays().IsNegative(), "after %s %v", step.op, step.amount)
	}
}

func TestBalance_Use_ClampsScheduled(t *testing.T) {
	b := newBalance(0, 20, 0, 2)
	require.NoError(t, b.Use(days(5)))

	assert.True(t, b.UsedDays().Equal(days(5)))
	assert.True(t, b.ScheduledDays().IsZero())
}

func TestBalance_SetAllotment(t *testing.T) {
	b := newBalance(0, 20, 4, 0)
	require.NoError(t, b.SetAllotment(days(5), days(25)))

	assert.True(t, b.Total().Equal(days(30)))
	assert.True(t, b.Remaining().Equal(days(26)))
}
