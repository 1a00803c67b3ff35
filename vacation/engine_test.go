package vacation_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/vacation"
	"github.com/warp/vacation-engine/vacation/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var testNow = time.Date(2025, time.May, 1, 9, 0, 0, 0, time.UTC)

func intp(n int) *int { return &n }

var testTypes = []vacation.VacationType{
	{Code: "ANNUAL", Name: "Annual leave", RequiresApproval: true, AffectsBalance: true, Active: true},
	{Code: "SICK", Name: "Sick leave", Active: true},
	{Code: "SHORT", Name: "Short break", RequiresApproval: true, AffectsBalance: true, MaxConsecutiveDays: intp(3), Active: true},
	{Code: "RETIRED", Name: "Old type", AffectsBalance: true, Active: false},
}

var testEmployees = []vacation.Employee{
	{ID: "emp-1", Name: "Ana", DepartmentID: "eng", LineManagerID: "mgr-1", Active: true},
	{ID: "emp-2", Name: "Ben", DepartmentID: "eng", LineManagerID: "mgr-1", Active: true},
	{ID: "emp-3", Name: "Cleo", DepartmentID: "sales", LineManagerID: "mgr-2", Active: true},
	{ID: "mgr-1", Name: "Dana", DepartmentID: "leads", Active: true},
	{ID: "solo", Name: "Eli", DepartmentID: "ops", Active: true},
	{ID: "hr-1", Name: "Fay", DepartmentID: "people", IsHR: true, Active: true},
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	engine  *vacation.Engine
	mem     *store.Memory
	mu      sync.Mutex
	intents []vacation.Intent
}

func newFixture(t *testing.T, configure ...func(*vacation.Settings)) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := store.NewMemory()

	settings := vacation.DefaultSettings()
	for _, fn := range configure {
		fn(&settings)
	}
	require.NoError(t, mem.SaveSettings(ctx, settings))
	for _, vt := range testTypes {
		require.NoError(t, mem.SaveVacationType(ctx, vt))
	}
	for _, e := range testEmployees {
		require.NoError(t, mem.SaveEmployee(ctx, e))
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	f := &fixture{t: t, ctx: ctx, mem: mem}
	f.engine = vacation.NewEngine(mem, vacation.Options{
		Directory: mem,
		Settings:  mem,
		Clock:     vacation.FixedClock(testNow),
		Sink: vacation.IntentSinkFunc(func(_ context.Context, in []vacation.Intent) {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.intents = append(f.intents, in...)
		}),
		Logger: logger,
	})
	return f
}

func hrApprover(s *vacation.Settings) { s.DefaultHRApproverID = "hr-1" }

func (f *fixture) draft(employee, typeCode string, rt vacation.RequestType, start, end string) *vacation.Request {
	f.t.Helper()
	r, err := f.engine.CreateRequest(f.ctx, vacation.DraftRequest{
		EmployeeID:  employee,
		TypeCode:    typeCode,
		RequestType: rt,
		StartDate:   d(start),
		EndDate:     d(end),
	})
	require.NoError(f.t, err)
	return r
}

func (f *fixture) submitted(employee, typeCode string, rt vacation.RequestType, start, end string) *vacation.Request {
	f.t.Helper()
	r := f.draft(employee, typeCode, rt, start, end)
	r, err := f.engine.Submit(f.ctx, r.ID, employee)
	require.NoError(f.t, err)
	return r
}

func (f *fixture) schedule(employee, start, end string) *vacation.Schedule {
	f.t.Helper()
	s, err := f.engine.CreateSchedule(f.ctx, vacation.DraftSchedule{
		EmployeeID: employee,
		TypeCode:   "ANNUAL",
		StartDate:  d(start),
		EndDate:    d(end),
	})
	require.NoError(f.t, err)
	return s
}

func (f *fixture) balance(employee string, year int) vacation.BalanceView {
	f.t.Helper()
	v, err := f.engine.GetBalance(f.ctx, employee, year)
	require.NoError(f.t, err)
	return v
}

func (f *fixture) activityTypes(subjectID string) []vacation.ActivityType {
	f.t.Helper()
	acts, err := f.engine.ListActivities(f.ctx, subjectID)
	require.NoError(f.t, err)
	out := make([]vacation.ActivityType, 0, len(acts))
	for _, a := range acts {
		out = append(out, a.Type)
	}
	return out
}

func (f *fixture) takeIntents() []vacation.Intent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.intents
	f.intents = nil
	return out
}

func assertDays(t *testing.T, want float64, got decimal.Decimal, msg string) {
	t.Helper()
	assert.True(t, got.Equal(days(want)), "%s: want %v, got %s", msg, want, got)
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestEngine_ImmediateWithoutApprovers(t *testing.T) {
	// GIVEN: an employee with no line manager and no default HR approver
	// WHEN: they submit a 5-working-day IMMEDIATE request
	// THEN: it is APPROVED and the ledger is untouched until it is marked taken
	f := newFixture(t)

	r := f.draft("solo", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-06")
	assertDays(t, 5, r.NumberOfDays, "number_of_days")
	assert.Equal(t, "2025-06-09", r.ReturnDate.String())
	assert.Equal(t, vacation.StatusDraft, r.Status)

	r, err := f.engine.Submit(f.ctx, r.ID, "solo")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, r.Status)
	assertDays(t, 20, f.balance("solo", 2025).Remaining, "remaining after approval")

	intents := f.takeIntents()
	require.Len(t, intents, 1)
	assert.Equal(t, vacation.IntentEmployeeDecision, intents[0].Kind)
	assert.Equal(t, "solo", intents[0].RecipientID)

	r, err = f.engine.Complete(f.ctx, r.ID, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusCompleted, r.Status)
	assertDays(t, 5, r.UsedDays, "request used_days")

	b := f.balance("solo", 2025)
	assertDays(t, 5, b.UsedDays, "used")
	assertDays(t, 0, b.ScheduledDays, "scheduled")
	assertDays(t, 15, b.Remaining, "remaining")

	assert.Equal(t, []vacation.ActivityType{
		vacation.ActivityRequestCreated,
		vacation.ActivityRequestSubmitted,
		vacation.ActivityRequestCompleted,
	}, f.activityTypes(r.ID))
}

func TestEngine_Complete_LeavesOtherReservations(t *testing.T) {
	f := newFixture(t)
	f.schedule("solo", "2025-07-07", "2025-07-09")

	r := f.submitted("solo", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	_, err := f.engine.Complete(f.ctx, r.ID, "hr-1")
	require.NoError(t, err)

	b := f.balance("solo", 2025)
	assertDays(t, 2, b.UsedDays, "used")
	assertDays(t, 3, b.ScheduledDays, "scheduled")
}

func TestEngine_InsufficientBalance_NoStateChange(t *testing.T) {
	// GIVEN: 20 yearly days and negative balance disallowed
	// WHEN: submitting 25 working days
	// THEN: InsufficientBalance; request, ledger and activity log unchanged
	for _, rt := range []vacation.RequestType{vacation.RequestImmediate, vacation.RequestScheduled} {
		t.Run(string(rt), func(t *testing.T) {
			f := newFixture(t)
			r := f.draft("emp-1", "ANNUAL", rt, "2025-06-02", "2025-07-04")
			assertDays(t, 25, r.NumberOfDays, "number_of_days")
			before, err := f.engine.GetRequest(f.ctx, r.ID)
			require.NoError(t, err)

			_, err = f.engine.Submit(f.ctx, r.ID, "emp-1")

			assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)
			assert.True(t, vacation.IsClientError(err))
			after, err := f.engine.GetRequest(f.ctx, r.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, []vacation.ActivityType{vacation.ActivityRequestCreated}, f.activityTypes(r.ID))
			_, err = f.mem.GetBalance(f.ctx, "emp-1", 2025)
			assert.True(t, vacation.IsNotFound(err), "no ledger row persisted")
			assert.Empty(t, f.takeIntents())
		})
	}
}

func TestEngine_CreateAndSubmit(t *testing.T) {
	t.Run("routes in one step", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.engine.CreateAndSubmit(f.ctx, vacation.DraftRequest{
			EmployeeID:  "emp-1",
			TypeCode:    "ANNUAL",
			RequestType: vacation.RequestScheduled,
			StartDate:   d("2025-06-02"),
			EndDate:     d("2025-06-06"),
		})
		require.NoError(t, err)

		assert.Equal(t, vacation.StatusPendingLineManager, r.Status)
		assertDays(t, 5, r.ReservedDays, "reserved on request")
		assert.Equal(t, []vacation.ActivityType{
			vacation.ActivityRequestCreated,
			vacation.ActivityRequestSubmitted,
		}, f.activityTypes(r.ID))
		assert.Len(t, f.takeIntents(), 1)
	})

	t.Run("failed submit stores nothing", func(t *testing.T) {
		// GIVEN: 20 yearly days
		// WHEN: creating and submitting 25 working days at once
		// THEN: InsufficientBalance and no draft left behind
		f := newFixture(t)
		_, err := f.engine.CreateAndSubmit(f.ctx, vacation.DraftRequest{
			EmployeeID: "emp-1",
			TypeCode:   "ANNUAL",
			StartDate:  d("2025-06-02"),
			EndDate:    d("2025-07-04"),
		})

		assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)
		list, err := f.engine.ListRequests(f.ctx, vacation.RequestFilter{EmployeeIDs: []string{"emp-1"}})
		require.NoError(t, err)
		assert.Empty(t, list)
		assert.Empty(t, f.takeIntents())
	})
}

func TestEngine_AllowNegativeBalance(t *testing.T) {
	f := newFixture(t, func(s *vacation.Settings) { s.AllowNegativeBalance = true })

	r := f.submitted("solo", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-07-04")

	assert.Equal(t, vacation.StatusApproved, r.Status)
	assertDays(t, -5, f.balance("solo", 2025).Remaining, "remaining")
}

func TestEngine_ManagerFilesForReport(t *testing.T) {
	// GIVEN: the line manager files for their report
	// WHEN: the request is submitted
	// THEN: the line-manager stage is skipped
	t.Run("with HR", func(t *testing.T) {
		f := newFixture(t, hrApprover)
		r, err := f.engine.CreateRequest(f.ctx, vacation.DraftRequest{
			EmployeeID:  "emp-1",
			RequesterID: "mgr-1",
			TypeCode:    "ANNUAL",
			StartDate:   d("2025-06-02"),
			EndDate:     d("2025-06-03"),
		})
		require.NoError(t, err)

		r, err = f.engine.Submit(f.ctx, r.ID, "mgr-1")
		require.NoError(t, err)

		assert.Equal(t, vacation.StatusPendingHR, r.Status)
		assert.Nil(t, r.LineManagerID)
		require.NotNil(t, r.HRRepresentativeID)
		assert.Equal(t, "hr-1", *r.HRRepresentativeID)

		intents := f.takeIntents()
		require.Len(t, intents, 1)
		assert.Equal(t, vacation.IntentHRPending, intents[0].Kind)
		assert.Equal(t, "hr-1", intents[0].RecipientID)
	})

	t.Run("without HR", func(t *testing.T) {
		f := newFixture(t)
		r, err := f.engine.CreateRequest(f.ctx, vacation.DraftRequest{
			EmployeeID:  "emp-1",
			RequesterID: "mgr-1",
			TypeCode:    "ANNUAL",
			StartDate:   d("2025-06-02"),
			EndDate:     d("2025-06-03"),
		})
		require.NoError(t, err)

		r, err = f.engine.Submit(f.ctx, r.ID, "mgr-1")
		require.NoError(t, err)
		assert.Equal(t, vacation.StatusApproved, r.Status)
	})
}

func TestEngine_ScheduleReserveEditRegister(t *testing.T) {
	// GIVEN: a 3-day schedule
	// WHEN: it is edited to 5 days and registered
	// THEN: the ledger moves +3, +2, then consumes 5
	f := newFixture(t)

	s := f.schedule("emp-1", "2025-06-02", "2025-06-04")
	assertDays(t, 3, s.NumberOfDays, "created days")
	assertDays(t, 3, f.balance("emp-1", 2025).ScheduledDays, "scheduled after create")

	end := d("2025-06-06")
	s, err := f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{EndDate: &end}, "emp-1")
	require.NoError(t, err)
	assertDays(t, 5, s.NumberOfDays, "edited days")
	assert.Equal(t, 1, s.EditCount)
	assertDays(t, 5, f.balance("emp-1", 2025).ScheduledDays, "scheduled after edit")

	acts, err := f.engine.ListActivities(f.ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "2", acts[1].Metadata["delta"])

	s, err = f.engine.RegisterSchedule(f.ctx, s.ID, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.ScheduleRegistered, s.Status)
	assertDays(t, 5, s.UsedDays, "schedule used")
	assertDays(t, 0, s.ReservedDays, "schedule reserved")

	b := f.balance("emp-1", 2025)
	assertDays(t, 5, b.UsedDays, "used")
	assertDays(t, 0, b.ScheduledDays, "scheduled")
	assertDays(t, 15, b.Remaining, "remaining")

	intents := f.takeIntents()
	require.Len(t, intents, 1)
	assert.Equal(t, vacation.IntentEmployeeScheduleRegistered, intents[0].Kind)
	assert.Equal(t, vacation.SubjectSchedule, intents[0].Subject)

	_, err = f.engine.RegisterSchedule(f.ctx, s.ID, "hr-1")
	assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
	_, err = f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{EndDate: &end}, "emp-1")
	assert.ErrorIs(t, err, vacation.ErrEditLimitExceeded)
}

func TestEngine_TeammateConflicts(t *testing.T) {
	// GIVEN: two employees in the same department with overlapping schedules
	// THEN: each sees the other's schedule, an unrelated employee sees none
	f := newFixture(t)
	s1 := f.schedule("emp-1", "2025-06-02", "2025-06-06")
	s2 := f.schedule("emp-2", "2025-06-05", "2025-06-10")

	c, err := f.engine.GetConflicts(f.ctx, "emp-1", s1.StartDate, s1.EndDate)
	require.NoError(t, err)
	require.Len(t, c.Schedules, 1)
	assert.Equal(t, s2.ID, c.Schedules[0].ID)

	c, err = f.engine.GetConflicts(f.ctx, "emp-2", s2.StartDate, s2.EndDate)
	require.NoError(t, err)
	require.Len(t, c.Schedules, 1)
	assert.Equal(t, s1.ID, c.Schedules[0].ID)

	c, err = f.engine.GetConflicts(f.ctx, "emp-3", s1.StartDate, s2.EndDate)
	require.NoError(t, err)
	assert.Zero(t, c.Count())
}

func TestEngine_Conflicts_OnlyActiveRequests(t *testing.T) {
	f := newFixture(t)
	pending := f.submitted("emp-2", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	f.draft("emp-2", "ANNUAL", vacation.RequestImmediate, "2025-06-04", "2025-06-05")
	cancelled := f.submitted("emp-2", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-02")
	_, err := f.engine.Cancel(f.ctx, cancelled.ID, "emp-2")
	require.NoError(t, err)

	c, err := f.engine.GetConflicts(f.ctx, "emp-1", d("2025-06-01"), d("2025-06-30"))
	require.NoError(t, err)

	require.Len(t, c.Requests, 1)
	assert.Equal(t, pending.ID, c.Requests[0].ID)

	_, err = f.engine.GetConflicts(f.ctx, "emp-1", d("2025-06-30"), d("2025-06-01"))
	assert.ErrorIs(t, err, vacation.ErrInvalidDateRange)
}

func TestEngine_Submit_RecordsConflictCount(t *testing.T) {
	f := newFixture(t)
	f.schedule("emp-2", "2025-06-02", "2025-06-06")

	r := f.submitted("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-03", "2025-06-04")

	acts, err := f.engine.ListActivities(f.ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "1", acts[1].Metadata["conflicts"])
}

// =============================================================================
// APPROVAL CHAIN
// =============================================================================

func TestEngine_FullApprovalChain(t *testing.T) {
	// GIVEN: an employee with a line manager and a default HR approver
	// WHEN: a SCHEDULED request goes through both approvals and is registered
	// THEN: days are reserved on submit, each stage notifies the next approver,
	//       and registration consumes the reservation
	f := newFixture(t, hrApprover)

	r := f.submitted("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")
	assert.Equal(t, vacation.StatusPendingLineManager, r.Status)
	assertDays(t, 5, r.ReservedDays, "reserved on request")
	assertDays(t, 5, f.balance("emp-1", 2025).ScheduledDays, "scheduled after submit")

	pending, err := f.engine.ListRequests(f.ctx, vacation.RequestFilter{ApproverID: "mgr-1"})
	require.NoError(t, err)
	require.Len(t, pending, 1)

	r, err = f.engine.ApproveLineManager(f.ctx, r.ID, "mgr-1", "enjoy")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPendingHR, r.Status)
	require.NotNil(t, r.LineManagerDecision)
	assert.Equal(t, "mgr-1", r.LineManagerDecision.ActorID)
	assert.Equal(t, "enjoy", r.LineManagerDecision.Comment)

	r, err = f.engine.ApproveHR(f.ctx, r.ID, "hr-1", "")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, r.Status)

	r, err = f.engine.Register(f.ctx, r.ID, "hr-1")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusRegistered, r.Status)

	b := f.balance("emp-1", 2025)
	assertDays(t, 5, b.UsedDays, "used")
	assertDays(t, 0, b.ScheduledDays, "scheduled")

	var kinds []vacation.IntentKind
	var recipients []string
	for _, in := range f.takeIntents() {
		kinds = append(kinds, in.Kind)
		recipients = append(recipients, in.RecipientID)
	}
	assert.Equal(t, []vacation.IntentKind{
		vacation.IntentLineManagerPending,
		vacation.IntentHRPending,
		vacation.IntentEmployeeDecision,
		vacation.IntentEmployeeScheduleRegistered,
	}, kinds)
	assert.Equal(t, []string{"mgr-1", "hr-1", "emp-1", "emp-1"}, recipients)

	assert.Equal(t, []vacation.ActivityType{
		vacation.ActivityRequestCreated,
		vacation.ActivityRequestSubmitted,
		vacation.ActivityLineManagerApproved,
		vacation.ActivityHRApproved,
		vacation.ActivityRequestRegistered,
	}, f.activityTypes(r.ID))
}

func TestEngine_LineManagerApproval_WithoutHR(t *testing.T) {
	f := newFixture(t)
	r := f.submitted("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	require.Equal(t, vacation.StatusPendingLineManager, r.Status)

	r, err := f.engine.ApproveLineManager(f.ctx, r.ID, "mgr-1", "")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, r.Status)
}

func TestEngine_Rejections_ReleaseReservation(t *testing.T) {
	t.Run("line manager", func(t *testing.T) {
		f := newFixture(t, hrApprover)
		r := f.submitted("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")

		r, err := f.engine.RejectLineManager(f.ctx, r.ID, "mgr-1", "team offsite")
		require.NoError(t, err)

		assert.Equal(t, vacation.StatusRejectedLineManager, r.Status)
		require.NotNil(t, r.Rejection)
		assert.Equal(t, "team offsite", r.Rejection.Comment)
		assertDays(t, 0, r.ReservedDays, "reserved on request")
		assertDays(t, 0, f.balance("emp-1", 2025).ScheduledDays, "scheduled")
	})

	t.Run("HR", func(t *testing.T) {
		f := newFixture(t, hrApprover)
		r := f.submitted("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")
		_, err := f.engine.ApproveLineManager(f.ctx, r.ID, "mgr-1", "")
		require.NoError(t, err)
		f.takeIntents()

		r, err = f.engine.RejectHR(f.ctx, r.ID, "hr-1", "blackout period")
		require.NoError(t, err)

		assert.Equal(t, vacation.StatusRejectedHR, r.Status)
		assertDays(t, 0, f.balance("emp-1", 2025).ScheduledDays, "scheduled")
		intents := f.takeIntents()
		require.Len(t, intents, 1)
		assert.Equal(t, vacation.IntentEmployeeDecision, intents[0].Kind)
		assert.Equal(t, "blackout period", intents[0].Comment)
	})
}

func TestEngine_Rejections_RequireReason(t *testing.T) {
	f := newFixture(t, hrApprover)
	r := f.submitted("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")
	f.takeIntents()

	for _, reason := range []string{"", "   "} {
		_, err := f.engine.RejectLineManager(f.ctx, r.ID, "mgr-1", reason)
		assert.ErrorIs(t, err, vacation.ErrReasonRequired)
		assert.True(t, vacation.IsClientError(err))
	}

	after, err := f.engine.GetRequest(f.ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusPendingLineManager, after.Status)
	assert.Nil(t, after.Rejection)
	assertDays(t, 5, f.balance("emp-1", 2025).ScheduledDays, "scheduled")
	assert.Empty(t, f.takeIntents())

	_, err = f.engine.ApproveLineManager(f.ctx, r.ID, "mgr-1", "")
	require.NoError(t, err)
	_, err = f.engine.RejectHR(f.ctx, r.ID, "hr-1", "")
	assert.ErrorIs(t, err, vacation.ErrReasonRequired)
}

func TestEngine_IllegalTransitions_LeaveEverythingUnchanged(t *testing.T) {
	f := newFixture(t, hrApprover)
	draft := f.draft("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")
	pendingLM := f.submitted("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-07-07", "2025-07-08")
	immediate := f.submitted("solo", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	f.takeIntents()

	tests := []struct {
		name string
		id   string
		call func(id string) error
	}{
		{"approve line manager from draft", draft.ID, func(id string) error {
			_, err := f.engine.ApproveLineManager(f.ctx, id, "mgr-1", "")
			return err
		}},
		{"approve HR from pending line manager", pendingLM.ID, func(id string) error {
			_, err := f.engine.ApproveHR(f.ctx, id, "hr-1", "")
			return err
		}},
		{"reject HR from draft", draft.ID, func(id string) error {
			_, err := f.engine.RejectHR(f.ctx, id, "hr-1", "")
			return err
		}},
		{"submit twice", pendingLM.ID, func(id string) error {
			_, err := f.engine.Submit(f.ctx, id, "emp-1")
			return err
		}},
		{"register pending", pendingLM.ID, func(id string) error {
			_, err := f.engine.Register(f.ctx, id, "hr-1")
			return err
		}},
		{"register immediate", immediate.ID, func(id string) error {
			_, err := f.engine.Register(f.ctx, id, "hr-1")
			return err
		}},
		{"complete draft", draft.ID, func(id string) error {
			_, err := f.engine.Complete(f.ctx, id, "hr-1")
			return err
		}},
		{"delete pending", pendingLM.ID, func(id string) error {
			return f.engine.DeleteRequest(f.ctx, id, "emp-1")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before, err := f.engine.GetRequest(f.ctx, tt.id)
			require.NoError(t, err)
			actsBefore := f.activityTypes(tt.id)
			balBefore := f.balance(before.EmployeeID, 2025)

			err = tt.call(tt.id)

			var te *vacation.TransitionError
			require.ErrorAs(t, err, &te)
			assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
			assert.Equal(t, string(before.Status), te.From)

			after, err := f.engine.GetRequest(f.ctx, tt.id)
			require.NoError(t, err)
			assert.Equal(t, before, after)
			assert.Equal(t, actsBefore, f.activityTypes(tt.id))
			assert.Equal(t, balBefore, f.balance(before.EmployeeID, 2025))
			assert.Empty(t, f.takeIntents())
		})
	}
}

func TestEngine_ConcurrentSubmit_OneWins(t *testing.T) {
	f := newFixture(t)
	r := f.draft("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.engine.Submit(f.ctx, r.ID, "emp-1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
	}
	assert.Equal(t, 1, succeeded)
	assertDays(t, 5, f.balance("emp-1", 2025).ScheduledDays, "reserved exactly once")
}

// =============================================================================
// CANCEL, EDIT, DELETE
// =============================================================================

func TestEngine_Cancel(t *testing.T) {
	f := newFixture(t)
	r := f.submitted("solo", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-06")
	require.Equal(t, vacation.StatusApproved, r.Status)
	assertDays(t, 5, f.balance("solo", 2025).ScheduledDays, "scheduled before cancel")

	r, err := f.engine.Cancel(f.ctx, r.ID, "solo")
	require.NoError(t, err)

	assert.Equal(t, vacation.StatusCancelled, r.Status)
	require.NotNil(t, r.Cancellation)
	assertDays(t, 0, f.balance("solo", 2025).ScheduledDays, "scheduled after cancel")
	acts, err := f.engine.ListActivities(f.ctx, r.ID)
	require.NoError(t, err)
	last := acts[len(acts)-1]
	assert.Equal(t, vacation.ActivityRequestCancelled, last.Type)
	assert.Equal(t, "5", last.Metadata["released_days"])
	assert.Equal(t, string(vacation.StatusApproved), last.Metadata["previous_status"])

	_, err = f.engine.Cancel(f.ctx, r.ID, "solo")
	assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
}

func TestEngine_Cancel_CompletedRejected(t *testing.T) {
	f := newFixture(t)
	r := f.submitted("solo", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	_, err := f.engine.Complete(f.ctx, r.ID, "hr-1")
	require.NoError(t, err)

	_, err = f.engine.Cancel(f.ctx, r.ID, "solo")
	assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
	assertDays(t, 2, f.balance("solo", 2025).UsedDays, "used")
}

func TestEngine_EditRequest(t *testing.T) {
	f := newFixture(t, func(s *vacation.Settings) { s.MaxScheduleEdits = 1 })

	t.Run("immediate draft recomputes days", func(t *testing.T) {
		r := f.draft("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
		end := d("2025-06-05")

		r, err := f.engine.Edit(f.ctx, r.ID, vacation.RequestChanges{EndDate: &end}, "emp-1")
		require.NoError(t, err)
		assertDays(t, 4, r.NumberOfDays, "number_of_days")
		assert.Equal(t, "2025-06-06", r.ReturnDate.String())
		assert.Equal(t, 1, r.EditCount)

		// immediate drafts are not capped
		_, err = f.engine.Edit(f.ctx, r.ID, vacation.RequestChanges{EndDate: &end}, "emp-1")
		assert.NoError(t, err)
	})

	t.Run("scheduled draft hits the cap", func(t *testing.T) {
		r := f.draft("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-06-02", "2025-06-03")
		comment := "moved"

		_, err := f.engine.Edit(f.ctx, r.ID, vacation.RequestChanges{Comment: &comment}, "emp-1")
		require.NoError(t, err)
		_, err = f.engine.Edit(f.ctx, r.ID, vacation.RequestChanges{Comment: &comment}, "emp-1")

		var el *vacation.EditLimitError
		require.ErrorAs(t, err, &el)
		assert.Equal(t, 1, el.EditCount)
		assert.Equal(t, 1, el.Max)
	})

	t.Run("submitted requests are not editable", func(t *testing.T) {
		r := f.submitted("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
		comment := "late change"

		_, err := f.engine.Edit(f.ctx, r.ID, vacation.RequestChanges{Comment: &comment}, "emp-1")
		assert.ErrorIs(t, err, vacation.ErrEditLimitExceeded)
	})
}

func TestEngine_EditSchedule_Cap(t *testing.T) {
	// GIVEN: max_schedule_edits = 2
	// WHEN: a schedule is edited a third time
	// THEN: EditLimitExceeded, nothing changes
	f := newFixture(t, func(s *vacation.Settings) { s.MaxScheduleEdits = 2 })
	s := f.schedule("emp-1", "2025-06-02", "2025-06-04")

	for _, end := range []string{"2025-06-05", "2025-06-03"} {
		e := d(end)
		_, err := f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{EndDate: &e}, "emp-1")
		require.NoError(t, err)
	}
	before, err := f.engine.GetSchedule(f.ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, 2, before.EditCount)
	balBefore := f.balance("emp-1", 2025)
	assertDays(t, 2, balBefore.ScheduledDays, "scheduled after two edits")

	end := d("2025-06-06")
	_, err = f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{EndDate: &end}, "emp-1")

	assert.ErrorIs(t, err, vacation.ErrEditLimitExceeded)
	after, err := f.engine.GetSchedule(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, balBefore, f.balance("emp-1", 2025))
}

func TestEngine_EditSchedule_AcrossYears(t *testing.T) {
	f := newFixture(t)
	s := f.schedule("emp-1", "2025-12-29", "2025-12-31")
	assertDays(t, 3, f.balance("emp-1", 2025).ScheduledDays, "2025 before move")

	start, end := d("2026-01-05"), d("2026-01-07")
	s, err := f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{StartDate: &start, EndDate: &end}, "emp-1")
	require.NoError(t, err)

	assert.Equal(t, 2026, s.BalanceYear())
	assertDays(t, 0, f.balance("emp-1", 2025).ScheduledDays, "2025 after move")
	assertDays(t, 3, f.balance("emp-1", 2026).ScheduledDays, "2026 after move")
}

func TestEngine_EditSchedule_InsufficientBalanceRollsBack(t *testing.T) {
	f := newFixture(t)
	s := f.schedule("emp-1", "2025-06-02", "2025-06-04")
	f.schedule("emp-1", "2025-07-07", "2025-07-25")
	assertDays(t, 18, f.balance("emp-1", 2025).ScheduledDays, "scheduled")

	// 3 -> 6 days needs 3 more, only 2 remain
	end := d("2025-06-09")
	_, err := f.engine.EditSchedule(f.ctx, s.ID, vacation.ScheduleChanges{EndDate: &end}, "emp-1")

	assert.ErrorIs(t, err, vacation.ErrInsufficientBalance)
	assertDays(t, 18, f.balance("emp-1", 2025).ScheduledDays, "scheduled unchanged")
	got, err := f.engine.GetSchedule(f.ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.EditCount)
}

func TestEngine_DeleteRequest(t *testing.T) {
	f := newFixture(t)
	r := f.draft("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")

	require.NoError(t, f.engine.DeleteRequest(f.ctx, r.ID, "emp-1"))

	_, err := f.engine.GetRequest(f.ctx, r.ID)
	assert.True(t, vacation.IsNotFound(err))
	list, err := f.engine.ListRequests(f.ctx, vacation.RequestFilter{EmployeeIDs: []string{"emp-1"}})
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, []vacation.ActivityType{
		vacation.ActivityRequestCreated,
		vacation.ActivityRequestDeleted,
	}, f.activityTypes(r.ID))
}

func TestEngine_ListActivities_UnknownSubject(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.ListActivities(f.ctx, "no-such-id")
	assert.True(t, vacation.IsNotFound(err))

	s := f.schedule("emp-1", "2025-06-02", "2025-06-04")
	require.NoError(t, f.engine.DeleteSchedule(f.ctx, s.ID, "emp-1"))
	assert.Equal(t, []vacation.ActivityType{
		vacation.ActivityScheduleCreated,
		vacation.ActivityScheduleDeleted,
	}, f.activityTypes(s.ID))
}

func TestEngine_DeleteSchedule(t *testing.T) {
	f := newFixture(t)
	s := f.schedule("emp-1", "2025-06-02", "2025-06-04")

	require.NoError(t, f.engine.DeleteSchedule(f.ctx, s.ID, "emp-1"))

	assertDays(t, 0, f.balance("emp-1", 2025).ScheduledDays, "scheduled")
	_, err := f.engine.GetSchedule(f.ctx, s.ID)
	assert.True(t, vacation.IsNotFound(err))

	registered := f.schedule("emp-1", "2025-07-07", "2025-07-08")
	_, err = f.engine.RegisterSchedule(f.ctx, registered.ID, "hr-1")
	require.NoError(t, err)
	err = f.engine.DeleteSchedule(f.ctx, registered.ID, "emp-1")
	assert.ErrorIs(t, err, vacation.ErrIllegalTransition)
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestEngine_CreateRequest_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name    string
		draft   vacation.DraftRequest
		wantErr error
	}{
		{
			name:    "start after end",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "ANNUAL", StartDate: d("2025-06-06"), EndDate: d("2025-06-02")},
			wantErr: vacation.ErrInvalidDateRange,
		},
		{
			name:    "immediate in the past",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "ANNUAL", StartDate: d("2025-04-01"), EndDate: d("2025-04-02")},
			wantErr: vacation.ErrInvalidDateRange,
		},
		{
			name:    "missing dates",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "ANNUAL"},
			wantErr: vacation.ErrInvalidDateRange,
		},
		{
			name:    "consecutive cap",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "SHORT", StartDate: d("2025-06-02"), EndDate: d("2025-06-05")},
			wantErr: vacation.ErrConsecutiveDaysExceeded,
		},
		{
			name:    "unknown type",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "NOPE", StartDate: d("2025-06-02"), EndDate: d("2025-06-03")},
			wantErr: vacation.ErrNotFound,
		},
		{
			name:    "inactive type",
			draft:   vacation.DraftRequest{EmployeeID: "emp-1", TypeCode: "RETIRED", StartDate: d("2025-06-02"), EndDate: d("2025-06-03")},
			wantErr: vacation.ErrNotFound,
		},
		{
			name:    "unknown employee",
			draft:   vacation.DraftRequest{EmployeeID: "ghost", TypeCode: "ANNUAL", StartDate: d("2025-06-02"), EndDate: d("2025-06-03")},
			wantErr: vacation.ErrNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.CreateRequest(f.ctx, tt.draft)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	list, err := f.engine.ListRequests(f.ctx, vacation.RequestFilter{})
	require.NoError(t, err)
	assert.Empty(t, list, "failed creates persist nothing")
}

func TestEngine_ScheduledRequest_MayStartInPast(t *testing.T) {
	f := newFixture(t)
	r := f.draft("emp-1", "ANNUAL", vacation.RequestScheduled, "2025-04-01", "2025-04-02")
	assertDays(t, 2, r.NumberOfDays, "number_of_days")
}

func TestEngine_ConsecutiveCapCountsCalendarDays(t *testing.T) {
	f := newFixture(t)
	// Friday to Sunday is 1 working day but 3 calendar days.
	r := f.draft("emp-1", "SHORT", vacation.RequestImmediate, "2025-06-06", "2025-06-08")
	assertDays(t, 1, r.NumberOfDays, "number_of_days")

	_, err := f.engine.CreateRequest(f.ctx, vacation.DraftRequest{
		EmployeeID: "emp-1",
		TypeCode:   "SHORT",
		StartDate:  d("2025-06-06"),
		EndDate:    d("2025-06-09"),
	})
	var cd *vacation.ConsecutiveDaysError
	require.ErrorAs(t, err, &cd)
	assert.Equal(t, 4, cd.Requested)
}

func TestEngine_TypeWithoutApprovalOrBalance(t *testing.T) {
	f := newFixture(t)

	r := f.submitted("emp-1", "SICK", vacation.RequestImmediate, "2025-06-02", "2025-06-04")

	assert.Equal(t, vacation.StatusApproved, r.Status)
	assert.Nil(t, r.LineManagerID)
	_, err := f.engine.Complete(f.ctx, r.ID, "hr-1")
	require.NoError(t, err)
	_, err = f.mem.GetBalance(f.ctx, "emp-1", 2025)
	assert.True(t, vacation.IsNotFound(err), "no ledger row for non-balance types")
}

func TestEngine_HolidaysReduceWorkingDays(t *testing.T) {
	f := newFixture(t, func(s *vacation.Settings) { s.NonWorkingDates = []string{"2025-06-04"} })

	r := f.draft("emp-1", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-06")

	assertDays(t, 4, r.NumberOfDays, "number_of_days")
}

// =============================================================================
// BALANCES & REMINDERS
// =============================================================================

func TestEngine_GetBalance_Default(t *testing.T) {
	f := newFixture(t)

	v := f.balance("emp-1", 2025)
	assertDays(t, 20, v.YearlyBalance, "yearly")
	assertDays(t, 20, v.Remaining, "remaining")
	assertDays(t, 20, v.ShouldBePlanned, "should_be_planned")

	_, err := f.engine.GetBalance(f.ctx, "ghost", 2025)
	assert.True(t, vacation.IsNotFound(err))
}

func TestEngine_SetAllotment(t *testing.T) {
	f := newFixture(t)
	f.schedule("emp-1", "2025-06-02", "2025-06-04")

	v, err := f.engine.SetAllotment(f.ctx, "emp-1", 2025, days(5), days(25), "hr-1")
	require.NoError(t, err)

	assertDays(t, 30, v.TotalBalance, "total")
	assertDays(t, 27, v.Remaining, "remaining")
	assertDays(t, 3, v.ScheduledDays, "scheduled kept")

	_, err = f.engine.SetAllotment(f.ctx, "emp-1", 2025, days(-1), days(25), "hr-1")
	assert.ErrorIs(t, err, vacation.ErrNegativeDays)
}

func TestEngine_RemindUpcoming(t *testing.T) {
	f := newFixture(t)
	soon := f.submitted("solo", "ANNUAL", vacation.RequestImmediate, "2025-05-05", "2025-05-06")
	f.submitted("solo", "ANNUAL", vacation.RequestImmediate, "2025-06-02", "2025-06-03")
	f.takeIntents()

	upcoming, err := f.engine.UpcomingRequests(f.ctx)
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, soon.ID, upcoming[0].ID)

	sent, err := f.engine.RemindUpcoming(f.ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	intents := f.takeIntents()
	require.Len(t, intents, 1)
	assert.Equal(t, vacation.IntentEmployeeUpcoming, intents[0].Kind)
	assert.Equal(t, "solo", intents[0].RecipientID)

	sent, err = f.engine.RemindUpcoming(f.ctx, func(vacation.Request) bool { return true })
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, f.takeIntents())
}

func TestEngine_DefaultSettingsWhenNoneStored(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveVacationType(context.Background(), testTypes[0]))
	engine := vacation.NewEngine(mem, vacation.Options{Settings: mem, Clock: vacation.FixedClock(testNow)})

	s, err := engine.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, s.MaxScheduleEdits)

	r, err := engine.CreateRequest(context.Background(), vacation.DraftRequest{
		EmployeeID: "anyone",
		TypeCode:   "ANNUAL",
		StartDate:  d("2025-06-02"),
		EndDate:    d("2025-06-03"),
	})
	require.NoError(t, err)
	r, err = engine.Submit(context.Background(), r.ID, "anyone")
	require.NoError(t, err)
	assert.Equal(t, vacation.StatusApproved, r.Status, "no directory, no approvers")
}
