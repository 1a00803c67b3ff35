/*
Package vacation implements the vacation balance and approval engine.

PURPOSE:
  Owns the lifecycle of vacation requests and schedules, the per-employee
  yearly ledger they draw from, and the working-day calendar that turns date
  ranges into day counts. Everything else (HTTP, auth, delivery of
  notifications, the employee directory) is a collaborator behind an interface.

KEY CONCEPTS:
  Calendar   weekends + configured non-working dates -> working-day math
  Balance    start/yearly/used/scheduled days per (employee, year)
  Route      who approves a request and in what order
  Request    DRAFT -> ... -> APPROVED / REJECTED_* / CANCELLED / REGISTERED / COMPLETED
  Schedule   SCHEDULED -> REGISTERED, with an edit cap
  Activity   append-only audit row, written in the same transaction as the change
  Intent     notification request handed to an IntentSink after commit

TRANSACTION FLOW (every command):
  1. Read the active settings snapshot once
  2. WithTx: lock the entity, check legality, lock + mutate the ledger row,
     persist the entity (version checked), append one activity
  3. After commit: dispatch intents, log

  A failed precondition returns before anything is written and the rollback
  discards partial writes, so no command leaves a half-applied transition.

USAGE:
  engine := vacation.NewEngine(store, vacation.Options{
      Directory: store,
      Settings:  store,
      Sink:      notify.NewLogSink(logger),
  })
  req, err := engine.CreateRequest(ctx, vacation.DraftRequest{...})
  req, err = engine.Submit(ctx, req.ID, actorID)

SEE ALSO:
  - engine_request.go:  request commands
  - engine_schedule.go: schedule commands
  - store.go:           persistence port
*/
package vacation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// Options carries the engine's collaborators. Nil fields get defaults where
// one makes sense.
type Options struct {
	Directory Directory
	Settings  SettingsSource
	Clock     Clock
	Sink      IntentSink
	Logger    log.FieldLogger
}

// Engine is the command and query surface of the vacation module.
type Engine struct {
	store     TxStore
	directory Directory
	settings  SettingsSource
	clock     Clock
	sink      IntentSink
	log       log.FieldLogger
}

func NewEngine(store TxStore, opts Options) *Engine {
	e := &Engine{
		store:     store,
		directory: opts.Directory,
		settings:  opts.Settings,
		clock:     opts.Clock,
		sink:      opts.Sink,
		log:       opts.Logger,
	}
	if e.settings == nil {
		e.settings = StaticSettings(DefaultSettings())
	}
	if e.clock == nil {
		e.clock = SystemClock{}
	}
	if e.sink == nil {
		e.sink = discardSink{}
	}
	if e.log == nil {
		e.log = log.StandardLogger()
	}
	return e
}

// =============================================================================
// TRANSACTION PLUMBING
// =============================================================================

// Settings returns the active snapshot, falling back to DefaultSettings.
func (e *Engine) Settings(ctx context.Context) (Settings, error) {
	s, err := e.settings.ActiveSettings(ctx)
	if IsNotFound(err) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, errors.Wrap(err, "load vacation settings")
	}
	return s, nil
}

// txFunc runs inside one store transaction and returns the intents to emit
// once it commits.
type txFunc func(tx Store, settings Settings, now time.Time) ([]Intent, error)

func (e *Engine) run(ctx context.Context, fn txFunc) error {
	settings, err := e.Settings(ctx)
	if err != nil {
		return err
	}
	now := e.clock.Now()

	var intents []Intent
	err = e.store.WithTx(ctx, func(tx Store) error {
		var err error
		intents, err = fn(tx, settings, now)
		return err
	})
	if err != nil {
		return err
	}
	if len(intents) > 0 {
		e.sink.Dispatch(ctx, intents)
	}
	return nil
}

func (e *Engine) appendActivity(ctx context.Context, tx Store, subject SubjectKind, subjectID string, typ ActivityType, actor, description string, meta Metadata, at time.Time) error {
	err := tx.AppendActivity(ctx, Activity{
		ID:          uuid.NewString(),
		Subject:     subject,
		SubjectID:   subjectID,
		Type:        typ,
		Description: description,
		ActorID:     actor,
		Metadata:    meta,
		CreatedAt:   at,
	})
	return errors.Wrap(err, "append activity")
}

// lockBalance fetches the ledger row for update, creating it lazily.
func (e *Engine) lockBalance(ctx context.Context, tx Store, employeeID string, year int, settings Settings) (*Balance, error) {
	b, err := tx.LockBalance(ctx, employeeID, year, settings.DefaultYearlyDays)
	if err != nil {
		return nil, errors.Wrapf(err, "lock balance %s/%d", employeeID, year)
	}
	return b, nil
}

func (e *Engine) saveBalance(ctx context.Context, tx Store, b *Balance, now time.Time) error {
	b.touch(now)
	return errors.Wrapf(tx.SaveBalance(ctx, b), "save balance %s/%d", b.employeeID, b.year)
}

// lookup reads the employee and their teammates. Directory data belongs to
// another module, so it is read before the transaction opens.
func (e *Engine) lookup(ctx context.Context, employeeID string) (*Employee, []Employee, error) {
	if e.directory == nil {
		return &Employee{ID: employeeID, Active: true}, nil, nil
	}
	return lookupTeammates(ctx, e.directory, employeeID)
}

// usableType returns an active, non-deleted vacation type.
func usableType(ctx context.Context, tx Store, code string) (*VacationType, error) {
	vt, err := tx.GetVacationType(ctx, code)
	if err != nil {
		return nil, err
	}
	if !vt.Active || vt.DeletedAt != nil {
		return nil, NotFound("vacation type", code)
	}
	return vt, nil
}

// checkRange validates ordering, past starts for immediate requests, and the
// type's consecutive-day cap.
func checkRange(start, end Date, vt *VacationType, immediate bool, today Date) error {
	if start.IsZero() || end.IsZero() {
		return errors.Wrap(ErrInvalidDateRange, "start and end dates are required")
	}
	if start.After(end) {
		return errors.Wrapf(ErrInvalidDateRange, "start %s after end %s", start, end)
	}
	if immediate && start.Before(today) {
		return errors.Wrapf(ErrInvalidDateRange, "start %s is in the past", start)
	}
	return vt.CheckConsecutive(start, end)
}

// =============================================================================
// QUERIES
// =============================================================================

// GetBalance returns the ledger view for (employee, year). A row that was
// never referenced is reported with the default allotment without being stored.
func (e *Engine) GetBalance(ctx context.Context, employeeID string, year int) (BalanceView, error) {
	if _, _, err := e.lookup(ctx, employeeID); err != nil {
		return BalanceView{}, err
	}
	b, err := e.store.GetBalance(ctx, employeeID, year)
	if IsNotFound(err) {
		settings, serr := e.Settings(ctx)
		if serr != nil {
			return BalanceView{}, serr
		}
		return NewBalance(employeeID, year, settings.DefaultYearlyDays).View(), nil
	}
	if err != nil {
		return BalanceView{}, err
	}
	return b.View(), nil
}

// SetAllotment sets carried-over and yearly days for (employee, year).
func (e *Engine) SetAllotment(ctx context.Context, employeeID string, year int, start, yearly decimal.Decimal, actor string) (BalanceView, error) {
	if _, _, err := e.lookup(ctx, employeeID); err != nil {
		return BalanceView{}, err
	}
	var view BalanceView
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		b, err := e.lockBalance(ctx, tx, employeeID, year, settings)
		if err != nil {
			return nil, err
		}
		if err := b.SetAllotment(start, yearly); err != nil {
			return nil, err
		}
		if err := e.saveBalance(ctx, tx, b, now); err != nil {
			return nil, err
		}
		view = b.View()
		return nil, nil
	})
	if err != nil {
		return BalanceView{}, err
	}
	e.log.WithField("employee_id", employeeID).
		WithField("year", year).
		WithField("actor_id", actor).
		Info("vacation allotment updated")
	return view, nil
}

// GetConflicts lists teammates' vacations overlapping [from, to].
func (e *Engine) GetConflicts(ctx context.Context, employeeID string, from, to Date) (Conflicts, error) {
	_, mates, err := e.lookup(ctx, employeeID)
	if err != nil {
		return Conflicts{}, err
	}
	return teammateConflicts(ctx, e.store, mates, from, to)
}

// ListActivities returns the audit trail of a request or schedule, deleted
// ones included. Every request and schedule logs its creation, so an id with
// no activities and no live row is unknown.
func (e *Engine) ListActivities(ctx context.Context, subjectID string) ([]Activity, error) {
	activities, err := e.store.ListActivities(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if len(activities) > 0 {
		return activities, nil
	}
	if _, err := e.store.GetRequest(ctx, subjectID); !IsNotFound(err) {
		return activities, err
	}
	if _, err := e.store.GetSchedule(ctx, subjectID); !IsNotFound(err) {
		return activities, err
	}
	return nil, NotFound("request or schedule", subjectID)
}

func (e *Engine) GetRequest(ctx context.Context, id string) (*Request, error) {
	return e.store.GetRequest(ctx, id)
}

func (e *Engine) ListRequests(ctx context.Context, filter RequestFilter) ([]Request, error) {
	return e.store.ListRequests(ctx, filter)
}

func (e *Engine) GetSchedule(ctx context.Context, id string) (*Schedule, error) {
	return e.store.GetSchedule(ctx, id)
}

func (e *Engine) ListSchedules(ctx context.Context, filter ScheduleFilter) ([]Schedule, error) {
	return e.store.ListSchedules(ctx, filter)
}

// UpcomingRequests lists approved requests starting within the notification
// lead time from today.
func (e *Engine) UpcomingRequests(ctx context.Context) ([]Request, error) {
	settings, err := e.Settings(ctx)
	if err != nil {
		return nil, err
	}
	today := Today(e.clock)
	until := today.AddDays(settings.NotificationLeadDays)
	return e.store.ListRequests(ctx, RequestFilter{
		Statuses:   []RequestStatus{StatusApproved},
		StartsFrom: &today,
		StartsTo:   &until,
	})
}

// RemindUpcoming emits an upcoming-vacation intent for every request in
// UpcomingRequests that skip does not filter out. It returns how many were sent.
func (e *Engine) RemindUpcoming(ctx context.Context, skip func(Request) bool) (int, error) {
	requests, err := e.UpcomingRequests(ctx)
	if err != nil {
		return 0, err
	}
	var intents []Intent
	for i := range requests {
		r := &requests[i]
		if skip != nil && skip(*r) {
			continue
		}
		intents = append(intents, requestIntent(IntentEmployeeUpcoming, r, r.EmployeeID, "", ""))
	}
	if len(intents) > 0 {
		e.sink.Dispatch(ctx, intents)
	}
	return len(intents), nil
}
