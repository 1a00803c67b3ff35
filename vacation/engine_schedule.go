package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// =============================================================================
// SCHEDULE COMMANDS
// =============================================================================

type DraftSchedule struct {
	EmployeeID string
	CreatedBy  string
	TypeCode   string
	StartDate  Date
	EndDate    Date
	Comment    string
}

type ScheduleChanges struct {
	TypeCode  *string
	StartDate *Date
	EndDate   *Date
	Comment   *string
}

// CreateSchedule validates the range, reserves its working days and stores a
// SCHEDULED entry.
func (e *Engine) CreateSchedule(ctx context.Context, draft DraftSchedule) (*Schedule, error) {
	if draft.CreatedBy == "" {
		draft.CreatedBy = draft.EmployeeID
	}
	_, mates, err := e.lookup(ctx, draft.EmployeeID)
	if err != nil {
		return nil, err
	}
	var out *Schedule
	err = e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		vt, err := usableType(ctx, tx, draft.TypeCode)
		if err != nil {
			return nil, err
		}
		if err := checkRange(draft.StartDate, draft.EndDate, vt, false, DateOf(now)); err != nil {
			return nil, err
		}
		s := &Schedule{
			ID:           uuid.NewString(),
			EmployeeID:   draft.EmployeeID,
			CreatedBy:    draft.CreatedBy,
			TypeCode:     vt.Code,
			StartDate:    draft.StartDate,
			EndDate:      draft.EndDate,
			Comment:      draft.Comment,
			Status:       ScheduleScheduled,
			ReservedDays: decimal.Zero,
			UsedDays:     decimal.Zero,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		plan := settings.Calendar().Plan(s.StartDate, s.EndDate)
		s.NumberOfDays = plan.Days
		s.ReturnDate = plan.ReturnDate

		if vt.AffectsBalance {
			b, err := e.lockBalance(ctx, tx, s.EmployeeID, s.BalanceYear(), settings)
			if err != nil {
				return nil, err
			}
			if err := b.Reserve(s.NumberOfDays, settings.AllowNegativeBalance); err != nil {
				return nil, err
			}
			s.ReservedDays = s.NumberOfDays
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}

		conflicts, err := teammateConflicts(ctx, tx, mates, s.StartDate, s.EndDate)
		if err != nil {
			return nil, err
		}

		if err := tx.CreateSchedule(ctx, s); err != nil {
			return nil, errors.Wrap(err, "create schedule")
		}
		desc := fmt.Sprintf("Scheduled %s days (%s to %s)", s.NumberOfDays, s.StartDate, s.EndDate)
		if err := e.appendActivity(ctx, tx, SubjectSchedule, s.ID, ActivityScheduleCreated, draft.CreatedBy, desc, Metadata{
			"number_of_days": s.NumberOfDays.String(),
			"conflicts":      fmt.Sprint(conflicts.Count()),
		}, now); err != nil {
			return nil, err
		}
		out = s
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.scheduleLog(out).Info("vacation schedule created")
	return out, nil
}

// EditSchedule changes a SCHEDULED entry and moves only the difference in
// held days on the ledger.
func (e *Engine) EditSchedule(ctx context.Context, id string, changes ScheduleChanges, actor string) (*Schedule, error) {
	var out *Schedule
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		s, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.checkEditable(settings.MaxScheduleEdits); err != nil {
			return nil, err
		}

		oldYear, oldHeld, oldDays := s.BalanceYear(), s.ReservedDays, s.NumberOfDays
		if changes.TypeCode != nil {
			s.TypeCode = *changes.TypeCode
		}
		if changes.StartDate != nil {
			s.StartDate = *changes.StartDate
		}
		if changes.EndDate != nil {
			s.EndDate = *changes.EndDate
		}
		if changes.Comment != nil {
			s.Comment = *changes.Comment
		}
		vt, err := usableType(ctx, tx, s.TypeCode)
		if err != nil {
			return nil, err
		}
		if err := checkRange(s.StartDate, s.EndDate, vt, false, DateOf(now)); err != nil {
			return nil, err
		}
		plan := settings.Calendar().Plan(s.StartDate, s.EndDate)
		s.NumberOfDays = plan.Days
		s.ReturnDate = plan.ReturnDate

		newHeld := decimal.Zero
		if vt.AffectsBalance {
			newHeld = s.NumberOfDays
		}
		if err := e.moveReservation(ctx, tx, s.EmployeeID, oldYear, oldHeld, s.BalanceYear(), newHeld, settings, now); err != nil {
			return nil, err
		}
		s.ReservedDays = newHeld
		s.markEdited(actor, now)
		s.UpdatedAt = now

		if err := tx.UpdateSchedule(ctx, s); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Edited: %s -> %s days", oldDays, s.NumberOfDays)
		if err := e.appendActivity(ctx, tx, SubjectSchedule, s.ID, ActivityScheduleEdited, actor, desc, Metadata{
			"edit_count":     fmt.Sprint(s.EditCount),
			"old_days":       oldDays.String(),
			"number_of_days": s.NumberOfDays.String(),
			"delta":          newHeld.Sub(oldHeld).String(),
		}, now); err != nil {
			return nil, err
		}
		out = s
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.scheduleLog(out).Info("vacation schedule edited")
	return out, nil
}

// moveReservation adjusts held days from (oldYear, oldHeld) to (newYear, newHeld).
// Within one year only the delta is reserved or unreserved.
func (e *Engine) moveReservation(ctx context.Context, tx Store, employeeID string, oldYear int, oldHeld decimal.Decimal, newYear int, newHeld decimal.Decimal, settings Settings, now time.Time) error {
	if oldYear == newYear {
		delta := newHeld.Sub(oldHeld)
		if delta.IsZero() {
			return nil
		}
		b, err := e.lockBalance(ctx, tx, employeeID, newYear, settings)
		if err != nil {
			return err
		}
		if delta.IsPositive() {
			err = b.Reserve(delta, settings.AllowNegativeBalance)
		} else {
			err = b.Unreserve(delta.Neg())
		}
		if err != nil {
			return err
		}
		return e.saveBalance(ctx, tx, b, now)
	}

	// Lock in year order so concurrent moves cannot deadlock.
	first, second := oldYear, newYear
	if first > second {
		first, second = second, first
	}
	balances := make(map[int]*Balance, 2)
	for _, year := range []int{first, second} {
		b, err := e.lockBalance(ctx, tx, employeeID, year, settings)
		if err != nil {
			return err
		}
		balances[year] = b
	}
	if err := balances[oldYear].Unreserve(oldHeld); err != nil {
		return err
	}
	if !newHeld.IsZero() {
		if err := balances[newYear].Reserve(newHeld, settings.AllowNegativeBalance); err != nil {
			return err
		}
	}
	for _, year := range []int{first, second} {
		if err := e.saveBalance(ctx, tx, balances[year], now); err != nil {
			return err
		}
	}
	return nil
}

// RegisterSchedule consumes the reserved days and makes the entry terminal.
func (e *Engine) RegisterSchedule(ctx context.Context, id, actor string) (*Schedule, error) {
	var out *Schedule
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		s, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := s.register(actor, now); err != nil {
			return nil, err
		}
		if !s.ReservedDays.IsZero() {
			b, err := e.lockBalance(ctx, tx, s.EmployeeID, s.BalanceYear(), settings)
			if err != nil {
				return nil, err
			}
			if err := b.Use(s.ReservedDays); err != nil {
				return nil, err
			}
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}
		s.UsedDays = s.ReservedDays
		s.ReservedDays = decimal.Zero
		s.UpdatedAt = now
		if err := tx.UpdateSchedule(ctx, s); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Registered %s days", s.UsedDays)
		if err := e.appendActivity(ctx, tx, SubjectSchedule, s.ID, ActivityScheduleRegistered, actor, desc, Metadata{
			"used_days": s.UsedDays.String(),
		}, now); err != nil {
			return nil, err
		}
		out = s
		return []Intent{{
			Kind:        IntentEmployeeScheduleRegistered,
			Subject:     SubjectSchedule,
			SubjectID:   s.ID,
			RecipientID: s.EmployeeID,
			EmployeeID:  s.EmployeeID,
			ActorID:     actor,
			TypeCode:    s.TypeCode,
			StartDate:   s.StartDate,
			EndDate:     s.EndDate,
			Status:      string(s.Status),
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	e.scheduleLog(out).Info("vacation schedule registered")
	return out, nil
}

// DeleteSchedule soft-deletes a SCHEDULED entry and returns its reservation.
func (e *Engine) DeleteSchedule(ctx context.Context, id, actor string) error {
	var out *Schedule
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		s, err := tx.LockSchedule(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.Status != ScheduleScheduled {
			return nil, s.illegal("delete")
		}
		if !s.ReservedDays.IsZero() {
			b, err := e.lockBalance(ctx, tx, s.EmployeeID, s.BalanceYear(), settings)
			if err != nil {
				return nil, err
			}
			if err := b.Unreserve(s.ReservedDays); err != nil {
				return nil, err
			}
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}
		if err := e.appendActivity(ctx, tx, SubjectSchedule, s.ID, ActivityScheduleDeleted, actor, "Schedule deleted", Metadata{
			"released_days": s.ReservedDays.String(),
		}, now); err != nil {
			return nil, err
		}
		s.ReservedDays = decimal.Zero
		s.DeletedAt = &now
		s.UpdatedAt = now
		if err := tx.UpdateSchedule(ctx, s); err != nil {
			return nil, err
		}
		out = s
		return nil, nil
	})
	if err != nil {
		return err
	}
	e.scheduleLog(out).Info("vacation schedule deleted")
	return nil
}

func (e *Engine) scheduleLog(s *Schedule) *log.Entry {
	return e.log.WithField("schedule_id", s.ID).
		WithField("employee_id", s.EmployeeID).
		WithField("status", s.Status)
}
