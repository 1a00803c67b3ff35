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
// REQUEST COMMANDS
// =============================================================================

// DraftRequest holds the caller-supplied fields of a new request.
// LineManagerID/HRRepresentativeID are manual overrides the router keeps.
type DraftRequest struct {
	EmployeeID         string
	RequesterID        string
	TypeCode           string
	RequestType        RequestType
	StartDate          Date
	EndDate            Date
	Comment            string
	LineManagerID      *string
	HRRepresentativeID *string
}

// RequestChanges lists the editable fields. Nil means unchanged.
type RequestChanges struct {
	TypeCode  *string
	StartDate *Date
	EndDate   *Date
	Comment   *string
}

// CreateRequest stores a new DRAFT request and returns it.
func (e *Engine) CreateRequest(ctx context.Context, draft DraftRequest) (*Request, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}
	if _, _, err := e.lookup(ctx, draft.EmployeeID); err != nil {
		return nil, err
	}
	var created *Request
	err = e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := e.insertDraft(ctx, tx, draft, settings, now)
		if err != nil {
			return nil, err
		}
		created = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(created).Info("vacation request created")
	return created, nil
}

// CreateAndSubmit creates a request and submits it in one transaction. When
// the submit step fails nothing is stored.
func (e *Engine) CreateAndSubmit(ctx context.Context, draft DraftRequest) (*Request, error) {
	draft, err := normalizeDraft(draft)
	if err != nil {
		return nil, err
	}
	emp, mates, err := e.lookup(ctx, draft.EmployeeID)
	if err != nil {
		return nil, err
	}
	var out *Request
	err = e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := e.insertDraft(ctx, tx, draft, settings, now)
		if err != nil {
			return nil, err
		}
		intents, err := e.submitDraft(ctx, tx, r, *emp, mates, draft.RequesterID, settings, now)
		if err != nil {
			return nil, err
		}
		out = r
		return intents, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request created and submitted")
	return out, nil
}

// Submit moves a DRAFT request through IN_PROGRESS to its routed status.
func (e *Engine) Submit(ctx context.Context, id, actor string) (*Request, error) {
	// The employee of a request never changes, so an unlocked read is enough
	// to resolve routing and teammates up front.
	pre, err := e.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	emp, mates, err := e.lookup(ctx, pre.EmployeeID)
	if err != nil {
		return nil, err
	}

	var out *Request
	err = e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if r.Status != StatusDraft {
			return nil, r.illegal("submit")
		}
		intents, err := e.submitDraft(ctx, tx, r, *emp, mates, actor, settings, now)
		if err != nil {
			return nil, err
		}
		out = r
		return intents, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request submitted")
	return out, nil
}

func normalizeDraft(draft DraftRequest) (DraftRequest, error) {
	if draft.RequestType == "" {
		draft.RequestType = RequestImmediate
	}
	if !draft.RequestType.Valid() {
		return draft, errors.Errorf("unknown request type %q", draft.RequestType)
	}
	if draft.RequesterID == "" {
		draft.RequesterID = draft.EmployeeID
	}
	return draft, nil
}

func (e *Engine) insertDraft(ctx context.Context, tx Store, draft DraftRequest, settings Settings, now time.Time) (*Request, error) {
	vt, err := usableType(ctx, tx, draft.TypeCode)
	if err != nil {
		return nil, err
	}
	if err := checkRange(draft.StartDate, draft.EndDate, vt, draft.RequestType == RequestImmediate, DateOf(now)); err != nil {
		return nil, err
	}

	r := &Request{
		ID:                 uuid.NewString(),
		EmployeeID:         draft.EmployeeID,
		RequesterID:        draft.RequesterID,
		TypeCode:           vt.Code,
		RequestType:        draft.RequestType,
		StartDate:          draft.StartDate,
		EndDate:            draft.EndDate,
		Comment:            draft.Comment,
		LineManagerID:      draft.LineManagerID,
		HRRepresentativeID: draft.HRRepresentativeID,
		Status:             StatusDraft,
		ReservedDays:       decimal.Zero,
		UsedDays:           decimal.Zero,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	r.applyPlan(settings.Calendar().Plan(r.StartDate, r.EndDate))

	if err := tx.CreateRequest(ctx, r); err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	desc := fmt.Sprintf("%s request for %s days (%s to %s) created", r.RequestType, r.NumberOfDays, r.StartDate, r.EndDate)
	if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestCreated, draft.RequesterID, desc, Metadata{
		"request_type":   string(r.RequestType),
		"number_of_days": r.NumberOfDays.String(),
	}, now); err != nil {
		return nil, err
	}
	return r, nil
}

// submitDraft validates, reserves or capacity-checks, routes and persists a
// DRAFT request held inside tx.
func (e *Engine) submitDraft(ctx context.Context, tx Store, r *Request, emp Employee, mates []Employee, actor string, settings Settings, now time.Time) ([]Intent, error) {
	vt, err := usableType(ctx, tx, r.TypeCode)
	if err != nil {
		return nil, err
	}
	if err := checkRange(r.StartDate, r.EndDate, vt, r.RequestType == RequestImmediate, DateOf(now)); err != nil {
		return nil, err
	}
	r.applyPlan(settings.Calendar().Plan(r.StartDate, r.EndDate))
	r.Status = StatusInProgress

	if vt.AffectsBalance {
		b, err := e.lockBalance(ctx, tx, r.EmployeeID, r.BalanceYear(), settings)
		if err != nil {
			return nil, err
		}
		if r.RequestType == RequestScheduled {
			if err := b.Reserve(r.NumberOfDays, settings.AllowNegativeBalance); err != nil {
				return nil, err
			}
			r.ReservedDays = r.NumberOfDays
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		} else if err := b.CheckCapacity(r.NumberOfDays, settings.AllowNegativeBalance); err != nil {
			return nil, err
		}
	}

	if vt.RequiresApproval {
		r.Status = Route(r, emp, settings)
	} else {
		r.Status = StatusApproved
	}

	conflicts, err := teammateConflicts(ctx, tx, mates, r.StartDate, r.EndDate)
	if err != nil {
		return nil, err
	}

	r.UpdatedAt = now
	if err := tx.UpdateRequest(ctx, r); err != nil {
		return nil, err
	}
	desc := fmt.Sprintf("Request submitted, now %s", r.Status)
	if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestSubmitted, actor, desc, Metadata{
		"status":         string(r.Status),
		"number_of_days": r.NumberOfDays.String(),
		"conflicts":      fmt.Sprint(conflicts.Count()),
	}, now); err != nil {
		return nil, err
	}
	return routedIntents(r, actor, r.Comment), nil
}

func (e *Engine) ApproveLineManager(ctx context.Context, id, actor, comment string) (*Request, error) {
	return e.decide(ctx, id, actor, comment, ActivityLineManagerApproved, (*Request).approveLineManager)
}

func (e *Engine) RejectLineManager(ctx context.Context, id, actor, reason string) (*Request, error) {
	return e.decide(ctx, id, actor, reason, ActivityLineManagerRejected, (*Request).rejectLineManager)
}

func (e *Engine) ApproveHR(ctx context.Context, id, actor, comment string) (*Request, error) {
	return e.decide(ctx, id, actor, comment, ActivityHRApproved, (*Request).approveHR)
}

func (e *Engine) RejectHR(ctx context.Context, id, actor, reason string) (*Request, error) {
	return e.decide(ctx, id, actor, reason, ActivityHRRejected, (*Request).rejectHR)
}

// decide applies one approval-stage transition. Rejections release whatever
// the request holds on the ledger.
func (e *Engine) decide(ctx context.Context, id, actor, note string, typ ActivityType, transition func(*Request, string, string, time.Time) error) (*Request, error) {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := transition(r, actor, note, now); err != nil {
			return nil, err
		}
		if r.Status == StatusRejectedLineManager || r.Status == StatusRejectedHR {
			if err := e.release(ctx, tx, r, settings, now); err != nil {
				return nil, err
			}
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("%s by %s, now %s", typ, actor, r.Status)
		meta := Metadata{"status": string(r.Status)}
		if note != "" {
			meta["comment"] = note
		}
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, typ, actor, desc, meta, now); err != nil {
			return nil, err
		}
		out = r
		return routedIntents(r, actor, note), nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).WithField("actor_id", actor).Info("vacation request " + string(typ))
	return out, nil
}

// release returns the days r still reserves. Only non-terminal and APPROVED
// requests reach it, and those never hold used days: consumption happens on
// Register/Complete, after which the request can no longer be cancelled.
func (e *Engine) release(ctx context.Context, tx Store, r *Request, settings Settings, now time.Time) error {
	if r.ReservedDays.IsZero() {
		return nil
	}
	b, err := e.lockBalance(ctx, tx, r.EmployeeID, r.BalanceYear(), settings)
	if err != nil {
		return err
	}
	if err := b.Unreserve(r.ReservedDays); err != nil {
		return err
	}
	r.ReservedDays = decimal.Zero
	return e.saveBalance(ctx, tx, b, now)
}

// Register consumes the reservation of an approved SCHEDULED request.
func (e *Engine) Register(ctx context.Context, id, actor string) (*Request, error) {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := r.register(actor, now); err != nil {
			return nil, err
		}
		if !r.ReservedDays.IsZero() {
			b, err := e.lockBalance(ctx, tx, r.EmployeeID, r.BalanceYear(), settings)
			if err != nil {
				return nil, err
			}
			if err := b.Use(r.ReservedDays); err != nil {
				return nil, err
			}
			r.UsedDays = r.ReservedDays
			r.ReservedDays = decimal.Zero
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Registered %s days", r.UsedDays)
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestRegistered, actor, desc, Metadata{
			"used_days": r.UsedDays.String(),
		}, now); err != nil {
			return nil, err
		}
		out = r
		return []Intent{requestIntent(IntentEmployeeScheduleRegistered, r, r.EmployeeID, actor, "")}, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request registered")
	return out, nil
}

// Complete marks an approved IMMEDIATE request as taken and consumes its days.
func (e *Engine) Complete(ctx context.Context, id, actor string) (*Request, error) {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := r.complete(actor, now); err != nil {
			return nil, err
		}
		vt, err := tx.GetVacationType(ctx, r.TypeCode)
		if err != nil {
			return nil, err
		}
		if vt.AffectsBalance {
			b, err := e.lockBalance(ctx, tx, r.EmployeeID, r.BalanceYear(), settings)
			if err != nil {
				return nil, err
			}
			// Immediate requests never reserve; hold then use so other
			// reservations on the row are untouched.
			if err := b.ReserveOverride(r.NumberOfDays); err != nil {
				return nil, err
			}
			if err := b.Use(r.NumberOfDays); err != nil {
				return nil, err
			}
			r.UsedDays = r.NumberOfDays
			if err := e.saveBalance(ctx, tx, b, now); err != nil {
				return nil, err
			}
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Marked as taken, %s days used", r.UsedDays)
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestCompleted, actor, desc, Metadata{
			"used_days": r.UsedDays.String(),
		}, now); err != nil {
			return nil, err
		}
		out = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request completed")
	return out, nil
}

// Edit changes dates, type or comment of an editable request.
func (e *Engine) Edit(ctx context.Context, id string, changes RequestChanges, actor string) (*Request, error) {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if !r.Editable(settings.MaxScheduleEdits) {
			reason := "not a draft"
			if r.Status == StatusDraft {
				reason = "cap reached"
			}
			return nil, &EditLimitError{Subject: SubjectRequest, ID: r.ID, EditCount: r.EditCount, Max: settings.MaxScheduleEdits, Reason: reason}
		}

		oldStart, oldEnd, oldDays := r.StartDate, r.EndDate, r.NumberOfDays
		if changes.TypeCode != nil {
			r.TypeCode = *changes.TypeCode
		}
		if changes.StartDate != nil {
			r.StartDate = *changes.StartDate
		}
		if changes.EndDate != nil {
			r.EndDate = *changes.EndDate
		}
		if changes.Comment != nil {
			r.Comment = *changes.Comment
		}
		vt, err := usableType(ctx, tx, r.TypeCode)
		if err != nil {
			return nil, err
		}
		if err := checkRange(r.StartDate, r.EndDate, vt, r.RequestType == RequestImmediate, DateOf(now)); err != nil {
			return nil, err
		}
		r.applyPlan(settings.Calendar().Plan(r.StartDate, r.EndDate))
		r.markEdited(actor, now)
		r.UpdatedAt = now

		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Edited: %s..%s (%s days) -> %s..%s (%s days)",
			oldStart, oldEnd, oldDays, r.StartDate, r.EndDate, r.NumberOfDays)
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestEdited, actor, desc, Metadata{
			"edit_count":     fmt.Sprint(r.EditCount),
			"number_of_days": r.NumberOfDays.String(),
		}, now); err != nil {
			return nil, err
		}
		out = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request edited")
	return out, nil
}

// Cancel stops a request that is not yet terminal (or is APPROVED), returning
// its ledger holdings.
func (e *Engine) Cancel(ctx context.Context, id, actor string) (*Request, error) {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		from := r.Status
		if err := r.cancel(actor, "", now); err != nil {
			return nil, err
		}
		released := r.ReservedDays
		if err := e.release(ctx, tx, r, settings, now); err != nil {
			return nil, err
		}
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		desc := fmt.Sprintf("Cancelled from %s", from)
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestCancelled, actor, desc, Metadata{
			"previous_status": string(from),
			"released_days":   released.String(),
		}, now); err != nil {
			return nil, err
		}
		out = r
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	e.requestLog(out).Info("vacation request cancelled")
	return out, nil
}

// DeleteRequest soft-deletes a request that holds nothing on the ledger.
func (e *Engine) DeleteRequest(ctx context.Context, id, actor string) error {
	var out *Request
	err := e.run(ctx, func(tx Store, settings Settings, now time.Time) ([]Intent, error) {
		r, err := tx.LockRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if !r.Deletable() {
			return nil, r.illegal("delete")
		}
		if err := e.appendActivity(ctx, tx, SubjectRequest, r.ID, ActivityRequestDeleted, actor, "Request deleted", Metadata{
			"status": string(r.Status),
		}, now); err != nil {
			return nil, err
		}
		r.DeletedAt = &now
		r.UpdatedAt = now
		if err := tx.UpdateRequest(ctx, r); err != nil {
			return nil, err
		}
		out = r
		return nil, nil
	})
	if err != nil {
		return err
	}
	e.requestLog(out).Info("vacation request deleted")
	return nil
}

func (e *Engine) requestLog(r *Request) *log.Entry {
	return e.log.WithField("request_id", r.ID).
		WithField("employee_id", r.EmployeeID).
		WithField("status", r.Status)
}
