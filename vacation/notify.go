package vacation

import (
	"context"
)

// =============================================================================
// NOTIFICATION INTENTS
// =============================================================================

// IntentKind names a notification the engine asks someone else to deliver.
type IntentKind string

const (
	IntentLineManagerPending         IntentKind = "notify_line_manager_pending"
	IntentHRPending                  IntentKind = "notify_hr_pending"
	IntentEmployeeDecision           IntentKind = "notify_employee_decision"
	IntentEmployeeScheduleRegistered IntentKind = "notify_employee_schedule_registered"
	IntentEmployeeUpcoming           IntentKind = "notify_employee_upcoming"
)

// Intent carries enough data for a notifier to render and send a message.
type Intent struct {
	Kind        IntentKind  `json:"kind"`
	Subject     SubjectKind `json:"subject"`
	SubjectID   string      `json:"subject_id"`
	RecipientID string      `json:"recipient_id"`
	EmployeeID  string      `json:"employee_id"`
	ActorID     string      `json:"actor_id,omitempty"`
	TypeCode    string      `json:"type_code"`
	StartDate   Date        `json:"start_date"`
	EndDate     Date        `json:"end_date"`
	Status      string      `json:"status,omitempty"`
	Comment     string      `json:"comment,omitempty"`
}

// IntentSink receives intents after the emitting transaction committed.
// Delivery failures are the sink's concern; they never undo a transition.
type IntentSink interface {
	Dispatch(ctx context.Context, intents []Intent)
}

// IntentSinkFunc adapts a function to IntentSink.
type IntentSinkFunc func(ctx context.Context, intents []Intent)

func (f IntentSinkFunc) Dispatch(ctx context.Context, intents []Intent) { f(ctx, intents) }

type discardSink struct{}

func (discardSink) Dispatch(context.Context, []Intent) {}

func requestIntent(kind IntentKind, r *Request, recipient, actor, comment string) Intent {
	return Intent{
		Kind:        kind,
		Subject:     SubjectRequest,
		SubjectID:   r.ID,
		RecipientID: recipient,
		EmployeeID:  r.EmployeeID,
		ActorID:     actor,
		TypeCode:    r.TypeCode,
		StartDate:   r.StartDate,
		EndDate:     r.EndDate,
		Status:      string(r.Status),
		Comment:     comment,
	}
}

// routedIntents notifies whoever the request now waits on, or the employee
// when it reached a final decision.
func routedIntents(r *Request, actor, comment string) []Intent {
	switch r.Status {
	case StatusPendingLineManager:
		return []Intent{requestIntent(IntentLineManagerPending, r, *r.LineManagerID, actor, comment)}
	case StatusPendingHR:
		return []Intent{requestIntent(IntentHRPending, r, *r.HRRepresentativeID, actor, comment)}
	case StatusApproved, StatusRejectedLineManager, StatusRejectedHR:
		return []Intent{requestIntent(IntentEmployeeDecision, r, r.EmployeeID, actor, comment)}
	}
	return nil
}
