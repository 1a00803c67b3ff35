package vacation

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// ACTIVITY LOG - Append-only audit trail
// =============================================================================

type SubjectKind string

const (
	SubjectRequest  SubjectKind = "request"
	SubjectSchedule SubjectKind = "schedule"
)

type ActivityType string

const (
	ActivityRequestCreated      ActivityType = "request_created"
	ActivityRequestSubmitted    ActivityType = "request_submitted"
	ActivityLineManagerApproved ActivityType = "line_manager_approved"
	ActivityLineManagerRejected ActivityType = "line_manager_rejected"
	ActivityHRApproved          ActivityType = "hr_approved"
	ActivityHRRejected          ActivityType = "hr_rejected"
	ActivityRequestRegistered   ActivityType = "request_registered"
	ActivityRequestCompleted    ActivityType = "request_completed"
	ActivityRequestEdited       ActivityType = "request_edited"
	ActivityRequestCancelled    ActivityType = "request_cancelled"
	ActivityRequestDeleted      ActivityType = "request_deleted"
	ActivityScheduleCreated     ActivityType = "schedule_created"
	ActivityScheduleEdited      ActivityType = "schedule_edited"
	ActivityScheduleRegistered  ActivityType = "schedule_registered"
	ActivityScheduleDeleted     ActivityType = "schedule_deleted"
)

// Metadata is free-form activity context, stored as a JSON column.
type Metadata map[string]string

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	return string(b), err
}

func (m *Metadata) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = nil
		return nil
	case []byte:
		return json.Unmarshal(v, m)
	case string:
		return json.Unmarshal([]byte(v), m)
	default:
		return fmt.Errorf("cannot scan %T into Metadata", value)
	}
}

// Activity is one immutable audit row about exactly one request or schedule.
type Activity struct {
	ID          string       `json:"id"`
	Subject     SubjectKind  `json:"subject"`
	SubjectID   string       `json:"subject_id"`
	Type        ActivityType `json:"type"`
	Description string       `json:"description"`
	ActorID     string       `json:"actor_id"`
	Metadata    Metadata     `json:"metadata,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ActivityLog stores activity rows. Append-only.
type ActivityLog interface {
	AppendActivity(ctx context.Context, a Activity) error
	ListActivities(ctx context.Context, subjectID string) ([]Activity, error)
}
