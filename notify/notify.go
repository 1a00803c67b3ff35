/*
Package notify provides IntentSink implementations for the vacation engine.

PURPOSE:
  The engine emits notification intents after a transition commits but never
  delivers them. This package holds the sinks the server wires in:

  LogSink:  writes each intent as a structured logrus entry
  Recorder: keeps the most recent intents in memory for the inbox endpoint
  Fanout:   dispatches to several sinks in order

USAGE:
  recorder := notify.NewRecorder(500)
  sink := notify.Fanout{notify.NewLogSink(log.StandardLogger()), recorder}
  engine := vacation.NewEngine(store, vacation.Options{Sink: sink})

SEE ALSO:
  - vacation/notify.go: Intent kinds
  - api/scheduler.go: upcoming-vacation reminders
*/
package notify

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// LOG SINK
// =============================================================================

// LogSink logs every intent at info level.
type LogSink struct {
	logger log.FieldLogger
}

func NewLogSink(logger log.FieldLogger) *LogSink {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Dispatch(_ context.Context, intents []vacation.Intent) {
	for _, in := range intents {
		s.logger.WithFields(log.Fields{
			"intent":       string(in.Kind),
			"recipient_id": in.RecipientID,
			"employee_id":  in.EmployeeID,
			"subject":      string(in.Subject),
			"subject_id":   in.SubjectID,
			"start_date":   in.StartDate.String(),
			"end_date":     in.EndDate.String(),
			"status":       in.Status,
		}).Info("notification intent")
	}
}

// =============================================================================
// RECORDER
// =============================================================================

// Recorder is a bounded in-memory history of dispatched intents.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	intents  []vacation.Intent
}

func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 100
	}
	return &Recorder{capacity: capacity}
}

func (r *Recorder) Dispatch(_ context.Context, intents []vacation.Intent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.intents = append(r.intents, intents...)
	if over := len(r.intents) - r.capacity; over > 0 {
		r.intents = append([]vacation.Intent(nil), r.intents[over:]...)
	}
}

// All returns every recorded intent, oldest first.
func (r *Recorder) All() []vacation.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]vacation.Intent(nil), r.intents...)
}

// ForRecipient returns the recorded intents addressed to recipientID, newest first.
func (r *Recorder) ForRecipient(recipientID string) []vacation.Intent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []vacation.Intent
	for i := len(r.intents) - 1; i >= 0; i-- {
		if r.intents[i].RecipientID == recipientID {
			out = append(out, r.intents[i])
		}
	}
	return out
}

// =============================================================================
// FANOUT
// =============================================================================

// Fanout dispatches to each sink in order.
type Fanout []vacation.IntentSink

func (f Fanout) Dispatch(ctx context.Context, intents []vacation.Intent) {
	for _, s := range f {
		s.Dispatch(ctx, intents)
	}
}
