/*
scheduler.go - Upcoming-vacation reminder scheduler

PURPOSE:
  Periodically asks the engine for approved requests starting within the
  notification lead time and emits one reminder intent per request.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Remembers which (request, start date) pairs were already reminded, so a
    request is reminded once per start date even though it stays upcoming
    across many runs; moving the dates re-arms the reminder
  - The memory is process-local; a restart may remind again

USAGE:
  scheduler := NewReminderScheduler(engine)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: RunReminders endpoint (manual run, no deduplication)
  - vacation/engine.go: RemindUpcoming
*/
package api

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/warp/vacation-engine/vacation"
)

// Reminder is the engine surface the scheduler drives.
type Reminder interface {
	UpcomingRequests(ctx context.Context) ([]vacation.Request, error)
	RemindUpcoming(ctx context.Context, skip func(vacation.Request) bool) (int, error)
}

// ReminderScheduler sends upcoming-vacation reminders on a ticker.
type ReminderScheduler struct {
	Engine        Reminder
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	sentMu sync.Mutex
	sent   map[string]bool
}

// NewReminderScheduler creates a new scheduler.
func NewReminderScheduler(engine Reminder) *ReminderScheduler {
	return &ReminderScheduler{
		Engine:        engine,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
		sent:          make(map[string]bool),
	}
}

// Start begins the scheduler.
func (rs *ReminderScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		log.Info("reminder scheduler disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	rs.ticker = time.NewTicker(rs.CheckInterval)
	rs.stop = make(chan struct{})
	rs.wg.Add(1)

	go rs.run()

	log.WithField("interval", rs.CheckInterval.String()).Info("reminder scheduler started")
}

// Stop stops the scheduler and waits for an in-flight run.
func (rs *ReminderScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker != nil {
		rs.ticker.Stop()
		close(rs.stop)
		rs.wg.Wait()
		rs.ticker = nil
		log.Info("reminder scheduler stopped")
	}
}

func (rs *ReminderScheduler) run() {
	defer rs.wg.Done()

	// Run immediately on start
	rs.RunNow(context.Background())

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(context.Background())
		case <-rs.stop:
			return
		}
	}
}

// RunNow performs one reminder pass and returns how many reminders were sent.
func (rs *ReminderScheduler) RunNow(ctx context.Context) int {
	rs.sentMu.Lock()
	defer rs.sentMu.Unlock()

	upcoming, err := rs.Engine.UpcomingRequests(ctx)
	if err != nil {
		log.WithError(err).Error("failed to list upcoming vacations")
		return 0
	}
	rs.prune(upcoming)

	var marked []string
	sent, err := rs.Engine.RemindUpcoming(ctx, func(r vacation.Request) bool {
		key := reminderKey(r)
		if rs.sent[key] {
			return true
		}
		marked = append(marked, key)
		return false
	})
	if err != nil {
		log.WithError(err).Error("failed to send upcoming-vacation reminders")
		return 0
	}
	for _, key := range marked {
		rs.sent[key] = true
	}
	if sent > 0 {
		log.WithField("sent", sent).Info("upcoming-vacation reminders sent")
	}
	return sent
}

// prune forgets requests that are no longer upcoming.
func (rs *ReminderScheduler) prune(upcoming []vacation.Request) {
	live := make(map[string]bool, len(upcoming))
	for _, r := range upcoming {
		live[reminderKey(r)] = true
	}
	for key := range rs.sent {
		if !live[key] {
			delete(rs.sent, key)
		}
	}
}

func reminderKey(r vacation.Request) string {
	return r.ID + "@" + r.StartDate.String()
}
