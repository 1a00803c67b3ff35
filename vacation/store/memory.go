// Package store provides an in-memory vacation.TxStore for tests and local runs.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements vacation.TxStore, vacation.Directory and
// vacation.SettingsSource. WithTx holds the writer lock for the whole
// transaction, so Lock* reads are trivially serialized.
type Memory struct {
	mu sync.RWMutex
	d  *data
}

type balanceKey struct {
	EmployeeID string
	Year       int
}

// data holds the tables and implements vacation.Store without locking.
type data struct {
	requests   map[string]vacation.Request
	schedules  map[string]vacation.Schedule
	balances   map[balanceKey]*vacation.Balance
	activities []vacation.Activity
	types      map[string]vacation.VacationType
	employees  map[string]vacation.Employee
	settings   *vacation.Settings
}

func NewMemory() *Memory {
	return &Memory{d: newData()}
}

func newData() *data {
	return &data{
		requests:  make(map[string]vacation.Request),
		schedules: make(map[string]vacation.Schedule),
		balances:  make(map[balanceKey]*vacation.Balance),
		types:     make(map[string]vacation.VacationType),
		employees: make(map[string]vacation.Employee),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (m *Memory) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.d.clone()
	if err := fn(m.d); err != nil {
		m.d = snapshot
		return err
	}
	return nil
}

func (d *data) clone() *data {
	c := newData()
	for k, v := range d.requests {
		c.requests[k] = v
	}
	for k, v := range d.schedules {
		c.schedules[k] = v
	}
	for k, v := range d.balances {
		c.balances[k] = cloneBalance(v)
	}
	c.activities = append([]vacation.Activity{}, d.activities...)
	for k, v := range d.types {
		c.types[k] = v
	}
	for k, v := range d.employees {
		c.employees[k] = v
	}
	if d.settings != nil {
		s := *d.settings
		c.settings = &s
	}
	return c
}

func cloneBalance(b *vacation.Balance) *vacation.Balance {
	return vacation.RestoreBalance(b.EmployeeID(), b.Year(), b.StartBalance(), b.YearlyBalance(),
		b.UsedDays(), b.ScheduledDays(), b.UpdatedAt())
}

// =============================================================================
// REQUESTS
// =============================================================================

func (d *data) GetRequest(_ context.Context, id string) (*vacation.Request, error) {
	r, ok := d.requests[id]
	if !ok || r.DeletedAt != nil {
		return nil, vacation.NotFound("request", id)
	}
	return &r, nil
}

func (d *data) LockRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return d.GetRequest(ctx, id)
}

func (d *data) CreateRequest(_ context.Context, r *vacation.Request) error {
	r.Version = 1
	d.requests[r.ID] = *r
	return nil
}

func (d *data) UpdateRequest(_ context.Context, r *vacation.Request) error {
	cur, ok := d.requests[r.ID]
	if !ok || cur.DeletedAt != nil {
		return vacation.NotFound("request", r.ID)
	}
	if cur.Version != r.Version {
		return vacation.ErrConcurrentModification
	}
	r.Version++
	d.requests[r.ID] = *r
	return nil
}

func (d *data) ListRequests(_ context.Context, f vacation.RequestFilter) ([]vacation.Request, error) {
	var out []vacation.Request
	for _, r := range d.requests {
		if f.Matches(&r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (d *data) GetSchedule(_ context.Context, id string) (*vacation.Schedule, error) {
	s, ok := d.schedules[id]
	if !ok || s.DeletedAt != nil {
		return nil, vacation.NotFound("schedule", id)
	}
	return &s, nil
}

func (d *data) LockSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return d.GetSchedule(ctx, id)
}

func (d *data) CreateSchedule(_ context.Context, s *vacation.Schedule) error {
	s.Version = 1
	d.schedules[s.ID] = *s
	return nil
}

func (d *data) UpdateSchedule(_ context.Context, s *vacation.Schedule) error {
	cur, ok := d.schedules[s.ID]
	if !ok || cur.DeletedAt != nil {
		return vacation.NotFound("schedule", s.ID)
	}
	if cur.Version != s.Version {
		return vacation.ErrConcurrentModification
	}
	s.Version++
	d.schedules[s.ID] = *s
	return nil
}

func (d *data) ListSchedules(_ context.Context, f vacation.ScheduleFilter) ([]vacation.Schedule, error) {
	var out []vacation.Schedule
	for _, s := range d.schedules {
		if f.Matches(&s) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// BALANCES
// =============================================================================

func (d *data) GetBalance(_ context.Context, employeeID string, year int) (*vacation.Balance, error) {
	b, ok := d.balances[balanceKey{employeeID, year}]
	if !ok {
		return nil, vacation.NotFound("balance", employeeID)
	}
	return cloneBalance(b), nil
}

func (d *data) LockBalance(_ context.Context, employeeID string, year int, yearly decimal.Decimal) (*vacation.Balance, error) {
	k := balanceKey{employeeID, year}
	b, ok := d.balances[k]
	if !ok {
		b = vacation.NewBalance(employeeID, year, yearly)
		d.balances[k] = b
	}
	return cloneBalance(b), nil
}

func (d *data) SaveBalance(_ context.Context, b *vacation.Balance) error {
	d.balances[balanceKey{b.EmployeeID(), b.Year()}] = cloneBalance(b)
	return nil
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (d *data) AppendActivity(_ context.Context, a vacation.Activity) error {
	d.activities = append(d.activities, a)
	return nil
}

func (d *data) ListActivities(_ context.Context, subjectID string) ([]vacation.Activity, error) {
	var out []vacation.Activity
	for _, a := range d.activities {
		if a.SubjectID == subjectID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// CATALOG, DIRECTORY, SETTINGS
// =============================================================================

// GetVacationType returns the type even when inactive or deleted; existing
// requests keep referencing it.
func (d *data) GetVacationType(_ context.Context, code string) (*vacation.VacationType, error) {
	vt, ok := d.types[code]
	if !ok {
		return nil, vacation.NotFound("vacation type", code)
	}
	return &vt, nil
}

// =============================================================================
// LOCKED WRAPPERS
// =============================================================================

func (m *Memory) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetRequest(ctx, id)
}

func (m *Memory) LockRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return m.GetRequest(ctx, id)
}

func (m *Memory) CreateRequest(ctx context.Context, r *vacation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateRequest(ctx, r)
}

func (m *Memory) UpdateRequest(ctx context.Context, r *vacation.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateRequest(ctx, r)
}

func (m *Memory) ListRequests(ctx context.Context, f vacation.RequestFilter) ([]vacation.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListRequests(ctx, f)
}

func (m *Memory) GetSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetSchedule(ctx, id)
}

func (m *Memory) LockSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return m.GetSchedule(ctx, id)
}

func (m *Memory) CreateSchedule(ctx context.Context, s *vacation.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.CreateSchedule(ctx, s)
}

func (m *Memory) UpdateSchedule(ctx context.Context, s *vacation.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.UpdateSchedule(ctx, s)
}

func (m *Memory) ListSchedules(ctx context.Context, f vacation.ScheduleFilter) ([]vacation.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListSchedules(ctx, f)
}

func (m *Memory) GetBalance(ctx context.Context, employeeID string, year int) (*vacation.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetBalance(ctx, employeeID, year)
}

func (m *Memory) LockBalance(ctx context.Context, employeeID string, year int, yearly decimal.Decimal) (*vacation.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.LockBalance(ctx, employeeID, year, yearly)
}

func (m *Memory) SaveBalance(ctx context.Context, b *vacation.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.SaveBalance(ctx, b)
}

func (m *Memory) AppendActivity(ctx context.Context, a vacation.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.d.AppendActivity(ctx, a)
}

func (m *Memory) ListActivities(ctx context.Context, subjectID string) ([]vacation.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.ListActivities(ctx, subjectID)
}

func (m *Memory) GetVacationType(ctx context.Context, code string) (*vacation.VacationType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.d.GetVacationType(ctx, code)
}

// SaveVacationType inserts or replaces a type by code.
func (m *Memory) SaveVacationType(_ context.Context, vt vacation.VacationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.types[vt.Code] = vt
	return nil
}

// ListVacationTypes returns non-deleted types ordered by code.
func (m *Memory) ListVacationTypes(_ context.Context) ([]vacation.VacationType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.VacationType
	for _, vt := range m.d.types {
		if vt.DeletedAt == nil {
			out = append(out, vt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *Memory) SaveEmployee(_ context.Context, e vacation.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d.employees[e.ID] = e
	return nil
}

func (m *Memory) GetEmployee(_ context.Context, id string) (*vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.d.employees[id]
	if !ok {
		return nil, vacation.NotFound("employee", id)
	}
	return &e, nil
}

func (m *Memory) ListActiveEmployees(_ context.Context) ([]vacation.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []vacation.Employee
	for _, e := range m.d.employees {
		if e.Active {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveSettings stores s as the single active settings row.
func (m *Memory) SaveSettings(_ context.Context, s vacation.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Active = true
	m.d.settings = &s
	return nil
}

func (m *Memory) ActiveSettings(_ context.Context) (vacation.Settings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.d.settings == nil {
		return vacation.Settings{}, vacation.NotFound("settings", "active")
	}
	return *m.d.settings, nil
}

// Reset drops every table.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.d = newData()
	return nil
}
