/*
Package sqlite provides a SQLite-backed implementation of the vacation storage port.

PURPOSE:
  Implements vacation.TxStore, vacation.Directory and vacation.SettingsSource
  using SQLite. The postgres package implements the same port with row-level
  locks; this one relies on SQLite's single writer.

INTERFACES IMPLEMENTED:
  vacation.Store:          requests, schedules, balances, activities, types
  vacation.TxStore:        WithTx
  vacation.Directory:      employees table
  vacation.SettingsSource: settings table (one active row)

KEY TABLES:
  requests:        vacation requests (soft-deleted via deleted_at)
  schedules:       forward-planned entries (soft-deleted via deleted_at)
  balances:        one ledger row per (employee_id, year)
  activities:      append-only audit trail
  vacation_types:  type catalog
  employees:       directory
  settings:        configuration snapshots

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, so a
  transaction sees every write it made and ":memory:" databases are shared.
  Transactions begin IMMEDIATE, taking the write lock up front. Updates to
  requests and schedules are version checked.

USAGE:
  store, err := sqlite.New("./data/vacation.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := vacation.NewEngine(store, vacation.Options{Directory: store, Settings: store})

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - vacation/store.go: Interface definitions
  - vacation/store/memory.go: In-memory implementation for testing
  - store/postgres: gorm implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// Store implements the vacation storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to migrate database")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Active configuration snapshot
	CREATE TABLE IF NOT EXISTS settings (
		id TEXT PRIMARY KEY,
		non_working_dates TEXT NOT NULL DEFAULT '[]',
		default_hr_approver_id TEXT,
		allow_negative_balance BOOLEAN NOT NULL DEFAULT FALSE,
		max_schedule_edits INTEGER NOT NULL DEFAULT 3,
		notification_lead_days INTEGER NOT NULL DEFAULT 7,
		default_yearly_days TEXT NOT NULL DEFAULT '20',
		active BOOLEAN NOT NULL DEFAULT FALSE,
		updated_at TEXT NOT NULL
	);

	-- Vacation type catalog
	CREATE TABLE IF NOT EXISTS vacation_types (
		code TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		requires_approval BOOLEAN NOT NULL DEFAULT TRUE,
		affects_balance BOOLEAN NOT NULL DEFAULT TRUE,
		max_consecutive_days INTEGER,
		color TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		deleted_at TEXT
	);

	-- Employees (directory)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		department_id TEXT,
		line_manager_id TEXT,
		is_hr BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE
	);

	CREATE INDEX IF NOT EXISTS idx_employees_department
		ON employees(department_id);
	CREATE INDEX IF NOT EXISTS idx_employees_line_manager
		ON employees(line_manager_id);

	-- Ledger rows, one per employee and year
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		start_balance TEXT NOT NULL DEFAULT '0',
		yearly_balance TEXT NOT NULL DEFAULT '0',
		used_days TEXT NOT NULL DEFAULT '0',
		scheduled_days TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year)
	);

	-- Vacation requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		requester_id TEXT NOT NULL,
		type_code TEXT NOT NULL,
		request_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		return_date TEXT NOT NULL,
		number_of_days TEXT NOT NULL,
		comment TEXT,
		line_manager_id TEXT,
		hr_representative_id TEXT,
		status TEXT NOT NULL,
		line_manager_decision TEXT,
		hr_decision TEXT,
		rejection TEXT,
		cancellation TEXT,
		registration TEXT,
		edit_count INTEGER NOT NULL DEFAULT 0,
		last_edited_by TEXT,
		last_edited_at TEXT,
		reserved_days TEXT NOT NULL DEFAULT '0',
		used_days TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id, start_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);
	CREATE INDEX IF NOT EXISTS idx_requests_range
		ON requests(start_date, end_date) WHERE deleted_at IS NULL;

	-- Schedules
	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		created_by TEXT NOT NULL,
		type_code TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		return_date TEXT NOT NULL,
		number_of_days TEXT NOT NULL,
		comment TEXT,
		status TEXT NOT NULL,
		edit_count INTEGER NOT NULL DEFAULT 0,
		last_edited_by TEXT,
		last_edited_at TEXT,
		registration TEXT,
		reserved_days TEXT NOT NULL DEFAULT '0',
		used_days TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		deleted_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_employee
		ON schedules(employee_id, start_date);

	-- Activities (append-only)
	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		subject TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		type TEXT NOT NULL,
		description TEXT NOT NULL,
		actor_id TEXT,
		metadata_json TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_activities_subject
		ON activities(subject_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (vacation.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction. Every read and
// write fn makes goes through the transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store vacation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(conn{q: sqlTx}); err != nil {
		return err
	}

	return errors.Wrap(sqlTx.Commit(), "failed to commit transaction")
}

// conn implements vacation.Store over a querier. It does no locking.
type conn struct {
	q querier
}

func (s *Store) read() conn { return conn{q: s.db} }

// =============================================================================
// REQUESTS
// =============================================================================

const requestColumns = `id, employee_id, requester_id, type_code, request_type,
	start_date, end_date, return_date, number_of_days, comment,
	line_manager_id, hr_representative_id, status,
	line_manager_decision, hr_decision, rejection, cancellation, registration,
	edit_count, last_edited_by, last_edited_at, reserved_days, used_days,
	version, created_at, updated_at, deleted_at`

func (c conn) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+requestColumns+" FROM requests WHERE id = ? AND deleted_at IS NULL", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, vacation.NotFound("request", id)
	}
	return r, err
}

// LockRequest is a plain read: the IMMEDIATE transaction already holds the
// database write lock.
func (c conn) LockRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return c.GetRequest(ctx, id)
}

func (c conn) CreateRequest(ctx context.Context, r *vacation.Request) error {
	r.Version = 1
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO requests (`+requestColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.EmployeeID, r.RequesterID, r.TypeCode, string(r.RequestType),
		r.StartDate, r.EndDate, r.ReturnDate, r.NumberOfDays.String(), nullString(r.Comment),
		r.LineManagerID, r.HRRepresentativeID, string(r.Status),
		r.LineManagerDecision, r.HRDecision, r.Rejection, r.Cancellation, r.Registration,
		r.EditCount, nullString(r.LastEditedBy), nullTime(r.LastEditedAt),
		r.ReservedDays.String(), r.UsedDays.String(),
		r.Version, formatTime(r.CreatedAt), formatTime(r.UpdatedAt), nullTime(r.DeletedAt),
	)
	if isUniqueConstraintError(err) {
		return errors.Errorf("request %s already exists", r.ID)
	}
	return errors.Wrap(err, "failed to insert request")
}

func (c conn) UpdateRequest(ctx context.Context, r *vacation.Request) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE requests SET
			type_code = ?, start_date = ?, end_date = ?, return_date = ?, number_of_days = ?,
			comment = ?, line_manager_id = ?, hr_representative_id = ?, status = ?,
			line_manager_decision = ?, hr_decision = ?, rejection = ?, cancellation = ?, registration = ?,
			edit_count = ?, last_edited_by = ?, last_edited_at = ?,
			reserved_days = ?, used_days = ?,
			version = version + 1, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`,
		r.TypeCode, r.StartDate, r.EndDate, r.ReturnDate, r.NumberOfDays.String(),
		nullString(r.Comment), r.LineManagerID, r.HRRepresentativeID, string(r.Status),
		r.LineManagerDecision, r.HRDecision, r.Rejection, r.Cancellation, r.Registration,
		r.EditCount, nullString(r.LastEditedBy), nullTime(r.LastEditedAt),
		r.ReservedDays.String(), r.UsedDays.String(),
		formatTime(r.UpdatedAt), nullTime(r.DeletedAt),
		r.ID, r.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update request")
	}
	if err := c.checkVersioned(ctx, res, "requests", "request", r.ID); err != nil {
		return err
	}
	r.Version++
	return nil
}

func (c conn) ListRequests(ctx context.Context, f vacation.RequestFilter) ([]vacation.Request, error) {
	w := where{}
	w.add("deleted_at IS NULL")
	w.in("employee_id", f.EmployeeIDs)
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	w.in("status", statuses)
	if f.ApproverID != "" {
		w.add(`((status = ? AND line_manager_id = ?) OR (status = ? AND hr_representative_id = ?))`,
			string(vacation.StatusPendingLineManager), f.ApproverID,
			string(vacation.StatusPendingHR), f.ApproverID)
	}
	if f.From != nil {
		w.add("end_date >= ?", f.From.String())
	}
	if f.To != nil {
		w.add("start_date <= ?", f.To.String())
	}
	if f.StartsFrom != nil {
		w.add("start_date >= ?", f.StartsFrom.String())
	}
	if f.StartsTo != nil {
		w.add("start_date <= ?", f.StartsTo.String())
	}

	rows, err := c.q.QueryContext(ctx,
		"SELECT "+requestColumns+" FROM requests"+w.String()+" ORDER BY start_date, id", w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	defer rows.Close()

	var out []vacation.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRequest(row scanner) (*vacation.Request, error) {
	var r vacation.Request
	var requestType, status string
	var comment, lastEditedBy, lastEditedAt, deletedAt sql.NullString
	var lmDecision, hrDecision, rejection, cancellation, registration sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&r.ID, &r.EmployeeID, &r.RequesterID, &r.TypeCode, &requestType,
		&r.StartDate, &r.EndDate, &r.ReturnDate, &r.NumberOfDays, &comment,
		&r.LineManagerID, &r.HRRepresentativeID, &status,
		&lmDecision, &hrDecision, &rejection, &cancellation, &registration,
		&r.EditCount, &lastEditedBy, &lastEditedAt, &r.ReservedDays, &r.UsedDays,
		&r.Version, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	r.RequestType = vacation.RequestType(requestType)
	r.Status = vacation.RequestStatus(status)
	r.Comment = comment.String
	r.LastEditedBy = lastEditedBy.String
	r.LastEditedAt = parseNullTime(lastEditedAt)
	r.CreatedAt = parseTime(createdAt)
	r.UpdatedAt = parseTime(updatedAt)
	r.DeletedAt = parseNullTime(deletedAt)

	for _, d := range []struct {
		src sql.NullString
		dst **vacation.Decision
	}{
		{lmDecision, &r.LineManagerDecision},
		{hrDecision, &r.HRDecision},
		{rejection, &r.Rejection},
		{cancellation, &r.Cancellation},
		{registration, &r.Registration},
	} {
		if *d.dst, err = decodeDecision(d.src); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

const scheduleColumns = `id, employee_id, created_by, type_code,
	start_date, end_date, return_date, number_of_days, comment, status,
	edit_count, last_edited_by, last_edited_at, registration,
	reserved_days, used_days, version, created_at, updated_at, deleted_at`

func (c conn) GetSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules WHERE id = ? AND deleted_at IS NULL", id)
	s, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, vacation.NotFound("schedule", id)
	}
	return s, err
}

func (c conn) LockSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return c.GetSchedule(ctx, id)
}

func (c conn) CreateSchedule(ctx context.Context, s *vacation.Schedule) error {
	s.Version = 1
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		s.ID, s.EmployeeID, s.CreatedBy, s.TypeCode,
		s.StartDate, s.EndDate, s.ReturnDate, s.NumberOfDays.String(), nullString(s.Comment), string(s.Status),
		s.EditCount, nullString(s.LastEditedBy), nullTime(s.LastEditedAt), s.Registration,
		s.ReservedDays.String(), s.UsedDays.String(),
		s.Version, formatTime(s.CreatedAt), formatTime(s.UpdatedAt), nullTime(s.DeletedAt),
	)
	if isUniqueConstraintError(err) {
		return errors.Errorf("schedule %s already exists", s.ID)
	}
	return errors.Wrap(err, "failed to insert schedule")
}

func (c conn) UpdateSchedule(ctx context.Context, s *vacation.Schedule) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE schedules SET
			type_code = ?, start_date = ?, end_date = ?, return_date = ?, number_of_days = ?,
			comment = ?, status = ?, edit_count = ?, last_edited_by = ?, last_edited_at = ?,
			registration = ?, reserved_days = ?, used_days = ?,
			version = version + 1, updated_at = ?, deleted_at = ?
		WHERE id = ? AND version = ? AND deleted_at IS NULL
	`,
		s.TypeCode, s.StartDate, s.EndDate, s.ReturnDate, s.NumberOfDays.String(),
		nullString(s.Comment), string(s.Status), s.EditCount, nullString(s.LastEditedBy), nullTime(s.LastEditedAt),
		s.Registration, s.ReservedDays.String(), s.UsedDays.String(),
		formatTime(s.UpdatedAt), nullTime(s.DeletedAt),
		s.ID, s.Version,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update schedule")
	}
	if err := c.checkVersioned(ctx, res, "schedules", "schedule", s.ID); err != nil {
		return err
	}
	s.Version++
	return nil
}

func (c conn) ListSchedules(ctx context.Context, f vacation.ScheduleFilter) ([]vacation.Schedule, error) {
	w := where{}
	w.add("deleted_at IS NULL")
	w.in("employee_id", f.EmployeeIDs)
	statuses := make([]string, 0, len(f.Statuses))
	for _, st := range f.Statuses {
		statuses = append(statuses, string(st))
	}
	w.in("status", statuses)
	if f.From != nil {
		w.add("end_date >= ?", f.From.String())
	}
	if f.To != nil {
		w.add("start_date <= ?", f.To.String())
	}

	rows, err := c.q.QueryContext(ctx,
		"SELECT "+scheduleColumns+" FROM schedules"+w.String()+" ORDER BY start_date, id", w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	defer rows.Close()

	var out []vacation.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func scanSchedule(row scanner) (*vacation.Schedule, error) {
	var s vacation.Schedule
	var status string
	var comment, lastEditedBy, lastEditedAt, registration, deletedAt sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(
		&s.ID, &s.EmployeeID, &s.CreatedBy, &s.TypeCode,
		&s.StartDate, &s.EndDate, &s.ReturnDate, &s.NumberOfDays, &comment, &status,
		&s.EditCount, &lastEditedBy, &lastEditedAt, &registration,
		&s.ReservedDays, &s.UsedDays, &s.Version, &createdAt, &updatedAt, &deletedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Status = vacation.ScheduleStatus(status)
	s.Comment = comment.String
	s.LastEditedBy = lastEditedBy.String
	s.LastEditedAt = parseNullTime(lastEditedAt)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	s.DeletedAt = parseNullTime(deletedAt)
	if s.Registration, err = decodeDecision(registration); err != nil {
		return nil, err
	}
	return &s, nil
}

// checkVersioned turns a zero-row versioned UPDATE into NotFound or
// ErrConcurrentModification.
func (c conn) checkVersioned(ctx context.Context, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = c.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM "+table+" WHERE id = ? AND deleted_at IS NULL", id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return vacation.NotFound(kind, id)
	}
	return vacation.ErrConcurrentModification
}

// =============================================================================
// BALANCES
// =============================================================================

const balanceColumns = `employee_id, year, start_balance, yearly_balance, used_days, scheduled_days, updated_at`

func (c conn) GetBalance(ctx context.Context, employeeID string, year int) (*vacation.Balance, error) {
	row := c.q.QueryRowContext(ctx,
		"SELECT "+balanceColumns+" FROM balances WHERE employee_id = ? AND year = ?", employeeID, year)
	b, err := scanBalance(row)
	if err == sql.ErrNoRows {
		return nil, vacation.NotFound("balance", employeeID)
	}
	return b, err
}

// LockBalance creates the row with the given yearly allotment when missing.
func (c conn) LockBalance(ctx context.Context, employeeID string, year int, yearly decimal.Decimal) (*vacation.Balance, error) {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO balances (employee_id, year, yearly_balance, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(employee_id, year) DO NOTHING
	`, employeeID, year, yearly.String(), formatTime(time.Time{}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create balance")
	}
	return c.GetBalance(ctx, employeeID, year)
}

func (c conn) SaveBalance(ctx context.Context, b *vacation.Balance) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO balances (`+balanceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year) DO UPDATE SET
			start_balance = excluded.start_balance,
			yearly_balance = excluded.yearly_balance,
			used_days = excluded.used_days,
			scheduled_days = excluded.scheduled_days,
			updated_at = excluded.updated_at
	`,
		b.EmployeeID(), b.Year(),
		b.StartBalance().String(), b.YearlyBalance().String(),
		b.UsedDays().String(), b.ScheduledDays().String(),
		formatTime(b.UpdatedAt()),
	)
	return errors.Wrap(err, "failed to save balance")
}

func scanBalance(row scanner) (*vacation.Balance, error) {
	var employeeID, updatedAt string
	var year int
	var start, yearly, used, scheduled decimal.Decimal
	if err := row.Scan(&employeeID, &year, &start, &yearly, &used, &scheduled, &updatedAt); err != nil {
		return nil, err
	}
	return vacation.RestoreBalance(employeeID, year, start, yearly, used, scheduled, parseTime(updatedAt)), nil
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (c conn) AppendActivity(ctx context.Context, a vacation.Activity) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO activities (id, subject, subject_id, type, description, actor_id, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		a.ID, string(a.Subject), a.SubjectID, string(a.Type), a.Description,
		nullString(a.ActorID), a.Metadata, formatTime(a.CreatedAt),
	)
	return errors.Wrap(err, "failed to append activity")
}

func (c conn) ListActivities(ctx context.Context, subjectID string) ([]vacation.Activity, error) {
	rows, err := c.q.QueryContext(ctx, `
		SELECT id, subject, subject_id, type, description, actor_id, metadata_json, created_at
		FROM activities WHERE subject_id = ?
		ORDER BY created_at, rowid
	`, subjectID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list activities")
	}
	defer rows.Close()

	var out []vacation.Activity
	for rows.Next() {
		var a vacation.Activity
		var subject, typ, createdAt string
		var actor sql.NullString
		if err := rows.Scan(&a.ID, &subject, &a.SubjectID, &typ, &a.Description, &actor, &a.Metadata, &createdAt); err != nil {
			return nil, err
		}
		a.Subject = vacation.SubjectKind(subject)
		a.Type = vacation.ActivityType(typ)
		a.ActorID = actor.String
		a.CreatedAt = parseTime(createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// VACATION TYPES
// =============================================================================

const typeColumns = `code, name, requires_approval, affects_balance, max_consecutive_days, color, active, deleted_at`

// GetVacationType returns the type even when inactive or deleted; existing
// requests keep referencing it.
func (c conn) GetVacationType(ctx context.Context, code string) (*vacation.VacationType, error) {
	row := c.q.QueryRowContext(ctx, "SELECT "+typeColumns+" FROM vacation_types WHERE code = ?", code)
	vt, err := scanVacationType(row)
	if err == sql.ErrNoRows {
		return nil, vacation.NotFound("vacation type", code)
	}
	return vt, err
}

func scanVacationType(row scanner) (*vacation.VacationType, error) {
	var vt vacation.VacationType
	var maxDays sql.NullInt64
	var color, deletedAt sql.NullString
	if err := row.Scan(&vt.Code, &vt.Name, &vt.RequiresApproval, &vt.AffectsBalance,
		&maxDays, &color, &vt.Active, &deletedAt); err != nil {
		return nil, err
	}
	if maxDays.Valid {
		n := int(maxDays.Int64)
		vt.MaxConsecutiveDays = &n
	}
	vt.Color = color.String
	vt.DeletedAt = parseNullTime(deletedAt)
	return &vt, nil
}

// SaveVacationType inserts or replaces a type by code.
func (s *Store) SaveVacationType(ctx context.Context, vt vacation.VacationType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var maxDays sql.NullInt64
	if vt.MaxConsecutiveDays != nil {
		maxDays = sql.NullInt64{Int64: int64(*vt.MaxConsecutiveDays), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vacation_types (`+typeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name = excluded.name,
			requires_approval = excluded.requires_approval,
			affects_balance = excluded.affects_balance,
			max_consecutive_days = excluded.max_consecutive_days,
			color = excluded.color,
			active = excluded.active,
			deleted_at = excluded.deleted_at
	`,
		vt.Code, vt.Name, vt.RequiresApproval, vt.AffectsBalance,
		maxDays, nullString(vt.Color), vt.Active, nullTime(vt.DeletedAt),
	)
	return errors.Wrap(err, "failed to save vacation type")
}

// ListVacationTypes returns non-deleted types ordered by code.
func (s *Store) ListVacationTypes(ctx context.Context) ([]vacation.VacationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+typeColumns+" FROM vacation_types WHERE deleted_at IS NULL ORDER BY code")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list vacation types")
	}
	defer rows.Close()

	var out []vacation.VacationType
	for rows.Next() {
		vt, err := scanVacationType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *vt)
	}
	return out, rows.Err()
}

// =============================================================================
// EMPLOYEE STORE (vacation.Directory)
// =============================================================================

const employeeColumns = `id, name, email, department_id, line_manager_id, is_hr, active`

// SaveEmployee inserts or updates an employee.
func (s *Store) SaveEmployee(ctx context.Context, emp vacation.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO employees (` + employeeColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			department_id = excluded.department_id,
			line_manager_id = excluded.line_manager_id,
			is_hr = excluded.is_hr,
			active = excluded.active
	`
	_, err := s.db.ExecContext(ctx, query,
		emp.ID, emp.Name, nullString(emp.Email), nullString(emp.DepartmentID),
		nullString(emp.LineManagerID), emp.IsHR, emp.Active,
	)
	return errors.Wrap(err, "failed to save employee")
}

// GetEmployee retrieves an employee by ID.
func (s *Store) GetEmployee(ctx context.Context, id string) (*vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, "SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	emp, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, vacation.NotFound("employee", id)
	}
	return emp, err
}

// ListActiveEmployees returns active employees ordered by id.
func (s *Store) ListActiveEmployees(ctx context.Context) ([]vacation.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE active ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "failed to list employees")
	}
	defer rows.Close()

	var out []vacation.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *emp)
	}
	return out, rows.Err()
}

func scanEmployee(row scanner) (*vacation.Employee, error) {
	var emp vacation.Employee
	var email, department, manager sql.NullString
	if err := row.Scan(&emp.ID, &emp.Name, &email, &department, &manager, &emp.IsHR, &emp.Active); err != nil {
		return nil, err
	}
	emp.Email = email.String
	emp.DepartmentID = department.String
	emp.LineManagerID = manager.String
	return &emp, nil
}

// =============================================================================
// SETTINGS (vacation.SettingsSource)
// =============================================================================

// SaveSettings stores s and makes it the only active row.
func (s *Store) SaveSettings(ctx context.Context, settings vacation.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings.ID == "" {
		settings.ID = "default"
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	dates, err := json.Marshal(settings.NonWorkingDates)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "UPDATE settings SET active = FALSE WHERE id <> ?", settings.ID); err != nil {
		return errors.Wrap(err, "failed to deactivate settings")
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO settings (id, non_working_dates, default_hr_approver_id, allow_negative_balance,
			max_schedule_edits, notification_lead_days, default_yearly_days, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, TRUE, ?)
		ON CONFLICT(id) DO UPDATE SET
			non_working_dates = excluded.non_working_dates,
			default_hr_approver_id = excluded.default_hr_approver_id,
			allow_negative_balance = excluded.allow_negative_balance,
			max_schedule_edits = excluded.max_schedule_edits,
			notification_lead_days = excluded.notification_lead_days,
			default_yearly_days = excluded.default_yearly_days,
			active = TRUE,
			updated_at = excluded.updated_at
	`,
		settings.ID, string(dates), nullString(settings.DefaultHRApproverID), settings.AllowNegativeBalance,
		settings.MaxScheduleEdits, settings.NotificationLeadDays, settings.DefaultYearlyDays.String(),
		formatTime(settings.UpdatedAt),
	)
	if err != nil {
		return errors.Wrap(err, "failed to save settings")
	}
	return tx.Commit()
}

// ActiveSettings returns the active settings row, or NotFound.
func (s *Store) ActiveSettings(ctx context.Context) (vacation.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out vacation.Settings
	var dates, updatedAt string
	var hr sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, non_working_dates, default_hr_approver_id, allow_negative_balance,
			max_schedule_edits, notification_lead_days, default_yearly_days, active, updated_at
		FROM settings WHERE active LIMIT 1
	`).Scan(&out.ID, &dates, &hr, &out.AllowNegativeBalance,
		&out.MaxScheduleEdits, &out.NotificationLeadDays, &out.DefaultYearlyDays, &out.Active, &updatedAt)
	if err == sql.ErrNoRows {
		return vacation.Settings{}, vacation.NotFound("settings", "active")
	}
	if err != nil {
		return vacation.Settings{}, errors.Wrap(err, "failed to load settings")
	}
	if err := json.Unmarshal([]byte(dates), &out.NonWorkingDates); err != nil {
		return vacation.Settings{}, errors.Wrap(err, "failed to decode non-working dates")
	}
	out.DefaultHRApproverID = hr.String
	out.UpdatedAt = parseTime(updatedAt)
	return out, nil
}

// =============================================================================
// LOCKED READS AND WRITES OUTSIDE WithTx
// =============================================================================

func (s *Store) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetRequest(ctx, id)
}

func (s *Store) LockRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return s.GetRequest(ctx, id)
}

func (s *Store) CreateRequest(ctx context.Context, r *vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateRequest(ctx, r)
}

func (s *Store) UpdateRequest(ctx context.Context, r *vacation.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateRequest(ctx, r)
}

func (s *Store) ListRequests(ctx context.Context, f vacation.RequestFilter) ([]vacation.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListRequests(ctx, f)
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetSchedule(ctx, id)
}

func (s *Store) LockSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return s.GetSchedule(ctx, id)
}

func (s *Store) CreateSchedule(ctx context.Context, sc *vacation.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().CreateSchedule(ctx, sc)
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *vacation.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().UpdateSchedule(ctx, sc)
}

func (s *Store) ListSchedules(ctx context.Context, f vacation.ScheduleFilter) ([]vacation.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListSchedules(ctx, f)
}

func (s *Store) GetBalance(ctx context.Context, employeeID string, year int) (*vacation.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetBalance(ctx, employeeID, year)
}

func (s *Store) LockBalance(ctx context.Context, employeeID string, year int, yearly decimal.Decimal) (*vacation.Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().LockBalance(ctx, employeeID, year, yearly)
}

func (s *Store) SaveBalance(ctx context.Context, b *vacation.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().SaveBalance(ctx, b)
}

func (s *Store) AppendActivity(ctx context.Context, a vacation.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().AppendActivity(ctx, a)
}

func (s *Store) ListActivities(ctx context.Context, subjectID string) ([]vacation.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().ListActivities(ctx, subjectID)
}

func (s *Store) GetVacationType(ctx context.Context, code string) (*vacation.VacationType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.read().GetVacationType(ctx, code)
}

// Reset clears all data. Use with caution!
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"activities", "requests", "schedules", "balances", "vacation_types", "employees", "settings"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.Wrapf(err, "failed to clear %s", table)
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// where accumulates AND-ed clauses and their arguments.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	w.clauses = append(w.clauses, clause)
	w.args = append(w.args, args...)
}

func (w *where) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	w.clauses = append(w.clauses, column+" IN ("+marks+")")
	for _, v := range values {
		w.args = append(w.args, v)
	}
}

func (w where) String() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func decodeDecision(ns sql.NullString) (*vacation.Decision, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var d vacation.Decision
	if err := d.Scan(ns.String); err != nil {
		return nil, errors.Wrap(err, "failed to decode decision")
	}
	return &d, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
