/*
Package postgres provides a gorm/PostgreSQL implementation of the vacation storage port.

PURPOSE:
  Production backend for multi-instance deployments. Lock* methods take
  row locks (SELECT ... FOR UPDATE) so concurrent commands on the same
  request, schedule or ledger row serialize inside the database.

INTERFACES IMPLEMENTED:
  vacation.TxStore, vacation.Directory, vacation.SettingsSource

USAGE:
  store, err := postgres.New(cfg.Database.DSN(), true)
  if err != nil {
      log.Fatal(err)
  }
  engine := vacation.NewEngine(store, vacation.Options{Directory: store, Settings: store})

SEE ALSO:
  - store/sqlite: single-node backend with the same behaviour
*/
package postgres

import (
	"context"
	"time"

	gorm_logrus "github.com/onrik/gorm-logrus"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements the vacation storage interfaces on top of gorm.
type Store struct {
	db *gorm.DB
}

// New connects to PostgreSQL and optionally migrates the schema.
func New(dsn string, migrate bool) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gorm_logrus.New(),
		TranslateError: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}
	s := NewFromDB(db)
	if migrate {
		if err := s.Migrate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// NewFromDB wraps an existing gorm handle.
func NewFromDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates every table.
func (s *Store) Migrate() error {
	models := []interface{}{
		&settingsModel{},
		&vacationTypeModel{},
		&employeeModel{},
		&balanceModel{},
		&requestModel{},
		&scheduleModel{},
		&activityModel{},
	}
	for _, m := range models {
		if err := s.db.AutoMigrate(m); err != nil {
			return errors.Wrapf(err, "failed to migrate %T", m)
		}
	}
	return nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx runs fn inside a gorm transaction.
func (s *Store) WithTx(ctx context.Context, fn func(vacation.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

func (s *Store) q(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

func (s *Store) forUpdate(ctx context.Context) *gorm.DB {
	return s.q(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

func notFound(err error, kind, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return vacation.NotFound(kind, id)
	}
	return err
}

// =============================================================================
// REQUESTS
// =============================================================================

func (s *Store) GetRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return s.findRequest(s.q(ctx), id)
}

func (s *Store) LockRequest(ctx context.Context, id string) (*vacation.Request, error) {
	return s.findRequest(s.forUpdate(ctx), id)
}

func (s *Store) findRequest(db *gorm.DB, id string) (*vacation.Request, error) {
	var m requestModel
	err := db.Where("id = ? AND deleted_at IS NULL", id).First(&m).Error
	if err != nil {
		return nil, notFound(err, "request", id)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateRequest(ctx context.Context, r *vacation.Request) error {
	r.Version = 1
	m := requestToModel(r)
	err := s.q(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Errorf("request %s already exists", r.ID)
	}
	return errors.Wrap(err, "failed to insert request")
}

func (s *Store) UpdateRequest(ctx context.Context, r *vacation.Request) error {
	m := requestToModel(r)
	m.Version = r.Version + 1
	res := s.q(ctx).Model(&requestModel{}).
		Where("id = ? AND version = ? AND deleted_at IS NULL", r.ID, r.Version).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update request")
	}
	if res.RowsAffected == 0 {
		return s.versionConflict(ctx, &requestModel{}, "request", r.ID)
	}
	r.Version++
	return nil
}

func (s *Store) ListRequests(ctx context.Context, f vacation.RequestFilter) ([]vacation.Request, error) {
	db := s.q(ctx).Where("deleted_at IS NULL")
	if len(f.EmployeeIDs) > 0 {
		db = db.Where("employee_id IN ?", f.EmployeeIDs)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		db = db.Where("status IN ?", statuses)
	}
	if f.ApproverID != "" {
		db = db.Where("((status = ? AND line_manager_id = ?) OR (status = ? AND hr_representative_id = ?))",
			string(vacation.StatusPendingLineManager), f.ApproverID,
			string(vacation.StatusPendingHR), f.ApproverID)
	}
	if f.From != nil {
		db = db.Where("end_date >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("start_date <= ?", *f.To)
	}
	if f.StartsFrom != nil {
		db = db.Where("start_date >= ?", *f.StartsFrom)
	}
	if f.StartsTo != nil {
		db = db.Where("start_date <= ?", *f.StartsTo)
	}

	var rows []requestModel
	if err := db.Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list requests")
	}
	out := make([]vacation.Request, 0, len(rows))
	for _, m := range rows {
		out = append(out, *m.toDomain())
	}
	return out, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

func (s *Store) GetSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return s.findSchedule(s.q(ctx), id)
}

func (s *Store) LockSchedule(ctx context.Context, id string) (*vacation.Schedule, error) {
	return s.findSchedule(s.forUpdate(ctx), id)
}

func (s *Store) findSchedule(db *gorm.DB, id string) (*vacation.Schedule, error) {
	var m scheduleModel
	err := db.Where("id = ? AND deleted_at IS NULL", id).First(&m).Error
	if err != nil {
		return nil, notFound(err, "schedule", id)
	}
	return m.toDomain(), nil
}

func (s *Store) CreateSchedule(ctx context.Context, sc *vacation.Schedule) error {
	sc.Version = 1
	m := scheduleToModel(sc)
	err := s.q(ctx).Create(&m).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errors.Errorf("schedule %s already exists", sc.ID)
	}
	return errors.Wrap(err, "failed to insert schedule")
}

func (s *Store) UpdateSchedule(ctx context.Context, sc *vacation.Schedule) error {
	m := scheduleToModel(sc)
	m.Version = sc.Version + 1
	res := s.q(ctx).Model(&scheduleModel{}).
		Where("id = ? AND version = ? AND deleted_at IS NULL", sc.ID, sc.Version).
		Select("*").Omit("id", "created_at").
		Updates(&m)
	if res.Error != nil {
		return errors.Wrap(res.Error, "failed to update schedule")
	}
	if res.RowsAffected == 0 {
		return s.versionConflict(ctx, &scheduleModel{}, "schedule", sc.ID)
	}
	sc.Version++
	return nil
}

func (s *Store) ListSchedules(ctx context.Context, f vacation.ScheduleFilter) ([]vacation.Schedule, error) {
	db := s.q(ctx).Where("deleted_at IS NULL")
	if len(f.EmployeeIDs) > 0 {
		db = db.Where("employee_id IN ?", f.EmployeeIDs)
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			statuses = append(statuses, string(st))
		}
		db = db.Where("status IN ?", statuses)
	}
	if f.From != nil {
		db = db.Where("end_date >= ?", *f.From)
	}
	if f.To != nil {
		db = db.Where("start_date <= ?", *f.To)
	}

	var rows []scheduleModel
	if err := db.Order("start_date, id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list schedules")
	}
	out := make([]vacation.Schedule, 0, len(rows))
	for _, m := range rows {
		out = append(out, *m.toDomain())
	}
	return out, nil
}

// versionConflict explains a zero-row versioned update.
func (s *Store) versionConflict(ctx context.Context, model interface{}, kind, id string) error {
	var n int64
	err := s.q(ctx).Model(model).Where("id = ? AND deleted_at IS NULL", id).Count(&n).Error
	if err != nil {
		return err
	}
	if n == 0 {
		return vacation.NotFound(kind, id)
	}
	return vacation.ErrConcurrentModification
}

// =============================================================================
// BALANCES
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, employeeID string, year int) (*vacation.Balance, error) {
	var m balanceModel
	err := s.q(ctx).Where("employee_id = ? AND year = ?", employeeID, year).First(&m).Error
	if err != nil {
		return nil, notFound(err, "balance", employeeID)
	}
	return m.toDomain(), nil
}

func (s *Store) LockBalance(ctx context.Context, employeeID string, year int, yearly decimal.Decimal) (*vacation.Balance, error) {
	seed := balanceModel{EmployeeID: employeeID, Year: year, YearlyBalance: yearly}
	if err := s.q(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create balance")
	}
	var m balanceModel
	err := s.forUpdate(ctx).Where("employee_id = ? AND year = ?", employeeID, year).First(&m).Error
	if err != nil {
		return nil, notFound(err, "balance", employeeID)
	}
	return m.toDomain(), nil
}

func (s *Store) SaveBalance(ctx context.Context, b *vacation.Balance) error {
	m := balanceToModel(b)
	err := s.q(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	return errors.Wrap(err, "failed to save balance")
}

// =============================================================================
// ACTIVITIES
// =============================================================================

func (s *Store) AppendActivity(ctx context.Context, a vacation.Activity) error {
	m := activityModel{
		ID:          a.ID,
		Subject:     string(a.Subject),
		SubjectID:   a.SubjectID,
		Type:        string(a.Type),
		Description: a.Description,
		ActorID:     a.ActorID,
		Metadata:    a.Metadata,
		CreatedAt:   a.CreatedAt,
	}
	return errors.Wrap(s.q(ctx).Create(&m).Error, "failed to append activity")
}

func (s *Store) ListActivities(ctx context.Context, subjectID string) ([]vacation.Activity, error) {
	var rows []activityModel
	err := s.q(ctx).Where("subject_id = ?", subjectID).Order("created_at, seq").Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to list activities")
	}
	out := make([]vacation.Activity, 0, len(rows))
	for _, m := range rows {
		out = append(out, m.toDomain())
	}
	return out, nil
}

// =============================================================================
// VACATION TYPES
// =============================================================================

func (s *Store) GetVacationType(ctx context.Context, code string) (*vacation.VacationType, error) {
	var m vacationTypeModel
	if err := s.q(ctx).Where("code = ?", code).First(&m).Error; err != nil {
		return nil, notFound(err, "vacation type", code)
	}
	vt := vacation.VacationType(m)
	return &vt, nil
}

func (s *Store) SaveVacationType(ctx context.Context, vt vacation.VacationType) error {
	m := vacationTypeModel(vt)
	err := s.q(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	return errors.Wrap(err, "failed to save vacation type")
}

func (s *Store) ListVacationTypes(ctx context.Context) ([]vacation.VacationType, error) {
	var rows []vacationTypeModel
	if err := s.q(ctx).Where("deleted_at IS NULL").Order("code").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list vacation types")
	}
	out := make([]vacation.VacationType, 0, len(rows))
	for _, m := range rows {
		out = append(out, vacation.VacationType(m))
	}
	return out, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) SaveEmployee(ctx context.Context, emp vacation.Employee) error {
	m := employeeModel(emp)
	err := s.q(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
	return errors.Wrap(err, "failed to save employee")
}

func (s *Store) GetEmployee(ctx context.Context, id string) (*vacation.Employee, error) {
	var m employeeModel
	if err := s.q(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "employee", id)
	}
	emp := vacation.Employee(m)
	return &emp, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]vacation.Employee, error) {
	var rows []employeeModel
	if err := s.q(ctx).Where("active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list employees")
	}
	out := make([]vacation.Employee, 0, len(rows))
	for _, m := range rows {
		out = append(out, vacation.Employee(m))
	}
	return out, nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// SaveSettings stores settings and makes it the only active row.
func (s *Store) SaveSettings(ctx context.Context, settings vacation.Settings) error {
	if settings.ID == "" {
		settings.ID = "default"
	}
	if settings.UpdatedAt.IsZero() {
		settings.UpdatedAt = time.Now().UTC()
	}
	m := settingsModel{
		ID:                   settings.ID,
		NonWorkingDates:      settings.NonWorkingDates,
		DefaultHRApproverID:  settings.DefaultHRApproverID,
		AllowNegativeBalance: settings.AllowNegativeBalance,
		MaxScheduleEdits:     settings.MaxScheduleEdits,
		NotificationLeadDays: settings.NotificationLeadDays,
		DefaultYearlyDays:    settings.DefaultYearlyDays,
		Active:               true,
		UpdatedAt:            settings.UpdatedAt,
	}
	return s.q(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&settingsModel{}).Where("id <> ?", m.ID).Update("active", false).Error; err != nil {
			return errors.Wrap(err, "failed to deactivate settings")
		}
		err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
		return errors.Wrap(err, "failed to save settings")
	})
}

func (s *Store) ActiveSettings(ctx context.Context) (vacation.Settings, error) {
	var m settingsModel
	if err := s.q(ctx).Where("active = ?", true).First(&m).Error; err != nil {
		return vacation.Settings{}, notFound(err, "settings", "active")
	}
	return m.toDomain(), nil
}

// Reset truncates every table. Tests only.
func (s *Store) Reset(ctx context.Context) error {
	return s.q(ctx).Exec(`TRUNCATE vacation_activities, vacation_requests, vacation_schedules,
		vacation_balances, vacation_types, vacation_employees, vacation_settings`).Error
}
