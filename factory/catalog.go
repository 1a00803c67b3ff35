/*
Package factory provides JSON to Go conversion for the vacation catalog.

PURPOSE:
  Converts JSON definitions of vacation types, settings and employees into
  vacation structs. HR configures leave types and the working calendar in
  JSON (seed file, admin endpoint) and the factory validates and fills in
  defaults.

JSON SCHEMA:
  {
    "settings": {
      "non_working_dates": ["2025-12-25", "2026-01-01"],
      "default_hr_approver_id": "hr-1",
      "allow_negative_balance": false,
      "max_schedule_edits": 3,
      "notification_lead_days": 7,
      "default_yearly_days": 20
    },
    "vacation_types": [
      {"code": "ANNUAL", "name": "Annual leave", "requires_approval": true, "affects_balance": true},
      {"code": "SICK", "name": "Sick leave", "requires_approval": false, "affects_balance": false},
      {"code": "STUDY", "name": "Study leave", "max_consecutive_days": 10}
    ],
    "employees": [
      {"id": "emp-1", "name": "Ana", "department_id": "eng", "line_manager_id": "mgr-1"}
    ]
  }

DEFAULTS:
  - requires_approval, affects_balance and active default to true
  - settings fields left out take DefaultSettings values
  - employees default to active

USAGE:
  f := factory.NewCatalogFactory()
  catalog, err := f.ParseCatalog(jsonString)
  if err != nil {
      return err // wraps ErrInvalidCatalog
  }
  err = f.Apply(ctx, store, catalog)

SEE ALSO:
  - vacation/settings.go: Settings, VacationType, Employee
  - cmd/server/main.go: seeds the store from a catalog file
*/
package factory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// ErrInvalidCatalog is returned for malformed or inconsistent definitions.
var ErrInvalidCatalog = errors.New("invalid catalog")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// CatalogJSON is the JSON representation of a full catalog.
type CatalogJSON struct {
	Settings      *SettingsJSON      `json:"settings,omitempty"`
	VacationTypes []VacationTypeJSON `json:"vacation_types,omitempty"`
	Employees     []EmployeeJSON     `json:"employees,omitempty"`
}

// SettingsJSON represents the settings block. Nil fields keep their default.
type SettingsJSON struct {
	NonWorkingDates      []string `json:"non_working_dates,omitempty"`
	DefaultHRApproverID  string   `json:"default_hr_approver_id,omitempty"`
	AllowNegativeBalance bool     `json:"allow_negative_balance,omitempty"`
	MaxScheduleEdits     *int     `json:"max_schedule_edits,omitempty"`
	NotificationLeadDays *int     `json:"notification_lead_days,omitempty"`
	DefaultYearlyDays    *float64 `json:"default_yearly_days,omitempty"`
}

// VacationTypeJSON represents one vacation type.
type VacationTypeJSON struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	RequiresApproval   *bool  `json:"requires_approval,omitempty"`
	AffectsBalance     *bool  `json:"affects_balance,omitempty"`
	MaxConsecutiveDays *int   `json:"max_consecutive_days,omitempty"`
	Color              string `json:"color,omitempty"`
	Active             *bool  `json:"active,omitempty"`
}

// EmployeeJSON represents one directory entry.
type EmployeeJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email,omitempty"`
	DepartmentID  string `json:"department_id,omitempty"`
	LineManagerID string `json:"line_manager_id,omitempty"`
	IsHR          bool   `json:"is_hr,omitempty"`
	Active        *bool  `json:"active,omitempty"`
}

// Catalog is the parsed, validated result.
type Catalog struct {
	Settings      *vacation.Settings
	VacationTypes []vacation.VacationType
	Employees     []vacation.Employee
}

// =============================================================================
// CATALOG FACTORY
// =============================================================================

// CatalogFactory converts JSON catalogs to vacation structs.
type CatalogFactory struct{}

// NewCatalogFactory creates a new catalog factory.
func NewCatalogFactory() *CatalogFactory {
	return &CatalogFactory{}
}

// ParseCatalog parses a JSON string into a Catalog.
func (f *CatalogFactory) ParseCatalog(jsonStr string) (*Catalog, error) {
	var cj CatalogJSON
	if err := json.Unmarshal([]byte(jsonStr), &cj); err != nil {
		return nil, errors.Wrapf(ErrInvalidCatalog, "failed to parse catalog JSON: %v", err)
	}
	return f.FromJSON(cj)
}

// FromJSON validates cj and converts it.
func (f *CatalogFactory) FromJSON(cj CatalogJSON) (*Catalog, error) {
	c := &Catalog{}

	if cj.Settings != nil {
		s, err := f.Settings(*cj.Settings)
		if err != nil {
			return nil, err
		}
		c.Settings = &s
	}

	seen := map[string]bool{}
	for _, tj := range cj.VacationTypes {
		vt, err := f.VacationType(tj)
		if err != nil {
			return nil, err
		}
		if seen[vt.Code] {
			return nil, errors.Wrapf(ErrInvalidCatalog, "duplicate vacation type %s", vt.Code)
		}
		seen[vt.Code] = true
		c.VacationTypes = append(c.VacationTypes, vt)
	}

	ids := map[string]bool{}
	for _, ej := range cj.Employees {
		if ej.ID == "" {
			return nil, errors.Wrap(ErrInvalidCatalog, "employee id is required")
		}
		if ids[ej.ID] {
			return nil, errors.Wrapf(ErrInvalidCatalog, "duplicate employee %s", ej.ID)
		}
		if ej.LineManagerID == ej.ID {
			return nil, errors.Wrapf(ErrInvalidCatalog, "employee %s cannot manage themselves", ej.ID)
		}
		ids[ej.ID] = true
		c.Employees = append(c.Employees, vacation.Employee{
			ID:            ej.ID,
			Name:          ej.Name,
			Email:         ej.Email,
			DepartmentID:  ej.DepartmentID,
			LineManagerID: ej.LineManagerID,
			IsHR:          ej.IsHR,
			Active:        boolOr(ej.Active, true),
		})
	}

	return c, nil
}

// Settings converts a settings block, starting from DefaultSettings.
func (f *CatalogFactory) Settings(sj SettingsJSON) (vacation.Settings, error) {
	s := vacation.DefaultSettings()

	dates := make([]string, 0, len(sj.NonWorkingDates))
	unique := map[string]bool{}
	for _, raw := range sj.NonWorkingDates {
		d, err := vacation.ParseDate(strings.TrimSpace(raw))
		if err != nil {
			return vacation.Settings{}, errors.Wrapf(ErrInvalidCatalog, "non-working date %q", raw)
		}
		if !unique[d.String()] {
			unique[d.String()] = true
			dates = append(dates, d.String())
		}
	}
	sort.Strings(dates)
	s.NonWorkingDates = dates

	s.DefaultHRApproverID = sj.DefaultHRApproverID
	s.AllowNegativeBalance = sj.AllowNegativeBalance
	if sj.MaxScheduleEdits != nil {
		if *sj.MaxScheduleEdits < 0 {
			return vacation.Settings{}, errors.Wrap(ErrInvalidCatalog, "max_schedule_edits must not be negative")
		}
		s.MaxScheduleEdits = *sj.MaxScheduleEdits
	}
	if sj.NotificationLeadDays != nil {
		if *sj.NotificationLeadDays < 0 {
			return vacation.Settings{}, errors.Wrap(ErrInvalidCatalog, "notification_lead_days must not be negative")
		}
		s.NotificationLeadDays = *sj.NotificationLeadDays
	}
	if sj.DefaultYearlyDays != nil {
		if *sj.DefaultYearlyDays < 0 {
			return vacation.Settings{}, errors.Wrap(ErrInvalidCatalog, "default_yearly_days must not be negative")
		}
		s.DefaultYearlyDays = decimal.NewFromFloat(*sj.DefaultYearlyDays)
	}
	return s, nil
}

// VacationType converts one type definition.
func (f *CatalogFactory) VacationType(tj VacationTypeJSON) (vacation.VacationType, error) {
	code := strings.ToUpper(strings.TrimSpace(tj.Code))
	if code == "" {
		return vacation.VacationType{}, errors.Wrap(ErrInvalidCatalog, "vacation type code is required")
	}
	if tj.MaxConsecutiveDays != nil && *tj.MaxConsecutiveDays < 1 {
		return vacation.VacationType{}, errors.Wrapf(ErrInvalidCatalog, "vacation type %s: max_consecutive_days must be at least 1", code)
	}
	name := tj.Name
	if name == "" {
		name = code
	}
	return vacation.VacationType{
		Code:               code,
		Name:               name,
		RequiresApproval:   boolOr(tj.RequiresApproval, true),
		AffectsBalance:     boolOr(tj.AffectsBalance, true),
		MaxConsecutiveDays: tj.MaxConsecutiveDays,
		Color:              tj.Color,
		Active:             boolOr(tj.Active, true),
	}, nil
}

// ToJSON converts settings and types back to their JSON form.
func (f *CatalogFactory) ToJSON(settings vacation.Settings, types []vacation.VacationType) CatalogJSON {
	yearly, _ := settings.DefaultYearlyDays.Float64()
	maxEdits := settings.MaxScheduleEdits
	lead := settings.NotificationLeadDays
	cj := CatalogJSON{
		Settings: &SettingsJSON{
			NonWorkingDates:      settings.NonWorkingDates,
			DefaultHRApproverID:  settings.DefaultHRApproverID,
			AllowNegativeBalance: settings.AllowNegativeBalance,
			MaxScheduleEdits:     &maxEdits,
			NotificationLeadDays: &lead,
			DefaultYearlyDays:    &yearly,
		},
	}
	for _, vt := range types {
		requires, affects, active := vt.RequiresApproval, vt.AffectsBalance, vt.Active
		cj.VacationTypes = append(cj.VacationTypes, VacationTypeJSON{
			Code:               vt.Code,
			Name:               vt.Name,
			RequiresApproval:   &requires,
			AffectsBalance:     &affects,
			MaxConsecutiveDays: vt.MaxConsecutiveDays,
			Color:              vt.Color,
			Active:             &active,
		})
	}
	return cj
}

// =============================================================================
// APPLY
// =============================================================================

// CatalogStore is implemented by store/sqlite, store/postgres and the memory store.
type CatalogStore interface {
	SaveSettings(ctx context.Context, s vacation.Settings) error
	SaveVacationType(ctx context.Context, vt vacation.VacationType) error
	SaveEmployee(ctx context.Context, e vacation.Employee) error
}

// Apply writes every part of c present in the catalog.
func (f *CatalogFactory) Apply(ctx context.Context, store CatalogStore, c *Catalog) error {
	if c.Settings != nil {
		if err := store.SaveSettings(ctx, *c.Settings); err != nil {
			return errors.Wrap(err, "save settings")
		}
	}
	for _, vt := range c.VacationTypes {
		if err := store.SaveVacationType(ctx, vt); err != nil {
			return errors.Wrapf(err, "save vacation type %s", vt.Code)
		}
	}
	for _, e := range c.Employees {
		if err := store.SaveEmployee(ctx, e); err != nil {
			return errors.Wrapf(err, "save employee %s", e.ID)
		}
	}
	return nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// =============================================================================
// PRESETS
// =============================================================================

// DefaultCatalogJSON is the catalog seeded into an empty database.
const DefaultCatalogJSON = `{
  "settings": {
    "max_schedule_edits": 3,
    "notification_lead_days": 7,
    "default_yearly_days": 20
  },
  "vacation_types": [
    {"code": "ANNUAL", "name": "Annual leave", "color": "#2E86DE"},
    {"code": "SICK", "name": "Sick leave", "requires_approval": false, "affects_balance": false, "color": "#E74C3C"},
    {"code": "UNPAID", "name": "Unpaid leave", "affects_balance": false, "color": "#95A5A6"}
  ]
}`
