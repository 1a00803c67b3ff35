/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:
	Provides pre-built scenarios that populate the database with a small
	department and vacation activity in various lifecycle stages. Every
	scenario runs through the engine, so balances, activities and intents
	are exactly what real traffic would produce.

AVAILABLE SCENARIOS:
	small-team:      Requests pending on the line manager and on HR
	approval-chain:  One request walked through every approval step
	year-planning:   Forward-planned schedules, one registered
	overlap:         Teammates with overlapping leave (conflict detection)

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Apply the default catalog plus the demo team
 3. Drive requests and schedules through the engine

Dates are relative to the handler clock, so IMMEDIATE requests never start
in the past.

USAGE VIA API:
	POST /api/scenarios/load
	{"scenario_id": "small-team"}

NOTE:
	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler, writeJSON
  - factory/catalog.go: DefaultCatalogJSON
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/factory"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Requests waiting on the line manager and on HR",
	},
	{
		ID:          "approval-chain",
		Name:        "Approval Chain",
		Description: "A request approved by the line manager and HR, then completed",
	},
	{
		ID:          "year-planning",
		Name:        "Year Planning",
		Description: "Scheduled vacations reserving balance, one already registered",
	},
	{
		ID:          "overlap",
		Name:        "Overlapping Leave",
		Description: "Teammates off in the same week",
	},
}

// demoTeamJSON is one engineering department with a manager and an HR rep.
const demoTeamJSON = `{
  "settings": {
    "default_hr_approver_id": "hr-olga",
    "max_schedule_edits": 3,
    "notification_lead_days": 14,
    "default_yearly_days": 24
  },
  "employees": [
    {"id": "hr-olga",   "name": "Olga Petrova",  "department_id": "people", "is_hr": true},
    {"id": "mgr-ivan",  "name": "Ivan Sokolov",  "department_id": "eng"},
    {"id": "emp-anna",  "name": "Anna Belova",   "department_id": "eng", "line_manager_id": "mgr-ivan"},
    {"id": "emp-boris", "name": "Boris Orlov",   "department_id": "eng", "line_manager_id": "mgr-ivan"},
    {"id": "emp-vera",  "name": "Vera Lebedeva", "department_id": "eng", "line_manager_id": "mgr-ivan"}
  ]
}`

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !decodeBody(w, r, &req) {
		return
	}

	loaders := map[string]func(context.Context) error{
		"small-team":     h.loadSmallTeamScenario,
		"approval-chain": h.loadApprovalChainScenario,
		"year-planning":  h.loadYearPlanningScenario,
		"overlap":        h.loadOverlapScenario,
	}
	load, ok := loaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	h.currentScenario = ""
	if err := h.resetWithTeam(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := load(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears everything and re-seeds the default catalog.
// POST /api/scenarios/reset
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := h.applyCatalog(r.Context(), factory.DefaultCatalogJSON); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed catalog", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// small-team: Anna waits on her manager, Boris (filed by the manager) waits on HR.
func (h *Handler) loadSmallTeamScenario(ctx context.Context) error {
	week := h.weekStart(2)

	if _, err := h.submitted(ctx, "emp-anna", "emp-anna", vacation.RequestImmediate, week, week.AddDays(4)); err != nil {
		return err
	}
	if _, err := h.submitted(ctx, "emp-boris", "mgr-ivan", vacation.RequestScheduled, week.AddDays(14), week.AddDays(18)); err != nil {
		return err
	}
	// Vera keeps a draft around.
	_, err := h.Engine.CreateRequest(ctx, vacation.DraftRequest{
		EmployeeID: "emp-vera",
		TypeCode:   "ANNUAL",
		StartDate:  week.AddDays(21),
		EndDate:    week.AddDays(23),
		Comment:    "Long weekend",
	})
	return err
}

// approval-chain: manager approves, HR approves, the vacation is taken.
func (h *Handler) loadApprovalChainScenario(ctx context.Context) error {
	week := h.weekStart(1)

	req, err := h.submitted(ctx, "emp-anna", "emp-anna", vacation.RequestImmediate, week, week.AddDays(4))
	if err != nil {
		return err
	}
	if _, err := h.Engine.ApproveLineManager(ctx, req.ID, "mgr-ivan", "Enjoy"); err != nil {
		return err
	}
	if _, err := h.Engine.ApproveHR(ctx, req.ID, "hr-olga", ""); err != nil {
		return err
	}
	if _, err := h.Engine.Complete(ctx, req.ID, "hr-olga"); err != nil {
		return err
	}

	// A second request rejected by the manager.
	rejected, err := h.submitted(ctx, "emp-anna", "emp-anna", vacation.RequestImmediate, week.AddDays(7), week.AddDays(8))
	if err != nil {
		return err
	}
	_, err = h.Engine.RejectLineManager(ctx, rejected.ID, "mgr-ivan", "Release week")
	return err
}

// year-planning: Vera plans the year ahead; the first block is registered.
func (h *Handler) loadYearPlanningScenario(ctx context.Context) error {
	year := vacation.Today(h.Clock).Year()
	if _, err := h.Engine.SetAllotment(ctx, "emp-vera", year, decimal.NewFromInt(3), decimal.NewFromInt(24), "hr-olga"); err != nil {
		return err
	}

	week := h.weekStart(3)
	blocks := [][2]int{{0, 4}, {35, 39}, {70, 74}}
	for i, b := range blocks {
		s, err := h.Engine.CreateSchedule(ctx, vacation.DraftSchedule{
			EmployeeID: "emp-vera",
			CreatedBy:  "hr-olga",
			TypeCode:   "ANNUAL",
			StartDate:  week.AddDays(b[0]),
			EndDate:    week.AddDays(b[1]),
		})
		if err != nil {
			return errors.Wrapf(err, "schedule block %d", i)
		}
		if i == 0 {
			if _, err := h.Engine.RegisterSchedule(ctx, s.ID, "hr-olga"); err != nil {
				return err
			}
		}
	}
	return nil
}

// overlap: Boris and Vera are off the week Anna asks for.
func (h *Handler) loadOverlapScenario(ctx context.Context) error {
	week := h.weekStart(2)

	if _, err := h.Engine.CreateSchedule(ctx, vacation.DraftSchedule{
		EmployeeID: "emp-boris",
		CreatedBy:  "mgr-ivan",
		TypeCode:   "ANNUAL",
		StartDate:  week,
		EndDate:    week.AddDays(4),
	}); err != nil {
		return err
	}
	vera, err := h.submitted(ctx, "emp-vera", "emp-vera", vacation.RequestImmediate, week.AddDays(2), week.AddDays(6))
	if err != nil {
		return err
	}
	if _, err := h.Engine.ApproveLineManager(ctx, vera.ID, "mgr-ivan", ""); err != nil {
		return err
	}
	_, err = h.submitted(ctx, "emp-anna", "emp-anna", vacation.RequestImmediate, week.AddDays(1), week.AddDays(3))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) resetWithTeam(ctx context.Context) error {
	if err := h.Store.Reset(ctx); err != nil {
		return err
	}
	if err := h.applyCatalog(ctx, factory.DefaultCatalogJSON); err != nil {
		return err
	}
	return h.applyCatalog(ctx, demoTeamJSON)
}

func (h *Handler) applyCatalog(ctx context.Context, jsonStr string) error {
	c, err := h.Catalog.ParseCatalog(jsonStr)
	if err != nil {
		return err
	}
	return h.Catalog.Apply(ctx, h.Store, c)
}

func (h *Handler) submitted(ctx context.Context, employee, requester string, rt vacation.RequestType, start, end vacation.Date) (*vacation.Request, error) {
	return h.Engine.CreateAndSubmit(ctx, vacation.DraftRequest{
		EmployeeID:  employee,
		RequesterID: requester,
		TypeCode:    "ANNUAL",
		RequestType: rt,
		StartDate:   start,
		EndDate:     end,
	})
}

// weekStart returns the Monday n weeks after the current week.
func (h *Handler) weekStart(n int) vacation.Date {
	today := vacation.Today(h.Clock)
	offset := (int(time.Monday) - int(today.Weekday()) + 7) % 7
	return today.AddDays(offset + 7*n)
}
