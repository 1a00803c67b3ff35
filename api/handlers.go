/*
handlers.go - HTTP API handlers for the vacation engine

PURPOSE:
  Exposes the vacation engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to vacation.Engine.

ENDPOINTS:
  Requests:
    GET    /api/requests                        List (employee_id, status, approver_id, from, to)
    POST   /api/requests                        Create draft (optionally submit)
    GET    /api/requests/{id}                   Get one
    PUT    /api/requests/{id}                   Edit
    DELETE /api/requests/{id}                   Soft delete
    POST   /api/requests/{id}/submit            Submit for approval
    POST   /api/requests/{id}/line-manager/approve|reject
    POST   /api/requests/{id}/hr/approve|reject
    POST   /api/requests/{id}/register          Register (SCHEDULED)
    POST   /api/requests/{id}/complete          Complete (IMMEDIATE)
    POST   /api/requests/{id}/cancel            Cancel
    GET    /api/requests/{id}/activities        Activity trail

  Schedules:
    GET/POST /api/schedules, GET/PUT/DELETE /api/schedules/{id},
    POST /api/schedules/{id}/register, GET /api/schedules/{id}/activities

  Employees:
    GET    /api/employees                       Active directory
    POST   /api/employees                       Create or update
    GET    /api/employees/{id}/balance?year=    Balance view
    PUT    /api/employees/{id}/balance/{year}   Set allotment
    GET    /api/employees/{id}/conflicts        Teammate overlaps (from, to)
    GET    /api/employees/{id}/notifications    Recorded intents for the employee

  Admin:
    GET/PUT /api/settings, GET/POST /api/vacation-types,
    GET/POST /api/admin/catalog, POST /api/admin/reminders

ACTOR:
  Commands read the acting user from the X-Actor-ID header. The header is
  trusted; authentication happens in front of this service.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, bad dates
  - 404: Resource not found
  - 409: Illegal transition or lost optimistic-lock race
  - 422: Insufficient balance, edit limit, consecutive-day cap
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/warp/vacation-engine/factory"
	"github.com/warp/vacation-engine/notify"
	"github.com/warp/vacation-engine/vacation"
)

// ActorHeader names the acting user on every command.
const ActorHeader = "X-Actor-ID"

var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Backend is the storage surface the API needs beyond the engine. It is
// implemented by store/sqlite, store/postgres and the memory store.
type Backend interface {
	vacation.TxStore
	vacation.Directory
	vacation.SettingsSource
	factory.CatalogStore

	ListVacationTypes(ctx context.Context) ([]vacation.VacationType, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *vacation.Engine
	Store   Backend
	Catalog *factory.CatalogFactory
	Inbox   *notify.Recorder
	Clock   vacation.Clock

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. inbox may be nil, which disables the
// notifications endpoint.
func NewHandler(engine *vacation.Engine, store Backend, inbox *notify.Recorder) *Handler {
	return &Handler{
		Engine:  engine,
		Store:   store,
		Catalog: factory.NewCatalogFactory(),
		Inbox:   inbox,
		Clock:   vacation.SystemClock{},
	}
}

// =============================================================================
// REQUEST HANDLERS
// =============================================================================

// ListRequests returns requests matching the query filters.
// GET /api/requests?employee_id=a,b&status=APPROVED&approver_id=x&from=&to=
func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := vacation.RequestFilter{
		EmployeeIDs: splitQuery(q.Get("employee_id")),
		ApproverID:  q.Get("approver_id"),
	}
	for _, s := range splitQuery(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, vacation.RequestStatus(strings.ToUpper(s)))
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		writeEngineError(w, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		writeEngineError(w, err)
		return
	}

	requests, err := h.Engine.ListRequests(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(requests))
}

// CreateRequest stores a new draft and optionally submits it.
// POST /api/requests
func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateRequestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EmployeeID == "" || req.TypeCode == "" {
		writeError(w, http.StatusBadRequest, "employee_id and type_code are required", nil)
		return
	}
	rt := vacation.RequestType(strings.ToUpper(req.RequestType))
	if rt != "" && !rt.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid request_type (use IMMEDIATE or SCHEDULED)", nil)
		return
	}
	start, err := vacation.ParseDate(req.StartDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	end, err := vacation.ParseDate(req.EndDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	create := h.Engine.CreateRequest
	if req.Submit {
		create = h.Engine.CreateAndSubmit
	}
	created, err := create(r.Context(), vacation.DraftRequest{
		EmployeeID:         req.EmployeeID,
		RequesterID:        actor,
		TypeCode:           req.TypeCode,
		RequestType:        rt,
		StartDate:          start,
		EndDate:            end,
		Comment:            req.Comment,
		LineManagerID:      req.LineManagerID,
		HRRepresentativeID: req.HRRepresentativeID,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// GetRequest returns a single request.
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	req, err := h.Engine.GetRequest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// EditRequest changes dates, type or comment.
// PUT /api/requests/{id}
func (h *Handler) EditRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body EditRequest
	if !decodeBody(w, r, &body) {
		return
	}
	changes, err := body.requestChanges()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	updated, err := h.Engine.Edit(r.Context(), chi.URLParam(r, "id"), changes, actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRequest soft-deletes a request.
// DELETE /api/requests/{id}
func (h *Handler) DeleteRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeleteRequest(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type requestCommand func(ctx context.Context, id, actor string) (*vacation.Request, error)
type decisionCommand func(ctx context.Context, id, actor, comment string) (*vacation.Request, error)

// command adapts an (id, actor) engine command to a handler.
func (h *Handler) command(fn requestCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		updated, err := fn(r.Context(), chi.URLParam(r, "id"), actor)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// decision adapts an approver command; the body is optional.
func (h *Handler) decision(fn decisionCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var body DecisionRequest
		if r.ContentLength != 0 && !decodeBody(w, r, &body) {
			return
		}
		updated, err := fn(r.Context(), chi.URLParam(r, "id"), actor, body.Comment)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// rejection adapts a rejecting approver command; the reason is required.
func (h *Handler) rejection(fn decisionCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := requireActor(w, r)
		if !ok {
			return
		}
		var body DecisionRequest
		if !decodeBody(w, r, &body) {
			return
		}
		updated, err := fn(r.Context(), chi.URLParam(r, "id"), actor, body.Comment)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

// ListActivities returns the audit trail of a request or schedule.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.Engine.ListActivities(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(activities))
}

// UpcomingRequests lists approved requests starting within the lead time.
// GET /api/requests/upcoming
func (h *Handler) UpcomingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Engine.UpcomingRequests(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(requests))
}

// =============================================================================
// SCHEDULE HANDLERS
// =============================================================================

// ListSchedules returns schedules matching employee_id, status, from, to.
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := vacation.ScheduleFilter{EmployeeIDs: splitQuery(q.Get("employee_id"))}
	for _, s := range splitQuery(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, vacation.ScheduleStatus(strings.ToUpper(s)))
	}
	var err error
	if filter.From, err = queryDate(r, "from"); err != nil {
		writeEngineError(w, err)
		return
	}
	if filter.To, err = queryDate(r, "to"); err != nil {
		writeEngineError(w, err)
		return
	}

	schedules, err := h.Engine.ListSchedules(r.Context(), filter)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(schedules))
}

// CreateSchedule plans a vacation and reserves its days.
// POST /api/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var req CreateScheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.EmployeeID == "" || req.TypeCode == "" {
		writeError(w, http.StatusBadRequest, "employee_id and type_code are required", nil)
		return
	}
	start, err := vacation.ParseDate(req.StartDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	end, err := vacation.ParseDate(req.EndDate)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	created, err := h.Engine.CreateSchedule(r.Context(), vacation.DraftSchedule{
		EmployeeID: req.EmployeeID,
		CreatedBy:  actor,
		TypeCode:   req.TypeCode,
		StartDate:  start,
		EndDate:    end,
		Comment:    req.Comment,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.GetSchedule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// EditSchedule changes a SCHEDULED entry within the edit cap.
func (h *Handler) EditSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	var body EditRequest
	if !decodeBody(w, r, &body) {
		return
	}
	changes, err := body.scheduleChanges()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	updated, err := h.Engine.EditSchedule(r.Context(), chi.URLParam(r, "id"), changes, actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// RegisterSchedule consumes the reserved days.
func (h *Handler) RegisterSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	updated, err := h.Engine.RegisterSchedule(r.Context(), chi.URLParam(r, "id"), actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	if err := h.Engine.DeleteSchedule(r.Context(), chi.URLParam(r, "id"), actor); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns the active directory.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListActiveEmployees(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(employees))
}

// SaveEmployee creates or updates a directory entry.
// POST /api/employees
func (h *Handler) SaveEmployee(w http.ResponseWriter, r *http.Request) {
	var ej factory.EmployeeJSON
	if !decodeBody(w, r, &ej) {
		return
	}
	c, err := h.Catalog.FromJSON(factory.CatalogJSON{Employees: []factory.EmployeeJSON{ej}})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	emp := c.Employees[0]
	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Store.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, emp)
}

// GetBalance returns the balance view for ?year= (default: current year).
// GET /api/employees/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	year := vacation.Today(h.Clock).Year()
	if y := r.URL.Query().Get("year"); y != "" {
		parsed, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year", err)
			return
		}
		year = parsed
	}
	view, err := h.Engine.GetBalance(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// SetAllotment sets the start and yearly balance.
// PUT /api/employees/{id}/balance/{year}
func (h *Handler) SetAllotment(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}
	var body AllotmentRequest
	if !decodeBody(w, r, &body) {
		return
	}
	view, err := h.Engine.SetAllotment(r.Context(), chi.URLParam(r, "id"), year, body.StartBalance, body.YearlyBalance, actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// GetConflicts lists teammates' overlapping leave in [from, to].
// GET /api/employees/{id}/conflicts?from=2025-06-01&to=2025-06-30
func (h *Handler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	from, err := queryDate(r, "from")
	if err != nil {
		writeEngineError(w, err)
		return
	}
	to, err := queryDate(r, "to")
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if from == nil || to == nil {
		writeError(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}
	id := chi.URLParam(r, "id")
	conflicts, err := h.Engine.GetConflicts(r.Context(), id, *from, *to)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ConflictsResponse{
		EmployeeID: id,
		From:       from.String(),
		To:         to.String(),
		Count:      conflicts.Count(),
		Requests:   nonNil(conflicts.Requests),
		Schedules:  nonNil(conflicts.Schedules),
	})
}

// ListNotifications returns recorded intents addressed to the employee.
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	if h.Inbox == nil {
		writeJSON(w, http.StatusOK, []vacation.Intent{})
		return
	}
	writeJSON(w, http.StatusOK, nonNil(h.Inbox.ForRecipient(chi.URLParam(r, "id"))))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// GetSettings returns the active settings snapshot.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Settings(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// UpdateSettings replaces the active settings.
// PUT /api/settings
func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var sj factory.SettingsJSON
	if !decodeBody(w, r, &sj) {
		return
	}
	s, err := h.Catalog.Settings(sj)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Store.SaveSettings(r.Context(), s); err != nil {
		writeEngineError(w, err)
		return
	}
	log.WithField("actor_id", r.Header.Get(ActorHeader)).Info("vacation settings updated")
	h.GetSettings(w, r)
}

func (h *Handler) ListVacationTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.Store.ListVacationTypes(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(types))
}

// SaveVacationType creates or replaces a vacation type.
// POST /api/vacation-types
func (h *Handler) SaveVacationType(w http.ResponseWriter, r *http.Request) {
	var tj factory.VacationTypeJSON
	if !decodeBody(w, r, &tj) {
		return
	}
	vt, err := h.Catalog.VacationType(tj)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Store.SaveVacationType(r.Context(), vt); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, vt)
}

// ExportCatalog returns settings and vacation types as one catalog document.
// GET /api/admin/catalog
func (h *Handler) ExportCatalog(w http.ResponseWriter, r *http.Request) {
	s, err := h.Engine.Settings(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	types, err := h.Store.ListVacationTypes(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Catalog.ToJSON(s, types))
}

// ImportCatalog validates and applies a catalog document.
// POST /api/admin/catalog
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	var cj factory.CatalogJSON
	if !decodeBody(w, r, &cj) {
		return
	}
	c, err := h.Catalog.FromJSON(cj)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := h.Catalog.Apply(r.Context(), h.Store, c); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{
		"vacation_types": len(c.VacationTypes),
		"employees":      len(c.Employees),
	})
}

// RunReminders sends upcoming-vacation reminders now, without deduplication.
// POST /api/admin/reminders
func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	sent, err := h.Engine.RemindUpcoming(r.Context(), nil)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReminderRunResponse{Sent: sent})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusFor maps engine error kinds to HTTP status codes.
func statusFor(err error) int {
	switch {
	case vacation.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, vacation.ErrIllegalTransition),
		errors.Is(err, vacation.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, vacation.ErrInsufficientBalance),
		errors.Is(err, vacation.ErrEditLimitExceeded),
		errors.Is(err, vacation.ErrConsecutiveDaysExceeded):
		return http.StatusUnprocessableEntity
	case errors.Is(err, vacation.ErrInvalidDateRange),
		errors.Is(err, vacation.ErrNegativeDays),
		errors.Is(err, vacation.ErrReasonRequired),
		errors.Is(err, factory.ErrInvalidCatalog),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeEngineError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("request failed")
		writeError(w, status, "Internal error", err)
		return
	}
	writeError(w, status, http.StatusText(status), err)
}

func requireActor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := strings.TrimSpace(r.Header.Get(ActorHeader))
	if actor == "" {
		writeError(w, http.StatusBadRequest, ActorHeader+" header is required", nil)
		return "", false
	}
	return actor, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	return true
}

func queryDate(r *http.Request, key string) (*vacation.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	return parseOptionalDate(&v)
}

func splitQuery(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// nonNil keeps empty lists encoding as [] instead of null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
