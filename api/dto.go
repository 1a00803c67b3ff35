/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON bodies the API accepts. Responses reuse the vacation
  structs directly since their JSON tags already form the public contract;
  only request bodies and a few wrappers live here.

NAMING CONVENTION:
  - *Request: Request body types from clients
  - *Response: Response wrappers

DATES:
  Every date is a "YYYY-MM-DD" string. Parsing failures surface as
  vacation.ErrInvalidDateRange and map to 400.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/catalog.go: VacationTypeJSON, SettingsJSON, CatalogJSON
*/
package api

import (
	"github.com/shopspring/decimal"
	"github.com/warp/vacation-engine/vacation"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateRequestRequest opens a DRAFT vacation request.
type CreateRequestRequest struct {
	EmployeeID         string  `json:"employee_id"`
	TypeCode           string  `json:"type_code"`
	RequestType        string  `json:"request_type"`
	StartDate          string  `json:"start_date"`
	EndDate            string  `json:"end_date"`
	Comment            string  `json:"comment,omitempty"`
	LineManagerID      *string `json:"line_manager_id,omitempty"`
	HRRepresentativeID *string `json:"hr_representative_id,omitempty"`
	// Submit moves the draft straight into the approval flow.
	Submit bool `json:"submit,omitempty"`
}

// EditRequest changes a request or schedule. Omitted fields stay as they are.
type EditRequest struct {
	TypeCode  *string `json:"type_code,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
	Comment   *string `json:"comment,omitempty"`
}

// DecisionRequest carries an approver's comment or rejection reason.
type DecisionRequest struct {
	Comment string `json:"comment,omitempty"`
}

// =============================================================================
// SCHEDULES
// =============================================================================

type CreateScheduleRequest struct {
	EmployeeID string `json:"employee_id"`
	TypeCode   string `json:"type_code"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	Comment    string `json:"comment,omitempty"`
}

// =============================================================================
// BALANCES
// =============================================================================

// AllotmentRequest sets an employee's carry-over and yearly allotment.
type AllotmentRequest struct {
	StartBalance  decimal.Decimal `json:"start_balance"`
	YearlyBalance decimal.Decimal `json:"yearly_balance"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// ConflictsResponse lists teammates' overlapping leave.
type ConflictsResponse struct {
	EmployeeID string              `json:"employee_id"`
	From       string              `json:"from"`
	To         string              `json:"to"`
	Count      int                 `json:"count"`
	Requests   []vacation.Request  `json:"requests"`
	Schedules  []vacation.Schedule `json:"schedules"`
}

// ReminderRunResponse reports a manual reminder run.
type ReminderRunResponse struct {
	Sent int `json:"sent"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest is the request to load a scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func parseOptionalDate(s *string) (*vacation.Date, error) {
	if s == nil {
		return nil, nil
	}
	d, err := vacation.ParseDate(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (e EditRequest) requestChanges() (vacation.RequestChanges, error) {
	start, err := parseOptionalDate(e.StartDate)
	if err != nil {
		return vacation.RequestChanges{}, err
	}
	end, err := parseOptionalDate(e.EndDate)
	if err != nil {
		return vacation.RequestChanges{}, err
	}
	return vacation.RequestChanges{TypeCode: e.TypeCode, StartDate: start, EndDate: end, Comment: e.Comment}, nil
}

func (e EditRequest) scheduleChanges() (vacation.ScheduleChanges, error) {
	c, err := e.requestChanges()
	if err != nil {
		return vacation.ScheduleChanges{}, err
	}
	return vacation.ScheduleChanges{TypeCode: c.TypeCode, StartDate: c.StartDate, EndDate: c.EndDate, Comment: c.Comment}, nil
}
