package vacation

// =============================================================================
// APPROVAL ROUTER
// =============================================================================

// Route resolves the approval chain for a request about to be submitted.
//
// Approvers already set on the request are kept as-is. Otherwise:
//   - self-service (or anyone but the line manager filing): line manager, then default HR
//   - line manager filing for a report: HR only
//
// The resolved approvers are written onto the request and the first pending
// status is returned; APPROVED when no approver resolves.
func Route(r *Request, employee Employee, settings Settings) RequestStatus {
	filedByManager := employee.LineManagerID != "" &&
		r.RequesterID == employee.LineManagerID &&
		r.RequesterID != r.EmployeeID

	if r.LineManagerID == nil && !filedByManager && employee.LineManagerID != "" {
		r.LineManagerID = strPtr(employee.LineManagerID)
	}
	if r.HRRepresentativeID == nil && settings.DefaultHRApproverID != "" {
		r.HRRepresentativeID = strPtr(settings.DefaultHRApproverID)
	}

	switch {
	case r.LineManagerID != nil:
		return StatusPendingLineManager
	case r.HRRepresentativeID != nil:
		return StatusPendingHR
	default:
		return StatusApproved
	}
}

func strPtr(s string) *string { return &s }
