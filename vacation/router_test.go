package vacation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/vacation-engine/vacation"
)

func withHR(id string) vacation.Settings {
	s := vacation.DefaultSettings()
	s.DefaultHRApproverID = id
	return s
}

func strp(s string) *string { return &s }

func TestRoute(t *testing.T) {
	report := vacation.Employee{ID: "emp-1", LineManagerID: "mgr-1", Active: true}
	orphan := vacation.Employee{ID: "emp-9", Active: true}

	tests := []struct {
		name      string
		employee  vacation.Employee
		requester string
		override  *string
		settings  vacation.Settings
		want      vacation.RequestStatus
		wantLM    *string
		wantHR    *string
	}{
		{
			name:      "self-service goes to line manager first",
			employee:  report,
			requester: "emp-1",
			settings:  withHR("hr-1"),
			want:      vacation.StatusPendingLineManager,
			wantLM:    strp("mgr-1"),
			wantHR:    strp("hr-1"),
		},
		{
			name:      "manager filing skips line manager",
			employee:  report,
			requester: "mgr-1",
			settings:  withHR("hr-1"),
			want:      vacation.StatusPendingHR,
			wantHR:    strp("hr-1"),
		},
		{
			name:      "manager filing without HR approves",
			employee:  report,
			requester: "mgr-1",
			settings:  vacation.DefaultSettings(),
			want:      vacation.StatusApproved,
		},
		{
			name:      "someone else filing routes like self-service",
			employee:  report,
			requester: "hr-1",
			settings:  withHR("hr-1"),
			want:      vacation.StatusPendingLineManager,
			wantLM:    strp("mgr-1"),
			wantHR:    strp("hr-1"),
		},
		{
			name:      "no line manager goes to HR",
			employee:  orphan,
			requester: "emp-9",
			settings:  withHR("hr-1"),
			want:      vacation.StatusPendingHR,
			wantHR:    strp("hr-1"),
		},
		{
			name:      "no approvers approves",
			employee:  orphan,
			requester: "emp-9",
			settings:  vacation.DefaultSettings(),
			want:      vacation.StatusApproved,
		},
		{
			name:      "explicit line manager is kept",
			employee:  report,
			requester: "mgr-1",
			override:  strp("director-1"),
			settings:  vacation.DefaultSettings(),
			want:      vacation.StatusPendingLineManager,
			wantLM:    strp("director-1"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &vacation.Request{
				EmployeeID:    tt.employee.ID,
				RequesterID:   tt.requester,
				LineManagerID: tt.override,
			}

			got := vacation.Route(r, tt.employee, tt.settings)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantLM, r.LineManagerID)
			assert.Equal(t, tt.wantHR, r.HRRepresentativeID)
		})
	}
}

func TestRoute_ExplicitHRKept(t *testing.T) {
	r := &vacation.Request{EmployeeID: "emp-1", RequesterID: "mgr-1", HRRepresentativeID: strp("hr-2")}

	got := vacation.Route(r, vacation.Employee{ID: "emp-1", LineManagerID: "mgr-1"}, withHR("hr-1"))

	require.Equal(t, vacation.StatusPendingHR, got)
	assert.Equal(t, "hr-2", *r.HRRepresentativeID)
}
