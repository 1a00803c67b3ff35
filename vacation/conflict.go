package vacation

import (
	"context"

	"github.com/pkg/errors"
)

// =============================================================================
// CONFLICT DETECTOR
// =============================================================================

// Conflicts lists teammates' vacations overlapping a range. Advisory only.
type Conflicts struct {
	Requests  []Request  `json:"requests"`
	Schedules []Schedule `json:"schedules"`
}

func (c Conflicts) Count() int { return len(c.Requests) + len(c.Schedules) }

// Teammates returns active employees sharing a department or line manager
// with subject, excluding subject.
func Teammates(subject Employee, everyone []Employee) []Employee {
	var out []Employee
	for _, e := range everyone {
		if e.ID == subject.ID || !e.Active {
			continue
		}
		sameDept := subject.DepartmentID != "" && e.DepartmentID == subject.DepartmentID
		sameManager := subject.LineManagerID != "" && e.LineManagerID == subject.LineManagerID
		if sameDept || sameManager {
			out = append(out, e)
		}
	}
	return out
}

// lookupTeammates resolves the subject and their teammates from the directory.
func lookupTeammates(ctx context.Context, dir Directory, employeeID string) (*Employee, []Employee, error) {
	subject, err := dir.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, nil, err
	}
	everyone, err := dir.ListActiveEmployees(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "list employees")
	}
	return subject, Teammates(*subject, everyone), nil
}

// teammateConflicts reads teammates' active requests and scheduled entries
// that overlap [from, to].
func teammateConflicts(ctx context.Context, s Store, mates []Employee, from, to Date) (Conflicts, error) {
	if from.After(to) {
		return Conflicts{}, errors.Wrapf(ErrInvalidDateRange, "%s after %s", from, to)
	}
	if len(mates) == 0 {
		return Conflicts{}, nil
	}
	ids := make([]string, 0, len(mates))
	for _, m := range mates {
		ids = append(ids, m.ID)
	}

	requests, err := s.ListRequests(ctx, RequestFilter{
		EmployeeIDs: ids,
		Statuses:    ActiveStatuses,
		From:        &from,
		To:          &to,
	})
	if err != nil {
		return Conflicts{}, errors.Wrap(err, "list teammate requests")
	}
	schedules, err := s.ListSchedules(ctx, ScheduleFilter{
		EmployeeIDs: ids,
		Statuses:    []ScheduleStatus{ScheduleScheduled},
		From:        &from,
		To:          &to,
	})
	if err != nil {
		return Conflicts{}, errors.Wrap(err, "list teammate schedules")
	}
	return Conflicts{Requests: requests, Schedules: schedules}, nil
}
