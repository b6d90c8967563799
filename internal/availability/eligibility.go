package availability

import (
	"context"

	"github.com/reservely/reservely/internal/model"
)

// StaffDirectory is the read surface eligibility resolution needs.
type StaffDirectory interface {
	// AssignedStaffIDs returns staff explicitly assigned to the service.
	AssignedStaffIDs(ctx context.Context, businessID, serviceID string) ([]string, error)
	// RuleStaffIDs returns the distinct staff referenced by the service's
	// weekly rules.
	RuleStaffIDs(ctx context.Context, businessID, serviceID string) ([]string, error)
	// ActiveStaff loads the given staff rows, dropping inactive or deleted ones.
	ActiveStaff(ctx context.Context, businessID string, staffIDs []string) ([]model.Staff, error)
}

// EligibleStaff resolves which staff members may perform a service. The
// explicit staff/service assignment table is the primary source; businesses
// that configured weekly rules but never populated the join table fall back
// to the staff referenced by those rules. An empty result from both sources
// is a legitimate zero-slot outcome, not an error. Staff found via either
// path but since deactivated are silently dropped.
func EligibleStaff(ctx context.Context, dir StaffDirectory, businessID, serviceID string) ([]model.Staff, error) {
	ids, err := dir.AssignedStaffIDs(ctx, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		ids, err = dir.RuleStaffIDs(ctx, businessID, serviceID)
		if err != nil {
			return nil, err
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return dir.ActiveStaff(ctx, businessID, ids)
}
