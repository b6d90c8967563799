package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/reservely/reservely/internal/model"
)

type fakeDirectory struct {
	assigned  []string
	fromRules []string
	staff     map[string]model.Staff

	assignedErr error
}

func (f *fakeDirectory) AssignedStaffIDs(_ context.Context, _, _ string) ([]string, error) {
	return f.assigned, f.assignedErr
}

func (f *fakeDirectory) RuleStaffIDs(_ context.Context, _, _ string) ([]string, error) {
	return f.fromRules, nil
}

func (f *fakeDirectory) ActiveStaff(_ context.Context, _ string, ids []string) ([]model.Staff, error) {
	var out []model.Staff
	for _, id := range ids {
		if s, ok := f.staff[id]; ok && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func TestEligibleStaff_ExplicitAssignmentsWin(t *testing.T) {
	dir := &fakeDirectory{
		assigned:  []string{"a"},
		fromRules: []string{"a", "b"},
		staff: map[string]model.Staff{
			"a": {ID: "a", IsActive: true},
			"b": {ID: "b", IsActive: true},
		},
	}
	staff, err := EligibleStaff(context.Background(), dir, "biz", "svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(staff) != 1 || staff[0].ID != "a" {
		t.Fatalf("expected only explicitly assigned staff, got %v", staff)
	}
}

func TestEligibleStaff_FallsBackToRuleStaff(t *testing.T) {
	dir := &fakeDirectory{
		fromRules: []string{"x", "x"},
		staff:     map[string]model.Staff{"x": {ID: "x", IsActive: true}},
	}
	staff, err := EligibleStaff(context.Background(), dir, "biz", "svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(staff) == 0 || staff[0].ID != "x" {
		t.Fatalf("expected staff x via rule fallback, got %v", staff)
	}
}

func TestEligibleStaff_DropsInactive(t *testing.T) {
	dir := &fakeDirectory{
		assigned: []string{"a", "b"},
		staff: map[string]model.Staff{
			"a": {ID: "a", IsActive: true},
			"b": {ID: "b", IsActive: false},
		},
	}
	staff, err := EligibleStaff(context.Background(), dir, "biz", "svc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(staff) != 1 || staff[0].ID != "a" {
		t.Fatalf("expected inactive staff dropped, got %v", staff)
	}
}

func TestEligibleStaff_BothSourcesEmpty(t *testing.T) {
	staff, err := EligibleStaff(context.Background(), &fakeDirectory{}, "biz", "svc")
	if err != nil {
		t.Fatalf("empty sources must not be an error, got %v", err)
	}
	if len(staff) != 0 {
		t.Fatalf("expected no staff, got %v", staff)
	}
}

func TestEligibleStaff_PropagatesReadErrors(t *testing.T) {
	dir := &fakeDirectory{assignedErr: errors.New("db down")}
	if _, err := EligibleStaff(context.Background(), dir, "biz", "svc"); err == nil {
		t.Fatal("expected read error to propagate")
	}
}
