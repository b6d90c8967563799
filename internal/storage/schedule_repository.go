package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/reservely/reservely/internal/db"
	"github.com/reservely/reservely/internal/model"
)

// ScheduleRepository serves the slot generator's read path: weekly rules,
// blackouts, bookings in hold-worthy statuses, and staff eligibility. Every
// query is scoped by business id; availability never crosses tenants.
type ScheduleRepository struct {
	pool *db.Pool
}

func NewScheduleRepository(pool *db.Pool) *ScheduleRepository {
	return &ScheduleRepository{pool: pool}
}

func (r *ScheduleRepository) AssignedStaffIDs(ctx context.Context, businessID, serviceID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT ss.staff_id::text
		FROM staff_services ss
		WHERE ss.business_id = $1 AND ss.service_id = $2
	`, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *ScheduleRepository) RuleStaffIDs(ctx context.Context, businessID, serviceID string) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ar.staff_id::text
		FROM availability_rules ar
		WHERE ar.business_id = $1
			AND ar.service_id = $2
			AND ar.rule_type = 'weekly'
			AND ar.deleted_at IS NULL
	`, businessID, serviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *ScheduleRepository) ActiveStaff(ctx context.Context, businessID string, staffIDs []string) ([]model.Staff, error) {
	if len(staffIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, display_name, is_active
		FROM staff
		WHERE business_id = $1
			AND id = ANY($2)
			AND is_active
			AND deleted_at IS NULL
		ORDER BY display_name ASC
	`, businessID, staffIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Staff
	for rows.Next() {
		var s model.Staff
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.DisplayName, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) RulesFor(ctx context.Context, businessID, serviceID string, weekday int, staffIDs []string) ([]model.AvailabilityRule, error) {
	// The staff filter only applies when the caller resolved a staff set;
	// an empty set means "no restriction", matching the eligibility contract.
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, service_id::text, staff_id::text,
			rule_type, weekday, start_time, end_time
		FROM availability_rules
		WHERE business_id = $1
			AND service_id = $2
			AND rule_type = 'weekly'
			AND weekday = $3
			AND deleted_at IS NULL
			AND (cardinality($4::uuid[]) = 0 OR staff_id = ANY($4))
	`, businessID, serviceID, weekday, staffIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.ID, &rule.BusinessID, &rule.ServiceID, &rule.StaffID,
			&rule.RuleType, &rule.Weekday, &rule.StartTime, &rule.EndTime); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) BlackoutsFor(ctx context.Context, businessID string, from, to time.Time) ([]model.Blackout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, COALESCE(staff_id::text, ''), start_time, end_time, reason
		FROM blackouts
		WHERE business_id = $1
			AND deleted_at IS NULL
			AND start_time < $3
			AND end_time > $2
	`, businessID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Blackout
	for rows.Next() {
		var b model.Blackout
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.StaffID, &b.StartTime, &b.EndTime, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) ActiveBookingsFor(ctx context.Context, businessID string, staffIDs []string, from, to time.Time) ([]model.Appointment, error) {
	if len(staffIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, staff_id::text, start_time, end_time, status
		FROM appointments
		WHERE business_id = $1
			AND staff_id = ANY($2)
			AND status = ANY($3)
			AND start_time < $5
			AND end_time > $4
			AND (status <> 'held' OR hold_expires_at IS NULL OR hold_expires_at > now())
	`, businessID, staffIDs, model.ActiveStatuses, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(&a.ID, &a.BusinessID, &a.StaffID, &a.StartTime, &a.EndTime, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListRules returns every live weekly rule for a business, ordered the way
// an admin reads a timetable.
func (r *ScheduleRepository) ListRules(ctx context.Context, businessID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, service_id::text, staff_id::text,
			rule_type, weekday, start_time, end_time
		FROM availability_rules
		WHERE business_id = $1 AND deleted_at IS NULL
		ORDER BY weekday ASC, start_time ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(&rule.ID, &rule.BusinessID, &rule.ServiceID, &rule.StaffID,
			&rule.RuleType, &rule.Weekday, &rule.StartTime, &rule.EndTime); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// ListBlackouts returns every live blackout for a business.
func (r *ScheduleRepository) ListBlackouts(ctx context.Context, businessID string) ([]model.Blackout, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, COALESCE(staff_id::text, ''), start_time, end_time, reason
		FROM blackouts
		WHERE business_id = $1 AND deleted_at IS NULL
		ORDER BY start_time ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Blackout
	for rows.Next() {
		var b model.Blackout
		if err := rows.Scan(&b.ID, &b.BusinessID, &b.StaffID, &b.StartTime, &b.EndTime, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *ScheduleRepository) CreateRule(ctx context.Context, rule model.AvailabilityRule) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO availability_rules (id, business_id, service_id, staff_id, rule_type, weekday, start_time, end_time)
		VALUES ($1, $2, $3, $4, 'weekly', $5, $6, $7)
	`, id, rule.BusinessID, rule.ServiceID, rule.StaffID, rule.Weekday, rule.StartTime, rule.EndTime)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) DeleteRule(ctx context.Context, businessID, ruleID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET deleted_at = now()
		WHERE business_id = $1 AND id = $2 AND deleted_at IS NULL
	`, businessID, ruleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ScheduleRepository) CreateBlackout(ctx context.Context, b model.Blackout) (string, error) {
	id := uuid.NewString()
	var staffID any
	if b.StaffID != "" {
		staffID = b.StaffID
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO blackouts (id, business_id, staff_id, start_time, end_time, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, b.BusinessID, staffID, b.StartTime, b.EndTime, b.Reason)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *ScheduleRepository) DeleteBlackout(ctx context.Context, businessID, blackoutID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE blackouts
		SET deleted_at = now()
		WHERE business_id = $1 AND id = $2 AND deleted_at IS NULL
	`, businessID, blackoutID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanIDs(rows pgx.Rows) ([]string, error) {
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
