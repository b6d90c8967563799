package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/reservely/reservely/internal/availability"
	"github.com/reservely/reservely/internal/db"
	"github.com/reservely/reservely/internal/model"
)

// BusinessRepository reads and writes the per-tenant catalog: the business
// schedule config, services, and staff. It is the generator's CatalogSource.
type BusinessRepository struct {
	pool *db.Pool
}

func NewBusinessRepository(pool *db.Pool) *BusinessRepository {
	return &BusinessRepository{pool: pool}
}

func (r *BusinessRepository) BusinessByID(ctx context.Context, businessID string) (model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, timezone, min_lead_minutes, max_advance_days
		FROM businesses
		WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Name, &b.Timezone, &b.MinLeadMinutes, &b.MaxAdvanceDays)
	if err != nil {
		if IsNotFound(err) {
			return model.Business{}, fmt.Errorf("business %s: %w", businessID, availability.ErrBusinessNotFound)
		}
		return model.Business{}, err
	}
	return b, nil
}

func (r *BusinessRepository) ServiceByID(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes
		FROM services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins)
	if err != nil {
		if IsNotFound(err) {
			return model.Service{}, fmt.Errorf("service %s: %w", serviceID, availability.ErrServiceNotFound)
		}
		return model.Service{}, err
	}
	return s, nil
}

func (r *BusinessRepository) CreateBusiness(ctx context.Context, name, timezone string, minLeadMinutes, maxAdvanceDays int) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO businesses (id, name, timezone, min_lead_minutes, max_advance_days)
		VALUES ($1, $2, $3, $4, $5)
	`, id, name, timezone, minLeadMinutes, maxAdvanceDays)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BusinessRepository) UpdateScheduleConfig(ctx context.Context, businessID, timezone string, minLeadMinutes, maxAdvanceDays int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE businesses
		SET timezone = $2,
			min_lead_minutes = $3,
			max_advance_days = $4,
			updated_at = now()
		WHERE id = $1
	`, businessID, timezone, minLeadMinutes, maxAdvanceDays)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return availability.ErrBusinessNotFound
	}
	return nil
}

func (r *BusinessRepository) CreateService(ctx context.Context, businessID, name string, durationMinutes int) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO services (id, business_id, name, duration_minutes)
		VALUES ($1, $2, $3, $4)
	`, id, businessID, name, durationMinutes)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BusinessRepository) ListServices(ctx context.Context, businessID string, limit int) ([]model.Service, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, name, duration_minutes
		FROM services
		WHERE business_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMins); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *BusinessRepository) CreateStaff(ctx context.Context, businessID, displayName string, isActive bool) (string, error) {
	id := uuid.NewString()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff (id, business_id, display_name, is_active)
		VALUES ($1, $2, $3, $4)
	`, id, businessID, displayName, isActive)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *BusinessRepository) SetStaffActive(ctx context.Context, businessID, staffID string, active bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE staff
		SET is_active = $3
		WHERE business_id = $1 AND id = $2 AND deleted_at IS NULL
	`, businessID, staffID, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("staff %s not found", staffID)
	}
	return nil
}

func (r *BusinessRepository) ListStaff(ctx context.Context, businessID string, limit int) ([]model.Staff, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, display_name, is_active
		FROM staff
		WHERE business_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC
		LIMIT $2
	`, businessID, limit)
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

func (r *BusinessRepository) AssignStaffToService(ctx context.Context, businessID, staffID, serviceID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO staff_services (staff_id, service_id, business_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (staff_id, service_id) DO NOTHING
	`, staffID, serviceID, businessID)
	return err
}

func (r *BusinessRepository) ListAssignments(ctx context.Context, businessID string) ([]model.StaffAssignment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, service_id::text
		FROM staff_services
		WHERE business_id = $1
		ORDER BY staff_id ASC, service_id ASC
	`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StaffAssignment
	for rows.Next() {
		var a model.StaffAssignment
		if err := rows.Scan(&a.StaffID, &a.ServiceID); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
