package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/reservely/reservely/internal/db"
	"github.com/reservely/reservely/internal/model"
)

// WaitlistRepository stores customers waiting for an interval that had no
// slot when they asked. The database stamps the expiry so every entry lapses
// on the same clock regardless of which instance wrote it.
type WaitlistRepository struct {
	pool *db.Pool
}

func NewWaitlistRepository(pool *db.Pool) *WaitlistRepository {
	return &WaitlistRepository{pool: pool}
}

func (r *WaitlistRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *WaitlistRepository) Create(ctx context.Context, tx pgx.Tx, entry *model.WaitlistEntry) (string, error) {
	var staffID any
	if entry.StaffID != "" {
		staffID = entry.StaffID
	}
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO waitlist_entries
			(business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			 preferred_start_at, preferred_end_at, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, expires_at
	`, entry.BusinessID, entry.ServiceID, staffID, entry.CustomerName, entry.CustomerEmail,
		entry.CustomerPhone, entry.PreferredStartAt, entry.PreferredEndAt, entry.Priority,
	).Scan(&id, &entry.ExpiresAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ListByBusiness returns active, unexpired entries in the order an admin
// should work through them.
func (r *WaitlistRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.WaitlistEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, business_id::text, service_id::text, COALESCE(staff_id::text, ''),
			customer_name, customer_email, customer_phone,
			preferred_start_at, preferred_end_at, priority, status, expires_at, created_at
		FROM waitlist_entries
		WHERE business_id = $1
			AND status = 'active'
			AND expires_at > now()
		ORDER BY priority DESC, created_at ASC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.WaitlistEntry
	for rows.Next() {
		var e model.WaitlistEntry
		if err := rows.Scan(
			&e.ID, &e.BusinessID, &e.ServiceID, &e.StaffID,
			&e.CustomerName, &e.CustomerEmail, &e.CustomerPhone,
			&e.PreferredStartAt, &e.PreferredEndAt, &e.Priority,
			&e.Status, &e.ExpiresAt, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
