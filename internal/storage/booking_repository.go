package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/reservely/reservely/internal/db"
	"github.com/reservely/reservely/internal/model"
)

// BookingRepository is the write side. Creating an appointment is the only
// authoritative reservation: the appointments_no_overlap exclusion constraint
// rejects any insert that would double-book a staff member, no matter what
// the advisory slot list said at read time.
type BookingRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	BusinessID      string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	var id string
	err := tx.QueryRow(ctx, `
		INSERT INTO appointments
			(business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			 start_time, end_time, status, hold_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`, appt.BusinessID, appt.ServiceID, appt.StaffID, appt.CustomerName, appt.CustomerEmail,
		appt.CustomerPhone, appt.StartTime, appt.EndTime, appt.Status, appt.HoldExpiresAt).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// ExpireOverlappingHolds cancels lapsed holds that still occupy the requested
// interval for the given staff member. The reaper sweeps these on its own
// ticker, but a booking arriving between sweeps would otherwise trip the
// overlap constraint on a hold nobody can confirm any more. Runs inside the
// booking transaction so the freed interval and the insert commit together.
func (r *BookingRepository) ExpireOverlappingHolds(ctx context.Context, tx pgx.Tx, staffID string, start, end, now time.Time) (int64, error) {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = 'hold expired'
		WHERE staff_id = $1
			AND status = 'held'
			AND hold_expires_at IS NOT NULL
			AND hold_expires_at <= $4
			AND start_time < $3
			AND end_time > $2
	`, staffID, start, end, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) (model.Appointment, error) {
	var a model.Appointment
	err := tx.QueryRow(ctx, `
		SELECT id, business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, hold_expires_at, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE id = $1 AND business_id = $2
		FOR UPDATE
	`, appointmentID, businessID).Scan(
		&a.ID, &a.BusinessID, &a.ServiceID, &a.StaffID,
		&a.CustomerName, &a.CustomerEmail, &a.CustomerPhone,
		&a.StartTime, &a.EndTime, &a.Status, &a.HoldExpiresAt,
		&a.CancelledAt, &a.CancelReason, &a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, businessID, appointmentID, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $1 AND business_id = $2
		RETURNING cancelled_at
	`, appointmentID, businessID, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// ReleaseHold drops a held appointment. Only rows still in status held are
// touched; a hold that was already confirmed stays a booking.
func (r *BookingRepository) ReleaseHold(ctx context.Context, tx pgx.Tx, businessID, appointmentID string) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = 'hold released'
		WHERE id = $1 AND business_id = $2 AND status = 'held'
	`, appointmentID, businessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ConfirmHold promotes a held appointment into a scheduled one.
func (r *BookingRepository) ConfirmHold(ctx context.Context, tx pgx.Tx, businessID, appointmentID string, now time.Time) error {
	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'scheduled',
			hold_expires_at = NULL
		WHERE id = $1 AND business_id = $2 AND status = 'held'
			AND (hold_expires_at IS NULL OR hold_expires_at > $3)
	`, appointmentID, businessID, now)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExpireHolds cancels held appointments whose TTL has lapsed so they stop
// blocking the exclusion constraint. Returns the ids it reaped.
func (r *BookingRepository) ExpireHolds(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = 'hold expired'
		WHERE status = 'held' AND hold_expires_at IS NOT NULL AND hold_expires_at <= $1
		RETURNING id::text
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *BookingRepository) ListByBusiness(ctx context.Context, businessID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, service_id, staff_id, customer_name, customer_email, customer_phone,
			start_time, end_time, status, hold_expires_at, cancelled_at, COALESCE(cancellation_reason, ''), created_at
		FROM appointments
		WHERE business_id = $1
		ORDER BY start_time DESC
		LIMIT $2
	`, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		var a model.Appointment
		if err := rows.Scan(
			&a.ID, &a.BusinessID, &a.ServiceID, &a.StaffID,
			&a.CustomerName, &a.CustomerEmail, &a.CustomerPhone,
			&a.StartTime, &a.EndTime, &a.Status, &a.HoldExpiresAt,
			&a.CancelledAt, &a.CancelReason, &a.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *BookingRepository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (business_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (business_id, idempotency_key) DO NOTHING
	`, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, businessID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *BookingRepository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, businessID, key, appointmentID string, statusCode int, response []byte) error {
	var apptID any
	if appointmentID != "" {
		apptID = appointmentID
	}
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE business_id = $1 AND idempotency_key = $2
	`, businessID, key, apptID, statusCode, response)
	return err
}

func (r *BookingRepository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, businessID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT business_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE business_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, businessID, key).Scan(
		&rec.BusinessID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
