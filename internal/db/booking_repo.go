package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const bookingColumns = `id, tenant_id, booking_date, gross_amount, commission_amount, commission_rate,
	payment_ref, refunded_amount, refunded_commission, status, created_at, updated_at`

type BookingRepository struct {
	pool *pgxpool.Pool
}

func NewBookingRepository(pool *pgxpool.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

func (r *BookingRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// AcquireDateLock takes a transaction-scoped advisory lock on the given key.
// It is released automatically when the transaction ends.
func (r *BookingRepository) AcquireDateLock(ctx context.Context, tx pgx.Tx, key int64) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, key)
	return err
}

func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, entity *BookingEntity) (*BookingEntity, error) {
	query := `INSERT INTO booking (id, tenant_id, booking_date, gross_amount, status)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING created_at, updated_at`
	err := tx.QueryRow(ctx, query, entity.ID, entity.TenantID, entity.BookingDate, entity.GrossAmount, entity.Status).
		Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *BookingRepository) SelectByID(ctx context.Context, id uuid.UUID) (*BookingEntity, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking WHERE id = $1`
	return scanBooking(r.pool.QueryRow(ctx, query, id))
}

func (r *BookingRepository) SelectForUpdateByID(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*BookingEntity, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking WHERE id = $1 FOR UPDATE`
	return scanBooking(tx.QueryRow(ctx, query, id))
}

func (r *BookingRepository) SelectForUpdateByPaymentRef(ctx context.Context, tx pgx.Tx, paymentRef string) (*BookingEntity, error) {
	query := `SELECT ` + bookingColumns + ` FROM booking WHERE payment_ref = $1 FOR UPDATE`
	return scanBooking(tx.QueryRow(ctx, query, paymentRef))
}

// ExistsActive reports whether the tenant already holds the date with a
// PENDING or CONFIRMED booking.
func (r *BookingRepository) ExistsActive(ctx context.Context, tenantID string, date time.Time) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM booking
	            WHERE tenant_id = $1 AND booking_date = $2 AND status IN ($3, $4))`
	var exists bool
	err := r.pool.QueryRow(ctx, query, tenantID, date, BookingPending, BookingConfirmed).Scan(&exists)
	return exists, err
}

func (r *BookingRepository) UpdatePaymentRef(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentRef string) error {
	query := `UPDATE booking SET payment_ref = $2, updated_at = now() WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, paymentRef)
	return err
}

func (r *BookingRepository) UpdateConfirmed(ctx context.Context, tx pgx.Tx, id uuid.UUID, commissionAmount int64, commissionRate float64) error {
	query := `UPDATE booking
	          SET status = $2, commission_amount = $3, commission_rate = $4, updated_at = now()
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, BookingConfirmed, commissionAmount, commissionRate)
	return err
}

func (r *BookingRepository) UpdateFailed(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	query := `UPDATE booking SET status = $2, updated_at = now() WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, BookingFailed)
	return err
}

func (r *BookingRepository) UpdateRefunded(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundedAmount, refundedCommission int64) error {
	query := `UPDATE booking
	          SET status = $2, refunded_amount = $3, refunded_commission = $4, updated_at = now()
	          WHERE id = $1`
	_, err := tx.Exec(ctx, query, id, BookingRefunded, refundedAmount, refundedCommission)
	return err
}

func scanBooking(row pgx.Row) (*BookingEntity, error) {
	var entity BookingEntity
	err := row.Scan(&entity.ID, &entity.TenantID, &entity.BookingDate, &entity.GrossAmount,
		&entity.CommissionAmount, &entity.CommissionRate, &entity.PaymentRef,
		&entity.RefundedAmount, &entity.RefundedCommission, &entity.Status,
		&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
