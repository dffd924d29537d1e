package booking

import (
	"context"
	"log/slog"
	"time"

	"booking-engine/internal/db"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

const (
	activeDateIndex = "booking_tenant_date_active_uq"
	paymentRefIndex = "booking_payment_ref_uq"
)

// Ledger is the authoritative store of bookings. Every status change goes
// through its guarded transition methods; anything else is rejected with
// ErrInvalidTransition. All methods run inside the caller's transaction.
type Ledger struct {
	repo   *db.BookingRepository
	logger *slog.Logger
}

func NewLedger(repo *db.BookingRepository, logger *slog.Logger) *Ledger {
	return &Ledger{repo: repo, logger: logger}
}

// Create inserts a PENDING booking. The partial unique index on
// (tenant_id, booking_date) rejects a second active booking even if the
// advisory lock was bypassed.
func (l *Ledger) Create(ctx context.Context, tx pgx.Tx, tenantID string, date time.Time, grossAmount int64) (*db.BookingEntity, error) {
	if tenantID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "empty tenant id")
	}
	if grossAmount < 0 {
		return nil, errors.Wrapf(ErrInvalidInput, "negative gross amount %d", grossAmount)
	}

	entity := &db.BookingEntity{
		ID:          uuid.New(),
		TenantID:    tenantID,
		BookingDate: date,
		GrossAmount: grossAmount,
		Status:      db.BookingPending,
	}

	created, err := l.repo.Create(ctx, tx, entity)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == activeDateIndex {
			return nil, ErrDateConflict
		}
		return nil, err
	}
	return created, nil
}

// AttachPaymentReference links a provider payment reference to a PENDING
// booking. Attaching the same reference again is a no-op.
func (l *Ledger) AttachPaymentReference(ctx context.Context, tx pgx.Tx, id uuid.UUID, paymentRef string) (*db.BookingEntity, error) {
	if paymentRef == "" {
		return nil, errors.Wrap(ErrInvalidInput, "empty payment reference")
	}

	entity, err := l.selectForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if entity.PaymentRef != nil && *entity.PaymentRef == paymentRef {
		return entity, nil
	}
	if entity.Status != db.BookingPending {
		return nil, l.rejectTransition(ctx, entity, "attach payment reference")
	}

	if err := l.repo.UpdatePaymentRef(ctx, tx, id, paymentRef); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == paymentRefIndex {
			return nil, errors.Wrapf(ErrPaymentRefInUse, "reference %q", paymentRef)
		}
		return nil, err
	}
	entity.PaymentRef = &paymentRef
	return entity, nil
}

// Confirm moves PENDING to CONFIRMED and snapshots the commission. A second
// call is a no-op returning the existing row; the snapshot is never
// recomputed.
func (l *Ledger) Confirm(ctx context.Context, tx pgx.Tx, id uuid.UUID, commissionAmount int64, commissionRate float64) (*db.BookingEntity, error) {
	entity, err := l.selectForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	switch entity.Status {
	case db.BookingConfirmed:
		return entity, nil
	case db.BookingPending:
		if err := l.repo.UpdateConfirmed(ctx, tx, id, commissionAmount, commissionRate); err != nil {
			return nil, err
		}
		entity.Status = db.BookingConfirmed
		entity.CommissionAmount = &commissionAmount
		entity.CommissionRate = &commissionRate
		return entity, nil
	default:
		return nil, l.rejectTransition(ctx, entity, "confirm")
	}
}

// Fail moves PENDING to FAILED, releasing the date. Idempotent.
func (l *Ledger) Fail(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*db.BookingEntity, error) {
	entity, err := l.selectForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	switch entity.Status {
	case db.BookingFailed:
		return entity, nil
	case db.BookingPending:
		if err := l.repo.UpdateFailed(ctx, tx, id); err != nil {
			return nil, err
		}
		entity.Status = db.BookingFailed
		return entity, nil
	default:
		return nil, l.rejectTransition(ctx, entity, "fail")
	}
}

// Refund moves CONFIRMED to REFUNDED, storing the refunded amounts next to
// the untouched originals.
func (l *Ledger) Refund(ctx context.Context, tx pgx.Tx, id uuid.UUID, refundedAmount, refundedCommission int64) (*db.BookingEntity, error) {
	if refundedAmount < 0 || refundedCommission < 0 {
		return nil, errors.Wrap(ErrInvalidInput, "negative refund amount")
	}

	entity, err := l.selectForUpdate(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if entity.Status != db.BookingConfirmed {
		return nil, l.rejectTransition(ctx, entity, "refund")
	}

	if err := l.repo.UpdateRefunded(ctx, tx, id, refundedAmount, refundedCommission); err != nil {
		return nil, err
	}
	entity.Status = db.BookingRefunded
	entity.RefundedAmount = &refundedAmount
	entity.RefundedCommission = &refundedCommission
	return entity, nil
}

func (l *Ledger) selectForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*db.BookingEntity, error) {
	entity, err := l.repo.SelectForUpdateByID(ctx, tx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (l *Ledger) rejectTransition(ctx context.Context, entity *db.BookingEntity, op string) error {
	l.logger.ErrorContext(ctx, "Rejected booking transition",
		"bookingId", entity.ID.String(), "status", entity.Status, "operation", op)
	return errors.Wrapf(ErrInvalidTransition, "%s on %s booking", op, entity.Status)
}
