package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const eventColumns = `id, provider_event_id, event_type, payment_ref, payload, status,
	attempts, last_error, created_at, updated_at, processed_at`

type PaymentEventRepository struct {
	pool *pgxpool.Pool
}

func NewPaymentEventRepository(pool *pgxpool.Pool) *PaymentEventRepository {
	return &PaymentEventRepository{pool: pool}
}

func (r *PaymentEventRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// SelectForUpdateByProviderID locks the event row for the transaction so
// concurrent deliveries of the same provider event id serialize. Returns
// nil when the event has not been seen before.
func (r *PaymentEventRepository) SelectForUpdateByProviderID(ctx context.Context, tx pgx.Tx, providerEventID string) (*PaymentEventEntity, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_event WHERE provider_event_id = $1 FOR UPDATE`
	entity, err := scanEvent(tx.QueryRow(ctx, query, providerEventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return entity, err
}

func (r *PaymentEventRepository) SelectByProviderID(ctx context.Context, providerEventID string) (*PaymentEventEntity, error) {
	query := `SELECT ` + eventColumns + ` FROM payment_event WHERE provider_event_id = $1`
	return scanEvent(r.pool.QueryRow(ctx, query, providerEventID))
}

func (r *PaymentEventRepository) Create(ctx context.Context, tx pgx.Tx, entity *PaymentEventEntity) (*PaymentEventEntity, error) {
	query := `INSERT INTO payment_event (id, provider_event_id, event_type, payment_ref, payload, status, attempts)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          RETURNING created_at, updated_at`
	err := tx.QueryRow(ctx, query, entity.ID, entity.ProviderEventID, entity.EventType,
		entity.PaymentRef, entity.Payload, entity.Status, entity.Attempts).
		Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

func (r *PaymentEventRepository) MarkProcessed(ctx context.Context, tx pgx.Tx, providerEventID string) error {
	query := `UPDATE payment_event
	          SET status = $2, attempts = attempts + 1, last_error = NULL,
	              processed_at = now(), updated_at = now()
	          WHERE provider_event_id = $1`
	_, err := tx.Exec(ctx, query, providerEventID, EventProcessed)
	return err
}

// RecordFailure upserts a FAILED row for the event outside the business
// transaction, so the failure survives its rollback and the attempt
// counter keeps growing across provider redeliveries. A row that a
// concurrent delivery already committed PROCESSED is never demoted.
func (r *PaymentEventRepository) RecordFailure(ctx context.Context, entity *PaymentEventEntity, lastError string) error {
	query := `INSERT INTO payment_event (id, provider_event_id, event_type, payment_ref, payload, status, attempts, last_error)
	          VALUES ($1, $2, $3, $4, $5, $6, 1, $7)
	          ON CONFLICT (provider_event_id) DO UPDATE
	          SET status = EXCLUDED.status,
	              attempts = payment_event.attempts + 1,
	              last_error = EXCLUDED.last_error,
	              updated_at = now()
	          WHERE payment_event.status <> $8`
	_, err := r.pool.Exec(ctx, query, entity.ID, entity.ProviderEventID, entity.EventType,
		entity.PaymentRef, entity.Payload, EventFailed, lastError, EventProcessed)
	return err
}

func scanEvent(row pgx.Row) (*PaymentEventEntity, error) {
	var entity PaymentEventEntity
	err := row.Scan(&entity.ID, &entity.ProviderEventID, &entity.EventType, &entity.PaymentRef,
		&entity.Payload, &entity.Status, &entity.Attempts, &entity.LastError,
		&entity.CreatedAt, &entity.UpdatedAt, &entity.ProcessedAt)
	if err != nil {
		return nil, err
	}
	return &entity, nil
}
