package event

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"booking-engine/internal/booking"
	"booking-engine/internal/cache"
	"booking-engine/internal/commission"
	"booking-engine/internal/db"
	"booking-engine/internal/logcontext"
	"booking-engine/internal/message"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// Outcome classifies one delivery attempt for the transport layer.
type Outcome int

const (
	// OutcomeProcessed means the event's side effect was applied.
	OutcomeProcessed Outcome = iota
	// OutcomeDuplicate means the event id was already PROCESSED; nothing
	// was reapplied and the delivery is acknowledged as success.
	OutcomeDuplicate
	// OutcomeAuthFailed means the signature did not verify. No event row
	// is created and no booking is touched.
	OutcomeAuthFailed
	// OutcomeRejected means the payload could not even identify an event.
	// Redelivery of the same bytes cannot succeed.
	OutcomeRejected
	// OutcomeFailed means processing failed after the event was
	// identified. The failure is recorded and the provider should
	// redeliver.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "failed"
	}
}

var (
	processedCounter  = metrics.GetOrCreateCounter(`payment_event_total{result="processed"}`)
	duplicateCounter  = metrics.GetOrCreateCounter(`payment_event_total{result="duplicate"}`)
	authFailedCounter = metrics.GetOrCreateCounter(`payment_event_total{result="auth_failed"}`)
	rejectedCounter   = metrics.GetOrCreateCounter(`payment_event_total{result="rejected"}`)
	failedCounter     = metrics.GetOrCreateCounter(`payment_event_total{result="failed"}`)

	processDurationHistogram = metrics.GetOrCreateHistogram(`payment_event_duration_milliseconds`)
)

// Reconciler drives booking transitions from provider events. Each event id
// is applied at most once: the event row is locked FOR UPDATE, the booking
// transition and the PROCESSED mark commit together, and redeliveries of a
// processed id short-circuit.
type Reconciler struct {
	events   *db.PaymentEventRepository
	bookings *db.BookingRepository
	ledger   *booking.Ledger
	rates    *db.CommissionConfigRepository
	cache    *cache.AvailabilityCache
	secret   string
	logger   *slog.Logger
}

func NewReconciler(events *db.PaymentEventRepository, bookings *db.BookingRepository, ledger *booking.Ledger,
	rates *db.CommissionConfigRepository, availability *cache.AvailabilityCache, secret string, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		events:   events,
		bookings: bookings,
		ledger:   ledger,
		rates:    rates,
		cache:    availability,
		secret:   secret,
		logger:   logger,
	}
}

// Process handles one delivery: verify, dedup, transition, mark processed.
func (r *Reconciler) Process(ctx context.Context, payload []byte, signature string) Outcome {
	startTime := time.Now()
	defer func() {
		processDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	if !VerifySignature(r.secret, payload, signature) {
		r.logger.WarnContext(ctx, "Rejected payment event with invalid signature")
		authFailedCounter.Inc()
		return OutcomeAuthFailed
	}

	var msg message.PaymentEvent
	if err := json.Unmarshal(payload, &msg); err != nil {
		r.logger.ErrorContext(ctx, "Unparseable payment event payload", "error", err)
		rejectedCounter.Inc()
		return OutcomeRejected
	}
	if msg.ID == "" || msg.Type == "" || msg.PaymentRef == "" {
		r.logger.ErrorContext(ctx, "Payment event missing id, type or payment reference")
		rejectedCounter.Inc()
		return OutcomeRejected
	}

	ctx = logcontext.AppendCtx(ctx, slog.String("eventId", msg.ID))
	ctx = logcontext.AppendCtx(ctx, slog.String("eventType", msg.Type))

	outcome := r.process(ctx, msg, payload)

	switch outcome {
	case OutcomeProcessed:
		processedCounter.Inc()
	case OutcomeDuplicate:
		duplicateCounter.Inc()
	default:
		failedCounter.Inc()
	}
	return outcome
}

func (r *Reconciler) process(ctx context.Context, msg message.PaymentEvent, payload []byte) (outcome Outcome) {
	tx, err := r.events.BeginTx(ctx)
	if err != nil {
		return r.recordFailure(ctx, msg, payload, errors.Wrap(err, "begin transaction"))
	}

	// An escaped panic must still leave a well-formed FAILED row behind,
	// not an event stuck at RECEIVED.
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			outcome = r.recordFailure(ctx, msg, payload, fmt.Errorf("panic: %v", p))
		}
	}()
	defer tx.Rollback(context.WithoutCancel(ctx))

	existing, err := r.events.SelectForUpdateByProviderID(ctx, tx, msg.ID)
	if err != nil {
		tx.Rollback(context.WithoutCancel(ctx))
		return r.recordFailure(ctx, msg, payload, errors.Wrap(err, "select event"))
	}

	if existing != nil && existing.Status == db.EventProcessed {
		r.logger.InfoContext(ctx, "Skipping already processed payment event")
		return OutcomeDuplicate
	}

	if existing == nil {
		entity := &db.PaymentEventEntity{
			ID:              uuid.New(),
			ProviderEventID: msg.ID,
			EventType:       msg.Type,
			PaymentRef:      msg.PaymentRef,
			Payload:         string(payload),
			Status:          db.EventReceived,
		}
		if _, err := r.events.Create(ctx, tx, entity); err != nil {
			tx.Rollback(context.WithoutCancel(ctx))
			return r.recordFailure(ctx, msg, payload, errors.Wrap(err, "create event"))
		}
	}

	bookingEntity, err := r.applyTransition(ctx, tx, msg)
	if err != nil {
		tx.Rollback(context.WithoutCancel(ctx))
		return r.recordFailure(ctx, msg, payload, err)
	}

	if err := r.events.MarkProcessed(ctx, tx, msg.ID); err != nil {
		tx.Rollback(context.WithoutCancel(ctx))
		return r.recordFailure(ctx, msg, payload, errors.Wrap(err, "mark processed"))
	}

	if err := tx.Commit(ctx); err != nil {
		return r.recordFailure(ctx, msg, payload, errors.Wrap(err, "commit"))
	}

	r.cache.Invalidate(context.WithoutCancel(ctx), bookingEntity.TenantID, bookingEntity.BookingDate)
	r.logger.InfoContext(ctx, "Processed payment event", "bookingId", bookingEntity.ID.String())
	return OutcomeProcessed
}

// applyTransition locates the booking by payment reference and applies the
// transition implied by the event type, inside the caller's transaction.
func (r *Reconciler) applyTransition(ctx context.Context, tx pgx.Tx, msg message.PaymentEvent) (*db.BookingEntity, error) {
	bookingEntity, err := r.bookings.SelectForUpdateByPaymentRef(ctx, tx, msg.PaymentRef)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.Errorf("no booking for payment reference %q", msg.PaymentRef)
	}
	if err != nil {
		return nil, errors.Wrap(err, "select booking by payment reference")
	}

	switch msg.Type {
	case message.PaymentSucceeded:
		return r.confirm(ctx, tx, bookingEntity)
	case message.PaymentFailed:
		return r.ledger.Fail(ctx, tx, bookingEntity.ID)
	case message.PaymentRefunded:
		return r.refund(ctx, tx, bookingEntity, msg.Amount)
	default:
		return nil, errors.Errorf("unsupported event type %q", msg.Type)
	}
}

func (r *Reconciler) confirm(ctx context.Context, tx pgx.Tx, bookingEntity *db.BookingEntity) (*db.BookingEntity, error) {
	rate, err := r.rates.GetRate(ctx, bookingEntity.TenantID)
	if err != nil {
		return nil, errors.Wrap(err, "load commission rate")
	}

	result, err := commission.Fee(bookingEntity.GrossAmount, rate)
	if err != nil {
		return nil, errors.Wrap(err, "compute commission")
	}
	if result.Clamped {
		// Configuration anomaly, not a reason to lose a sale.
		r.logger.WarnContext(ctx, "Commission rate outside provider bounds, fee clamped",
			"tenantId", bookingEntity.TenantID, "rate", rate, "raw", result.Raw, "fee", result.Fee)
	}

	return r.ledger.Confirm(ctx, tx, bookingEntity.ID, result.Fee, rate)
}

func (r *Reconciler) refund(ctx context.Context, tx pgx.Tx, bookingEntity *db.BookingEntity, refundAmount int64) (*db.BookingEntity, error) {
	if refundAmount <= 0 {
		return nil, errors.Errorf("refund event without a positive amount, got %d", refundAmount)
	}
	if bookingEntity.Status != db.BookingConfirmed {
		// Delegate so the rejection is guarded and logged in one place.
		return r.ledger.Refund(ctx, tx, bookingEntity.ID, refundAmount, 0)
	}
	if bookingEntity.CommissionAmount == nil {
		return nil, errors.Errorf("confirmed booking %s has no commission snapshot", bookingEntity.ID)
	}

	refundedCommission, err := commission.RefundFee(*bookingEntity.CommissionAmount, refundAmount, bookingEntity.GrossAmount)
	if err != nil {
		return nil, errors.Wrap(err, "compute refund commission")
	}

	return r.ledger.Refund(ctx, tx, bookingEntity.ID, refundAmount, refundedCommission)
}

// recordFailure parks the event FAILED with the error and a bumped attempt
// counter, outside the rolled-back business transaction, and reports a
// retryable outcome so the provider redelivers. When a concurrent delivery
// of the same event id already committed PROCESSED, the row is left alone
// and the delivery is acknowledged as a duplicate.
func (r *Reconciler) recordFailure(ctx context.Context, msg message.PaymentEvent, payload []byte, cause error) Outcome {
	ctx = context.WithoutCancel(ctx)

	entity := &db.PaymentEventEntity{
		ID:              uuid.New(),
		ProviderEventID: msg.ID,
		EventType:       msg.Type,
		PaymentRef:      msg.PaymentRef,
		Payload:         string(payload),
	}
	if err := r.events.RecordFailure(ctx, entity, cause.Error()); err != nil {
		r.logger.ErrorContext(ctx, "Could not record payment event failure", "error", err)
	}

	existing, err := r.events.SelectByProviderID(ctx, msg.ID)
	if err == nil && existing.Status == db.EventProcessed {
		r.logger.InfoContext(ctx, "Payment event processed by a concurrent delivery", "error", cause)
		return OutcomeDuplicate
	}

	r.logger.ErrorContext(ctx, "Payment event processing failed", "error", cause)
	return OutcomeFailed
}
