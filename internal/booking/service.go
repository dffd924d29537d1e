package booking

import (
	"context"
	"log/slog"
	"time"

	"booking-engine/internal/cache"
	"booking-engine/internal/db"
	"booking-engine/internal/logcontext"
	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const defaultLockTimeoutMs = 5_000

var (
	createSuccessCounter  = metrics.GetOrCreateCounter(`booking_create_total{result="success"}`)
	createConflictCounter = metrics.GetOrCreateCounter(`booking_create_total{result="date_conflict"}`)
	createTimeoutCounter  = metrics.GetOrCreateCounter(`booking_create_total{result="timeout"}`)
	createErrorCounter    = metrics.GetOrCreateCounter(`booking_create_total{result="error"}`)

	createDurationHistogram = metrics.GetOrCreateHistogram(`booking_create_duration_milliseconds`)
)

// Service wraps ledger creation in the per-(tenant,date) lock discipline:
// an advisory lock on the derived key serializes same-key attempts while
// unrelated tenants and dates proceed in parallel. Isolation stays
// read-committed; correctness comes from the lock plus the unique index.
type Service struct {
	repo        *db.BookingRepository
	ledger      *Ledger
	cache       *cache.AvailabilityCache
	lockTimeout time.Duration
	logger      *slog.Logger
}

func NewService(repo *db.BookingRepository, ledger *Ledger, availability *cache.AvailabilityCache, lockTimeoutMs int, logger *slog.Logger) *Service {
	if lockTimeoutMs <= 0 {
		lockTimeoutMs = defaultLockTimeoutMs
	}
	return &Service{
		repo:        repo,
		ledger:      ledger,
		cache:       availability,
		lockTimeout: time.Duration(lockTimeoutMs) * time.Millisecond,
		logger:      logger,
	}
}

func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Create reserves the date for the tenant. Exactly one of N concurrent
// calls for the same tenant+date wins; the rest get ErrDateConflict, which
// is never retried here. Exceeding the lock/transaction deadline yields
// ErrTimeout, which the caller may retry.
func (s *Service) Create(ctx context.Context, tenantID string, date time.Time, grossAmount int64) (*db.BookingEntity, error) {
	startTime := time.Now()
	defer func() {
		createDurationHistogram.Update(float64(time.Since(startTime).Milliseconds()))
	}()

	ctx = logcontext.AppendCtx(ctx, slog.String("tenantId", tenantID))
	ctx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, s.mapCreateError(ctx, err, "begin transaction")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	if err := s.repo.AcquireDateLock(ctx, tx, LockKey(tenantID, date)); err != nil {
		return nil, s.mapCreateError(ctx, err, "acquire date lock")
	}

	entity, err := s.ledger.Create(ctx, tx, tenantID, date, grossAmount)
	if errors.Is(err, ErrDateConflict) {
		s.logger.InfoContext(ctx, "Date conflict on booking create", "date", date.Format(dateLayout))
		createConflictCounter.Inc()
		return nil, err
	}
	if err != nil {
		return nil, s.mapCreateError(ctx, err, "create booking")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.mapCreateError(ctx, err, "commit")
	}

	s.invalidate(ctx, tenantID, date)
	createSuccessCounter.Inc()
	return entity, nil
}

// AttachPaymentReference records the provider payment reference the
// checkout layer obtained for a pending booking.
func (s *Service) AttachPaymentReference(ctx context.Context, id uuid.UUID, paymentRef string) (*db.BookingEntity, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*db.BookingEntity, error) {
		return s.ledger.AttachPaymentReference(ctx, tx, id, paymentRef)
	})
}

// Available answers the polling read "is this date free for this tenant",
// through the tenant-keyed cache when one is configured.
func (s *Service) Available(ctx context.Context, tenantID string, date time.Time) (bool, error) {
	if available, ok := s.cache.Get(ctx, tenantID, date); ok {
		return available, nil
	}

	taken, err := s.repo.ExistsActive(ctx, tenantID, date)
	if err != nil {
		return false, err
	}

	s.cache.Set(ctx, tenantID, date, !taken)
	return !taken, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*db.BookingEntity, error) {
	entity, err := s.repo.SelectByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entity, err
}

func (s *Service) inTx(ctx context.Context, fn func(tx pgx.Tx) (*db.BookingEntity, error)) (*db.BookingEntity, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin transaction")
	}
	defer tx.Rollback(context.WithoutCancel(ctx))

	entity, err := fn(tx)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return entity, nil
}

func (s *Service) invalidate(ctx context.Context, tenantID string, date time.Time) {
	s.cache.Invalidate(context.WithoutCancel(ctx), tenantID, date)
}

func (s *Service) mapCreateError(ctx context.Context, err error, op string) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		s.logger.WarnContext(ctx, "Booking create timed out", "operation", op)
		createTimeoutCounter.Inc()
		return ErrTimeout
	}
	s.logger.ErrorContext(ctx, "Booking create failed", "operation", op, "error", err)
	createErrorCounter.Inc()
	return errors.Wrap(err, op)
}
