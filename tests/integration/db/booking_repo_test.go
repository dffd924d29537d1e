package db

import (
	"context"
	"log"
	"testing"
	"time"

	"booking-engine/internal/db"
	"booking-engine/tests/testhelpers"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type BookingRepositoryTestSuite struct {
	suite.Suite
	pgContainer *testhelpers.PostgresContainer
	pool        *pgxpool.Pool
	sut         *db.BookingRepository
	ctx         context.Context
}

func (s *BookingRepositoryTestSuite) SetupSuite() {
	time.Local = time.UTC

	s.ctx = context.Background()
	pgContainer, err := testhelpers.CreatePostgresContainer(s.ctx)
	if err != nil {
		log.Fatal(err)
	}
	s.pgContainer = pgContainer

	if err := db.RunMigrations(pgContainer.ConnectionString, "../../../migrations"); err != nil {
		log.Fatal(err)
	}

	pool, err := db.GetPool(pgContainer.ConnectionString)
	if err != nil {
		log.Fatal(err)
	}

	s.pool = pool
	s.sut = db.NewBookingRepository(pool)
}

func (s *BookingRepositoryTestSuite) TearDownSuite() {
	s.pool.Close()

	if err := s.pgContainer.Terminate(s.ctx); err != nil {
		log.Fatalf("error terminating postgres container: %s", err)
	}
}

func (s *BookingRepositoryTestSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, "DELETE FROM booking")
	if err != nil {
		log.Fatalf("error truncating booking table: %s", err)
	}
}

func (s *BookingRepositoryTestSuite) create(tenantID string, status string) *db.BookingEntity {
	tx, err := s.sut.BeginTx(s.ctx)
	if err != nil {
		log.Fatalf("error starting transaction: %s", err)
	}
	defer tx.Rollback(s.ctx)

	entity := &db.BookingEntity{
		ID:          uuid.New(),
		TenantID:    tenantID,
		BookingDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		GrossAmount: 50000,
		Status:      status,
	}
	if _, err := s.sut.Create(s.ctx, tx, entity); err != nil {
		log.Fatalf("error creating booking: %s", err)
	}
	if err := tx.Commit(s.ctx); err != nil {
		log.Fatalf("error committing: %s", err)
	}
	return entity
}

func (s *BookingRepositoryTestSuite) TestActiveDateIndex_RejectsSecondActive() {
	t := s.T()

	s.create("tenant-1", db.BookingPending)

	tx, err := s.sut.BeginTx(s.ctx)
	assert.NoError(t, err)
	defer tx.Rollback(s.ctx)

	_, err = s.sut.Create(s.ctx, tx, &db.BookingEntity{
		ID:          uuid.New(),
		TenantID:    "tenant-1",
		BookingDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		GrossAmount: 60000,
		Status:      db.BookingPending,
	})

	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)
	assert.Equal(t, "booking_tenant_date_active_uq", pgErr.ConstraintName)
}

func (s *BookingRepositoryTestSuite) TestActiveDateIndex_IgnoresFailedRows() {
	t := s.T()

	s.create("tenant-1", db.BookingFailed)

	tx, err := s.sut.BeginTx(s.ctx)
	assert.NoError(t, err)
	defer tx.Rollback(s.ctx)

	_, err = s.sut.Create(s.ctx, tx, &db.BookingEntity{
		ID:          uuid.New(),
		TenantID:    "tenant-1",
		BookingDate: time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC),
		GrossAmount: 60000,
		Status:      db.BookingPending,
	})
	assert.NoError(t, err)
	assert.NoError(t, tx.Commit(s.ctx))
}

func (s *BookingRepositoryTestSuite) TestPaymentRefUnique() {
	t := s.T()

	first := s.create("tenant-1", db.BookingPending)
	second := s.create("tenant-2", db.BookingPending)

	tx, err := s.sut.BeginTx(s.ctx)
	assert.NoError(t, err)
	assert.NoError(t, s.sut.UpdatePaymentRef(s.ctx, tx, first.ID, "pay_1"))

	err = s.sut.UpdatePaymentRef(s.ctx, tx, second.ID, "pay_1")
	var pgErr *pgconn.PgError
	assert.True(t, errors.As(err, &pgErr))
	assert.Equal(t, "23505", pgErr.Code)

	tx.Rollback(s.ctx)
}

func (s *BookingRepositoryTestSuite) TestSelectForUpdateByPaymentRef() {
	t := s.T()

	created := s.create("tenant-1", db.BookingPending)

	tx, err := s.sut.BeginTx(s.ctx)
	assert.NoError(t, err)
	assert.NoError(t, s.sut.UpdatePaymentRef(s.ctx, tx, created.ID, "pay_1"))
	assert.NoError(t, tx.Commit(s.ctx))

	tx, err = s.sut.BeginTx(s.ctx)
	assert.NoError(t, err)
	defer tx.Rollback(s.ctx)

	entity, err := s.sut.SelectForUpdateByPaymentRef(s.ctx, tx, "pay_1")
	assert.NoError(t, err)
	assert.Equal(t, created.ID, entity.ID)
}

func TestBookingRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(BookingRepositoryTestSuite))
}
