package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

// CommissionConfigRepository reads tenant commission rates. The config is
// owned by the onboarding flow; this engine never writes it. A tenant
// without a row gets rate 0, which the calculator's bounds raise to the
// provider minimum.
type CommissionConfigRepository struct {
	pool *pgxpool.Pool
}

func NewCommissionConfigRepository(pool *pgxpool.Pool) *CommissionConfigRepository {
	return &CommissionConfigRepository{pool: pool}
}

func (r *CommissionConfigRepository) GetRate(ctx context.Context, tenantID string) (float64, error) {
	query := `SELECT rate_percent FROM tenant_commission_config WHERE tenant_id = $1`
	var rate float64
	err := r.pool.QueryRow(ctx, query, tenantID).Scan(&rate)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return rate, nil
}
