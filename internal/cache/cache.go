package cache

import (
	"context"
	"time"

	"dukkan/backend/internal/domain"
)

// CreditStatsCache holds computed credit ledger statistics keyed by the day
// they were computed for.
type CreditStatsCache interface {
	Get(ctx context.Context, day string) (*domain.CreditStats, bool, error)
	Set(ctx context.Context, day string, value *domain.CreditStats, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopCreditStatsCache struct{}

func (NoopCreditStatsCache) Get(_ context.Context, _ string) (*domain.CreditStats, bool, error) {
	return nil, false, nil
}

func (NoopCreditStatsCache) Set(_ context.Context, _ string, _ *domain.CreditStats, _ time.Duration) error {
	return nil
}

func (NoopCreditStatsCache) Invalidate(_ context.Context) error {
	return nil
}
