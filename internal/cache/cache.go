package cache

import (
	"context"
	"time"

	"posbackoffice/backend/internal/domain"
)

// ReportCache holds computed sales summaries keyed by store and range.
type ReportCache interface {
	Get(ctx context.Context, key string) (*domain.SalesSummary, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesSummary, ttl time.Duration) error
}

type NoopReportCache struct{}

func (NoopReportCache) Get(_ context.Context, _ string) (*domain.SalesSummary, bool, error) {
	return nil, false, nil
}

func (NoopReportCache) Set(_ context.Context, _ string, _ *domain.SalesSummary, _ time.Duration) error {
	return nil
}

// SummaryKey builds the cache key for a summary over [from, to).
func SummaryKey(storeID string, from time.Time, to time.Time) string {
	return "report:summary:" + storeID + ":" + from.UTC().Format(time.RFC3339) + ":" + to.UTC().Format(time.RFC3339)
}
