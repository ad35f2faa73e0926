package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"posbackoffice/backend/internal/domain"
)

func TestMemoryReportCacheExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := NewMemoryReportCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "k", &domain.SalesSummary{StoreID: "main-store", Transactions: 3}, 30*time.Second))

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3), got.Transactions)

	now = now.Add(30 * time.Second)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryReportCacheIgnoresNil(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryReportCache()
	require.NoError(t, c.Set(ctx, "k", nil, time.Minute))
	_, ok, _ := c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestNoopReportCacheNeverHits(t *testing.T) {
	var c ReportCache = NoopReportCache{}
	require.NoError(t, c.Set(context.Background(), "k", &domain.SalesSummary{}, time.Minute))
	_, ok, err := c.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSummaryKeyNormalisesToUTC(t *testing.T) {
	jakarta := time.FixedZone("WIB", 7*3600)
	from := time.Date(2026, 5, 1, 7, 0, 0, 0, jakarta)
	to := from.Add(24 * time.Hour)
	assert.Equal(t,
		"report:summary:main-store:2026-05-01T00:00:00Z:2026-05-02T00:00:00Z",
		SummaryKey("main-store", from, to))
}
