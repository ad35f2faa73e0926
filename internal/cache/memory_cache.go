package cache

import (
	"context"
	"sync"
	"time"

	"posbackoffice/backend/internal/domain"
)

type memoryEntry struct {
	summary   domain.SalesSummary
	expiresAt time.Time
}

// MemoryReportCache keeps summaries in process. Used when no Redis is configured.
type MemoryReportCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryReportCache() *MemoryReportCache {
	return &MemoryReportCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryReportCache) Get(_ context.Context, key string) (*domain.SalesSummary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	summary := entry.summary
	return &summary, true, nil
}

func (c *MemoryReportCache) Set(_ context.Context, key string, value *domain.SalesSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{summary: *value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}
