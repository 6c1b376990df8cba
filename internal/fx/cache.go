package fx

import (
	"context"
	"sync"
	"time"

	"kimp/internal/logger"
)

// Cache memoizes an upstream Source for a TTL and degrades to the last
// known rate on fetch failure. USDKRW never returns an error: before any
// successful fetch the default rate is served.
type Cache struct {
	src Source
	ttl time.Duration

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time

	now func() time.Time
}

func NewCache(src Source, ttl time.Duration) *Cache {
	return &Cache{src: src, ttl: ttl, rate: DefaultRate, now: time.Now}
}

func (c *Cache) USDKRW(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && c.now().Sub(c.fetchedAt) < c.ttl {
		return c.rate, nil
	}
	rate, err := c.src.USDKRW(ctx)
	if err != nil {
		logger.Warnf("fx fetch failed, keeping rate %.2f: %v", c.rate, err)
		return c.rate, nil
	}
	c.rate = rate
	c.fetchedAt = c.now()
	return c.rate, nil
}

var _ Source = (*Cache)(nil)
