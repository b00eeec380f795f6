package memory

import (
	"context"
	"sync"
	"time"
)

// ConsumedCodes is an in-process replay guard.
type ConsumedCodes struct {
	mu    sync.Mutex
	items map[string]time.Time
	now   func() time.Time
}

func NewConsumedCodes() *ConsumedCodes {
	return &ConsumedCodes{items: make(map[string]time.Time), now: time.Now}
}

func (c *ConsumedCodes) Consume(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.items[key]; ok && now.Before(exp) {
		return false, nil
	}

	// sweep lazily so the map cannot grow without bound
	for k, exp := range c.items {
		if !now.Before(exp) {
			delete(c.items, k)
		}
	}

	c.items[key] = now.Add(ttl)
	return true, nil
}
