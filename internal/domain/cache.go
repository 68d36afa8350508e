package domain

import (
	"context"
	"time"
)

// EventCache provides fast event snapshot lookups in front of the store.
// Misses surface as ErrNotFound; callers fall back to the store and refill.
type EventCache interface {
	Set(ctx context.Context, e Event) error
	Get(ctx context.Context, id int64) (Event, error)
	Invalidate(ctx context.Context, id int64) error
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
