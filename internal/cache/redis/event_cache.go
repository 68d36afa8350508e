package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/causeway-labs/causeway/internal/domain"
)

const eventTTL = 5 * time.Minute

// EventCache implements domain.EventCache using JSON-serialized event
// snapshots under string keys.
//
// Key schema:
//
//	event:{id} - JSON-encoded domain.Event
type EventCache struct {
	rdb *redis.Client
}

// NewEventCache creates an EventCache backed by the given Client.
func NewEventCache(c *Client) *EventCache {
	return &EventCache{rdb: c.Underlying()}
}

func eventKey(id int64) string {
	return "event:" + strconv.FormatInt(id, 10)
}

// Set stores an event snapshot with a 5-minute TTL.
func (ec *EventCache) Set(ctx context.Context, e domain.Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("redis: marshal event %d: %w", e.ID, err)
	}
	if err := ec.rdb.Set(ctx, eventKey(e.ID), data, eventTTL).Err(); err != nil {
		return fmt.Errorf("redis: set event %d: %w", e.ID, err)
	}
	return nil
}

// Get returns a cached event snapshot, or domain.ErrNotFound on a miss.
func (ec *EventCache) Get(ctx context.Context, id int64) (domain.Event, error) {
	data, err := ec.rdb.Get(ctx, eventKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Event{}, domain.ErrNotFound
		}
		return domain.Event{}, fmt.Errorf("redis: get event %d: %w", id, err)
	}

	var e domain.Event
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.Event{}, fmt.Errorf("redis: unmarshal event %d: %w", id, err)
	}
	return e, nil
}

// Invalidate drops a cached event snapshot. Called on resolution so readers
// never see a stale pending status longer than one round trip.
func (ec *EventCache) Invalidate(ctx context.Context, id int64) error {
	if err := ec.rdb.Del(ctx, eventKey(id)).Err(); err != nil {
		return fmt.Errorf("redis: invalidate event %d: %w", id, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventCache = (*EventCache)(nil)
