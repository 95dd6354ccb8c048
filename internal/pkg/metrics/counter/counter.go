// Package counter keeps webhook delivery tallies in redis hashes.
package counter

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

const (
	webhookEventsKey   = "webhook:counters:events"
	webhookOutcomesKey = "webhook:counters:outcomes"
)

// Outcome of a webhook delivery
const (
	OutcomeQueued    = "queued"
	OutcomeProcessed = "processed"
	OutcomeFailed    = "failed"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFallback  = "fallback"
)

// Counters increments and reads the webhook tallies
type Counters struct {
	client *redis.Client
}

func New(client *redis.Client) *Counters {
	return &Counters{client: client}
}

// AddEvent counts one delivery of an event type and its outcome
func (c *Counters) AddEvent(ctx context.Context, eventType, outcome string) error {
	if c == nil || c.client == nil {
		return nil
	}
	pipe := c.client.Pipeline()
	if eventType != "" {
		pipe.HIncrBy(ctx, webhookEventsKey, eventType, 1)
	}
	pipe.HIncrBy(ctx, webhookOutcomesKey, outcome, 1)
	_, err := pipe.Exec(ctx)
	return err
}

// Snapshot returns counts per event type and per outcome
func (c *Counters) Snapshot(ctx context.Context) (events map[string]int64, outcomes map[string]int64, err error) {
	if c == nil || c.client == nil {
		return map[string]int64{}, map[string]int64{}, nil
	}
	if events, err = readHash(ctx, c.client, webhookEventsKey); err != nil {
		return nil, nil, err
	}
	if outcomes, err = readHash(ctx, c.client, webhookOutcomesKey); err != nil {
		return nil, nil, err
	}
	return events, outcomes, nil
}

func readHash(ctx context.Context, rdb *redis.Client, key string) (map[string]int64, error) {
	data, err := rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(data))
	for field, raw := range data {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			continue
		}
		out[field] = n
	}
	return out, nil
}
