package repository

import (
	"context"
	"sort"

	"github.com/redis/go-redis/v9"
)

// QueueRepository reads job records and queue lists from redis
type QueueRepository interface {
	FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error)
	GetValues(ctx context.Context, keys []string) (map[string]string, error)
	GetListLength(ctx context.Context, key string) (int64, error)
}

// queueRepository implements the QueueRepository interface
type queueRepository struct {
	client *redis.Client
}

// NewQueueRepository creates a new queue repository instance
func NewQueueRepository(client *redis.Client) QueueRepository {
	return &queueRepository{client: client}
}

// GetListLength returns the length of a Redis list
func (r *queueRepository) GetListLength(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, key).Result()
}

// GetValues fetches string values in batches; missing keys are omitted.
func (r *queueRepository) GetValues(ctx context.Context, keys []string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	const batchSize = 500

	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}

		values, err := r.client.MGet(ctx, keys[i:end]...).Result()
		if err != nil {
			return nil, err
		}
		for j, v := range values {
			if s, ok := v.(string); ok {
				out[keys[i+j]] = s
			}
		}
	}
	return out, nil
}

// FindKeysByPatterns retrieves keys for the provided Redis match patterns using SCAN.
func (r *queueRepository) FindKeysByPatterns(ctx context.Context, patterns []string) ([]string, error) {
	uniqueKeys := make(map[string]struct{})

	for _, pattern := range patterns {
		if pattern == "" {
			continue
		}

		var cursor uint64
		for {
			keys, nextCursor, err := r.client.Scan(ctx, cursor, pattern, 500).Result()
			if err != nil {
				return nil, err
			}

			for _, key := range keys {
				uniqueKeys[key] = struct{}{}
			}

			cursor = nextCursor
			if cursor == 0 {
				break
			}
		}
	}

	keys := make([]string, 0, len(uniqueKeys))
	for key := range uniqueKeys {
		keys = append(keys, key)
	}

	sort.Strings(keys)
	return keys, nil
}
