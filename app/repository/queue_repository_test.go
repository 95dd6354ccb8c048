package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	host := os.Getenv("CACHE_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("CACHE_PORT")
	if port == "" {
		port = "6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: os.Getenv("CACHE_PASSWORD"),
		DB:       12,
	})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Skipping Redis-dependent test: %v", err)
	}
	require.NoError(t, client.FlushDB(context.Background()).Err())
	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})
	return client
}

func TestQueueRepository(t *testing.T) {
	client := newTestRedis(t)
	repo := NewQueueRepository(client)
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "job:b", `{"id":"b"}`, time.Minute).Err())
	require.NoError(t, client.Set(ctx, "job:a", `{"id":"a"}`, time.Minute).Err())
	require.NoError(t, client.Set(ctx, "other", "x", time.Minute).Err())
	require.NoError(t, client.LPush(ctx, "job_queue", "a", "b").Err())

	keys, err := repo.FindKeysByPatterns(ctx, []string{"job:*", "", "job:a"})
	require.NoError(t, err)
	assert.Equal(t, []string{"job:a", "job:b"}, keys)

	values, err := repo.GetValues(ctx, append(keys, "job:missing"))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"job:a": `{"id":"a"}`, "job:b": `{"id":"b"}`}, values)

	n, err := repo.GetListLength(ctx, "job_queue")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}
