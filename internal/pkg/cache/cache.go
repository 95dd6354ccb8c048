package cache

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/huntyio/membership/internal/pkg/config"
)

var (
	client *redis.Client
	mu     sync.Mutex
)

// Setup initializes the shared redis connection backing the job queue and rate limiter
func Setup(cfg config.Cache) *redis.Client {
	c := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pong, err := c.Ping(ctx).Result()
	if err != nil {
		log.Printf("Warning: Could not connect to redis cache: %v", err)
	} else {
		log.Printf("Successfully connected to redis cache: %s", pong)
	}

	SetClient(c)
	return c
}

// SetupCache initializes the connection from the process settings
func SetupCache() {
	Setup(config.Get().Cache)
}

// SetClient replaces the shared client
func SetClient(c *redis.Client) {
	mu.Lock()
	defer mu.Unlock()
	client = c
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	mu.Lock()
	c := client
	mu.Unlock()
	if c == nil {
		SetupCache()
		mu.Lock()
		c = client
		mu.Unlock()
	}
	return c
}

// Ping checks the shared connection
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// Close releases the shared connection
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if client == nil {
		return nil
	}
	err := client.Close()
	client = nil
	return err
}
