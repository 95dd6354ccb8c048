// Package ratelimit builds fiber limiters whose counters live in redis so
// limits hold across replicas.
package ratelimit

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	redisstorage "github.com/gofiber/storage/redis"
	"github.com/redis/go-redis/v9"
)

// limiterDatabase keeps limiter keys apart from the job queue (DB 0).
const limiterDatabase = 1

// NewStorage derives a fiber storage from the shared redis client's address.
// A nil client yields nil, which makes the limiter fall back to memory.
func NewStorage(client *redis.Client) fiber.Storage {
	if client == nil {
		return nil
	}
	host := "localhost"
	port := 6379
	opts := client.Options()
	if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}

	return redisstorage.New(redisstorage.Config{
		Host:     host,
		Port:     port,
		Password: opts.Password,
		Database: limiterDatabase,
		Reset:    false,
	})
}

// New returns a per-IP limiter allowing max requests per window.
func New(storage fiber.Storage, max int, window time.Duration) fiber.Handler {
	cfg := limiter.Config{
		Max:        max,
		Expiration: window,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate_limited"})
		},
	}
	if storage != nil {
		cfg.Storage = storage
	}
	return limiter.New(cfg)
}
