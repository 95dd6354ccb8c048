package controllers

import (
	"context"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// HealthController reports liveness of the service and its stores
type HealthController struct {
	checks map[string]HealthCheck
}

func NewHealthController(checks map[string]HealthCheck) *HealthController {
	return &HealthController{checks: checks}
}

// HandleHealth returns 200 when every check passes, 503 otherwise
func (hc *HealthController) HandleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 3*time.Second)
	defer cancel()

	names := make([]string, 0, len(hc.checks))
	for name := range hc.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	results := make(fiber.Map, len(names))
	for _, name := range names {
		if err := hc.checks[name](ctx); err != nil {
			healthy = false
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	code := fiber.StatusOK
	statusText := "ok"
	if !healthy {
		code = fiber.StatusServiceUnavailable
		statusText = "degraded"
	}
	return c.Status(code).JSON(fiber.Map{"status": statusText, "checks": results})
}
