package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/huntyio/membership/internal/pkg/middleware"
	"github.com/huntyio/membership/internal/pkg/ratelimit"
)

type ApiRouter struct {
	ctrls Controllers
	opts  Options
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api",
		ratelimit.New(h.opts.Storage, h.opts.Settings.API.RateLimitMax, h.opts.Settings.API.RateLimitWindow),
		middleware.APIKeyAuthMiddleware(h.opts.Settings.API.APIKeys()),
	)

	// API v1 routes
	v1 := api.Group("/v1")
	v1.Get("/payments", h.ctrls.Membership.HandleGetPayments)
	v1.Get("/users/:user_id/subscription", h.ctrls.Membership.HandleGetSubscription)
	v1.Get("/users/:user_id/hunty-subscription", h.ctrls.Membership.HandleGetHuntySubscription)
	v1.Get("/jobs/stats", h.ctrls.Jobs.HandleJobStats)
	v1.Get("/jobs", h.ctrls.Jobs.HandleListJobs)
}

func NewApiRouter(ctrls Controllers, opts Options) *ApiRouter {
	return &ApiRouter{ctrls: ctrls, opts: opts}
}
