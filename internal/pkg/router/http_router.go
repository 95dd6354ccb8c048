package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/huntyio/membership/internal/pkg/constants"
	"github.com/huntyio/membership/internal/pkg/ratelimit"
)

// HttpRouter mounts the processor-facing webhook and operational endpoints
type HttpRouter struct {
	ctrls Controllers
	opts  Options
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, h.ctrls.Health.HandleHealth)

	// fiber metrics
	app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{
		Authorizer: func(user, pass string) bool {
			// An unset password locks the dashboard.
			return h.opts.Settings.App.MetricsPass != "" &&
				user == h.opts.Settings.App.MetricsUser &&
				pass == h.opts.Settings.App.MetricsPass
		},
	}), monitor.New())

	// Processor retries are bursty; the limit is generous and per source IP.
	webhookLimit := ratelimit.New(h.opts.Storage, h.opts.Settings.API.RateLimitMax*5, h.opts.Settings.API.RateLimitWindow)
	app.Post(constants.TreliWebhookRoute, webhookLimit, h.ctrls.Webhook.HandleTreliWebhook)
}

func NewHttpRouter(ctrls Controllers, opts Options) *HttpRouter {
	return &HttpRouter{ctrls: ctrls, opts: opts}
}
