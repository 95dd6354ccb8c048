package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/huntyio/membership/app/controllers"
	"github.com/huntyio/membership/internal/pkg/config"
)

// Router installs a group of routes on the app
type Router interface {
	InstallRouter(app *fiber.App)
}

// Controllers bundles the handlers the routers mount
type Controllers struct {
	Webhook    *controllers.WebhookController
	Membership *controllers.MembershipController
	Jobs       *controllers.JobsController
	Health     *controllers.HealthController
}

// Options carries the settings and shared limiter storage used by the routers
type Options struct {
	Settings *config.Settings
	Storage  fiber.Storage
}

func InstallRouter(app *fiber.App, ctrls Controllers, opts Options) {
	setup(app, NewHttpRouter(ctrls, opts), NewApiRouter(ctrls, opts))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
