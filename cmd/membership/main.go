package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/huntyio/membership/app/controllers"
	"github.com/huntyio/membership/app/repository"
	"github.com/huntyio/membership/internal/pkg/cache"
	"github.com/huntyio/membership/internal/pkg/config"
	"github.com/huntyio/membership/internal/pkg/constants"
	"github.com/huntyio/membership/internal/pkg/database"
	"github.com/huntyio/membership/internal/pkg/env"
	"github.com/huntyio/membership/internal/pkg/events"
	"github.com/huntyio/membership/internal/pkg/hubspot"
	"github.com/huntyio/membership/internal/pkg/jobqueue"
	"github.com/huntyio/membership/internal/pkg/metrics/counter"
	"github.com/huntyio/membership/internal/pkg/ratelimit"
	"github.com/huntyio/membership/internal/pkg/reconcile"
	"github.com/huntyio/membership/internal/pkg/router"
	"github.com/huntyio/membership/internal/pkg/thinkific"
	"github.com/huntyio/membership/internal/pkg/tracing"
	"github.com/huntyio/membership/internal/pkg/usermaster"
)

const shutdownTimeout = 20 * time.Second

func main() {
	env.SetupEnvFile()
	settings, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	config.Set(settings)

	shutdownTracing, err := tracing.Init(settings.App.ServiceName, settings.App.Env, settings.Tracing.Endpoint)
	if err != nil {
		log.Printf("Warning: tracing disabled: %v", err)
		shutdownTracing = func(context.Context) error { return nil }
	}

	db, err := database.Setup(settings.Database)
	if err != nil {
		log.Fatalf("database setup failed: %v", err)
	}
	rdb := cache.Setup(settings.Cache)
	repository.InitializeFactory(db)
	factory := repository.GetGlobalFactory()

	publisher := events.MustNewFromSettings(settings.Events)
	identity := usermaster.NewClientFromSettings(settings.UserMaster)
	engine := reconcile.NewEngine(
		factory.Store(),
		identity,
		identity,
		hubspot.NewClientFromSettings(settings.HubSpot),
		thinkific.NewClientFromSettings(settings.Thinkific),
		publisher,
		reconcile.Options{Scope: settings.App.Scope, Local: settings.IsLocal()},
	)

	manager := jobqueue.GetManager()
	counters := counter.New(rdb)
	webhook := controllers.NewWebhookController(
		factory.GetWebhookEventRepository(),
		engine,
		manager.GetQueue(),
		counters,
		settings.Treli.WebhookSecret,
		settings.App.SyncTimeout,
	)
	manager.RegisterHandler(jobqueue.JobTypeTreliWebhook, webhook.ProcessJob)
	manager.Start()

	ctrls := router.Controllers{
		Webhook:    webhook,
		Membership: controllers.NewMembershipController(factory.GetPaymentRepository(), factory.GetSubscriptionRepository()),
		Jobs:       controllers.NewJobsController(manager.GetQueue(), repository.NewQueueRepository(rdb), counters),
		Health: controllers.NewHealthController(map[string]controllers.HealthCheck{
			"database": func(context.Context) error { return database.Ping() },
			"redis":    cache.Ping,
		}),
	}
	app := NewApplication(settings, ctrls, ratelimit.NewStorage(rdb))

	go func() {
		addr := fmt.Sprintf("%s:%s", settings.App.Host, settings.App.Port)
		if err := app.Listen(addr); err != nil {
			log.Fatal(err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Println("Shutting down...")

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	manager.Stop()
	if !webhook.Wait(shutdownTimeout) {
		log.Printf("background webhook pipelines still running after %s", shutdownTimeout)
	}
	if err := publisher.Close(); err != nil {
		log.Printf("event publisher close: %v", err)
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil {
		log.Printf("tracing shutdown: %v", err)
	}
	if err := cache.Close(); err != nil {
		log.Printf("redis close: %v", err)
	}
}

func NewApplication(settings *config.Settings, ctrls router.Controllers, storage fiber.Storage) *fiber.App {
	// Define possible base paths
	basePaths := []string{
		"./",        // Current directory
		"../../",    // From cmd/membership to project root
		"../../../", // Fallback
	}

	basePath := ""
	for _, path := range basePaths {
		if _, err := os.Stat(path + "public/docs/v1/openapi.yml"); err == nil {
			basePath = path
			break
		}
	}

	app := fiber.New(fiber.Config{
		AppName:   settings.App.ServiceName,
		BodyLimit: 1 << 20,
	})

	// recovery and logging
	app.Use(recover.New(), requestid.New(), logger.New(logger.Config{
		Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
	}))

	// SWAGGER / OPENAPI
	if basePath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: constants.DocsBasePath,
			FilePath: basePath + "public/docs/v1/openapi.yml",
			Path:     constants.DocsVersionPath,
		}))
	} else {
		log.Printf("Warning: openapi.yml not found, API docs disabled")
	}

	// ROUTER
	router.InstallRouter(app, ctrls, router.Options{Settings: settings, Storage: storage})

	return app
}
