// Package main provides the dmflow API server: Instagram webhooks, link
// tracking and flow administration.
package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/dukex/dmflow/pkg/services"
	"github.com/dukex/dmflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	automation  web.Automation
	metrics     *metrics.Metrics
	config      web.Config
	validate    *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	automation web.Automation,
	metrics *metrics.Metrics,
	config web.Config,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		automation:  automation,
		metrics:     metrics,
		config:      config,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	handlers := web.NewAPIHandlers(
		services.NewFlows(a.persistence),
		a.automation,
		a.persistence.ChannelRepository(),
		a.validate,
		a.config,
		a.logger,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("dmflow API")
	})

	handlers.Register(app, a.metrics)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	err := app.Listen(":" + strconv.Itoa(port))

	return err
}
