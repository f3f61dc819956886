package main

import (
	"context"
	"os"
	"time"

	"github.com/dukex/dmflow/pkg/automation"
	"github.com/dukex/dmflow/pkg/cmd"
	"github.com/dukex/dmflow/pkg/log"
	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/otelhelper"
	"github.com/dukex/dmflow/pkg/web"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9091
	serviceName = "dmflow-api"
)

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Receive Instagram webhooks and run comment and DM automation flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file path or postgres://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "locker-url",
				Usage:   "Per-contact locker URL (memory:// or redis://)",
				Value:   "memory://",
				Sources: cli.EnvVars("LOCKER_URL"),
			},
			&cli.StringFlag{
				Name:    "api-base-url",
				Usage:   "Public base URL of this API, used for tracked links",
				Value:   "http://localhost:9091",
				Sources: cli.EnvVars("API_BASE_URL"),
			},
			&cli.StringFlag{
				Name:    "graph-api-url",
				Usage:   "Instagram Graph API base URL",
				Value:   messaging.DefaultBaseURL,
				Sources: cli.EnvVars("GRAPH_API_URL"),
			},
			&cli.StringFlag{
				Name:    "graph-api-version",
				Usage:   "Instagram Graph API version",
				Value:   messaging.DefaultAPIVersion,
				Sources: cli.EnvVars("GRAPH_API_VERSION"),
			},
			&cli.StringFlag{
				Name:    "verify-token",
				Usage:   "Token expected by the webhook subscription handshake",
				Sources: cli.EnvVars("WEBHOOK_VERIFY_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "app-secret",
				Usage:   "App secret used to verify webhook signatures",
				Sources: cli.EnvVars("META_APP_SECRET"),
			},
			&cli.DurationFlag{
				Name:    "send-timeout",
				Usage:   "Timeout of one Graph API call",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("SEND_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "send-attempts",
				Usage:   "Attempts per Graph API call",
				Value:   3,
				Sources: cli.EnvVars("SEND_ATTEMPTS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing dmflow API")

			tracer := otelhelper.NoopTracer()

			if command.Bool("tracing") {
				t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
				if err != nil {
					return err
				}

				defer func() {
					if err := shutdown(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				tracer = t
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			err := subscribeEventLog(ctx, eventBus, logger)
			if err != nil {
				return err
			}

			contactLocker := cmd.NewLocker(ctx, logger, command.String("locker-url"))
			defer func() {
				if err := contactLocker.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close locker", "error", err)
				}
			}()

			collectors := metrics.New()

			gateway := messaging.NewInstagramClient(messaging.Config{
				BaseURL:    command.String("graph-api-url"),
				APIVersion: command.String("graph-api-version"),
				Timeout:    command.Duration("send-timeout"),
				Retry:      messaging.RetryConfig{Attempts: command.Int("send-attempts")},
			}, logger)

			engine := automation.NewEngine(automation.Dependencies{
				Persistence: persistence,
				Gateway:     gateway,
				Locker:      contactLocker,
				Publisher:   eventBus,
				Metrics:     collectors,
				Tracer:      tracer,
			}, automation.Config{
				APIBaseURL: command.String("api-base-url"),
			}, logger)

			api := NewAPI(logger, persistence, engine, collectors, web.Config{
				VerifyToken: command.String("verify-token"),
				AppSecret:   command.String("app-secret"),
			})

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
