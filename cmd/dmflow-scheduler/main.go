// Package main provides the dmflow scheduler: it resumes delayed flow runs
// once their timers are due.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dukex/dmflow/pkg/automation"
	"github.com/dukex/dmflow/pkg/cmd"
	"github.com/dukex/dmflow/pkg/log"
	"github.com/dukex/dmflow/pkg/messaging"
	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/otelhelper"
	"github.com/dukex/dmflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort = 9092
	serviceName = "dmflow-scheduler"
)

func main() {
	logger := log.WithModule("scheduler")

	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Resume delayed automation runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port serving /metrics and /health",
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
				Usage:   "Public base URL of the API, used for tracked links",
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
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due timers are polled",
				Value:   scheduler.DefaultInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
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

			logger.InfoContext(ctx, "Initializing dmflow scheduler")

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracer := otelhelper.NoopTracer()

			if command.Bool("tracing") {
				t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
				if err != nil {
					return err
				}

				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()

				tracer = t
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(context.Background())
				if err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			contactLocker := cmd.NewLocker(ctx, logger, command.String("locker-url"))
			defer func() {
				if err := contactLocker.Close(); err != nil {
					logger.Error("Failed to close locker", "error", err)
				}
			}()

			collectors := metrics.New()

			engine := automation.NewEngine(automation.Dependencies{
				Persistence: persistence,
				Gateway: messaging.NewInstagramClient(messaging.Config{
					BaseURL:    command.String("graph-api-url"),
					APIVersion: command.String("graph-api-version"),
					Timeout:    command.Duration("send-timeout"),
					Retry:      messaging.RetryConfig{Attempts: command.Int("send-attempts")},
				}, logger),
				Locker:    contactLocker,
				Publisher: eventBus,
				Metrics:   collectors,
				Tracer:    tracer,
			}, automation.Config{
				APIBaseURL: command.String("api-base-url"),
			}, logger)

			poller := scheduler.NewPoller(persistence.TimerRepository(), engine, collectors, scheduler.Config{
				Interval: command.Duration("poll-interval"),
			}, logger)

			err := poller.Start(ctx)
			if err != nil {
				return err
			}

			app := newStatusApp(collectors)

			go func() {
				err := app.Listen(":" + strconv.Itoa(command.Int("port")))
				if err != nil {
					logger.Error("Status server stopped", "error", err)
				}
			}()

			<-ctx.Done()

			logger.Info("Shutting down dmflow scheduler")

			if err := app.Shutdown(); err != nil {
				logger.Error("Failed to shutdown status server", "error", err)
			}

			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return poller.Stop(stopCtx)
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
