package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/cmd"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/log"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/otelhelper"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/seed"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/sweeper"
	"github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"
)

func RunAPICommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start api",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			databaseURLFlag(),
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers for the kafka event bus",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "lock-url",
				Usage:   "Execution lock backend (memory or redis://...)",
				Value:   "memory",
				Sources: cli.EnvVars("LOCK_URL"),
			},
			seedFileFlag(),
			&cli.DurationFlag{
				Name:    "integration-timeout",
				Usage:   "Fail executions whose integration result is missing for this long (0 disables)",
				Sources: cli.EnvVars("INTEGRATION_TIMEOUT"),
			},
			&cli.StringFlag{
				Name:    "sweep-schedule",
				Usage:   "Cron spec of the integration timeout sweep",
				Value:   sweeper.DefaultSchedule,
				Sources: cli.EnvVars("SWEEP_SCHEDULE"),
			},
			logLevelFlag(),
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing Composer API")

			tracer := otelhelper.NoopTracer()

			if command.Bool("otel-enabled") {
				var (
					shutdown otelhelper.Shutdown
					err      error
				)

				tracer, shutdown, err = otelhelper.NewTracer(ctx, cmd.ServiceName)
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(context.WithoutCancel(ctx)); err != nil {
						logger.Error("Failed to shutdown tracer provider", "error", err)
					}
				}()
			}

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
					logger.Error("Failed to close persistence", "error", err)
				}
			}()

			if seedFile := command.String("seed-file"); seedFile != "" {
				file, err := seed.Load(seedFile)
				if err != nil {
					return err
				}

				if err := seed.Apply(ctx, persistence, file, logger); err != nil {
					return err
				}
			}

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.Error("Failed to close event bus", "error", err)
				}
			}()

			locker, closeLocker, err := cmd.NewLocker(ctx, command.String("lock-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeLocker(); err != nil {
					logger.Error("Failed to close locker", "error", err)
				}
			}()

			api := NewAPI(logger, persistence, eventBus, locker, withTracer(tracer))

			if err := api.SubscribeIntegrationResults(ctx); err != nil {
				return err
			}

			if timeout := command.Duration("integration-timeout"); timeout > 0 {
				sw := sweeper.NewSweeper(
					persistence.ExecutionRepository(),
					api.Machine(),
					timeout,
					logger,
					sweeper.WithSchedule(command.String("sweep-schedule")),
				)

				if err := sw.Start(ctx); err != nil {
					return err
				}

				defer func() {
					stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
					defer cancel()

					sw.Stop(stopCtx)
				}()
			}

			return api.Start(ctx, command.Int("port"))
		},
	}
}

func withTracer(tracer trace.Tracer) APIOption {
	return func(a *API) { a.tracer = tracer }
}
