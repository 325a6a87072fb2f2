// Package main provides the Composer API server implementation.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/condition"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/eventbus"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/events"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/locks"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/matcher"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/metrics"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/otelhelper"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/services"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

const metricsNamespace = "composer"

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	eventBus    eventbus.EventBus
	locker      locks.Locker
	tracer      trace.Tracer
	registry    *prometheus.Registry
	validate    *validator.Validate

	machine    *engine.Machine
	executions *services.Execution
}

type APIOption func(*API)

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	eventBus eventbus.EventBus,
	locker locks.Locker,
	opts ...APIOption,
) *API {
	a := &API{
		persistence: persistence,
		logger:      logger,
		eventBus:    eventBus,
		locker:      locker,
		tracer:      otelhelper.NoopTracer(),
		registry:    prometheus.NewRegistry(),
		validate:    validator.New(validator.WithRequiredStructEnabled()),
	}

	for _, opt := range opts {
		opt(a)
	}

	a.machine = engine.NewMachine(
		persistence.ExecutionRepository(),
		persistence.FlowRepository(),
		persistence.DocumentRepository(),
		engine.WithLocker(locker),
		engine.WithPublisher(eventBus),
		engine.WithMetrics(metrics.NewProm(metricsNamespace, a.registry)),
		engine.WithTracer(a.tracer),
		engine.WithLogger(logger),
	)

	return a
}

// Machine returns the execution state machine shared by the API and background jobs.
func (a *API) Machine() *engine.Machine {
	return a.machine
}

func (a *API) App() *fiber.App {
	flowMatcher := matcher.NewMatcher(condition.NewEvaluator(a.logger), a.logger)

	flowService := services.NewFlow(a.persistence, flowMatcher, a.locker, a.logger)
	documentService := services.NewDocument(a.persistence)
	a.executions = services.NewExecution(a.persistence, a.machine, flowMatcher, a.logger)

	handlers := web.NewAPIHandlers(flowService, documentService, a.executions, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Composer API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(a.registry)))

	handlers.Register(app)

	return app
}

// SubscribeIntegrationResults feeds integration.completed events from
// external workers into the state machine.
func (a *API) SubscribeIntegrationResults(ctx context.Context) error {
	err := a.eventBus.Handle(events.IntegrationCompletedEvent, a.handleIntegrationCompleted)
	if err != nil {
		return fmt.Errorf("failed to register integration handler: %w", err)
	}

	return a.eventBus.Subscribe(ctx)
}

func (a *API) handleIntegrationCompleted(ctx context.Context, event any) error {
	completed, ok := event.(*events.IntegrationCompleted)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	logger := a.logger.With("execution_id", completed.ExecutionID, "node_id", completed.NodeID)

	result := engine.IntegrationResult{
		Status: engine.IntegrationStatus(completed.Status),
		Error:  completed.Error,
		Output: completed.Output,
	}

	_, err := a.machine.CompleteIntegration(ctx, completed.ExecutionID, completed.NodeID, result, engine.SystemActor)

	switch {
	case err == nil:
		logger.InfoContext(ctx, "Integration result applied", "status", completed.Status)

		return nil
	case errors.Is(err, engine.ErrStaleTransition),
		errors.Is(err, engine.ErrExecutionTerminal),
		persistence.IsExecutionNotFound(err):
		// Late or redelivered results are acked and dropped.
		logger.WarnContext(ctx, "Integration result discarded", "error", err)

		return nil
	case engine.IsFatal(err):
		logger.ErrorContext(ctx, "Integration result failed the execution", "error", err)

		return nil
	default:
		return err
	}
}

func (a *API) Start(ctx context.Context, port int) error {
	app := a.App()

	go func() {
		<-ctx.Done()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			a.logger.Error("Failed to shutdown API server", "error", err)
		}
	}()

	return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
