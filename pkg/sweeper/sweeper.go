// Package sweeper fails executions whose integration result never arrived.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/engine"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/models"
	"github.com/Evolui-Tecnologia-MVP-Proto/MindBitsComposer-sub003/pkg/persistence"
	"github.com/robfig/cron/v3"
)

// DefaultSchedule runs a sweep every minute.
const DefaultSchedule = "@every 1m"

// Expirer fails an execution whose integration at nodeID was requested
// before deadline and is still pending when the call takes effect.
type Expirer interface {
	TimeoutIntegration(ctx context.Context, executionID, nodeID string, deadline time.Time, actor string) (*models.FlowExecution, error)
}

type Sweeper struct {
	executions persistence.ExecutionRepository
	expirer    Expirer
	timeout    time.Duration
	schedule   string
	now        func() time.Time
	logger     *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

type Option func(*Sweeper)

func WithSchedule(schedule string) Option {
	return func(s *Sweeper) { s.schedule = schedule }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

// NewSweeper creates a sweeper failing integrations pending for longer than timeout.
func NewSweeper(executions persistence.ExecutionRepository, expirer Expirer, timeout time.Duration, logger *slog.Logger, opts ...Option) *Sweeper {
	s := &Sweeper{
		executions: executions,
		expirer:    expirer,
		timeout:    timeout,
		schedule:   DefaultSchedule,
		now:        time.Now,
		logger:     logger.With("module", "sweeper"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Validate checks the schedule expression.
func (s *Sweeper) Validate() error {
	if s.timeout <= 0 {
		return errors.New("integration timeout must be positive")
	}

	_, err := cron.ParseStandard(s.schedule)
	if err != nil {
		return fmt.Errorf("invalid sweep schedule '%s': %w", s.schedule, err)
	}

	return nil
}

func (s *Sweeper) Start(ctx context.Context) error {
	if err := s.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	entryID, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Sweep failed", "error", err)
		}
	})
	if err != nil {
		s.cancel()

		return fmt.Errorf("failed to add sweep job: %w", err)
	}

	s.cron.Start()
	s.logger.InfoContext(ctx, "Sweeper started", "schedule", s.schedule, "timeout", s.timeout, "entry_id", entryID)

	return nil
}

func (s *Sweeper) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return
	}

	s.cancel()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}

	s.cron = nil
	s.logger.Info("Sweeper stopped")
}

// Sweep fails every in-progress execution whose pending integration task was
// entered more than the timeout ago. The listing only nominates candidates;
// the expirer re-checks each one under the execution lock. It returns the
// number of executions failed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	executions, err := s.executions.ListByStatus(ctx, models.ExecutionStatusInProgress)
	if err != nil {
		return 0, fmt.Errorf("list in-progress executions: %w", err)
	}

	deadline := s.now().Add(-s.timeout)
	failed := 0

	for _, execution := range executions {
		nodeID := execution.ExecutionData.PendingNodeID
		if nodeID == "" {
			continue
		}

		task, ok := execution.FlowTasks[nodeID]
		if !ok || task.Status != models.TaskStatusPending || !task.EnteredAt.Before(deadline) {
			continue
		}

		logger := s.logger.With("execution_id", execution.ID, "node_id", nodeID)

		_, err := s.expirer.TimeoutIntegration(ctx, execution.ID, nodeID, deadline, engine.SystemActor)

		switch {
		case err == nil:
			failed++

			logger.WarnContext(ctx, "Integration timed out", "entered_at", task.EnteredAt)
		case errors.Is(err, engine.ErrExecutionTerminal), errors.Is(err, engine.ErrStaleTransition):
			logger.DebugContext(ctx, "Execution moved on before the sweep", "error", err)
		default:
			logger.ErrorContext(ctx, "Failed to time out integration", "error", err)
		}
	}

	return failed, nil
}
