// Package scheduler resumes delayed flow runs whose timers are due.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/dmflow/pkg/metrics"
	"github.com/dukex/dmflow/pkg/models"
	"github.com/dukex/dmflow/pkg/persistence"
	"github.com/robfig/cron/v3"
)

const (
	DefaultInterval  = 10 * time.Second
	DefaultBatchSize = 100
)

// Timer outcomes recorded in metrics.
const (
	StatusResumed = "resumed"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

var ErrInvalidInterval = errors.New("poll interval must be positive")

// Resumer continues a delayed run.
type Resumer interface {
	ResumeTimer(ctx context.Context, timer *models.DelayTimer) error
}

// Config tunes the poll loop.
type Config struct {
	Interval  time.Duration
	BatchSize int
	Now       func() time.Time
}

// Poller periodically claims due timers and resumes their runs.
type Poller struct {
	timers  persistence.TimerRepository
	resumer Resumer
	metrics *metrics.Metrics
	config  Config
	logger  *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewPoller(timers persistence.TimerRepository, resumer Resumer, metrics *metrics.Metrics, config Config, logger *slog.Logger) *Poller {
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}

	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}

	if config.Now == nil {
		config.Now = time.Now
	}

	return &Poller{
		timers:  timers,
		resumer: resumer,
		metrics: metrics,
		config:  config,
		logger:  logger.With("module", "scheduler"),
	}
}

// Start schedules the poll job. It returns once the cron scheduler runs.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return nil
	}

	if p.config.Interval < 0 {
		return ErrInvalidInterval
	}

	p.ctx, p.cancel = context.WithCancel(ctx)

	p.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	spec := "@every " + p.config.Interval.String()

	entryID, err := p.cron.AddFunc(spec, func() {
		_, err := p.Poll(p.ctx)
		if err != nil {
			p.logger.ErrorContext(p.ctx, "Timer poll failed", "error", err)
		}
	})
	if err != nil {
		p.cancel()
		p.cron = nil

		return fmt.Errorf("failed to schedule timer poll '%s': %w", spec, err)
	}

	p.cron.Start()
	p.logger.Info("Timer poller started", "interval", p.config.Interval, "entry_id", entryID)

	return nil
}

// Stop halts the schedule and waits for a running poll to finish.
func (p *Poller) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron == nil {
		return nil
	}

	p.cancel()

	select {
	case <-p.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	p.cron = nil
	p.logger.Info("Timer poller stopped")

	return nil
}

// Poll resumes every timer due now, claiming each first so that concurrent
// pollers never resume the same timer twice. It returns how many were resumed.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	due, err := p.timers.Due(ctx, p.config.Now().UTC(), p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to load due timers: %w", err)
	}

	resumed := 0

	for _, timer := range due {
		if ctx.Err() != nil {
			return resumed, ctx.Err()
		}

		logger := p.logger.With("timer_id", timer.ID, "flow_id", timer.FlowID, "contact_id", timer.ContactID)

		claimed, err := p.timers.Claim(ctx, timer.ID)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to claim timer", "error", err)

			continue
		}

		if !claimed {
			p.metrics.RecordTimer(StatusSkipped)

			continue
		}

		err = p.resumer.ResumeTimer(ctx, timer)
		if err != nil {
			p.metrics.RecordTimer(StatusFailed)
			logger.ErrorContext(ctx, "Failed to resume delayed run", "node_id", timer.NextNodeID, "error", err)

			continue
		}

		p.metrics.RecordTimer(StatusResumed)
		logger.DebugContext(ctx, "Delayed run resumed", "node_id", timer.NextNodeID)

		resumed++
	}

	return resumed, nil
}
