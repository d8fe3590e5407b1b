// Package jobs runs periodic background work on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Func is one run of a job. Errors are logged, the schedule continues.
type Func func(ctx context.Context) error

// Scheduler wraps a cron runner with job names and logging.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// NewScheduler creates a scheduler. timeout bounds a single run; 0 means no bound.
func NewScheduler(logger *slog.Logger, timeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		// Пропускаем запуск, если предыдущий еще не закончился
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		timeout: timeout,
	}
}

// Add registers fn under spec. Besides the standard five-field syntax spec
// accepts descriptors such as "@every 5m" and "@daily".
func (s *Scheduler) Add(spec, name string, fn Func) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.run(name, fn)
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Job scheduled", "job", name, "spec", spec)
	return nil
}

func (s *Scheduler) run(name string, fn Func) {
	ctx := s.ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("Job failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	s.logger.Debug("Job finished", "job", name, "duration", time.Since(start))
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}
