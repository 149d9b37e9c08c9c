// Package jobs runs the periodic background work: attendance reconciliation
// and document reminders.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Runner owns the background loops and waits for them on Stop.
type Runner struct {
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRunner(ctx context.Context, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Runner{logger: logger.With("component", "jobs"), ctx: ctx, cancel: cancel}
}

// Every starts task on a ticker. A zero interval disables it. When
// runNow is set the first tick happens immediately.
func (r *Runner) Every(name string, interval time.Duration, runNow bool, task Task) {
	if interval <= 0 {
		r.logger.Info("job disabled", "job", name)
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.loop(name, interval, runNow, task)
	}()
	r.logger.Info("job started", "job", name, "interval", interval.String())
}

func (r *Runner) loop(name string, interval time.Duration, runNow bool, task Task) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if runNow {
		r.runTick(name, task)
	}
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.runTick(name, task)
		}
	}
}

// runTick runs one tick with panic recovery.
// If a panic occurs, it's logged and the loop continues.
func (r *Runner) runTick(name string, task Task) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic in job, continuing", "job", name, "panic", p)
		}
	}()
	start := time.Now()
	if err := task(r.ctx); err != nil && r.ctx.Err() == nil {
		r.logger.Error("job failed", "job", name, "error", err)
		return
	}
	r.logger.Debug("job finished", "job", name, "took", time.Since(start).String())
}

// Stop cancels every loop and waits for running ticks to return.
func (r *Runner) Stop() {
	r.cancel()
	r.wg.Wait()
}
