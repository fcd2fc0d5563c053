/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-admission/log"
)

// ErrPeriodicWorkerStop is an error that may be used for interrupting PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// Worker performs some work. For PeriodicWorker it is a single tick.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker periodically until its context is canceled.
//
// In the default fixed-delay mode the next run is scheduled intervalDelay after the previous one finishes.
// In fixed-rate mode runs are aligned to a time.Ticker, so a slow run does not shift the schedule
// (missed ticks are dropped, never queued).
type PeriodicWorker struct {
	worker        Worker
	logger        log.FieldLogger
	initialDelay  time.Duration
	intervalDelay time.Duration
	fixedRate     bool
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	InitialDelay time.Duration
	FixedRate    bool
}

// NewPeriodicWorker creates a new instance of PeriodicWorker with constant delays.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{})
}

// NewPeriodicWorkerWithOpts creates a new instance of PeriodicWorker
// with an ability to specify different optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	return &PeriodicWorker{
		worker:        worker,
		logger:        logger,
		initialDelay:  opts.InitialDelay,
		intervalDelay: intervalDelay,
		fixedRate:     opts.FixedRate,
	}
}

// Interval returns the delay between runs.
func (pw *PeriodicWorker) Interval() time.Duration {
	return pw.intervalDelay
}

// Run runs PeriodicWorker loop. A run in progress is never interrupted:
// cancellation is observed only between runs.
func (pw *PeriodicWorker) Run(ctx context.Context) (resErr error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			panic(p)
		}
		if resErr != nil {
			pw.logger.Error("periodic worker stopped with error", log.Error(resErr))
			return
		}
		pw.logger.Debug("periodic worker stopped successfully")
	}()

	pw.logger.Debug("running periodic worker",
		log.Duration("initial_delay", pw.initialDelay),
		log.Duration("interval", pw.intervalDelay),
		log.Bool("fixed_rate", pw.fixedRate))

	if pw.initialDelay > 0 {
		initialTimer := time.NewTimer(pw.initialDelay)
		select {
		case <-ctx.Done():
			initialTimer.Stop()
			return nil
		case <-initialTimer.C:
		}
	}

	if pw.fixedRate {
		return pw.runAtFixedRate(ctx)
	}
	return pw.runWithFixedDelay(ctx)
}

func (pw *PeriodicWorker) runWithFixedDelay(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}
		if stop := pw.runOnce(ctx); stop {
			return nil
		}
		timer.Reset(pw.intervalDelay)
	}
}

func (pw *PeriodicWorker) runAtFixedRate(ctx context.Context) error {
	ticker := time.NewTicker(pw.intervalDelay)
	defer ticker.Stop()
	if stop := pw.runOnce(ctx); stop {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return nil
		}
		if stop := pw.runOnce(ctx); stop {
			return nil
		}
	}
}

func (pw *PeriodicWorker) runOnce(ctx context.Context) (stop bool) {
	err := pw.worker.Run(ctx)
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPeriodicWorkerStop) {
		return true
	}
	pw.logger.Error("periodically running worker finished with error", log.Error(err))
	return false
}
