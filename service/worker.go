/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package service provides workers used to run background tasks
// (periodic cleanup of in-process stores) with cancellation and bounded graceful stop.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/acronis/go-resourcekit/log"
)

// ErrPeriodicWorkerStop may be returned by the underlying worker to interrupt PeriodicWorker's loop.
var ErrPeriodicWorkerStop = errors.New("stop periodic worker error")

// ErrWorkerPanicked is returned (wrapped) for a run of the underlying worker that panicked.
var ErrWorkerPanicked = errors.New("worker panicked")

// Worker performs some (usually long-running) work.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerFunc is an adapter to allow the use of ordinary functions as Worker.
type WorkerFunc func(ctx context.Context) error

// Run is a part of Worker interface.
func (f WorkerFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// PeriodicWorker runs the underlying worker with a fixed delay between runs.
// A failed or panicked run is logged and doesn't break the loop,
// so a broken cleanup pass never takes the whole process down.
type PeriodicWorker struct {
	worker        Worker
	logger        log.FieldLogger
	initialDelay  time.Duration
	intervalDelay time.Duration
}

// PeriodicWorkerOpts contains optional parameters for constructing PeriodicWorker.
type PeriodicWorkerOpts struct {
	// Name is added to every log message of the worker.
	Name string

	// InitialDelay is a delay before the first run.
	InitialDelay time.Duration
}

// NewPeriodicWorker creates a new PeriodicWorker. The first run happens after intervalDelay.
func NewPeriodicWorker(worker Worker, intervalDelay time.Duration, logger log.FieldLogger) *PeriodicWorker {
	return NewPeriodicWorkerWithOpts(worker, intervalDelay, logger, PeriodicWorkerOpts{InitialDelay: intervalDelay})
}

// NewPeriodicWorkerWithOpts creates a new PeriodicWorker with optional parameters.
func NewPeriodicWorkerWithOpts(
	worker Worker, intervalDelay time.Duration, logger log.FieldLogger, opts PeriodicWorkerOpts,
) *PeriodicWorker {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	if opts.Name != "" {
		logger = logger.With(log.String("worker", opts.Name))
	}
	return &PeriodicWorker{
		worker:        worker,
		logger:        logger,
		initialDelay:  opts.InitialDelay,
		intervalDelay: intervalDelay,
	}
}

// Run runs the loop until the context is canceled or the underlying worker returns ErrPeriodicWorkerStop.
func (pw *PeriodicWorker) Run(ctx context.Context) error {
	pw.logger.Debug("periodic worker started",
		log.Duration("initial_delay", pw.initialDelay), log.Duration("interval", pw.intervalDelay))
	defer pw.logger.Debug("periodic worker stopped")

	timer := time.NewTimer(pw.initialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		if err := pw.runOnce(ctx); err != nil {
			if errors.Is(err, ErrPeriodicWorkerStop) || ctx.Err() != nil {
				return nil
			}
			pw.logger.Error("periodically running worker finished with error", log.Error(err))
		}
		timer.Reset(pw.intervalDelay)
	}
}

func (pw *PeriodicWorker) runOnce(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			const logStackSize = 8192
			stack := make([]byte, logStackSize)
			stack = stack[:runtime.Stack(stack, false)]
			pw.logger.Error(fmt.Sprintf("panic: %+v", p), log.Bytes("stack", stack))
			err = fmt.Errorf("%w: %v", ErrWorkerPanicked, p)
		}
	}()
	return pw.worker.Run(ctx)
}
