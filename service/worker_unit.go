/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/acronis/go-resourcekit/log"
)

// ErrWorkerUnitStopTimeoutExceeded is an error that occurs when WorkerUnit's gracefully stop timeout is exceeded.
var ErrWorkerUnitStopTimeoutExceeded = errors.New("worker unit stop timeout exceeded")

// WorkerUnit owns the lifecycle of a Worker: it starts the worker once and stops it
// by canceling its context, optionally waiting for it to finish.
type WorkerUnit struct {
	worker              Worker
	gracefulStopTimeout time.Duration

	ctx       context.Context
	ctxCancel context.CancelFunc
	startOnce sync.Once
	started   chan struct{}
	done      chan struct{}
}

// WorkerUnitOpts contains optional parameters for constructing WorkerUnit.
type WorkerUnitOpts struct {
	// GracefulStopTimeout limits the time Stop(true) waits for the worker to finish.
	// Zero value means waiting without limit.
	GracefulStopTimeout time.Duration
}

// NewWorkerUnit creates a new instance of WorkerUnit.
func NewWorkerUnit(worker Worker) *WorkerUnit {
	return NewWorkerUnitWithOpts(worker, WorkerUnitOpts{})
}

// NewWorkerUnitWithOpts creates a new instance of WorkerUnit
// with an ability to specify different optional parameters.
func NewWorkerUnitWithOpts(worker Worker, opts WorkerUnitOpts) *WorkerUnit {
	ctx, ctxCancel := context.WithCancel(context.Background())
	return &WorkerUnit{
		worker:              worker,
		gracefulStopTimeout: opts.GracefulStopTimeout,
		ctx:                 ctx,
		ctxCancel:           ctxCancel,
		started:             make(chan struct{}),
		done:                make(chan struct{}),
	}
}

// Start starts (call Run() method) underlying Worker and blocks until it finishes.
// Subsequent calls do nothing.
func (u *WorkerUnit) Start(fatalError chan<- error) {
	u.startOnce.Do(func() {
		close(u.started)
		u.run(fatalError)
	})
}

// StartInBackground starts the unit in a separate goroutine and returns immediately.
// An error returned by the worker is logged.
func (u *WorkerUnit) StartInBackground(logger log.FieldLogger) {
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	u.startOnce.Do(func() {
		close(u.started)
		fatalErr := make(chan error, 1)
		go func() {
			u.run(fatalErr)
			select {
			case err := <-fatalErr:
				logger.Error("worker unit finished with error", log.Error(err))
			default:
			}
		}()
	})
}

func (u *WorkerUnit) run(fatalError chan<- error) {
	defer close(u.done)
	if err := u.worker.Run(u.ctx); err != nil {
		fatalError <- err
	}
}

// Stop stops underlying Worker. It may be called several times.
func (u *WorkerUnit) Stop(gracefully bool) error {
	u.ctxCancel()
	if !gracefully {
		return nil
	}
	select {
	case <-u.started:
	default:
		return nil // Start was never called.
	}
	if u.gracefulStopTimeout == 0 {
		<-u.done
		return nil
	}
	timer := time.NewTimer(u.gracefulStopTimeout)
	defer timer.Stop()
	select {
	case <-u.done:
		return nil
	case <-timer.C:
		return ErrWorkerUnitStopTimeoutExceeded
	}
}
