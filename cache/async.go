/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package cache

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/acronis/go-resourcekit/log"
)

// DefaultAsyncMaxInFlight is a default limit of concurrently running async operations.
const DefaultAsyncMaxInFlight = 64

// ErrAsyncRunnerStopped is a result of an async operation submitted after the runner was stopped.
var ErrAsyncRunnerStopped = errors.New("async runner is stopped")

// ErrAsyncStopTimeoutExceeded is returned by AsyncRunner.Stop when running operations didn't finish in time.
var ErrAsyncStopTimeoutExceeded = errors.New("timeout for stopping async runner exceeded")

// Future is a result of an async operation. It never panics and never blocks the caller which created it.
type Future[T any] struct {
	done  chan struct{}
	value T
	ok    bool
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) resolve(value T, ok bool, err error) {
	f.value, f.ok, f.err = value, ok, err
	close(f.done)
}

// Done returns a channel which is closed when the operation is finished.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await waits until the operation is finished or ctx is done. It returns false (miss) in the latter case.
func (f *Future[T]) Await(ctx context.Context) (T, bool) {
	select {
	case <-f.done:
		return f.value, f.ok
	case <-ctx.Done():
		var zero T
		return zero, false
	}
}

// Err returns an error of the finished operation. It's nil if the operation is not finished yet.
// Failures are already logged, so it's intended for diagnostics.
func (f *Future[T]) Err() error {
	select {
	case <-f.done:
		return f.err
	default:
		return nil
	}
}

// AsyncRunner runs cache operations off the calling goroutine with bounded concurrency.
type AsyncRunner struct {
	sem      *semaphore.Weighted
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	inFlight atomic.Int64
	logger   log.FieldLogger

	// mu orders wg.Add of new operations against wg.Wait in Stop.
	mu      sync.Mutex
	stopped bool
}

// NewAsyncRunner creates a new AsyncRunner. DefaultAsyncMaxInFlight is used if maxInFlight <= 0.
func NewAsyncRunner(maxInFlight int, logger log.FieldLogger) *AsyncRunner {
	if maxInFlight <= 0 {
		maxInFlight = DefaultAsyncMaxInFlight
	}
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AsyncRunner{sem: semaphore.NewWeighted(int64(maxInFlight)), ctx: ctx, cancel: cancel, logger: logger}
}

// InFlight returns the number of submitted and not finished operations.
func (r *AsyncRunner) InFlight() int64 {
	return r.inFlight.Load()
}

// RunAsync runs fn in a separate goroutine and returns its future immediately.
// The operation context is canceled when either ctx is done or the runner is stopped.
// A panic in fn is recovered, logged and resolves the future to a miss.
func RunAsync[T any](ctx context.Context, r *AsyncRunner, fn func(ctx context.Context) (T, bool, error)) *Future[T] {
	f := newFuture[T]()
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		var zero T
		f.resolve(zero, false, ErrAsyncRunnerStopped)
		return f
	}
	r.wg.Add(1)
	r.inFlight.Inc()
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Dec()

		var (
			value T
			ok    bool
			err   error
		)
		defer func() {
			if p := recover(); p != nil {
				const logStackSize = 8192
				stack := make([]byte, logStackSize)
				stack = stack[:runtime.Stack(stack, false)]
				r.logger.Error(fmt.Sprintf("panic in async cache operation: %+v", p), log.Bytes("stack", stack))
				var zero T
				value, ok, err = zero, false, fmt.Errorf("panic: %v", p)
			}
			f.resolve(value, ok, err)
		}()

		opCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			select {
			case <-r.ctx.Done():
				cancel()
			case <-opCtx.Done():
			}
		}()

		if err = r.sem.Acquire(opCtx, 1); err != nil {
			return
		}
		defer r.sem.Release(1)
		value, ok, err = fn(opCtx)
	}()
	return f
}

// Stop cancels running operations and waits for them at most timeout (zero means without limit).
// Operations submitted after that resolve to a miss immediately.
func (r *AsyncRunner) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	r.cancel()
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	if timeout == 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrAsyncStopTimeoutExceeded
	}
}
