/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-resourcekit/log"
	"github.com/acronis/go-resourcekit/log/logtest"
)

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("run and stop by context cancellation", func(t *testing.T) {
		c := 0
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c++
			return nil
		}), time.Millisecond*20, log.NewDisabledLogger())

		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Millisecond*110)
		defer ctxCancel()

		require.NoError(t, periodicWorker.Run(ctx))
		require.GreaterOrEqual(t, c, 3)
		require.LessOrEqual(t, c, 6)
		require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	})

	t.Run("run and stop by error", func(t *testing.T) {
		c := 0
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c++
			if c == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, log.NewDisabledLogger())
		ctx, ctxCancel := context.WithTimeout(context.Background(), time.Minute)
		defer ctxCancel()

		require.NoError(t, periodicWorker.Run(ctx))
		require.Equal(t, 2, c)
		require.NoError(t, ctx.Err())
	})

	t.Run("errors are logged and don't stop the loop", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		c := 0
		periodicWorker := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c++
			switch c {
			case 1:
				return fmt.Errorf("non-stop error")
			case 3:
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, logRecorder, PeriodicWorkerOpts{Name: "cleanup"})

		require.NoError(t, periodicWorker.Run(context.Background()))
		require.Equal(t, 3, c)

		entry, found := logRecorder.FindEntry("periodically running worker finished with error")
		require.True(t, found)
		worker, found := entry.StringField("worker")
		require.True(t, found)
		require.Equal(t, "cleanup", worker)
	})

	t.Run("panic is recovered and the loop goes on", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		c := 0
		periodicWorker := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c++
			switch c {
			case 1:
				panic("corrupted entry")
			case 2:
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, logRecorder)

		require.NoError(t, periodicWorker.Run(context.Background()))
		require.Equal(t, 2, c)

		_, found := logRecorder.FindEntry("panic: corrupted entry")
		require.True(t, found)
		_, found = logRecorder.FindEntry("periodically running worker finished with error")
		require.True(t, found)
	})
}
