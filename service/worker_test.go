/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/log/logtest"
)

func runPeriodicWorker(ctx context.Context, pw *PeriodicWorker) <-chan error {
	runErr := make(chan error, 1)
	go func() {
		runErr <- pw.Run(ctx)
	}()
	return runErr
}

func TestPeriodicWorker_Run(t *testing.T) {
	t.Run("fixed delay, stop by context timeout", func(t *testing.T) {
		const iterations = 5
		var c atomic.Int32
		pw := NewPeriodicWorker(WorkerFunc(func(ctx context.Context) error {
			c.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger())

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*100*iterations+time.Millisecond*50)
		defer cancel()

		require.NoError(t, <-runPeriodicWorker(ctx, pw))
		require.GreaterOrEqual(t, int(c.Load()), iterations)
		require.LessOrEqual(t, int(c.Load()), iterations+1)
	})

	t.Run("fixed rate, stop by context cancel", func(t *testing.T) {
		var c atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c.Inc()
			return nil
		}), time.Millisecond*20, log.NewDisabledLogger(), PeriodicWorkerOpts{FixedRate: true})

		ctx, cancel := context.WithCancel(context.Background())
		runErr := runPeriodicWorker(ctx, pw)
		require.Eventually(t, func() bool { return c.Load() >= 5 }, time.Second*2, time.Millisecond*5)
		cancel()
		require.NoError(t, <-runErr)

		stoppedAt := c.Load()
		time.Sleep(time.Millisecond * 60)
		require.Equal(t, stoppedAt, c.Load(), "no runs after Run returned")
	})

	t.Run("stop by ErrPeriodicWorkerStop", func(t *testing.T) {
		var c atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			if c.Inc() == 2 {
				return ErrPeriodicWorkerStop
			}
			return nil
		}), time.Millisecond*10, log.NewDisabledLogger(), PeriodicWorkerOpts{FixedRate: true})

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		require.NoError(t, <-runPeriodicWorker(ctx, pw))
		require.Equal(t, int32(2), c.Load())
		require.NoError(t, ctx.Err())
	})

	t.Run("initial delay postpones first run", func(t *testing.T) {
		var c atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			c.Inc()
			return nil
		}), time.Millisecond*100, log.NewDisabledLogger(), PeriodicWorkerOpts{InitialDelay: time.Millisecond * 250})

		ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond*200)
		defer cancel()
		require.NoError(t, <-runPeriodicWorker(ctx, pw))
		require.Zero(t, c.Load())
	})

	t.Run("errors are logged and do not stop the loop", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		var c atomic.Int32
		pw := NewPeriodicWorkerWithOpts(WorkerFunc(func(ctx context.Context) error {
			if c.Inc() == 1 {
				return errors.New("tick failed")
			}
			return nil
		}), time.Millisecond*10, logRecorder, PeriodicWorkerOpts{FixedRate: true})

		ctx, cancel := context.WithCancel(context.Background())
		runErr := runPeriodicWorker(ctx, pw)
		require.Eventually(t, func() bool { return c.Load() >= 3 }, time.Second, time.Millisecond*5)
		cancel()
		require.NoError(t, <-runErr)

		entry, found := logRecorder.FindEntry("periodically running worker finished with error")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})
}
