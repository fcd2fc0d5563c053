/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package limiter

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log/logtest"
	"github.com/acronis/go-admission/queue"
	"github.com/acronis/go-admission/tier"
)

func newTestLimiter(t *testing.T, quota int, opts Opts) *RateLimiter {
	t.Helper()
	l, err := New("Murli", tier.Tier{Name: "test", QuotaPerWindow: quota, WindowSeconds: 10}, opts)
	require.NoError(t, err)
	return l
}

func TestNew(t *testing.T) {
	_, err := New("", tier.Tier{Name: "low", QuotaPerWindow: 1, WindowSeconds: 1}, Opts{})
	require.EqualError(t, err, "client name cannot be empty")

	_, err = New("Murli", tier.Tier{Name: "broken"}, Opts{})
	require.Error(t, err)

	l, err := New("Murli", tier.DefaultRegistry().Tiers()[1], Opts{})
	require.NoError(t, err)
	require.Equal(t, "Murli", l.ClientName())
	require.Equal(t, tier.NameLow, l.Tier().Name)
	require.Equal(t, 10, l.Remaining())
}

func TestRateLimiter_TryAdmit(t *testing.T) {
	l := newTestLimiter(t, 2, Opts{})
	rec := queue.Record{ID: "R1"}

	require.True(t, l.TryAdmit(rec))
	require.True(t, l.TryAdmit(rec))
	require.False(t, l.TryAdmit(rec))
	require.False(t, l.TryAdmit(rec))
	require.Equal(t, 2, l.Admitted())
	require.Zero(t, l.Remaining())

	l.ResetCount()
	require.Zero(t, l.Admitted())
	require.True(t, l.TryAdmit(rec))
	require.Equal(t, 1, l.Remaining())
}

func TestRateLimiter_ResetCount(t *testing.T) {
	logRecorder := logtest.NewRecorder()
	var resetClients []string
	l := newTestLimiter(t, 3, Opts{Logger: logRecorder, Hooks: Hooks{
		OnReset: func(clientName string) { resetClients = append(resetClients, clientName) },
	}})
	l.TryAdmit(queue.Record{ID: "R1"})
	l.ResetCount()

	require.Equal(t, []string{"Murli"}, resetClients)
	entry, found := logRecorder.FindEntry("quota window reset")
	require.True(t, found)
	clientField, found := entry.FindField("client")
	require.True(t, found)
	require.Equal(t, "Murli", string(clientField.Bytes))
	admittedField, found := entry.FindField("admitted_in_window")
	require.True(t, found)
	require.Equal(t, 1, int(admittedField.Int))
}

func TestRateLimiter_Drain(t *testing.T) {
	t.Run("admits oldest first and stops at quota", func(t *testing.T) {
		var admittedIDs []string
		l := newTestLimiter(t, 2, Opts{Hooks: Hooks{
			OnAdmit: func(rec queue.Record) { admittedIDs = append(admittedIDs, rec.ID) },
		}})
		q := queue.New()
		for _, id := range []string{"R1", "R2", "R3"} {
			q.Submit(id)
		}

		admitted := l.Drain(q)
		require.Len(t, admitted, 2)
		require.Equal(t, []string{"R1", "R2"}, admittedIDs)
		require.Equal(t, 1, q.Len())
		require.Equal(t, "R3", q.Snapshot()[0].ID)

		require.Empty(t, l.Drain(q))
		require.Equal(t, 1, q.Len())

		l.ResetCount()
		admitted = l.Drain(q)
		require.Len(t, admitted, 1)
		require.Equal(t, []string{"R1", "R2", "R3"}, admittedIDs)
		require.Zero(t, q.Len())
	})

	t.Run("hooks may use the queue", func(t *testing.T) {
		q := queue.New()
		var lenInHook int
		l := newTestLimiter(t, 5, Opts{Hooks: Hooks{
			OnAdmit: func(rec queue.Record) { lenInHook = q.Len() + len(q.Snapshot()) },
		}})
		q.Submit("R1")
		q.Submit("R2")
		require.Len(t, l.Drain(q), 2)
		require.Zero(t, lenInHook)
	})

	t.Run("processing is logged", func(t *testing.T) {
		logRecorder := logtest.NewRecorder()
		l := newTestLimiter(t, 5, Opts{Logger: logRecorder})
		q := queue.New()
		q.Submit("R1")
		l.Drain(q)
		entry, found := logRecorder.FindEntry("processing client request")
		require.True(t, found)
		idField, found := entry.FindField("request_id")
		require.True(t, found)
		require.Equal(t, "R1", string(idField.Bytes))
	})
}

func TestRateLimiter_ConcurrentAdmitAndReset(t *testing.T) {
	const workers = 8
	const attemptsPerWorker = 2000

	logRecorder := logtest.NewRecorder()
	l := newTestLimiter(t, 50, Opts{Logger: logRecorder})

	var successes atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < attemptsPerWorker; j++ {
				if l.TryAdmit(queue.Record{ID: fmt.Sprintf("w%d-%d", i, j)}) {
					successes.Inc()
				}
			}
		}(i)
	}
	stopResets := make(chan struct{})
	resetsDone := make(chan struct{})
	go func() {
		defer close(resetsDone)
		for {
			select {
			case <-stopResets:
				return
			default:
				l.ResetCount()
			}
		}
	}()
	wg.Wait()
	close(stopResets)
	<-resetsDone

	// Every successful admission is accounted in exactly one window.
	var counted int64
	for _, entry := range logRecorder.FindAllEntriesByFilter(func(entry logtest.RecordedEntry) bool {
		return entry.Text == "quota window reset"
	}) {
		f, found := entry.FindField("admitted_in_window")
		require.True(t, found)
		require.LessOrEqual(t, int(f.Int), 50)
		counted += f.Int
	}
	counted += int64(l.Admitted())
	require.Equal(t, successes.Load(), counted)
	require.GreaterOrEqual(t, l.Remaining(), 0)
}
