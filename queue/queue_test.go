/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package queue

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-admission/log/logtest"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func ids(records []Record) []string {
	res := make([]string, 0, len(records))
	for _, rec := range records {
		res = append(res, rec.ID)
	}
	return res
}

func TestQueue_Submit(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	logRecorder := logtest.NewRecorder()
	q := NewWithOpts(Opts{Now: clock.Now, Logger: logRecorder})

	r1 := q.Submit("R1")
	clock.Advance(time.Millisecond * 5)
	r2 := q.Submit("R2")
	generated := q.Submit("")

	require.Equal(t, "R1", r1.ID)
	require.Equal(t, clock.now.Add(-5*time.Millisecond).UnixMilli(), r1.ArrivalMillis())
	require.Equal(t, time.Millisecond*5, r2.ArrivalTime.Sub(r1.ArrivalTime))
	require.NotEmpty(t, generated.ID)
	require.Equal(t, 3, q.Len())
	require.Equal(t, []string{"R1", "R2", generated.ID}, ids(q.Snapshot()))
	require.Equal(t, 3, logRecorder.CountEntries("request queued"))
}

func TestQueue_LenBeyondInt32(t *testing.T) {
	q := New()
	q.size.Store(math.MaxInt32 + 1)
	require.Equal(t, math.MaxInt32+1, q.Len())

	q.Submit("R1")
	require.Equal(t, 1, q.Len())
}

func TestQueue_RemoveIf(t *testing.T) {
	t.Run("removes matching records in insertion order", func(t *testing.T) {
		q := New()
		for i := 1; i <= 6; i++ {
			q.Submit(fmt.Sprintf("R%d", i))
		}
		removed := q.RemoveIf(func(rec Record) bool {
			return rec.ID == "R2" || rec.ID == "R5" || rec.ID == "R6"
		})
		require.Equal(t, []string{"R2", "R5", "R6"}, ids(removed))
		require.Equal(t, []string{"R1", "R3", "R4"}, ids(q.Snapshot()))
		require.Equal(t, 3, q.Len())
	})

	t.Run("matching nothing leaves queue unchanged", func(t *testing.T) {
		q := New()
		q.Submit("R1")
		q.Submit("R2")
		before := q.Snapshot()
		removed := q.RemoveIf(func(rec Record) bool { return false })
		require.NotNil(t, removed)
		require.Empty(t, removed)
		require.Equal(t, before, q.Snapshot())
	})

	t.Run("removed record is gone permanently", func(t *testing.T) {
		q := New()
		q.Submit("R1")
		require.Len(t, q.RemoveIf(func(rec Record) bool { return true }), 1)
		require.Empty(t, q.RemoveIf(func(rec Record) bool { return true }))
		require.Zero(t, q.Len())
	})
}

func TestQueue_Scan(t *testing.T) {
	q := New()
	for i := 1; i <= 5; i++ {
		q.Submit(fmt.Sprintf("R%d", i))
	}

	var visited []string
	taken := q.Scan(func(rec Record) Decision {
		visited = append(visited, rec.ID)
		switch rec.ID {
		case "R1":
			return Take
		case "R2":
			return Keep
		case "R3":
			return TakeAndStop
		}
		return Take
	})
	require.Equal(t, []string{"R1", "R2", "R3"}, visited)
	require.Equal(t, []string{"R1", "R3"}, ids(taken))
	require.Equal(t, []string{"R2", "R4", "R5"}, ids(q.Snapshot()))

	taken = q.Scan(func(rec Record) Decision { return Stop })
	require.Empty(t, taken)
	require.Equal(t, []string{"R2", "R4", "R5"}, ids(q.Snapshot()))
}

func TestQueue_ConcurrentTakes(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := New()
	var mu sync.Mutex
	takenBy := make(map[string]int)
	record := func(records []Record, taker int) {
		mu.Lock()
		defer mu.Unlock()
		for _, rec := range records {
			assert.Zero(t, takenBy[rec.ID], "record %s taken twice", rec.ID)
			takenBy[rec.ID] = taker
		}
	}

	var producersWG sync.WaitGroup
	for p := 0; p < producers; p++ {
		producersWG.Add(1)
		go func(p int) {
			defer producersWG.Done()
			for i := 0; i < perProducer; i++ {
				q.Submit(fmt.Sprintf("p%d-%d", p, i))
			}
		}(p)
	}

	done := make(chan struct{})
	var takersWG sync.WaitGroup
	for taker := 1; taker <= 2; taker++ {
		takersWG.Add(1)
		go func(taker int) {
			defer takersWG.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				record(q.RemoveIf(func(rec Record) bool { return true }), taker)
			}
		}(taker)
	}

	producersWG.Wait()
	require.Eventually(t, func() bool { return q.Len() == 0 }, time.Second*5, time.Millisecond)
	close(done)
	takersWG.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, takenBy, producers*perProducer)
}
