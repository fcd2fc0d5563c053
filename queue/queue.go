/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package queue provides the ordered queue of pending requests that is shared
// by request producers, the admission ticker and the expiry ticker.
//
// Removal from the queue is always an atomic take: a record is returned
// by at most one RemoveIf or Scan call, no matter how many of them run concurrently.
package queue

import (
	"sync"
	"time"

	"github.com/rs/xid"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log"
)

// Record is a queued request. It is an immutable value.
type Record struct {
	ID          string
	ArrivalTime time.Time
}

// ArrivalMillis returns the arrival time as Unix milliseconds.
func (r Record) ArrivalMillis() int64 {
	return r.ArrivalTime.UnixMilli()
}

// Age returns how long the record has been waiting at the given moment.
func (r Record) Age(now time.Time) time.Duration {
	return now.Sub(r.ArrivalTime)
}

// Predicate reports whether a record should be taken from the queue.
type Predicate func(rec Record) bool

// Decision is the result of visiting a single record during Scan.
type Decision int

// Scan decisions.
const (
	// Keep leaves the record in the queue and continues the scan.
	Keep Decision = iota
	// Take removes the record from the queue and continues the scan.
	Take
	// Stop leaves the record in the queue and ends the scan.
	Stop
	// TakeAndStop removes the record from the queue and ends the scan.
	TakeAndStop
)

// Opts contains optional parameters for constructing Queue.
type Opts struct {
	// Now is used for stamping submitted records. time.Now is used if nil.
	Now func() time.Time
	// Logger is used for logging submissions. Nothing is logged if nil.
	Logger log.FieldLogger
}

// Queue is a concurrency-safe queue of pending requests ordered by submission.
type Queue struct {
	mu      sync.Mutex
	records []Record
	size    atomic.Int64
	now     func() time.Time
	logger  log.FieldLogger
}

// New creates a new empty Queue.
func New() *Queue {
	return NewWithOpts(Opts{})
}

// NewWithOpts creates a new empty Queue with an ability to specify different optional parameters.
func NewWithOpts(opts Opts) *Queue {
	q := &Queue{now: opts.Now, logger: opts.Logger}
	if q.now == nil {
		q.now = time.Now
	}
	if q.logger == nil {
		q.logger = log.NewDisabledLogger()
	}
	return q
}

// Submit stamps a new record with the current time and appends it to the queue.
// If id is empty, a unique one is generated.
func (q *Queue) Submit(id string) Record {
	if id == "" {
		id = xid.New().String()
	}
	q.mu.Lock()
	rec := Record{ID: id, ArrivalTime: q.now()}
	q.records = append(q.records, rec)
	q.size.Store(int64(len(q.records)))
	q.mu.Unlock()

	q.logger.Debug("request queued", log.RequestID(rec.ID), log.Time("arrival_time", rec.ArrivalTime))
	return rec
}

// RemoveIf removes and returns, in insertion order, every record matching pred.
// pred is called with the queue locked and must not call Queue methods.
func (q *Queue) RemoveIf(pred Predicate) []Record {
	return q.Scan(func(rec Record) Decision {
		if pred(rec) {
			return Take
		}
		return Keep
	})
}

// Scan visits records oldest first and removes those for which fn returns Take or TakeAndStop.
// The whole scan is a single critical section, so fn may have side effects
// that must be consistent with the removal (e.g. counting admissions).
// fn must not call Queue methods.
func (q *Queue) Scan(fn func(rec Record) Decision) []Record {
	q.mu.Lock()
	defer q.mu.Unlock()

	var taken []Record
	kept := q.records[:0]
	i := 0
	for ; i < len(q.records); i++ {
		rec := q.records[i]
		decision := fn(rec)
		if decision == Take || decision == TakeAndStop {
			taken = append(taken, rec)
		} else {
			kept = append(kept, rec)
		}
		if decision == Stop || decision == TakeAndStop {
			i++
			break
		}
	}
	if len(taken) == 0 {
		return []Record{}
	}
	kept = append(kept, q.records[i:]...)
	// Drop references to removed records from the tail of the backing array.
	for j := len(kept); j < len(q.records); j++ {
		q.records[j] = Record{}
	}
	q.records = kept
	q.size.Store(int64(len(q.records)))
	return taken
}

// Len returns the number of queued records.
// The value may be stale by the time the caller acts on it.
func (q *Queue) Len() int {
	return int(q.size.Load())
}

// Snapshot returns a copy of the queued records in order.
func (q *Queue) Snapshot() []Record {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Record(nil), q.records...)
}
