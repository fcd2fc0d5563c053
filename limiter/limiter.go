/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package limiter provides the per-client rate limiter that decides whether
// a queued request may be admitted in the current quota window.
package limiter

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/queue"
	"github.com/acronis/go-admission/tier"
)

// Hooks are callbacks fired on admission events. Nil hooks are skipped.
// Hooks are always called outside the queue and limiter locks.
type Hooks struct {
	// OnAdmit is called for every admitted record, in admission order.
	OnAdmit func(rec queue.Record)
	// OnExpire is called for every record dropped because it waited too long.
	OnExpire func(rec queue.Record)
	// OnReset is called after the admitted counter is zeroed.
	OnReset func(clientName string)
}

func (h Hooks) admit(rec queue.Record) {
	if h.OnAdmit != nil {
		h.OnAdmit(rec)
	}
}

func (h Hooks) reset(clientName string) {
	if h.OnReset != nil {
		h.OnReset(clientName)
	}
}

// Opts contains optional parameters for constructing RateLimiter.
type Opts struct {
	Hooks  Hooks
	Logger log.FieldLogger
	// Now is used for the reset log entry. time.Now is used if nil.
	Now func() time.Time
}

// RateLimiter holds the quota state of a single client.
// Admission and reset are serialized, so neither of them can lose the other's update.
type RateLimiter struct {
	clientName string
	tier       tier.Tier
	hooks      Hooks
	logger     log.FieldLogger
	now        func() time.Time

	mu       sync.Mutex
	admitted int
}

// New creates a new RateLimiter for the client with the given tier.
func New(clientName string, t tier.Tier, opts Opts) (*RateLimiter, error) {
	if strings.TrimSpace(clientName) == "" {
		return nil, errors.New("client name cannot be empty")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	l := &RateLimiter{clientName: clientName, tier: t, hooks: opts.Hooks, logger: opts.Logger, now: opts.Now}
	if l.logger == nil {
		l.logger = log.NewDisabledLogger()
	}
	if l.now == nil {
		l.now = time.Now
	}
	l.logger = l.logger.With(log.Client(clientName))
	return l, nil
}

// ClientName returns the name of the client this limiter belongs to.
func (l *RateLimiter) ClientName() string {
	return l.clientName
}

// Tier returns the client's license tier.
func (l *RateLimiter) Tier() tier.Tier {
	return l.tier
}

// Hooks returns the hooks the limiter was created with.
func (l *RateLimiter) Hooks() Hooks {
	return l.hooks
}

// TryAdmit counts the record against the current window if the quota is not exhausted yet.
// It returns false when the quota is exhausted; the record is expected to stay queued.
func (l *RateLimiter) TryAdmit(rec queue.Record) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.admitted >= l.tier.QuotaPerWindow {
		return false
	}
	l.admitted++
	return true
}

// ResetCount starts a new quota window.
func (l *RateLimiter) ResetCount() {
	l.mu.Lock()
	prev := l.admitted
	l.admitted = 0
	l.mu.Unlock()

	l.logger.Info("quota window reset",
		log.Time("reset_time", l.now()), log.Int("admitted_in_window", prev))
	l.hooks.reset(l.clientName)
}

// Admitted returns the number of records admitted in the current window.
func (l *RateLimiter) Admitted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.admitted
}

// Remaining returns how many records may still be admitted in the current window.
func (l *RateLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier.QuotaPerWindow - l.admitted
}

// Drain performs one admission pass over q: records are considered oldest first
// and the pass stops at the first one that does not fit into the quota.
// OnAdmit is fired for every admitted record after the queue is unlocked.
func (l *RateLimiter) Drain(q *queue.Queue) []queue.Record {
	admitted := q.Scan(func(rec queue.Record) queue.Decision {
		if !l.TryAdmit(rec) {
			return queue.Stop
		}
		return queue.Take
	})
	now := l.now()
	for _, rec := range admitted {
		l.logger.Debug("processing client request", log.RequestID(rec.ID), log.Age(rec.Age(now)))
		l.hooks.admit(rec)
	}
	return admitted
}
