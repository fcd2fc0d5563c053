/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package scheduler

import (
	"context"
	"time"

	"github.com/acronis/go-admission/limiter"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/queue"
	"github.com/acronis/go-admission/service"
)

// QuotaResetTicker starts a new quota window on every tick.
// It is expected to tick once per tier window.
type QuotaResetTicker struct {
	limiter *limiter.RateLimiter
	metrics MetricsCollector
}

var _ service.Worker = (*QuotaResetTicker)(nil)

// NewQuotaResetTicker creates a new QuotaResetTicker.
func NewQuotaResetTicker(l *limiter.RateLimiter, metrics MetricsCollector) *QuotaResetTicker {
	if metrics == nil {
		metrics = disabledMetricsCollector
	}
	return &QuotaResetTicker{limiter: l, metrics: metrics}
}

// Period returns the tier window.
func (t *QuotaResetTicker) Period() time.Duration {
	return t.limiter.Tier().Window()
}

// Run performs a single tick.
func (t *QuotaResetTicker) Run(_ context.Context) error {
	t.limiter.ResetCount()
	t.metrics.IncResets()
	t.metrics.SetWindowAdmitted(t.limiter.Admitted())
	return nil
}

// AdmissionTicker admits queued requests while the quota allows.
type AdmissionTicker struct {
	limiter *limiter.RateLimiter
	queue   *queue.Queue
	metrics MetricsCollector
}

var _ service.Worker = (*AdmissionTicker)(nil)

// NewAdmissionTicker creates a new AdmissionTicker.
func NewAdmissionTicker(l *limiter.RateLimiter, q *queue.Queue, metrics MetricsCollector) *AdmissionTicker {
	if metrics == nil {
		metrics = disabledMetricsCollector
	}
	return &AdmissionTicker{limiter: l, queue: q, metrics: metrics}
}

// Run performs a single tick.
func (t *AdmissionTicker) Run(_ context.Context) error {
	admitted := t.limiter.Drain(t.queue)
	if len(admitted) != 0 {
		t.metrics.AddAdmitted(len(admitted))
	}
	t.metrics.SetQueueDepth(t.queue.Len())
	t.metrics.SetWindowAdmitted(t.limiter.Admitted())
	return nil
}

// ExpiryTickerOpts contains optional parameters for constructing ExpiryTicker.
type ExpiryTickerOpts struct {
	// OnExpire is called for every expired record outside the queue lock.
	OnExpire func(rec queue.Record)
	Metrics  MetricsCollector
	Logger   log.FieldLogger
	// Now is the clock used for computing the age of records. time.Now is used if nil.
	Now func() time.Time
}

// ExpiryTicker drops queued requests that have been waiting longer than the timeout.
type ExpiryTicker struct {
	queue    *queue.Queue
	timeout  time.Duration
	onExpire func(rec queue.Record)
	metrics  MetricsCollector
	logger   log.FieldLogger
	now      func() time.Time
}

var _ service.Worker = (*ExpiryTicker)(nil)

// NewExpiryTicker creates a new ExpiryTicker.
func NewExpiryTicker(q *queue.Queue, timeout time.Duration, opts ExpiryTickerOpts) *ExpiryTicker {
	t := &ExpiryTicker{
		queue:    q,
		timeout:  timeout,
		onExpire: opts.OnExpire,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		now:      opts.Now,
	}
	if t.metrics == nil {
		t.metrics = disabledMetricsCollector
	}
	if t.logger == nil {
		t.logger = log.NewDisabledLogger()
	}
	if t.now == nil {
		t.now = time.Now
	}
	return t
}

// Timeout returns how long a request may wait for admission.
func (t *ExpiryTicker) Timeout() time.Duration {
	return t.timeout
}

// Run performs a single tick.
func (t *ExpiryTicker) Run(_ context.Context) error {
	now := t.now()
	expired := t.queue.RemoveIf(func(rec queue.Record) bool {
		return rec.Age(now) > t.timeout
	})
	for _, rec := range expired {
		t.logger.Debug("request expired", log.RequestID(rec.ID), log.Age(rec.Age(now)))
		if t.onExpire != nil {
			t.onExpire(rec)
		}
	}
	if len(expired) != 0 {
		t.metrics.AddExpired(len(expired))
	}
	t.metrics.SetQueueDepth(t.queue.Len())
	return nil
}
