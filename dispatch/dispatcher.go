/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package dispatch passes admitted requests to the downstream API.
// Calls are asynchronous, so the admission ticker never waits for them,
// and failed calls are retried according to a retry policy.
package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/queue"
	"github.com/acronis/go-admission/retry"
)

// Default values of the dispatcher options.
const (
	DefaultMaxInFlight = 64
	DefaultMaxPending  = 1024
)

// Handler performs the downstream call for an admitted request.
type Handler func(ctx context.Context, rec queue.Record) error

// NopHandler does nothing and never fails.
func NopHandler(context.Context, queue.Record) error {
	return nil
}

// Opts contains optional parameters for constructing Dispatcher.
type Opts struct {
	// RetryPolicy is retry.NoRetryPolicy if nil.
	RetryPolicy retry.Policy
	// IsRetryable tells which errors are worth retrying. Every error is retried if nil.
	IsRetryable retry.IsRetryable
	// MaxInFlight limits concurrently running calls. DefaultMaxInFlight is used if zero.
	MaxInFlight int
	// MaxPending limits admitted records waiting for a free call slot. DefaultMaxPending is used if zero.
	// Records admitted while the buffer is full are dropped.
	MaxPending int
	// CallTimeout limits a single call including retries. No limit if zero.
	CallTimeout time.Duration
	Logger      log.FieldLogger
}

// Stats contains counters of the dispatched requests.
type Stats struct {
	Dispatched int64
	Succeeded  int64
	Failed     int64
	Dropped    int64
}

// Dispatcher runs the downstream Handler for every admitted request in the background.
// Its OnAdmit method is meant to be used as limiter.Hooks.OnAdmit.
type Dispatcher struct {
	handler     Handler
	retryPolicy retry.Policy
	isRetryable retry.IsRetryable
	callTimeout time.Duration
	logger      log.FieldLogger

	ctx     context.Context
	cancel  context.CancelFunc
	pending chan queue.Record
	workers *errgroup.Group
	running sync.WaitGroup

	// mu guards closing of pending. It is never held while blocking.
	mu     sync.RWMutex
	closed bool

	dispatched atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
	dropped    atomic.Int64
}

// New creates a new Dispatcher and starts its MaxInFlight workers.
func New(handler Handler, opts Opts) *Dispatcher {
	if handler == nil {
		handler = NopHandler
	}
	d := &Dispatcher{
		handler:     handler,
		retryPolicy: opts.RetryPolicy,
		isRetryable: opts.IsRetryable,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
	if d.retryPolicy == nil {
		d.retryPolicy = retry.NoRetryPolicy
	}
	if d.logger == nil {
		d.logger = log.NewDisabledLogger()
	}
	maxInFlight := opts.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	maxPending := opts.MaxPending
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.pending = make(chan queue.Record, maxPending)
	d.workers = &errgroup.Group{}
	for i := 0; i < maxInFlight; i++ {
		d.workers.Go(func() error {
			for rec := range d.pending {
				d.call(rec)
				d.running.Done()
			}
			return nil
		})
	}
	return d
}

// OnAdmit hands the admitted record over to the workers and returns immediately.
// Records admitted after Close or while MaxPending records are already waiting are dropped with a warning.
func (d *Dispatcher) OnAdmit(rec queue.Record) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.logger.Warn("dispatcher is closed, admitted request is dropped", log.RequestID(rec.ID))
		return
	}
	d.running.Add(1)
	select {
	case d.pending <- rec:
		d.dispatched.Inc()
	default:
		d.running.Done()
		d.dropped.Inc()
		d.logger.Warn("too many pending downstream calls, admitted request is dropped", log.RequestID(rec.ID))
	}
}

func (d *Dispatcher) call(rec queue.Record) {
	logger := d.logger.With(log.RequestID(rec.ID))
	if d.ctx.Err() != nil {
		d.failed.Inc()
		logger.Warn("downstream call canceled on shutdown")
		return
	}
	ctx := d.ctx
	if d.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.callTimeout)
		defer cancel()
	}
	err := retry.DoWithRetry(ctx, d.retryPolicy, d.isRetryable, retry.LogNotify(logger, "downstream call failed, will retry"),
		func(ctx context.Context) error {
			return d.handler(ctx, rec)
		})
	if err != nil {
		d.failed.Inc()
		if errors.Is(err, context.Canceled) && d.ctx.Err() != nil {
			logger.Warn("downstream call canceled on shutdown")
			return
		}
		logger.Error("downstream call failed", log.Error(err))
		return
	}
	d.succeeded.Inc()
}

// Stats returns the counters of the dispatched requests.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
	}
}

// Wait blocks until all records handed over so far are processed.
// It must not be called concurrently with OnAdmit.
func (d *Dispatcher) Wait() {
	d.running.Wait()
}

// Close stops accepting new records and waits until the pending and running calls finish.
// If ctx is done before that, the calls are canceled, the records still pending are failed
// without calling the handler, and ctx.Err() is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.pending)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = d.workers.Wait() // Workers never return errors.
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}
