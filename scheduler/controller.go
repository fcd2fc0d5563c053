/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package scheduler wires the three time-driven actors of a client's admission controller:
// the quota reset ticker, the admission ticker and the expiry ticker.
// They share one request queue and one rate limiter and run concurrently until shutdown.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/acronis/go-admission/limiter"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/queue"
	"github.com/acronis/go-admission/service"
	"github.com/acronis/go-admission/tier"
)

// DefaultGracefulStopTimeout is the default time Stop(true) waits for the current ticks to finish.
const DefaultGracefulStopTimeout = time.Second * 5

// Opts contains optional parameters for constructing Controller.
type Opts struct {
	Hooks  limiter.Hooks
	Logger log.FieldLogger
	// Metrics are curried with the client name for every controller. Metrics are not collected if nil.
	Metrics *PrometheusMetrics
	// Now is the clock used for stamping and aging requests. time.Now is used if nil.
	Now func() time.Time
	// GracefulStopTimeout limits how long Stop(true) waits. DefaultGracefulStopTimeout is used if zero.
	GracefulStopTimeout time.Duration
}

// Controller is the admission controller of a single client.
// It implements service.Unit, so it can be run by service.Service directly or within service.CompositeUnit.
type Controller struct {
	cfg     ClientConfig
	queue   *queue.Queue
	limiter *limiter.RateLimiter
	logger  log.FieldLogger

	resetTicker     *QuotaResetTicker
	admissionTicker *AdmissionTicker
	expiryTicker    *ExpiryTicker

	workers []*service.PeriodicWorker
	unit    *service.WorkerUnit
}

var _ service.Unit = (*Controller)(nil)
var _ service.Worker = (*Controller)(nil)

// NewController creates a new Controller. The tier is resolved in registry,
// so an unknown tier fails here, before any ticker is started.
func NewController(cfg ClientConfig, registry *tier.Registry, opts Opts) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	t, err := registry.Lookup(cfg.Tier)
	if err != nil {
		return nil, fmt.Errorf("client %q: %w", cfg.Client, err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.NewDisabledLogger()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	metrics := disabledMetricsCollector
	if opts.Metrics != nil {
		metrics = opts.Metrics.ForClient(cfg.Client)
	}

	l, err := limiter.New(cfg.Client, t, limiter.Opts{Hooks: opts.Hooks, Logger: logger, Now: now})
	if err != nil {
		return nil, err
	}
	clientLogger := logger.With(log.Client(cfg.Client))
	q := queue.NewWithOpts(queue.Opts{Now: now, Logger: clientLogger})

	c := &Controller{
		cfg:             cfg,
		queue:           q,
		limiter:         l,
		logger:          clientLogger,
		resetTicker:     NewQuotaResetTicker(l, metrics),
		admissionTicker: NewAdmissionTicker(l, q, metrics),
		expiryTicker: NewExpiryTicker(q, cfg.ExpiryTimeout, ExpiryTickerOpts{
			OnExpire: opts.Hooks.OnExpire,
			Metrics:  metrics,
			Logger:   clientLogger,
			Now:      now,
		}),
	}

	window := t.Window()
	c.workers = []*service.PeriodicWorker{
		service.NewPeriodicWorkerWithOpts(c.resetTicker, window, clientLogger.With(log.String("actor", "quota_reset")),
			service.PeriodicWorkerOpts{InitialDelay: window, FixedRate: true}),
		service.NewPeriodicWorkerWithOpts(c.admissionTicker, cfg.AdmissionInterval, clientLogger.With(log.String("actor", "admission")),
			service.PeriodicWorkerOpts{FixedRate: true}),
		service.NewPeriodicWorkerWithOpts(c.expiryTicker, cfg.ExpiryInterval, clientLogger.With(log.String("actor", "expiry")),
			service.PeriodicWorkerOpts{FixedRate: true}),
	}

	gracefulStopTimeout := opts.GracefulStopTimeout
	if gracefulStopTimeout == 0 {
		gracefulStopTimeout = DefaultGracefulStopTimeout
	}
	c.unit = service.NewWorkerUnitWithOpts(c, service.WorkerUnitOpts{GracefulStopTimeout: gracefulStopTimeout})
	return c, nil
}

// ClientName returns the name of the client.
func (c *Controller) ClientName() string {
	return c.cfg.Client
}

// Config returns the configuration the controller was created with.
func (c *Controller) Config() ClientConfig {
	return c.cfg
}

// Queue returns the queue of pending requests.
func (c *Controller) Queue() *queue.Queue {
	return c.queue
}

// Limiter returns the client's rate limiter.
func (c *Controller) Limiter() *limiter.RateLimiter {
	return c.limiter
}

// ResetTicker returns the quota reset ticker.
func (c *Controller) ResetTicker() *QuotaResetTicker {
	return c.resetTicker
}

// AdmissionTicker returns the admission ticker.
func (c *Controller) AdmissionTicker() *AdmissionTicker {
	return c.admissionTicker
}

// ExpiryTicker returns the expiry ticker.
func (c *Controller) ExpiryTicker() *ExpiryTicker {
	return c.expiryTicker
}

// Submit queues a new request. It may be called concurrently with running tickers.
func (c *Controller) Submit(id string) queue.Record {
	return c.queue.Submit(id)
}

// Run runs the three tickers until ctx is canceled.
// A tick in progress is always completed before Run returns.
func (c *Controller) Run(ctx context.Context) error {
	t := c.limiter.Tier()
	c.logger.Info("admission controller started",
		log.String(log.FieldKeyTier, t.Name),
		log.Int("quota_per_window", t.QuotaPerWindow),
		log.Duration("window", t.Window()),
		log.Duration("admission_interval", c.cfg.AdmissionInterval),
		log.Duration("expiry_interval", c.cfg.ExpiryInterval),
		log.Duration("expiry_timeout", c.cfg.ExpiryTimeout))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, w := range c.workers {
		w := w
		eg.Go(func() error {
			return w.Run(egCtx)
		})
	}
	err := eg.Wait()
	c.logger.Info("admission controller stopped", log.Int("queued", c.queue.Len()))
	return err
}

// Start runs the controller and blocks until it is stopped.
func (c *Controller) Start(fatalError chan<- error) {
	c.unit.Start(fatalError)
}

// Stop stops the tickers. If gracefully is true, it waits until the current ticks finish.
func (c *Controller) Stop(gracefully bool) error {
	return c.unit.Stop(gracefully)
}

// Status is a point-in-time view of a controller's state.
type Status struct {
	Client         string `json:"client"`
	Tier           string `json:"tier"`
	QuotaPerWindow int    `json:"quotaPerWindow"`
	WindowAdmitted int    `json:"windowAdmitted"`
	Queued         int    `json:"queued"`
}

// Status returns the current state of the controller.
func (c *Controller) Status() Status {
	t := c.limiter.Tier()
	return Status{
		Client:         c.cfg.Client,
		Tier:           t.Name,
		QuotaPerWindow: t.QuotaPerWindow,
		WindowAdmitted: c.limiter.Admitted(),
		Queued:         c.queue.Len(),
	}
}

// Controllers is a set of controllers of different clients.
type Controllers []*Controller

// NewControllers creates a controller for every client in cfg.
func NewControllers(cfg *Config, registry *tier.Registry, opts Opts) (Controllers, error) {
	clientCfgs := cfg.ClientConfigs()
	res := make(Controllers, 0, len(clientCfgs))
	for _, cc := range clientCfgs {
		c, err := NewController(cc, registry, opts)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, nil
}

// Find returns the controller of the given client.
func (cs Controllers) Find(clientName string) (*Controller, bool) {
	for _, c := range cs {
		if c.ClientName() == clientName {
			return c, true
		}
	}
	return nil, false
}

// Statuses returns the current state of every controller.
func (cs Controllers) Statuses() []Status {
	res := make([]Status, 0, len(cs))
	for _, c := range cs {
		res = append(res, c.Status())
	}
	return res
}

// Unit returns a unit that starts and stops all controllers together.
func (cs Controllers) Unit() *service.CompositeUnit {
	units := make([]service.Unit, 0, len(cs))
	for _, c := range cs {
		units = append(units, c)
	}
	return service.NewCompositeUnit(units...)
}
