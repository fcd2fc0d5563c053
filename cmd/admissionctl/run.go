/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/acronis/go-admission/dispatch"
	"github.com/acronis/go-admission/internal/version"
	"github.com/acronis/go-admission/limiter"
	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/opsserver"
	"github.com/acronis/go-admission/scheduler"
	"github.com/acronis/go-admission/service"
)

const dispatcherCloseTimeout = time.Second * 10

type runOpts struct {
	configPath string
	client     string
	tier       string
	requests   []string
	generate   int
	duration   time.Duration
}

func (o runOpts) overrides() map[string]interface{} {
	res := make(map[string]interface{})
	if o.client != "" {
		res["admission.client"] = o.client
	}
	if o.tier != "" {
		res["admission.tier"] = o.tier
	}
	return res
}

func newRunCommand() *cobra.Command {
	var opts runOpts
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run admission controllers until interrupted",
		Long: `Run starts an admission controller for every configured client.
Requests given by --request and --generate are queued for every client right after start.
The controllers are stopped by SIGINT/SIGTERM or after --duration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.configPath, _ = cmd.Flags().GetString("config")
			return runControllers(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.client, "client", "", "Client name (overrides admission.client)")
	cmd.Flags().StringVar(&opts.tier, "tier", "", "License tier (overrides admission.tier)")
	cmd.Flags().StringSliceVar(&opts.requests, "request", nil, "Request id to queue for every client (repeatable)")
	cmd.Flags().IntVar(&opts.generate, "generate", 0, "Number of requests with generated ids to queue for every client")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop after this duration (0 means run until a signal)")
	return cmd
}

func runControllers(ctx context.Context, opts runOpts, out io.Writer) (err error) {
	cfg, err := loadAppConfig(opts.configPath, opts.overrides())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closeLog := log.NewLogger(cfg.Log)
	defer closeLog()

	registry, err := cfg.Tiers.Registry()
	if err != nil {
		return err
	}

	dispatcher := dispatch.New(dispatch.NopHandler, dispatch.Opts{
		RetryPolicy: cfg.Retry.NewPolicy(),
		Logger:      logger,
	})
	defer func() {
		closeCtx, closeCancel := context.WithTimeout(context.Background(), dispatcherCloseTimeout)
		defer closeCancel()
		if closeErr := dispatcher.Close(closeCtx); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close dispatcher: %w", closeErr))
		}
	}()

	metrics := scheduler.NewPrometheusMetricsWithOpts(scheduler.PrometheusMetricsOpts{
		ConstLabels: version.AddPrometheusLabel(nil),
	})
	metrics.MustRegister()
	defer metrics.Unregister()

	ctrls, err := scheduler.NewControllers(cfg.Admission, registry, scheduler.Opts{
		Hooks:   limiter.Hooks{OnAdmit: dispatcher.OnAdmit},
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}
	for _, c := range ctrls {
		for _, id := range opts.requests {
			c.Submit(id)
		}
		for i := 0; i < opts.generate; i++ {
			c.Submit("")
		}
	}

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}
	units := []service.Unit{ctrls.Unit()}
	if cfg.OpsServer.Enabled {
		units = append(units, opsserver.New(cfg.OpsServer, ctrls, logger))
	}
	if err = service.New(logger, service.NewCompositeUnit(units...)).StartContext(ctx); err != nil {
		return err
	}
	printSummary(out, ctrls)
	return nil
}

func printSummary(w io.Writer, ctrls scheduler.Controllers) {
	for _, st := range ctrls.Statuses() {
		_, _ = fmt.Fprintf(w, "client=%s tier=%s admitted_in_window=%d/%d queued=%d\n",
			st.Client, st.Tier, st.WindowAdmitted, st.QuotaPerWindow, st.Queued)
	}
}
