package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/sessioncore"
	"github.com/MrEthical07/sessioncore/httpapi"
	internalmetrics "github.com/MrEthical07/sessioncore/internal/metrics"
	promexport "github.com/MrEthical07/sessioncore/metrics/export/prometheus"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the periodic sweep",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger, err := a.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	st, err := a.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	observer := internalmetrics.NewStoreObserver()
	st.SetObserver(observer.Observe)

	engine, err := sessioncore.New().
		WithConfig(cfg).
		WithStore(st).
		WithLogger(logger).
		WithMailer(sessioncore.LogMailer{Logger: logger}).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	var metricsHandler http.Handler
	if cfg.Metrics.Enabled {
		exp := promexport.NewPrometheusExporter(engine)
		if err := exp.Register(observer.Collectors()...); err != nil {
			return err
		}
		metricsHandler = exp.Handler()
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           httpapi.New(engine, httpapi.ConfigFrom(cfg.Server), metricsHandler).Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	if interval := cfg.Retention.SweepInterval; interval > 0 {
		g.Go(func() error {
			runSweeper(gctx, engine, interval)
			return nil
		})
	}
	return g.Wait()
}

// runSweeper sweeps every interval until ctx ends. Failures are logged by
// the engine and retried on the next tick.
func runSweeper(ctx context.Context, engine *sessioncore.Engine, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = engine.Sweep(ctx)
		}
	}
}
