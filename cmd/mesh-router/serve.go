package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/signalsfoundry/mesh-router/internal/api"
	"github.com/signalsfoundry/mesh-router/internal/calibration"
	"github.com/signalsfoundry/mesh-router/internal/config"
	"github.com/signalsfoundry/mesh-router/internal/logging"
	"github.com/signalsfoundry/mesh-router/internal/observability"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP router service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			defer func() { _ = logging.Sync(log) }()
			if listen != "" {
				cfg.API.Address = listen
			}

			lis, err := net.Listen("tcp", cfg.API.Address)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.API.Address, err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			gin.SetMode(gin.ReleaseMode)
			return run(ctx, cfg, log, lis)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP address, overriding api.address")
	return cmd
}

// run serves the API on lis and drives the tick loop until ctx is done. It
// owns lis and returns nil on a clean shutdown.
func run(ctx context.Context, cfg config.Config, log logging.Logger, lis net.Listener) error {
	tracing, err := observability.StartTracing(ctx, cfg.Tracing.Observability(), log)
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("start tracing: %w", err)
	}
	defer tracing.Shutdown(context.Background())

	collector, err := observability.NewRouterCollector(prometheus.NewRegistry())
	if err != nil {
		_ = lis.Close()
		return fmt.Errorf("init metrics: %w", err)
	}

	a, err := newApp(cfg, collector, log)
	if err != nil {
		_ = lis.Close()
		return err
	}
	defer a.Close()

	var watcher *calibration.Watcher
	if cfg.Calibration.Dir != "" {
		watcher, err = calibration.NewWatcher(cfg.Calibration.Dir, a.slot.Offer,
			calibration.WithDebounce(cfg.Calibration.Debounce.Duration),
			calibration.WithWatcherLogger(log),
		)
		if err != nil {
			_ = lis.Close()
			return err
		}
		defer watcher.Close()
	}

	srv := &http.Server{
		Handler: api.NewServer(api.Deps{
			Router:  a.router,
			Store:   a.store,
			Tracker: a.tracker,
			Metrics: collector.Handler(),
		}, log).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	metricsSrv := serveMetrics(cfg.Metrics, collector, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx, "serving router API", logging.String("addr", lis.Addr().String()))
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return ignoreCancel(a.controller(time.Now()).Run(gctx, 0))
	})
	if watcher != nil {
		g.Go(func() error {
			log.Info(gctx, "watching for calibration candidates", logging.String("dir", cfg.Calibration.Dir))
			return ignoreCancel(watcher.Run(gctx))
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info(context.Background(), "shutting down router")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(shutdownCtx)
		}
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(cfg config.MetricsConfig, collector *observability.RouterCollector, log logging.Logger) *http.Server {
	if !cfg.Enabled || cfg.Address == "" || collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              cfg.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", cfg.Address))
	return srv
}
