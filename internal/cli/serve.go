package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const metricsShutdownTimeout = 5 * time.Second

func newServeCommand() *cobra.Command {
	var (
		interval    time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run as a daemon: sync periodically and expose metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.logger.Info("brewsync daemon starting",
				slog.Duration("interval", interval),
				slog.String("metrics", metricsAddr),
			)

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return runPeriodicSync(gctx, a, interval)
			})

			if metricsAddr != "" {
				g.Go(func() error {
					return runMetricsServer(gctx, a, metricsAddr)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", time.Minute, "time between sync attempts")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "listen address for /metrics (empty disables)")

	return cmd
}

// runPeriodicSync attempts a sync immediately and then on every tick
// until the context is cancelled. Offline results are normal and just
// logged at debug.
func runPeriodicSync(ctx context.Context, a *app, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		res, err := a.engine.SyncNow(ctx)
		switch {
		case err != nil:
			a.logger.Error("sync run failed", slog.String("error", err.Error()))
		case res.Offline:
			a.logger.Debug("sync skipped, device offline")
		default:
			a.logger.Info("sync run finished",
				slog.Int("succeeded", res.Succeeded),
				slog.Int("failed", res.Failed),
			)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func runMetricsServer(ctx context.Context, a *app, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)

		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	}
}
