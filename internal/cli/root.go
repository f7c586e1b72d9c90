// Package cli wires the sync engine behind a cobra command tree. The
// CLI is a thin caller of the engine's operation interface; all the
// real behavior lives in internal/engine.
package cli

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/api"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/config"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/engine"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/logging"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/metrics"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/netstatus"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/queue"
	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// NewRootCommand creates the brewsync command tree.
func NewRootCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "brewsync",
		Short:         "Offline-first recipe synchronization",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newSyncCommand(),
		newServeCommand(),
		newListCommand(),
		newGetCommand(),
		newStatusCommand(),
		newCreateCommand(),
		newUpdateCommand(),
		newDeleteCommand(),
		newRetryCommand(),
		newLogoutCommand(),
	)

	return cmd
}

// app bundles everything a command needs after wiring.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	engine   *engine.Engine
	registry *prometheus.Registry
}

// buildApp loads config and constructs the engine with its real
// collaborators. The caller must Close the returned app.
func buildApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := logging.NewLogger(cfg.Environment)

	st, err := store.Open(cfg.StateDBPath)
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	var oracle netstatus.Oracle
	if cfg.ForceOffline {
		oracle = netstatus.Static(false)
	} else {
		oracle = netstatus.NewProber(cfg.ServerURL, cfg.HealthPath, nil)
	}

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}

	client := api.NewClient(cfg.ServerURL, httpClient, api.RetryPolicy{
		MaxAttempts:    cfg.RetryAttempts,
		InitialBackoff: cfg.RetryBackoff,
	})

	registry := prometheus.NewRegistry()

	eng := engine.New(engine.Options{
		Store:          st,
		Queue:          queue.New(st.DB()),
		Server:         client,
		Oracle:         oracle,
		UserScope:      cfg.UserID,
		AllowAnonymous: cfg.AllowAnonymous,
		Logger:         logger,
		Metrics:        metrics.New(registry),
		RetentionDays:  cfg.RetentionDays,
		ListPageSize:   cfg.ListPageSize,
	})

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    st,
		engine:   eng,
		registry: registry,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing state db", slog.String("error", err.Error()))
	}
}
