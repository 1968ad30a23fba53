package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/config/provider"
	"github.com/kadirpekel/scout/pkg/observability"
	"github.com/kadirpekel/scout/pkg/pipeline"
	"github.com/kadirpekel/scout/pkg/report"
	"github.com/kadirpekel/scout/pkg/session"
)

// app holds the long-lived pieces every command shares.
type app struct {
	cfg     *config.Config
	loader  *config.Loader
	pool    *config.DBPool
	obs     *observability.Manager
	reports report.Store
	svc     *pipeline.Service

	// overrides re-applies command-line flags to reloaded configs.
	overrides func(*config.Config)
}

// loadConfig reads the config file, or the environment alone when path is
// empty. onChange is only used with a file. Callers validate after applying
// their flag overrides.
func loadConfig(ctx context.Context, path string, onChange func(*config.Config)) (*config.Config, *config.Loader, error) {
	if path == "" {
		return config.FromEnv(), nil, nil
	}

	p, err := provider.NewFileProvider(path)
	if err != nil {
		return nil, nil, err
	}
	loader := config.NewLoader(p, config.WithOnChange(onChange))
	cfg, err := loader.Load(ctx)
	if err != nil {
		_ = loader.Close()
		return nil, nil, err
	}
	slog.Info("Loaded configuration", "path", path)
	return cfg, loader, nil
}

// newApp wires storage, observability and the discovery service.
func newApp(ctx context.Context, cfg *config.Config, loader *config.Loader) (*app, error) {
	a := &app{cfg: cfg, loader: loader, pool: config.NewDBPool()}

	a.obs = observability.NewManager(cfg.Observability.Metrics, cfg.Observability.Tracing)
	if err := a.obs.Initialize(ctx); err != nil {
		slog.Warn("Failed to initialize observability", "error", err)
		a.obs = observability.NoopManager()
	}

	sessions, err := session.NewFromConfig(ctx, cfg.Storage, a.pool)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to create session service: %w", err)
	}
	a.reports, err = report.NewStoreFromConfig(ctx, cfg.Storage, a.pool)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("failed to create report store: %w", err)
	}

	a.svc, err = pipeline.New(cfg, pipeline.Options{
		Sessions:      sessions,
		Reports:       a.reports,
		Observability: a.obs,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	if cfg.Storage.IsSQL() {
		slog.Info("Persistent storage enabled", "backend", cfg.Storage.Backend, "database", cfg.Storage.Database)
	}
	return a, nil
}

// reload applies a changed configuration. Storage and server settings need
// a restart.
func (a *app) reload(cfg *config.Config) {
	if a.overrides != nil {
		a.overrides(cfg)
	}
	if cfg.Storage != a.cfg.Storage || cfg.Server != a.cfg.Server {
		slog.Warn("Storage and server changes take effect after a restart")
	}
	a.cfg = cfg
	a.svc.UpdateConfig(cfg)
}

func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.loader != nil {
		errs = append(errs, a.loader.Close())
	}
	if a.obs != nil {
		errs = append(errs, a.obs.Shutdown(ctx))
	}
	errs = append(errs, a.pool.Close())
	return errors.Join(errs...)
}
