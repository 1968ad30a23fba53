package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/server"
)

// ServeCmd starts the HTTP API.
type ServeCmd struct {
	Host          string `help:"Address to bind."`
	Port          int    `help:"Port to listen on."`
	MaxConcurrent int    `name:"max-concurrent" help:"Discoveries allowed to run at once."`
	Watch         bool   `help:"Reload the config file when it changes."`

	LLM LLMFlags `embed:""`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The service exists only after the first load; reloads before that are dropped.
	var a *app
	cfg, loader, err := loadConfig(ctx, cli.Config, func(next *config.Config) {
		if a != nil {
			a.reload(next)
		}
	})
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.Validate(); err != nil {
		if loader != nil {
			_ = loader.Close()
		}
		return err
	}

	a, err = newApp(ctx, cfg, loader)
	if err != nil {
		return err
	}
	a.overrides = c.apply
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Warn("Shutdown error", "error", err)
		}
	}()

	srv := server.New(cfg.Server, a.svc, a.obs)

	fmt.Printf("\nScout server ready\n")
	fmt.Printf("   Discover:    POST http://%s/v1/discoveries\n", srv.Address())
	fmt.Printf("   Reports:     http://%s/v1/reports\n", srv.Address())
	fmt.Printf("   Health:      http://%s/health\n", srv.Address())
	if a.obs.MetricsEnabled() {
		fmt.Printf("   Metrics:     http://%s%s\n", srv.Address(), a.obs.MetricsPath())
	}
	fmt.Printf("   Storage:     %s\n", cfg.Storage.Backend)
	fmt.Println("\nPress Ctrl+C to stop")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(gctx)
	})
	if c.Watch && loader != nil {
		g.Go(func() error {
			if err := loader.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("config watch: %w", err)
			}
			return nil
		})
	} else if c.Watch {
		slog.Warn("--watch needs --config; ignoring")
	}
	return g.Wait()
}

func (c *ServeCmd) apply(cfg *config.Config) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.MaxConcurrent != 0 {
		cfg.Server.MaxConcurrent = c.MaxConcurrent
	}
	c.LLM.apply(cfg)
}
