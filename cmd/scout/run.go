package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/pipeline"
)

// LLMFlags override the model selection of the loaded configuration.
type LLMFlags struct {
	Provider string `help:"LLM provider (gemini, openai). Defaults to whichever key is set."`
	Model    string `help:"Model name."`
	Stream   bool   `help:"Stream model responses."`
}

func (f LLMFlags) apply(cfg *config.Config) {
	if f.Provider != "" && f.Provider != cfg.LLM.Provider {
		cfg.LLM.Provider = f.Provider
		cfg.LLM.Model = ""
	}
	if f.Model != "" {
		cfg.LLM.Model = f.Model
	}
	if f.Stream {
		cfg.LLM.Stream = true
	}
	cfg.SetDefaults()
}

// RunCmd performs a single discovery.
type RunCmd struct {
	URL       string `help:"Website to observe (overrides WEBSITE_URL)." placeholder:"URL"`
	Session   string `help:"Session ID (default: a fresh one per run)."`
	AssetsDir string `name:"assets-dir" help:"Directory for screenshots and observations." type:"path"`
	Headless  *bool  `negatable:"" help:"Run the browser without a window (default: true)."`
	Storage   string `help:"Storage backend: inmemory, sqlite, postgres, mysql." placeholder:"BACKEND"`
	StorageDB string `name:"storage-db" help:"Storage database path or DSN." placeholder:"DSN"`

	LLM LLMFlags `embed:""`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, _, err := loadConfig(ctx, cli.Config, nil)
	if err != nil {
		return err
	}
	c.apply(cfg)
	if err := cfg.ValidateTarget(); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			slog.Warn("Shutdown error", "error", err)
		}
	}()
	slog.Info("Agent initialized.", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)

	res, err := a.svc.Discover(ctx, pipeline.Request{SessionID: c.Session})
	if err != nil {
		slog.Error("Error running agent", "error", err)
		return err
	}
	if res.ReportPath != "" {
		slog.Info("Observation saved", "path", res.ReportPath, "report_id", res.Report.ID)
	}
	fmt.Println(res.Output)
	return nil
}

func (c *RunCmd) apply(cfg *config.Config) {
	if c.URL != "" {
		cfg.Target.WebsiteURL = c.URL
	}
	if c.AssetsDir != "" {
		cfg.Target.AssetsDir = c.AssetsDir
	}
	if c.Headless != nil {
		cfg.Target.Headless = c.Headless
	}
	if c.Storage != "" {
		cfg.Storage.Backend = c.Storage
	}
	if c.StorageDB != "" {
		cfg.Storage.Database = c.StorageDB
	}
	c.LLM.apply(cfg)
}
