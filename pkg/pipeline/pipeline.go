// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pipeline runs one UI discovery end to end: open the target in a
// browser, let the agent observe it through the discovery tools, parse the
// observation and keep it as a report.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kadirpekel/scout/pkg/agent/llmagent"
	"github.com/kadirpekel/scout/pkg/browser"
	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/discovery"
	"github.com/kadirpekel/scout/pkg/model"
	"github.com/kadirpekel/scout/pkg/observability"
	"github.com/kadirpekel/scout/pkg/report"
	"github.com/kadirpekel/scout/pkg/runner"
	"github.com/kadirpekel/scout/pkg/session"
)

// ModelFactory builds the language model for a discovery.
type ModelFactory func(cfg config.LLMConfig) (model.LLM, error)

// PageFactory opens the browser page for a discovery.
type PageFactory func(opts browser.Options) browser.Page

// Options are the collaborators of a Service. Zero fields get defaults.
type Options struct {
	Sessions      session.Service
	Reports       report.Store
	Observability *observability.Manager
	NewModel      ModelFactory
	NewPage       PageFactory
}

// Request asks for one discovery. Empty fields fall back to the
// configuration.
type Request struct {
	URL       string `json:"url"`
	SessionID string `json:"session_id,omitempty"`
}

// Result is the outcome of a discovery.
type Result struct {
	// Output is the agent's text as the CLI prints it.
	Output string

	Report *report.Report

	// ReportPath is where observation.json was written; empty if writing
	// failed.
	ReportPath string
}

// Service runs discoveries. It is safe for concurrent use; every
// discovery gets its own browser.
type Service struct {
	cfg  atomic.Pointer[config.Config]
	opts Options
}

func New(cfg *config.Config, opts Options) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if opts.Sessions == nil {
		opts.Sessions = session.InMemoryService()
	}
	if opts.Reports == nil {
		opts.Reports = report.NewMemoryStore()
	}
	if opts.Observability == nil {
		opts.Observability = observability.NoopManager()
	}
	if opts.NewModel == nil {
		opts.NewModel = NewModel
	}
	if opts.NewPage == nil {
		opts.NewPage = func(o browser.Options) browser.Page { return browser.NewChrome(o) }
	}

	s := &Service{opts: opts}
	s.cfg.Store(cfg)
	return s, nil
}

// Config returns the configuration in effect.
func (s *Service) Config() *config.Config {
	return s.cfg.Load()
}

// UpdateConfig swaps the configuration. Running discoveries keep the one
// they started with.
func (s *Service) UpdateConfig(cfg *config.Config) {
	s.cfg.Store(cfg)
	slog.Info("Configuration updated", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
}

// Reports returns the report store.
func (s *Service) Reports() report.Store {
	return s.opts.Reports
}

// Discover observes one page. An agent answer that is not a valid
// observation is not an error: the report keeps the raw output and the
// reason it could not be parsed.
func (s *Service) Discover(ctx context.Context, req Request) (result *Result, err error) {
	cfg := s.cfg.Load()

	target := req.URL
	if target == "" {
		target = cfg.Target.WebsiteURL
	}
	if target == "" {
		return nil, config.ErrMissingURL
	}
	if err := config.ValidateURL(target); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = cfg.Agent.SessionID + "-" + uuid.NewString()
	}

	start := time.Now()
	host := discovery.HostOf(target)
	var elements int

	ctx, span := s.opts.Observability.Tracer().Start(ctx, observability.SpanDiscovery)
	span.SetAttributes(attribute.String(observability.AttrTargetURL, target))
	defer func() {
		s.opts.Observability.Metrics().RecordDiscovery(ctx, host, time.Since(start), elements, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	page := s.opts.NewPage(browserOptions(cfg.Target))
	tools := discovery.NewTools(target, cfg.Target.AssetsDir, page)
	defer func() {
		if cerr := tools.Cleanup(); cerr != nil {
			slog.Warn("Browser cleanup failed", "error", cerr)
		}
	}()

	callable, err := tools.CallableTools()
	if err != nil {
		return nil, fmt.Errorf("failed to build tools: %w", err)
	}

	llm, err := s.opts.NewModel(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("failed to create model: %w", err)
	}
	defer llm.Close()

	ag, err := llmagent.New(llmagent.Config{
		Name:           cfg.Agent.Name,
		Description:    "Observes a web page and reports its interactable elements.",
		Model:          llm,
		Instruction:    discovery.Instruction,
		Tools:          callable,
		MaxIterations:  cfg.Agent.MaxIterations,
		Stream:         cfg.LLM.Stream,
		GenerateConfig: generateConfig(cfg.LLM),
		Metrics:        s.opts.Observability.Metrics(),
	})
	if err != nil {
		return nil, err
	}

	r, err := runner.New(runner.Config{
		AppName:           cfg.Agent.AppName,
		Agent:             ag,
		SessionService:    s.opts.Sessions,
		AutoCreateSession: true,
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Starting discovery", "url", target, "model", llm.Name(), "session_id", sessionID)
	msg := a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: cfg.Agent.Prompt})
	transcript, err := runner.Collect(r.Run(ctx, cfg.Agent.UserID, sessionID, msg))
	if err != nil {
		return nil, fmt.Errorf("discovery of %s failed: %w", target, err)
	}

	rep := report.New(target, sessionID)
	rep.Raw = transcript.Text
	obs, perr := parse(transcript)
	if perr != nil {
		slog.Warn("Agent output is not a valid observation", "url", target, "error", perr)
		rep.ParseError = perr.Error()
	} else {
		rep.Observation = obs
		elements = len(obs.Elements)
	}
	// Redirects move the page off the target host. The model's own
	// metadata.url is never trusted for paths.
	if current, uerr := page.URL(ctx); uerr == nil {
		if h := discovery.HostOf(current); h != discovery.UnknownHost {
			rep.Host = h
		}
	}
	host = rep.Host

	result = &Result{Output: transcript.Text, Report: rep}
	if path, werr := report.WriteFile(cfg.Target.AssetsDir, rep); werr != nil {
		slog.Warn("Failed to write observation file", "error", werr)
	} else {
		result.ReportPath = path
	}
	if err := s.opts.Reports.Save(ctx, rep); err != nil {
		return result, fmt.Errorf("failed to save report: %w", err)
	}

	slog.Info("Discovery completed", "url", target, "report_id", rep.ID, "elements", elements, "duration", time.Since(start))
	return result, nil
}

// parse prefers the final answer and falls back to the whole transcript.
func parse(t runner.Transcript) (*discovery.Observation, error) {
	obs, err := discovery.ParseObservation(t.Final)
	if err == nil {
		return obs, nil
	}
	if t.Text != t.Final {
		if obs, terr := discovery.ParseObservation(t.Text); terr == nil {
			return obs, nil
		}
	}
	return nil, err
}

func browserOptions(t config.TargetConfig) browser.Options {
	return browser.Options{
		Headless:           t.IsHeadless(),
		ViewportWidth:      t.ViewportWidth,
		ViewportHeight:     t.ViewportHeight,
		NavigationTimeout:  t.NavigationTimeout,
		NetworkIdleTimeout: t.NetworkIdleTimeout,
		ExecPath:           t.ChromePath,
	}
}

func generateConfig(c config.LLMConfig) *model.GenerateConfig {
	if c.Temperature == nil && c.MaxTokens == 0 {
		return nil
	}
	gc := &model.GenerateConfig{Temperature: c.Temperature}
	if c.MaxTokens > 0 {
		mt := c.MaxTokens
		gc.MaxTokens = &mt
	}
	return gc
}
