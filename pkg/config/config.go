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

// Package config holds Scout's configuration model and its loaders.
//
// Configuration is assembled in layers: an optional YAML/JSON file, the
// process environment (including .env files), then command-line flags
// applied by the caller. Defaults are filled in last.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kadirpekel/scout/pkg/observability"
)

// Providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Storage backends.
const (
	BackendInMemory = "inmemory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// Defaults.
const (
	DefaultGeminiModel        = "gemini-2.5-flash-lite"
	DefaultOpenAIModel        = "gpt-4o-mini"
	DefaultAssetsDir          = "assets"
	DefaultNetworkIdleTimeout = 10 * time.Second
	DefaultNavigationTimeout  = 30 * time.Second
	DefaultViewportWidth      = 1280
	DefaultViewportHeight     = 720
	DefaultMaxIterations      = 20
	DefaultAgentName          = "discover_agent"
	DefaultAppName            = "discover_app"
	DefaultUserID             = "user_discover"
	DefaultSessionID          = "session_discover"
	DefaultPrompt             = "Start exploration."
	DefaultSQLitePath         = ".scout/scout.db"
	DefaultServerHost         = "0.0.0.0"
	DefaultServerPort         = 8080
	DefaultMaxConcurrent      = 2
	DefaultRateLimit          = 30
)

// ErrMissingURL is returned when no target website is configured.
var ErrMissingURL = errors.New("WEBSITE_URL environment variable not set")

// Config is the root configuration.
type Config struct {
	Target        TargetConfig        `yaml:"target"`
	LLM           LLMConfig           `yaml:"llm"`
	Agent         AgentConfig         `yaml:"agent"`
	Storage       StorageConfig       `yaml:"storage"`
	Server        ServerConfig        `yaml:"server"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// TargetConfig describes the website under observation and the browser.
type TargetConfig struct {
	WebsiteURL         string        `yaml:"website_url"`
	AssetsDir          string        `yaml:"assets_dir"`
	Headless           *bool         `yaml:"headless"`
	ViewportWidth      int           `yaml:"viewport_width"`
	ViewportHeight     int           `yaml:"viewport_height"`
	NavigationTimeout  time.Duration `yaml:"navigation_timeout"`
	NetworkIdleTimeout time.Duration `yaml:"network_idle_timeout"`
	ChromePath         string        `yaml:"chrome_path"`
}

// IsHeadless reports whether the browser runs without a window.
func (c TargetConfig) IsHeadless() bool {
	return c.Headless == nil || *c.Headless
}

// LLMConfig selects and configures the language model.
type LLMConfig struct {
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	GoogleAPIKey string   `yaml:"google_api_key"`
	OpenAIKey    string   `yaml:"openai_key"`
	BaseURL      string   `yaml:"base_url"`
	Temperature  *float64 `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	Stream       bool     `yaml:"stream"`
}

// APIKey returns the credential for the configured provider.
func (c LLMConfig) APIKey() string {
	switch c.Provider {
	case ProviderGemini:
		return c.GoogleAPIKey
	case ProviderOpenAI:
		return c.OpenAIKey
	default:
		return ""
	}
}

// AgentConfig configures the discovery agent and its session identity.
type AgentConfig struct {
	Name          string `yaml:"name"`
	AppName       string `yaml:"app_name"`
	UserID        string `yaml:"user_id"`
	SessionID     string `yaml:"session_id"`
	Prompt        string `yaml:"prompt"`
	MaxIterations int    `yaml:"max_iterations"`
}

// StorageConfig selects where sessions and reports are kept.
type StorageConfig struct {
	Backend  string `yaml:"backend"`
	Database string `yaml:"database"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// IsSQL reports whether a SQL backend is configured.
func (c StorageConfig) IsSQL() bool {
	return c.Backend == BackendSQLite || c.Backend == BackendPostgres || c.Backend == BackendMySQL
}

// DriverName returns the database/sql driver for the backend.
func (c StorageConfig) DriverName() string {
	switch c.Backend {
	case BackendSQLite:
		return "sqlite3"
	case BackendPostgres:
		return "postgres"
	case BackendMySQL:
		return "mysql"
	default:
		return ""
	}
}

// Dialect returns the SQL dialect name used by the stores.
func (c StorageConfig) Dialect() string {
	return c.Backend
}

// DSN returns the connection string for the backend. MySQL always gets
// parseTime=true since the stores scan DATETIME columns into time.Time.
func (c StorageConfig) DSN() string {
	switch c.Backend {
	case BackendSQLite:
		return c.Database + "?_busy_timeout=10000&_foreign_keys=on"
	case BackendMySQL:
		mc, err := mysql.ParseDSN(c.Database)
		if err != nil {
			// sql.Open reports the malformed DSN.
			return c.Database
		}
		mc.ParseTime = true
		return mc.FormatDSN()
	}
	return c.Database
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	RateLimit     int    `yaml:"rate_limit"`
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ObservabilityConfig groups metrics and tracing.
type ObservabilityConfig struct {
	Metrics observability.MetricsConfig `yaml:"metrics"`
	Tracing observability.TracerConfig  `yaml:"tracing"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Target.AssetsDir == "" {
		c.Target.AssetsDir = DefaultAssetsDir
	}
	if c.Target.ViewportWidth == 0 {
		c.Target.ViewportWidth = DefaultViewportWidth
	}
	if c.Target.ViewportHeight == 0 {
		c.Target.ViewportHeight = DefaultViewportHeight
	}
	if c.Target.NavigationTimeout == 0 {
		c.Target.NavigationTimeout = DefaultNavigationTimeout
	}
	if c.Target.NetworkIdleTimeout == 0 {
		c.Target.NetworkIdleTimeout = DefaultNetworkIdleTimeout
	}

	if c.LLM.Provider == "" {
		switch {
		case c.LLM.GoogleAPIKey != "":
			c.LLM.Provider = ProviderGemini
		case c.LLM.OpenAIKey != "":
			c.LLM.Provider = ProviderOpenAI
		default:
			c.LLM.Provider = ProviderGemini
		}
	}
	if c.LLM.Model == "" {
		if c.LLM.Provider == ProviderOpenAI {
			c.LLM.Model = DefaultOpenAIModel
		} else {
			c.LLM.Model = DefaultGeminiModel
		}
	}

	if c.Agent.Name == "" {
		c.Agent.Name = DefaultAgentName
	}
	if c.Agent.AppName == "" {
		c.Agent.AppName = DefaultAppName
	}
	if c.Agent.UserID == "" {
		c.Agent.UserID = DefaultUserID
	}
	if c.Agent.SessionID == "" {
		c.Agent.SessionID = DefaultSessionID
	}
	if c.Agent.Prompt == "" {
		c.Agent.Prompt = DefaultPrompt
	}
	if c.Agent.MaxIterations == 0 {
		c.Agent.MaxIterations = DefaultMaxIterations
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = BackendInMemory
	}
	if c.Storage.Backend == BackendSQLite && c.Storage.Database == "" {
		c.Storage.Database = DefaultSQLitePath
	}

	if c.Server.Host == "" {
		c.Server.Host = DefaultServerHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultServerPort
	}
	if c.Server.MaxConcurrent == 0 {
		c.Server.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = DefaultRateLimit
	}

	c.Observability.Tracing.SetDefaults()
	c.Observability.Metrics.SetDefaults()
}

// Validate checks the configuration. The target URL is optional here
// because the server takes it per request; see ValidateTarget.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderGemini:
		if c.LLM.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY environment variable not set (required by provider %q)", c.LLM.Provider)
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIKey == "" {
			return fmt.Errorf("OPENAI_KEY environment variable not set (required by provider %q)", c.LLM.Provider)
		}
	default:
		return fmt.Errorf("unknown llm provider %q (supported: gemini, openai)", c.LLM.Provider)
	}

	switch c.Storage.Backend {
	case BackendInMemory, BackendSQLite:
	case BackendPostgres, BackendMySQL:
		if c.Storage.Database == "" {
			return fmt.Errorf("storage.database is required for backend %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q (supported: inmemory, sqlite, postgres, mysql)", c.Storage.Backend)
	}

	if c.Agent.MaxIterations < 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Server.MaxConcurrent < 0 {
		return fmt.Errorf("server.max_concurrent must be positive, got %d", c.Server.MaxConcurrent)
	}

	if err := c.Observability.Tracing.Validate(); err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	if c.Target.WebsiteURL != "" {
		if err := ValidateURL(c.Target.WebsiteURL); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTarget requires a usable website URL.
func (c *Config) ValidateTarget() error {
	if c.Target.WebsiteURL == "" {
		return ErrMissingURL
	}
	return ValidateURL(c.Target.WebsiteURL)
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid website url %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid website url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid website url %q: missing host", raw)
	}
	return nil
}

// Clone returns a shallow copy safe to mutate at the top level.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	clone := *c
	return &clone
}
