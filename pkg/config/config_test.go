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

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearScoutEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		EnvWebsiteURL, EnvGoogleAPIKey, EnvGeminiAPIKey, EnvOpenAIKey, EnvOpenAIAPIKey,
		EnvProvider, EnvModel, EnvAssetsDir, EnvStorage, EnvStorageDB,
	} {
		t.Setenv(key, "")
	}
}

func TestSetDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.SetDefaults()

	assert.Equal(t, DefaultAssetsDir, cfg.Target.AssetsDir)
	assert.Equal(t, 10*time.Second, cfg.Target.NetworkIdleTimeout)
	assert.Equal(t, 30*time.Second, cfg.Target.NavigationTimeout)
	assert.Equal(t, 1280, cfg.Target.ViewportWidth)
	assert.Equal(t, 720, cfg.Target.ViewportHeight)
	assert.True(t, cfg.Target.IsHeadless())
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, "gemini-2.5-flash-lite", cfg.LLM.Model)
	assert.Equal(t, "discover_app", cfg.Agent.AppName)
	assert.Equal(t, "user_discover", cfg.Agent.UserID)
	assert.Equal(t, "session_discover", cfg.Agent.SessionID)
	assert.Equal(t, "Start exploration.", cfg.Agent.Prompt)
	assert.Equal(t, 20, cfg.Agent.MaxIterations)
	assert.Equal(t, BackendInMemory, cfg.Storage.Backend)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Server.MaxConcurrent)
}

func TestSetDefaults_ProviderDetection(t *testing.T) {
	tests := []struct {
		name      string
		llm       LLMConfig
		wantProv  string
		wantModel string
	}{
		{"google key", LLMConfig{GoogleAPIKey: "g"}, ProviderGemini, DefaultGeminiModel},
		{"openai key only", LLMConfig{OpenAIKey: "o"}, ProviderOpenAI, DefaultOpenAIModel},
		{"both keys prefer gemini", LLMConfig{GoogleAPIKey: "g", OpenAIKey: "o"}, ProviderGemini, DefaultGeminiModel},
		{"explicit provider", LLMConfig{Provider: ProviderOpenAI, GoogleAPIKey: "g"}, ProviderOpenAI, DefaultOpenAIModel},
		{"explicit model kept", LLMConfig{GoogleAPIKey: "g", Model: "gemini-2.5-pro"}, ProviderGemini, "gemini-2.5-pro"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LLM: tt.llm}
			cfg.SetDefaults()
			assert.Equal(t, tt.wantProv, cfg.LLM.Provider)
			assert.Equal(t, tt.wantModel, cfg.LLM.Model)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid gemini", func(c *Config) { c.LLM.GoogleAPIKey = "k" }, ""},
		{"missing google key", func(c *Config) {}, "GOOGLE_API_KEY"},
		{"missing openai key", func(c *Config) { c.LLM.Provider = ProviderOpenAI }, "OPENAI_KEY"},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "claude" }, "unknown llm provider"},
		{"unknown backend", func(c *Config) {
			c.LLM.GoogleAPIKey = "k"
			c.Storage.Backend = "redis"
		}, "unknown storage backend"},
		{"postgres without dsn", func(c *Config) {
			c.LLM.GoogleAPIKey = "k"
			c.Storage.Backend = BackendPostgres
		}, "storage.database is required"},
		{"bad url", func(c *Config) {
			c.LLM.GoogleAPIKey = "k"
			c.Target.WebsiteURL = "ftp://example.com"
		}, "scheme must be http or https"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			tt.mutate(cfg)
			cfg.SetDefaults()
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateTarget(t *testing.T) {
	cfg := &Config{}
	assert.ErrorIs(t, cfg.ValidateTarget(), ErrMissingURL)

	cfg.Target.WebsiteURL = "https://example.com"
	assert.NoError(t, cfg.ValidateTarget())

	cfg.Target.WebsiteURL = "https://"
	assert.Error(t, cfg.ValidateTarget())
}

func TestStorageConfig(t *testing.T) {
	sqlite := StorageConfig{Backend: BackendSQLite, Database: "x.db"}
	assert.True(t, sqlite.IsSQL())
	assert.Equal(t, "sqlite3", sqlite.DriverName())
	assert.Contains(t, sqlite.DSN(), "x.db?_busy_timeout=")

	pg := StorageConfig{Backend: BackendPostgres, Database: "postgres://u@h/db"}
	assert.Equal(t, "postgres", pg.DriverName())
	assert.Equal(t, "postgres://u@h/db", pg.DSN())

	my := StorageConfig{Backend: BackendMySQL, Database: "scout:secret@tcp(db:3306)/scout"}
	assert.Equal(t, "mysql", my.DriverName())
	assert.Equal(t, "scout:secret@tcp(db:3306)/scout?parseTime=true", my.DSN())

	my.Database = "scout:secret@tcp(db:3306)/scout?parseTime=false&timeout=5s"
	assert.Contains(t, my.DSN(), "parseTime=true")
	assert.Contains(t, my.DSN(), "timeout=5s")

	mem := StorageConfig{Backend: BackendInMemory}
	assert.False(t, mem.IsSQL())
}

func TestLLMConfig_APIKey(t *testing.T) {
	c := LLMConfig{Provider: ProviderOpenAI, GoogleAPIKey: "g", OpenAIKey: "o"}
	assert.Equal(t, "o", c.APIKey())
	c.Provider = ProviderGemini
	assert.Equal(t, "g", c.APIKey())
}
