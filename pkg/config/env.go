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
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by Scout.
const (
	EnvWebsiteURL   = "WEBSITE_URL"
	EnvGoogleAPIKey = "GOOGLE_API_KEY"
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvOpenAIKey    = "OPENAI_KEY"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
	EnvProvider     = "SCOUT_PROVIDER"
	EnvModel        = "SCOUT_MODEL"
	EnvAssetsDir    = "SCOUT_ASSETS_DIR"
	EnvStorage      = "SCOUT_STORAGE"
	EnvStorageDB    = "SCOUT_STORAGE_DB"
)

var envVarPatterns = struct {
	withDefault *regexp.Regexp
	braced      *regexp.Regexp
	simple      *regexp.Regexp
}{
	withDefault: regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*):-(.*?)\}`),
	braced:      regexp.MustCompile(`\$\{([A-Z_][A-Z0-9_]*)\}`),
	simple:      regexp.MustCompile(`\$([A-Z_][A-Z0-9_]*)`),
}

// ExpandEnv replaces ${VAR:-default}, ${VAR} and $VAR references in s.
func ExpandEnv(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}

	s = envVarPatterns.withDefault.ReplaceAllStringFunc(s, func(match string) string {
		parts := envVarPatterns.withDefault.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
	s = envVarPatterns.braced.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.braced.FindStringSubmatch(match)[1])
	})
	s = envVarPatterns.simple.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPatterns.simple.FindStringSubmatch(match)[1])
	})
	return s
}

// expandEnvVars walks decoded YAML and expands strings. Expanded scalars
// are re-typed so "${PORT}" can still land in an int field.
func expandEnvVars(data map[string]any) map[string]any {
	out, _ := expandValue(data).(map[string]any)
	return out
}

func expandValue(data any) any {
	switch v := data.(type) {
	case string:
		expanded := ExpandEnv(v)
		if expanded != v {
			return parseValue(expanded)
		}
		return v
	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			result[key] = expandValue(value)
		}
		return result
	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			result[i] = expandValue(item)
		}
		return result
	default:
		return v
	}
}

func parseValue(value string) any {
	switch strings.ToLower(value) {
	case "true":
		return true
	case "false":
		return false
	}
	if i, err := strconv.Atoi(value); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}
	return value
}

// LoadEnvFiles loads .env.local then .env from the working directory.
// Existing variables are never overwritten and missing files are ignored.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// ApplyEnv fills fields the file left empty from the environment.
func (c *Config) ApplyEnv() {
	setIfEmpty(&c.Target.WebsiteURL, EnvWebsiteURL)
	setIfEmpty(&c.Target.AssetsDir, EnvAssetsDir)
	setIfEmpty(&c.LLM.GoogleAPIKey, EnvGoogleAPIKey, EnvGeminiAPIKey)
	setIfEmpty(&c.LLM.OpenAIKey, EnvOpenAIKey, EnvOpenAIAPIKey)
	setIfEmpty(&c.LLM.Provider, EnvProvider)
	setIfEmpty(&c.LLM.Model, EnvModel)
	setIfEmpty(&c.Storage.Backend, EnvStorage)
	setIfEmpty(&c.Storage.Database, EnvStorageDB)
}

func setIfEmpty(field *string, keys ...string) {
	if *field != "" {
		return
	}
	for _, key := range keys {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*field = v
			return
		}
	}
}
