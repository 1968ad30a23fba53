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

package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestInitMetrics_Disabled(t *testing.T) {
	m, h, err := InitMetrics(MetricsConfig{})
	require.NoError(t, err)

	// The zero value is nil-safe.
	ctx := context.Background()
	m.RecordDiscovery(ctx, "example.com", time.Second, 3, nil)
	m.RecordToolExecution(ctx, "take_screenshot", time.Millisecond, nil)
	m.RecordLLMCall(ctx, "gemini-2.5-flash-lite", time.Second, 10, 5, nil)
	m.RecordHTTPRequest(ctx, http.MethodGet, "/health", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitMetrics_Exposition(t *testing.T) {
	m, h, err := InitMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Shutdown(context.Background()) })

	ctx := context.Background()
	m.RecordToolExecution(ctx, "take_screenshot", 20*time.Millisecond, nil)
	m.RecordToolExecution(ctx, "get_page_metadata", 5*time.Millisecond, errors.New("boom"))
	m.RecordLLMCall(ctx, "gpt-4o-mini", time.Second, 100, 20, nil)
	m.RecordDiscovery(ctx, "example.com", 3*time.Second, 12, nil)

	body := scrape(t, h)
	assert.Contains(t, body, "scout_tool_calls_total")
	assert.Contains(t, body, `tool="take_screenshot"`)
	assert.Contains(t, body, "scout_tool_errors_total")
	assert.Contains(t, body, "scout_llm_tokens_input_total")
	assert.Contains(t, body, "scout_discoveries_total")
	assert.Contains(t, body, `host="example.com"`)
}

func TestInitMetrics_Namespace(t *testing.T) {
	m, h, err := InitMetrics(MetricsConfig{Enabled: true, Namespace: "ui"})
	require.NoError(t, err)
	m.RecordDiscovery(context.Background(), "example.com", time.Second, 1, nil)
	assert.Contains(t, scrape(t, h), "ui_discoveries_total")
}

func TestHTTPMiddleware_RoutePattern(t *testing.T) {
	m, h, err := InitMetrics(MetricsConfig{Enabled: true})
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(HTTPMiddleware(NoopManager().Tracer(), m))
	r.Get("/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/reports/abc", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	body := scrape(t, h)
	assert.Contains(t, body, `route="/v1/reports/{id}"`)
	assert.Contains(t, body, `status="418"`)
	assert.NotContains(t, body, "abc")
}

func TestTracerConfig(t *testing.T) {
	var cfg TracerConfig
	cfg.SetDefaults()
	assert.Equal(t, DefaultServiceName, cfg.ServiceName)
	assert.Equal(t, 1.0, cfg.SamplingRate)
	assert.Equal(t, ExporterOTLP, cfg.ExporterType)
	assert.Equal(t, DefaultOTLPEndpoint, cfg.EndpointURL)
	assert.NoError(t, cfg.Validate(), "disabled config is always valid")

	cfg.Enabled = true
	cfg.ExporterType = "zipkin"
	assert.ErrorContains(t, cfg.Validate(), "invalid exporter")

	cfg.ExporterType = ExporterStdout
	cfg.SamplingRate = 2
	assert.ErrorContains(t, cfg.Validate(), "sampling_rate")
}

func TestManager(t *testing.T) {
	mgr := NewManager(MetricsConfig{Enabled: true}, TracerConfig{})
	require.NoError(t, mgr.Initialize(context.Background()))
	t.Cleanup(func() { _ = mgr.Shutdown(context.Background()) })

	assert.True(t, mgr.MetricsEnabled())
	assert.Equal(t, DefaultMetricsPath, mgr.MetricsPath())
	assert.NotNil(t, mgr.Tracer())

	mgr.Metrics().RecordLLMCall(context.Background(), "m", time.Second, 1, 1, nil)
	assert.Contains(t, scrape(t, mgr.MetricsHandler()), "scout_llm_request_duration_seconds")
}

func TestOrNoop(t *testing.T) {
	assert.Equal(t, NoopMetrics{}, OrNoop(nil))

	m := &PrometheusMetrics{}
	assert.Same(t, m, OrNoop(m))
}
