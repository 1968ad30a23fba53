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
	"fmt"
	"net/http"
	"strconv"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics records the runtime measurements of scout.
type Metrics interface {
	RecordDiscovery(ctx context.Context, host string, duration time.Duration, elements int, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

// PrometheusMetrics implements Metrics with OpenTelemetry instruments read
// by a Prometheus exporter. The zero value records nothing.
type PrometheusMetrics struct {
	discoveryDuration metric.Float64Histogram
	discoveriesTotal  metric.Int64Counter
	discoveryErrors   metric.Int64Counter
	elementsFound     metric.Int64Histogram

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	llmDuration     metric.Float64Histogram
	llmInputTokens  metric.Int64Counter
	llmOutputTokens metric.Int64Counter
	llmErrorsTotal  metric.Int64Counter

	httpDuration metric.Float64Histogram
	httpRequests metric.Int64Counter

	provider *sdkmetric.MeterProvider
}

// InitMetrics builds the instruments and a handler serving them in the
// Prometheus text format. When disabled both are inert.
func InitMetrics(cfg MetricsConfig) (*PrometheusMetrics, http.Handler, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, http.NotFoundHandler(), nil
	}
	cfg.SetDefaults()

	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(TracerName)
	ns := cfg.Namespace + "_"

	m := &PrometheusMetrics{provider: provider}
	b := &instrumentBuilder{meter: meter}

	m.discoveryDuration = b.histogram(ns+"discovery_duration_seconds", "Discovery duration in seconds")
	m.discoveriesTotal = b.counter(ns+"discoveries_total", "Total discoveries")
	m.discoveryErrors = b.counter(ns+"discovery_errors_total", "Total failed discoveries")
	m.elementsFound = b.intHistogram(ns+"discovery_elements", "Interactable elements per observation")

	m.toolDuration = b.histogram(ns+"tool_execution_duration_seconds", "Tool execution duration in seconds")
	m.toolCallsTotal = b.counter(ns+"tool_calls_total", "Total tool calls")
	m.toolErrorsTotal = b.counter(ns+"tool_errors_total", "Total tool errors")

	m.llmDuration = b.histogram(ns+"llm_request_duration_seconds", "LLM request duration in seconds")
	m.llmInputTokens = b.counter(ns+"llm_tokens_input_total", "Total input tokens sent to the LLM")
	m.llmOutputTokens = b.counter(ns+"llm_tokens_output_total", "Total output tokens from the LLM")
	m.llmErrorsTotal = b.counter(ns+"llm_errors_total", "Total LLM errors")

	m.httpDuration = b.histogram(ns+"http_request_duration_seconds", "HTTP request duration in seconds")
	m.httpRequests = b.counter(ns+"http_requests_total", "Total HTTP requests")

	if b.err != nil {
		return nil, nil, b.err
	}
	return m, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// instrumentBuilder keeps the first creation error.
type instrumentBuilder struct {
	meter metric.Meter
	err   error
}

func (b *instrumentBuilder) counter(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.keep(name, err)
	return c
}

func (b *instrumentBuilder) histogram(name, desc string) metric.Float64Histogram {
	h, err := b.meter.Float64Histogram(name, metric.WithDescription(desc))
	b.keep(name, err)
	return h
}

func (b *instrumentBuilder) intHistogram(name, desc string) metric.Int64Histogram {
	h, err := b.meter.Int64Histogram(name, metric.WithDescription(desc))
	b.keep(name, err)
	return h
}

func (b *instrumentBuilder) keep(name string, err error) {
	if err != nil && b.err == nil {
		b.err = fmt.Errorf("failed to create %s: %w", name, err)
	}
}

func (m *PrometheusMetrics) RecordDiscovery(ctx context.Context, host string, duration time.Duration, elements int, err error) {
	if m == nil || m.discoveryDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("host", host))

	m.discoveryDuration.Record(ctx, duration.Seconds(), attrs)
	m.discoveriesTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.discoveryErrors.Add(ctx, 1, attrs)
		return
	}
	m.elementsFound.Record(ctx, int64(elements), attrs)
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tool", tool))

	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
	m.toolCallsTotal.Add(ctx, 1, attrs)
	if err != nil {
		m.toolErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("model", model))

	m.llmDuration.Record(ctx, duration.Seconds(), attrs)
	m.llmInputTokens.Add(ctx, int64(inputTokens), attrs)
	m.llmOutputTokens.Add(ctx, int64(outputTokens), attrs)
	if err != nil {
		m.llmErrorsTotal.Add(ctx, 1, attrs)
	}
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration) {
	if m == nil || m.httpDuration == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	m.httpDuration.Record(ctx, duration.Seconds(), attrs)
	m.httpRequests.Add(ctx, 1, attrs)
}

// Shutdown flushes and stops the meter provider.
func (m *PrometheusMetrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}

var _ Metrics = (*PrometheusMetrics)(nil)
