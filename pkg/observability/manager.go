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
	"net/http"
	"sync"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Manager owns the tracer and meter providers for the process.
type Manager struct {
	metricsCfg MetricsConfig
	tracerCfg  TracerConfig

	mu             sync.RWMutex
	tracerProvider trace.TracerProvider
	metrics        *PrometheusMetrics
	handler        http.Handler
}

func NewManager(metrics MetricsConfig, tracing TracerConfig) *Manager {
	return &Manager{metricsCfg: metrics, tracerCfg: tracing}
}

// NoopManager returns a Manager that records nothing.
func NoopManager() *Manager {
	return &Manager{
		tracerProvider: noop.NewTracerProvider(),
		metrics:        &PrometheusMetrics{},
		handler:        http.NotFoundHandler(),
	}
}

func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tp, err := InitTracer(ctx, m.tracerCfg)
	if err != nil {
		return err
	}
	m.tracerProvider = tp

	metrics, handler, err := InitMetrics(m.metricsCfg)
	if err != nil {
		return err
	}
	m.metrics = metrics
	m.handler = handler
	return nil
}

func (m *Manager) Tracer() trace.Tracer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.tracerProvider == nil {
		return noop.NewTracerProvider().Tracer(TracerName)
	}
	return m.tracerProvider.Tracer(TracerName)
}

// Metrics returns the recorder; never nil.
func (m *Manager) Metrics() Metrics {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.metrics == nil {
		return NoopMetrics{}
	}
	return m.metrics
}

// MetricsEnabled reports whether metrics are collected.
func (m *Manager) MetricsEnabled() bool {
	return m.metricsCfg.Enabled
}

// MetricsPath is where the metrics handler is mounted.
func (m *Manager) MetricsPath() string {
	if m.metricsCfg.Endpoint == "" {
		return DefaultMetricsPath
	}
	return m.metricsCfg.Endpoint
}

// MetricsHandler serves the Prometheus exposition.
func (m *Manager) MetricsHandler() http.Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.handler == nil {
		return http.NotFoundHandler()
	}
	return m.handler
}

// Shutdown flushes pending spans and stops both providers.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	if spt, ok := m.tracerProvider.(interface{ Shutdown(context.Context) error }); ok {
		errs = append(errs, spt.Shutdown(ctx))
	}
	errs = append(errs, m.metrics.Shutdown(ctx))
	return errors.Join(errs...)
}
