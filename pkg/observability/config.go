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

import "fmt"

// Exporter types for tracing.
const (
	ExporterOTLP   = "otlp"
	ExporterStdout = "stdout"
)

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on metrics collection.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the path metrics are served on.
	// Default: "/metrics"
	Endpoint string `yaml:"endpoint"`

	// Namespace prefixes all metric names.
	// Default: "scout"
	Namespace string `yaml:"namespace"`
}

// TracerConfig configures OpenTelemetry tracing.
type TracerConfig struct {
	// Enabled turns on tracing.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ExporterType is "otlp" (gRPC) or "stdout".
	ExporterType string `yaml:"exporter_type"`

	// EndpointURL is the OTLP collector address, e.g. "localhost:4317".
	EndpointURL string `yaml:"endpoint_url"`

	// SamplingRate is the sampled fraction of traces, 0.0 to 1.0.
	// Default: 1.0
	SamplingRate float64 `yaml:"sampling_rate"`

	// ServiceName identifies this service in traces.
	// Default: "scout"
	ServiceName string `yaml:"service_name"`
}

// SetDefaults applies default values to MetricsConfig.
func (c *MetricsConfig) SetDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultMetricsPath
	}
	if c.Namespace == "" {
		c.Namespace = DefaultServiceName
	}
}

// SetDefaults applies default values to TracerConfig.
func (c *TracerConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = DefaultServiceName
	}
	if c.SamplingRate == 0 {
		c.SamplingRate = DefaultSamplingRate
	}
	if c.ExporterType == "" {
		c.ExporterType = ExporterOTLP
	}
	if c.EndpointURL == "" && c.ExporterType == ExporterOTLP {
		c.EndpointURL = DefaultOTLPEndpoint
	}
}

// Validate checks TracerConfig for errors.
func (c *TracerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be between 0 and 1, got %f", c.SamplingRate)
	}
	switch c.ExporterType {
	case ExporterOTLP:
		if c.EndpointURL == "" {
			return fmt.Errorf("endpoint_url is required for the otlp exporter")
		}
	case ExporterStdout:
	default:
		return fmt.Errorf("invalid exporter %q (valid: otlp, stdout)", c.ExporterType)
	}
	return nil
}
