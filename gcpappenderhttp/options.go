// Copyright 2025 Patrick J. Scruggs
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

package gcpappenderhttp

import (
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the middleware or the client transport.
type Option func(*config)

type headerLabel struct {
	header string
	label  string
}

type config struct {
	enableOTel        bool
	tracerProvider    trace.TracerProvider
	propagators       propagation.TextMapPropagator
	propagatorsSet    bool
	propagateTrace    bool
	publicEndpoint    bool
	spanNameFormatter func(string, *http.Request) string
	filters           []otelhttp.Filter
	headerLabels      []headerLabel
	requestLabels     bool
	injectLegacyXCTC  bool
}

// defaultConfig returns the baseline configuration for the HTTP helpers.
func defaultConfig() *config {
	return &config{
		enableOTel:     true,
		propagateTrace: true,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithOTel enables or disables otelhttp instrumentation. It is enabled by
// default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithTracerProvider sets the tracer provider used by otelhttp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators supplies the propagator used to extract (middleware) or
// inject (transport) trace context. When omitted, otel.GetTextMapPropagator()
// is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracePropagation toggles extraction and injection of trace context.
// Enabled by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithPublicEndpoint marks inbound requests as coming from outside the trust
// boundary, so otelhttp starts new traces linked to the remote parent.
func WithPublicEndpoint(enabled bool) Option {
	return func(cfg *config) {
		cfg.publicEndpoint = enabled
	}
}

// WithSpanNameFormatter customizes otelhttp span naming.
func WithSpanNameFormatter(formatter func(string, *http.Request) string) Option {
	return func(cfg *config) {
		cfg.spanNameFormatter = formatter
	}
}

// WithFilter appends an otelhttp filter applied before span creation.
func WithFilter(filter otelhttp.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithHeaderLabel copies the value of an inbound request header into the
// request's context data under label. Entries logged while handling the
// request carry it as a label.
func WithHeaderLabel(header, label string) Option {
	return func(cfg *config) {
		header = http.CanonicalHeaderKey(strings.TrimSpace(header))
		label = strings.TrimSpace(label)
		if header == "" || label == "" {
			return
		}
		cfg.headerLabels = append(cfg.headerLabels, headerLabel{header: header, label: label})
	}
}

// WithRequestLabels adds the request method and path to the context data as
// the http.method and http.target labels. Off by default.
func WithRequestLabels(enabled bool) Option {
	return func(cfg *config) {
		cfg.requestLabels = enabled
	}
}

// WithLegacyXCloudInjection makes [Transport] also send the
// X-Cloud-Trace-Context header on outbound requests.
func WithLegacyXCloudInjection(enabled bool) Option {
	return func(cfg *config) {
		cfg.injectLegacyXCTC = enabled
	}
}
