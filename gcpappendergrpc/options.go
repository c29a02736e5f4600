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

package gcpappendergrpc

import (
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Option configures the gRPC interceptors and option helpers.
type Option func(*config)

type config struct {
	enableOTel       bool
	tracerProvider   trace.TracerProvider
	propagators      propagation.TextMapPropagator
	propagatorsSet   bool
	propagateTrace   bool
	filters          []otelgrpc.Filter
	metadataLabels   []metadataLabel
	methodLabel      bool
	injectLegacyXCTC bool
}

type metadataLabel struct {
	key   string
	label string
}

func defaultConfig() *config {
	return &config{
		enableOTel:     true,
		propagateTrace: true,
		methodLabel:    true,
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

// WithOTel enables or disables the otelgrpc stats handlers installed by
// [ServerOptions] and [DialOptions]. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithTracerProvider sets the tracer provider for otelgrpc.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithPropagators sets the propagator used to extract (server) or inject
// (client) trace metadata. The global propagator is used when omitted.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracePropagation toggles trace extraction and injection. Enabled by
// default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithFilter appends an otelgrpc filter applied before spans are created.
func WithFilter(filter otelgrpc.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithMetadataLabel copies the first value of the incoming metadata key into
// the call's context data under label.
func WithMetadataLabel(key, label string) Option {
	return func(cfg *config) {
		key = strings.ToLower(strings.TrimSpace(key))
		label = strings.TrimSpace(label)
		if key == "" || label == "" {
			return
		}
		cfg.metadataLabels = append(cfg.metadataLabels, metadataLabel{key: key, label: label})
	}
}

// WithMethodLabel toggles the grpc.method context data entry on server
// calls. Enabled by default.
func WithMethodLabel(enabled bool) Option {
	return func(cfg *config) {
		cfg.methodLabel = enabled
	}
}

// WithLegacyXCloudInjection toggles the x-cloud-trace-context metadata on
// client calls.
func WithLegacyXCloudInjection(enabled bool) Option {
	return func(cfg *config) {
		cfg.injectLegacyXCTC = enabled
	}
}
