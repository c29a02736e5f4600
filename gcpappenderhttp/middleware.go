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
	"context"
	"net/http"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/gcpappender"
)

const instrumentationName = "github.com/pjscruggs/gcpappender/gcpappenderhttp"

// XCloudTraceContextHeader is the Google Cloud legacy trace propagation header.
const XCloudTraceContextHeader = "X-Cloud-Trace-Context"

// Label keys added by [WithRequestLabels].
const (
	LabelMethod = "http.method"
	LabelTarget = "http.target"
)

// Middleware returns net/http middleware that makes the inbound trace and
// request data visible to gcpappender enhancers. It extracts the remote span
// context (falling back to X-Cloud-Trace-Context when the propagator finds
// none), wraps the handler with otelhttp unless disabled, and stores the
// configured header and request labels as context data.
func Middleware(opts ...Option) func(http.Handler) http.Handler {
	cfg := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		chain := wrapWithOTel(cfg, contextDataHandler(cfg, next))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if newCtx := ensureSpanContext(ctx, r, cfg); newCtx != ctx {
				r = r.WithContext(newCtx)
			}
			chain.ServeHTTP(w, r)
		})
	}
}

// contextDataHandler stores the request labels as context data.
func contextDataHandler(cfg *config, next http.Handler) http.Handler {
	if !cfg.requestLabels && len(cfg.headerLabels) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make(map[string]string, len(cfg.headerLabels)+2)
		if cfg.requestLabels {
			data[LabelMethod] = r.Method
			if r.URL != nil && r.URL.Path != "" {
				data[LabelTarget] = r.URL.Path
			}
		}
		for _, hl := range cfg.headerLabels {
			if v := r.Header.Get(hl.header); v != "" {
				data[hl.label] = v
			}
		}
		if len(data) > 0 {
			r = r.WithContext(gcpappender.ContextWithDataMap(r.Context(), data))
		}
		next.ServeHTTP(w, r)
	})
}

// ensureSpanContext returns ctx carrying the inbound remote span context, if
// the request has one and ctx does not already.
func ensureSpanContext(ctx context.Context, r *http.Request, cfg *config) context.Context {
	if !cfg.propagateTrace || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	carrier := propagation.HeaderCarrier(r.Header)

	propagator := cfg.propagators
	if propagator == nil {
		propagator = otel.GetTextMapPropagator()
	}
	if extracted := propagator.Extract(ctx, carrier); trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	if r.Header.Get(XCloudTraceContextHeader) == "" {
		return ctx
	}
	if extracted := (gcppropagator.CloudTraceOneWayPropagator{}).Extract(ctx, carrier); trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	return ctx
}

// wrapWithOTel wraps handler with otelhttp middleware when enabled.
func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOptions(cfg)...)
}

// otelOptions builds OpenTelemetry handler options from configuration.
func otelOptions(cfg *config) []otelhttp.Option {
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagateTrace {
		if cfg.propagatorsSet && cfg.propagators != nil {
			otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
		}
	} else {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(noopPropagator{}))
	}
	if cfg.publicEndpoint {
		otelOpts = append(otelOpts, otelhttp.WithPublicEndpointFn(func(*http.Request) bool {
			return true
		}))
	}
	if cfg.spanNameFormatter != nil {
		otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(cfg.spanNameFormatter))
	}
	for _, filter := range cfg.filters {
		otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
	}
	return otelOpts
}

type noopPropagator struct{}

func (noopPropagator) Inject(context.Context, propagation.TextMapCarrier) {}

func (noopPropagator) Extract(ctx context.Context, _ propagation.TextMapCarrier) context.Context {
	return ctx
}

func (noopPropagator) Fields() []string { return nil }
