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
	"fmt"
	"net/http"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// Transport returns an http.RoundTripper that propagates the caller's trace
// context on outbound requests, so downstream services log into the same
// trace. With OTel enabled each request also gets an otelhttp client span.
func Transport(base http.RoundTripper, opts ...Option) http.RoundTripper {
	cfg := applyOptions(opts)
	if base == nil {
		base = http.DefaultTransport
	}
	var rt http.RoundTripper = roundTripper{base: base, cfg: cfg}
	if !cfg.enableOTel {
		return rt
	}
	// Injection happens in roundTripper, inside the client span.
	otelOpts := []otelhttp.Option{otelhttp.WithPropagators(noopPropagator{})}
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	return otelhttp.NewTransport(rt, otelOpts...)
}

type roundTripper struct {
	base http.RoundTripper
	cfg  *config
}

// RoundTrip injects trace headers into a clone of req and forwards it.
func (t roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, fmt.Errorf("round trip: nil request")
	}
	if t.cfg.propagateTrace {
		req = req.Clone(req.Context())
		carrier := propagation.HeaderCarrier(req.Header)

		propagator := t.cfg.propagators
		if propagator == nil {
			propagator = otel.GetTextMapPropagator()
		}
		propagator.Inject(req.Context(), carrier)

		if t.cfg.injectLegacyXCTC && req.Header.Get(XCloudTraceContextHeader) == "" {
			gcppropagator.CloudTraceFormatPropagator{}.Inject(req.Context(), carrier)
		}
	}

	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return resp, fmt.Errorf("round trip request: %w", err)
	}
	return resp, nil
}
