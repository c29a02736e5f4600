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
	"context"
	"strings"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/metadata"
)

// XCloudTraceContextHeader is the Google Cloud legacy trace propagation key.
const XCloudTraceContextHeader = "X-Cloud-Trace-Context"

// metadataCarrier adapts gRPC metadata to a propagation.TextMapCarrier.
type metadataCarrier metadata.MD

func (mc metadataCarrier) Get(key string) string {
	values := metadata.MD(mc).Get(key)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (mc metadataCarrier) Set(key, value string) {
	metadata.MD(mc).Set(key, value)
}

func (mc metadataCarrier) Keys() []string {
	keys := make([]string, 0, len(mc))
	for k := range mc {
		keys = append(keys, k)
	}
	return keys
}

func (cfg *config) propagator() propagation.TextMapPropagator {
	if cfg.propagators != nil {
		return cfg.propagators
	}
	return otel.GetTextMapPropagator()
}

// ensureServerSpanContext returns ctx carrying the caller's remote span
// context, if the metadata has one and ctx does not already.
func ensureServerSpanContext(ctx context.Context, md metadata.MD, cfg *config) context.Context {
	if !cfg.propagateTrace || trace.SpanContextFromContext(ctx).IsValid() || len(md) == 0 {
		return ctx
	}
	carrier := metadataCarrier(md)
	if extracted := cfg.propagator().Extract(ctx, carrier); trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	if carrier.Get(XCloudTraceContextHeader) == "" {
		return ctx
	}
	if extracted := (gcppropagator.CloudTraceOneWayPropagator{}).Extract(ctx, carrier); trace.SpanContextFromContext(extracted).IsValid() {
		return extracted
	}
	return ctx
}

// outgoingWithTrace returns ctx with trace metadata added to a copy of its
// outgoing metadata.
func outgoingWithTrace(ctx context.Context, cfg *config) context.Context {
	if !cfg.propagateTrace || !trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	md, ok := metadata.FromOutgoingContext(ctx)
	if ok {
		md = md.Copy()
	} else {
		md = metadata.MD{}
	}
	carrier := metadataCarrier(md)
	cfg.propagator().Inject(ctx, carrier)
	if cfg.injectLegacyXCTC && carrier.Get(strings.ToLower(XCloudTraceContextHeader)) == "" {
		gcppropagator.CloudTraceFormatPropagator{}.Inject(ctx, carrier)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

type noopPropagator struct{}

func (noopPropagator) Inject(context.Context, propagation.TextMapCarrier) {}

func (noopPropagator) Extract(ctx context.Context, _ propagation.TextMapCarrier) context.Context {
	return ctx
}

func (noopPropagator) Fields() []string { return nil }
