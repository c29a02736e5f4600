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

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/pjscruggs/gcpappender"
)

// LabelMethod is the context data key holding the full gRPC method name.
const LabelMethod = "grpc.method"

// UnaryServerInterceptor makes the caller's trace and the configured call
// labels visible to gcpappender enhancers for unary RPCs.
func UnaryServerInterceptor(opts ...Option) grpc.UnaryServerInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(serverContext(ctx, info.FullMethod, cfg), req)
	}
}

// StreamServerInterceptor is the streaming counterpart of
// [UnaryServerInterceptor].
func StreamServerInterceptor(opts ...Option) grpc.StreamServerInterceptor {
	cfg := applyOptions(opts)

	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx := serverContext(ss.Context(), info.FullMethod, cfg)
		return handler(srv, &serverStream{ServerStream: ss, ctx: ctx})
	}
}

// UnaryClientInterceptor injects trace metadata into outgoing unary RPCs.
func UnaryClientInterceptor(opts ...Option) grpc.UnaryClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		return invoker(outgoingWithTrace(ctx, cfg), method, req, reply, cc, callOpts...)
	}
}

// StreamClientInterceptor injects trace metadata into outgoing streams.
func StreamClientInterceptor(opts ...Option) grpc.StreamClientInterceptor {
	cfg := applyOptions(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		return streamer(outgoingWithTrace(ctx, cfg), desc, cc, method, callOpts...)
	}
}

// ServerOptions returns the otelgrpc stats handler (unless disabled) and the
// server interceptors.
func ServerOptions(opts ...Option) []grpc.ServerOption {
	cfg := applyOptions(opts)
	var serverOpts []grpc.ServerOption

	if cfg.enableOTel {
		serverOpts = append(serverOpts, grpc.StatsHandler(otelgrpc.NewServerHandler(statsHandlerOptions(cfg)...)))
	}

	serverOpts = append(serverOpts,
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor(opts...)),
		grpc.ChainStreamInterceptor(StreamServerInterceptor(opts...)),
	)
	return serverOpts
}

// DialOptions returns the otelgrpc client stats handler (unless disabled)
// and the client interceptors.
func DialOptions(opts ...Option) []grpc.DialOption {
	cfg := applyOptions(opts)
	var dialOpts []grpc.DialOption

	if cfg.enableOTel {
		dialOpts = append(dialOpts, grpc.WithStatsHandler(otelgrpc.NewClientHandler(statsHandlerOptions(cfg)...)))
	}

	dialOpts = append(dialOpts,
		grpc.WithChainUnaryInterceptor(UnaryClientInterceptor(opts...)),
		grpc.WithChainStreamInterceptor(StreamClientInterceptor(opts...)),
	)
	return dialOpts
}

func statsHandlerOptions(cfg *config) []otelgrpc.Option {
	var opts []otelgrpc.Option
	if cfg.tracerProvider != nil {
		opts = append(opts, otelgrpc.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagateTrace {
		if cfg.propagatorsSet && cfg.propagators != nil {
			opts = append(opts, otelgrpc.WithPropagators(cfg.propagators))
		}
	} else {
		opts = append(opts, otelgrpc.WithPropagators(noopPropagator{}))
	}
	for _, filter := range cfg.filters {
		opts = append(opts, otelgrpc.WithFilter(filter))
	}
	return opts
}

// serverContext attaches the remote span context and call labels to ctx.
func serverContext(ctx context.Context, method string, cfg *config) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	ctx = ensureServerSpanContext(ctx, md, cfg)

	data := make(map[string]string, len(cfg.metadataLabels)+1)
	if cfg.methodLabel && method != "" {
		data[LabelMethod] = method
	}
	for _, ml := range cfg.metadataLabels {
		if values := md.Get(ml.key); len(values) > 0 && values[0] != "" {
			data[ml.label] = values[0]
		}
	}
	if len(data) == 0 {
		return ctx
	}
	return gcpappender.ContextWithDataMap(ctx, data)
}

type serverStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the call context carrying trace and label data.
func (s *serverStream) Context() context.Context {
	return s.ctx
}
