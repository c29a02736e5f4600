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
	"fmt"
	"log/slog"

	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"

	"github.com/pjscruggs/gcpappender"
)

// Logger implements go-grpc-middleware's logging.Logger on top of a
// gcpappender handler, so call start and finish events become Cloud Logging
// entries correlated with the call's trace.
type Logger struct {
	log      *slog.Logger
	mapLevel func(grpc_logging.Level) slog.Level
}

type loggerConfig struct {
	logger      *slog.Logger
	levelMapper func(grpc_logging.Level) slog.Level
}

// LoggerOption customizes [NewLogger].
type LoggerOption func(*loggerConfig)

// NewLogger returns a Logger writing through h. A nil handler falls back to
// slog.Default unless [WithLogger] supplies one.
//
//	adapter := gcpappendergrpc.NewLogger(gcpappender.NewHandler(app))
//	server := grpc.NewServer(
//		grpc.ChainUnaryInterceptor(
//			gcpappendergrpc.UnaryServerInterceptor(),
//			grpc_logging.UnaryServerInterceptor(adapter),
//		),
//	)
func NewLogger(h *gcpappender.Handler, opts ...LoggerOption) *Logger {
	cfg := loggerConfig{levelMapper: defaultLevelMapper}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	switch {
	case cfg.logger != nil:
	case h != nil:
		cfg.logger = slog.New(h)
	default:
		cfg.logger = slog.Default()
	}

	return &Logger{log: cfg.logger, mapLevel: cfg.levelMapper}
}

// WithLogger makes the adapter write through logger instead of the handler.
func WithLogger(logger *slog.Logger) LoggerOption {
	return func(cfg *loggerConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithLevelMapper customizes how go-grpc-middleware levels map to slog
// levels.
func WithLevelMapper(mapper func(grpc_logging.Level) slog.Level) LoggerOption {
	return func(cfg *loggerConfig) {
		if mapper != nil {
			cfg.levelMapper = mapper
		}
	}
}

// Log implements grpc_logging.Logger. ctx is passed through so context data
// and trace enhancers see the call's context.
func (l *Logger) Log(ctx context.Context, level grpc_logging.Level, msg string, fields ...any) {
	if l == nil || l.log == nil {
		return
	}
	l.log.LogAttrs(ctx, l.mapLevel(level), msg, buildAttrs(fields)...)
}

// LoggingUnaryServerInterceptor returns go-grpc-middleware's unary server
// logging interceptor writing through h.
func LoggingUnaryServerInterceptor(h *gcpappender.Handler, opts ...grpc_logging.Option) grpc.UnaryServerInterceptor {
	return grpc_logging.UnaryServerInterceptor(NewLogger(h), opts...)
}

// LoggingStreamServerInterceptor returns go-grpc-middleware's stream server
// logging interceptor writing through h.
func LoggingStreamServerInterceptor(h *gcpappender.Handler, opts ...grpc_logging.Option) grpc.StreamServerInterceptor {
	return grpc_logging.StreamServerInterceptor(NewLogger(h), opts...)
}

// LoggingUnaryClientInterceptor returns go-grpc-middleware's unary client
// logging interceptor writing through h.
func LoggingUnaryClientInterceptor(h *gcpappender.Handler, opts ...grpc_logging.Option) grpc.UnaryClientInterceptor {
	return grpc_logging.UnaryClientInterceptor(NewLogger(h), opts...)
}

// LoggingStreamClientInterceptor returns go-grpc-middleware's stream client
// logging interceptor writing through h.
func LoggingStreamClientInterceptor(h *gcpappender.Handler, opts ...grpc_logging.Option) grpc.StreamClientInterceptor {
	return grpc_logging.StreamClientInterceptor(NewLogger(h), opts...)
}

func defaultLevelMapper(level grpc_logging.Level) slog.Level {
	switch level {
	case grpc_logging.LevelDebug:
		return slog.LevelDebug
	case grpc_logging.LevelInfo:
		return slog.LevelInfo
	case grpc_logging.LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// buildAttrs pairs go-grpc-middleware's alternating key/value fields.
func buildAttrs(fields []any) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, 0, (len(fields)+1)/2)
	for i := 0; i < len(fields); i += 2 {
		var val any
		if i+1 < len(fields) {
			val = fields[i+1]
		}
		attrs = append(attrs, slog.Any(fmt.Sprint(fields[i]), val))
	}
	return attrs
}
