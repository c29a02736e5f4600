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
	"log/slog"
	"strings"
	"testing"

	"cloud.google.com/go/logging"
	grpc_logging "github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type recordingHandler struct {
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

func recordAttrs(r slog.Record) map[string]any {
	attrs := make(map[string]any)
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})
	return attrs
}

// TestLoggerLogConvertsFields pairs fields into attributes, stringifying
// keys and padding a trailing key with nil.
func TestLoggerLogConvertsFields(t *testing.T) {
	t.Parallel()

	rec := &recordingHandler{}
	logger := NewLogger(nil, WithLogger(slog.New(rec)))
	logger.Log(context.Background(), grpc_logging.LevelInfo, "msg", "id", 123, 99, true, "lonely")

	if len(rec.records) != 1 {
		t.Fatalf("records = %d, want 1", len(rec.records))
	}
	want := map[string]any{"id": int64(123), "99": true, "lonely": nil}
	if diff := cmp.Diff(want, recordAttrs(rec.records[0])); diff != "" {
		t.Errorf("attrs mismatch (-want +got):\n%s", diff)
	}
}

// TestLoggerLevels maps go-grpc-middleware levels with the default and a
// custom mapper.
func TestLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   grpc_logging.Level
		want slog.Level
	}{
		{grpc_logging.LevelDebug, slog.LevelDebug},
		{grpc_logging.LevelInfo, slog.LevelInfo},
		{grpc_logging.LevelWarn, slog.LevelWarn},
		{grpc_logging.LevelError, slog.LevelError},
		{grpc_logging.Level(42), slog.LevelError},
	}
	for _, tt := range tests {
		if got := defaultLevelMapper(tt.in); got != tt.want {
			t.Errorf("defaultLevelMapper(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}

	rec := &recordingHandler{}
	logger := NewLogger(nil,
		WithLogger(slog.New(rec)),
		WithLevelMapper(func(grpc_logging.Level) slog.Level { return slog.LevelWarn }),
	)
	logger.Log(context.Background(), grpc_logging.LevelDebug, "mapped")
	if got := rec.records[0].Level; got != slog.LevelWarn {
		t.Errorf("level = %v, want %v", got, slog.LevelWarn)
	}
}

// TestLoggerNil ignores calls on a nil adapter.
func TestLoggerNil(t *testing.T) {
	t.Parallel()

	var logger *Logger
	logger.Log(context.Background(), grpc_logging.LevelInfo, "ignored")
}

// TestLoggingInterceptorWritesCorrelatedEntry chains the trace interceptor
// with the logging interceptor and checks the resulting Cloud Logging entry.
func TestLoggingInterceptorWritesCorrelatedEntry(t *testing.T) {
	t.Parallel()

	rt := &recordingTransport{}
	h := newTestHandler(t, rt)
	traceInterceptor := UnaryServerInterceptor(WithPropagators(propagation.TraceContext{}))
	logInterceptor := LoggingUnaryServerInterceptor(h, grpc_logging.WithLogOnEvents(grpc_logging.FinishCall))
	info := &grpc.UnaryServerInfo{FullMethod: testMethod}

	_, err := traceInterceptor(incoming("x-cloud-trace-context", legacyHeader), "req", info, func(ctx context.Context, req any) (any, error) {
		return logInterceptor(ctx, req, info, func(context.Context, any) (any, error) {
			return nil, status.Error(codes.Unavailable, "backend down")
		})
	})
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("interceptor returned %v, want Unavailable", err)
	}

	entries := rt.snapshot()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	entry := entries[0]
	if entry.Severity != logging.Warning {
		t.Errorf("Severity = %v, want %v", entry.Severity, logging.Warning)
	}
	if want := "projects/proj-" + strings.ToLower(t.Name()) + "/traces/" + legacyTrace; entry.Trace != want {
		t.Errorf("Trace = %q, want %q", entry.Trace, want)
	}
	if got := entry.Labels[LabelMethod]; got != testMethod {
		t.Errorf("labels[%s] = %q, want %q", LabelMethod, got, testMethod)
	}
	payload, ok := entry.Payload.(map[string]any)
	if !ok {
		t.Fatalf("Payload type = %T, want map[string]any", entry.Payload)
	}
	if got := payload["message"]; got != "finished call" {
		t.Errorf("message = %v, want finished call", got)
	}
	if got := payload["grpc.code"]; got != "Unavailable" {
		t.Errorf("grpc.code = %v, want Unavailable", got)
	}
}
