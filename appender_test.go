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

package gcpappender

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/logging"
	"github.com/google/go-cmp/cmp"
)

var fixedTime = time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)

// TestAppendWarnWithContextData sends a single WARN entry immediately, with
// the standard labels and the context data copied into labels.
func TestAppendWarnWithContextData(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.LogName = "app"
	cfg.Resource.Type = "global"
	a := newTestAppender(t, cfg, ft)

	err := a.Append(context.Background(), &Event{
		Level:       LevelWarn,
		Message:     "disk full",
		Time:        fixedTime,
		LoggerName:  "storage",
		ContextData: map[string]string{"requestId": "r1"},
	})
	if err != nil {
		t.Fatalf("Append() returned %v", err)
	}

	if got := ft.writeCalls(); got != 1 {
		t.Fatalf("transport writes = %d, want 1", got)
	}
	entry := ft.entries()[0]
	if entry.Severity != logging.Warning {
		t.Errorf("Severity = %v, want WARNING", entry.Severity)
	}
	if entry.LogName != "app" {
		t.Errorf("LogName = %q, want app", entry.LogName)
	}
	if !entry.Timestamp.Equal(fixedTime) {
		t.Errorf("Timestamp = %v, want %v", entry.Timestamp, fixedTime)
	}
	if diff := cmp.Diff(map[string]any{"message": "disk full"}, entry.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	wantLabels := map[string]string{
		"levelName":  "WARN",
		"levelValue": "300",
		"loggerName": "storage",
		"requestId":  "r1",
	}
	if diff := cmp.Diff(wantLabels, entry.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if entry.Resource.GetType() != "global" || entry.Resource.GetLabels()["project_id"] != a.ProjectID() {
		t.Errorf("Resource = %v, want global for %s", entry.Resource, a.ProjectID())
	}
	if entry.SourceLocation != nil {
		t.Errorf("SourceLocation = %v, want nil without IncludeLocation", entry.SourceLocation)
	}
}

// TestAppendErrorWithChain flattens the error chain into the message and
// marks the entry for Error Reporting.
func TestAppendErrorWithChain(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	a := newTestAppender(t, DefaultConfig(), ft)

	thrown := &Throwable{
		Name:    "X",
		Message: "outer",
		Frames:  []Frame{{"f1", "a.go", 1}, {"f2", "a.go", 2}},
		Cause: &Throwable{
			Name:         "Y",
			Message:      "inner",
			Frames:       []Frame{{"g1", "b.go", 1}, {"g2", "b.go", 2}, {"f2", "a.go", 2}},
			CommonFrames: 1,
		},
	}
	if err := a.Append(context.Background(), &Event{Level: LevelError, Message: "boom", Thrown: thrown}); err != nil {
		t.Fatalf("Append() returned %v", err)
	}

	entry := ft.entries()[0]
	if entry.Severity != logging.Error {
		t.Errorf("Severity = %v, want ERROR", entry.Severity)
	}
	payload, _ := entry.Payload.(map[string]any)
	wantMessage := "boom\n" +
		"X: outer\n" +
		"    f1(a.go:1)\n" +
		"    f2(a.go:2)\n" +
		"caused by: Y: inner\n" +
		"    g1(b.go:1)\n" +
		"    g2(b.go:2)\n" +
		"    ... 1 common frames elided"
	if diff := cmp.Diff(wantMessage, payload["message"]); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
	if payload["@type"] != errorReportingType {
		t.Errorf("@type = %v, want %s", payload["@type"], errorReportingType)
	}
	if entry.Labels[LabelLevelValue] != "200" {
		t.Errorf("levelValue = %q, want 200", entry.Labels[LabelLevelValue])
	}
}

// TestAppendRedirectToStdout prints a JSON line and never creates a
// transport.
func TestAppendRedirectToStdout(t *testing.T) {
	t.Parallel()

	factoryCalls := 0
	out := &syncBuffer{}
	cfg := DefaultConfig()
	cfg.LogName = "app"
	cfg.RedirectToStdout = true
	cfg.ProjectID = testProject(t)

	a, err := New(context.Background(), cfg,
		WithDetector(nil),
		WithStdout(out),
		WithStatusLogger(nil),
		WithTransportFactory(func(context.Context, TransportSettings) (Transport, error) {
			factoryCalls++
			return &fakeTransport{}, nil
		}),
	)
	if err != nil {
		t.Fatalf("New() returned %v", err)
	}
	defer a.Stop(time.Second)

	if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "hello", Time: fixedTime}); err != nil {
		t.Fatalf("Append() returned %v", err)
	}
	if factoryCalls != 0 {
		t.Errorf("transport factory called %d times, want 0", factoryCalls)
	}
	if a.IsInFallbackMode() {
		t.Error("IsInFallbackMode() = true for explicit redirect, want false")
	}

	lines := out.lines()
	if len(lines) != 1 {
		t.Fatalf("stdout lines = %d, want 1:\n%s", len(lines), out.String())
	}
	var decoded struct {
		LogName     string            `json:"logName"`
		Severity    string            `json:"severity"`
		Timestamp   string            `json:"timestamp"`
		JSONPayload map[string]any    `json:"jsonPayload"`
		Labels      map[string]string `json:"labels"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("json.Unmarshal(%q) returned %v", lines[0], err)
	}
	if decoded.Severity != "INFO" || decoded.LogName != "app" {
		t.Errorf("severity/logName = %s/%s, want INFO/app", decoded.Severity, decoded.LogName)
	}
	if decoded.JSONPayload["message"] != "hello" {
		t.Errorf("jsonPayload.message = %v, want hello", decoded.JSONPayload["message"])
	}
	if decoded.Timestamp != "2025-03-14T15:09:26Z" {
		t.Errorf("timestamp = %q, want 2025-03-14T15:09:26Z", decoded.Timestamp)
	}
	if decoded.Labels[LabelLevelName] != "INFO" {
		t.Errorf("labels = %v, want levelName INFO", decoded.Labels)
	}
}

// TestNewFallsBackToStdout keeps logging when no transport can be created.
func TestNewFallsBackToStdout(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	status, statusBuf := newStatusLogger()
	factories := map[string]TransportFactory{
		"error": func(context.Context, TransportSettings) (Transport, error) {
			return nil, errors.New("no credentials")
		},
		"nil transport": func(context.Context, TransportSettings) (Transport, error) {
			return nil, nil
		},
	}
	for name, factory := range factories {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.LogName = "app"
			cfg.ProjectID = testProject(t)
			a, err := New(context.Background(), cfg,
				WithDetector(nil), WithStdout(out), WithStatusLogger(status), WithTransportFactory(factory))
			if err != nil {
				t.Fatalf("New() returned %v, want fallback instead of an error", err)
			}
			defer a.Stop(time.Second)

			if !a.IsInFallbackMode() || !a.Manager().Redirecting() {
				t.Fatal("appender is not in fallback mode")
			}
			if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "still here " + name}); err != nil {
				t.Fatalf("Append() returned %v", err)
			}
			if !strings.Contains(out.String(), "still here "+name) {
				t.Errorf("stdout = %q, want the entry", out.String())
			}
		})
	}
	if !strings.Contains(statusBuf.String(), "transport unavailable") {
		t.Errorf("status output = %q, want a fallback warning", statusBuf.String())
	}
}

// TestNewRejectsBadLogName requires a valid log name.
func TestNewRejectsBadLogName(t *testing.T) {
	t.Parallel()

	testCases := map[string]error{
		"":          ErrLogNameMissing,
		"  '' ":     ErrLogNameMissing,
		"bad name!": ErrInvalidLogName,
	}
	for name, want := range testCases {
		_, err := New(context.Background(), Config{LogName: name}, WithDetector(nil), WithStatusLogger(nil))
		if !errors.Is(err, want) {
			t.Errorf("New(%q) returned %v, want %v", name, err, want)
		}
	}
}

// TestNewNormalizesLogName accepts full resource names.
func TestNewNormalizesLogName(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.LogName = "projects/p/logs/team%2Fapp"
	a := newTestAppender(t, cfg, ft)

	_ = a.Append(context.Background(), &Event{Level: LevelInfo, Message: "m"})
	if got := ft.entries()[0].LogName; got != "team/app" {
		t.Errorf("LogName = %q, want team/app", got)
	}
}

// TestAppendEndOfBatchFlushes flushes a buffered appender when an event
// ends a batch.
func TestAppendEndOfBatchFlushes(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.Buffered = true
	cfg.BufferSize = 10
	a := newTestAppender(t, cfg, ft)

	_ = a.Append(context.Background(), &Event{Level: LevelInfo, Message: "one"})
	if got := ft.writeCalls(); got != 0 {
		t.Fatalf("transport writes = %d while buffered, want 0", got)
	}
	_ = a.Append(context.Background(), &Event{Level: LevelInfo, Message: "two", EndOfBatch: true})
	if got := len(ft.entries()); got != 2 {
		t.Errorf("entries after end of batch = %d, want 2", got)
	}
	if got := ft.flushCalls(); got != 1 {
		t.Errorf("transport flushes = %d, want 1", got)
	}
}

// TestAppendErrorHandling reports failures on the status logger by default
// and returns them when PropagateErrors is set.
func TestAppendErrorHandling(t *testing.T) {
	t.Parallel()

	boom := errors.New("rpc unavailable")

	t.Run("ignored", func(t *testing.T) {
		cfg := DefaultConfig()
		status, buf := newStatusLogger()
		a := newTestAppender(t, cfg, &fakeTransport{writeErr: boom}, WithStatusLogger(status))
		if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "m"}); err != nil {
			t.Errorf("Append() returned %v, want nil", err)
		}
		if !strings.Contains(buf.String(), "rpc unavailable") {
			t.Errorf("status output = %q, want the failure", buf.String())
		}
	})

	t.Run("zero config ignored", func(t *testing.T) {
		a := newTestAppender(t, Config{}, &fakeTransport{writeErr: boom})
		if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "m"}); err != nil {
			t.Errorf("Append() returned %v, want nil", err)
		}
	})

	t.Run("returned", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.PropagateErrors = true
		a := newTestAppender(t, cfg, &fakeTransport{writeErr: boom})
		if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "m"}); !errors.Is(err, boom) {
			t.Errorf("Append() returned %v, want %v", err, boom)
		}
	})

	t.Run("panic recovered", func(t *testing.T) {
		a := newTestAppender(t, DefaultConfig(), panicTransport{})
		if err := a.Append(context.Background(), &Event{Level: LevelInfo, Message: "m"}); err != nil {
			t.Errorf("Append() returned %v, want nil", err)
		}
	})
}

type panicTransport struct{}

func (panicTransport) Write(context.Context, []logging.Entry) error { panic("transport exploded") }
func (panicTransport) Flush() error                                 { return nil }
func (panicTransport) Close() error                                 { return nil }

// TestAppendAfterStop refuses events once the appender is stopped.
func TestAppendAfterStop(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.PropagateErrors = true
	a := newTestAppender(t, cfg, &fakeTransport{})
	a.Start()
	if !a.IsStarted() {
		t.Fatal("IsStarted() = false after Start")
	}
	if !a.Stop(time.Second) {
		t.Fatal("Stop() = false, want true")
	}
	if a.IsStarted() {
		t.Error("IsStarted() = true after Stop")
	}
	if err := a.Append(context.Background(), &Event{Level: LevelInfo}); !errors.Is(err, ErrAppenderStopped) {
		t.Errorf("Append() after Stop returned %v, want ErrAppenderStopped", err)
	}
	if err := a.Append(context.Background(), nil); err != nil {
		t.Errorf("Append(nil) returned %v, want nil", err)
	}
}

// TestAppendersShareManager reuses one manager per identity and closes it
// with the last appender.
func TestAppendersShareManager(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.LogName = "first"
	cfg.ProjectID = testProject(t)
	first := newTestAppender(t, cfg, ft)
	cfg.LogName = "second"
	second := newTestAppender(t, cfg, &fakeTransport{})

	if first.Manager() != second.Manager() {
		t.Fatal("appenders with the same identity use different managers")
	}
	_ = first.Append(context.Background(), &Event{Level: LevelInfo, Message: "a"})
	_ = second.Append(context.Background(), &Event{Level: LevelInfo, Message: "b"})
	entries := ft.entries()
	if len(entries) != 2 || entries[0].LogName != "first" || entries[1].LogName != "second" {
		t.Errorf("entries = %+v, want one per log name on the shared transport", entries)
	}

	first.Stop(time.Second)
	if ft.closeCalls() != 0 {
		t.Error("transport closed while another appender still uses it")
	}
	second.Stop(time.Second)
	if ft.closeCalls() != 1 {
		t.Errorf("transport closes = %d after the last Stop, want 1", ft.closeCalls())
	}
}

// TestBuildEntryDetails covers the clock fallback, source location, the
// configured logger name, and enhancers overriding standard labels.
func TestBuildEntryDetails(t *testing.T) {
	t.Parallel()

	ft := &fakeTransport{}
	cfg := DefaultConfig()
	cfg.LoggerName = "configured-logger"
	cfg.EventEnhancers = []string{testTagEnhancer}
	a := newTestAppender(t, cfg, ft,
		WithClock(func() time.Time { return fixedTime }),
		WithEventEnhancers(EventEnhancerFunc(func(e *logging.Entry, _ *Event) {
			setLabel(e, LabelLevelName, "overridden")
		})),
	)

	ev := &Event{
		Level:           LevelDebug,
		Message:         "  padded  ",
		Attrs:           map[string]any{"user": "u1", "message": "shadowed"},
		ContextData:     map[string]string{"requestId": "r1"},
		Source:          &Source{Function: "pkg.Fn", File: "fn.go", Line: 42},
		IncludeLocation: true,
	}
	if err := a.Append(context.Background(), ev); err != nil {
		t.Fatalf("Append() returned %v", err)
	}
	entry := ft.entries()[0]

	if !entry.Timestamp.Equal(fixedTime) {
		t.Errorf("Timestamp = %v, want the clock value %v", entry.Timestamp, fixedTime)
	}
	if entry.Severity != logging.Debug {
		t.Errorf("Severity = %v, want DEBUG", entry.Severity)
	}
	wantPayload := map[string]any{"message": "padded", "user": "u1"}
	if diff := cmp.Diff(wantPayload, entry.Payload); diff != "" {
		t.Errorf("payload mismatch (-want +got):\n%s", diff)
	}
	wantLabels := map[string]string{
		"levelName":  "overridden",
		"levelValue": "500",
		"loggerName": "configured-logger",
		"tag":        "named",
	}
	if diff := cmp.Diff(wantLabels, entry.Labels); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	loc := entry.SourceLocation
	if loc == nil || loc.GetFile() != "fn.go" || loc.GetLine() != 42 || loc.GetFunction() != "pkg.Fn" {
		t.Errorf("SourceLocation = %v, want pkg.Fn at fn.go:42", loc)
	}
	if ev.Attrs["message"] != "shadowed" {
		t.Error("Append modified the caller's event")
	}
}

// TestAppenderResourceIsCopy hands out independent copies of the resource.
func TestAppenderResourceIsCopy(t *testing.T) {
	t.Parallel()

	a := newTestAppender(t, DefaultConfig(), &fakeTransport{})
	res := a.Resource()
	res.Labels["project_id"] = "mutated"
	if got := a.Resource().GetLabels()["project_id"]; got != a.ProjectID() {
		t.Errorf("project_id = %q after mutating a copy, want %q", got, a.ProjectID())
	}
}
