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
	"bytes"
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/logging"
)

// fakeTransport records everything written to it.
type fakeTransport struct {
	mu         sync.Mutex
	batches    [][]logging.Entry
	flushes    int
	closes     int
	writeErr   error
	flushErr   error
	closeErr   error
	closeBlock chan struct{}
}

func (f *fakeTransport) Write(_ context.Context, entries []logging.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.batches = append(f.batches, slices.Clone(entries))
	return nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeTransport) Close() error {
	if f.closeBlock != nil {
		<-f.closeBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func (f *fakeTransport) setWriteErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

func (f *fakeTransport) entries() []logging.Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []logging.Entry
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func (f *fakeTransport) writeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeTransport) flushCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes
}

func (f *fakeTransport) closeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// syncBuffer is a bytes.Buffer safe for concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) lines() []string {
	s := strings.TrimRight(b.String(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// newStatusLogger returns a status logger capturing every level.
func newStatusLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

// testProject derives a project ID unique to the running test so tests do
// not share delivery managers through the package registry.
func testProject(t *testing.T) string {
	t.Helper()
	return "proj-" + strings.NewReplacer("/", "-", " ", "-").Replace(strings.ToLower(t.Name()))
}

// newTestAppender builds an appender over transport with detection off and
// stops it when the test ends.
func newTestAppender(t *testing.T, cfg Config, transport Transport, opts ...Option) *Appender {
	t.Helper()
	if cfg.ProjectID == "" {
		cfg.ProjectID = testProject(t)
	}
	if cfg.LogName == "" {
		cfg.LogName = "app"
	}
	status, _ := newStatusLogger()
	base := []Option{
		WithDetector(nil),
		WithTransport(transport),
		WithStatusLogger(status),
	}
	a, err := New(context.Background(), cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() returned %v", err)
	}
	t.Cleanup(func() { a.Stop(time.Second) })
	return a
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", d)
}
