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

package gcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
)

const defaultClientInitTimeout = 10 * time.Second

// TransportConfig holds the settings used to build a [CloudTransport].
type TransportConfig struct {
	ProjectID       string
	CredentialsFile string
	UserAgent       string

	// SyncWrites sends every entry with Logger.LogSync instead of handing it
	// to the client's background bundler.
	SyncWrites bool

	// DialOptions are passed to the underlying gRPC connection.
	DialOptions []grpc.DialOption

	// InitTimeout bounds client creation. Zero uses a 10 second default.
	InitTimeout time.Duration

	// Diagnostics receives lifecycle events and background client errors.
	Diagnostics *slog.Logger
}

// entryLogger is the subset of *logging.Logger used by the transport.
type entryLogger interface {
	Log(e logging.Entry)
	LogSync(ctx context.Context, e logging.Entry) error
	Flush() error
}

// loggerSource hands out per-log-ID loggers and owns the client connection.
type loggerSource interface {
	Logger(logID string) entryLogger
	Close() error
}

// realClientWrapper adapts a concrete *logging.Client to loggerSource.
type realClientWrapper struct {
	client *logging.Client
}

func (w *realClientWrapper) Logger(logID string) entryLogger { return w.client.Logger(logID) }
func (w *realClientWrapper) Close() error                   { return w.client.Close() }

var _ loggerSource = (*realClientWrapper)(nil)

// newClientFuncType creates the loggerSource used by NewCloudTransport.
type newClientFuncType func(ctx context.Context, projectID string, onError func(error), opts ...option.ClientOption) (loggerSource, error)

// newClientFn is replaced in tests.
var newClientFn newClientFuncType = func(ctx context.Context, projectID string, onError func(error), opts ...option.ClientOption) (loggerSource, error) {
	client, err := logging.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	client.OnError = onError
	return &realClientWrapper{client: client}, nil
}

// CloudTransport delivers entries to Cloud Logging through a shared
// *logging.Client. Entries are routed to one logger per log ID taken from
// Entry.LogName, which is cleared before the entry is handed to the client.
type CloudTransport struct {
	cfg    TransportConfig
	source loggerSource

	mu      sync.Mutex
	loggers map[string]entryLogger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// NewCloudTransport creates the Cloud Logging client for cfg.ProjectID.
// Client creation is bounded by cfg.InitTimeout.
func NewCloudTransport(ctx context.Context, cfg TransportConfig) (*CloudTransport, error) {
	if cfg.ProjectID == "" {
		return nil, ErrProjectIDMissing
	}

	opts := []option.ClientOption{option.WithUserAgent(cfg.UserAgent)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	for _, d := range cfg.DialOptions {
		opts = append(opts, option.WithGRPCDialOption(d))
	}

	timeout := cfg.InitTimeout
	if timeout <= 0 {
		timeout = defaultClientInitTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	onError := func(err error) {
		logDiagnostic(cfg.Diagnostics, slog.LevelError, "Cloud Logging background error", slog.Any("error", err))
	}
	source, err := newClientFn(ctx, cfg.ProjectID, onError, opts...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("client creation timed out after %v: %w: %w", timeout, ErrClientInitializationFailed, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrClientInitializationFailed, err)
	}
	logDiagnostic(cfg.Diagnostics, slog.LevelInfo, "Cloud Logging client created",
		slog.String("project_id", cfg.ProjectID),
		slog.Bool("sync_writes", cfg.SyncWrites),
	)
	return newCloudTransport(cfg, source), nil
}

func newCloudTransport(cfg TransportConfig, source loggerSource) *CloudTransport {
	return &CloudTransport{
		cfg:     cfg,
		source:  source,
		loggers: make(map[string]entryLogger),
	}
}

// Write hands entries to the client. In async mode the client batches and
// sends them in the background and Write only fails once the transport is
// closed. In sync mode every entry is sent before Write returns and the
// errors of all failed entries are joined.
func (t *CloudTransport) Write(ctx context.Context, entries []logging.Entry) error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	var errs []error
	for _, e := range entries {
		logger := t.loggerFor(e.LogName)
		e.LogName = ""
		if !t.cfg.SyncWrites {
			logger.Log(e)
			continue
		}
		if err := logger.LogSync(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush blocks until every logger created so far has sent its buffered
// entries.
func (t *CloudTransport) Flush() error {
	if t.closed.Load() {
		return ErrTransportClosed
	}
	return t.flushAll()
}

// Close flushes all loggers and closes the client connection. It is
// idempotent.
func (t *CloudTransport) Close() error {
	t.closeOnce.Do(func() {
		t.closed.Store(true)
		flushErr := t.flushAll()
		if flushErr != nil {
			logDiagnostic(t.cfg.Diagnostics, slog.LevelWarn, "Error flushing logs during close", slog.Any("error", flushErr))
		}
		closeErr := t.source.Close()
		if closeErr != nil {
			logDiagnostic(t.cfg.Diagnostics, slog.LevelError, "Error closing Cloud Logging client", slog.Any("error", closeErr))
		} else {
			logDiagnostic(t.cfg.Diagnostics, slog.LevelInfo, "Cloud Logging client closed")
		}
		t.closeErr = errors.Join(flushErr, closeErr)
	})
	return t.closeErr
}

func (t *CloudTransport) flushAll() error {
	t.mu.Lock()
	loggers := make([]entryLogger, 0, len(t.loggers))
	for _, l := range t.loggers {
		loggers = append(loggers, l)
	}
	t.mu.Unlock()

	var errs []error
	for _, l := range loggers {
		if err := l.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *CloudTransport) loggerFor(logName string) entryLogger {
	logID, err := NormalizeLogID(logName)
	if err != nil {
		logID = "app"
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if l, ok := t.loggers[logID]; ok {
		return l
	}
	l := t.source.Logger(url.PathEscape(logID))
	t.loggers[logID] = l
	return l
}
