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
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/logging"
	loggingpb "cloud.google.com/go/logging/apiv2/loggingpb"
	mrpb "google.golang.org/genproto/googleapis/api/monitoredres"
	"google.golang.org/protobuf/proto"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

// errorReportingType marks ERROR entries for Cloud Error Reporting.
const errorReportingType = "type.googleapis.com/google.devtools.clouderrorreporting.v1beta1.ReportedErrorEvent"

// Standard labels added to every entry.
const (
	LabelLevelName  = "levelName"
	LabelLevelValue = "levelValue"
	LabelLoggerName = "loggerName"
)

// Appender turns [Event]s into Cloud Logging entries and hands them to a
// shared delivery [Manager]. It is safe for concurrent use.
type Appender struct {
	logName          string
	loggerName       string
	ignoreExceptions bool
	stopTimeout      time.Duration

	resource  *mrpb.MonitoredResource
	projectID string
	enhancers []EventEnhancer

	manager *Manager
	status  *slog.Logger
	now     func() time.Time

	started  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once
	stopOK   bool
}

// New builds an appender from cfg. It requires a valid log name; every
// other problem degrades with a diagnostic on the status logger. Unknown
// enhancer names are skipped, a failed resource detection leaves only the
// configured resource values, and a transport that cannot be created makes
// the delivery manager print JSON lines to stdout instead. ctx bounds
// resource detection and transport creation.
func New(ctx context.Context, cfg Config, opts ...Option) (*Appender, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	logName, err := gcp.NormalizeLogID(cfg.LogName)
	if err != nil {
		if gcp.IsEmptyLogID(err) {
			return nil, ErrLogNameMissing
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidLogName, err)
	}
	o := applyOptions(opts)

	configured := resolveResourceEnhancers(cfg.ResourceEnhancers, o.status)
	for _, e := range o.resourceEnhancers {
		if e != nil {
			configured = append(configured, e)
		}
	}
	resolved := resolveResource(ctx, cfg, o.detector, configured, o.status)

	id := Identity{ProjectID: resolved.projectID, CredentialsFile: cfg.CredentialsFile}
	settings := managerSettings{
		identity:      id,
		bufferSize:    cfg.bufferCapacity(),
		redirect:      cfg.RedirectToStdout,
		flushInterval: cfg.FlushInterval,
		stdout:        o.stdout,
		status:        o.status,
	}
	m, err := managers.acquire(id, func() (*Manager, error) {
		return createManager(ctx, settings, cfg, o), nil
	})
	if err != nil {
		return nil, err
	}
	if (m.redirect != settings.redirect && !m.fallback) || m.capacity != settings.bufferSize {
		logDiagnostic(o.status, slog.LevelWarn, "Sharing an existing delivery manager whose settings differ; its settings apply",
			slog.String("manager", m.Name()),
			slog.Bool("redirect", m.redirect),
			slog.Int("buffer_size", m.capacity),
		)
	}

	return &Appender{
		logName:          logName,
		loggerName:       cfg.LoggerName,
		ignoreExceptions: !cfg.PropagateErrors,
		stopTimeout:      cfg.StopTimeout,
		resource:         resolved.resource,
		projectID:        resolved.projectID,
		enhancers:        selectEventEnhancers(cfg.EventEnhancers, o.eventEnhancers, o.status),
		manager:          m,
		status:           o.status,
		now:              o.now,
	}, nil
}

// createManager builds the manager for a new identity. Outside redirect
// mode it asks the transport factory for a transport and falls back to
// stdout when that fails.
func createManager(ctx context.Context, s managerSettings, cfg Config, o options) *Manager {
	if s.redirect {
		return newManager(s, nil)
	}
	t, err := o.transportFactory(ctx, TransportSettings{
		ProjectID:       s.identity.ProjectID,
		CredentialsFile: s.identity.CredentialsFile,
		SyncWrites:      cfg.SyncWrites,
		Status:          o.status,
	})
	if err == nil && t == nil {
		err = fmt.Errorf("%w: transport factory returned nil", gcp.ErrClientInitializationFailed)
	}
	if err != nil {
		logDiagnostic(o.status, slog.LevelWarn, "Cloud Logging transport unavailable; writing entries to stdout",
			slog.String("manager", s.identity.String()),
			slog.Any("error", err),
		)
		s.redirect = true
		s.fallback = true
		return newManager(s, nil)
	}
	return newManager(s, t)
}

// Start marks the appender started and starts the manager's periodic flush
// when one is configured.
func (a *Appender) Start() {
	if a.started.Swap(true) {
		return
	}
	a.manager.start()
}

// IsStarted reports whether Start has been called and Stop has not.
func (a *Appender) IsStarted() bool { return a.started.Load() && !a.stopped.Load() }

// IsInFallbackMode reports whether the appender writes to stdout because
// its Cloud Logging transport could not be created.
func (a *Appender) IsInFallbackMode() bool { return a.manager.fallback }

// ProjectID returns the resolved destination project.
func (a *Appender) ProjectID() string { return a.projectID }

// Resource returns a copy of the resolved monitored resource.
func (a *Appender) Resource() *mrpb.MonitoredResource {
	return proto.Clone(a.resource).(*mrpb.MonitoredResource)
}

// Manager returns the delivery manager the appender writes through.
func (a *Appender) Manager() *Manager { return a.manager }

// Append converts ev into an entry and writes it, flushing afterwards when
// ev.EndOfBatch is set. Unless PropagateErrors is set, failures and panics are
// reported on the status logger and Append returns nil.
func (a *Appender) Append(ctx context.Context, ev *Event) (err error) {
	if ev == nil {
		return nil
	}
	if a.ignoreExceptions {
		defer func() {
			if r := recover(); r != nil {
				logDiagnostic(a.status, slog.LevelError, "Panic while appending log entry",
					slog.String("log_name", a.logName), slog.Any("panic", r))
				err = nil
			}
		}()
	}
	if a.stopped.Load() {
		return a.handleError("append", ErrAppenderStopped)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	event := *ev
	if event.Context == nil {
		event.Context = ctx
	}
	entry := a.buildEntry(&event)

	if err := a.manager.Write(ctx, entry); err != nil {
		return a.handleError("write", err)
	}
	if event.EndOfBatch {
		if err := a.manager.Flush(ctx); err != nil {
			return a.handleError("flush", err)
		}
	}
	return nil
}

// Flush delivers anything the manager has buffered.
func (a *Appender) Flush(ctx context.Context) error {
	if err := a.manager.Flush(ctx); err != nil {
		return a.handleError("flush", err)
	}
	return nil
}

// Stop releases the appender's manager, stopping it when no other appender
// uses it. A non-positive timeout uses Config.StopTimeout. Stop reports
// whether shutdown finished cleanly in time; repeated calls return the
// first result.
func (a *Appender) Stop(timeout time.Duration) bool {
	a.stopOnce.Do(func() {
		a.stopped.Store(true)
		if timeout <= 0 {
			timeout = a.stopTimeout
		}
		a.stopOK = managers.release(a.manager, timeout)
	})
	return a.stopOK
}

// buildEntry assembles the entry for ev: severity, payload with message and
// flattened stack, the standard labels, resource, source location, and
// finally the event enhancers.
func (a *Appender) buildEntry(ev *Event) logging.Entry {
	var sb strings.Builder
	sb.WriteString(ev.Message)
	sb.WriteByte('\n')
	WriteStack(&sb, ev.Thrown, "")

	severity := SeverityFor(ev.Level)
	payload := make(map[string]any, len(ev.Attrs)+2)
	for k, v := range ev.Attrs {
		payload[k] = v
	}
	payload["message"] = strings.TrimSpace(sb.String())
	if severity == logging.Error {
		payload["@type"] = errorReportingType
	}

	ts := ev.Time
	if ts.IsZero() {
		ts = a.now()
	}
	loggerName := ev.LoggerName
	if loggerName == "" {
		loggerName = a.loggerName
	}

	entry := logging.Entry{
		LogName:   a.logName,
		Timestamp: ts,
		Severity:  severity,
		Payload:   payload,
		Resource:  a.resource,
		Labels: map[string]string{
			LabelLevelName:  ev.Level.String(),
			LabelLevelValue: strconv.Itoa(ev.Level.IntLevel()),
			LabelLoggerName: loggerName,
		},
	}
	if ev.IncludeLocation && ev.Source != nil {
		entry.SourceLocation = &loggingpb.LogEntrySourceLocation{
			File:     ev.Source.File,
			Line:     int64(ev.Source.Line),
			Function: ev.Source.Function,
		}
	}

	applyEventEnhancers(a.enhancers, &entry, ev, a.status)
	return entry
}

func (a *Appender) handleError(op string, err error) error {
	if a.ignoreExceptions {
		logDiagnostic(a.status, slog.LevelError, "Failed to deliver log entry",
			slog.String("op", op),
			slog.String("log_name", a.logName),
			slog.Any("error", err),
		)
		return nil
	}
	return fmt.Errorf("gcpappender: %s: %w", op, err)
}

// logDiagnostic emits an internal diagnostic when a logger is configured.
func logDiagnostic(logger *slog.Logger, level slog.Level, msg string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), level, msg, attrs...)
}
