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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/logging"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

const (
	// DefaultBufferSize is the buffer capacity used when buffering is
	// enabled without an explicit size.
	DefaultBufferSize = 50

	// DefaultStopTimeout bounds manager shutdown when no timeout is given.
	DefaultStopTimeout = 7 * time.Second
)

// State is the lifecycle state of a [Manager].
type State int32

const (
	StateActive State = iota
	StateStopping
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateActive:
		return "ACTIVE"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// managerSettings configures a new Manager.
type managerSettings struct {
	identity      Identity
	bufferSize    int // zero disables buffering
	redirect      bool
	fallback      bool
	flushInterval time.Duration
	stdout        io.Writer
	status        *slog.Logger
}

// Manager owns a transport and the optional entry buffer shared by every
// appender with the same [Identity]. Entries are either handed to the
// transport or, in redirect mode, printed as one JSON object per line.
//
// When buffered, a writer that finds the buffer full swaps it out under the
// lock and delivers the batch itself before retrying its own enqueue, so a
// producer can never outrun delivery and every entry is delivered exactly
// once. A batch the transport rejects goes back to the front of the buffer
// and the writer that attempted it gets the error.
type Manager struct {
	identity  Identity
	transport Transport
	redirect  bool
	fallback  bool
	capacity  int
	interval  time.Duration
	status    *slog.Logger

	stdoutMu sync.Mutex
	stdout   io.Writer

	mu     sync.Mutex
	buffer []logging.Entry

	state atomic.Int32

	loopOnce    sync.Once
	loopStarted atomic.Bool
	loopStop    chan struct{}
	loopDone    chan struct{}

	stopOnce  sync.Once
	stopClean bool
}

func newManager(s managerSettings, transport Transport) *Manager {
	m := &Manager{
		identity:  s.identity,
		transport: transport,
		redirect:  s.redirect || transport == nil,
		fallback:  s.fallback,
		capacity:  s.bufferSize,
		interval:  s.flushInterval,
		status:    s.status,
		stdout:    s.stdout,
		loopStop:  make(chan struct{}),
		loopDone:  make(chan struct{}),
	}
	if m.stdout == nil {
		m.stdout = os.Stdout
	}
	if m.capacity > 0 {
		m.buffer = make([]logging.Entry, 0, m.capacity)
	}
	return m
}

// Name returns projectID@credentialsFile.
func (m *Manager) Name() string { return m.identity.String() }

// State returns the current lifecycle state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Redirecting reports whether entries go to stdout instead of a transport.
func (m *Manager) Redirecting() bool { return m.redirect }

// Buffered returns the buffer capacity, or zero when unbuffered.
func (m *Manager) Buffered() int { return m.capacity }

// start launches the periodic flush loop when a flush interval is
// configured on a buffered manager. It is idempotent.
func (m *Manager) start() {
	if m.capacity <= 0 || m.interval <= 0 {
		return
	}
	m.loopOnce.Do(func() {
		m.loopStarted.Store(true)
		go m.flushLoop()
	})
}

func (m *Manager) flushLoop() {
	defer close(m.loopDone)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.mu.Lock()
			empty := len(m.buffer) == 0
			m.mu.Unlock()
			if empty {
				continue
			}
			if err := m.drainBuffer(context.Background(), true); err != nil {
				logDiagnostic(m.status, slog.LevelError, "Periodic flush failed",
					slog.String("manager", m.Name()), slog.Any("error", err))
			}
		case <-m.loopStop:
			return
		}
	}
}

// Write delivers entry, or enqueues it when buffered. It fails with
// ErrManagerStopped once Stop has begun. Transport errors are returned
// unchanged.
func (m *Manager) Write(ctx context.Context, entry logging.Entry) error {
	if m.State() != StateActive {
		return ErrManagerStopped
	}
	if m.capacity <= 0 {
		return m.send(ctx, []logging.Entry{entry})
	}
	for {
		m.mu.Lock()
		if m.State() != StateActive {
			m.mu.Unlock()
			return ErrManagerStopped
		}
		if len(m.buffer) < m.capacity {
			m.buffer = append(m.buffer, entry)
			m.mu.Unlock()
			return nil
		}
		batch := m.takeLocked()
		m.mu.Unlock()

		if err := m.deliver(ctx, batch); err != nil {
			return err
		}
	}
}

// requeue puts a batch whose write failed back in front of the buffer so
// a later flush retries it in order. Printed batches are not requeued
// because some of their lines may already be out.
func (m *Manager) requeue(batch []logging.Entry) {
	if m.redirect || len(batch) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buffer = append(batch[:len(batch):len(batch)], m.buffer...)
}

// Flush delivers the buffered entries and then flushes the transport.
func (m *Manager) Flush(ctx context.Context) error {
	return m.drainBuffer(ctx, true)
}

// Stop shuts the manager down: new writes are refused, the buffer is
// drained, and the transport is closed. Draining and closing run on a
// separate goroutine bounded by timeout (DefaultStopTimeout when not
// positive). Stop reports whether shutdown completed cleanly in time; the
// manager is STOPPED afterwards either way. Later calls return the first
// result.
func (m *Manager) Stop(timeout time.Duration) bool {
	m.stopOnce.Do(func() {
		m.stopClean = m.stop(timeout)
	})
	return m.stopClean
}

func (m *Manager) stop(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = DefaultStopTimeout
	}
	// Taking the buffer lock orders the transition after any in-flight
	// enqueue, so the drain below sees every accepted entry.
	m.mu.Lock()
	m.state.Store(int32(StateStopping))
	m.mu.Unlock()
	defer m.state.Store(int32(StateStopped))

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	done := make(chan bool, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logDiagnostic(m.status, slog.LevelError, "Manager shutdown panicked",
					slog.String("manager", m.Name()), slog.Any("panic", r))
				done <- false
			}
		}()
		done <- m.shutdown(ctx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case clean := <-done:
		return clean
	case <-timer.C:
		logDiagnostic(m.status, slog.LevelWarn, "Manager shutdown did not complete in time",
			slog.String("manager", m.Name()), slog.Duration("timeout", timeout))
		return false
	}
}

// stopFlushLoop stops the flush loop and keeps it from being started later.
func (m *Manager) stopFlushLoop() {
	m.loopOnce.Do(func() {})
	close(m.loopStop)
	if m.loopStarted.Load() {
		<-m.loopDone
	}
}

// shutdown stops the flush loop, drains the buffer, and closes the
// transport.
func (m *Manager) shutdown(ctx context.Context) bool {
	m.stopFlushLoop()
	clean := true
	if err := m.drainBuffer(ctx, false); err != nil {
		clean = false
		logDiagnostic(m.status, slog.LevelError, "Failed to drain buffer during shutdown",
			slog.String("manager", m.Name()), slog.Any("error", err))
	}
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			clean = false
			logDiagnostic(m.status, slog.LevelError, "Failed to close transport",
				slog.String("manager", m.Name()), slog.Any("error", err))
		}
	}
	return clean
}

// drainBuffer delivers a snapshot of the buffer. flushTransport also
// flushes the transport afterwards, even when the snapshot was empty.
func (m *Manager) drainBuffer(ctx context.Context, flushTransport bool) error {
	var batch []logging.Entry
	if m.capacity > 0 {
		m.mu.Lock()
		batch = m.takeLocked()
		m.mu.Unlock()
	}
	if err := m.send(ctx, batch); err != nil {
		m.requeue(batch)
		return err
	}
	if flushTransport && !m.redirect && m.transport != nil {
		return m.transport.Flush()
	}
	return nil
}

// deliver sends a full batch and, outside redirect mode, flushes the
// transport.
func (m *Manager) deliver(ctx context.Context, batch []logging.Entry) error {
	if err := m.send(ctx, batch); err != nil {
		m.requeue(batch)
		return err
	}
	if m.redirect {
		return nil
	}
	return m.transport.Flush()
}

// takeLocked swaps the buffer out. m.mu must be held.
func (m *Manager) takeLocked() []logging.Entry {
	if len(m.buffer) == 0 {
		return nil
	}
	batch := m.buffer
	m.buffer = make([]logging.Entry, 0, m.capacity)
	return batch
}

func (m *Manager) send(ctx context.Context, batch []logging.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	if m.redirect {
		return m.printEntries(batch)
	}
	return m.transport.Write(ctx, batch)
}

func (m *Manager) printEntries(batch []logging.Entry) error {
	m.stdoutMu.Lock()
	defer m.stdoutMu.Unlock()
	var errs []error
	for _, e := range batch {
		if err := gcp.EncodeStructured(m.stdout, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
