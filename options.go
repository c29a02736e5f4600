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
	"io"
	"log/slog"
	"os"
	"time"
)

// Option configures collaborators of an [Appender] that do not belong in a
// [Config]: the status logger, the transport factory, the resource detector,
// the redirect writer, the clock, and enhancer instances.
type Option func(*options)

type options struct {
	status            *slog.Logger
	transportFactory  TransportFactory
	detector          Detector
	detectorSet       bool
	stdout            io.Writer
	now               func() time.Time
	eventEnhancers    []EventEnhancer
	resourceEnhancers []ResourceEnhancer
}

// WithStatusLogger routes the appender's own diagnostics (detection,
// enhancer, transport, and shutdown problems) to logger. By default they go
// to stderr at WARN and above. A nil logger silences them.
func WithStatusLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.status = logger
	}
}

// WithTransportFactory replaces [NewCloudTransport] as the way delivery
// managers obtain their transport.
func WithTransportFactory(factory TransportFactory) Option {
	return func(o *options) {
		if factory != nil {
			o.transportFactory = factory
		}
	}
}

// WithTransport makes new delivery managers use t. It is mostly useful in
// tests and for custom sinks.
func WithTransport(t Transport) Option {
	return WithTransportFactory(func(context.Context, TransportSettings) (Transport, error) {
		return t, nil
	})
}

// WithDetector replaces the environment and metadata-server detector. A nil
// detector disables detection.
func WithDetector(d Detector) Option {
	return func(o *options) {
		o.detector = d
		o.detectorSet = true
	}
}

// WithStdout sets the writer used in redirect mode. The default is
// os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.stdout = w
		}
	}
}

// WithClock sets the function used to timestamp events that carry no time.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithEventEnhancers appends enhancer instances after those named in
// [Config.EventEnhancers]. Like named enhancers, they replace the default
// context-data enhancer.
func WithEventEnhancers(enhancers ...EventEnhancer) Option {
	return func(o *options) {
		o.eventEnhancers = append(o.eventEnhancers, enhancers...)
	}
}

// WithResourceEnhancers appends resource enhancer instances after those
// named in [Config.ResourceEnhancers].
func WithResourceEnhancers(enhancers ...ResourceEnhancer) Option {
	return func(o *options) {
		o.resourceEnhancers = append(o.resourceEnhancers, enhancers...)
	}
}

func defaultStatusLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})).
		With(slog.String("component", "gcpappender"))
}

func applyOptions(opts []Option) options {
	o := options{
		status:           defaultStatusLogger(),
		transportFactory: NewCloudTransport,
		stdout:           os.Stdout,
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if !o.detectorSet {
		o.detector = defaultDetector
	}
	return o
}
