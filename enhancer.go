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
	"fmt"
	"log/slog"

	"cloud.google.com/go/logging"
)

// EventEnhancer adds data from an [Event] to the entry built for it. It runs
// once per entry, after the appender has set severity, payload, standard
// labels, resource, and source location. Enhancers run in configuration
// order and later writes to the same label win.
type EventEnhancer interface {
	EnhanceEntry(entry *logging.Entry, ev *Event)
}

// ResourceEnhancer adjusts the monitored resource labels. It runs once,
// while an appender resolves its resource.
type ResourceEnhancer interface {
	EnhanceResource(labels map[string]string)
}

// EventEnhancerFunc adapts a function to [EventEnhancer].
type EventEnhancerFunc func(entry *logging.Entry, ev *Event)

// EnhanceEntry calls f(entry, ev).
func (f EventEnhancerFunc) EnhanceEntry(entry *logging.Entry, ev *Event) { f(entry, ev) }

// ResourceEnhancerFunc adapts a function to [ResourceEnhancer].
type ResourceEnhancerFunc func(labels map[string]string)

// EnhanceResource calls f(labels).
func (f ResourceEnhancerFunc) EnhanceResource(labels map[string]string) { f(labels) }

// selectEventEnhancers builds the per-entry enhancer list. Named enhancers
// come from the registry and instances are appended after them. When
// neither is configured the context-data enhancer is the only one; any
// explicit configuration replaces it, even if every name fails to resolve.
func selectEventEnhancers(names []string, instances []EventEnhancer, status *slog.Logger) []EventEnhancer {
	names = cleanNames(names)
	if len(names) == 0 && len(instances) == 0 {
		return []EventEnhancer{ContextDataEnhancer{}}
	}
	out := resolveEventEnhancers(names, status)
	for _, e := range instances {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// applyEventEnhancers runs each enhancer, isolating panics so one faulty
// enhancer cannot drop the entry or stop the rest.
func applyEventEnhancers(enhancers []EventEnhancer, entry *logging.Entry, ev *Event, status *slog.Logger) {
	for _, e := range enhancers {
		runEventEnhancer(e, entry, ev, status)
	}
}

func runEventEnhancer(e EventEnhancer, entry *logging.Entry, ev *Event, status *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logDiagnostic(status, slog.LevelWarn, "Event enhancer panicked; skipping",
				slog.String("enhancer", fmt.Sprintf("%T", e)),
				slog.Any("panic", r),
			)
		}
	}()
	e.EnhanceEntry(entry, ev)
}

func runResourceEnhancer(e ResourceEnhancer, labels map[string]string, status *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logDiagnostic(status, slog.LevelWarn, "Resource enhancer panicked; skipping",
				slog.String("enhancer", fmt.Sprintf("%T", e)),
				slog.Any("panic", r),
			)
		}
	}()
	e.EnhanceResource(labels)
}

// setLabel writes a label, allocating the map on first use.
func setLabel(entry *logging.Entry, key, value string) {
	if entry.Labels == nil {
		entry.Labels = make(map[string]string)
	}
	entry.Labels[key] = value
}
