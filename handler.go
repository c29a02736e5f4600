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
	"maps"
	"slices"
	"time"
)

// LabelsGroup is the attribute group whose members become entry labels
// instead of payload fields.
const LabelsGroup = "logging.googleapis.com/labels"

// Handler is an [slog.Handler] that forwards records to an [Appender].
//
// Attributes are nested into the JSON payload following slog groups. Members
// of the [LabelsGroup] group are merged into the record's context data, so
// the default context-data enhancer turns them into labels. The first
// attribute holding an error becomes the event's [Throwable]. Records logged
// with a context from [ContextWithEndOfBatch] flush the appender.
type Handler struct {
	appender   *Appender
	leveler    slog.Leveler
	addSource  bool
	loggerName string

	groups []string
	bound  []boundAttr
}

type boundAttr struct {
	groups []string
	attr   slog.Attr
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// WithLevel sets the minimum level handled. The default is slog.LevelInfo.
func WithLevel(l slog.Leveler) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.leveler = l
		}
	}
}

// WithSource controls whether the call site is reported as the entry's
// source location.
func WithSource(enabled bool) HandlerOption {
	return func(h *Handler) {
		h.addSource = enabled
	}
}

// WithLoggerName sets the loggerName label for records from this handler.
func WithLoggerName(name string) HandlerOption {
	return func(h *Handler) {
		h.loggerName = name
	}
}

// NewHandler returns a handler that writes through a.
func NewHandler(a *Appender, opts ...HandlerOption) *Handler {
	h := &Handler{appender: a, leveler: slog.LevelInfo}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Enabled implements [slog.Handler].
func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.leveler.Level()
}

// Handle implements [slog.Handler].
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	b := recordBuilder{
		payload: make(map[string]any, r.NumAttrs()+len(h.bound)),
		labels:  maps.Clone(contextData(ctx)),
	}
	if b.labels == nil {
		b.labels = make(map[string]string)
	}
	for _, ba := range h.bound {
		b.add(ba.groups, ba.attr)
	}
	r.Attrs(func(a slog.Attr) bool {
		b.add(h.groups, a)
		return true
	})

	ev := &Event{
		Level:           LevelFromSlog(r.Level),
		Message:         r.Message,
		Time:            r.Time,
		LoggerName:      h.loggerName,
		Thrown:          NewThrowable(b.thrown),
		ContextData:     b.labels,
		Attrs:           b.payload,
		IncludeLocation: h.addSource,
		EndOfBatch:      IsEndOfBatch(ctx),
		Context:         ctx,
	}
	if h.addSource {
		ev.Source = sourceFromPC(r.PC)
	}
	return h.appender.Append(ctx, ev)
}

// WithAttrs implements [slog.Handler].
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := h.clone()
	for _, a := range attrs {
		h2.bound = append(h2.bound, boundAttr{groups: h.groups, attr: a})
	}
	return h2
}

// WithGroup implements [slog.Handler].
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := h.clone()
	h2.groups = append(slices.Clip(h.groups), name)
	return h2
}

func (h *Handler) clone() *Handler {
	h2 := *h
	h2.bound = slices.Clip(h.bound)
	h2.groups = slices.Clip(h.groups)
	return &h2
}

// recordBuilder collects the payload, labels, and error of one record.
type recordBuilder struct {
	payload map[string]any
	labels  map[string]string
	thrown  error
}

func (b *recordBuilder) add(groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}

	if len(groups) > 0 && groups[0] == LabelsGroup {
		b.addLabel(a)
		return
	}
	if len(groups) == 0 && a.Key == LabelsGroup && a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			b.addLabel(ga)
		}
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		members := a.Value.Group()
		if len(members) == 0 {
			return
		}
		inner := groups
		if a.Key != "" {
			inner = append(slices.Clip(groups), a.Key)
		}
		for _, ga := range members {
			b.add(inner, ga)
		}
		return
	}

	if err, ok := a.Value.Any().(error); ok && a.Value.Kind() == slog.KindAny && b.thrown == nil {
		b.thrown = err
	}
	target := b.payload
	for _, g := range groups {
		next, ok := target[g].(map[string]any)
		if !ok {
			next = make(map[string]any)
			target[g] = next
		}
		target = next
	}
	target[a.Key] = payloadValue(a.Value)
}

func (b *recordBuilder) addLabel(a slog.Attr) {
	v := a.Value.Resolve()
	if a.Key == "" || v.Kind() == slog.KindGroup {
		return
	}
	b.labels[a.Key] = labelValue(v)
}

// payloadValue converts v into a JSON-friendly value.
func payloadValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	default:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	}
}

func labelValue(v slog.Value) string {
	if v.Kind() == slog.KindString {
		return v.String()
	}
	return fmt.Sprint(payloadValue(v))
}
