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
	"strings"
	"time"
)

// Event is a single log event handed to an [Appender]. It is treated as
// read-only; the appender never mutates the event or the maps it carries.
type Event struct {
	Level   Level
	Message string
	Time    time.Time

	// LoggerName identifies the logger that produced the event. It is
	// reported in the loggerName label.
	LoggerName string

	// Thrown is the error chain attached to the event, if any.
	Thrown *Throwable

	// ContextData holds request-scoped key/value pairs. The default
	// context-data enhancer copies them into entry labels.
	ContextData map[string]string

	// Attrs are structured fields merged into the JSON payload next to
	// the message.
	Attrs map[string]any

	Source          *Source
	IncludeLocation bool

	// EndOfBatch asks the appender to flush once this event is written.
	EndOfBatch bool

	// Context carries the OpenTelemetry span used by the trace enhancer.
	// Append fills it from its own ctx argument when nil.
	Context context.Context
}

// Source describes where an event was logged.
type Source struct {
	Function string
	File     string
	Line     int
}

// Frame is one stack frame of a [Throwable].
type Frame struct {
	Function string
	File     string
	Line     int
}

// String renders the frame as function(file:line).
func (f Frame) String() string {
	return fmt.Sprintf("%s(%s:%d)", f.Function, f.File, f.Line)
}

// Throwable is one link of an error chain. CommonFrames counts the trailing
// frames shared with the enclosing link; they are elided when rendered.
type Throwable struct {
	Name         string
	Message      string
	Frames       []Frame
	CommonFrames int
	Cause        *Throwable
}

// maxCauseDepth bounds the chain built by NewThrowable.
const maxCauseDepth = 32

// NewThrowable converts err and the errors it wraps into a [Throwable]
// chain. Each errors.Unwrap step becomes one link named after the dynamic
// type of the error. A link whose message ends with its cause's message has
// that suffix removed so each message appears once. Frames are taken from
// errors implementing StackTrace() []uintptr. It returns nil for a nil error.
func NewThrowable(err error) *Throwable {
	if err == nil {
		return nil
	}

	var head, tail *Throwable
	for depth := 0; err != nil && depth < maxCauseDepth; depth++ {
		cause := unwrapOnce(err)
		node := &Throwable{
			Name:    fmt.Sprintf("%T", err),
			Message: ownMessage(err, cause),
			Frames:  errorFrames(err),
		}
		if tail == nil {
			head = node
		} else {
			node.CommonFrames = commonFrameCount(node.Frames, tail.Frames)
			tail.Cause = node
		}
		tail = node
		err = cause
	}
	return head
}

func unwrapOnce(err error) error {
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return u.Unwrap()
	case interface{ Unwrap() []error }:
		if errs := u.Unwrap(); len(errs) > 0 {
			return errs[0]
		}
	}
	return nil
}

func ownMessage(err, cause error) string {
	msg := err.Error()
	if cause == nil {
		return msg
	}
	if trimmed, ok := strings.CutSuffix(msg, ": "+cause.Error()); ok {
		return trimmed
	}
	return msg
}

// commonFrameCount counts identical frames at the tail of both slices.
func commonFrameCount(frames, enclosing []Frame) int {
	n := 0
	for i, j := len(frames)-1, len(enclosing)-1; i >= 0 && j >= 0; i, j = i-1, j-1 {
		if frames[i] != enclosing[j] {
			break
		}
		n++
	}
	return n
}
