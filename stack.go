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
	"runtime"
	"strconv"
	"strings"
)

const (
	maxStackFrames = 64
	frameIndent    = "    "
	causedByPrefix = "caused by: "
)

// stackTracer defines an interface errors can implement to provide their own
// stack trace in the form of program counters.
type stackTracer interface {
	StackTrace() []uintptr
}

// WriteStack renders t and its causes into sb. Each link is written as
// "<prefix><name>: <message>" followed by its own frames, one per line and
// indented by four spaces. Frames shared with the enclosing link are replaced
// by a single "... N common frames elided" line. Causes use the prefix
// "caused by: ". A nil throwable writes nothing.
func WriteStack(sb *strings.Builder, t *Throwable, prefix string) {
	var intBuf [20]byte
	for ; t != nil; t, prefix = t.Cause, causedByPrefix {
		sb.WriteString(prefix)
		sb.WriteString(t.Name)
		sb.WriteString(": ")
		sb.WriteString(t.Message)
		sb.WriteByte('\n')

		common := min(max(t.CommonFrames, 0), len(t.Frames))
		for _, f := range t.Frames[:len(t.Frames)-common] {
			sb.WriteString(frameIndent)
			sb.WriteString(f.String())
			sb.WriteByte('\n')
		}
		if common > 0 {
			sb.WriteString(frameIndent)
			sb.WriteString("... ")
			sb.Write(strconv.AppendInt(intBuf[:0], int64(common), 10))
			sb.WriteString(" common frames elided\n")
		}
	}
}

// FlattenStack returns the rendering produced by [WriteStack] with an empty
// prefix.
func FlattenStack(t *Throwable) string {
	if t == nil {
		return ""
	}
	var sb strings.Builder
	WriteStack(&sb, t, "")
	return sb.String()
}

// errorFrames returns the frames recorded by err itself, without looking at
// the errors it wraps.
func errorFrames(err error) []Frame {
	st, ok := err.(stackTracer)
	if !ok {
		return nil
	}
	pcs := st.StackTrace()
	if len(pcs) > maxStackFrames {
		pcs = pcs[:maxStackFrames]
	}
	return framesFromPCs(pcs)
}

// framesFromPCs resolves program counters, skipping runtime exit frames.
func framesFromPCs(pcs []uintptr) []Frame {
	if len(pcs) == 0 {
		return nil
	}
	out := make([]Frame, 0, len(pcs))
	frames := runtime.CallersFrames(pcs)
	for {
		frame, more := frames.Next()
		if frame.PC == 0 {
			break
		}
		if frame.Function != "" && frame.Function != "runtime.goexit" {
			out = append(out, Frame{Function: frame.Function, File: frame.File, Line: frame.Line})
		}
		if !more || len(out) >= maxStackFrames {
			break
		}
	}
	return out
}

// CaptureFrames records the calling goroutine's stack, skipping skip frames
// above the caller of CaptureFrames. It is a convenience for errors that want
// to satisfy the StackTrace() []uintptr convention.
func CaptureFrames(skip int) []uintptr {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+2, pcs)
	return pcs[:n]
}

// sourceFromPC resolves the logging call site recorded in an slog.Record.
func sourceFromPC(pc uintptr) *Source {
	if pc == 0 {
		return nil
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" && frame.Function == "" {
		return nil
	}
	return &Source{Function: frame.Function, File: frame.File, Line: frame.Line}
}
