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
	"math"
)

// Level is the severity of an [Event]. The integer values follow the
// conventional appender ordering where a smaller value is more severe, and
// they are reported verbatim in the levelValue label of every entry.
type Level int

const (
	LevelOff   Level = 0
	LevelFatal Level = 100
	LevelError Level = 200
	LevelWarn  Level = 300
	LevelInfo  Level = 400
	LevelDebug Level = 500
	LevelTrace Level = 600
	LevelAll   Level = math.MaxInt32
)

// String returns the upper-case level name used for the levelName label.
// Levels outside the named set render as LEVEL(n).
func (l Level) String() string {
	switch l {
	case LevelOff:
		return "OFF"
	case LevelFatal:
		return "FATAL"
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	case LevelTrace:
		return "TRACE"
	case LevelAll:
		return "ALL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// IntLevel returns the numeric value of the level.
func (l Level) IntLevel() int { return int(l) }

// LevelFromSlog maps an [slog.Level] onto the nearest appender level at or
// below it. Anything four or more steps above slog.LevelError is FATAL.
func LevelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError+4:
		return LevelFatal
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	case l >= slog.LevelDebug:
		return LevelDebug
	default:
		return LevelTrace
	}
}
