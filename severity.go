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

import "cloud.google.com/go/logging"

// SeverityFor maps an appender [Level] to the Cloud Logging severity it is
// reported as. FATAL is raised to ALERT, the verbose levels collapse into
// DEBUG, and anything unrecognised (including OFF) becomes DEFAULT.
func SeverityFor(level Level) logging.Severity {
	switch level {
	case LevelFatal:
		return logging.Alert
	case LevelError:
		return logging.Error
	case LevelWarn:
		return logging.Warning
	case LevelInfo:
		return logging.Info
	case LevelDebug, LevelTrace, LevelAll:
		return logging.Debug
	default:
		return logging.Default
	}
}
