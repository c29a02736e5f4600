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
	"log/slog"
	"math"
	"testing"

	"cloud.google.com/go/logging"
)

// TestLevelStringAndValue verifies the names and numeric values reported in
// the levelName and levelValue labels.
func TestLevelStringAndValue(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		level     Level
		wantName  string
		wantValue int
	}{
		{LevelOff, "OFF", 0},
		{LevelFatal, "FATAL", 100},
		{LevelError, "ERROR", 200},
		{LevelWarn, "WARN", 300},
		{LevelInfo, "INFO", 400},
		{LevelDebug, "DEBUG", 500},
		{LevelTrace, "TRACE", 600},
		{LevelAll, "ALL", math.MaxInt32},
		{Level(350), "LEVEL(350)", 350},
	}

	for _, tc := range testCases {
		t.Run(tc.wantName, func(t *testing.T) {
			if got := tc.level.String(); got != tc.wantName {
				t.Errorf("Level(%d).String() = %q, want %q", int(tc.level), got, tc.wantName)
			}
			if got := tc.level.IntLevel(); got != tc.wantValue {
				t.Errorf("Level(%d).IntLevel() = %d, want %d", int(tc.level), got, tc.wantValue)
			}
		})
	}
}

// TestLevelFromSlog checks that slog levels map onto the nearest appender
// level at or below them.
func TestLevelFromSlog(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in   slog.Level
		want Level
	}{
		{slog.LevelDebug - 4, LevelTrace},
		{slog.LevelDebug, LevelDebug},
		{slog.LevelDebug + 2, LevelDebug},
		{slog.LevelInfo, LevelInfo},
		{slog.LevelInfo + 1, LevelInfo},
		{slog.LevelWarn, LevelWarn},
		{slog.LevelError, LevelError},
		{slog.LevelError + 3, LevelError},
		{slog.LevelError + 4, LevelFatal},
		{slog.LevelError + 12, LevelFatal},
	}

	for _, tc := range testCases {
		if got := LevelFromSlog(tc.in); got != tc.want {
			t.Errorf("LevelFromSlog(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

// TestSeverityFor covers the full level to severity table, including the
// DEFAULT fallback for levels outside the named set.
func TestSeverityFor(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		level Level
		want  logging.Severity
	}{
		{LevelFatal, logging.Alert},
		{LevelError, logging.Error},
		{LevelWarn, logging.Warning},
		{LevelInfo, logging.Info},
		{LevelDebug, logging.Debug},
		{LevelTrace, logging.Debug},
		{LevelAll, logging.Debug},
		{LevelOff, logging.Default},
		{Level(450), logging.Default},
	}

	for _, tc := range testCases {
		if got := SeverityFor(tc.level); got != tc.want {
			t.Errorf("SeverityFor(%v) = %v, want %v", tc.level, got, tc.want)
		}
	}
}
