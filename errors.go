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

import "errors"

// ErrLogNameMissing indicates that an appender was configured without a log
// name.
var ErrLogNameMissing = errors.New("gcpappender: log name is required")

// ErrInvalidLogName indicates that the configured log name contains
// characters Cloud Logging does not accept in a log ID.
var ErrInvalidLogName = errors.New("gcpappender: invalid log name")

// ErrUnknownEnhancer indicates that a configured enhancer name is not present
// in the enhancer registry.
var ErrUnknownEnhancer = errors.New("gcpappender: unknown enhancer")

// ErrInvalidConfig wraps validation failures reported by [Config.Validate].
var ErrInvalidConfig = errors.New("gcpappender: invalid configuration")

// ErrManagerStopped is returned when an entry is written to a delivery
// manager that has begun shutting down.
var ErrManagerStopped = errors.New("gcpappender: delivery manager stopped")

// ErrAppenderStopped is returned by Append after Stop.
var ErrAppenderStopped = errors.New("gcpappender: appender stopped")
