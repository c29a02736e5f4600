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

package gcp

import "errors"

// ErrProjectIDMissing indicates that a Cloud Logging transport was requested
// without a project ID.
var ErrProjectIDMissing = errors.New("gcp: project ID required for Cloud Logging transport but not found")

// ErrClientInitializationFailed indicates that an error occurred during the
// creation of the underlying `cloud.google.com/go/logging` client.
// The original error from the client library is wrapped alongside it.
var ErrClientInitializationFailed = errors.New("gcp: cloud logging client initialization failed")

// ErrTransportClosed indicates that entries were written to a transport after
// Close.
var ErrTransportClosed = errors.New("gcp: transport closed")

// ErrResourceNotDetected indicates that no Google Cloud runtime and no
// project ID could be found while detecting the monitored resource.
var ErrResourceNotDetected = errors.New("gcp: monitored resource could not be detected")
