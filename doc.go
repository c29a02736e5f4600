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

// Package gcpappender forwards structured log events to Google Cloud
// Logging. An [Appender] converts each [Event] into a Cloud Logging entry
// (severity, JSON payload with the message and flattened error chain,
// standard labels, monitored resource, source location, and trace
// correlation) and hands it to a delivery [Manager], which writes it
// immediately, buffers it for batch delivery, or prints it to stdout as a
// JSON line.
//
// ⚠️ This module is untested, and not recommended for any production use. ⚠️
//
// The host framework is [log/slog]: [NewHandler] wraps an appender in an
// [slog.Handler].
//
// # Quick Start
//
//	gcpappender.Setup()
//
//	cfg, err := gcpappender.LoadConfig("") // GCPAPPENDER_* variables
//	if err != nil {
//	    log.Fatalf("load appender config: %v", err)
//	}
//	app, err := gcpappender.New(ctx, cfg)
//	if err != nil {
//	    log.Fatalf("create appender: %v", err)
//	}
//	app.Start()
//	defer app.Stop(0)
//
//	logger := slog.New(gcpappender.NewHandler(app, gcpappender.WithSource(true)))
//	logger.Info("application started")
//
// # Enhancers
//
// Entries are enriched by [EventEnhancer]s, chosen by name from a static
// registry ([RegisterEventEnhancer]) or passed as instances. With none
// configured the [ContextDataEnhancer] copies request-scoped context data
// ([ContextWithData]) into labels; configuring any replaces it. The
// [TraceEnhancer] correlates entries with Cloud Trace. [ResourceEnhancer]s
// adjust the monitored resource once, while it is resolved.
//
// # Delivery managers
//
// Appenders configured with the same project ID and credentials file share
// one reference-counted manager and therefore one Cloud Logging client. The
// last appender to stop closes it, bounded by a timeout.
//
// # Subpackages
//
//   - [github.com/pjscruggs/gcpappender/gcpappenderhttp] provides net/http
//     middleware that makes the inbound trace and request data visible to
//     the enhancers.
//   - [github.com/pjscruggs/gcpappender/gcpappendergrpc] provides the
//     equivalent gRPC server options and interceptors.
package gcpappender
