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

// Package gcpappenderhttp connects net/http servers and clients to
// gcpappender's trace correlation.
//
// [Middleware] puts the inbound span context on the request context, so the
// trace enhancer can stamp every entry logged while serving the request with
// its Cloud Trace ID. Header values chosen with [WithHeaderLabel] become
// context data and therefore entry labels under the default enhancer.
// [Transport] forwards the trace context to downstream services.
//
//	mux := http.NewServeMux()
//	handler := gcpappenderhttp.Middleware(
//		gcpappenderhttp.WithHeaderLabel("X-Request-Id", "requestId"),
//	)(mux)
//	client := &http.Client{Transport: gcpappenderhttp.Transport(nil)}
package gcpappenderhttp
