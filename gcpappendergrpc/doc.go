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

// Package gcpappendergrpc connects gRPC servers and clients to gcpappender's
// trace correlation.
//
// The server interceptors put the caller's span context (from the configured
// propagator, or the x-cloud-trace-context metadata) on the call context and
// record the method and selected metadata as context data. The client
// interceptors forward the trace to downstream services. [ServerOptions] and
// [DialOptions] bundle the interceptors with otelgrpc stats handlers.
//
// [NewLogger] adapts a gcpappender handler to go-grpc-middleware's logging
// interceptors for per-call start and finish entries.
package gcpappendergrpc
