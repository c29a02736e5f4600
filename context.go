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
	"maps"
)

type contextKey int

const (
	contextDataKey contextKey = iota
	endOfBatchKey
)

// TraceContextKey is the context data key holding an explicit Cloud Trace
// resource name (projects/P/traces/T) for the trace enhancer.
const TraceContextKey = "logging.googleapis.com/trace"

// ContextWithData returns a child context whose context data contains key
// set to value. The parent's data is copied, never modified.
func ContextWithData(ctx context.Context, key, value string) context.Context {
	return ContextWithDataMap(ctx, map[string]string{key: value})
}

// ContextWithDataMap returns a child context whose context data is the
// parent's data overlaid with data.
func ContextWithDataMap(ctx context.Context, data map[string]string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(data) == 0 {
		return ctx
	}
	parent, _ := ctx.Value(contextDataKey).(map[string]string)
	merged := make(map[string]string, len(parent)+len(data))
	maps.Copy(merged, parent)
	maps.Copy(merged, data)
	return context.WithValue(ctx, contextDataKey, merged)
}

// ContextWithoutData returns a child context with key removed from the
// context data.
func ContextWithoutData(ctx context.Context, key string) context.Context {
	if ctx == nil {
		return context.Background()
	}
	parent, _ := ctx.Value(contextDataKey).(map[string]string)
	if _, ok := parent[key]; !ok {
		return ctx
	}
	trimmed := maps.Clone(parent)
	delete(trimmed, key)
	return context.WithValue(ctx, contextDataKey, trimmed)
}

// ContextData returns a copy of the context data stored in ctx.
func ContextData(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	data, _ := ctx.Value(contextDataKey).(map[string]string)
	return maps.Clone(data)
}

// contextData returns the stored map without copying. Callers must not
// modify it.
func contextData(ctx context.Context) map[string]string {
	if ctx == nil {
		return nil
	}
	data, _ := ctx.Value(contextDataKey).(map[string]string)
	return data
}

// ContextWithTraceID stores a Cloud Trace resource name for the trace
// enhancer. An empty traceID removes any stored value.
func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		return ContextWithoutData(ctx, TraceContextKey)
	}
	return ContextWithData(ctx, TraceContextKey, traceID)
}

// TraceIDFromContext returns the trace resource name stored by
// [ContextWithTraceID].
func TraceIDFromContext(ctx context.Context) string {
	return contextData(ctx)[TraceContextKey]
}

// ContextWithEndOfBatch marks records logged with the returned context as
// the last of a batch, making the appender flush after writing them.
func ContextWithEndOfBatch(ctx context.Context) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, endOfBatchKey, true)
}

// IsEndOfBatch reports whether ctx was marked by [ContextWithEndOfBatch].
func IsEndOfBatch(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(endOfBatchKey).(bool)
	return v
}
