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
	"testing"

	"github.com/google/go-cmp/cmp"
)

// TestContextDataCopyOnWrite ensures derived contexts never modify the data
// visible through their parents.
func TestContextDataCopyOnWrite(t *testing.T) {
	t.Parallel()

	parent := ContextWithData(context.Background(), "requestId", "r1")
	child := ContextWithDataMap(parent, map[string]string{"tenant": "t1", "requestId": "r2"})
	trimmed := ContextWithoutData(child, "tenant")

	if diff := cmp.Diff(map[string]string{"requestId": "r1"}, ContextData(parent)); diff != "" {
		t.Errorf("parent data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"requestId": "r2", "tenant": "t1"}, ContextData(child)); diff != "" {
		t.Errorf("child data mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"requestId": "r2"}, ContextData(trimmed)); diff != "" {
		t.Errorf("trimmed data mismatch (-want +got):\n%s", diff)
	}

	got := ContextData(child)
	got["tenant"] = "mutated"
	if ContextData(child)["tenant"] != "t1" {
		t.Error("ContextData() returned the stored map instead of a copy")
	}
}

// TestContextDataEmpty covers contexts without data and no-op updates.
func TestContextDataEmpty(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	if got := ContextData(ctx); got != nil {
		t.Errorf("ContextData(background) = %v, want nil", got)
	}
	if got := ContextWithDataMap(ctx, nil); got != ctx {
		t.Error("ContextWithDataMap(nil) returned a new context")
	}
	if got := ContextWithoutData(ctx, "missing"); got != ctx {
		t.Error("ContextWithoutData(missing) returned a new context")
	}
}

// TestContextWithTraceID stores and clears the explicit trace name.
func TestContextWithTraceID(t *testing.T) {
	t.Parallel()

	const trace = "projects/p/traces/105445aa7843bc8bf206b12000100000"
	ctx := ContextWithTraceID(context.Background(), trace)
	if got := TraceIDFromContext(ctx); got != trace {
		t.Errorf("TraceIDFromContext() = %q, want %q", got, trace)
	}
	if got := ContextData(ctx)[TraceContextKey]; got != trace {
		t.Errorf("ContextData()[%q] = %q, want %q", TraceContextKey, got, trace)
	}

	cleared := ContextWithTraceID(ctx, "")
	if got := TraceIDFromContext(cleared); got != "" {
		t.Errorf("TraceIDFromContext() after clear = %q, want empty", got)
	}
}

// TestContextWithEndOfBatch marks only the derived context.
func TestContextWithEndOfBatch(t *testing.T) {
	t.Parallel()

	base := context.Background()
	if IsEndOfBatch(base) {
		t.Error("IsEndOfBatch(background) = true, want false")
	}
	if !IsEndOfBatch(ContextWithEndOfBatch(base)) {
		t.Error("IsEndOfBatch(marked) = false, want true")
	}
}
