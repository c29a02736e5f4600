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

	"cloud.google.com/go/logging"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

// Registered names of the built-in enhancers.
const (
	ContextDataEnhancerName = "context-data"
	TraceEnhancerName       = "trace"
	KubernetesPodEnhancer   = gcp.KubernetesPodEnhancer
)

func init() {
	RegisterEventEnhancer(ContextDataEnhancerName, func() (EventEnhancer, error) { return ContextDataEnhancer{}, nil })
	RegisterEventEnhancer(TraceEnhancerName, func() (EventEnhancer, error) { return TraceEnhancer{}, nil })
	RegisterResourceEnhancer(KubernetesPodEnhancer, func() (ResourceEnhancer, error) { return kubernetesPodEnhancer{}, nil })
}

// ContextDataEnhancer copies every entry of [Event.ContextData] with a
// non-empty key into the entry labels. It is the default event enhancer.
type ContextDataEnhancer struct{}

// EnhanceEntry implements [EventEnhancer].
func (ContextDataEnhancer) EnhanceEntry(entry *logging.Entry, ev *Event) {
	for k, v := range ev.ContextData {
		if k == "" {
			continue
		}
		setLabel(entry, k, v)
	}
}

// TraceEnhancer correlates entries with Cloud Trace. An explicit trace
// resource name stored under [TraceContextKey] in the context data wins;
// otherwise a valid OpenTelemetry span in [Event.Context] is formatted as
// projects/<project>/traces/<trace-id> using the project of the entry's
// monitored resource, and its span ID and sampling flag are copied.
type TraceEnhancer struct{}

// EnhanceEntry implements [EventEnhancer].
func (TraceEnhancer) EnhanceEntry(entry *logging.Entry, ev *Event) {
	if id := ev.ContextData[TraceContextKey]; id != "" {
		entry.Trace = id
		return
	}
	if ev.Context == nil {
		return
	}
	sc := trace.SpanContextFromContext(ev.Context)
	if !sc.IsValid() {
		return
	}
	project := ""
	if entry.Resource != nil {
		project = entry.Resource.GetLabels()["project_id"]
	}
	if project == "" {
		return
	}
	entry.Trace = fmt.Sprintf("projects/%s/traces/%s", project, sc.TraceID().String())
	entry.SpanID = sc.SpanID().String()
	entry.TraceSampled = sc.IsSampled()
}

// kubernetesPodEnhancer fills the pod-level k8s_container labels that the
// metadata server cannot provide. Labels already present are kept.
type kubernetesPodEnhancer struct{}

func (kubernetesPodEnhancer) EnhanceResource(labels map[string]string) {
	for k, v := range gcp.KubernetesPodLabels() {
		if labels[k] == "" {
			labels[k] = v
		}
	}
}
