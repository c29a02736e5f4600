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
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	mrpb "google.golang.org/genproto/googleapis/api/monitoredres"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

// ResourceLabel is one explicitly configured monitored resource label.
type ResourceLabel struct {
	Name  string `validate:"required"`
	Value string
}

// ResourceConfig overrides parts of the detected monitored resource.
type ResourceConfig struct {
	Type   string
	Labels []ResourceLabel `validate:"dive"`
}

// DetectedResource is the monitored resource reported by a [Detector].
type DetectedResource struct {
	Type   string
	Labels map[string]string

	// Enhancers names registered resource enhancers to run for the
	// detected platform before any configured ones.
	Enhancers []string
}

// Detector infers the monitored resource of the running process.
type Detector interface {
	Detect(ctx context.Context) (DetectedResource, error)
}

// DetectorFunc adapts a function to [Detector].
type DetectorFunc func(ctx context.Context) (DetectedResource, error)

// Detect calls f(ctx).
func (f DetectorFunc) Detect(ctx context.Context) (DetectedResource, error) { return f(ctx) }

// platformDetector detects the resource from the environment and the
// metadata server. The first result is cached for the process lifetime,
// unless the caller's context ended during detection; the next call then
// detects again.
type platformDetector struct {
	detect func(context.Context) (gcp.Detected, error)

	mu   sync.Mutex
	done bool
	res  DetectedResource
	err  error
}

var defaultDetector = &platformDetector{detect: gcp.Detect}

func (d *platformDetector) Detect(ctx context.Context) (DetectedResource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.done {
		res, err := d.run(ctx)
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return res, err
		}
		d.res, d.err, d.done = res, err, true
	}
	return DetectedResource{Type: d.res.Type, Labels: maps.Clone(d.res.Labels), Enhancers: d.res.Enhancers}, d.err
}

func (d *platformDetector) run(ctx context.Context) (DetectedResource, error) {
	detect := d.detect
	if detect == nil {
		detect = gcp.Detect
	}
	det, err := detect(ctx)
	if err != nil {
		return DetectedResource{}, err
	}
	return DetectedResource{Type: det.Type, Labels: det.Labels, Enhancers: det.Enhancers}, nil
}

// resolvedResource is the frozen outcome of resource resolution.
type resolvedResource struct {
	projectID string
	resource  *mrpb.MonitoredResource
}

// resolveResource merges detection, enhancers, and explicit configuration.
// The project ID falls back to the detected project_id label, the type to
// the detected type and then "global". Labels start from the detected set,
// then the project ID, then resource enhancers, and finally the explicit
// labels, which always win. Detection failure only costs the detected base.
func resolveResource(ctx context.Context, cfg Config, detector Detector, configured []ResourceEnhancer, status *slog.Logger) resolvedResource {
	projectID := strings.TrimSpace(cfg.ProjectID)
	resType := strings.TrimSpace(cfg.Resource.Type)
	labels := make(map[string]string)

	var platform []ResourceEnhancer
	if detector != nil {
		det, err := safeDetect(ctx, detector)
		if err != nil {
			logDiagnostic(status, slog.LevelInfo, "Monitored resource detection failed; using configured values",
				slog.Any("error", err))
		} else {
			maps.Copy(labels, det.Labels)
			if projectID == "" {
				projectID = det.Labels["project_id"]
			}
			if resType == "" {
				resType = det.Type
			}
			platform = resolveResourceEnhancers(det.Enhancers, status)
		}
	}
	if resType == "" {
		resType = gcp.ResourceGlobal
	}
	if projectID != "" {
		labels["project_id"] = projectID
	}

	for _, e := range platform {
		runResourceEnhancer(e, labels, status)
	}
	for _, e := range configured {
		runResourceEnhancer(e, labels, status)
	}
	for _, l := range cfg.Resource.Labels {
		if name := strings.TrimSpace(l.Name); name != "" {
			labels[name] = l.Value
		}
	}
	if projectID == "" {
		projectID = labels["project_id"]
	}

	return resolvedResource{
		projectID: projectID,
		resource:  &mrpb.MonitoredResource{Type: resType, Labels: labels},
	}
}

func safeDetect(ctx context.Context, d Detector) (res DetectedResource, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = DetectedResource{}, fmt.Errorf("detector panicked: %v", r)
		}
	}()
	return d.Detect(ctx)
}
