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

import (
	"context"
	"os"
	"strings"

	"cloud.google.com/go/compute/metadata"
)

// Monitored resource types reported by Detect.
const (
	ResourceCloudFunction = "cloud_function"
	ResourceCloudRun      = "cloud_run_revision"
	ResourceCloudRunJob   = "cloud_run_job"
	ResourceAppEngine     = "gae_app"
	ResourceKubernetes    = "k8s_container"
	ResourceGCEInstance   = "gce_instance"
	ResourceGlobal        = "global"
)

// KubernetesPodEnhancer is the name under which the pod label enhancer is
// registered. Detect lists it for k8s_container resources.
const KubernetesPodEnhancer = "k8s-pod"

// Detected is the monitored resource inferred from the runtime environment.
type Detected struct {
	Type   string
	Labels map[string]string

	// Enhancers names resource enhancers that should run for this platform.
	Enhancers []string
}

// metadataClient is the subset of the metadata package used for detection.
type metadataClient interface {
	OnGCE() bool
	GetWithContext(ctx context.Context, path string) (string, error)
}

type defaultMetadataClient struct{}

func (defaultMetadataClient) OnGCE() bool { return metadata.OnGCE() }
func (defaultMetadataClient) GetWithContext(ctx context.Context, path string) (string, error) {
	return metadata.GetWithContext(ctx, path)
}

// metadataClientFactory is replaced in tests.
var metadataClientFactory = func() metadataClient { return defaultMetadataClient{} }

// Detect inspects well-known environment variables and, when running on
// Google Cloud, the metadata server to work out the monitored resource of
// the current process. Platforms are checked from the most to the least
// specific. When no platform matches but a project ID is known the global
// resource is returned; otherwise ErrResourceNotDetected.
func Detect(ctx context.Context) (Detected, error) {
	md := newMetadataLookup(ctx)
	project := normalizeProjectID(firstNonEmpty(
		trimmedEnv("GOOGLE_CLOUD_PROJECT"),
		trimmedEnv("GCLOUD_PROJECT"),
		trimmedEnv("GCP_PROJECT"),
	))
	if project == "" {
		project = normalizeProjectID(md.get("project/project-id"))
	}

	d, ok := detectPlatform(md)
	if !ok {
		if project == "" {
			return Detected{}, ErrResourceNotDetected
		}
		d = Detected{Type: ResourceGlobal, Labels: map[string]string{}}
	}
	if project != "" {
		d.Labels["project_id"] = project
	}
	return d, nil
}

func detectPlatform(md *metadataLookup) (Detected, bool) {
	for _, detect := range []func(*metadataLookup) (Detected, bool){
		detectCloudFunction,
		detectCloudRunService,
		detectCloudRunJob,
		detectAppEngine,
		detectKubernetes,
		detectComputeEngine,
	} {
		if d, ok := detect(md); ok {
			return d, true
		}
	}
	return Detected{}, false
}

func detectCloudFunction(md *metadataLookup) (Detected, bool) {
	service := trimmedEnv("K_SERVICE")
	if service == "" || trimmedEnv("FUNCTION_TARGET") == "" {
		return Detected{}, false
	}
	labels := map[string]string{"function_name": service}
	if region := firstNonEmpty(trimmedEnv("FUNCTION_REGION"), lastSegment(md.get("instance/region"))); region != "" {
		labels["region"] = region
	}
	return Detected{Type: ResourceCloudFunction, Labels: labels}, true
}

func detectCloudRunService(md *metadataLookup) (Detected, bool) {
	service := trimmedEnv("K_SERVICE")
	revision := trimmedEnv("K_REVISION")
	if service == "" || revision == "" {
		return Detected{}, false
	}
	labels := map[string]string{
		"service_name":  service,
		"revision_name": revision,
	}
	if cfg := trimmedEnv("K_CONFIGURATION"); cfg != "" {
		labels["configuration_name"] = cfg
	}
	if region := firstNonEmpty(trimmedEnv("CLOUD_RUN_REGION"), lastSegment(md.get("instance/region"))); region != "" {
		labels["location"] = region
	}
	return Detected{Type: ResourceCloudRun, Labels: labels}, true
}

func detectCloudRunJob(md *metadataLookup) (Detected, bool) {
	job := trimmedEnv("CLOUD_RUN_JOB")
	if job == "" {
		return Detected{}, false
	}
	labels := map[string]string{"job_name": job}
	if region := firstNonEmpty(trimmedEnv("CLOUD_RUN_REGION"), lastSegment(md.get("instance/region"))); region != "" {
		labels["location"] = region
	}
	return Detected{Type: ResourceCloudRunJob, Labels: labels}, true
}

func detectAppEngine(md *metadataLookup) (Detected, bool) {
	service := trimmedEnv("GAE_SERVICE")
	version := trimmedEnv("GAE_VERSION")
	if service == "" && version == "" {
		return Detected{}, false
	}
	labels := map[string]string{}
	if service != "" {
		labels["module_id"] = service
	}
	if version != "" {
		labels["version_id"] = version
	}
	if zone := lastSegment(md.get("instance/zone")); zone != "" {
		labels["zone"] = zone
	}
	return Detected{Type: ResourceAppEngine, Labels: labels}, true
}

func detectKubernetes(md *metadataLookup) (Detected, bool) {
	if trimmedEnv("KUBERNETES_SERVICE_HOST") == "" {
		return Detected{}, false
	}
	labels := map[string]string{}
	if cluster := md.get("instance/attributes/cluster-name"); cluster != "" {
		labels["cluster_name"] = cluster
	}
	if location := md.get("instance/attributes/cluster-location"); location != "" {
		labels["location"] = location
	}
	return Detected{Type: ResourceKubernetes, Labels: labels, Enhancers: []string{KubernetesPodEnhancer}}, true
}

func detectComputeEngine(md *metadataLookup) (Detected, bool) {
	instanceID := md.get("instance/id")
	if instanceID == "" {
		return Detected{}, false
	}
	labels := map[string]string{"instance_id": instanceID}
	if zone := lastSegment(md.get("instance/zone")); zone != "" {
		labels["zone"] = zone
	}
	return Detected{Type: ResourceGCEInstance, Labels: labels}, true
}

// KubernetesPodLabels returns the pod-level k8s_container labels available
// from the downward API environment and the service account namespace file.
func KubernetesPodLabels() map[string]string {
	labels := map[string]string{}
	if ns := firstNonEmpty(readNamespace(), trimmedEnv("NAMESPACE_NAME"), trimmedEnv("NAMESPACE")); ns != "" {
		labels["namespace_name"] = ns
	}
	if pod := firstNonEmpty(trimmedEnv("POD_NAME"), trimmedEnv("HOSTNAME")); pod != "" {
		labels["pod_name"] = pod
	}
	if container := trimmedEnv("CONTAINER_NAME"); container != "" {
		labels["container_name"] = container
	}
	return labels
}

// namespaceFile is replaced in tests.
var namespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

func readNamespace() string {
	data, err := os.ReadFile(namespaceFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// trimmedEnv reads an environment variable and trims surrounding whitespace.
func trimmedEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

// firstNonEmpty returns the first non-empty string after trimming whitespace.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// normalizeProjectID strips common prefixes and leading underscores from project IDs.
func normalizeProjectID(id string) string {
	id = strings.TrimSpace(id)
	id = strings.TrimPrefix(id, "projects/")
	id = strings.TrimPrefix(id, "_")
	return id
}

// lastSegment returns the part of a metadata path after the final slash,
// turning projects/123/zones/us-central1-a into us-central1-a.
func lastSegment(s string) string {
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

// metadataLookup caches metadata values for a single detection pass and
// skips the metadata server entirely when not running on Google Cloud.
type metadataLookup struct {
	ctx    context.Context
	client metadataClient
	onGCE  *bool
	cache  map[string]string
}

func newMetadataLookup(ctx context.Context) *metadataLookup {
	return &metadataLookup{ctx: ctx, client: metadataClientFactory(), cache: make(map[string]string)}
}

func (l *metadataLookup) get(path string) string {
	if l.client == nil {
		return ""
	}
	if l.onGCE == nil {
		on := l.client.OnGCE()
		l.onGCE = &on
	}
	if !*l.onGCE {
		return ""
	}
	if v, ok := l.cache[path]; ok {
		return v
	}
	v, err := l.client.GetWithContext(l.ctx, path)
	if err != nil {
		v = ""
	}
	v = strings.TrimSpace(v)
	l.cache[path] = v
	return v
}
