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
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	gcppropagator "github.com/GoogleCloudPlatform/opentelemetry-operations-go/propagator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"google.golang.org/grpc"
)

// pickFirstServiceConfig selects the pick_first load-balancing policy for
// the Cloud Logging gRPC connection.
const pickFirstServiceConfig = `{"loadBalancingConfig":[{"pick_first":{}}]}`

// envDisablePropagatorAutoset skips installing the global propagator in
// Setup when set to a true value.
const envDisablePropagatorAutoset = "GCPAPPENDER_DISABLE_PROPAGATOR_AUTOSET"

var (
	setupOnce     sync.Once
	setupDone     atomic.Bool
	setupDialOpts []grpc.DialOption
)

// Setup performs the process-wide initialization the appender depends on.
// It installs a composite OpenTelemetry propagator that understands W3C
// Trace Context, Baggage, and the inbound X-Cloud-Trace-Context header, and
// it prepares the gRPC dial options used by Cloud Logging transports. Call
// it once from main before creating appenders; later calls do nothing.
func Setup() {
	setupOnce.Do(func() {
		if !envBool(envDisablePropagatorAutoset) {
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				gcppropagator.CloudTraceOneWayPropagator{},
				propagation.TraceContext{},
				propagation.Baggage{},
			))
		}
		setupDialOpts = []grpc.DialOption{grpc.WithDefaultServiceConfig(pickFirstServiceConfig)}
		setupDone.Store(true)
	})
}

// ensureSetup runs Setup on behalf of callers that skipped it.
func ensureSetup(status *slog.Logger) {
	if setupDone.Load() {
		return
	}
	logDiagnostic(status, slog.LevelWarn, "gcpappender.Setup was not called before creating a Cloud Logging transport; running it now")
	Setup()
}

// dialOptions returns the gRPC options prepared by Setup.
func dialOptions() []grpc.DialOption {
	if !setupDone.Load() {
		return nil
	}
	return setupDialOpts
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return err == nil && v
}
