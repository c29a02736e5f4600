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
	"log/slog"

	"cloud.google.com/go/logging"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

// Transport sends entries to Cloud Logging. Entry.LogName carries the log
// ID the entry belongs to.
type Transport interface {
	Write(ctx context.Context, entries []logging.Entry) error
	Flush() error
	Close() error
}

// TransportSettings is what a [TransportFactory] needs to build a transport
// for one manager identity.
type TransportSettings struct {
	ProjectID       string
	CredentialsFile string
	SyncWrites      bool
	Status          *slog.Logger
}

// TransportFactory creates the transport of a new delivery manager.
type TransportFactory func(ctx context.Context, settings TransportSettings) (Transport, error)

// NewCloudTransport is the default [TransportFactory]. It builds a Cloud
// Logging client using the dial options installed by [Setup], running Setup
// first (with a warning) if the process never called it.
func NewCloudTransport(ctx context.Context, settings TransportSettings) (Transport, error) {
	ensureSetup(settings.Status)
	t, err := gcp.NewCloudTransport(ctx, gcp.TransportConfig{
		ProjectID:       settings.ProjectID,
		CredentialsFile: settings.CredentialsFile,
		UserAgent:       UserAgent,
		SyncWrites:      settings.SyncWrites,
		DialOptions:     dialOptions(),
		Diagnostics:     settings.Status,
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
