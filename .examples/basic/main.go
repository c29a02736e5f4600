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

// Command basic writes one entry through a gcpappender appender that
// redirects to stdout, the mode used on platforms whose logging agent
// collects JSON lines.
//
// This example is both documentation, and a test for `gcpappender`.
// Our Github workflow tests if any changes to `gcpappender` break the example.
package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"

	"github.com/pjscruggs/gcpappender"
)

// main runs the basic stdout example.
func main() {
	if err := run(context.Background(), os.Stdout); err != nil {
		log.Fatalf("basic example: %v", err)
	}
}

// run logs "service ready" as a JSON line on w.
func run(ctx context.Context, w io.Writer) error {
	cfg := gcpappender.DefaultConfig()
	cfg.LogName = "basic"
	cfg.ProjectID = "example-project"
	cfg.RedirectToStdout = true

	app, err := gcpappender.New(ctx, cfg,
		gcpappender.WithDetector(nil),
		gcpappender.WithStdout(w),
	)
	if err != nil {
		return err
	}
	defer app.Stop(0)

	slog.New(gcpappender.NewHandler(app)).InfoContext(ctx, "service ready")
	return nil
}
