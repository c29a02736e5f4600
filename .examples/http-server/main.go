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

// Command http-server serves one endpoint behind gcpappenderhttp.Middleware
// so every entry logged while handling a request carries the request's
// Cloud Trace ID and request ID label.
//
// Configuration comes from GCPAPPENDER_* environment variables; without
// GCPAPPENDER_LOG_NAME the example logs to stdout under "http-server".
//
// This example is both documentation, and a test for `gcpappender`.
// Our Github workflow tests if any changes to `gcpappender` break the example.
package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pjscruggs/gcpappender"
	"github.com/pjscruggs/gcpappender/gcpappenderhttp"
)

// main starts the server and stops the appender on SIGINT or SIGTERM.
func main() {
	gcpappender.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newAppender(ctx, os.Stdout)
	if err != nil {
		log.Fatalf("create appender: %v", err)
	}
	defer app.Stop(0)

	logger := slog.New(gcpappender.NewHandler(app, gcpappender.WithLoggerName("http-server")))
	srv := &http.Server{
		Addr:              ":8080",
		Handler:           newHandler(logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", slog.Any("error", err))
	}
}

// newAppender loads the environment configuration, defaulting to a stdout
// appender when no log name is configured.
func newAppender(ctx context.Context, stdout io.Writer, opts ...gcpappender.Option) (*gcpappender.Appender, error) {
	cfg := gcpappender.DefaultConfig()
	if os.Getenv(gcpappender.DefaultEnvPrefix+"LOG_NAME") == "" {
		cfg.LogName = "http-server"
		cfg.ProjectID = os.Getenv(gcpappender.DefaultEnvPrefix + "PROJECT_ID")
		cfg.RedirectToStdout = true
	} else {
		var err error
		if cfg, err = gcpappender.LoadConfig(gcpappender.DefaultEnvPrefix); err != nil {
			return nil, err
		}
	}
	if len(cfg.EventEnhancers) == 0 {
		cfg.EventEnhancers = []string{gcpappender.ContextDataEnhancerName, gcpappender.TraceEnhancerName}
	}
	return gcpappender.New(ctx, cfg, append([]gcpappender.Option{gcpappender.WithStdout(stdout)}, opts...)...)
}

// newHandler returns the instrumented mux.
func newHandler(logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /hello", func(w http.ResponseWriter, r *http.Request) {
		logger.InfoContext(r.Context(), "saying hello", slog.String("name", r.URL.Query().Get("name")))
		_, _ = io.WriteString(w, "hello\n")
	})
	return gcpappenderhttp.Middleware(
		gcpappenderhttp.WithHeaderLabel("X-Request-Id", "requestId"),
		gcpappenderhttp.WithRequestLabels(true),
	)(mux)
}
