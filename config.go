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
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"

	"github.com/pjscruggs/gcpappender/internal/gcp"
)

// DefaultEnvPrefix is the environment variable prefix read by [LoadConfig].
const DefaultEnvPrefix = "GCPAPPENDER_"

// Config describes one appender.
type Config struct {
	// LogName is the Cloud Logging log ID entries are written to.
	LogName string `validate:"required,logid"`

	// ProjectID and CredentialsFile select the destination project and
	// the service account key used for it. Together they identify the
	// delivery manager shared between appenders. An empty project ID is
	// taken from the detected resource.
	ProjectID       string
	CredentialsFile string `validate:"omitempty,file"`

	Resource ResourceConfig

	// RedirectToStdout prints entries as JSON lines instead of calling
	// the Cloud Logging API.
	RedirectToStdout bool

	// Buffered collects up to BufferSize entries before delivering them
	// in one batch. FlushInterval, when positive, also delivers whatever
	// is buffered on that period.
	Buffered      bool
	BufferSize    int           `validate:"gte=0"`
	FlushInterval time.Duration `validate:"gte=0"`

	// SyncWrites sends each entry synchronously instead of through the
	// client's background bundler.
	SyncWrites bool

	EventEnhancers    []string `validate:"dive,event_enhancer"`
	ResourceEnhancers []string `validate:"dive,resource_enhancer"`

	// PropagateErrors returns delivery failures from Append. When false,
	// the default, they are reported on the status logger and Append
	// returns nil.
	PropagateErrors bool

	// LoggerName is used for the loggerName label when an event has none.
	LoggerName string

	// StopTimeout bounds Stop when it is called with a non-positive
	// timeout.
	StopTimeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a Config with the documented defaults: buffer size
// 50 (buffering itself off) and a 7 second stop timeout. Delivery errors
// are ignored in the zero value already.
func DefaultConfig() Config {
	return Config{
		BufferSize:  DefaultBufferSize,
		StopTimeout: DefaultStopTimeout,
	}
}

// bufferCapacity is the manager buffer size implied by the config.
func (c Config) bufferCapacity() int {
	if !c.Buffered {
		return 0
	}
	if c.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return c.BufferSize
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func configValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New()
		_ = v.RegisterValidation("logid", func(fl validator.FieldLevel) bool {
			_, err := gcp.NormalizeLogID(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("event_enhancer", func(fl validator.FieldLevel) bool {
			name := strings.TrimSpace(fl.Field().String())
			return name == "" || EventEnhancerRegistered(name)
		})
		_ = v.RegisterValidation("resource_enhancer", func(fl validator.FieldLevel) bool {
			name := strings.TrimSpace(fl.Field().String())
			return name == "" || ResourceEnhancerRegistered(name)
		})
		validate = v
	})
	return validate
}

// Validate checks c strictly. Unlike [New], which skips enhancers it cannot
// resolve, Validate rejects unknown enhancer names with ErrUnknownEnhancer.
// A missing log name is reported as ErrLogNameMissing and every other
// problem wraps ErrInvalidConfig.
func (c Config) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		switch {
		case fe.StructField() == "LogName" && fe.Tag() == "required":
			errs = append(errs, ErrLogNameMissing)
		case fe.Tag() == "logid":
			errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogName, fe.Value()))
		case fe.Tag() == "event_enhancer" || fe.Tag() == "resource_enhancer":
			errs = append(errs, fmt.Errorf("%w: %s %q", ErrUnknownEnhancer, fe.Tag(), fe.Value()))
		default:
			errs = append(errs, fmt.Errorf("%w: %s failed %q", ErrInvalidConfig, fe.Namespace(), fe.Tag()))
		}
	}
	return errors.Join(errs...)
}

// LoadConfig reads a Config from environment variables named prefix +
// LOG_NAME, PROJECT_ID, CREDENTIALS_FILE, RESOURCE_TYPE, RESOURCE_LABELS
// (k=v,k=v), REDIRECT_TO_STDOUT, BUFFERED, BUFFER_SIZE, FLUSH_INTERVAL,
// SYNC_WRITES, EVENT_ENHANCERS and RESOURCE_ENHANCERS (comma separated),
// IGNORE_EXCEPTIONS (the inverse of PropagateErrors), LOGGER_NAME, and
// STOP_TIMEOUT. Unset variables keep the [DefaultConfig] values. An empty
// prefix means [DefaultEnvPrefix]. The result is validated with
// [Config.Validate].
func LoadConfig(prefix string) (Config, error) {
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}

	k := koanf.New(".")
	if err := k.Load(env.Provider(prefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, prefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := DefaultConfig()
	cfg.LogName = k.String("log_name")
	cfg.ProjectID = k.String("project_id")
	cfg.CredentialsFile = k.String("credentials_file")
	cfg.Resource.Type = k.String("resource_type")
	cfg.LoggerName = k.String("logger_name")
	cfg.RedirectToStdout = k.Bool("redirect_to_stdout")
	cfg.Buffered = k.Bool("buffered")
	cfg.SyncWrites = k.Bool("sync_writes")
	cfg.EventEnhancers = splitList(k.String("event_enhancers"))
	cfg.ResourceEnhancers = splitList(k.String("resource_enhancers"))

	if k.Exists("ignore_exceptions") {
		cfg.PropagateErrors = !k.Bool("ignore_exceptions")
	}
	if k.Exists("buffer_size") {
		cfg.BufferSize = k.Int("buffer_size")
	}
	if k.Exists("flush_interval") {
		d, err := time.ParseDuration(k.String("flush_interval"))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %sFLUSH_INTERVAL: %w", ErrInvalidConfig, prefix, err)
		}
		cfg.FlushInterval = d
	}
	if k.Exists("stop_timeout") {
		d, err := time.ParseDuration(k.String("stop_timeout"))
		if err != nil {
			return Config{}, fmt.Errorf("%w: %sSTOP_TIMEOUT: %w", ErrInvalidConfig, prefix, err)
		}
		cfg.StopTimeout = d
	}
	labels, err := parseResourceLabels(k.String("resource_labels"))
	if err != nil {
		return Config{}, fmt.Errorf("%w: %sRESOURCE_LABELS: %w", ErrInvalidConfig, prefix, err)
	}
	cfg.Resource.Labels = labels

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseResourceLabels parses name=value pairs separated by commas.
func parseResourceLabels(s string) ([]ResourceLabel, error) {
	var out []ResourceLabel
	for _, pair := range splitList(s) {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed label %q, want name=value", pair)
		}
		out = append(out, ResourceLabel{Name: name, Value: strings.TrimSpace(value)})
	}
	return out, nil
}
