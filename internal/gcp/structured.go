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
	"encoding/json"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/logging"
	"google.golang.org/protobuf/encoding/protojson"
)

// structuredEntry is the stdout form of a logging.Entry.
type structuredEntry struct {
	LogName        string            `json:"logName,omitempty"`
	Timestamp      string            `json:"timestamp,omitempty"`
	Severity       string            `json:"severity"`
	JSONPayload    any               `json:"jsonPayload,omitempty"`
	TextPayload    string            `json:"textPayload,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
	Resource       json.RawMessage   `json:"resource,omitempty"`
	InsertID       string            `json:"insertId,omitempty"`
	Trace          string            `json:"trace,omitempty"`
	SpanID         string            `json:"spanId,omitempty"`
	TraceSampled   bool              `json:"traceSampled,omitempty"`
	SourceLocation json.RawMessage   `json:"sourceLocation,omitempty"`
}

// EncodeStructured writes e to w as a single JSON object followed by a
// newline. Protobuf-typed fields are rendered with protojson so their
// field names match the Cloud Logging API.
func EncodeStructured(w io.Writer, e logging.Entry) error {
	out := structuredEntry{
		LogName:      e.LogName,
		Severity:     e.Severity.String(),
		Labels:       e.Labels,
		InsertID:     e.InsertID,
		Trace:        e.Trace,
		SpanID:       e.SpanID,
		TraceSampled: e.TraceSampled,
	}
	if !e.Timestamp.IsZero() {
		out.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	switch p := e.Payload.(type) {
	case nil:
	case string:
		out.TextPayload = p
	default:
		out.JSONPayload = p
	}

	if e.Resource != nil {
		raw, err := protojson.Marshal(e.Resource)
		if err != nil {
			return fmt.Errorf("encode resource: %w", err)
		}
		out.Resource = raw
	}
	if e.SourceLocation != nil {
		raw, err := protojson.Marshal(e.SourceLocation)
		if err != nil {
			return fmt.Errorf("encode source location: %w", err)
		}
		out.SourceLocation = raw
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	return nil
}
