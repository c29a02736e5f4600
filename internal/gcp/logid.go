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
	"errors"
	"fmt"
	"net/url"
	"strings"
)

const logIDMaxLen = 512

// errEmptyLogID is returned by NormalizeLogID for blank input.
var errEmptyLogID = errors.New("log ID is empty")

// NormalizeLogID trims whitespace and surrounding quotes from s and checks
// that the result is a valid Cloud Logging log ID. A full resource name of
// the form projects/P/logs/ID is reduced to its ID.
func NormalizeLogID(s string) (string, error) {
	s = strings.TrimSpace(s)
	for len(s) > 0 && (s[0] == '"' || s[0] == '\'') {
		s = s[1:]
	}
	for n := len(s); n > 0 && (s[n-1] == '"' || s[n-1] == '\''); n = len(s) {
		s = s[:n-1]
	}
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "projects/") {
		if _, id, ok := strings.Cut(s, "/logs/"); ok {
			if unescaped, err := url.PathUnescape(id); err == nil {
				id = unescaped
			}
			s = id
		}
	}

	if s == "" {
		return "", errEmptyLogID
	}
	if len(s) >= logIDMaxLen {
		return "", fmt.Errorf("log ID must be < %d characters", logIDMaxLen)
	}

	for i := 0; i < len(s); i++ {
		b := s[i]
		if ('a' <= b && b <= 'z') ||
			('A' <= b && b <= 'Z') ||
			('0' <= b && b <= '9') ||
			b == '/' || b == '_' || b == '-' || b == '.' {
			continue
		}
		return "", fmt.Errorf(
			"log ID contains invalid character %q; allowed are letters, digits, '/', '_', '-', '.'",
			b,
		)
	}
	return s, nil
}

// IsEmptyLogID reports whether err came from normalizing a blank log ID.
func IsEmptyLogID(err error) bool { return errors.Is(err, errEmptyLogID) }
