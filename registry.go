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
	"log/slog"
	"strings"
	"sync"
	"time"
)

// EventEnhancerFactory creates an event enhancer for a registered name.
type EventEnhancerFactory func() (EventEnhancer, error)

// ResourceEnhancerFactory creates a resource enhancer for a registered name.
type ResourceEnhancerFactory func() (ResourceEnhancer, error)

var enhancerRegistry = struct {
	mu       sync.RWMutex
	event    map[string]EventEnhancerFactory
	resource map[string]ResourceEnhancerFactory
}{
	event:    make(map[string]EventEnhancerFactory),
	resource: make(map[string]ResourceEnhancerFactory),
}

// RegisterEventEnhancer makes an event enhancer available by name to
// [Config.EventEnhancers]. It panics if name is empty, factory is nil, or
// the name is already registered.
func RegisterEventEnhancer(name string, factory EventEnhancerFactory) {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		panic("gcpappender: RegisterEventEnhancer requires a name and a factory")
	}
	enhancerRegistry.mu.Lock()
	defer enhancerRegistry.mu.Unlock()
	if _, dup := enhancerRegistry.event[name]; dup {
		panic("gcpappender: RegisterEventEnhancer called twice for " + name)
	}
	enhancerRegistry.event[name] = factory
}

// RegisterResourceEnhancer makes a resource enhancer available by name to
// [Config.ResourceEnhancers]. It panics under the same conditions as
// [RegisterEventEnhancer].
func RegisterResourceEnhancer(name string, factory ResourceEnhancerFactory) {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		panic("gcpappender: RegisterResourceEnhancer requires a name and a factory")
	}
	enhancerRegistry.mu.Lock()
	defer enhancerRegistry.mu.Unlock()
	if _, dup := enhancerRegistry.resource[name]; dup {
		panic("gcpappender: RegisterResourceEnhancer called twice for " + name)
	}
	enhancerRegistry.resource[name] = factory
}

// EventEnhancerRegistered reports whether name resolves to an event enhancer.
func EventEnhancerRegistered(name string) bool {
	enhancerRegistry.mu.RLock()
	defer enhancerRegistry.mu.RUnlock()
	_, ok := enhancerRegistry.event[strings.TrimSpace(name)]
	return ok
}

// ResourceEnhancerRegistered reports whether name resolves to a resource
// enhancer.
func ResourceEnhancerRegistered(name string) bool {
	enhancerRegistry.mu.RLock()
	defer enhancerRegistry.mu.RUnlock()
	_, ok := enhancerRegistry.resource[strings.TrimSpace(name)]
	return ok
}

// cleanNames trims names and drops blanks and duplicates, keeping order.
func cleanNames(names []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func resolveEventEnhancers(names []string, status *slog.Logger) []EventEnhancer {
	out := make([]EventEnhancer, 0, len(names))
	for _, name := range cleanNames(names) {
		enhancerRegistry.mu.RLock()
		factory := enhancerRegistry.event[name]
		enhancerRegistry.mu.RUnlock()

		e, err := buildEnhancer(name, factory)
		if err != nil {
			logDiagnostic(status, slog.LevelWarn, "Skipping event enhancer",
				slog.String("enhancer", name), slog.Any("error", err))
			continue
		}
		out = append(out, e)
	}
	return out
}

func resolveResourceEnhancers(names []string, status *slog.Logger) []ResourceEnhancer {
	out := make([]ResourceEnhancer, 0, len(names))
	for _, name := range cleanNames(names) {
		enhancerRegistry.mu.RLock()
		factory := enhancerRegistry.resource[name]
		enhancerRegistry.mu.RUnlock()

		e, err := buildEnhancer(name, factory)
		if err != nil {
			logDiagnostic(status, slog.LevelWarn, "Skipping resource enhancer",
				slog.String("enhancer", name), slog.Any("error", err))
			continue
		}
		out = append(out, e)
	}
	return out
}

// buildEnhancer calls factory, converting a missing registration, an error,
// a nil result, or a panic into an error.
func buildEnhancer[T any](name string, factory func() (T, error)) (enhancer T, err error) {
	var zero T
	if factory == nil {
		return zero, fmt.Errorf("%w: %q", ErrUnknownEnhancer, name)
	}
	defer func() {
		if r := recover(); r != nil {
			enhancer, err = zero, fmt.Errorf("enhancer %q factory panicked: %v", name, r)
		}
	}()
	enhancer, err = factory()
	if err != nil {
		return zero, fmt.Errorf("enhancer %q: %w", name, err)
	}
	if any(enhancer) == nil {
		return zero, fmt.Errorf("enhancer %q factory returned nil", name)
	}
	return enhancer, nil
}

// Identity keys shared delivery managers. Appenders with the same project
// and credentials file share one manager and therefore one transport.
type Identity struct {
	ProjectID       string
	CredentialsFile string
}

// String returns projectID@credentialsFile.
func (id Identity) String() string { return id.ProjectID + "@" + id.CredentialsFile }

type managerRef struct {
	manager *Manager
	refs    int
	ready   chan struct{}
	err     error
}

// managerRegistry hands out reference-counted managers per Identity.
type managerRegistry struct {
	mu      sync.Mutex
	entries map[Identity]*managerRef
}

var managers = &managerRegistry{entries: make(map[Identity]*managerRef)}

// acquire returns the live manager for id, creating it with create on first
// use, and takes a reference on it. create runs without the registry lock;
// callers for the same identity wait for it, others proceed. A failed
// create is not remembered.
func (r *managerRegistry) acquire(id Identity, create func() (*Manager, error)) (*Manager, error) {
	r.mu.Lock()
	if ref, ok := r.entries[id]; ok {
		ref.refs++
		r.mu.Unlock()
		<-ref.ready
		if ref.err != nil {
			return nil, ref.err
		}
		return ref.manager, nil
	}
	ref := &managerRef{refs: 1, ready: make(chan struct{})}
	r.entries[id] = ref
	r.mu.Unlock()

	var m *Manager
	err := errors.New("gcpappender: delivery manager creation panicked")
	defer func() {
		r.mu.Lock()
		if err != nil {
			ref.err = err
			if r.entries[id] == ref {
				delete(r.entries, id)
			}
		} else {
			ref.manager = m
		}
		r.mu.Unlock()
		close(ref.ready)
	}()
	m, err = create()
	if err == nil && m == nil {
		err = errors.New("gcpappender: delivery manager factory returned nil")
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// release drops a reference on m and stops it once the last reference is
// gone. It reports whether the stop, if any, completed within timeout.
func (r *managerRegistry) release(m *Manager, timeout time.Duration) bool {
	r.mu.Lock()
	ref, ok := r.entries[m.identity]
	if !ok || ref.manager != m {
		r.mu.Unlock()
		return m.Stop(timeout)
	}
	ref.refs--
	if ref.refs > 0 {
		r.mu.Unlock()
		return true
	}
	delete(r.entries, m.identity)
	r.mu.Unlock()
	return m.Stop(timeout)
}

// refCount reports the references held on the manager for id.
func (r *managerRegistry) refCount(id Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ref, ok := r.entries[id]; ok {
		return ref.refs
	}
	return 0
}
