// Copyright 2026 The PlantOps Authors
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

package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

type snapshot map[string]*ModulePolicy

// Registry maps module names to their access policies. Writes replace an
// immutable snapshot behind an atomic pointer, so a concurrent Lookup never
// observes a partially updated policy. Registration is expected at startup
// but is safe at any time.
type Registry struct {
	mu       sync.Mutex // serializes writers
	policies atomic.Pointer[snapshot]
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	empty := make(snapshot)
	r.policies.Store(&empty)
	return r
}

// Register validates the policy and inserts or replaces the module's entry.
func (r *Registry) Register(ctx context.Context, policy *ModulePolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.policies.Load()
	next := make(snapshot, len(current)+1)
	for name, p := range current {
		next[name] = p
	}
	next[policy.Module] = policy
	r.policies.Store(&next)

	slog.InfoContext(ctx, "module registered",
		slog.String("module", policy.Module),
		slog.Int("roles", len(policy.Roles)),
		slog.String("data_classification", string(policy.DataClassification)),
	)

	return nil
}

// Lookup returns the policy for a module.
func (r *Registry) Lookup(name string) (*ModulePolicy, error) {
	if p, ok := (*r.policies.Load())[name]; ok {
		return p, nil
	}
	return nil, ErrUnknownModule
}

// Modules returns the registered module names, sorted.
func (r *Registry) Modules() []string {
	current := *r.policies.Load()
	names := make([]string, 0, len(current))
	for name := range current {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
