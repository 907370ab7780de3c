// Package registry holds the routing target table: the set of
// downstream masters a task can be routed to, their static descriptions
// and keyword vocabularies, and per-target routed-sample counts used by
// the cold-start policy.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// Target is one routable destination.
type Target struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Endpoint    string   `json:"endpoint,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// TargetInfo is a Target plus its runtime routing state.
type TargetInfo struct {
	Target
	RoutedSamples      int  `json:"routed_samples"`
	ClassifierEligible bool `json:"classifier_eligible"`
}

// Registry is safe for concurrent use. Targets are static configuration;
// only the sample counts change at runtime.
type Registry struct {
	mu         sync.RWMutex
	targets    map[string]Target
	order      []string
	samples    map[string]int
	minSamples int
}

// New builds a registry. minClassifierSamples is the routed-sample count
// a new target must accumulate before the learned-classifier layer may
// select it; until then it is eligible only through the earlier layers,
// using its static description.
func New(targets []Target, minClassifierSamples int) (*Registry, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("no routing targets configured")
	}
	r := &Registry{
		targets:    make(map[string]Target, len(targets)),
		samples:    make(map[string]int, len(targets)),
		minSamples: minClassifierSamples,
	}
	for _, t := range targets {
		if t.Name == "" {
			return nil, fmt.Errorf("routing target with empty name")
		}
		if _, dup := r.targets[t.Name]; dup {
			return nil, fmt.Errorf("duplicate routing target %q", t.Name)
		}
		r.targets[t.Name] = t
		r.order = append(r.order, t.Name)
	}
	sort.Strings(r.order)
	return r, nil
}

// Targets returns all targets in lexicographic order.
func (r *Registry) Targets() []Target {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Target, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.targets[name])
	}
	return out
}

// Known reports whether a target name is registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.targets[name]
	return ok
}

// RecordSample counts one routed decision toward a target's cold-start
// promotion. Unknown targets are ignored.
func (r *Registry) RecordSample(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[name]; ok {
		r.samples[name]++
	}
}

// SeedSamples primes a target's sample count, e.g. from historical data
// at startup.
func (r *Registry) SeedSamples(name string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.targets[name]; ok && count > r.samples[name] {
		r.samples[name] = count
	}
}

// ClassifierEligible reports whether a target has accumulated enough
// routed samples to be trusted by the learned-classifier layer.
func (r *Registry) ClassifierEligible(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.targets[name]; !ok {
		return false
	}
	return r.samples[name] >= r.minSamples
}

// Info returns the full runtime view of every target.
func (r *Registry) Info() []TargetInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TargetInfo, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, TargetInfo{
			Target:             r.targets[name],
			RoutedSamples:      r.samples[name],
			ClassifierEligible: r.samples[name] >= r.minSamples,
		})
	}
	return out
}
