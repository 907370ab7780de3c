package cascade

import (
	"fmt"
	"sync"

	"github.com/cortexmesh/cascade/internal/metrics"
)

// Thresholds holds the live per-layer confidence thresholds. Cascade
// runs read a consistent snapshot at start, so a tuner write mid-flight
// never affects an in-progress run. The only writers are the threshold
// tuner and a config hot reload.
type Thresholds struct {
	mu sync.RWMutex
	m  map[string]float64
}

func NewThresholds(specs []LayerSpec) *Thresholds {
	t := &Thresholds{m: make(map[string]float64, len(specs))}
	for _, spec := range specs {
		t.m[spec.Name] = spec.ConfidenceThreshold
		metrics.LayerThreshold.WithLabelValues(spec.Name).Set(spec.ConfidenceThreshold)
	}
	return t
}

// Snapshot returns a copy of all thresholds as of now.
func (t *Thresholds) Snapshot() map[string]float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]float64, len(t.m))
	for k, v := range t.m {
		out[k] = v
	}
	return out
}

// Threshold returns one layer's current threshold.
func (t *Thresholds) Threshold(layer string) (float64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.m[layer]
	return v, ok
}

// SetThreshold writes a new threshold for a known layer.
func (t *Thresholds) SetThreshold(layer string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("threshold %.4f out of range [0,1]", value)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.m[layer]; !ok {
		return fmt.Errorf("unknown layer %q", layer)
	}
	t.m[layer] = value
	metrics.LayerThreshold.WithLabelValues(layer).Set(value)
	return nil
}

// Reload replaces thresholds from freshly loaded layer specs. Used by
// config hot reload; tuner adjustments made since the last reload are
// superseded by the file's values.
func (t *Thresholds) Reload(specs []LayerSpec) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m = make(map[string]float64, len(specs))
	for _, spec := range specs {
		t.m[spec.Name] = spec.ConfidenceThreshold
		metrics.LayerThreshold.WithLabelValues(spec.Name).Set(spec.ConfidenceThreshold)
	}
}
