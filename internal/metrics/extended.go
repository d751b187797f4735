package metrics

import "sync"

// Fleet aggregates health across every tracked model, generalizing the
// teacher's TeamMetrics (per-agent aggregation across a coding team) to
// per-model aggregation across the loaded model catalogue.
type Fleet struct {
	mu     sync.RWMutex
	models map[string]ModelStats
}

// NewFleet creates an empty Fleet.
func NewFleet() *Fleet {
	return &Fleet{models: make(map[string]ModelStats)}
}

// LoadSnapshot replaces the tracked set from a freshly taken Snapshot.
func (f *Fleet) LoadSnapshot(snap Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.models = make(map[string]ModelStats, len(snap.Models))
	for id, s := range snap.Models {
		f.models[id] = s
	}
}

// HealthyCount returns how many tracked models are Healthy or Idle.
func (f *Fleet) HealthyCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, s := range f.models {
		if h := Health(s); h == HealthHealthy || h == HealthIdle {
			n++
		}
	}
	return n
}

// FailingModels returns the ids of models currently classified Failing.
func (f *Fleet) FailingModels() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for id, s := range f.models {
		if Health(s) == HealthFailing {
			out = append(out, id)
		}
	}
	return out
}

// TotalTokensPerSecond sums each Ready model's running-average
// tokens-per-second — a rough capacity indicator, not a measured aggregate
// rate.
func (f *Fleet) TotalTokensPerSecond() float64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var total float64
	for _, s := range f.models {
		if s.State == "ready" {
			total += s.TokensPerSecond
		}
	}
	return total
}
