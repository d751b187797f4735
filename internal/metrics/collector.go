package metrics

import (
	"sync"
	"time"

	"github.com/localmind/assistant/internal/models"
)

// ModelSource is the read surface Collector samples; models.Manager
// satisfies it directly.
type ModelSource interface {
	All() []models.Snapshot
}

// Collector periodically captures every tracked model's §4.3 performance
// counters and retains a bounded history. Grounded on the teacher's
// MetricsCollector.TakeSnapshot overwrite-then-append-and-trim pattern,
// redirected from a per-agent map to a per-model one sourced from the Model
// Manager instead of pushed updates.
type Collector struct {
	mu         sync.RWMutex
	source     ModelSource
	history    []Snapshot
	maxHistory int
}

// NewCollector wires a Collector over source, normally the running
// models.Manager. maxHistory <= 0 defaults to 1000, matching the teacher.
func NewCollector(source ModelSource, maxHistory int) *Collector {
	if maxHistory <= 0 {
		maxHistory = 1000
	}
	return &Collector{source: source, maxHistory: maxHistory}
}

// TakeSnapshot samples the model source and appends the result to history.
func (c *Collector) TakeSnapshot() Snapshot {
	snap := Snapshot{Timestamp: time.Now(), Models: make(map[string]ModelStats)}
	for _, s := range c.source.All() {
		snap.Models[s.Descriptor.ID] = ModelStats{
			AvgInferenceMS:  s.Stats.AvgInferenceMS,
			TokensPerSecond: s.Stats.TokensPerSecond,
			SuccessCount:    s.Stats.SuccessCount,
			ErrorCount:      s.Stats.ErrorCount,
			SuccessRate:     s.Stats.SuccessRate(),
			LastInferenceAt: s.Stats.LastInferenceAt,
			State:           string(s.State),
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, snap)
	if len(c.history) > c.maxHistory {
		c.history = c.history[len(c.history)-c.maxHistory:]
	}
	return snap
}

// History returns a copy of the retained snapshot history, oldest first.
func (c *Collector) History() []Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Snapshot, len(c.history))
	copy(out, c.history)
	return out
}

// Latest returns the most recently taken snapshot, if any.
func (c *Collector) Latest() (Snapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.history) == 0 {
		return Snapshot{}, false
	}
	return c.history[len(c.history)-1], true
}

// ResetHistory clears retained history.
func (c *Collector) ResetHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}
