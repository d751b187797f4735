package models

import (
	"context"
	"log"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/localmind/assistant/internal/corerr"
)

// AlertSink receives a message when the manager evicts a model under
// memory pressure. internal/notifications implements it.
type AlertSink interface {
	Notify(severity, message string)
}

type entry struct {
	descriptor Descriptor
	state      State
	errMsg     string
	lastUsed   time.Time
	stats      Stats
	backend    Backend
}

// Manager is the Model Manager: one state machine per model id, memory
// admission with LRU eviction, and single-flight load coalescing. Grounded
// on the teacher's agent-process lifecycle tracking (one map + one mutex +
// one PID per agent id), redirected here at loaded model backends.
type Manager struct {
	loader    Loader
	budgetMB  uint64
	alertSink AlertSink

	mu      sync.RWMutex
	entries map[string]*entry
	// ready orders Ready model ids from least- to most-recently-used via
	// Get-to-bump-recency; the same library scrypster-memento uses for LRU
	// eviction, here driving §4.3's "evict ascending last_used" rule
	// instead of a fixed-capacity cache.
	ready *lru.Cache[string, struct{}]

	loadGroup   singleflight.Group
	unloadGroup singleflight.Group
}

// NewManager builds a Manager with the given total RAM budget in MB. loader
// performs the actual backend construction per descriptor.
func NewManager(loader Loader, budgetMB uint64, alertSink AlertSink) *Manager {
	// capacity is a generous upper bound on concurrently tracked models;
	// actual admission is governed by budgetMB, not cache capacity.
	ready, _ := lru.New[string, struct{}](4096)
	return &Manager{
		loader:    loader,
		budgetMB:  budgetMB,
		alertSink: alertSink,
		entries:   make(map[string]*entry),
		ready:     ready,
	}
}

// Status returns a point-in-time snapshot of model id's tracked state.
// Absent models return StateAbsent with a zero-value descriptor.
func (m *Manager) Status(id string) Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return Snapshot{Descriptor: Descriptor{ID: id}, State: StateAbsent}
	}
	return snapshotOf(e)
}

func snapshotOf(e *entry) Snapshot {
	return Snapshot{
		Descriptor: e.descriptor,
		State:      e.state,
		ErrorMsg:   e.errMsg,
		LastUsed:   e.lastUsed,
		Stats:      e.stats,
	}
}

// All returns a snapshot of every tracked model.
func (m *Manager) All() []Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Snapshot, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, snapshotOf(e))
	}
	return out
}

// Load ensures id is Ready, loading it (after memory admission) if absent
// or erroring, or joining the in-flight attempt if one is already running.
// A Ready model is a no-op. This is the §5 suspension point for model load.
func (m *Manager) Load(ctx context.Context, d Descriptor) error {
	m.mu.RLock()
	e, ok := m.entries[d.ID]
	if ok && e.state == StateReady {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	_, err, _ := m.loadGroup.Do(d.ID, func() (interface{}, error) {
		return nil, m.doLoad(ctx, d)
	})
	return err
}

func (m *Manager) doLoad(ctx context.Context, d Descriptor) error {
	m.mu.Lock()
	if e, ok := m.entries[d.ID]; ok && e.state == StateReady {
		m.mu.Unlock()
		return nil
	}
	m.entries[d.ID] = &entry{descriptor: d, state: StateLoading}
	if err := m.admit(d); err != nil {
		m.entries[d.ID].state = StateError
		m.entries[d.ID].errMsg = err.Error()
		m.mu.Unlock()
		return err
	}
	m.mu.Unlock()

	backend, err := m.loader.Load(ctx, d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.entries[d.ID].state = StateError
		m.entries[d.ID].errMsg = err.Error()
		return corerr.Wrap(corerr.BackendFailure, "load model "+d.ID, err)
	}

	e := m.entries[d.ID]
	e.state = StateReady
	e.backend = backend
	e.lastUsed = time.Now()
	m.ready.Add(d.ID, struct{}{})
	return nil
}

// admit frees enough RAM for d by evicting Ready models in ascending
// last_used order. Must be called with m.mu held for writing. Models in
// Loading are never evicted, matching §4.3.
func (m *Manager) admit(d Descriptor) error {
	available := m.availableMBLocked(d.ID)
	if available >= d.RequiredRAMMB {
		return nil
	}

	for _, id := range m.ready.Keys() {
		if id == d.ID {
			continue
		}
		e, ok := m.entries[id]
		if !ok || e.state != StateReady {
			continue
		}
		m.evictLocked(id, "evicted to admit "+d.ID)
		available = m.availableMBLocked(d.ID)
		if available >= d.RequiredRAMMB {
			return nil
		}
	}

	return corerr.New(corerr.Capacity, "insufficient memory to load "+d.ID+" even after evicting all ready models")
}

// availableMBLocked returns the RAM budget not already claimed by a Ready
// or Loading entry, excluding excludeID itself: the entry being admitted is
// already present in m.entries (in StateLoading) by the time admit runs, so
// it must not count against its own admission.
func (m *Manager) availableMBLocked(excludeID string) uint64 {
	var used uint64
	for id, e := range m.entries {
		if id == excludeID {
			continue
		}
		if e.state == StateReady || e.state == StateLoading {
			used += e.descriptor.RequiredRAMMB
		}
	}
	if used >= m.budgetMB {
		return 0
	}
	return m.budgetMB - used
}

// evictLocked transitions a Ready model straight to absent. Must be called
// with m.mu held for writing.
func (m *Manager) evictLocked(id, reason string) {
	e, ok := m.entries[id]
	if !ok {
		return
	}
	if e.backend != nil {
		// Best-effort; the manager has no way to retry an eviction, and a
		// slow/stuck close must not block admission for the new model.
		go e.backend.Close(context.Background())
	}
	delete(m.entries, id)
	m.ready.Remove(id)
	log.Printf("[MODELS] %s", reason)
	if m.alertSink != nil {
		m.alertSink.Notify("warning", reason)
	}
}

// Unload transitions a Ready model through Unloading back to absent.
// Unloading an absent or non-Ready model is a no-op.
func (m *Manager) Unload(ctx context.Context, id string) error {
	m.mu.RLock()
	e, ok := m.entries[id]
	if !ok || e.state != StateReady {
		m.mu.RUnlock()
		return nil
	}
	m.mu.RUnlock()

	_, err, _ := m.unloadGroup.Do(id, func() (interface{}, error) {
		return nil, m.doUnload(ctx, id)
	})
	return err
}

func (m *Manager) doUnload(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.entries[id]
	if !ok || e.state != StateReady {
		m.mu.Unlock()
		return nil
	}
	e.state = StateUnloading
	backend := e.backend
	m.mu.Unlock()

	var closeErr error
	if backend != nil {
		closeErr = backend.Close(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	m.ready.Remove(id)
	if closeErr != nil {
		return corerr.Wrap(corerr.BackendFailure, "unload model "+id, closeErr)
	}
	return nil
}

// RecordUsage is the sole writer of a model's performance counters.
func (m *Manager) RecordUsage(id string, latency time.Duration, tokens int, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return
	}

	now := time.Now()
	e.lastUsed = now
	m.ready.Get(id) // bump recency

	if success {
		e.stats.SuccessCount++
	} else {
		e.stats.ErrorCount++
	}
	e.stats.LastInferenceAt = now

	n := float64(e.stats.SuccessCount + e.stats.ErrorCount)
	latencyMS := float64(latency.Milliseconds())
	e.stats.AvgInferenceMS = runningAverage(e.stats.AvgInferenceMS, latencyMS, n)

	if latency > 0 {
		tps := float64(tokens) / latency.Seconds()
		e.stats.TokensPerSecond = runningAverage(e.stats.TokensPerSecond, tps, n)
	}
}

func runningAverage(prevAvg, sample, n float64) float64 {
	if n <= 1 {
		return sample
	}
	return prevAvg + (sample-prevAvg)/n
}

// Backend returns the live backend for a Ready model, or nil otherwise.
func (m *Manager) Backend(id string) Backend {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok || e.state != StateReady {
		return nil
	}
	return e.backend
}

// OptimizeMemory is the advisory sweep named in §4.3: it evicts any Ready
// model whose last_used predates maxIdle.
func (m *Manager) OptimizeMemory(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var stale []string
	for id, e := range m.entries {
		if e.state == StateReady && e.lastUsed.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	for _, id := range stale {
		m.evictLocked(id, "optimize_memory: "+id+" idle beyond threshold")
	}
	m.mu.Unlock()

	return len(stale)
}
