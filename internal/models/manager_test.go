package models

import (
	"context"
	"testing"
	"time"
)

type fakeBackend struct {
	closed bool
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, params GenParams) (GenResult, error) {
	return GenResult{Content: "ok", TokensOut: 1, FinishReason: "completed"}, nil
}

func (f *fakeBackend) Close(ctx context.Context) error {
	f.closed = true
	return nil
}

type fakeLoader struct {
	fail map[string]bool
}

func (f *fakeLoader) Load(ctx context.Context, d Descriptor) (Backend, error) {
	if f.fail[d.ID] {
		return nil, context.DeadlineExceeded
	}
	return &fakeBackend{}, nil
}

func TestLoadTransitionsToReady(t *testing.T) {
	m := NewManager(&fakeLoader{}, 8192, nil)
	d := Descriptor{ID: "a", RequiredRAMMB: 1024}
	if err := m.Load(context.Background(), d); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Status("a").State != StateReady {
		t.Errorf("expected Ready, got %s", m.Status("a").State)
	}
}

func TestLoadIsIdempotentWhenReady(t *testing.T) {
	loader := &fakeLoader{}
	m := NewManager(loader, 8192, nil)
	d := Descriptor{ID: "a", RequiredRAMMB: 1024}
	_ = m.Load(context.Background(), d)
	if err := m.Load(context.Background(), d); err != nil {
		t.Fatalf("second Load should be a no-op, got %v", err)
	}
}

func TestLoadFailurePutsModelInError(t *testing.T) {
	loader := &fakeLoader{fail: map[string]bool{"bad": true}}
	m := NewManager(loader, 8192, nil)
	d := Descriptor{ID: "bad", RequiredRAMMB: 1024}
	if err := m.Load(context.Background(), d); err == nil {
		t.Fatal("expected error from failing loader")
	}
	if m.Status("bad").State != StateError {
		t.Errorf("expected Error state, got %s", m.Status("bad").State)
	}
}

func TestAdmissionEvictsLeastRecentlyUsed(t *testing.T) {
	m := NewManager(&fakeLoader{}, 1500, nil)
	ctx := context.Background()

	if err := m.Load(ctx, Descriptor{ID: "old", RequiredRAMMB: 1000}); err != nil {
		t.Fatalf("load old: %v", err)
	}
	m.RecordUsage("old", time.Millisecond, 1, true)

	if err := m.Load(ctx, Descriptor{ID: "new", RequiredRAMMB: 1000}); err != nil {
		t.Fatalf("load new: %v", err)
	}

	if m.Status("old").State != StateAbsent {
		t.Errorf("expected old model evicted, got %s", m.Status("old").State)
	}
	if m.Status("new").State != StateReady {
		t.Errorf("expected new model ready, got %s", m.Status("new").State)
	}
}

func TestLoadSucceedsForModelOverHalfBudget(t *testing.T) {
	// A 3GB model against a 4GB budget must not be double-counted against
	// its own admission: available should be the full 4GB, not 4GB minus
	// the 3GB the model itself is about to occupy.
	m := NewManager(&fakeLoader{}, 4096, nil)
	if err := m.Load(context.Background(), Descriptor{ID: "big", RequiredRAMMB: 3072}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Status("big").State != StateReady {
		t.Errorf("expected Ready, got %s", m.Status("big").State)
	}
}

func TestLoadEvictsToAdmitModelOverHalfBudget(t *testing.T) {
	m := NewManager(&fakeLoader{}, 4096, nil)
	ctx := context.Background()

	if err := m.Load(ctx, Descriptor{ID: "small", RequiredRAMMB: 2048}); err != nil {
		t.Fatalf("load small: %v", err)
	}
	m.RecordUsage("small", time.Millisecond, 1, true)

	if err := m.Load(ctx, Descriptor{ID: "big", RequiredRAMMB: 3072}); err != nil {
		t.Fatalf("load big: %v", err)
	}
	if m.Status("small").State != StateAbsent {
		t.Errorf("expected small evicted, got %s", m.Status("small").State)
	}
	if m.Status("big").State != StateReady {
		t.Errorf("expected big ready, got %s", m.Status("big").State)
	}
}

func TestUnloadReturnsModelToAbsent(t *testing.T) {
	m := NewManager(&fakeLoader{}, 8192, nil)
	ctx := context.Background()
	_ = m.Load(ctx, Descriptor{ID: "a", RequiredRAMMB: 1024})
	if err := m.Unload(ctx, "a"); err != nil {
		t.Fatalf("Unload: %v", err)
	}
	if m.Status("a").State != StateAbsent {
		t.Errorf("expected Absent after unload, got %s", m.Status("a").State)
	}
}

func TestRecordUsageUpdatesStats(t *testing.T) {
	m := NewManager(&fakeLoader{}, 8192, nil)
	ctx := context.Background()
	_ = m.Load(ctx, Descriptor{ID: "a", RequiredRAMMB: 1024})

	m.RecordUsage("a", 100*time.Millisecond, 50, true)
	m.RecordUsage("a", 200*time.Millisecond, 50, false)

	snap := m.Status("a")
	if snap.Stats.SuccessCount != 1 || snap.Stats.ErrorCount != 1 {
		t.Errorf("expected 1 success and 1 error, got %+v", snap.Stats)
	}
}

func TestOptimizeMemoryEvictsStaleModels(t *testing.T) {
	m := NewManager(&fakeLoader{}, 8192, nil)
	ctx := context.Background()
	_ = m.Load(ctx, Descriptor{ID: "a", RequiredRAMMB: 1024})

	m.mu.Lock()
	m.entries["a"].lastUsed = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	evicted := m.OptimizeMemory(time.Minute)
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if m.Status("a").State != StateAbsent {
		t.Errorf("expected Absent after optimize, got %s", m.Status("a").State)
	}
}
