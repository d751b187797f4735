package embedding

import (
	"context"
	"testing"
)

type stubBackend struct {
	calls int
	dim   int
}

func (s *stubBackend) Model() Model {
	return Model{Name: "stub", Dimension: s.dim, MaxSequenceTokens: 128}
}

func (s *stubBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	s.calls++
	vec := make([]float32, s.dim)
	for i := range vec {
		vec[i] = float32(len(text)%7) / 7.0
	}
	return vec, nil
}

func TestEmbedCachesByContent(t *testing.T) {
	backend := &stubBackend{dim: 8}
	svc, err := NewService(backend, 1)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ctx := context.Background()
	v1, err := svc.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	v2, err := svc.Embed(ctx, "hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if backend.calls != 1 {
		t.Errorf("expected 1 backend call for repeated text, got %d", backend.calls)
	}
	if len(v1) != len(v2) {
		t.Errorf("cached vector length mismatch")
	}
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	backend := &stubBackend{dim: 4}
	svc, err := NewService(backend, 1)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	texts := []string{"a", "bb", "ccc"}
	vecs, err := svc.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d vectors, got %d", len(texts), len(vecs))
	}
}

func TestDimensionReflectsBackend(t *testing.T) {
	backend := &stubBackend{dim: 384}
	svc, err := NewService(backend, 1)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	if svc.Dimension() != 384 {
		t.Errorf("expected dimension 384, got %d", svc.Dimension())
	}
}
