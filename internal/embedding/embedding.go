// Package embedding implements the Embedding Service named throughout
// spec.md §1/§6: text in, a fixed-dimension float32 vector out, with a
// content-hash cache in front of the actual model call.
//
// Grounded on _examples/original_source/src/vector/embedding_engine.rs's
// model/dimension contract (truncate-then-embed, deterministic output for
// the same input) and github.com/dgraph-io/ristretto for the cache, the way
// becomeliminal-nim-go-sdk pairs onnxruntime inference with a ristretto
// front cache.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/dgraph-io/ristretto"

	"github.com/localmind/assistant/internal/corerr"
)

// Model describes the embedding backend's fixed shape.
type Model struct {
	Name              string
	Dimension         int
	MaxSequenceTokens int
}

// Backend is the minimal contract an embedding runtime must satisfy.
// ONNXBackend (onnx.go) wraps onnxruntime_go + a sugarme/tokenizer tokenizer;
// tests use a stub backend instead.
type Backend interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() Model
}

// Service is the Embedding Service: a cached facade over Backend.
type Service struct {
	backend Backend
	cache   *ristretto.Cache
}

// cacheCost is a fixed per-entry cost; embeddings are small, fixed-size
// float32 slices so a flat cost keeps ristretto's cost accounting simple.
const cacheCost = 1

// NewService wraps backend with a content-hash cache. cacheSizeMB sizing
// follows performance.cache_size_mb from config.
func NewService(backend Backend, cacheSizeMB int) (*Service, error) {
	if cacheSizeMB <= 0 {
		cacheSizeMB = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(cacheSizeMB) * 1000,
		MaxCost:     int64(cacheSizeMB) * 1000,
		BufferItems: 64,
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "create embedding cache", err)
	}
	return &Service{backend: backend, cache: cache}, nil
}

// Embed returns text's embedding vector, serving from cache when the exact
// text was embedded before.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := hashText(text)
	if cached, ok := s.cache.Get(key); ok {
		return cached.([]float32), nil
	}

	vec, err := s.backend.Embed(ctx, text)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "embed text", err)
	}

	s.cache.Set(key, vec, cacheCost)
	s.cache.Wait()
	return vec, nil
}

// EmbedBatch embeds each text independently, preserving order. A failure on
// any item aborts the batch — partial results are not returned, matching
// the cancellation semantics described in §5 (no partial commit).
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := s.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Dimension reports the backend's fixed vector size.
func (s *Service) Dimension() int {
	return s.backend.Model().Dimension
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(text)))
	return hex.EncodeToString(sum[:])
}
