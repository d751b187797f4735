package memory

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localmind/assistant/internal/config"
	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/vectorindex"
)

// memoryCollection is the single vector index collection every memory's
// embedding lives in, keyed by the record's id.
const memoryCollection = "memories"

// Embedder is the minimal contract Store needs from the embedding service,
// satisfied by *embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Store is the Hierarchical Memory Store (§4.6): SQLite holds the record of
// truth for every Memory and Association, the vector index holds each
// memory's embedding for semantic retrieval, and ImportanceScorer computes
// and re-scores importance as memories are stored, accessed, and rated.
type Store struct {
	db       *store
	scorer   *ImportanceScorer
	index    vectorindex.Index
	embedder Embedder
	cfg      config.MemoryConfig

	mu sync.Mutex
}

// Open builds a Store backed by a SQLite file at dbPath and the given
// vector index and embedder. The embedder may be nil, which disables
// semantic indexing but leaves keyword/filter retrieval fully functional.
func Open(dbPath string, cfg config.MemoryConfig, index vectorindex.Index, embedder Embedder) (*Store, error) {
	db, err := openStore(dbPath)
	if err != nil {
		return nil, err
	}

	scorer := NewImportanceScorer()
	if weights, err := db.loadKeywordWeights(); err == nil && len(weights) > 0 {
		scorer.LoadKeywordWeights(weights)
	}

	st := &Store{db: db, scorer: scorer, index: index, embedder: embedder, cfg: cfg}

	if index != nil {
		dimension := 384
		if embedder != nil {
			dimension = embedder.Dimension()
		}
		if err := index.CreateCollection(context.Background(), vectorindex.CollectionSchema{
			Name:           memoryCollection,
			VectorSize:     dimension,
			DistanceMetric: vectorindex.DistanceCosine,
		}); err != nil {
			log.Printf("[MEMORY] collection create (likely already exists): %v", err)
		}
	}

	return st, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Remember stores new content as a Memory: scores its importance, assigns a
// layer, persists it, and indexes its embedding when an embedder is
// configured.
func (s *Store) Remember(ctx context.Context, content string, meta Metadata) (Memory, error) {
	if content == "" {
		return Memory{}, corerr.New(corerr.Validation, "memory content must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m := newMemory(content, LayerWorking, meta)
	now := time.Now()
	m.ImportanceScore = s.scorer.Score(m, now)
	m.Layer = targetLayer(m, now)

	if err := s.db.insertMemory(m); err != nil {
		return Memory{}, corerr.Wrap(corerr.BackendFailure, "persist memory", err)
	}

	if err := s.upsertVector(ctx, m); err != nil {
		log.Printf("[MEMORY] embedding index failed for %s: %v", m.ID, err)
	}

	s.enforceCapacity(ctx, m.Layer)

	return m, nil
}

// enforceCapacity forgets the weakest memories in layer until it is at or
// under its configured cap, per §4.6.3's "after any mutation, if the target
// layer exceeds its cap by k, the k memories of lowest memory_strength are
// forgotten." Callers must hold s.mu.
func (s *Store) enforceCapacity(ctx context.Context, layer Layer) {
	limit := layer.Capacity()
	members, err := s.db.listMemoriesByLayer(string(layer))
	if err != nil {
		log.Printf("[MEMORY] capacity check failed for %s: %v", layer, err)
		return
	}
	if len(members) <= limit {
		return
	}

	now := time.Now()
	sort.Slice(members, func(i, j int) bool {
		return members[i].Strength(now) < members[j].Strength(now)
	})

	for _, m := range members[:len(members)-limit] {
		if err := s.db.deleteMemory(m.ID); err != nil {
			log.Printf("[MEMORY] capacity eviction failed for %s: %v", m.ID, err)
			continue
		}
		if s.index != nil {
			if err := s.index.Delete(ctx, memoryCollection, m.ID); err != nil {
				log.Printf("[MEMORY] capacity eviction vector delete failed for %s: %v", m.ID, err)
			}
		}
	}
}

func (s *Store) upsertVector(ctx context.Context, m Memory) error {
	if s.index == nil || s.embedder == nil {
		return nil
	}
	vec, err := s.embedder.Embed(ctx, m.Content)
	if err != nil {
		return err
	}
	return s.index.Upsert(ctx, memoryCollection, vectorindex.Point{
		ID:     m.ID,
		Vector: vec,
		Payload: map[string]interface{}{
			"layer":    string(m.Layer),
			"agent_id": m.Metadata.AgentID,
		},
	})
}

// Get retrieves a single memory by id and bumps its access count.
func (s *Store) Get(ctx context.Context, id string) (Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.db.getMemory(id)
	if err != nil {
		return Memory{}, corerr.Wrap(corerr.NotFound, "memory "+id, err)
	}

	m.AccessCount++
	m.LastAccessed = time.Now()
	m.Layer = targetLayer(m, m.LastAccessed)
	if err := s.db.updateMemory(m); err != nil {
		return Memory{}, corerr.Wrap(corerr.BackendFailure, "record access for "+id, err)
	}
	return m, nil
}

// Update applies a partial edit to a stored memory.
func (s *Store) Update(ctx context.Context, id string, patch Update) (Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.db.getMemory(id)
	if err != nil {
		return Memory{}, corerr.Wrap(corerr.NotFound, "memory "+id, err)
	}

	if patch.Content != nil {
		m.Content = *patch.Content
	}
	if patch.Tags != nil {
		m.Tags = *patch.Tags
	}
	if patch.Associations != nil {
		m.Associations = *patch.Associations
	}
	if patch.CustomFields != nil {
		if m.Metadata.CustomFields == nil {
			m.Metadata.CustomFields = make(map[string]interface{}, len(patch.CustomFields))
		}
		for k, v := range patch.CustomFields {
			m.Metadata.CustomFields[k] = v
		}
	}

	now := time.Now()
	m.ImportanceScore = s.scorer.Score(m, now)
	m.Layer = targetLayer(m, now)

	if err := s.db.updateMemory(m); err != nil {
		return Memory{}, corerr.Wrap(corerr.BackendFailure, "update memory "+id, err)
	}
	if patch.Content != nil {
		if err := s.upsertVector(ctx, m); err != nil {
			log.Printf("[MEMORY] re-embedding failed for %s: %v", m.ID, err)
		}
	}
	s.enforceCapacity(ctx, m.Layer)
	return m, nil
}

// Forget permanently deletes a memory and its vector, associations, and
// insight references.
func (s *Store) Forget(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.deleteMemory(id); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "forget memory "+id, err)
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, memoryCollection, id); err != nil {
			log.Printf("[MEMORY] vector delete failed for %s: %v", id, err)
		}
	}
	return nil
}

// Associate links two existing memories.
func (s *Store) Associate(ctx context.Context, memoryA, memoryB string, kind AssociationType, strength float64) (Association, error) {
	a := Association{
		ID:        uuid.NewString(),
		MemoryA:   memoryA,
		MemoryB:   memoryB,
		Type:      kind,
		Strength:  clamp01(strength),
		CreatedAt: time.Now(),
	}
	if err := s.db.insertAssociation(a); err != nil {
		return Association{}, corerr.Wrap(corerr.BackendFailure, "associate memories", err)
	}
	return a, nil
}

// Rate applies user feedback to a memory's importance score, per §4.6.1.
func (s *Store) Rate(ctx context.Context, id string, rating float64) (Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := s.db.getMemory(id)
	if err != nil {
		return Memory{}, corerr.Wrap(corerr.NotFound, "memory "+id, err)
	}

	m.ImportanceScore = s.scorer.ApplyFeedback(m, clamp01(rating))
	m.Layer = targetLayer(m, time.Now())
	if err := s.db.updateMemory(m); err != nil {
		return Memory{}, corerr.Wrap(corerr.BackendFailure, "rate memory "+id, err)
	}
	if err := s.db.saveKeywordWeights(s.scorer.KeywordWeights()); err != nil {
		log.Printf("[MEMORY] keyword weight persistence failed: %v", err)
	}
	s.enforceCapacity(ctx, m.Layer)
	return m, nil
}

// Recall runs a retrieval Query against the store, per §4.6.2. When
// q.SemanticQuery is set and an index is configured, candidates are drawn
// from a nearest-neighbour search (thresholded at 0.5 cosine similarity);
// otherwise every memory is scanned. Either way, AND-ed filters and the
// relevance formula are applied identically before the result is sorted and
// paginated.
func (s *Store) Recall(ctx context.Context, q Query) ([]Memory, error) {
	candidates, err := s.candidatesFor(ctx, q)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	matched := make([]Memory, 0, len(candidates))
	for _, m := range candidates {
		if q.matches(m) {
			matched = append(matched, m)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return relevance(matched[i], q, now) > relevance(matched[j], q, now)
	})

	offset := q.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	limit := q.Limit
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *Store) candidatesFor(ctx context.Context, q Query) ([]Memory, error) {
	if len(q.SemanticQuery) == 0 || s.index == nil {
		return s.db.listMemories()
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}
	results, err := s.index.Search(ctx, memoryCollection, vectorindex.SearchQuery{
		Vector:    q.SemanticQuery,
		Limit:     limit * 4,
		Threshold: semanticSimilarityThreshold,
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "semantic search", err)
	}

	out := make([]Memory, 0, len(results))
	for _, r := range results {
		m, err := s.db.getMemory(r.ID)
		if err != nil {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Restore re-inserts a batch of previously exported memories, re-indexing
// each one's embedding if an embedder is configured. Existing memories with
// the same id are overwritten.
func (s *Store) Restore(ctx context.Context, memories []Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, m := range memories {
		if err := s.db.insertMemory(m); err != nil {
			if err := s.db.updateMemory(m); err != nil {
				return corerr.Wrap(corerr.BackendFailure, "restore memory "+m.ID, err)
			}
		}
		if err := s.upsertVector(ctx, m); err != nil {
			log.Printf("[MEMORY] embedding index failed for %s: %v", m.ID, err)
		}
	}
	return nil
}

// All returns every memory currently on record, across every layer and
// agent, for bulk export. Embeddings are not included — Restore re-embeds
// each memory as it re-inserts it, if an embedder is configured.
func (s *Store) All(ctx context.Context) ([]Memory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all, err := s.db.listMemories()
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "list memories", err)
	}
	return all, nil
}

// Consolidate runs one sweep of §4.6.4's consolidation pipeline over every
// memory belonging to agentID (all memories when agentID is empty): group by
// pairwise similarity, pick and apply a strategy per group, run reflect()
// over the whole batch to mine insights, and finally re-evaluate every
// surviving memory's target layer.
func (s *Store) Consolidate(ctx context.Context, agentID string) (ConsolidationReport, error) {
	start := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.db.listMemories()
	if err != nil {
		return ConsolidationReport{}, corerr.Wrap(corerr.BackendFailure, "list memories for consolidation", err)
	}

	var batch []Memory
	for _, m := range all {
		if agentID == "" || m.Metadata.AgentID == agentID {
			batch = append(batch, m)
		}
	}
	if len(batch) == 0 {
		return ConsolidationReport{}, nil
	}

	threshold := s.cfg.ConsolidationThreshold
	if threshold <= 0 {
		threshold = similarityGroupThreshold
	}
	groups := groupSimilar(batch, threshold)

	report := ConsolidationReport{MemoriesProcessed: len(batch)}
	now := time.Now()
	var survivors []Memory

	for _, group := range groups {
		strategy := chooseStrategy(group, now)
		kept, deleted := applyStrategy(strategy, group, now)

		for _, m := range deleted {
			if err := s.db.deleteMemory(m.ID); err != nil {
				log.Printf("[MEMORY] consolidation delete failed for %s: %v", m.ID, err)
				continue
			}
			if s.index != nil {
				if err := s.index.Delete(ctx, memoryCollection, m.ID); err != nil {
					log.Printf("[MEMORY] consolidation vector delete failed for %s: %v", m.ID, err)
				}
			}
			report.MemoriesDeleted++
			report.SpaceSavedBytes += len(m.Content)
		}

		if strategy == StrategyArchive {
			report.MemoriesArchived += len(kept)
		}
		if len(group) > 1 {
			report.MemoriesConsolidated += len(group)
		}

		for _, m := range kept {
			isNew := len(group) > 1 && (strategy == StrategyMerge || strategy == StrategySummarise)
			if isNew {
				if err := s.db.insertMemory(m); err != nil {
					log.Printf("[MEMORY] consolidation insert failed for %s: %v", m.ID, err)
					continue
				}
				if err := s.upsertVector(ctx, m); err != nil {
					log.Printf("[MEMORY] consolidation re-embed failed for %s: %v", m.ID, err)
				}
				for _, old := range group {
					if err := s.db.deleteMemory(old.ID); err != nil {
						continue
					}
					if s.index != nil {
						_ = s.index.Delete(ctx, memoryCollection, old.ID)
					}
				}
			} else if err := s.db.updateMemory(m); err != nil {
				log.Printf("[MEMORY] consolidation update failed for %s: %v", m.ID, err)
				continue
			}
			survivors = append(survivors, m)
		}
	}

	insights := reflect(agentID, batch, now)
	for _, insight := range insights {
		insightMemory := newMemory(insight.Content, LayerReflective, Metadata{
			Source:  SourceReflection,
			AgentID: agentID,
		})
		insight.ID = insightMemory.ID
		insightMemory.ImportanceScore = insight.Confidence
		if err := s.db.insertMemory(insightMemory); err != nil {
			log.Printf("[MEMORY] insight memory insert failed: %v", err)
			continue
		}
		if err := s.db.insertInsight(insight, insightMemory.ID); err != nil {
			log.Printf("[MEMORY] insight record insert failed: %v", err)
		}
		report.NewInsights = append(report.NewInsights, insightMemory)
	}

	for _, m := range survivors {
		newLayer := targetLayer(m, now)
		if newLayer != m.Layer {
			m.Layer = newLayer
			if err := s.db.updateMemory(m); err != nil {
				log.Printf("[MEMORY] layer re-evaluation failed for %s: %v", m.ID, err)
			}
		}
	}

	for _, layer := range allLayers {
		s.enforceCapacity(ctx, layer)
	}

	report.ProcessingTime = time.Since(start)
	return report, nil
}

// allLayers is every retention tier, walked by Consolidate to enforce each
// layer's cap after migration may have shifted members between them.
var allLayers = []Layer{
	LayerWorking, LayerShortTerm, LayerLongTerm, LayerEpisodic, LayerSemantic, LayerReflective,
}
