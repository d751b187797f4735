// Package memory implements the Hierarchical Memory Store (§4.6): six
// retention layers, eleven-signal importance scoring, layer migration, and
// scheduled consolidation. Rewritten in place from the teacher's
// internal/memory package, which kept agent/recon/task state in SQLite; the
// SQLite-with-migrations pattern (db.go) survives unchanged, the schema and
// every operation above it do not.
package memory

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Layer is one of the six retention tiers of §4.6.
type Layer string

const (
	LayerWorking    Layer = "working"
	LayerShortTerm  Layer = "short_term"
	LayerLongTerm   Layer = "long_term"
	LayerEpisodic   Layer = "episodic"
	LayerSemantic   Layer = "semantic"
	LayerReflective Layer = "reflective"
)

// Capacity is the recommended cap for a layer, per §4.6's table.
func (l Layer) Capacity() int {
	switch l {
	case LayerWorking:
		return 20
	case LayerShortTerm:
		return 100
	case LayerLongTerm:
		return 1000
	case LayerEpisodic:
		return 5000
	case LayerSemantic:
		return 10000
	case LayerReflective:
		return 500
	default:
		return 100
	}
}

// RetentionPriority is the layer's weight in memory_strength, per §4.6's table.
func (l Layer) RetentionPriority() int {
	switch l {
	case LayerWorking:
		return 10
	case LayerShortTerm:
		return 5
	case LayerLongTerm:
		return 9
	case LayerEpisodic:
		return 6
	case LayerSemantic:
		return 8
	case LayerReflective:
		return 7
	default:
		return 5
	}
}

// baseImportance is the layer component used by §4.6.1's scorer.
func (l Layer) baseImportance() float64 {
	switch l {
	case LayerWorking:
		return 0.1
	case LayerShortTerm:
		return 0.2
	case LayerLongTerm:
		return 0.4
	case LayerEpisodic:
		return 0.3
	case LayerSemantic:
		return 0.35
	case LayerReflective:
		return 0.5
	default:
		return 0.2
	}
}

// Source names how a memory came to exist.
type Source string

const (
	SourceUserInput         Source = "user_input"
	SourceAgentResponse      Source = "agent_response"
	SourceSystemInsight      Source = "system_insight"
	SourceExternalImport     Source = "external_import"
	SourceReflection         Source = "reflection"
	SourceDocumentExtraction Source = "document_extraction"
	SourceConsolidation      Source = "consolidation"
)

func (s Source) baseImportance() float64 {
	switch s {
	case SourceUserInput:
		return 0.3
	case SourceAgentResponse:
		return 0.2
	case SourceSystemInsight:
		return 0.4
	case SourceExternalImport:
		return 0.3
	case SourceReflection:
		return 0.5
	case SourceDocumentExtraction:
		return 0.4
	case SourceConsolidation:
		return 0.6
	default:
		return 0.2
	}
}

// VerificationStatus tracks how much a memory's accuracy is trusted.
type VerificationStatus string

const (
	VerificationUnverified VerificationStatus = "unverified"
	VerificationVerified   VerificationStatus = "verified"
	VerificationDisputed   VerificationStatus = "disputed"
	VerificationDeprecated VerificationStatus = "deprecated"
)

// EntityType classifies a named entity extracted from memory content.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityPlace        EntityType = "place"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityEvent        EntityType = "event"
	EntityConcept      EntityType = "concept"
	EntityProduct      EntityType = "product"
	EntityTechnology   EntityType = "technology"
	EntityOther        EntityType = "other"
)

func (e EntityType) weight() float64 {
	switch e {
	case EntityPerson:
		return 0.7
	case EntityPlace:
		return 0.5
	case EntityOrganization:
		return 0.6
	case EntityDate:
		return 0.8
	case EntityEvent:
		return 0.7
	case EntityConcept:
		return 0.5
	case EntityProduct:
		return 0.4
	case EntityTechnology:
		return 0.5
	default:
		return 0.3
	}
}

// Entity is one named entity found in a memory's content.
type Entity struct {
	Name       string     `json:"name"`
	Type       EntityType `json:"type"`
	Confidence float64    `json:"confidence"`
}

// Sentiment is a coarse sentiment read of a memory's content.
type Sentiment struct {
	Polarity   float64 `json:"polarity"`   // -1..1
	Magnitude  float64 `json:"magnitude"`  // 0..1
	Confidence float64 `json:"confidence"` // 0..1
}

// Metadata carries every per-memory attribute that isn't content itself.
type Metadata struct {
	Source        Source                 `json:"source"`
	AgentID       string                 `json:"agent_id"`
	SessionID     string                 `json:"session_id,omitempty"`
	Topics        []string               `json:"topics,omitempty"`
	Entities      []Entity               `json:"entities,omitempty"`
	Sentiment     *Sentiment             `json:"sentiment,omitempty"`
	Verification  VerificationStatus     `json:"verification_status"`
	CustomFields  map[string]interface{} `json:"custom_fields,omitempty"`
}

// Memory is one stored unit in the hierarchy.
type Memory struct {
	ID              string    `json:"id"`
	Layer           Layer     `json:"layer"`
	Content         string    `json:"content"`
	Metadata        Metadata  `json:"metadata"`
	ImportanceScore float64   `json:"importance_score"`
	AccessCount     int       `json:"access_count"`
	LastAccessed    time.Time `json:"last_accessed"`
	CreatedAt       time.Time `json:"created_at"`
	Associations    []string  `json:"associations,omitempty"`
	Tags            []string  `json:"tags,omitempty"`
}

// RecencyScore is exponential decay with a 24-hour half-life.
func (m Memory) RecencyScore(now time.Time) float64 {
	ageHours := now.Sub(m.CreatedAt).Hours()
	return math.Pow(0.5, ageHours/24.0)
}

// FrequencyScore is a log-scaled read of access count.
func (m Memory) FrequencyScore() float64 {
	return math.Log(float64(m.AccessCount)+1.0) / 10.0
}

// Strength is memory_strength from §4.6.3: the blended retention signal
// layer migration and consolidation both key off of.
func (m Memory) Strength(now time.Time) float64 {
	return 0.4*m.ImportanceScore + 0.3*m.RecencyScore(now) + 0.2*m.FrequencyScore() +
		0.1*(float64(m.Layer.RetentionPriority())/10.0)
}

func newMemory(content string, layer Layer, meta Metadata) Memory {
	now := time.Now()
	if meta.Verification == "" {
		meta.Verification = VerificationUnverified
	}
	return Memory{
		ID:              uuid.NewString(),
		Layer:           layer,
		Content:         content,
		Metadata:        meta,
		ImportanceScore: 0.5,
		CreatedAt:       now,
		LastAccessed:    now,
	}
}

// AssociationType names how two memories relate.
type AssociationType string

const (
	AssociationTemporal     AssociationType = "temporal"
	AssociationSemantic     AssociationType = "semantic"
	AssociationCausal       AssociationType = "causal"
	AssociationContradictory AssociationType = "contradictory"
	AssociationSupporting   AssociationType = "supporting"
	AssociationTopical      AssociationType = "topical_relation"
	AssociationUserDefined  AssociationType = "user_defined"
)

// Association is a bidirectional link between two memories.
type Association struct {
	ID        string          `json:"id"`
	MemoryA   string          `json:"memory_a"`
	MemoryB   string          `json:"memory_b"`
	Type      AssociationType `json:"type"`
	Strength  float64         `json:"strength"`
	CreatedAt time.Time       `json:"created_at"`
}

// InsightType names the kind of pattern a reflection pass discovered.
type InsightType string

const (
	InsightPattern      InsightType = "pattern"
	InsightPreference   InsightType = "preference"
	InsightTheme        InsightType = "theme"
	InsightRelationship InsightType = "relationship"
	InsightContradiction InsightType = "contradiction"
)

// Insight is an AI-generated observation produced by consolidation's
// reflect() pass and stored as a Reflective-layer memory.
type Insight struct {
	ID                string      `json:"id"`
	Type              InsightType `json:"type"`
	Content           string      `json:"content"`
	Confidence        float64     `json:"confidence"`
	SupportingMemories []string   `json:"supporting_memories"`
	CreatedAt         time.Time   `json:"created_at"`
	AgentID           string      `json:"agent_id"`
}

// ConsolidationStrategy is one of the five strategies §4.6.4 chooses among.
type ConsolidationStrategy string

const (
	StrategyPreserve    ConsolidationStrategy = "preserve"
	StrategyMerge       ConsolidationStrategy = "merge"
	StrategySummarise   ConsolidationStrategy = "summarise"
	StrategyArchive     ConsolidationStrategy = "archive"
	StrategyDeduplicate ConsolidationStrategy = "deduplicate"
)

// ConsolidationReport is the outcome of one consolidation sweep.
type ConsolidationReport struct {
	MemoriesProcessed    int           `json:"memories_processed"`
	MemoriesConsolidated int           `json:"memories_consolidated"`
	MemoriesArchived     int           `json:"memories_archived"`
	MemoriesDeleted      int           `json:"memories_deleted"`
	NewInsights          []Memory      `json:"-"`
	ProcessingTime        time.Duration `json:"processing_time_ms"`
	SpaceSavedBytes      int           `json:"space_saved_bytes"`
}

// Query is the filter set §4.6.2 retrieval accepts; every set field is
// AND-ed together.
type Query struct {
	TextQuery          string
	SemanticQuery      []float32
	Layers             []Layer
	AgentID            string
	DateFrom, DateTo    time.Time
	ImportanceFloor    float64
	Tags               []string
	Entities           []string
	Limit, Offset      int
}

// Update is a partial-edit patch applied via Store.Update.
type Update struct {
	Content      *string
	Tags         *[]string
	Associations *[]string
	CustomFields map[string]interface{}
}
