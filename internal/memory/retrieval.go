package memory

import (
	"strings"
	"time"
)

// matches reports whether m satisfies every set field of q (AND semantics),
// per §4.6.2.
func (q Query) matches(m Memory) bool {
	if len(q.Layers) > 0 && !containsLayer(q.Layers, m.Layer) {
		return false
	}
	if q.AgentID != "" && m.Metadata.AgentID != q.AgentID {
		return false
	}
	if !q.DateFrom.IsZero() && m.CreatedAt.Before(q.DateFrom) {
		return false
	}
	if !q.DateTo.IsZero() && m.CreatedAt.After(q.DateTo) {
		return false
	}
	if q.ImportanceFloor > 0 && m.ImportanceScore < q.ImportanceFloor {
		return false
	}
	if len(q.Tags) > 0 && !containsAll(m.Tags, q.Tags) {
		return false
	}
	if len(q.Entities) > 0 && !hasAnyEntity(m.Metadata.Entities, q.Entities) {
		return false
	}
	if q.TextQuery != "" && !textMatches(q.TextQuery, m.Content) {
		return false
	}
	return true
}

// textMatches is "exact substring OR >= 50% of query words present in
// content", per §4.6.2.
func textMatches(query, content string) bool {
	lowerQuery := strings.ToLower(query)
	lowerContent := strings.ToLower(content)
	if strings.Contains(lowerContent, lowerQuery) {
		return true
	}
	queryWords := strings.Fields(lowerQuery)
	if len(queryWords) == 0 {
		return false
	}
	contentWords := wordSet(lowerContent)
	var hits int
	for _, w := range queryWords {
		if contentWords[w] {
			hits++
		}
	}
	return float64(hits)/float64(len(queryWords)) >= 0.5
}

// relevance scores a candidate against query per §4.6.2's formula:
// importance*0.3 + recency*0.2 + frequency*0.1 + text_relevance*0.4 + layer_bias.
func relevance(m Memory, q Query, now time.Time) float64 {
	textRelevance := 0.0
	if q.TextQuery != "" {
		textRelevance = textRelevanceScore(q.TextQuery, m.Content)
	}
	layerBias := float64(m.Layer.RetentionPriority()) / 100.0

	return m.ImportanceScore*0.3 + m.RecencyScore(now)*0.2 + m.FrequencyScore()*0.1 +
		textRelevance*0.4 + layerBias
}

func textRelevanceScore(query, content string) float64 {
	lowerQuery := strings.ToLower(query)
	lowerContent := strings.ToLower(content)
	if strings.Contains(lowerContent, lowerQuery) {
		return 1.0
	}
	return jaccard(wordSet(lowerQuery), wordSet(lowerContent))
}

// Semantic search threshold: cosine similarity >= 0.5, per §4.6.2. The
// vector index's Search applies this itself; Store passes it through as
// SearchQuery.Threshold rather than re-deriving cosine similarity here.
const semanticSimilarityThreshold = 0.5

func wordSet(s string) map[string]bool {
	words := strings.Fields(s)
	set := make(map[string]bool, len(words))
	for _, w := range words {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	var intersection int
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func containsLayer(layers []Layer, l Layer) bool {
	for _, x := range layers {
		if x == l {
			return true
		}
	}
	return false
}

func containsAll(have, want []string) bool {
	haveSet := make(map[string]bool, len(have))
	for _, t := range have {
		haveSet[t] = true
	}
	for _, w := range want {
		if !haveSet[w] {
			return false
		}
	}
	return true
}

func hasAnyEntity(entities []Entity, names []string) bool {
	for _, e := range entities {
		for _, n := range names {
			if strings.EqualFold(e.Name, n) {
				return true
			}
		}
	}
	return false
}
