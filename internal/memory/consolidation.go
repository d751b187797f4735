package memory

import (
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
)

// similarityGroupThreshold is §4.6.4's pairwise-grouping cutoff.
const similarityGroupThreshold = 0.8

// pairSimilarity averages topic-Jaccard, entity-Jaccard, content-word-Jaccard,
// a same-agent bonus, and time-proximity into one [0,1] score, per §4.6.4.
func pairSimilarity(a, b Memory) float64 {
	topicSim := jaccard(stringSet(a.Metadata.Topics), stringSet(b.Metadata.Topics))
	entitySim := jaccard(entityNameSet(a.Metadata.Entities), entityNameSet(b.Metadata.Entities))
	contentSim := jaccard(wordSet(strings.ToLower(a.Content)), wordSet(strings.ToLower(b.Content)))

	sameAgent := 0.0
	if a.Metadata.AgentID != "" && a.Metadata.AgentID == b.Metadata.AgentID {
		sameAgent = 1.0
	}

	hoursApart := a.CreatedAt.Sub(b.CreatedAt).Hours()
	if hoursApart < 0 {
		hoursApart = -hoursApart
	}
	// Proximity decays to 0 past a week apart.
	timeProximity := 1.0 - hoursApart/(24*7)
	if timeProximity < 0 {
		timeProximity = 0
	}

	return (topicSim + entitySim + contentSim + sameAgent + timeProximity) / 5.0
}

// groupSimilar partitions memories into clusters whose every member is
// pairwise similar to at least one other member above the threshold
// (union-find over the pair graph).
func groupSimilar(memories []Memory, threshold float64) [][]Memory {
	n := len(memories)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(x, y int) {
		rx, ry := find(x), find(y)
		if rx != ry {
			parent[rx] = ry
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if pairSimilarity(memories[i], memories[j]) >= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]Memory)
	for i, m := range memories {
		root := find(i)
		groups[root] = append(groups[root], m)
	}

	out := make([][]Memory, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}

// chooseStrategy selects one of the five §4.6.4 strategies for a group based
// on its aggregate statistics.
func chooseStrategy(group []Memory, now time.Time) ConsolidationStrategy {
	if len(group) == 1 {
		return StrategyPreserve
	}

	var totalImportance float64
	var totalAccess int
	var totalLen int
	oldestAge := 0.0
	for _, m := range group {
		totalImportance += m.ImportanceScore
		totalAccess += m.AccessCount
		totalLen += len(m.Content)
		age := now.Sub(m.CreatedAt).Hours() / 24.0
		if age > oldestAge {
			oldestAge = age
		}
	}
	avgImportance := totalImportance / float64(len(group))
	avgLen := totalLen / len(group)

	if maxPairwiseTextSimilarity(group) > 0.9 {
		return StrategyDeduplicate
	}
	if avgImportance > 0.8 {
		return StrategyPreserve
	}
	if totalAccess > 10 {
		return StrategyMerge
	}
	if avgLen > 500 {
		return StrategySummarise
	}
	if oldestAge > 30 && avgImportance < 0.3 {
		return StrategyArchive
	}
	return StrategyMerge
}

// maxPairwiseTextSimilarity is the highest Levenshtein similarity found in
// the group, per §4.6.4's "Levenshtein similarity across the group > 0.9 ->
// Deduplicate" rule.
func maxPairwiseTextSimilarity(group []Memory) float64 {
	var max float64
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sim := levenshteinSimilarity(group[i].Content, group[j].Content)
			if sim > max {
				max = sim
			}
		}
	}
	return max
}

// levenshteinSimilarity turns an edit distance into a [0,1] ratio: 1 minus
// the distance normalized by the longer string's length, so near-duplicates
// differing only by punctuation or word-form score close to 1.
func levenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

func stringSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[strings.ToLower(s)] = true
	}
	return set
}

func entityNameSet(entities []Entity) map[string]bool {
	set := make(map[string]bool, len(entities))
	for _, e := range entities {
		set[strings.ToLower(e.Name)] = true
	}
	return set
}

// applyStrategy executes a chosen strategy against a group, returning the
// memories that should remain (possibly a single merged/summarised
// replacement) and the ones to delete outright.
func applyStrategy(strategy ConsolidationStrategy, group []Memory, now time.Time) (kept []Memory, deleted []Memory) {
	switch strategy {
	case StrategyPreserve:
		return group, nil

	case StrategyArchive:
		archived := make([]Memory, len(group))
		for i, m := range group {
			m.Layer = LayerSemantic
			archived[i] = m
		}
		return archived, nil

	case StrategyDeduplicate:
		bestIdx := 0
		var totalAccess int
		for i, m := range group {
			totalAccess += m.AccessCount
			if m.ImportanceScore > group[bestIdx].ImportanceScore {
				bestIdx = i
			}
		}
		best := group[bestIdx]
		best.AccessCount = totalAccess
		rest := make([]Memory, 0, len(group)-1)
		for i, m := range group {
			if i != bestIdx {
				rest = append(rest, m)
			}
		}
		return []Memory{best}, rest

	case StrategyMerge, StrategySummarise:
		sort.Slice(group, func(i, j int) bool { return group[i].CreatedAt.Before(group[j].CreatedAt) })
		contents := make([]string, len(group))
		var totalImportance float64
		var totalAccess int
		ids := make([]string, len(group))
		for i, m := range group {
			contents[i] = m.Content
			totalImportance += m.ImportanceScore
			totalAccess += m.AccessCount
			ids[i] = m.ID
		}
		merged := newMemory(strings.Join(contents, " "), group[len(group)-1].Layer, group[0].Metadata)
		merged.Metadata.Source = SourceConsolidation
		merged.ImportanceScore = clamp01(totalImportance / float64(len(group)))
		merged.AccessCount = totalAccess
		merged.Associations = ids
		merged.Layer = targetLayer(merged, now)
		return []Memory{merged}, group

	default:
		return group, nil
	}
}

// reflect scans a consolidation batch for cross-memory patterns and emits
// Insight records. This is a deliberately lightweight heuristic pass:
// recurring topics become Theme insights, and a topic with a strong net
// sentiment becomes a Preference insight. Both are stored as Reflective
// memories by the caller.
func reflect(agentID string, memories []Memory, now time.Time) []Insight {
	topicCounts := make(map[string][]string) // topic -> supporting memory ids
	topicSentiment := make(map[string]float64)

	for _, m := range memories {
		for _, topic := range m.Metadata.Topics {
			key := strings.ToLower(topic)
			topicCounts[key] = append(topicCounts[key], m.ID)
			if m.Metadata.Sentiment != nil {
				topicSentiment[key] += m.Metadata.Sentiment.Polarity * m.Metadata.Sentiment.Magnitude
			}
		}
	}

	var insights []Insight
	for topic, ids := range topicCounts {
		if len(ids) < 3 {
			continue
		}
		insights = append(insights, Insight{
			ID:                 "",
			Type:               InsightTheme,
			Content:             "recurring topic: " + topic,
			Confidence:          minFloat(1.0, float64(len(ids))/float64(len(memories))),
			SupportingMemories: ids,
			CreatedAt:           now,
			AgentID:             agentID,
		})
		if sentiment := topicSentiment[topic]; sentiment > 0.5 {
			insights = append(insights, Insight{
				Type:               InsightPreference,
				Content:             "positive preference toward: " + topic,
				Confidence:          clamp01(sentiment),
				SupportingMemories: ids,
				CreatedAt:           now,
				AgentID:             agentID,
			})
		} else if sentiment < -0.5 {
			insights = append(insights, Insight{
				Type:               InsightPreference,
				Content:             "negative preference toward: " + topic,
				Confidence:          clamp01(-sentiment),
				SupportingMemories: ids,
				CreatedAt:           now,
				AgentID:             agentID,
			})
		}
	}
	return insights
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
