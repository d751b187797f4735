package memory

import "time"

// targetLayer recomputes which layer a memory belongs in, per §4.6.3: an
// explicit source override for Reflection/SystemInsight, else a joint score
// over importance, memory_strength, and access_count. Kept as its own file
// in the teacher's naming (layers.go originally computed export-to-markdown
// buckets by score; this keeps the "compute a score, bucket it" shape for a
// different bucket set).
func targetLayer(m Memory, now time.Time) Layer {
	switch m.Metadata.Source {
	case SourceReflection:
		return LayerReflective
	case SourceSystemInsight:
		return LayerSemantic
	}

	strength := m.Strength(now)
	switch {
	case m.ImportanceScore >= 0.8 || strength >= 0.9:
		return LayerLongTerm
	case m.ImportanceScore >= 0.6 || strength >= 0.7:
		return LayerEpisodic
	case m.AccessCount > 3:
		return LayerShortTerm
	default:
		return LayerWorking
	}
}
