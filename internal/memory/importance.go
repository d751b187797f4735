package memory

import (
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
)

// importancePattern is one regex signal contributing to §4.6.1's
// pattern-presence score.
type importancePattern struct {
	re     *regexp.Regexp
	weight float64
}

var importancePatterns = []importancePattern{
	{regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b`), 0.6},                             // date
	{regexp.MustCompile(`\b\d{1,2}:\d{2}\s*(AM|PM|am|pm)?\b`), 0.5},                               // time
	{regexp.MustCompile(`\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`), 0.6},             // email
	{regexp.MustCompile(`\b\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`), 0.7},                         // phone
	{regexp.MustCompile(`https?://\S+`), 0.4},                                                    // URL
	{regexp.MustCompile(`(?i)\b(how|what|why|when|where|who)\b.*\?`), 0.3},                       // question
	{regexp.MustCompile(`!{1,3}`), 0.2},                                                          // exclamation
	{regexp.MustCompile(`\b[A-Z]{3,}\b`), 0.3},                                                   // emphasis
}

var defaultKeywordWeights = map[string]float64{
	"important": 0.8, "urgent": 0.9, "critical": 0.95, "remember": 0.7,
	"deadline": 0.8, "meeting": 0.6, "appointment": 0.7, "password": 0.9,
	"secret": 0.9, "confidential": 0.85, "project": 0.6, "goal": 0.7,
	"objective": 0.7, "milestone": 0.75, "personal": 0.6, "private": 0.7,
	"preference": 0.6, "dislike": 0.6, "love": 0.6, "hate": 0.6,
	"favorite": 0.6, "birthday": 0.8, "anniversary": 0.8, "address": 0.7,
	"phone": 0.7, "email": 0.6, "contact": 0.6, "bug": 0.7, "fix": 0.6,
	"solution": 0.7, "workaround": 0.7, "api": 0.5, "key": 0.6,
	"token": 0.7, "configuration": 0.6, "settings": 0.5,
}

// ImportanceScorer computes the §4.6.1 eleven-signal importance score and
// holds the feedback-adjustable keyword map. Grounded on
// original_source/src/memory/importance_scorer.rs's calculate_importance /
// adjust_keyword_weights pair.
type ImportanceScorer struct {
	mu      sync.RWMutex
	weights map[string]float64
}

func NewImportanceScorer() *ImportanceScorer {
	weights := make(map[string]float64, len(defaultKeywordWeights))
	for k, v := range defaultKeywordWeights {
		weights[k] = v
	}
	return &ImportanceScorer{weights: weights}
}

// Score computes the clamped [0,1] importance for a memory at time now.
// Signals: source type, layer priority, keyword-hit density,
// regex-pattern presence, entity weight, content-length anomaly, sentiment
// magnitude x polarity, topic count (log-scaled), recency, frequency, plus
// the feedback-adjustable keyword map folded into the keyword signal.
func (s *ImportanceScorer) Score(m Memory, now time.Time) float64 {
	var score float64

	score += m.Metadata.Source.baseImportance()
	score += m.Layer.baseImportance()
	score += s.scoreKeywords(strings.ToLower(m.Content))
	score += s.scorePatterns(m.Content)
	score += s.scoreEntities(m.Metadata.Entities)
	score += scoreContentLength(m.Content)
	if m.Metadata.Sentiment != nil {
		score += scoreSentiment(*m.Metadata.Sentiment)
	}
	score += scoreTopics(m.Metadata.Topics)
	score += m.RecencyScore(now) * 0.1
	score += m.FrequencyScore() * 0.1

	return clamp01(score)
}

func (s *ImportanceScorer) scoreKeywords(contentLower string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	words := strings.Fields(contentLower)
	if len(words) == 0 {
		return 0
	}
	var total float64
	for _, w := range words {
		clean := trimNonAlnum(w)
		if weight, ok := s.weights[clean]; ok {
			total += weight
		}
	}
	return total / math.Sqrt(float64(len(words)))
}

func (s *ImportanceScorer) scorePatterns(content string) float64 {
	var total float64
	for _, p := range importancePatterns {
		if p.re.MatchString(content) {
			total += p.weight
		}
	}
	return total
}

func (s *ImportanceScorer) scoreEntities(entities []Entity) float64 {
	if len(entities) == 0 {
		return 0
	}
	var total float64
	for _, e := range entities {
		total += e.Type.weight() * e.Confidence
	}
	return total / float64(len(entities))
}

func scoreContentLength(content string) float64 {
	n := len(content)
	switch {
	case n < 10:
		return 0.2
	case n > 1000:
		return 0.1
	default:
		return 0
	}
}

func scoreSentiment(sent Sentiment) float64 {
	return sent.Magnitude * math.Abs(sent.Polarity) * 0.2
}

func scoreTopics(topics []string) float64 {
	n := float64(len(topics))
	if n == 0 {
		return 0
	}
	return (math.Log(n) + 1.0) * 0.1
}

// ApplyFeedback blends a user rating into the current score
// (new = 0.7*current + 0.3*r) and nudges the keyword weights that appear in
// the memory's content by (r-0.5)*0.1, adding any high-rated unseen word as
// a new keyword, per §4.6.1.
func (s *ImportanceScorer) ApplyFeedback(m Memory, rating float64) float64 {
	newScore := clamp01(0.7*m.ImportanceScore + 0.3*rating)

	s.mu.Lock()
	defer s.mu.Unlock()
	adjustment := (rating - 0.5) * 0.1
	for _, w := range strings.Fields(strings.ToLower(m.Content)) {
		clean := trimNonAlnum(w)
		if clean == "" {
			continue
		}
		if weight, ok := s.weights[clean]; ok {
			s.weights[clean] = clampFloat(weight+adjustment, 0, 1)
		} else if rating > 0.7 && len(clean) > 3 {
			s.weights[clean] = 0.3
		}
	}
	return newScore
}

// KeywordWeights returns a snapshot of the current feedback-adjusted map,
// for persistence.
func (s *ImportanceScorer) KeywordWeights() map[string]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// LoadKeywordWeights merges weights into the in-memory map, overriding the
// given keywords and keeping every other entry, used when restoring
// persisted feedback adjustments on startup.
func (s *ImportanceScorer) LoadKeywordWeights(weights map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range weights {
		s.weights[k] = v
	}
}

func trimNonAlnum(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	})
}

func clamp01(v float64) float64 { return clampFloat(v, 0, 1) }

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
