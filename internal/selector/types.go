// Package selector implements the Model Selector (§4.5): a pure decision
// function over a request, its classified complexity, current resources,
// per-model history, and user preferences, producing a chosen model id plus
// the reasoning behind it.
package selector

import (
	"github.com/localmind/assistant/internal/classifier"
	"github.com/localmind/assistant/internal/resource"
)

// Policy names one of the five selection strategies.
type Policy string

const (
	PolicyAdaptive    Policy = "adaptive"
	PolicyManual      Policy = "manual"
	PolicyPerformance Policy = "performance"
	PolicyQuality     Policy = "quality"
	PolicyBalanced    Policy = "balanced"
)

// Candidate is everything the scoring formula needs about one model, joining
// its static catalogue entry with its live manager-tracked history.
type Candidate struct {
	ID             string
	RequiredRAMMB  uint64
	QualityScore   float64
	SpeedScore     float64
	SweetSpot      float64
	Heavyweight    bool
	SuccessRate    float64
	AvgResponseMS  float64
	UserSatisfaction float64 // 0..5, 2.5 (neutral midpoint) when unrated
}

// Request carries the per-call inputs the formula needs beyond the
// candidate list itself.
type Request struct {
	Policy            Policy
	Complexity        classifier.TaskComplexity
	Snapshot          resource.Snapshot
	PreferredModel    string
	PreviousModel     string // model used earlier in this session, for tie-break
	Streaming         bool
	SpeedQualitySlider float64 // 0 (favor speed) .. 1 (favor quality), user setting
}

// Decision is the selector's full output: not just the winning id, but
// enough of the reasoning to surface to a caller or log.
type Decision struct {
	ModelID         string
	Score           float64
	Reasoning       string
	EstimatedLatencyMS float64
	EstimatedRAMMB  uint64
}

// factors is the per-candidate intermediate scoring breakdown, kept around
// only to build the reasoning string from whichever factor dominated.
type factors struct {
	id               string
	base             float64
	resourceFactor   float64
	complexityFactor float64
	historyFactor    float64
	preferenceFactor float64
	cpuFactor        float64
	thermalFactor    float64
	score            float64
	ramMB            uint64
}
