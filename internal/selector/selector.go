package selector

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/resource"
)

// qualityTopics are the detected topics that raise the quality_requirement
// baseline, per §4.5.
var qualityTopics = map[string]bool{
	"code":     true,
	"analysis": true,
	"research": true,
}

// Select is the pure decision function of §4.5: score every candidate under
// the chosen policy and return the winner plus its reasoning. Grounded on
// internal/supervisor/decision.go's DecisionEngine (score candidates, build
// a human-readable rationale, pick the highest), generalized from
// "recommend a coding agent" to "recommend a model".
func Select(req Request, candidates []Candidate) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, corerr.New(corerr.NotFound, "no candidate models available")
	}

	switch req.Policy {
	case PolicyManual:
		if req.PreferredModel != "" {
			if c, ok := findCandidate(candidates, req.PreferredModel); ok {
				return decisionFor(req, c, "manual policy: preferred model"), nil
			}
		}
		return selectAdaptive(req, candidates)

	case PolicyPerformance:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.SpeedScore > best.SpeedScore {
				best = c
			}
		}
		return decisionFor(req, best, "performance policy: fastest declared model"), nil

	case PolicyQuality:
		best := candidates[0]
		for _, c := range candidates[1:] {
			if c.QualityScore > best.QualityScore {
				best = c
			}
		}
		return decisionFor(req, best, "quality policy: highest-capability model"), nil

	case PolicyBalanced:
		return selectAdaptiveWithUrgency(req, candidates, 0.5, 0.5)

	case PolicyAdaptive:
		fallthrough
	default:
		return selectAdaptive(req, candidates)
	}
}

func selectAdaptive(req Request, candidates []Candidate) (Decision, error) {
	urgency := 0.5
	if req.Streaming {
		urgency = 0.8
	}
	qualityReq := qualityRequirement(req)
	return selectAdaptiveWithUrgency(req, candidates, urgency, qualityReq)
}

func selectAdaptiveWithUrgency(req Request, candidates []Candidate, urgency, qualityReq float64) (Decision, error) {
	scored := make([]factors, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, scoreCandidate(req, c, urgency, qualityReq))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		// Tie-break: prefer the model used earlier in this session, then
		// the lower-RAM model.
		iPrev := scored[i].id == req.PreviousModel
		jPrev := scored[j].id == req.PreviousModel
		if iPrev != jPrev {
			return iPrev
		}
		return scored[i].ramMB < scored[j].ramMB
	})

	winner := scored[0]
	c, _ := findCandidate(candidates, winner.id)
	return decisionFromFactors(req, c, winner), nil
}

// qualityRequirement is max(task_complexity, baseline) blended 70/30 with
// the user's speed-vs-quality slider, per §4.5.
func qualityRequirement(req Request) float64 {
	baseline := 0.3
	for _, topic := range req.Complexity.Topics {
		if qualityTopics[topic] {
			baseline += 0.7
			break
		}
	}
	baseline = math.Min(baseline, 1.0)

	raw := math.Max(req.Complexity.Score, baseline)
	blended := 0.7*raw + 0.3*req.SpeedQualitySlider
	return clamp01(blended)
}

func scoreCandidate(req Request, c Candidate, urgency, qualityReq float64) factors {
	base := c.SpeedScore*(1-qualityReq) + c.QualityScore*qualityReq

	resourceFactor := resourceFactorFor(req.Snapshot, c.RequiredRAMMB)
	complexityFactor := complexityFactorFor(req.Complexity.Score, c.SweetSpot)
	historyFactor := historyFactorFor(c, urgency)
	preferenceFactor := preferenceFactorFor(req.PreferredModel, c.ID)
	cpuFactor := 1 - 0.3*req.Snapshot.CPULoad()
	thermalFactor := thermalFactorFor(req.Snapshot.Thermal, c.Heavyweight)

	score := base * resourceFactor * complexityFactor * historyFactor *
		preferenceFactor * cpuFactor * thermalFactor
	score = clamp01(score)

	return factors{
		id:               c.ID,
		base:             base,
		resourceFactor:   resourceFactor,
		complexityFactor: complexityFactor,
		historyFactor:    historyFactor,
		preferenceFactor: preferenceFactor,
		cpuFactor:        cpuFactor,
		thermalFactor:    thermalFactor,
		score:            score,
		ramMB:            c.RequiredRAMMB,
	}
}

func resourceFactorFor(snap resource.Snapshot, requiredRAMMB uint64) float64 {
	if snap.MemoryAvailableMB < requiredRAMMB {
		return 0.1
	}
	if requiredRAMMB == 0 {
		return 1.0
	}
	return math.Min(1.0, float64(snap.MemoryAvailableMB)/(1.5*float64(requiredRAMMB)))
}

// complexityFactorFor scores 1.0 when task complexity is on the same side
// of 0.5 as a model's sweet spot, decaying linearly from 1.0 at 0.5 to 0.7
// at the opposite extreme (complexity 0 or 1).
func complexityFactorFor(taskComplexity, sweetSpot float64) float64 {
	if (taskComplexity < 0.5) == (sweetSpot < 0.5) {
		return 1.0
	}
	decay := math.Abs(taskComplexity-0.5) / 0.5
	return 1.0 - 0.3*clamp01(decay)
}

func historyFactorFor(c Candidate, urgency float64) float64 {
	successRate := c.SuccessRate
	if successRate == 0 {
		successRate = 1.0 // untried model treated as neutral, mirrors models.Stats.SuccessRate
	}

	speedTerm := 1.0
	if c.AvgResponseMS > 0 {
		speedTerm = math.Pow(math.Min(1.0, 1000/c.AvgResponseMS), urgency)
	}

	satisfaction := c.UserSatisfaction
	if satisfaction == 0 {
		satisfaction = 2.5 // neutral midpoint when unrated
	}

	factor := successRate * speedTerm * (satisfaction / 5.0)
	return math.Max(0.2, factor)
}

func preferenceFactorFor(preferred, candidateID string) float64 {
	if preferred == "" {
		return 1.0
	}
	if preferred == candidateID {
		return 1.2
	}
	return 0.9
}

func thermalFactorFor(state resource.ThermalState, heavy bool) float64 {
	switch state {
	case resource.ThermalWarm:
		if heavy {
			return 0.9
		}
		return 1.0
	case resource.ThermalHot:
		if heavy {
			return 0.7
		}
		return 1.0
	case resource.ThermalCritical:
		if heavy {
			return 0.3
		}
		return 0.9
	default:
		return 1.0
	}
}

func decisionFor(req Request, c Candidate, reason string) Decision {
	return Decision{
		ModelID:            c.ID,
		Score:              1.0,
		Reasoning:          reason,
		EstimatedLatencyMS: estimatedLatency(c, req.Complexity.Score, req.Snapshot.CPULoad()),
		EstimatedRAMMB:     c.RequiredRAMMB,
	}
}

func decisionFromFactors(req Request, c Candidate, f factors) Decision {
	return Decision{
		ModelID:            c.ID,
		Score:              f.score,
		Reasoning:          reasoningFor(f),
		EstimatedLatencyMS: estimatedLatency(c, req.Complexity.Score, req.Snapshot.CPULoad()),
		EstimatedRAMMB:     c.RequiredRAMMB,
	}
}

// reasoningFor names the one or two sub-factors furthest from a neutral 1.0,
// since those are what actually moved this candidate's score.
func reasoningFor(f factors) string {
	type named struct {
		name  string
		value float64
	}
	all := []named{
		{"resource availability", f.resourceFactor},
		{"task-complexity fit", f.complexityFactor},
		{"usage history", f.historyFactor},
		{"user preference", f.preferenceFactor},
		{"cpu load", f.cpuFactor},
		{"thermal state", f.thermalFactor},
	}
	deviations := make([]float64, len(all))
	for i, n := range all {
		deviations[i] = math.Abs(n.value - 1.0)
	}
	sort.SliceStable(all, func(i, j int) bool {
		return math.Abs(all[i].value-1.0) > math.Abs(all[j].value-1.0)
	})
	if len(all) == 0 || floats.Sum(deviations) == 0 {
		return fmt.Sprintf("%s scored %.2f on balanced factors", f.id, f.score)
	}
	return fmt.Sprintf("%s selected primarily on %s (score %.2f)", f.id, all[0].name, f.score)
}

// estimatedLatency is base x (1 + complexity) x (1 + cpu_load), per §4.5.
func estimatedLatency(c Candidate, taskComplexity, cpuLoad float64) float64 {
	base := 1000.0
	if c.SpeedScore > 0 {
		base = 1000.0 * (1.0 - c.SpeedScore*0.8)
	}
	return base * (1 + taskComplexity) * (1 + cpuLoad)
}

func findCandidate(candidates []Candidate, id string) (Candidate, bool) {
	for _, c := range candidates {
		if c.ID == id {
			return c, true
		}
	}
	return Candidate{}, false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
