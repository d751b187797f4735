// Package metrics narrows the teacher's per-coding-agent token/test tracker
// into a per-model performance-counter history, backing §4.3's avg inference
// time / tokens-per-second / success-and-error-count contract with
// point-in-time snapshots a reviewer (or a future dashboard) can page
// through, plus threshold-based alerting reusing the same AlertSink shape
// the Resource Monitor and Model Manager already accept.
package metrics

import "time"

// Snapshot is a point-in-time capture of every tracked model's performance
// counters, generalizing the teacher's types.MetricsSnapshot (per-agent
// task/token counts) to per-model inference counters.
type Snapshot struct {
	Timestamp time.Time
	Models    map[string]ModelStats
}

// ModelStats mirrors models.Stats plus its derived SuccessRate, frozen at
// snapshot time so history isn't affected by later RecordUsage calls.
type ModelStats struct {
	AvgInferenceMS  float64
	TokensPerSecond float64
	SuccessCount    int64
	ErrorCount      int64
	SuccessRate     float64
	LastInferenceAt time.Time
	State           string
}

// HealthStatus classifies a model's current operating condition, the
// per-model analogue of the teacher's per-agent HealthStatus.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthIdle     HealthStatus = "idle"
	HealthDegraded HealthStatus = "degraded"
	HealthFailing  HealthStatus = "failing"
)

const (
	minSamplesForDegraded = 1
	minSamplesForFailing  = 3
	idleThreshold         = 30 * time.Minute
)

// Health derives a HealthStatus from a model's stats. A model that has never
// run is Idle rather than Healthy — there's nothing yet to call healthy.
func Health(s ModelStats) HealthStatus {
	total := s.SuccessCount + s.ErrorCount
	if total >= minSamplesForFailing && s.SuccessRate < 0.5 {
		return HealthFailing
	}
	if total == 0 || s.LastInferenceAt.IsZero() {
		return HealthIdle
	}
	if time.Since(s.LastInferenceAt) > idleThreshold {
		return HealthIdle
	}
	if total >= minSamplesForDegraded && s.SuccessRate < 0.8 {
		return HealthDegraded
	}
	return HealthHealthy
}
