// Package models implements the Model Manager (§4.3): a per-model-id state
// machine (absent → Loading → Ready/Error, Ready → Unloading → absent) with
// memory-admission eviction and single-flight load coalescing.
package models

import (
	"context"
	"time"
)

// State is a model's position in the §4.3 state machine.
type State string

const (
	StateAbsent     State = "absent"
	StateLoading    State = "loading"
	StateReady      State = "ready"
	StateError      State = "error"
	StateUnloading  State = "unloading"
)

// Descriptor is the static, configuration-derived description of a model —
// the catalogue entry the Model Selector scores and the Model Manager loads.
type Descriptor struct {
	ID             string  `json:"id"`
	BackendKind    string  `json:"backend_kind"` // "local-process" | "remote-anthropic"
	RequiredRAMMB  uint64  `json:"required_ram_mb"`
	QualityScore   float64 `json:"quality_score"`   // 0..1, used by the selector
	SpeedScore     float64 `json:"speed_score"`     // 0..1, declared relative latency
	ContextLength  int     `json:"context_length"`
	// SweetSpot is the task-complexity value (0..1) this model is tuned
	// for; the selector's complexity_factor decays away from it (§4.5).
	SweetSpot  float64 `json:"sweet_spot"`
	Heavyweight bool   `json:"heavyweight"` // used by the selector's thermal_factor
}

// Stats are the performance counters updated exclusively through
// Manager.RecordUsage.
type Stats struct {
	AvgInferenceMS   float64   `json:"avg_inference_ms"`
	TokensPerSecond  float64   `json:"tokens_per_second"`
	SuccessCount     int64     `json:"success_count"`
	ErrorCount       int64     `json:"error_count"`
	LastInferenceAt  time.Time `json:"last_inference_at"`
}

// SuccessRate is success_count / (success_count + error_count), 1.0 when
// there is no usage history yet — the selector's history_factor treats an
// untried model as neutral rather than penalized.
func (s Stats) SuccessRate() float64 {
	total := s.SuccessCount + s.ErrorCount
	if total == 0 {
		return 1.0
	}
	return float64(s.SuccessCount) / float64(total)
}

// Snapshot is a consistent, read-only view of one model's manager-tracked
// state, returned by Manager.Status.
type Snapshot struct {
	Descriptor Descriptor `json:"descriptor"`
	State      State      `json:"state"`
	ErrorMsg   string     `json:"error_message,omitempty"`
	LastUsed   time.Time  `json:"last_used"`
	Stats      Stats      `json:"stats"`
}

// GenParams carries per-request generation overrides onto a backend call.
type GenParams struct {
	Temperature      float64
	TopP             float64
	TopK             int
	MaxTokens        int
	Stop             []string
}

// GenResult is a completed (non-streaming) backend generation.
type GenResult struct {
	Content      string
	TokensOut    int
	FinishReason string // "completed" | "max_tokens" | "stop_sequence" | "error"
}

// Backend is the minimal surface the Model Manager drives once a model is
// Ready. internal/backend's LocalProcess and Anthropic implementations
// satisfy it; the Manager package itself stays backend-agnostic per §9.
type Backend interface {
	Generate(ctx context.Context, prompt string, params GenParams) (GenResult, error)
	Close(ctx context.Context) error
}

// Loader constructs and readies a Backend for a Descriptor. A Load call
// blocks until the backend reports ready or returns an error — the
// suspension point named in §5.
type Loader interface {
	Load(ctx context.Context, d Descriptor) (Backend, error)
}
