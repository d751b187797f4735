// Package inference implements the Inference Engine (§4.8): the single
// orchestrator that drives one request through classification, model
// selection, model-manager admission, backend generation, and session/memory
// writeback. Grounded on the teacher's internal/captain/captain.go Mission
// pipeline (classify → decide → dispatch → record), redirected here at a
// model request instead of a coding-agent assignment.
package inference

import (
	"time"
)

// FinishReason names why a generation ended.
type FinishReason string

const (
	FinishCompleted    FinishReason = "completed"
	FinishMaxTokens    FinishReason = "max_tokens"
	FinishStopSequence FinishReason = "stop_sequence"
	FinishError        FinishReason = "error"
)

// Request is one caller-submitted prompt request, the "Prompt request" value
// of §3's data model.
type Request struct {
	SessionID          string   // empty assigns a new session
	AgentID            string
	Prompt             string
	MaxTokens          int
	Temperature        float64
	TopP               float64
	TopK               int
	Stop               []string
	Streaming          bool
	ForcedModel        string
	ExtraContext       []string // caller-supplied context, rendered as a numbered list
	SpeedQualitySlider float64  // 0 (favor speed) .. 1 (favor quality)
}

// TokenUsage splits a result's token count between the prompt and the
// completion.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the Inference Engine's full response: content plus everything a
// caller needs to understand which model produced it and why.
type Result struct {
	SessionID      string
	Content        string
	ModelUsed      string
	TokensGenerated int
	Latency        time.Duration
	Reasoning      string
	Confidence     float64
	FinishReason   FinishReason
	ErrorMessage   string
	Usage          TokenUsage
}
