// Package session implements the Session Manager (§4.4): an in-memory
// session-id → Session map with append-ordered message logs, token-budgeted
// prompt assembly, pluggable rolling summarisation, and TTL eviction.
package session

import (
	"context"
	"strconv"
	"time"
)

// Role identifies the speaker of one message in a session's log.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one entry in a session's append-ordered log.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	ModelID   string    `json:"model_id,omitempty"`
	Tokens    int       `json:"tokens"`
	LatencyMS int64     `json:"latency_ms,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats are the aggregated counters a session tracks across its lifetime.
type Stats struct {
	TotalTokens    int            `json:"total_tokens"`
	AvgResponseMS  float64        `json:"avg_response_ms"`
	ModelUsageCount map[string]int `json:"model_usage_count"`
	ResponseCount  int            `json:"response_count"`
}

// Session is one tracked conversation.
type Session struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Messages        []Message `json:"messages"`
	RollingSummary  string    `json:"rolling_summary,omitempty"`
	PreferredModel  string    `json:"preferred_model,omitempty"`
	Rating          int       `json:"rating,omitempty"` // 1..5, 0 if unrated
	Stats           Stats     `json:"stats"`
	CreatedAt       time.Time `json:"created_at"`
	LastActivity    time.Time `json:"last_activity"`
	Ended           bool      `json:"ended"`
}

// Summariser is the pluggable capability the session manager calls once a
// session's token budget is exceeded. A real implementer drives the active
// language model; FallbackSummariser below is the deterministic stand-in.
type Summariser interface {
	Summarise(ctx context.Context, messages []Message) (string, error)
}

// FallbackSummariser returns a fixed stub summary, per §4.4's note that the
// contract is "a single string rendered ahead of the retained messages" and
// an implementer must supply the real model call.
type FallbackSummariser struct{}

func (FallbackSummariser) Summarise(ctx context.Context, messages []Message) (string, error) {
	return stubSummary(messages), nil
}

func stubSummary(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return "previous " + strconv.Itoa(len(messages)) + " messages: conversation continued"
}
