package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/localmind/assistant/internal/corerr"
)

// approxTokensPerChar is the same coarse token estimate used wherever this
// codebase needs a token count without a real tokenizer in hand.
const approxTokensPerChar = 0.25

// Config is the manager's tunable policy, all named directly in §4.4.
type Config struct {
	MaxActiveSessions int
	DefaultTTL        time.Duration // sessions idle longer than this are evicted
	ContextTokenBudget int          // default 4096
}

func DefaultConfig() Config {
	return Config{
		MaxActiveSessions:  1000,
		DefaultTTL:         60 * time.Minute,
		ContextTokenBudget: 4096,
	}
}

// Manager owns session-id → Session. Grounded on internal/memory's
// captain_context.go key-value store (priority/TTL, single mutex over a
// map) generalized from a flat context cache into a per-session message
// log with the same "remove everything past its age threshold" sweep shape
// as CleanExpiredContext.
type Manager struct {
	cfg        Config
	summariser Summariser

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config, summariser Summariser) *Manager {
	if summariser == nil {
		summariser = FallbackSummariser{}
	}
	return &Manager{
		cfg:        cfg,
		summariser: summariser,
		sessions:   make(map[string]*Session),
	}
}

// StartSession creates a new session for agentID, running TTL eviction
// first if the active-session count is already at the configured cap.
func (m *Manager) StartSession(agentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.cfg.MaxActiveSessions {
		m.evictExpiredLocked()
	}

	id := uuid.NewString()
	now := time.Now()
	m.sessions[id] = &Session{
		ID:        id,
		AgentID:   agentID,
		CreatedAt: now,
		LastActivity: now,
		Stats:     Stats{ModelUsageCount: make(map[string]int)},
	}
	return id
}

func (m *Manager) evictExpiredLocked() {
	cutoff := time.Now().Add(-m.cfg.DefaultTTL)
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
		}
	}
}

// Append adds a message to sessionID's log, updates last_activity and
// aggregate stats, and triggers rolling summarisation if the token budget
// is now exceeded.
func (m *Manager) Append(ctx context.Context, sessionID string, role Role, content, modelID string, tokens int, latency time.Duration) error {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	if s.Ended {
		m.mu.Unlock()
		return corerr.New(corerr.Validation, "session has ended: "+sessionID)
	}

	msg := Message{Role: role, Content: content, ModelID: modelID, Tokens: tokens, LatencyMS: latency.Milliseconds(), Timestamp: time.Now()}
	s.Messages = append(s.Messages, msg)
	s.LastActivity = msg.Timestamp
	s.Stats.TotalTokens += tokens
	if modelID != "" {
		s.Stats.ModelUsageCount[modelID]++
	}
	if role == RoleAssistant {
		s.Stats.ResponseCount++
		n := float64(s.Stats.ResponseCount)
		ms := float64(latency.Milliseconds())
		s.Stats.AvgResponseMS += (ms - s.Stats.AvgResponseMS) / n
	}

	needsSummary := s.Stats.TotalTokens > m.cfg.ContextTokenBudget
	var toSummarise []Message
	if needsSummary {
		half := len(s.Messages) / 2
		if half > 0 {
			toSummarise = append([]Message(nil), s.Messages[:half]...)
		}
	}
	m.mu.Unlock()

	if len(toSummarise) == 0 {
		return nil
	}

	summary, err := m.summariser.Summarise(ctx, toSummarise)
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "summarise session "+sessionID, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok = m.sessions[sessionID]
	if !ok {
		return nil
	}
	half := len(toSummarise)
	if half > len(s.Messages) {
		half = len(s.Messages)
	}
	s.RollingSummary = summary
	s.Messages = append([]Message(nil), s.Messages[half:]...)
	var remaining int
	for _, msg := range s.Messages {
		remaining += msg.Tokens
	}
	s.Stats.TotalTokens = remaining
	return nil
}

// ContextFor renders sessionID's prompt: the rolling summary (if any)
// followed by up to maxMessages most-recent messages within the token
// budget, in chronological order, each formatted as "<Role>: <content>\n".
func (m *Manager) ContextFor(sessionID string, maxMessages int) (string, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	if !ok {
		m.mu.RUnlock()
		return "", corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	messages := append([]Message(nil), s.Messages...)
	summary := s.RollingSummary
	m.mu.RUnlock()

	selected := make([]Message, 0, maxMessages)
	budget := m.cfg.ContextTokenBudget
	used := 0
	for i := len(messages) - 1; i >= 0 && len(selected) < maxMessages; i-- {
		msg := messages[i]
		cost := msg.Tokens
		if cost == 0 {
			cost = estimateTokens(msg.Content)
		}
		if used+cost > budget && len(selected) > 0 {
			break
		}
		selected = append(selected, msg)
		used += cost
	}
	// selected was built newest-first; re-order to chronological.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}

	var sb strings.Builder
	if summary != "" {
		sb.WriteString(summary)
		sb.WriteString("\n")
	}
	for _, msg := range selected {
		sb.WriteString(roleLabel(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

func roleLabel(r Role) string {
	switch r {
	case RoleUser:
		return "User"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

func estimateTokens(content string) int {
	n := int(float64(len(content)) * approxTokensPerChar)
	if n < 1 {
		return 1
	}
	return n
}

// End marks a session as finished. Ended sessions remain readable (for
// export) but no longer accept appends via normal flow.
func (m *Manager) End(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	s.Ended = true
	return nil
}

// Rate records a 1..5 satisfaction score for a session.
func (m *Manager) Rate(sessionID string, score int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	s.Rating = score
	return nil
}

// SetPreferredModel records a sticky model preference for sessionID.
func (m *Manager) SetPreferredModel(sessionID, modelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	s.PreferredModel = modelID
	return nil
}

// Get returns a copy of a session's current state.
func (m *Manager) Get(sessionID string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Export serializes a session to JSON.
func (m *Manager) Export(sessionID string) ([]byte, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, corerr.New(corerr.NotFound, "session not found: "+sessionID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, corerr.Wrap(corerr.SerializationError, "export session "+sessionID, err)
	}
	return data, nil
}

// Import restores a session from a previously exported JSON blob, returning
// its id. A session id collision is rejected rather than silently
// overwritten: sessions are meant to be restored once after export, and a
// silent overwrite could discard concurrent local activity.
func (m *Manager) Import(data []byte) (string, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return "", corerr.Wrap(corerr.SerializationError, "import session", err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Stats.ModelUsageCount == nil {
		s.Stats.ModelUsageCount = make(map[string]int)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return "", corerr.New(corerr.Validation, "session already exists: "+s.ID)
	}
	m.sessions[s.ID] = &s
	return s.ID, nil
}

// All returns a snapshot of every session currently held, active or ended,
// for bulk export.
func (m *Manager) All() []Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, *s)
	}
	return all
}

// Restore re-inserts a batch of previously exported sessions, overwriting
// any existing session with the same id.
func (m *Manager) Restore(sessions []Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range sessions {
		s := sessions[i]
		if s.Stats.ModelUsageCount == nil {
			s.Stats.ModelUsageCount = make(map[string]int)
		}
		m.sessions[s.ID] = &s
	}
}

// EvictExpired runs the TTL sweep on demand (also run implicitly by
// StartSession when at capacity).
func (m *Manager) EvictExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.sessions)
	m.evictExpiredLocked()
	return before - len(m.sessions)
}
