package session

import (
	"context"
	"testing"
	"time"
)

func TestStartSessionAndAppend(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")
	if err := m.Append(context.Background(), id, RoleUser, "hello", "", 2, 0); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s, ok := m.Get(id)
	if !ok {
		t.Fatal("expected session to exist")
	}
	if len(s.Messages) != 1 || s.Messages[0].Content != "hello" {
		t.Errorf("unexpected messages: %+v", s.Messages)
	}
}

func TestAppendUnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	if err := m.Append(context.Background(), "missing", RoleUser, "hi", "", 1, 0); err == nil {
		t.Fatal("expected not-found error")
	}
}

func TestContextForFormatsChronologicallyWithRolePrefixes(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")
	_ = m.Append(context.Background(), id, RoleUser, "first", "", 2, 0)
	_ = m.Append(context.Background(), id, RoleAssistant, "second", "model-a", 3, 10*time.Millisecond)

	rendered, err := m.ContextFor(id, 10)
	if err != nil {
		t.Fatalf("ContextFor: %v", err)
	}
	want := "User: first\nAssistant: second\n"
	if rendered != want {
		t.Errorf("got %q, want %q", rendered, want)
	}
}

func TestContextForRespectsMaxMessages(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")
	for i := 0; i < 5; i++ {
		_ = m.Append(context.Background(), id, RoleUser, "msg", "", 1, 0)
	}
	rendered, err := m.ContextFor(id, 2)
	if err != nil {
		t.Fatalf("ContextFor: %v", err)
	}
	count := 0
	for i := 0; i+len("User: msg") <= len(rendered); i++ {
		if rendered[i:i+len("User: msg")] == "User: msg" {
			count++
		}
	}
	if count != 2 {
		t.Errorf("expected 2 rendered messages, counted %d in %q", count, rendered)
	}
}

type stubSummariser struct{ called bool }

func (s *stubSummariser) Summarise(ctx context.Context, messages []Message) (string, error) {
	s.called = true
	return "summary of older messages", nil
}

func TestAppendTriggersSummarisationOverBudget(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ContextTokenBudget = 10
	summariser := &stubSummariser{}
	m := NewManager(cfg, summariser)
	id := m.StartSession("agent-1")

	for i := 0; i < 6; i++ {
		_ = m.Append(context.Background(), id, RoleUser, "message text", "", 5, 0)
	}

	if !summariser.called {
		t.Error("expected summariser to be invoked once budget exceeded")
	}
	s, _ := m.Get(id)
	if s.RollingSummary == "" {
		t.Error("expected a rolling summary to be set")
	}
	if len(s.Messages) >= 6 {
		t.Errorf("expected oldest half of messages to be compacted away, got %d", len(s.Messages))
	}
}

func TestEndRateAndSetPreferredModel(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")

	if err := m.End(id); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := m.Rate(id, 4); err != nil {
		t.Fatalf("Rate: %v", err)
	}
	if err := m.SetPreferredModel(id, "model-x"); err != nil {
		t.Fatalf("SetPreferredModel: %v", err)
	}

	s, _ := m.Get(id)
	if !s.Ended || s.Rating != 4 || s.PreferredModel != "model-x" {
		t.Errorf("unexpected session state: %+v", s)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")
	_ = m.Append(context.Background(), id, RoleUser, "hello", "", 2, 0)

	data, err := m.Export(id)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	m2 := NewManager(DefaultConfig(), nil)
	newID, err := m2.Import(data)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if newID != id {
		t.Errorf("expected imported session to keep its original id, got %s", newID)
	}
	s, ok := m2.Get(newID)
	if !ok || len(s.Messages) != 1 {
		t.Errorf("unexpected imported session: %+v", s)
	}
}

func TestImportRejectsSessionIDCollision(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")

	data, err := m.Export(id)
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	if _, err := m.Import(data); err == nil {
		t.Fatal("expected Import to reject a colliding session id")
	}
}

func TestEvictExpiredRemovesStaleSessions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultTTL = time.Minute
	m := NewManager(cfg, nil)
	id := m.StartSession("agent-1")

	m.mu.Lock()
	m.sessions[id].LastActivity = time.Now().Add(-time.Hour)
	m.mu.Unlock()

	evicted := m.EvictExpired()
	if evicted != 1 {
		t.Errorf("expected 1 eviction, got %d", evicted)
	}
	if _, ok := m.Get(id); ok {
		t.Error("expected session to be gone after eviction")
	}
}

func TestStartSessionTimestampsAreMonotonic(t *testing.T) {
	m := NewManager(DefaultConfig(), nil)
	id := m.StartSession("agent-1")
	_ = m.Append(context.Background(), id, RoleUser, "a", "", 1, 0)
	_ = m.Append(context.Background(), id, RoleUser, "b", "", 1, 0)

	s, _ := m.Get(id)
	for i := 1; i < len(s.Messages); i++ {
		if s.Messages[i].Timestamp.Before(s.Messages[i-1].Timestamp) {
			t.Error("expected non-decreasing message timestamps")
		}
	}
}
