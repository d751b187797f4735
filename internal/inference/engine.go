package inference

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/localmind/assistant/internal/classifier"
	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/memory"
	"github.com/localmind/assistant/internal/models"
	"github.com/localmind/assistant/internal/resource"
	"github.com/localmind/assistant/internal/selector"
	"github.com/localmind/assistant/internal/session"
)

// defaultContextMessages is context_for's message count, per §4.8 step 5.
const defaultContextMessages = 5

// defaultRelevantMemories caps how many recalled memories enrich the prompt.
const defaultRelevantMemories = 5

// defaultMaxTokens is applied when a request leaves MaxTokens unset.
const defaultMaxTokens = 512

// defaultTemperature is applied when a request leaves Temperature unset.
const defaultTemperature = 0.7

// Embedder lets the engine turn a prompt into a semantic query vector for
// memory recall. Nil disables semantic recall; keyword recall still runs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Config is the engine's tunable policy.
type Config struct {
	MaxConcurrentRequests int // §5's max_concurrent_requests, default 10
	ContextMessages       int // default 5
	RelevantMemoryLimit   int // default 5
	DefaultPolicy         selector.Policy
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentRequests: 10,
		ContextMessages:       defaultContextMessages,
		RelevantMemoryLimit:   defaultRelevantMemories,
		DefaultPolicy:         selector.PolicyAdaptive,
	}
}

// Engine is the Inference Engine (§4.8). It holds only shared read-access to
// its collaborators' public contracts; Session/Model/Memory each remain the
// exclusive owner of their own state, per §3's ownership table.
type Engine struct {
	sessions    *session.Manager
	memories    *memory.Store
	modelMgr    *models.Manager
	resources   *resource.Monitor
	descriptors map[string]models.Descriptor
	embedder    Embedder
	cfg         Config
	sem         *semaphore.Weighted
}

// NewEngine wires an Engine over its collaborators. descriptors is the
// static model catalogue the selector scores; embedder may be nil.
func NewEngine(sessions *session.Manager, memories *memory.Store, modelMgr *models.Manager, resources *resource.Monitor, descriptors []models.Descriptor, embedder Embedder, cfg Config) *Engine {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = 10
	}
	if cfg.ContextMessages <= 0 {
		cfg.ContextMessages = defaultContextMessages
	}
	if cfg.RelevantMemoryLimit <= 0 {
		cfg.RelevantMemoryLimit = defaultRelevantMemories
	}
	if cfg.DefaultPolicy == "" {
		cfg.DefaultPolicy = selector.PolicyAdaptive
	}

	byID := make(map[string]models.Descriptor, len(descriptors))
	for _, d := range descriptors {
		byID[d.ID] = d
	}

	return &Engine{
		sessions:    sessions,
		memories:    memories,
		modelMgr:    modelMgr,
		resources:   resources,
		descriptors: byID,
		embedder:    embedder,
		cfg:         cfg,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
	}
}

// Generate runs one request through the full §4.8 pipeline: assign session,
// classify, select, ensure-ready, build context, call the backend, and write
// back session messages and memories. A cancelled or failed generation
// commits no partial session or memory state.
func (e *Engine) Generate(ctx context.Context, req Request) (Result, error) {
	if !e.sem.TryAcquire(1) {
		return Result{}, corerr.New(corerr.AtCapacity, "max_concurrent_requests exceeded")
	}
	defer e.sem.Release(1)

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = e.sessions.StartSession(req.AgentID)
	}

	complexity := classifier.Classify(req.Prompt)

	decision, descriptor, err := e.selectModel(req, sessionID, complexity)
	if err != nil {
		return Result{}, err
	}

	if err := e.modelMgr.Load(ctx, descriptor); err != nil {
		return Result{}, corerr.Wrap(corerr.BackendFailure, "load selected model "+descriptor.ID, err)
	}

	prompt, err := e.buildPrompt(ctx, req, sessionID)
	if err != nil {
		return Result{}, err
	}

	params := models.GenParams{
		Temperature: req.Temperature,
		TopP:        req.TopP,
		TopK:        req.TopK,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}
	if params.Temperature == 0 {
		params.Temperature = defaultTemperature
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = defaultMaxTokens
	}

	backend := e.modelMgr.Backend(descriptor.ID)
	if backend == nil {
		return Result{}, corerr.New(corerr.BackendUnavailable, "model "+descriptor.ID+" has no live backend after load")
	}

	start := time.Now()
	genResult, genErr := backend.Generate(ctx, prompt, params)
	latency := time.Since(start)

	e.modelMgr.RecordUsage(descriptor.ID, latency, genResult.TokensOut, genErr == nil)

	if genErr != nil {
		return Result{}, corerr.Wrap(corerr.BackendFailure, "generate with "+descriptor.ID, genErr)
	}

	if err := e.writeBack(ctx, sessionID, req, genResult, descriptor.ID, latency); err != nil {
		return Result{}, err
	}

	return Result{
		SessionID:       sessionID,
		Content:         genResult.Content,
		ModelUsed:       descriptor.ID,
		TokensGenerated: genResult.TokensOut,
		Latency:         latency,
		Reasoning:       decision.Reasoning,
		Confidence:      decision.Score,
		FinishReason:    finishReasonOf(genResult.FinishReason),
		Usage:           TokenUsage{CompletionTokens: genResult.TokensOut},
	}, nil
}

func finishReasonOf(raw string) FinishReason {
	switch raw {
	case "max_tokens":
		return FinishMaxTokens
	case "stop_sequence":
		return FinishStopSequence
	case "error":
		return FinishError
	default:
		return FinishCompleted
	}
}

// selectModel runs §4.5's selection over the engine's static catalogue,
// honouring a forced model as a manual-policy preference.
func (e *Engine) selectModel(req Request, sessionID string, complexity classifier.TaskComplexity) (selector.Decision, models.Descriptor, error) {
	candidates := e.candidates()
	if len(candidates) == 0 {
		return selector.Decision{}, models.Descriptor{}, corerr.New(corerr.NotFound, "no models configured")
	}

	policy := e.cfg.DefaultPolicy
	preferred := ""
	if req.ForcedModel != "" {
		policy = selector.PolicyManual
		preferred = req.ForcedModel
	}

	previous := ""
	if s, ok := e.sessions.Get(sessionID); ok {
		previous = s.PreferredModel
	}

	selReq := selector.Request{
		Policy:             policy,
		Complexity:         complexity,
		Snapshot:           e.resources.CurrentSnapshot(),
		PreferredModel:     preferred,
		PreviousModel:      previous,
		Streaming:          req.Streaming,
		SpeedQualitySlider: req.SpeedQualitySlider,
	}

	decision, err := selector.Select(selReq, candidates)
	if err != nil {
		return selector.Decision{}, models.Descriptor{}, err
	}

	descriptor, ok := e.descriptors[decision.ModelID]
	if !ok {
		return selector.Decision{}, models.Descriptor{}, corerr.New(corerr.NotFound, "selected model "+decision.ModelID+" missing from catalogue")
	}
	return decision, descriptor, nil
}

// candidates joins the static catalogue with each model's live
// manager-tracked history, per selector.Candidate's contract.
func (e *Engine) candidates() []selector.Candidate {
	out := make([]selector.Candidate, 0, len(e.descriptors))
	for id, d := range e.descriptors {
		snap := e.modelMgr.Status(id)
		out = append(out, selector.Candidate{
			ID:               id,
			RequiredRAMMB:    d.RequiredRAMMB,
			QualityScore:     d.QualityScore,
			SpeedScore:       d.SpeedScore,
			SweetSpot:        d.SweetSpot,
			Heavyweight:      d.Heavyweight,
			SuccessRate:      snap.Stats.SuccessRate(),
			AvgResponseMS:    snap.Stats.AvgInferenceMS,
			UserSatisfaction: 0,
		})
	}
	return out
}

// buildPrompt renders §4.8 step 5: rolling summary + recent session
// messages + recalled memories + caller-supplied context + the final
// Human/Assistant turn.
func (e *Engine) buildPrompt(ctx context.Context, req Request, sessionID string) (string, error) {
	sessionContext, err := e.sessions.ContextFor(sessionID, e.cfg.ContextMessages)
	if err != nil {
		return "", corerr.Wrap(corerr.NotFound, "build context for session "+sessionID, err)
	}

	var sb strings.Builder
	sb.WriteString(sessionContext)

	if relevant := e.relevantMemories(ctx, req); len(relevant) > 0 {
		sb.WriteString("Relevant memories:\n")
		for i, m := range relevant {
			sb.WriteString(strconv.Itoa(i+1) + ". " + m.Content + "\n")
		}
		sb.WriteString("\n")
	}

	if len(req.ExtraContext) > 0 {
		sb.WriteString("Additional context:\n")
		for i, c := range req.ExtraContext {
			sb.WriteString(strconv.Itoa(i+1) + ". " + c + "\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Human: %s\n\nAssistant: ", req.Prompt))
	return sb.String(), nil
}

// relevantMemories best-effort recalls memories related to the prompt.
// Any failure here degrades the prompt, not the request.
func (e *Engine) relevantMemories(ctx context.Context, req Request) []memory.Memory {
	if e.memories == nil {
		return nil
	}

	q := memory.Query{
		AgentID:   req.AgentID,
		TextQuery: req.Prompt,
		Limit:     e.cfg.RelevantMemoryLimit,
	}
	if e.embedder != nil {
		if vec, err := e.embedder.Embed(ctx, req.Prompt); err == nil {
			q.SemanticQuery = vec
		}
	}

	results, err := e.memories.Recall(ctx, q)
	if err != nil {
		return nil
	}
	return results
}

// writeBackMu keeps one generate's user/assistant appends together so no
// other write-back lands between them.
var writeBackMu sync.Mutex

// writeBack appends the user/assistant message pair to the session and
// records both turns as new memories, each independently embedded. Per §5's
// ordering guarantee, the pair is appended without interleaving a concurrent
// generate on the same session: both appends run under writeBackMu.
func (e *Engine) writeBack(ctx context.Context, sessionID string, req Request, result models.GenResult, modelID string, latency time.Duration) error {
	writeBackMu.Lock()
	if err := e.sessions.Append(ctx, sessionID, session.RoleUser, req.Prompt, "", estimateTokens(req.Prompt), 0); err != nil {
		writeBackMu.Unlock()
		return corerr.Wrap(corerr.BackendFailure, "append user message", err)
	}
	if err := e.sessions.Append(ctx, sessionID, session.RoleAssistant, result.Content, modelID, result.TokensOut, latency); err != nil {
		writeBackMu.Unlock()
		return corerr.Wrap(corerr.BackendFailure, "append assistant message", err)
	}
	writeBackMu.Unlock()

	if e.memories != nil {
		if _, err := e.memories.Remember(ctx, req.Prompt, memory.Metadata{
			Source:    memory.SourceUserInput,
			AgentID:   req.AgentID,
			SessionID: sessionID,
		}); err != nil {
			return corerr.Wrap(corerr.BackendFailure, "remember user input", err)
		}
		if _, err := e.memories.Remember(ctx, result.Content, memory.Metadata{
			Source:    memory.SourceAgentResponse,
			AgentID:   req.AgentID,
			SessionID: sessionID,
		}); err != nil {
			return corerr.Wrap(corerr.BackendFailure, "remember agent response", err)
		}
	}

	return nil
}

func estimateTokens(text string) int {
	n := len(strings.Fields(text))
	if n < 1 {
		return 1
	}
	return n
}
