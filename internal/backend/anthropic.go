package backend

import (
	"context"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sony/gobreaker"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/models"
)

// Anthropic wraps the remote Claude API as a models.Backend, so the Model
// Manager and selector drive a hosted model exactly like a spawned local
// one (§6/§9's backend-agnostic contract).
type Anthropic struct {
	client    anthropic.Client
	modelName string
	breaker   *gobreaker.CircuitBreaker
}

// NewAnthropic builds a ready-immediately Backend; there is no process to
// wait on, so it never reports Loading beyond the call itself.
func NewAnthropic(cfg Config) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, corerr.New(corerr.Validation, "anthropic backend requires an API key")
	}
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = cfg.Descriptor.ID
	}
	return &Anthropic{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		modelName: modelName,
		breaker:   breakerFor("anthropic:" + cfg.Descriptor.ID),
	}, nil
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, params models.GenParams) (models.GenResult, error) {
	result, err := a.breaker.Execute(func() (interface{}, error) {
		return a.generate(ctx, prompt, params)
	})
	if err != nil {
		return models.GenResult{}, translateBreakerErr(err)
	}
	return result.(models.GenResult), nil
}

func (a *Anthropic) generate(ctx context.Context, prompt string, params models.GenParams) (models.GenResult, error) {
	maxTokens := int64(params.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	req := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.modelName),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if params.Temperature > 0 {
		req.Temperature = anthropic.Float(params.Temperature)
	}
	if params.TopP > 0 {
		req.TopP = anthropic.Float(params.TopP)
	}
	if len(params.Stop) > 0 {
		req.StopSequences = params.Stop
	}

	msg, err := a.client.Messages.New(ctx, req)
	if err != nil {
		return models.GenResult{}, corerr.Wrap(corerr.BackendFailure, "anthropic completion", err)
	}

	var content string
	for _, block := range msg.Content {
		if text := block.AsAny(); text != nil {
			if tb, ok := text.(anthropic.TextBlock); ok {
				content += tb.Text
			}
		}
	}

	reason := "completed"
	switch msg.StopReason {
	case anthropic.StopReasonMaxTokens:
		reason = "max_tokens"
	case anthropic.StopReasonStopSequence:
		reason = "stop_sequence"
	}

	return models.GenResult{
		Content:      content,
		TokensOut:    int(msg.Usage.OutputTokens),
		FinishReason: reason,
	}, nil
}

// Close is a no-op: there is no local process or connection to release.
func (a *Anthropic) Close(ctx context.Context) error {
	return nil
}
