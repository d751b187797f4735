package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"time"

	"github.com/sony/gobreaker"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/models"
)

// LocalProcess spawns and health-checks a local model server process,
// then talks to it over a small HTTP completion endpoint. Grounded on
// internal/agents/spawner.go's process-spawn-and-track-PID idiom
// (exec.Command, cmd.Process.Pid, a liveness poll) redirected here at a
// model server binary instead of a terminal pane.
type LocalProcess struct {
	descriptor models.Descriptor
	cmd        *exec.Cmd
	baseURL    string
	client     *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// StartLocalProcess spawns cfg.BinaryPath with cfg.Args, waits for it to
// answer a health check on cfg.Port, and returns a ready models.Backend.
// This is the §5 "backend readiness" suspension point for Loading.
func StartLocalProcess(ctx context.Context, cfg Config) (*LocalProcess, error) {
	cmd := exec.CommandContext(ctx, cfg.BinaryPath, cfg.Args...)
	if err := cmd.Start(); err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "spawn "+cfg.BinaryPath, err)
	}
	log.Printf("[BACKEND] spawned %s for model %s (pid %d)", cfg.BinaryPath, cfg.Descriptor.ID, cmd.Process.Pid)

	lp := &LocalProcess{
		descriptor: cfg.Descriptor,
		cmd:        cmd,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", cfg.Port),
		client:     &http.Client{Timeout: 60 * time.Second},
		breaker:    breakerFor("local-process:" + cfg.Descriptor.ID),
	}

	if err := lp.waitReady(ctx); err != nil {
		_ = lp.Close(ctx)
		return nil, err
	}
	return lp, nil
}

func (lp *LocalProcess) waitReady(ctx context.Context) error {
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, lp.baseURL+"/health", nil)
		if err == nil {
			if resp, err := lp.client.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					return nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return corerr.Wrap(corerr.Cancelled, "wait for "+lp.descriptor.ID+" to become ready", ctx.Err())
		case <-time.After(500 * time.Millisecond):
		}
	}
	return corerr.New(corerr.BackendUnavailable, lp.descriptor.ID+" did not become ready within timeout")
}

type completionRequest struct {
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature,omitempty"`
	TopP        float64  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

type completionResponse struct {
	Content      string `json:"content"`
	TokensOut    int    `json:"tokens_predicted"`
	StoppedLimit bool   `json:"stopped_limit"`
	StoppedWord  bool   `json:"stopped_word"`
}

func (lp *LocalProcess) Generate(ctx context.Context, prompt string, params models.GenParams) (models.GenResult, error) {
	result, err := lp.breaker.Execute(func() (interface{}, error) {
		return lp.generate(ctx, prompt, params)
	})
	if err != nil {
		return models.GenResult{}, translateBreakerErr(err)
	}
	return result.(models.GenResult), nil
}

func (lp *LocalProcess) generate(ctx context.Context, prompt string, params models.GenParams) (models.GenResult, error) {
	body, err := json.Marshal(completionRequest{
		Prompt:      prompt,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		TopK:        params.TopK,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	})
	if err != nil {
		return models.GenResult{}, corerr.Wrap(corerr.SerializationError, "encode completion request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, lp.baseURL+"/completion", bytes.NewReader(body))
	if err != nil {
		return models.GenResult{}, corerr.Wrap(corerr.BackendFailure, "build completion request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := lp.client.Do(req)
	if err != nil {
		return models.GenResult{}, corerr.Wrap(corerr.BackendFailure, "call "+lp.descriptor.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.GenResult{}, corerr.New(corerr.BackendFailure, fmt.Sprintf("%s returned status %d", lp.descriptor.ID, resp.StatusCode))
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return models.GenResult{}, corerr.Wrap(corerr.SerializationError, "decode completion response", err)
	}

	reason := "completed"
	switch {
	case cr.StoppedLimit:
		reason = "max_tokens"
	case cr.StoppedWord:
		reason = "stop_sequence"
	}

	return models.GenResult{Content: cr.Content, TokensOut: cr.TokensOut, FinishReason: reason}, nil
}

// Close terminates the spawned process. A process that has already exited
// is not an error.
func (lp *LocalProcess) Close(ctx context.Context) error {
	if lp.cmd == nil || lp.cmd.Process == nil {
		return nil
	}
	if err := lp.cmd.Process.Kill(); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "stop process for "+lp.descriptor.ID, err)
	}
	_ = lp.cmd.Wait()
	return nil
}
