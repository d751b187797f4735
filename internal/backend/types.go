// Package backend implements the ModelBackend capability named in spec.md
// §6/§9: a small interface the Model Manager drives once a model is Ready,
// with two concrete implementations — a spawned local process and a remote
// Anthropic API call — proving the manager and selector stay
// backend-agnostic.
package backend

import (
	"time"

	"github.com/sony/gobreaker"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/models"
)

// Config is the per-descriptor backend configuration the Loader needs
// beyond what models.Descriptor already carries.
type Config struct {
	Descriptor models.Descriptor

	// LocalProcess fields.
	BinaryPath string
	Args       []string
	Port       int

	// Anthropic fields.
	APIKey    string
	ModelName string
}

// breakerFor wraps any backend call in a gobreaker.CircuitBreaker scoped to
// one model id, so a model whose process has died stops being hammered with
// doomed requests and instead fails fast with BackendUnavailable. Grounded
// on the circuit-breaker usage named in the 2lar-b2/backend and
// scrypster-memento manifests.
func breakerFor(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}

func translateBreakerErr(err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return corerr.Wrap(corerr.BackendUnavailable, "backend circuit open", err)
	}
	return err
}
