package backend

import (
	"context"

	"github.com/localmind/assistant/internal/corerr"
	"github.com/localmind/assistant/internal/models"
)

// Loader satisfies models.Loader by dispatching on a descriptor's
// BackendKind, looking up the rest of the connection details from a
// caller-supplied config map keyed by model id.
type Loader struct {
	Configs map[string]Config
}

// NewLoader builds a Loader over a fixed catalogue of per-model configs.
func NewLoader(configs map[string]Config) *Loader {
	return &Loader{Configs: configs}
}

func (l *Loader) Load(ctx context.Context, d models.Descriptor) (models.Backend, error) {
	cfg, ok := l.Configs[d.ID]
	if !ok {
		cfg = Config{Descriptor: d}
	} else {
		cfg.Descriptor = d
	}

	switch d.BackendKind {
	case "local-process":
		return StartLocalProcess(ctx, cfg)
	case "remote-anthropic":
		return NewAnthropic(cfg)
	default:
		return nil, corerr.New(corerr.Validation, "unknown backend kind: "+d.BackendKind)
	}
}
