package vectorindex

import "github.com/localmind/assistant/internal/config"

// New builds the configured Index backend: a remote QdrantIndex when
// cfg.Host is set, otherwise an embedded ChromemIndex rooted at
// cfg.PersistPath (empty keeps it in memory).
func New(cfg config.VectorConfig) (Index, error) {
	if cfg.Host != "" {
		return NewQdrantIndex(QdrantConfig{
			Host:   cfg.Host,
			Port:   cfg.Port,
			APIKey: cfg.APIKey,
		})
	}
	return NewChromemIndex(cfg.PersistPath)
}
