// Package config loads the runtime's YAML configuration surface (§6) and
// applies APP_<SECTION>_<KEY> environment overrides, the same two-stage
// flags-then-file load order the teacher's cmd/cliaimonitor/main.go uses.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the top-level environment override prefix, e.g.
// APP_VECTOR_HOST overrides Vector.Host.
const EnvPrefix = "APP"

// Config is the root configuration document.
type Config struct {
	Memory      MemoryConfig            `yaml:"memory"`
	Vector      VectorConfig            `yaml:"vector"`
	Performance PerformanceConfig       `yaml:"performance"`
	Models      ModelsConfig            `yaml:"models"`
}

type MemoryConfig struct {
	WorkingMemorySize      int     `yaml:"working_memory_size"`
	ShortTermSize          int     `yaml:"short_term_size"`
	ConsolidationThreshold float64 `yaml:"consolidation_threshold"`
	ConsolidationInterval  int     `yaml:"consolidation_interval"` // seconds
	ImportanceDecayRate    float64 `yaml:"importance_decay_rate"`
}

type VectorConfig struct {
	Host               string `yaml:"host"`
	Port               int    `yaml:"port"`
	APIKey             string `yaml:"api_key"`
	CollectionPrefix   string `yaml:"collection_prefix"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingDimension int    `yaml:"embedding_dimension"`
	// PersistPath is the embedded chromem-go store's data directory. Empty
	// keeps it in memory. Ignored when Host is set.
	PersistPath string `yaml:"persist_path"`

	// EmbeddingModelPath and EmbeddingTokenizerPath locate the local ONNX
	// embedding model and its tokenizer config. Leaving either empty
	// disables semantic embedding: recall falls back to keyword matching,
	// per internal/memory and internal/inference's "embedder may be nil"
	// contract.
	EmbeddingModelPath     string `yaml:"embedding_model_path,omitempty"`
	EmbeddingTokenizerPath string `yaml:"embedding_tokenizer_path,omitempty"`
	EmbeddingMaxTokens     int    `yaml:"embedding_max_tokens,omitempty"`
}

type PerformanceConfig struct {
	CacheSizeMB            int `yaml:"cache_size_mb"`
	MaxConcurrentRequests  int `yaml:"max_concurrent_requests"`
	RequestTimeoutSeconds  int `yaml:"request_timeout_seconds"`
	StreamBufferSize       int `yaml:"stream_buffer_size"`
}

type ModelsConfig struct {
	DefaultStrategy      string                  `yaml:"default_strategy"`
	DefaultContextLength int                     `yaml:"default_context_length"`
	Models               map[string]ModelEntry   `yaml:"models"`
}

type ModelEntry struct {
	Enabled       bool    `yaml:"enabled"`
	Path          string  `yaml:"path"`
	ContextLength int     `yaml:"context_length"`
	BatchSize     int     `yaml:"batch_size"`
	Threads       int     `yaml:"threads"`
	GPULayers     int     `yaml:"gpu_layers"`
	Temperature   float64 `yaml:"temperature"`
	TopP          float64 `yaml:"top_p"`
	TopK          int     `yaml:"top_k"`
	RepeatPenalty float64 `yaml:"repeat_penalty"`
	Mmap          bool    `yaml:"mmap"`
	Mlock         bool    `yaml:"mlock"`

	// Catalogue fields beyond spec.md's named config surface, needed to
	// build a models.Descriptor/backend.Config pair for this entry. Unset
	// BackendKind defaults to "local-process" at catalogue build time.
	BackendKind   string  `yaml:"backend_kind,omitempty"`
	RequiredRAMMB uint64  `yaml:"required_ram_mb,omitempty"`
	QualityScore  float64 `yaml:"quality_score,omitempty"`
	SpeedScore    float64 `yaml:"speed_score,omitempty"`
	SweetSpot     float64 `yaml:"sweet_spot,omitempty"`
	Heavyweight   bool    `yaml:"heavyweight,omitempty"`

	// LocalProcess backend fields.
	BinaryPath string `yaml:"binary_path,omitempty"`
	Port       int    `yaml:"port,omitempty"`

	// Anthropic backend fields.
	APIKey    string `yaml:"api_key,omitempty"`
	ModelName string `yaml:"model_name,omitempty"`
}

// Default returns the built-in defaults named throughout spec.md.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			WorkingMemorySize:      20,
			ShortTermSize:          100,
			ConsolidationThreshold: 0.8,
			ConsolidationInterval:  3600,
			ImportanceDecayRate:    0.1,
		},
		Vector: VectorConfig{
			Host:               "",
			Port:               6334,
			CollectionPrefix:   "localmind",
			EmbeddingDimension: 384,
		},
		Performance: PerformanceConfig{
			CacheSizeMB:           256,
			MaxConcurrentRequests: 10,
			RequestTimeoutSeconds: 300,
			StreamBufferSize:      64,
		},
		Models: ModelsConfig{
			DefaultStrategy:      "adaptive",
			DefaultContextLength: 4096,
			Models:               map[string]ModelEntry{},
		},
	}
}

// Load reads a YAML file, falling back to Default() for an absent file, then
// applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg, []string{EnvPrefix})
	return cfg, nil
}

// applyEnvOverrides walks cfg by its yaml tags and overwrites any field whose
// APP_<SECTION>_<KEY...> environment variable is set.
func applyEnvOverrides(v interface{}, path []string) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		tag := field.Tag.Get("yaml")
		if tag == "" || tag == "-" {
			continue
		}
		name := strings.Split(tag, ",")[0]
		envPath := append(append([]string{}, path...), strings.ToUpper(name))
		fv := rv.Field(i)

		switch fv.Kind() {
		case reflect.Struct:
			applyEnvOverrides(fv.Addr().Interface(), envPath)
			continue
		case reflect.Map:
			// Per-model overrides are addressed via configs/teams.yaml-style
			// files instead; env overrides stop at the map boundary.
			continue
		}

		key := strings.Join(envPath, "_")
		raw, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		setFromString(fv, raw)
	}
}

func setFromString(fv reflect.Value, raw string) {
	if !fv.CanSet() {
		return
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int64:
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			fv.SetInt(n)
		}
	case reflect.Float64, reflect.Float32:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			fv.SetFloat(f)
		}
	case reflect.Bool:
		if b, err := strconv.ParseBool(raw); err == nil {
			fv.SetBool(b)
		}
	}
}
