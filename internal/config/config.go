// Package config loads and defaults the settings for the memory engine:
// embedding endpoint, vector-store backend, token budgets, and the optional
// cache/eventing/cold-storage side channels.
package config

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"
)

// EmbeddingConfig describes how to reach the embedding port (spec §6:
// "embed(text, task) -> float[1024]").
type EmbeddingConfig struct {
	BaseURL   string            `yaml:"base_url"`
	Path      string            `yaml:"path"`
	Model     string            `yaml:"model"`
	APIKey    string            `yaml:"api_key"`
	APIHeader string            `yaml:"api_header"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Dimension int               `yaml:"dimension"`
	Timeout   int               `yaml:"timeout_seconds"`
}

// PostgresConfig configures the primary vector-store backend.
type PostgresConfig struct {
	ConnectionString string `yaml:"connection_string"`
}

// QdrantConfig configures the alternate vector-store backend.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Collection string `yaml:"collection"`
}

// RedisConfig backs cross-instance invalidation of the theme cache when a
// decay sweep or a theme split/merge changes the store out from under a
// peer Engine's local retriever state (spec §5 "Shared resources").
type RedisConfig struct {
	Enabled               bool   `yaml:"enabled"`
	Addr                  string `yaml:"addr"`
	Password              string `yaml:"password,omitempty"`
	DB                    int    `yaml:"db"`
	TLSInsecureSkipVerify bool   `yaml:"tls_insecure_skip_verify,omitempty"`
}

// KafkaConfig optionally emits maintenance events (decay sweeps, theme
// splits/merges) for downstream observability pipelines. Disabled by
// default; absence degrades gracefully per spec §6.
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// S3SSEConfig configures server-side encryption for archived episode blobs.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", "sse-s3", or "sse-kms"
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures the object-store backend that archives an episode's
// raw messages before the Decay Manager blanks them from the row
// (SPEC_FULL.md supplemental feature).
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Prefix                string      `yaml:"prefix"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse,omitempty"`
}

// ObjectStoreConfig optionally archives stripped raw-message blobs before
// they are blanked from the episode row (SPEC_FULL.md supplemental feature).
type ObjectStoreConfig struct {
	Enabled bool     `yaml:"enabled"`
	S3      S3Config `yaml:"s3"`
}

// TelemetryConfig controls OpenTelemetry trace/metric export for the
// Observability component (spec §4.10 "observability" reports surfaced as
// OTel metrics alongside the in-process ObservabilityRecorder).
type TelemetryConfig struct {
	Enabled        bool   `yaml:"enabled"`
	OTLP           string `yaml:"otlp_endpoint"`
	ServiceName    string `yaml:"service_name"`
	ServiceVersion string `yaml:"service_version"`
	Environment    string `yaml:"environment"`
}

// Config is the full settings surface for the memory engine (spec §6).
type Config struct {
	// Enabled is loaded and defaulted (true) here; nothing in this module
	// reads it, so false does not disable any hook.
	Enabled bool `yaml:"enabled"`

	// EpisodeBatchSize is the Episode Builder's default batch size (5).
	EpisodeBatchSize int `yaml:"episode_batch_size"`
	// TokenBudget is the retrieval-injection budget (default 500).
	TokenBudget int `yaml:"token_budget"`
	// GlobalTokenBudget is the Budget Manager's total prompt budget (default 4000).
	GlobalTokenBudget int `yaml:"global_token_budget"`
	// MaxThemes is the configured theme-count cap (default 50). Nothing in
	// this module reads it; the theme count is not capped.
	MaxThemes int `yaml:"max_themes"`
	// DBPath is an on-disk path for a local backend, filled from
	// LANCEDB_PATH when empty. Nothing in this module reads it; the
	// in-memory store keeps no snapshot file.
	DBPath string `yaml:"db_path"`

	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Postgres    PostgresConfig    `yaml:"postgres"`
	Qdrant      QdrantConfig      `yaml:"qdrant"`
	Redis       RedisConfig       `yaml:"redis,omitempty"`
	Kafka       KafkaConfig       `yaml:"kafka,omitempty"`
	ObjectStore ObjectStoreConfig `yaml:"object_store,omitempty"`
	OTel        TelemetryConfig   `yaml:"otel,omitempty"`
}

// Default returns the spec's documented defaults (spec §6 Config table).
func Default() Config {
	return Config{
		Enabled:           true,
		EpisodeBatchSize:  5,
		TokenBudget:       500,
		GlobalTokenBudget: 4000,
		MaxThemes:         50,
		Embedding: EmbeddingConfig{
			Model:     "jina-embeddings-v5-text-small",
			Dimension: 1024,
			APIHeader: "Authorization",
			Path:      "/v1/embeddings",
			Timeout:   30,
		},
	}
}

// LoadConfig reads a YAML file and applies it on top of Default(), then
// layers environment defaults (spec §6: "LANCEDB_PATH and JINA_API_KEY
// provide defaults when config is silent").
func LoadConfig(path string) (Config, error) {
	// Load a .env file into the process environment if present, without
	// overriding variables the host has already set.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			pterm.Warning.Printf("memory: could not read config %s: %v (using defaults)\n", path, err)
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnvDefaults(&cfg)
	return cfg, nil
}

// applyEnvDefaults fills DBPath and Embedding.APIKey from the environment
// when they are empty. JINA_MODEL, when set, replaces Embedding.Model even
// if the file or the defaults already set one.
func applyEnvDefaults(cfg *Config) {
	if cfg.DBPath == "" {
		cfg.DBPath = os.Getenv("LANCEDB_PATH")
	}
	if cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = os.Getenv("JINA_API_KEY")
	}
	if v := os.Getenv("JINA_MODEL"); v != "" {
		cfg.Embedding.Model = v
	}
}
