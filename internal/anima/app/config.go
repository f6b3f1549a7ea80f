package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bdobrica/Anima/common/environment"
	"github.com/bdobrica/Anima/internal/anima/memory"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/runtime/fastembed"
	"github.com/bdobrica/Anima/internal/anima/runtime/ollama"
	"github.com/bdobrica/Anima/internal/anima/sleep"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// EnvPrefix prefixes every environment variable Anima reads.
const EnvPrefix = "ANIMA_"

// Embedder backends.
const (
	EmbedderOllama    = "ollama"
	EmbedderONNX      = "onnx"
	EmbedderFastEmbed = "fastembed"
	EmbedderNone      = "none"
)

// Index backends.
const (
	IndexSQLite  = "sqlite"
	IndexChromem = "chromem"
)

// OllamaConfig selects the daemon and its models.
type OllamaConfig struct {
	Host        string        `yaml:"host"`
	ChatModel   string        `yaml:"chat_model"`
	EmbedModel  string        `yaml:"embed_model"`
	Timeout     time.Duration `yaml:"timeout"`
	ContextSize int           `yaml:"context_size"`
}

// ONNXConfig locates an in-process embedding model.
type ONNXConfig struct {
	ModelPath     string `yaml:"model_path"`
	TokenizerPath string `yaml:"tokenizer_path"`
	LibraryPath   string `yaml:"library_path"`
	Dimensions    int    `yaml:"dimensions"`
}

// FastEmbedConfig selects a fastembed model.
type FastEmbedConfig struct {
	Model    string `yaml:"model"`
	CacheDir string `yaml:"cache_dir"`
}

// Config holds everything needed to assemble a Service.
type Config struct {
	DatabasePath string        `yaml:"database_path"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	// LogContent allows message text in debug logs. Off by default.
	LogContent bool `yaml:"log_content"`

	// HTTPAddr is where `anima serve` listens.
	HTTPAddr string `yaml:"http_addr"`

	Ollama    OllamaConfig    `yaml:"ollama"`
	Embedder  string          `yaml:"embedder"`
	ONNX      ONNXConfig      `yaml:"onnx"`
	FastEmbed FastEmbedConfig `yaml:"fastembed"`
	// EmbedCacheBytes bounds the embedding cache; 0 disables it.
	EmbedCacheBytes int64 `yaml:"embed_cache_bytes"`

	Index         string  `yaml:"index"`
	MinSimilarity float64 `yaml:"min_similarity"`
	TopK          int     `yaml:"top_k"`

	SleepSchema string `yaml:"sleep_schema"`
	// SleepInterval runs a sleep cycle periodically when serving; 0 turns
	// the scheduler off.
	SleepInterval time.Duration `yaml:"sleep_interval"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		DatabasePath: "anima.db",
		WriteTimeout: store.DefaultWriteTimeout,
		LogLevel:     "info",
		LogFormat:    "text",
		HTTPAddr:     "127.0.0.1:7878",
		Ollama: OllamaConfig{
			Host:        ollama.DefaultHost,
			ChatModel:   "llama3.2:3b",
			EmbedModel:  "nomic-embed-text",
			ContextSize: runtime.DefaultContextSize,
		},
		Embedder:        EmbedderOllama,
		FastEmbed:       FastEmbedConfig{Model: fastembed.DefaultModel},
		EmbedCacheBytes: 16 << 20,
		Index:           IndexSQLite,
		MinSimilarity:   float64(store.DefaultMinSimilarity),
		TopK:            memory.DefaultTopK,
		SleepSchema:     string(sleep.SchemaSplit),
	}
}

// LoadConfig builds a Config from the defaults, then the YAML file at path
// (skipped when path is empty), then ANIMA_* environment variables.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("app: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("app: parse config %s: %w", path, err)
		}
	}
	cfg = cfg.withEnv(environment.Prefix(EnvPrefix))
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) withEnv(env environment.Prefix) Config {
	c.DatabasePath = env.StringOr("DB_PATH", c.DatabasePath)
	c.WriteTimeout = env.DurationOr("WRITE_TIMEOUT", c.WriteTimeout)
	c.LogLevel = env.StringOr("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.StringOr("LOG_FORMAT", c.LogFormat)
	c.LogContent = env.BoolOr("LOG_CONTENT", c.LogContent)
	c.HTTPAddr = env.StringOr("HTTP_ADDR", c.HTTPAddr)

	// OLLAMA_HOST is honoured the way the ollama CLI does.
	c.Ollama.Host = env.StringOr("OLLAMA_HOST", environment.StringOr("OLLAMA_HOST", c.Ollama.Host))
	c.Ollama.ChatModel = env.StringOr("CHAT_MODEL", c.Ollama.ChatModel)
	c.Ollama.EmbedModel = env.StringOr("EMBED_MODEL", c.Ollama.EmbedModel)
	c.Ollama.Timeout = env.DurationOr("OLLAMA_TIMEOUT", c.Ollama.Timeout)
	c.Ollama.ContextSize = env.IntOr("CONTEXT_SIZE", c.Ollama.ContextSize)

	c.Embedder = env.StringOr("EMBEDDER", c.Embedder)
	c.ONNX.ModelPath = env.StringOr("ONNX_MODEL", c.ONNX.ModelPath)
	c.ONNX.TokenizerPath = env.StringOr("ONNX_TOKENIZER", c.ONNX.TokenizerPath)
	c.ONNX.LibraryPath = env.StringOr("ONNX_LIBRARY", c.ONNX.LibraryPath)
	c.ONNX.Dimensions = env.IntOr("ONNX_DIMENSIONS", c.ONNX.Dimensions)
	c.FastEmbed.Model = env.StringOr("FASTEMBED_MODEL", c.FastEmbed.Model)
	c.FastEmbed.CacheDir = env.StringOr("FASTEMBED_CACHE_DIR", c.FastEmbed.CacheDir)
	if env.IsSet("EMBED_CACHE_BYTES") {
		c.EmbedCacheBytes = int64(env.IntOr("EMBED_CACHE_BYTES", int(c.EmbedCacheBytes)))
	}

	c.Index = env.StringOr("INDEX", c.Index)
	c.MinSimilarity = env.Float64Or("MIN_SIMILARITY", c.MinSimilarity)
	c.TopK = env.IntOr("TOP_K", c.TopK)

	c.SleepSchema = env.StringOr("SLEEP_SCHEMA", c.SleepSchema)
	c.SleepInterval = env.DurationOr("SLEEP_INTERVAL", c.SleepInterval)
	return c
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	switch c.Embedder {
	case EmbedderOllama, EmbedderONNX, EmbedderFastEmbed, EmbedderNone:
	default:
		errs = append(errs, fmt.Errorf("embedder %q: want ollama, onnx, fastembed or none", c.Embedder))
	}
	if c.Embedder == EmbedderONNX && (c.ONNX.ModelPath == "" || c.ONNX.TokenizerPath == "") {
		errs = append(errs, errors.New("onnx embedder needs onnx.model_path and onnx.tokenizer_path"))
	}
	switch c.Index {
	case IndexSQLite, IndexChromem:
	default:
		errs = append(errs, fmt.Errorf("index %q: want sqlite or chromem", c.Index))
	}
	if c.MinSimilarity < -1 || c.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("min_similarity %v: must be within [-1, 1]", c.MinSimilarity))
	}
	if c.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top_k %d: must be positive", c.TopK))
	}
	if _, err := sleep.ParseSchema(c.SleepSchema); err != nil {
		errs = append(errs, err)
	}
	if c.SleepInterval < 0 {
		errs = append(errs, fmt.Errorf("sleep_interval %v: must not be negative", c.SleepInterval))
	}
	if c.Ollama.ChatModel == "" {
		errs = append(errs, errors.New("ollama.chat_model is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}
