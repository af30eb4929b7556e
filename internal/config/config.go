package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"guarded-rag/internal/models"
)

const (
	GuardPangea = "pangea"
	GuardLocal  = "local"

	RankerCosine  = "cosine"
	RankerChromem = "chromem"

	DefaultConfigPath     = "./configs/config.yaml"
	DefaultDataDir        = "./data"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultPangeaDomain   = "aws.us.pangea.cloud"
	DefaultBatchSize      = 2048

	DefaultGuardPollIntervalMillis = 1000
	DefaultGuardPollTimeoutSecs    = 120
)

// environment variables recognised by ApplyEnv
const (
	EnvGuardToken   = "PANGEA_AI_GUARD_TOKEN"
	EnvPangeaDomain = "PANGEA_DOMAIN"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvChatModel    = "OPENAI_MODEL"
	EnvDataDir      = "GUARDED_RAG_DATA_DIR"
	EnvLogLevel     = "GUARDED_RAG_LOG_LEVEL"
)

var (
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidConfig     = errors.New("invalid config")
)

type GuardConfig struct {
	Type        string `yaml:"type"`
	Token       string `yaml:"token"`
	Domain      string `yaml:"domain"`
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	// queued (HTTP 202) results are polled every PollIntervalMillis until
	// PollTimeoutSecs have passed
	PollIntervalMillis int `yaml:"poll_interval_ms"`
	PollTimeoutSecs    int `yaml:"poll_timeout_secs"`
}

type EmbeddingConfig struct {
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	BatchSize   int    `yaml:"batch_size"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type ChatConfig struct {
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

type RankerConfig struct {
	Type string `yaml:"type"`
	TopK int    `yaml:"top_k"`
}

type LoaderConfig struct {
	Patterns      []string `yaml:"patterns"`
	MaxTokens     int      `yaml:"max_tokens"`
	StripMarkdown bool     `yaml:"strip_markdown"`
}

type Config struct {
	DataDir      string          `yaml:"data_dir"`
	LogLevel     string          `yaml:"log_level"`
	OpenAIAPIKey string          `yaml:"openai_api_key"`
	Guard        GuardConfig     `yaml:"guard"`
	Embedding    EmbeddingConfig `yaml:"embedding"`
	Chat         ChatConfig      `yaml:"chat"`
	Ranker       RankerConfig    `yaml:"ranker"`
	Loader       LoaderConfig    `yaml:"loader"`
}

// LoadConfig reads the YAML file at path and fills in the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigIfExists is LoadConfig except that a missing file yields the
// defaults. It is meant for the implicit default path only.
func LoadConfigIfExists(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = &Config{}
		ApplyDefaults(cfg)
		return cfg, nil
	}
	return cfg, err
}

// ResolveDataDir returns dataDir unchanged unless it is the default relative
// directory and that does not exist, in which case a data directory next to
// the executable is used when present.
func ResolveDataDir(dataDir, executable string) string {
	if dataDir != DefaultDataDir || isDir(dataDir) || executable == "" {
		return dataDir
	}
	if candidate := filepath.Join(filepath.Dir(executable), "data"); isDir(candidate) {
		return candidate
	}
	return dataDir
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// ApplyDefaults fills every zero value with its built-in default.
func ApplyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Guard.Type == "" {
		cfg.Guard.Type = GuardPangea
	}
	if cfg.Guard.Domain == "" {
		cfg.Guard.Domain = DefaultPangeaDomain
	}
	if cfg.Guard.PollIntervalMillis == 0 {
		cfg.Guard.PollIntervalMillis = DefaultGuardPollIntervalMillis
	}
	if cfg.Guard.PollTimeoutSecs == 0 {
		cfg.Guard.PollTimeoutSecs = DefaultGuardPollTimeoutSecs
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = DefaultEmbeddingModel
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = DefaultBatchSize
	}
	if cfg.Chat.Model == "" {
		cfg.Chat.Model = DefaultChatModel
	}
	if cfg.Ranker.Type == "" {
		cfg.Ranker.Type = RankerCosine
	}
	if cfg.Ranker.TopK == 0 {
		cfg.Ranker.TopK = models.DefaultTopK
	}
	if len(cfg.Loader.Patterns) == 0 {
		cfg.Loader.Patterns = []string{"*.md"}
	}
	if cfg.Loader.MaxTokens == 0 {
		cfg.Loader.MaxTokens = models.DefaultMaxTokens
	}
}

// ApplyEnv overrides config values with the non-empty environment variables.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Guard.Token, EnvGuardToken)
	set(&cfg.Guard.Domain, EnvPangeaDomain)
	set(&cfg.OpenAIAPIKey, EnvOpenAIKey)
	set(&cfg.Chat.Model, EnvChatModel)
	set(&cfg.DataDir, EnvDataDir)
	set(&cfg.LogLevel, EnvLogLevel)
}

// Validate reports configuration errors that must stop the program before
// any network call is made.
func Validate(cfg *Config) error {
	if cfg.OpenAIAPIKey == "" {
		return fmt.Errorf("%w: OpenAI API key (--openai-api-key or %s)", ErrMissingCredential, EnvOpenAIKey)
	}
	switch cfg.Guard.Type {
	case GuardPangea:
		if cfg.Guard.Token == "" {
			return fmt.Errorf("%w: AI Guard token (--ai-guard-token or %s)", ErrMissingCredential, EnvGuardToken)
		}
		if cfg.Guard.Domain == "" && cfg.Guard.BaseURL == "" {
			return fmt.Errorf("%w: guard domain is empty", ErrInvalidConfig)
		}
	case GuardLocal:
	default:
		return fmt.Errorf("%w: unknown guard type %q", ErrInvalidConfig, cfg.Guard.Type)
	}
	switch cfg.Ranker.Type {
	case RankerCosine, RankerChromem:
	default:
		return fmt.Errorf("%w: unknown ranker type %q", ErrInvalidConfig, cfg.Ranker.Type)
	}
	if cfg.Ranker.TopK < 0 {
		return fmt.Errorf("%w: top_k must not be negative", ErrInvalidConfig)
	}
	if cfg.Loader.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens must not be negative", ErrInvalidConfig)
	}
	if cfg.Guard.PollIntervalMillis < 0 || cfg.Guard.PollTimeoutSecs < 0 {
		return fmt.Errorf("%w: guard poll settings must not be negative", ErrInvalidConfig)
	}
	if cfg.Embedding.BatchSize < 0 {
		return fmt.Errorf("%w: batch_size must not be negative", ErrInvalidConfig)
	}
	return nil
}
