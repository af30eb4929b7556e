package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_MissingFileFails(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadConfigIfExists_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfigIfExists(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultDataDir, cfg.DataDir)
	assert.Equal(t, GuardPangea, cfg.Guard.Type)
	assert.Equal(t, DefaultPangeaDomain, cfg.Guard.Domain)
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedding.Model)
	assert.Equal(t, DefaultChatModel, cfg.Chat.Model)
	assert.Equal(t, RankerCosine, cfg.Ranker.Type)
	assert.Equal(t, 5, cfg.Ranker.TopK)
	assert.Equal(t, 500, cfg.Loader.MaxTokens)
	assert.Equal(t, []string{"*.md"}, cfg.Loader.Patterns)
	assert.Equal(t, DefaultGuardPollIntervalMillis, cfg.Guard.PollIntervalMillis)
	assert.Equal(t, DefaultGuardPollTimeoutSecs, cfg.Guard.PollTimeoutSecs)
}

func TestLoadConfigIfExists_InvalidYAMLStillFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: [unclosed"), 0o644))

	_, err := LoadConfigIfExists(path)
	assert.Error(t, err)
}

func TestResolveDataDir(t *testing.T) {
	binDir := t.TempDir()
	executable := filepath.Join(binDir, "guarded-rag")

	// no ./data next to the test package and none next to the executable
	assert.Equal(t, DefaultDataDir, ResolveDataDir(DefaultDataDir, executable))

	require.NoError(t, os.Mkdir(filepath.Join(binDir, "data"), 0o755))
	assert.Equal(t, filepath.Join(binDir, "data"), ResolveDataDir(DefaultDataDir, executable))

	assert.Equal(t, "/srv/docs", ResolveDataDir("/srv/docs", executable))
	assert.Equal(t, DefaultDataDir, ResolveDataDir(DefaultDataDir, ""))
}

func TestLoadConfig_ReadsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlData := `
data_dir: /srv/docs
guard:
  type: local
chat:
  model: gpt-4o
ranker:
  type: chromem
  top_k: 3
loader:
  patterns: ["*.md", "*.pdf"]
  max_tokens: 100
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/docs", cfg.DataDir)
	assert.Equal(t, GuardLocal, cfg.Guard.Type)
	assert.Equal(t, "gpt-4o", cfg.Chat.Model)
	assert.Equal(t, RankerChromem, cfg.Ranker.Type)
	assert.Equal(t, 3, cfg.Ranker.TopK)
	assert.Equal(t, []string{"*.md", "*.pdf"}, cfg.Loader.Patterns)
	assert.Equal(t, 100, cfg.Loader.MaxTokens)
	// untouched sections still get defaults
	assert.Equal(t, DefaultEmbeddingModel, cfg.Embedding.Model)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("guard: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestApplyEnv_OverridesNonEmpty(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	env := map[string]string{
		EnvGuardToken:   "pts_token",
		EnvPangeaDomain: "gcp.us.pangea.cloud",
		EnvOpenAIKey:    "sk-test",
		EnvChatModel:    "  ",
	}
	ApplyEnv(cfg, func(k string) string { return env[k] })

	assert.Equal(t, "pts_token", cfg.Guard.Token)
	assert.Equal(t, "gcp.us.pangea.cloud", cfg.Guard.Domain)
	assert.Equal(t, "sk-test", cfg.OpenAIAPIKey)
	assert.Equal(t, DefaultChatModel, cfg.Chat.Model)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{OpenAIAPIKey: "sk", Guard: GuardConfig{Token: "tok"}}
		ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing openai key", mutate: func(c *Config) { c.OpenAIAPIKey = "" }, wantErr: ErrMissingCredential},
		{name: "missing guard token", mutate: func(c *Config) { c.Guard.Token = "" }, wantErr: ErrMissingCredential},
		{name: "local guard needs no token", mutate: func(c *Config) { c.Guard.Type = GuardLocal; c.Guard.Token = "" }},
		{name: "unknown guard", mutate: func(c *Config) { c.Guard.Type = "acme" }, wantErr: ErrInvalidConfig},
		{name: "unknown ranker", mutate: func(c *Config) { c.Ranker.Type = "faiss" }, wantErr: ErrInvalidConfig},
		{name: "negative top k", mutate: func(c *Config) { c.Ranker.TopK = -1 }, wantErr: ErrInvalidConfig},
		{name: "negative poll interval", mutate: func(c *Config) { c.Guard.PollIntervalMillis = -1 }, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := Validate(cfg)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}
