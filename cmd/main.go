package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"guarded-rag/internal/chromemdb"
	"guarded-rag/internal/config"
	"guarded-rag/internal/embedding"
	"guarded-rag/internal/guard"
	"guarded-rag/internal/helper"
	"guarded-rag/internal/llmservice"
	"guarded-rag/internal/parser"
	"guarded-rag/internal/rag"
	"guarded-rag/internal/ranker"
)

const envConfigPath = "GUARDED_RAG_CONFIG"

type options struct {
	configPath   string
	model        string
	guardToken   string
	pangeaDomain string
	openAIAPIKey string
	dataDir      string
	logLevel     string
	dryRun       bool
}

func main() {
	// .env values win over the inherited environment
	_ = godotenv.Overload()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		stop()
		log.Fatal().Err(err).Msg("guarded-rag failed")
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:           "guarded-rag PROMPT",
		Short:         "Answer a prompt from local documents filtered through AI Guard",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg, args[0], opts.dryRun, stdout)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", envOr(envConfigPath, config.DefaultConfigPath), "Path to YAML config file. May also be set via the "+envConfigPath+" environment variable.")
	flags.StringVar(&opts.model, "model", config.DefaultChatModel, "OpenAI chat model.")
	flags.StringVar(&opts.guardToken, "ai-guard-token", "", "Pangea AI Guard API token. May also be set via the "+config.EnvGuardToken+" environment variable.")
	flags.StringVar(&opts.pangeaDomain, "pangea-domain", config.DefaultPangeaDomain, "Pangea API domain. May also be set via the "+config.EnvPangeaDomain+" environment variable.")
	flags.StringVar(&opts.openAIAPIKey, "openai-api-key", "", "OpenAI API key. May also be set via the "+config.EnvOpenAIKey+" environment variable.")
	flags.StringVar(&opts.dataDir, "data-dir", config.DefaultDataDir, "Directory holding the documents. May also be set via the "+config.EnvDataDir+" environment variable.")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error).")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Print the retrieved chunks as JSON instead of asking the model.")
	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadConfig layers YAML file, environment and explicitly set flags, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command, opts *options) (*config.Config, error) {
	flags := cmd.Flags()

	// only the implicit default path may be absent
	load := config.LoadConfigIfExists
	if flags.Changed("config") || os.Getenv(envConfigPath) != "" {
		load = config.LoadConfig
	}
	cfg, err := load(opts.configPath)
	if err != nil {
		return nil, err
	}
	config.ApplyEnv(cfg, os.Getenv)

	override := func(name string, dst *string, value string) {
		if flags.Changed(name) {
			*dst = value
		}
	}
	override("model", &cfg.Chat.Model, opts.model)
	override("ai-guard-token", &cfg.Guard.Token, opts.guardToken)
	override("pangea-domain", &cfg.Guard.Domain, opts.pangeaDomain)
	override("openai-api-key", &cfg.OpenAIAPIKey, opts.openAIAPIKey)
	override("data-dir", &cfg.DataDir, opts.dataDir)
	override("log-level", &cfg.LogLevel, opts.logLevel)

	if exe, err := os.Executable(); err == nil {
		cfg.DataDir = config.ResolveDataDir(cfg.DataDir, exe)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level %q", config.ErrInvalidConfig, cfg.LogLevel)
	}
	zerolog.SetGlobalLevel(level)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	if err := parser.CheckDataDir(cfg.DataDir); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, prompt string, dryRun bool, stdout io.Writer) error {
	g, err := guard.New(&cfg.Guard)
	if err != nil {
		return fmt.Errorf("failed to create guard: %w", err)
	}
	embedder, err := embedding.NewEmbedder(&cfg.Embedding, cfg.OpenAIAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create embedder: %w", err)
	}
	answerer, err := llmservice.NewOpenAIClient(&cfg.Chat, cfg.OpenAIAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create chat client: %w", err)
	}

	var r rag.Ranker
	switch cfg.Ranker.Type {
	case config.RankerChromem:
		r = chromemdb.NewRanker()
	default:
		r = ranker.NewCosine()
	}

	pipeline := rag.NewRAG(cfg, g, embedder, r, answerer)
	if dryRun {
		top, err := pipeline.Retrieve(ctx, prompt)
		if err != nil {
			return err
		}
		return helper.PrettyPrint(stdout, top)
	}

	out := bufio.NewWriter(stdout)
	defer out.Flush()
	return pipeline.Query(ctx, prompt, out)
}
