package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/resumax/internal/advisor"
	"github.com/spigell/resumax/internal/ai"
	"github.com/spigell/resumax/internal/ai/gemini"
	"github.com/spigell/resumax/internal/logger"
	"github.com/spigell/resumax/internal/prompt"
	"github.com/spigell/resumax/internal/secrets"
	"github.com/spigell/resumax/internal/store"
	"github.com/spigell/resumax/internal/store/sqlite"
)

// application is everything a command needs to run chat turns.
type application struct {
	config  *Config
	logger  *zap.Logger
	store   store.Store
	repo    *store.Repository
	advisor *advisor.Service
}

func newLogger(output string) (*zap.Logger, error) {
	return logger.New(logger.Options{
		JSON:   viper.GetBool("json"),
		Debug:  viper.GetBool("debug"),
		Output: output,
	})
}

// newApplication builds the store and, when withAI is set, the generator and
// advisor on top of it. Callers must Close the application.
func newApplication(ctx context.Context, log *zap.Logger, withAI bool) (*application, error) {
	config, err := getConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx, config.Store, log)
	if err != nil {
		return nil, err
	}

	a := &application{
		config: config,
		logger: log,
		store:  st,
		repo:   store.NewRepository(st, config.Chat.Retention),
	}

	if !withAI {
		return a, nil
	}

	generator, err := newGenerator(ctx, config.AI, log)
	if err != nil {
		st.Close()
		return nil, err
	}

	assembler := prompt.NewAssembler(config.Chat.ContextTurns, config.Chat.DetailLength, config.Chat.ResumeLength)
	a.advisor = advisor.New(a.repo, generator, assembler, log)

	return a, nil
}

func (a *application) Close() error {
	return a.store.Close()
}

func openStore(ctx context.Context, cfg StoreConfig, log *zap.Logger) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		st, err := sqlite.Open(ctx, cfg.Path, log.Named("sqlite"))
		if err != nil {
			return nil, fmt.Errorf("opening sqlite store %q: %w", cfg.Path, err)
		}
		log.Info("using sqlite store", zap.String("path", cfg.Path))
		return st, nil
	case "memory":
		log.Warn("using in-memory store, records are lost on exit")
		return store.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Driver)
	}
}

func newGenerator(ctx context.Context, cfg AIConfig, log *zap.Logger) (ai.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider != "" && provider != gemini.Provider {
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}

	apiKey, err := secrets.Load(geminiKeySource(cfg.Gemini))
	if err != nil {
		return nil, fmt.Errorf("%w (set GEMINI_API_KEY, GEMINI_API_KEY_FILE or ai.gemini.api-key-file)", err)
	}

	temperature := cfg.Gemini.Temperature

	generator, err := gemini.NewGenerator(ctx, gemini.Config{
		APIKey:          apiKey,
		BaseURL:         cfg.Gemini.BaseURL,
		Model:           cfg.Gemini.Model,
		MaxRetries:      cfg.Gemini.MaxRetries,
		InitialDelay:    cfg.Gemini.InitialDelay,
		Temperature:     &temperature,
		TopK:            cfg.Gemini.TopK,
		TopP:            cfg.Gemini.TopP,
		MaxOutputTokens: cfg.Gemini.MaxOutputTokens,
		MaxLogLength:    cfg.Gemini.MaxLogLength,
	}, log.With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries)))
	if err != nil {
		return nil, err
	}

	return generator, nil
}

// geminiKeySource resolves the api key from the key file, then GEMINI_API_KEY,
// then ai.gemini.api-key (RESUMAX_AI_GEMINI_API_KEY).
func geminiKeySource(cfg GeminiConfig) secrets.Source {
	return secrets.Source{
		Name:  "gemini api key",
		File:  cfg.APIKeyFile,
		Env:   geminiKeyEnv,
		Value: cfg.APIKey,
	}
}
