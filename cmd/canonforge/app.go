package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/myrjola/canonforge/internal/acceptance"
	"github.com/myrjola/canonforge/internal/assembler"
	"github.com/myrjola/canonforge/internal/config"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/generation"
	"github.com/myrjola/canonforge/internal/grounding"
	"github.com/myrjola/canonforge/internal/llm"
	"github.com/myrjola/canonforge/internal/logging"
	"github.com/myrjola/canonforge/internal/repositories"
	"github.com/myrjola/canonforge/internal/sqlite"
	"github.com/myrjola/canonforge/internal/telemetry"
	"github.com/myrjola/canonforge/internal/templates"
	"github.com/myrjola/canonforge/internal/trust"
)

type application struct {
	cfg          config.Config
	logger       *slog.Logger
	db           *sqlite.Database
	excerpts     *repositories.SourceExcerptRepository
	router       *llm.Router
	orchestrator *generation.Orchestrator
	acceptance   *acceptance.Manager
	shutdown     func(context.Context) error
}

func newApplication(ctx context.Context, cfg config.Config, logSink io.Writer) (*application, error) {
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(logSink, &slog.HandlerOptions{
		AddSource:   false,
		Level:       cfg.LogLevel,
		ReplaceAttr: nil,
	})))

	shutdown, err := telemetry.Setup(ctx, "canonforge", cfg.OTelEndpoint)
	if err != nil {
		return nil, errors.Wrap(err, "set up telemetry")
	}

	db, err := sqlite.NewDatabase(ctx, cfg.SQLiteURL, logger)
	if err != nil {
		return nil, errors.Join(errors.Wrap(err, "open database", slog.String("url", cfg.SQLiteURL)), shutdown(ctx))
	}
	app := &application{cfg: cfg, logger: logger, db: db, shutdown: shutdown}

	registry, err := loadTemplates(cfg.TemplatesDir)
	if err != nil {
		return nil, errors.Join(err, app.close(ctx))
	}
	if app.router, err = newRouter(ctx, cfg, logger); err != nil {
		return nil, errors.Join(err, app.close(ctx))
	}

	drafts := repositories.NewDraftRepository(db, logger)
	canonical := repositories.NewCanonicalEntityRepository(db, logger)
	app.excerpts = repositories.NewSourceExcerptRepository(db, logger)
	thresholds := cfg.TrustThresholds()

	opts := generation.DefaultOptions()
	opts.Retry = generation.RetryPolicy{
		MaxAttempts:    cfg.LLMMaxAttempts,
		InitialBackoff: cfg.LLMInitialBackoff,
		MaxBackoff:     cfg.LLMMaxBackoff,
	}
	opts.CampaignConcurrency = cfg.CampaignConcurrency
	app.orchestrator = generation.New(generation.Dependencies{
		Drafts:    drafts,
		Templates: registry,
		Grounder:  grounding.NewMulti(logger, grounding.NewLibrary(app.excerpts)),
		Assembler: assembler.New(assembler.CharEstimator{}, logger),
		Provider:  app.router,
		Trust:     trust.NewAssigner(trust.NewCitationVerifier(thresholds), thresholds),
	}, opts, logger)

	app.acceptance = acceptance.New(drafts, canonical, acceptance.Options{
		LockMode: acceptance.LockMode(cfg.LockMode),
		LockWait: cfg.LockWait,
		LockTTL:  cfg.LockTTL,
		Now:      nil,
	}, logger)
	return app, nil
}

func loadTemplates(dir string) (*templates.Registry, error) {
	if dir == "" {
		return templates.NewRegistry() //nolint:wrapcheck // already annotated.
	}
	return templates.LoadDir(dir) //nolint:wrapcheck // already annotated.
}

// newRouter registers the configured provider as the default and every other provider that has credentials. The
// offline stub is always available by name.
func newRouter(ctx context.Context, cfg config.Config, logger *slog.Logger) (*llm.Router, error) {
	var providers []llm.Provider
	add := func(name string) error {
		switch name {
		case config.ProviderOpenAI:
			p, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
				APIKey:  cfg.OpenAIAPIKey,
				BaseURL: cfg.OpenAIBaseURL,
				Model:   cfg.OpenAIModel,
				Stream:  cfg.OpenAIStream,
			}, logger)
			if err != nil {
				return errors.Wrap(err, "create openai provider")
			}
			providers = append(providers, p)
		case config.ProviderGemini:
			p, err := llm.NewGeminiProvider(ctx, llm.GeminiConfig{APIKey: cfg.GeminiAPIKey, Model: cfg.GeminiModel}, logger)
			if err != nil {
				return errors.Wrap(err, "create gemini provider")
			}
			providers = append(providers, p)
		case config.ProviderStub:
			providers = append(providers, newDevStub())
		}
		return nil
	}

	if err := add(cfg.LLMProvider); err != nil {
		return nil, err
	}
	if cfg.LLMProvider != config.ProviderOpenAI && cfg.OpenAIAPIKey != "" {
		if err := add(config.ProviderOpenAI); err != nil {
			return nil, err
		}
	}
	if cfg.LLMProvider != config.ProviderGemini && cfg.GeminiAPIKey != "" {
		if err := add(config.ProviderGemini); err != nil {
			return nil, err
		}
	}
	if cfg.LLMProvider != config.ProviderStub {
		if err := add(config.ProviderStub); err != nil {
			return nil, err
		}
	}
	return llm.NewRouter(logger, providers...) //nolint:wrapcheck // already annotated.
}

func (app *application) close(ctx context.Context) error {
	return errors.Join(app.db.Close(), app.shutdown(ctx))
}
