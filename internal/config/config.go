// Package config reads the runtime configuration from the environment.
package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderStub   = "stub"

	LockModeFailFast = "fail_fast"
	LockModeWait     = "wait"
)

var ErrInvalidConfig = errors.NewSentinel("invalid configuration")

type Config struct {
	SQLiteURL string     `env:"CANONFORGE_SQLITE_URL" envDefault:"canonforge.sqlite"`
	LogLevel  slog.Level `env:"CANONFORGE_LOG_LEVEL"  envDefault:"INFO"`

	LLMProvider   string `env:"CANONFORGE_LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`
	OpenAIStream  bool   `env:"OPENAI_STREAM"`
	GeminiAPIKey  string `env:"GEMINI_API_KEY"`
	GeminiModel   string `env:"GEMINI_MODEL"`

	LLMMaxAttempts      int           `env:"CANONFORGE_LLM_MAX_ATTEMPTS"     envDefault:"3"`
	LLMInitialBackoff   time.Duration `env:"CANONFORGE_LLM_INITIAL_BACKOFF"  envDefault:"500ms"`
	LLMMaxBackoff       time.Duration `env:"CANONFORGE_LLM_MAX_BACKOFF"      envDefault:"10s"`
	LLMTimeout          time.Duration `env:"CANONFORGE_LLM_TIMEOUT"          envDefault:"2m"`
	CampaignConcurrency int           `env:"CANONFORGE_CAMPAIGN_CONCURRENCY" envDefault:"2"`

	CanonicalConfidence float64 `env:"CANONFORGE_CANONICAL_CONFIDENCE" envDefault:"0.95"`
	DerivedConfidence   float64 `env:"CANONFORGE_DERIVED_CONFIDENCE"   envDefault:"0.75"`

	LockMode string        `env:"CANONFORGE_LOCK_MODE" envDefault:"fail_fast"`
	LockWait time.Duration `env:"CANONFORGE_LOCK_WAIT" envDefault:"5s"`
	LockTTL  time.Duration `env:"CANONFORGE_LOCK_TTL"  envDefault:"30s"`

	TemplatesDir string `env:"CANONFORGE_TEMPLATES_DIR"`
	// OTelEndpoint is the OTLP/HTTP collector URL. Empty disables tracing export.
	OTelEndpoint string `env:"CANONFORGE_OTEL_ENDPOINT"`
}

// FromEnv parses the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, cfg.Validate()
}

// Parse reads the configuration from the given variables instead of the process environment.
func Parse(environment map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environment}); err != nil { //nolint:exhaustruct // defaults
		return Config{}, errors.Wrap(err, "parse env")
	}
	return cfg, cfg.Validate()
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var problems []error
	invalid := func(msg string, attrs ...slog.Attr) {
		problems = append(problems, errors.Wrap(ErrInvalidConfig, msg, attrs...))
	}

	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			invalid("OPENAI_API_KEY is required for the openai provider")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			invalid("GEMINI_API_KEY is required for the gemini provider")
		}
	case ProviderStub:
	default:
		invalid("unknown LLM provider", slog.String("provider", c.LLMProvider))
	}
	if c.LLMMaxAttempts < 1 {
		invalid("at least one LLM attempt is required", slog.Int("attempts", c.LLMMaxAttempts))
	}
	if c.LLMInitialBackoff <= 0 || c.LLMMaxBackoff < c.LLMInitialBackoff {
		invalid("backoff must be positive and the maximum at least the initial backoff")
	}
	if c.CampaignConcurrency < 0 {
		invalid("campaign concurrency must not be negative")
	}
	if !(0 <= c.DerivedConfidence && c.DerivedConfidence <= c.CanonicalConfidence && c.CanonicalConfidence <= 1) {
		invalid("thresholds must satisfy 0 <= derived <= canonical <= 1",
			slog.Float64("derived", c.DerivedConfidence), slog.Float64("canonical", c.CanonicalConfidence))
	}
	if c.LockMode != LockModeFailFast && c.LockMode != LockModeWait {
		invalid("unknown lock mode", slog.String("lock_mode", c.LockMode))
	}
	if c.LockTTL <= 0 {
		invalid("lock TTL must be positive")
	}
	return errors.Join(problems...)
}

func (c Config) TrustThresholds() models.TrustThresholds {
	thresholds := models.DefaultTrustThresholds()
	thresholds.CanonicalConfidence = c.CanonicalConfidence
	thresholds.DerivedConfidence = c.DerivedConfidence
	return thresholds
}
