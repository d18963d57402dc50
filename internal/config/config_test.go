package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/myrjola/canonforge/internal/config"
	"github.com/stretchr/testify/require"
)

func TestParse_defaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse(map[string]string{"OPENAI_API_KEY": "sk-test"})
	require.NoError(t, err)
	require.Equal(t, "canonforge.sqlite", cfg.SQLiteURL)
	require.Equal(t, slog.LevelInfo, cfg.LogLevel)
	require.Equal(t, config.ProviderOpenAI, cfg.LLMProvider)
	require.Equal(t, 3, cfg.LLMMaxAttempts)
	require.Equal(t, 500*time.Millisecond, cfg.LLMInitialBackoff)
	require.Equal(t, config.LockModeFailFast, cfg.LockMode)
	require.InDelta(t, 0.95, cfg.TrustThresholds().CanonicalConfidence, 1e-9)
	require.InDelta(t, 0.75, cfg.TrustThresholds().DerivedConfidence, 1e-9)
}

func TestParse(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"stub needs no key", map[string]string{"CANONFORGE_LLM_PROVIDER": "stub"}, false},
		{"openai without key", map[string]string{}, true},
		{"gemini with key", map[string]string{"CANONFORGE_LLM_PROVIDER": "gemini", "GEMINI_API_KEY": "k"}, false},
		{"gemini without key", map[string]string{"CANONFORGE_LLM_PROVIDER": "gemini"}, true},
		{"unknown provider", map[string]string{"CANONFORGE_LLM_PROVIDER": "llama"}, true},
		{"thresholds out of order", map[string]string{
			"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_DERIVED_CONFIDENCE": "0.97",
		}, true},
		{"canonical above one", map[string]string{
			"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_CANONICAL_CONFIDENCE": "1.5",
		}, true},
		{"wait lock mode", map[string]string{
			"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LOCK_MODE": "wait", "CANONFORGE_LOCK_WAIT": "2s",
		}, false},
		{"unknown lock mode", map[string]string{"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LOCK_MODE": "spin"}, true},
		{"zero attempts", map[string]string{"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LLM_MAX_ATTEMPTS": "0"}, true},
		{"unparsable duration", map[string]string{"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LOCK_TTL": "soon"}, true},
		{"debug logging", map[string]string{"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LOG_LEVEL": "DEBUG"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Parse(tt.env)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidate_reportsInvalidConfig(t *testing.T) {
	t.Parallel()
	_, err := config.Parse(map[string]string{"CANONFORGE_LLM_PROVIDER": "stub", "CANONFORGE_LOCK_MODE": "spin"})
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
