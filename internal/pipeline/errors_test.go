package pipeline_test

import (
	"bytes"
	"fmt"
	"log/slog"
	"testing"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/pipeline"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsMatchSentinels(t *testing.T) {
	t.Parallel()
	scope := pipeline.Scope{DraftID: "d-1", CampaignID: "c-1"}
	tests := []struct {
		name     string
		err      error
		sentinel error
		other    error
	}{
		{
			name:     "invalid transition",
			err:      pipeline.InvalidTransition(scope, models.CanonStatusDeprecated, models.CanonStatusCanonical),
			sentinel: pipeline.ErrInvalidTransition,
			other:    pipeline.ErrNotFound,
		},
		{
			name:     "locked",
			err:      pipeline.DraftLocked(scope),
			sentinel: pipeline.ErrDraftLocked,
			other:    pipeline.ErrValidation,
		},
		{
			name:     "malformed response",
			err:      &pipeline.GenerationError{Kind: pipeline.GenerationMalformedResponse, RawResponse: "nope"},
			sentinel: pipeline.ErrMalformedResponse,
			other:    pipeline.ErrLLMFailure,
		},
		{
			name:     "budget exceeded",
			err:      &pipeline.ContextError{Kind: pipeline.ContextBudgetExceeded, Needed: 10, Budget: 5},
			sentinel: pipeline.ErrBudgetExceeded,
			other:    pipeline.ErrGroundingUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			wrapped := fmt.Errorf("outer: %w", tt.err)
			require.ErrorIs(t, wrapped, tt.sentinel)
			require.NotErrorIs(t, wrapped, tt.other)
		})
	}
}

func TestPipelineError_LogValue(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	err := pipeline.InvalidTransition(pipeline.Scope{DraftID: "d-1"}, models.CanonStatusDeprecated,
		models.CanonStatusCanonical)

	logger.Error("accept failed", errors.SlogError(err))

	out := buf.String()
	require.Contains(t, out, "error.kind=invalid_transition")
	require.Contains(t, out, "error.from=deprecated")
	require.Contains(t, out, "error.to=canonical")
	require.Contains(t, out, "error.draft_id=d-1")
	require.Equal(t, "invalid_transition: transition not allowed (deprecated -> canonical)", err.Error())
}
