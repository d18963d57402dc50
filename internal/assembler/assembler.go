// Package assembler builds the token-budgeted context for a generation request.
package assembler

import (
	"cmp"
	"context"
	"log/slog"
	"slices"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/pipeline"
)

// Budget limits the tokens of an assembled context. Zero caps mean the section may use whatever remains.
type Budget struct {
	Total                 int
	MaxCitationTokens     int
	MaxConversationTokens int
}

// Grounding is what the grounding layer returned for a request. A non-nil Err marks grounding as unavailable.
type Grounding struct {
	Citations []models.Citation
	Err       error
}

type Assembler struct {
	estimator TokenEstimator
	logger    *slog.Logger
}

func New(estimator TokenEstimator, logger *slog.Logger) *Assembler {
	return &Assembler{
		estimator: estimator,
		logger:    logger.With("source", "Assembler"),
	}
}

// Assemble reserves the intent, then fills citations in relevance order and the conversation window from the newest
// message backwards. Every citation or message left out gets a TruncationWarning. Only an intent that does not fit
// on its own is an error.
func (a *Assembler) Assemble(
	ctx context.Context,
	intent models.CampaignIntent,
	window []models.ConversationMessage,
	grounding Grounding,
	budget Budget,
) (models.AssembledContext, error) {
	assembled := models.AssembledContext{
		Intent:       intent,
		TotalBudget:  budget.Total,
		Citations:    []models.Citation{},
		Conversation: []models.ConversationMessage{},
		Warnings:     []models.TruncationWarning{},
	}

	assembled.IntentTokens = a.estimator.Estimate(RenderIntent(intent))
	if assembled.IntentTokens > budget.Total {
		return models.AssembledContext{}, &pipeline.ContextError{
			Kind:    pipeline.ContextBudgetExceeded,
			Message: "campaign intent does not fit in the token budget",
			Needed:  assembled.IntentTokens,
			Budget:  budget.Total,
		}
	}
	remaining := budget.Total - assembled.IntentTokens

	if grounding.Err != nil {
		assembled.GroundingUnavailable = true
		a.logger.LogAttrs(ctx, slog.LevelWarn, "grounding unavailable, assembling without citations",
			errors.SlogError(grounding.Err))
	}

	citationLimit := capped(remaining, budget.MaxCitationTokens)
	for _, c := range rankCitations(grounding.Citations) {
		cost := a.estimator.Estimate(RenderCitation(c))
		if assembled.CitationTokens+cost > citationLimit {
			assembled.Warnings = append(assembled.Warnings, models.TruncationWarning{
				Item:   citationLabel(c),
				Kind:   models.TruncationKindCitation,
				Reason: "citation does not fit in the remaining citation budget",
			})
			continue
		}
		assembled.CitationTokens += cost
		assembled.Citations = append(assembled.Citations, c)
	}
	remaining -= assembled.CitationTokens

	conversationLimit := capped(remaining, budget.MaxConversationTokens)
	cut := -1
	for i := len(window) - 1; i >= 0; i-- {
		cost := a.estimator.Estimate(RenderMessage(window[i]))
		if assembled.ConversationTokens+cost > conversationLimit {
			cut = i
			break
		}
		assembled.ConversationTokens += cost
	}
	// Everything from the first misfit back to the oldest message is dropped.
	for i := 0; i <= cut; i++ {
		assembled.Warnings = append(assembled.Warnings, models.TruncationWarning{
			Item:   window[i].ID,
			Kind:   models.TruncationKindConversation,
			Reason: "message is older than the conversation budget allows",
		})
	}
	assembled.Conversation = append(assembled.Conversation, window[cut+1:]...)

	assembled.TotalUsed = assembled.IntentTokens + assembled.CitationTokens + assembled.ConversationTokens
	if len(assembled.Warnings) > 0 {
		a.logger.LogAttrs(ctx, slog.LevelDebug, "context truncated",
			slog.Int("warnings", len(assembled.Warnings)),
			slog.Int("total_used", assembled.TotalUsed),
			slog.Int("total_budget", assembled.TotalBudget))
	}
	return assembled, nil
}

// rankCitations orders by confidence and then recency, both descending.
func rankCitations(citations []models.Citation) []models.Citation {
	ranked := slices.Clone(citations)
	slices.SortStableFunc(ranked, func(a, b models.Citation) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return ranked
}

func capped(remaining, limit int) int {
	if limit > 0 && limit < remaining {
		return limit
	}
	return remaining
}

func citationLabel(c models.Citation) string {
	if c.ID != "" {
		return c.ID
	}
	return c.SourceName
}
