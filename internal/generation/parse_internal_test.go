package generation

import (
	"context"
	"testing"
	"time"

	"github.com/myrjola/canonforge/internal/assembler"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/templates"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{"bare object", `{"name":"Kael"}`, `{"name":"Kael"}`, true},
		{"fenced block", "Here you go:\n```json\n{\"name\":\"Kael\"}\n```\nEnjoy!", `{"name":"Kael"}`, true},
		{"fence without info string", "```\n[1, 2]\n```", `[1, 2]`, true},
		{"prose around object", `Sure! {"name":"Kael","hp":12} Anything else?`, `{"name":"Kael","hp":12}`, true},
		{"braces inside strings", `{"name":"Kael {the} ]bold["}`, `{"name":"Kael {the} ]bold["}`, true},
		{"escaped quote", `{"quote":"he said \"}\""}`, `{"quote":"he said \"}\""}`, true},
		{"invalid fence falls back", "```json\nnot json\n``` {\"name\":\"Ada\"}", `{"name":"Ada"}`, true},
		{"skips invalid candidate", `{oops} {"name":"Ada"}`, `{"name":"Ada"}`, true},
		{"unbalanced", `{"name":"Kael"`, "", false},
		{"no json", "I cannot help with that.", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := extractJSON(tt.raw)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestParseEntities(t *testing.T) {
	t.Parallel()
	object := &templates.Template{OutputFormat: templates.OutputFormatObject}
	list := &templates.Template{OutputFormat: templates.OutputFormatList, ListKey: "npcs"}

	tests := []struct {
		name      string
		raw       string
		tmpl      *templates.Template
		wantCount int
		wantErr   bool
	}{
		{"object", `{"name":"Kael"}`, object, 1, false},
		{"object format rejects array", `[{"name":"Kael"}]`, object, 0, true},
		{"missing required field", `{"race":"elf"}`, object, 0, true},
		{"list under key", `{"npcs":[{"name":"A"},{"name":"B"}]}`, list, 2, false},
		{"bare array", `[{"name":"A"},{"name":"B"},{"name":"C"}]`, list, 3, false},
		{"single object in list format", `{"name":"A"}`, list, 1, false},
		{"empty list", `{"npcs":[]}`, list, 0, true},
		{"one invalid entry fails all", `{"npcs":[{"name":"A"},{"role":"smith"}]}`, list, 0, true},
		{"no json", "nope", list, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			entityType := models.EntityTypeCharacter
			if tt.tmpl == list {
				entityType = models.EntityTypeNPC
			}
			got, err := parseEntities(tt.raw, tt.tmpl, entityType)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, got, tt.wantCount)
		})
	}
}

func TestBudgetFor(t *testing.T) {
	t.Parallel()
	budgets := DefaultBudgets()

	got := budgetFor(budgets, models.GenerationTypeNPC, 0)
	require.Equal(t, assembler.Budget{Total: 6000, MaxCitationTokens: 3000}, got)

	got = budgetFor(budgets, models.GenerationTypeNPC, 3000)
	require.Equal(t, assembler.Budget{Total: 3000, MaxCitationTokens: 1500}, got)

	got = budgetFor(budgets, models.GenerationType("unknown"), 0)
	require.Equal(t, 8000, got.Total)

	// Rules-heavy types reserve more citation tokens than narrative ones.
	require.Greater(t, budgets[models.GenerationTypeCharacter].MaxCitationTokens,
		budgets[models.GenerationTypeArc].MaxCitationTokens)
	require.Greater(t, budgets[models.GenerationTypePartyAnalysis].MaxCitationTokens,
		budgets[models.GenerationTypeSessionPlan].MaxCitationTokens)
}

func TestCampaignLimiter(t *testing.T) {
	t.Parallel()
	limiter := newCampaignLimiter(1)

	release, err := limiter.acquire(t.Context(), "c1")
	require.NoError(t, err)
	require.Equal(t, 1, limiter.size())

	// Another campaign is not blocked.
	releaseOther, err := limiter.acquire(t.Context(), "c2")
	require.NoError(t, err)
	releaseOther()

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = limiter.acquire(ctx, "c1")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	require.Equal(t, 0, limiter.size())

	unbounded := newCampaignLimiter(0)
	for range 3 {
		_, err = unbounded.acquire(t.Context(), "c1")
		require.NoError(t, err)
	}
	require.Equal(t, 0, unbounded.size())
}
