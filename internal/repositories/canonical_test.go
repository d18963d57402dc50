package repositories_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/myrjola/canonforge/internal/grounding"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/repositories"
	"github.com/myrjola/canonforge/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func TestCanonicalEntityRepository(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repositories.NewCanonicalEntityRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	_, err := repo.ApplyEntity(ctx, "camp", models.EntityTypeNPC, json.RawMessage(`{"role": "nameless"}`))
	require.Error(t, err, "invalid payloads never reach canonical storage")

	id, err := repo.ApplyEntity(ctx, "camp", models.EntityTypeNPC, json.RawMessage(`{"name": "Mira"}`))
	require.NoError(t, err)

	entity, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Mira", entity.Name)
	require.Equal(t, "camp", entity.CampaignID)
	require.False(t, entity.Retracted)
	require.Nil(t, entity.RetractedAt)

	require.NoError(t, repo.RetractEntity(ctx, id, "retcon"))
	require.NoError(t, repo.RetractEntity(ctx, id, "second thoughts"), "retracting twice is idempotent")

	entity, err = repo.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, entity.Retracted)
	require.Equal(t, "retcon", entity.RetractionReason)
	require.NotNil(t, entity.RetractedAt)

	require.ErrorIs(t, repo.RetractEntity(ctx, "missing", "x"), repositories.ErrNotFound)
}

func TestSourceExcerptRepository_SearchExcerpts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repositories.NewSourceExcerptRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))

	page := 87
	for _, e := range []struct {
		campaignID string
		citation   models.Citation
	}{
		{"", models.Citation{ID: "mm-bandit", SourceType: models.SourceTypeRulebook, SourceName: "Monster Manual",
			Location: &models.SourceLocation{Page: &page, Section: "Bandit"}, Excerpt: "Bandits crowd the roads.",
			Confidence: 0.97}},
		{"camp", models.Citation{ID: "s2", SourceType: models.SourceTypePriorSession, SourceName: "Session 2",
			Excerpt: "The party met a bandit captain at the harbor.", Confidence: 0.7}},
		{"camp", models.Citation{ID: "s3", SourceType: models.SourceTypePriorSession, SourceName: "Session 3",
			Excerpt: "A storm sank the ferry.", Confidence: 0.6}},
		{"elsewhere", models.Citation{ID: "x1", SourceType: models.SourceTypePriorSession, SourceName: "Other",
			Excerpt: "A bandit in another campaign.", Confidence: 0.99}},
	} {
		_, err := repo.AddExcerpt(ctx, e.campaignID, e.citation)
		require.NoError(t, err)
	}

	tests := []struct {
		name     string
		keywords []string
		filters  grounding.Filters
		limit    int
		want     []string
	}{
		{"keyword across shared and campaign excerpts", []string{"bandit"}, grounding.Filters{}, 10,
			[]string{"mm-bandit", "s2"}},
		{"no keywords", nil, grounding.Filters{}, 10, []string{"mm-bandit", "s2", "s3"}},
		{"limit", nil, grounding.Filters{}, 1, []string{"mm-bandit"}},
		{"no limit", nil, grounding.Filters{}, 0, []string{"mm-bandit", "s2", "s3"}},
		{"source type", []string{"bandit"},
			grounding.Filters{SourceTypes: []models.SourceType{models.SourceTypePriorSession}}, 10, []string{"s2"}},
		{"min confidence", nil, grounding.Filters{MinConfidence: 0.65}, 10, []string{"mm-bandit", "s2"}},
		{"any keyword matches", []string{"storm", "captain"}, grounding.Filters{}, 10, []string{"s2", "s3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := repo.SearchExcerpts(ctx, "camp", tt.keywords, tt.filters, tt.limit)
			require.NoError(t, err)
			ids := []string{}
			for _, c := range got {
				ids = append(ids, c.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}

	got, err := repo.SearchExcerpts(ctx, "camp", []string{"bandit"}, grounding.Filters{}, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, 87, *got[0].Location.Page)
	require.Equal(t, "Bandit", got[0].Location.Section)
}

func TestLibraryGrounder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := repositories.NewSourceExcerptRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
	_, err := repo.AddExcerpt(ctx, "camp", models.Citation{
		SourceType: models.SourceTypeUserProvided, SourceName: "GM notes", Excerpt: "The lighthouse keeper lies.",
		Confidence: 0.8,
	})
	require.NoError(t, err)

	library := grounding.NewLibrary(repo)
	got, err := library.FindCitations(ctx, grounding.Query{CampaignID: "camp", Text: "Who is the lighthouse keeper?"},
		grounding.Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "GM notes", got[0].SourceName)
	require.NotEmpty(t, got[0].ID)
}
