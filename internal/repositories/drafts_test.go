package repositories_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/repositories"
	"github.com/myrjola/canonforge/internal/testhelpers"
	"github.com/stretchr/testify/require"
)

func newDraftRepository(t *testing.T) *repositories.DraftRepository {
	t.Helper()
	return repositories.NewDraftRepository(newTestDB(t), testhelpers.NewLogger(io.Discard))
}

func TestDraftRepository_CreateDrafts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newDraftRepository(t)

	page := 42
	draft := newDraft("d1", "camp", models.EntityTypeNPC, `{"name": "Mira", "stat_block": {"hp": 12}}`)
	draft.TrustLevel = models.TrustLevelDerived
	draft.TrustConfidence = 0.8
	draft.Citations = []models.Citation{
		{
			ID: "c1", SourceType: models.SourceTypeRulebook, SourceID: "mm", SourceName: "Monster Manual",
			Location: &models.SourceLocation{Page: &page, Chapter: "Humanoids"}, Excerpt: "Bandits", Confidence: 0.9,
			CreatedAt: epoch,
		},
		{ID: "c2", SourceType: models.SourceTypePriorSession, SourceName: "Session 2", Confidence: 0.5, CreatedAt: epoch},
	}
	require.NoError(t, repo.CreateDrafts(ctx, []models.GenerationDraft{draft}))

	got, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, "camp", got.CampaignID)
	require.Equal(t, models.EntityTypeNPC, got.EntityType)
	require.JSONEq(t, string(draft.Data), string(got.Data))
	require.Equal(t, models.CanonStatusDraft, got.Status)
	require.Equal(t, models.TrustLevelDerived, got.TrustLevel)
	require.InDelta(t, 0.8, got.TrustConfidence, 1e-9)
	require.True(t, got.CreatedAt.Equal(epoch))
	require.Empty(t, got.AppliedEntityID)
	require.Nil(t, got.AppliedAt)

	require.Len(t, got.Citations, 2)
	require.Equal(t, "c1", got.Citations[0].ID)
	require.Equal(t, "d1", got.Citations[0].UsedIn)
	require.Equal(t, "mm", got.Citations[0].SourceID)
	require.NotNil(t, got.Citations[0].Location)
	require.Equal(t, 42, *got.Citations[0].Location.Page)
	require.Equal(t, "Humanoids", got.Citations[0].Location.Chapter)
	require.Nil(t, got.Citations[0].Location.Paragraph)
	require.Equal(t, "c2", got.Citations[1].ID)
	require.Nil(t, got.Citations[1].Location)
}

func TestDraftRepository_CreateDrafts_isAtomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newDraftRepository(t)

	first := newDraft("d1", "camp", models.EntityTypeNPC, `{"name": "Mira"}`)
	duplicate := newDraft("d1", "camp", models.EntityTypeNPC, `{"name": "Jon"}`)
	require.Error(t, repo.CreateDrafts(ctx, []models.GenerationDraft{first, duplicate}))

	_, err := repo.Get(ctx, "d1")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDraftRepository_ListPending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newDraftRepository(t)

	npc := newDraft("npc", "camp", models.EntityTypeNPC, `{"name": "Mira"}`)
	location := newDraft("loc", "camp", models.EntityTypeLocation, `{"name": "Harbor"}`)
	location.CreatedAt = epoch.Add(time.Minute)
	other := newDraft("other", "elsewhere", models.EntityTypeNPC, `{"name": "Jon"}`)
	require.NoError(t, repo.CreateDrafts(ctx, []models.GenerationDraft{location, npc, other}))

	tests := []struct {
		name       string
		campaignID string
		entityType models.EntityType
		want       []string
	}{
		{"all types oldest first", "camp", "", []string{"npc", "loc"}},
		{"filtered by type", "camp", models.EntityTypeLocation, []string{"loc"}},
		{"other campaign", "elsewhere", "", []string{"other"}},
		{"unknown campaign", "missing", "", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			drafts, err := repo.ListPending(ctx, tt.campaignID, tt.entityType)
			require.NoError(t, err)
			ids := []string{}
			for _, d := range drafts {
				ids = append(ids, d.ID)
			}
			require.Equal(t, tt.want, ids)
		})
	}
}

func TestDraftRepository_lease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newDraftRepository(t)
	require.NoError(t, repo.CreateDrafts(ctx, []models.GenerationDraft{
		newDraft("d1", "camp", models.EntityTypeNPC, `{"name": "Mira"}`),
	}))
	ttl := time.Minute

	ok, err := repo.AcquireLease(ctx, "d1", "alice", epoch, ttl)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.AcquireLease(ctx, "d1", "bob", epoch.Add(time.Second), ttl)
	require.NoError(t, err)
	require.False(t, ok, "lease is held by alice")

	ok, err = repo.AcquireLease(ctx, "d1", "alice", epoch.Add(time.Second), ttl)
	require.NoError(t, err)
	require.True(t, ok, "holder may renew")

	ok, err = repo.AcquireLease(ctx, "d1", "bob", epoch.Add(2*time.Minute), ttl)
	require.NoError(t, err)
	require.True(t, ok, "expired lease can be taken over")

	require.NoError(t, repo.ReleaseLease(ctx, "d1", "alice"), "stale release is a no-op")
	ok, err = repo.AcquireLease(ctx, "d1", "carol", epoch.Add(2*time.Minute), ttl)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, repo.ReleaseLease(ctx, "d1", "bob"))
	ok, err = repo.AcquireLease(ctx, "d1", "carol", epoch.Add(2*time.Minute), ttl)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = repo.AcquireLease(ctx, "missing", "carol", epoch, ttl)
	require.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestDraftRepository_RecordDecision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := newDraftRepository(t)
	require.NoError(t, repo.CreateDrafts(ctx, []models.GenerationDraft{
		newDraft("d1", "camp", models.EntityTypeNPC, `{"name": "Mira"}`),
	}))
	ok, err := repo.AcquireLease(ctx, "d1", "token", epoch, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	accept := repositories.DraftUpdate{
		DraftID:    "d1",
		LockToken:  "token",
		FromStatus: models.CanonStatusDraft,
		Hops: []models.CanonStatusLogEntry{
			{PreviousStatus: models.CanonStatusDraft, NewStatus: models.CanonStatusApproved, TriggeredBy: "gm"},
			{PreviousStatus: models.CanonStatusApproved, NewStatus: models.CanonStatusCanonical, TriggeredBy: "gm"},
		},
		Data:            json.RawMessage(`{"name": "Mira the Bold"}`),
		AppliedEntityID: "entity-1",
		Event: models.AcceptanceEvent{
			ID:            "event-1",
			EntityType:    models.EntityTypeNPC,
			Decision:      models.DecisionAccept,
			Modifications: json.RawMessage(`{"name": "Mira the Bold"}`),
		},
		Now: epoch.Add(time.Minute),
	}

	t.Run("wrong lease token", func(t *testing.T) {
		update := accept
		update.LockToken = "other"
		require.ErrorIs(t, repo.RecordDecision(ctx, update), repositories.ErrConflict)
	})

	require.NoError(t, repo.RecordDecision(ctx, accept))

	t.Run("stale status", func(t *testing.T) {
		require.ErrorIs(t, repo.RecordDecision(ctx, accept), repositories.ErrConflict)
	})

	got, err := repo.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, models.CanonStatusCanonical, got.Status)
	require.Equal(t, "entity-1", got.AppliedEntityID)
	require.JSONEq(t, `{"name": "Mira the Bold"}`, string(got.Data))
	require.True(t, got.UpdatedAt.Equal(epoch.Add(time.Minute)))
	require.Equal(t, epoch.Add(time.Minute), *got.AppliedAt)

	byEntity, err := repo.GetByAppliedEntity(ctx, "entity-1")
	require.NoError(t, err)
	require.Equal(t, "d1", byEntity.ID)

	// A decision without hops keeps the status and continues the sequence afterwards.
	require.NoError(t, repo.RecordDecision(ctx, repositories.DraftUpdate{
		DraftID:    "d1",
		LockToken:  "token",
		FromStatus: models.CanonStatusCanonical,
		Event:      models.AcceptanceEvent{EntityType: models.EntityTypeNPC, Decision: models.DecisionAccept},
		Now:        epoch.Add(2 * time.Minute),
	}))
	require.NoError(t, repo.RecordDecision(ctx, repositories.DraftUpdate{
		DraftID:    "d1",
		LockToken:  "token",
		FromStatus: models.CanonStatusCanonical,
		Hops: []models.CanonStatusLogEntry{{
			PreviousStatus: models.CanonStatusCanonical, NewStatus: models.CanonStatusDeprecated,
			Reason: "retcon", TriggeredBy: "gm",
		}},
		Event: models.AcceptanceEvent{EntityType: models.EntityTypeNPC, Decision: models.DecisionRevoke, Reason: "retcon"},
		Now:   epoch.Add(3 * time.Minute),
	}))

	history, err := repo.History(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, history.StatusLog, 3)
	for i, entry := range history.StatusLog {
		require.Equal(t, i+1, entry.Sequence)
		require.Equal(t, "d1", entry.DraftID)
	}
	require.Equal(t, models.CanonStatusDeprecated, history.StatusLog[2].NewStatus)
	require.Equal(t, "retcon", history.StatusLog[2].Reason)

	require.Len(t, history.Events, 3)
	require.Equal(t, "event-1", history.Events[0].ID)
	require.NotEmpty(t, history.Events[1].ID)
	require.Equal(t, models.DecisionAccept, history.Events[0].Decision)
	require.JSONEq(t, `{"name": "Mira the Bold"}`, string(history.Events[0].Modifications))
	require.Equal(t, models.DecisionAccept, history.Events[1].Decision)
	require.Nil(t, history.Events[1].Modifications)
	require.Equal(t, models.DecisionRevoke, history.Events[2].Decision)

	// Later decisions keep the time the draft was applied.
	got, err = repo.Get(ctx, "d1")
	require.NoError(t, err)
	require.Equal(t, epoch.Add(time.Minute), *got.AppliedAt)
}

func TestDraftRepository_Get_notFound(t *testing.T) {
	t.Parallel()
	repo := newDraftRepository(t)
	_, err := repo.Get(context.Background(), "missing")
	require.ErrorIs(t, err, repositories.ErrNotFound)
	_, err = repo.GetByAppliedEntity(context.Background(), "missing")
	require.ErrorIs(t, err, repositories.ErrNotFound)
}
