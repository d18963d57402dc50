package repositories_test

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/sqlite"
	"github.com/myrjola/canonforge/internal/testhelpers"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// newTestDB creates a new throwaway database for testing purposes.
func newTestDB(t *testing.T) *sqlite.Database {
	t.Helper()
	db, err := sqlite.NewDatabase(context.Background(), ":memory:", testhelpers.NewLogger(io.Discard))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err = db.Close(); err != nil {
			t.Error(err)
		}
	})
	return db
}

func newDraft(id, campaignID string, entityType models.EntityType, data string) models.GenerationDraft {
	return models.GenerationDraft{
		ID:              id,
		CampaignID:      campaignID,
		EntityType:      entityType,
		Data:            json.RawMessage(data),
		Status:          models.CanonStatusDraft,
		TrustLevel:      models.TrustLevelCreative,
		TrustConfidence: 0,
		Citations:       []models.Citation{},
		CreatedAt:       epoch,
		UpdatedAt:       epoch,
	}
}
