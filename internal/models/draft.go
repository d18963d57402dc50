package models

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/myrjola/canonforge/internal/errors"
)

// EntityType is the kind of campaign content a draft holds.
type EntityType string

const (
	EntityTypeCharacter     EntityType = "character"
	EntityTypeNPC           EntityType = "npc"
	EntityTypeLocation      EntityType = "location"
	EntityTypeSessionPlan   EntityType = "session_plan"
	EntityTypeArc           EntityType = "arc"
	EntityTypePartyAnalysis EntityType = "party_analysis"
)

func ParseEntityType(s string) (EntityType, error) {
	switch t := EntityType(s); t {
	case EntityTypeCharacter, EntityTypeNPC, EntityTypeLocation, EntityTypeSessionPlan, EntityTypeArc,
		EntityTypePartyAnalysis:
		return t, nil
	default:
		return "", errors.New("unknown entity type", slog.String("entity_type", s))
	}
}

// GenerationDraft is a generated candidate entity awaiting a GM decision. Drafts are never deleted, deprecation is
// the terminal state.
type GenerationDraft struct {
	ID              string          `json:"id"`
	CampaignID      string          `json:"campaign_id,omitempty"`
	WizardID        string          `json:"wizard_id,omitempty"`
	EntityType      EntityType      `json:"entity_type"`
	Data            json.RawMessage `json:"data"`
	Status          CanonStatus     `json:"status"`
	TrustLevel      TrustLevel      `json:"trust_level"`
	TrustConfidence float64         `json:"trust_confidence"`
	Citations       []Citation      `json:"citations"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	AppliedEntityID string          `json:"applied_entity_id,omitempty"`
	// AppliedAt is when the draft was accepted into canonical storage.
	AppliedAt *time.Time `json:"applied_at,omitempty"`
}

// Payload decodes the draft data into its typed payload.
func (d GenerationDraft) Payload() (Payload, error) {
	return DecodePayload(d.EntityType, d.Data)
}

// AppliedEntity describes a draft that was materialized into canonical campaign storage.
type AppliedEntity struct {
	EntityID   string     `json:"entity_id"`
	EntityType EntityType `json:"entity_type"`
	DraftID    string     `json:"draft_id"`
	CampaignID string     `json:"campaign_id,omitempty"`
	AppliedAt  time.Time  `json:"applied_at"`
}
