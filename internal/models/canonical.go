package models

import (
	"encoding/json"
	"time"
)

// CanonicalEntity is an entity in canonical campaign storage. Entities are retracted instead of deleted.
type CanonicalEntity struct {
	ID               string          `json:"id"`
	CampaignID       string          `json:"campaign_id,omitempty"`
	EntityType       EntityType      `json:"entity_type"`
	Name             string          `json:"name"`
	Data             json.RawMessage `json:"data"`
	Retracted        bool            `json:"retracted"`
	RetractionReason string          `json:"retraction_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	RetractedAt      *time.Time      `json:"retracted_at,omitempty"`
}
