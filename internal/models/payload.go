package models

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/myrjola/canonforge/internal/errors"
)

// Payload is the typed content of a draft. The set of implementations is closed: CharacterPayload, NPCPayload,
// LocationPayload, SessionPlanPayload, ArcPayload and PartyAnalysisPayload.
type Payload interface {
	EntityType() EntityType
	// DisplayName is the human readable label used in logs and canonical storage.
	DisplayName() string
	validate() error
}

type CharacterPayload struct {
	Name       string          `json:"name"`
	Race       string          `json:"race,omitempty"`
	Class      string          `json:"class,omitempty"`
	Background json.RawMessage `json:"background,omitempty"`
	StatBlock  json.RawMessage `json:"stat_block,omitempty"`
}

func (p CharacterPayload) EntityType() EntityType { return EntityTypeCharacter }
func (p CharacterPayload) DisplayName() string    { return p.Name }
func (p CharacterPayload) validate() error        { return requireField("name", p.Name) }

type NPCPayload struct {
	Name        string          `json:"name"`
	Role        string          `json:"role,omitempty"`
	Location    string          `json:"location,omitempty"`
	Personality json.RawMessage `json:"personality,omitempty"`
	Motivation  json.RawMessage `json:"motivation,omitempty"`
	StatBlock   json.RawMessage `json:"stat_block,omitempty"`
}

func (p NPCPayload) EntityType() EntityType { return EntityTypeNPC }
func (p NPCPayload) DisplayName() string    { return p.Name }
func (p NPCPayload) validate() error        { return requireField("name", p.Name) }

type LocationPayload struct {
	Name         string          `json:"name"`
	LocationType string          `json:"location_type,omitempty"`
	Description  string          `json:"description,omitempty"`
	Lore         json.RawMessage `json:"lore,omitempty"`
}

func (p LocationPayload) EntityType() EntityType { return EntityTypeLocation }
func (p LocationPayload) DisplayName() string    { return p.Name }
func (p LocationPayload) validate() error        { return requireField("name", p.Name) }

type SessionPlanPayload struct {
	Title   string          `json:"title"`
	Summary string          `json:"summary,omitempty"`
	Scenes  json.RawMessage `json:"scenes,omitempty"`
}

func (p SessionPlanPayload) EntityType() EntityType { return EntityTypeSessionPlan }
func (p SessionPlanPayload) DisplayName() string    { return p.Title }
func (p SessionPlanPayload) validate() error        { return requireField("title", p.Title) }

type ArcPayload struct {
	Title   string          `json:"title"`
	Premise string          `json:"premise,omitempty"`
	Acts    json.RawMessage `json:"acts,omitempty"`
}

func (p ArcPayload) EntityType() EntityType { return EntityTypeArc }
func (p ArcPayload) DisplayName() string    { return p.Title }
func (p ArcPayload) validate() error        { return requireField("title", p.Title) }

type PartyAnalysisPayload struct {
	Summary   string          `json:"summary"`
	Strengths json.RawMessage `json:"strengths,omitempty"`
	Gaps      json.RawMessage `json:"gaps,omitempty"`
}

func (p PartyAnalysisPayload) EntityType() EntityType { return EntityTypePartyAnalysis }
func (p PartyAnalysisPayload) DisplayName() string    { return "Party analysis" }
func (p PartyAnalysisPayload) validate() error        { return requireField("summary", p.Summary) }

// DecodePayload decodes and validates raw draft data for the given entity type.
func DecodePayload(entityType EntityType, data json.RawMessage) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("payload must be a JSON object", slog.String("entity_type", string(entityType)))
	}

	var (
		payload Payload
		err     error
	)
	switch entityType {
	case EntityTypeCharacter:
		payload, err = decodeInto[CharacterPayload](trimmed)
	case EntityTypeNPC:
		payload, err = decodeInto[NPCPayload](trimmed)
	case EntityTypeLocation:
		payload, err = decodeInto[LocationPayload](trimmed)
	case EntityTypeSessionPlan:
		payload, err = decodeInto[SessionPlanPayload](trimmed)
	case EntityTypeArc:
		payload, err = decodeInto[ArcPayload](trimmed)
	case EntityTypePartyAnalysis:
		payload, err = decodeInto[PartyAnalysisPayload](trimmed)
	default:
		return nil, errors.New("unknown entity type", slog.String("entity_type", string(entityType)))
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode payload", slog.String("entity_type", string(entityType)))
	}
	if err = payload.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid payload", slog.String("entity_type", string(entityType)))
	}
	return payload, nil
}

func decodeInto[T Payload](data []byte) (Payload, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by DecodePayload.
	}
	return p, nil
}

func requireField(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(name+" is required", slog.String("field", name))
	}
	return nil
}
