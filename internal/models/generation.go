package models

import (
	"log/slog"

	"github.com/myrjola/canonforge/internal/errors"
)

// GenerationType selects the template and context budget of a generation request.
type GenerationType string

const (
	GenerationTypeCharacter     GenerationType = "character"
	GenerationTypeNPC           GenerationType = "npc"
	GenerationTypeLocation      GenerationType = "location"
	GenerationTypeSessionPlan   GenerationType = "session_plan"
	GenerationTypeArc           GenerationType = "arc"
	GenerationTypePartyAnalysis GenerationType = "party_analysis"
)

// GenerationTypes lists every generation type in a stable order.
func GenerationTypes() []GenerationType {
	return []GenerationType{
		GenerationTypeCharacter,
		GenerationTypeNPC,
		GenerationTypeLocation,
		GenerationTypeSessionPlan,
		GenerationTypeArc,
		GenerationTypePartyAnalysis,
	}
}

func ParseGenerationType(s string) (GenerationType, error) {
	t := GenerationType(s)
	if _, err := t.EntityType(); err != nil {
		return "", err
	}
	return t, nil
}

// EntityType is the kind of draft produced by the generation type.
func (t GenerationType) EntityType() (EntityType, error) {
	switch t {
	case GenerationTypeCharacter:
		return EntityTypeCharacter, nil
	case GenerationTypeNPC:
		return EntityTypeNPC, nil
	case GenerationTypeLocation:
		return EntityTypeLocation, nil
	case GenerationTypeSessionPlan:
		return EntityTypeSessionPlan, nil
	case GenerationTypeArc:
		return EntityTypeArc, nil
	case GenerationTypePartyAnalysis:
		return EntityTypePartyAnalysis, nil
	default:
		return "", errors.New("unknown generation type", slog.String("generation_type", string(t)))
	}
}
