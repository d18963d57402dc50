package trust

import (
	"encoding/json"
	"fmt"

	"github.com/myrjola/canonforge/internal/models"
)

// Assignment is the trust outcome for one draft.
type Assignment struct {
	Level      models.TrustLevel
	Confidence float64
	Assessment Assessment
	// Reasoning is a one-line explanation for the GM.
	Reasoning string
}

// Assigner runs a ClaimVerifier and classifies its result.
type Assigner struct {
	verifier   ClaimVerifier
	thresholds models.TrustThresholds
}

func NewAssigner(verifier ClaimVerifier, thresholds models.TrustThresholds) *Assigner {
	return &Assigner{verifier: verifier, thresholds: thresholds}
}

func (a *Assigner) Assign(data json.RawMessage, citations []models.Citation) Assignment {
	assessment := a.verifier.Verify(data, citations)
	level := Classify(assessment.Confidence, assessment.HasVerifiedSource, a.thresholds)
	return Assignment{
		Level:      level,
		Confidence: assessment.Confidence,
		Assessment: assessment,
		Reasoning:  reasoning(level, len(citations), assessment),
	}
}

func reasoning(level models.TrustLevel, citationCount int, assessment Assessment) string {
	var levelDesc string
	switch level {
	case models.TrustLevelCanonical:
		levelDesc = "Directly supported by verified sources"
	case models.TrustLevelDerived:
		levelDesc = "Derived from indexed sources"
	case models.TrustLevelUnverified:
		levelDesc = "References sources that could not be verified"
	case models.TrustLevelCreative:
		levelDesc = "Creative content without source support"
	}
	claims := "no claims analyzed"
	if c := assessment.Claims; c.Total > 0 {
		claims = fmt.Sprintf("%d/%d claims verified, %d derived", c.Verified, c.Total, c.Derived)
	}
	return fmt.Sprintf("%s. %d citation(s), %s, confidence %.0f%%",
		levelDesc, citationCount, claims, assessment.Confidence*100) //nolint:mnd // percent.
}
