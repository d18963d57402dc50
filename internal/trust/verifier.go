package trust

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/myrjola/canonforge/internal/models"
	"github.com/tidwall/gjson"
)

// ClaimVerifier estimates how well a payload is supported by citations. Implementations must be deterministic.
type ClaimVerifier interface {
	Verify(data json.RawMessage, citations []models.Citation) Assessment
}

// Assessment is the outcome of claim verification.
type Assessment struct {
	// Confidence is in [0, 1].
	Confidence        float64
	HasVerifiedSource bool
	Claims            ClaimAnalysis
}

type ClaimType string

const (
	ClaimTypeMechanic  ClaimType = "mechanic"
	ClaimTypeLore      ClaimType = "lore"
	ClaimTypeCharacter ClaimType = "character"
	ClaimTypeNarrative ClaimType = "narrative"
)

type ClaimStatus string

const (
	ClaimStatusVerified   ClaimStatus = "verified"
	ClaimStatusDerived    ClaimStatus = "derived"
	ClaimStatusUnverified ClaimStatus = "unverified"
	ClaimStatusCreative   ClaimStatus = "creative"
)

// Claim is a single checkable statement found in a payload.
type Claim struct {
	Field  string
	Text   string
	Type   ClaimType
	Status ClaimStatus
}

// ClaimAnalysis summarizes claim verification.
type ClaimAnalysis struct {
	Total       int
	Verified    int
	Derived     int
	Unsupported int
	Claims      []Claim
}

// VerificationRatio weighs derived claims at half of verified ones.
func (a ClaimAnalysis) VerificationRatio() float64 {
	if a.Total == 0 {
		return 0
	}
	return (float64(a.Verified) + float64(a.Derived)*0.5) / float64(a.Total) //nolint:mnd // half weight.
}

// claimFields are the payload fields that make checkable claims, in evaluation order.
var claimFields = []struct { //nolint:gochecknoglobals // read-only lookup table.
	field     string
	claimType ClaimType
}{
	{"stat_block", ClaimTypeMechanic},
	{"stats", ClaimTypeMechanic},
	{"damage", ClaimTypeMechanic},
	{"hp", ClaimTypeMechanic},
	{"ac", ClaimTypeMechanic},
	{"cr", ClaimTypeMechanic},
	{"lore", ClaimTypeLore},
	{"history", ClaimTypeLore},
	{"origin", ClaimTypeLore},
	{"personality", ClaimTypeCharacter},
	{"traits", ClaimTypeCharacter},
	{"motivation", ClaimTypeCharacter},
	{"background", ClaimTypeNarrative},
	{"plot_hooks", ClaimTypeNarrative},
}

// wordsPerClaim estimates claim density of free text when the payload has no known claim fields.
const wordsPerClaim = 50

// CitationVerifier combines the average citation confidence with the share of payload claims the citations can
// back. A citation at or above the canonical threshold counts as a verified source.
type CitationVerifier struct {
	Thresholds models.TrustThresholds
}

func NewCitationVerifier(thresholds models.TrustThresholds) CitationVerifier {
	return CitationVerifier{Thresholds: thresholds}
}

// Verify returns zero confidence without a verified source when there are no citations.
func (v CitationVerifier) Verify(data json.RawMessage, citations []models.Citation) Assessment {
	if len(citations) == 0 {
		return Assessment{Confidence: 0, HasVerifiedSource: false, Claims: ClaimAnalysis{}}
	}

	var (
		sum         float64
		hasStrong   bool
		hasVerified bool
		hasWeak     bool
	)
	for _, c := range citations {
		sum += c.Confidence
		if c.Confidence >= v.Thresholds.CanonicalConfidence {
			hasStrong = true
			hasVerified = true
		}
		if c.Confidence >= v.Thresholds.DerivedConfidence {
			hasWeak = true
		}
	}
	avg := sum / float64(len(citations))

	analysis := analyzeFields(data, hasStrong, hasWeak)
	if analysis.Total == 0 {
		analysis = estimateFromText(data, len(citations), avg)
	}

	confidence := (avg + analysis.VerificationRatio()) / 2 //nolint:mnd // mean of two signals.
	return Assessment{
		Confidence:        clamp01(confidence),
		HasVerifiedSource: hasVerified,
		Claims:            analysis,
	}
}

func analyzeFields(data json.RawMessage, hasStrong, hasWeak bool) ClaimAnalysis {
	var analysis ClaimAnalysis
	if !gjson.ValidBytes(data) {
		return analysis
	}
	for _, cf := range claimFields {
		value := gjson.GetBytes(data, cf.field)
		var text string
		switch {
		case !value.Exists():
			continue
		case value.Type == gjson.String:
			text = value.String()
		case value.Type == gjson.Number:
			text = value.Raw
		case value.IsArray():
			text = fmt.Sprintf("%d items", len(value.Array()))
		case value.IsObject():
			text = cf.field + " data"
		default:
			continue
		}

		status := claimStatus(cf.claimType, hasStrong, hasWeak)
		analysis.Claims = append(analysis.Claims, Claim{
			Field:  cf.field,
			Text:   text,
			Type:   cf.claimType,
			Status: status,
		})
		analysis.Total++
		switch status {
		case ClaimStatusVerified:
			analysis.Verified++
		case ClaimStatusDerived:
			analysis.Derived++
		case ClaimStatusUnverified, ClaimStatusCreative:
			analysis.Unsupported++
		}
	}
	return analysis
}

// claimStatus decides a claim's support. Rules-like claims can be derived from weaker sources, character and
// narrative claims are either backed by a strong source or creative.
func claimStatus(claimType ClaimType, hasStrong, hasWeak bool) ClaimStatus {
	if hasStrong {
		return ClaimStatusVerified
	}
	switch claimType {
	case ClaimTypeMechanic, ClaimTypeLore:
		if hasWeak {
			return ClaimStatusDerived
		}
		return ClaimStatusUnverified
	case ClaimTypeCharacter, ClaimTypeNarrative:
		return ClaimStatusCreative
	default:
		return ClaimStatusCreative
	}
}

// estimateFromText spreads citation coverage over an estimated claim count when no claim fields are present.
func estimateFromText(data json.RawMessage, citationCount int, avgConfidence float64) ClaimAnalysis {
	estimated := max(1, len(strings.Fields(string(data)))/wordsPerClaim)
	coverage := math.Min(1, float64(citationCount)/float64(estimated))

	verified := min(estimated, int(float64(estimated)*coverage*avgConfidence))
	derived := min(estimated-verified, int(float64(estimated)*coverage*(1-avgConfidence)*0.5)) //nolint:mnd // half.
	return ClaimAnalysis{
		Total:       estimated,
		Verified:    verified,
		Derived:     derived,
		Unsupported: estimated - verified - derived,
		Claims:      nil,
	}
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
