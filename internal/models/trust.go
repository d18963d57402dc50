package models

// TrustLevel tags how well generated content is supported by verifiable sources.
type TrustLevel string

const (
	TrustLevelCanonical  TrustLevel = "canonical"
	TrustLevelDerived    TrustLevel = "derived"
	TrustLevelCreative   TrustLevel = "creative"
	TrustLevelUnverified TrustLevel = "unverified"
)

// TrustThresholds are the confidence cut-offs used when classifying drafts.
type TrustThresholds struct {
	CanonicalConfidence float64
	DerivedConfidence   float64
	// CreativeConfidence is the floor marker. Anything at or below it with no support is creative.
	CreativeConfidence float64
}

func DefaultTrustThresholds() TrustThresholds {
	return TrustThresholds{
		CanonicalConfidence: 0.95, //nolint:mnd // default threshold.
		DerivedConfidence:   0.75, //nolint:mnd // default threshold.
		CreativeConfidence:  0,
	}
}
