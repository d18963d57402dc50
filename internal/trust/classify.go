// Package trust classifies how well generated content is supported by its citations.
package trust

import (
	"math"

	"github.com/myrjola/canonforge/internal/models"
)

// Classify maps a confidence and whether any source is verified to a trust level.
//
// It is total and monotonic in confidence for fixed hasVerifiedSource and thresholds. NaN is treated as zero.
func Classify(confidence float64, hasVerifiedSource bool, thresholds models.TrustThresholds) models.TrustLevel {
	if math.IsNaN(confidence) {
		confidence = 0
	}
	switch {
	case hasVerifiedSource && confidence >= thresholds.CanonicalConfidence:
		return models.TrustLevelCanonical
	case confidence >= thresholds.DerivedConfidence:
		return models.TrustLevelDerived
	case confidence > thresholds.CreativeConfidence:
		return models.TrustLevelUnverified
	default:
		return models.TrustLevelCreative
	}
}
