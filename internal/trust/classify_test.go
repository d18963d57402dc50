package trust_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/trust"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	thresholds := models.DefaultTrustThresholds()
	tests := []struct {
		name       string
		confidence float64
		verified   bool
		want       models.TrustLevel
	}{
		{name: "verified high confidence", confidence: 0.98, verified: true, want: models.TrustLevelCanonical},
		{name: "unverified high confidence", confidence: 0.98, verified: false, want: models.TrustLevelDerived},
		{name: "derived", confidence: 0.80, verified: false, want: models.TrustLevelDerived},
		{name: "weak support", confidence: 0.50, verified: false, want: models.TrustLevelUnverified},
		{name: "no support", confidence: 0.0, verified: false, want: models.TrustLevelCreative},
		{name: "verified but low confidence", confidence: 0.5, verified: true, want: models.TrustLevelUnverified},
		{name: "exactly canonical", confidence: 0.95, verified: true, want: models.TrustLevelCanonical},
		{name: "exactly derived", confidence: 0.75, verified: false, want: models.TrustLevelDerived},
		{name: "nan", confidence: math.NaN(), verified: true, want: models.TrustLevelCreative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, trust.Classify(tt.confidence, tt.verified, thresholds))
		})
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	t.Parallel()
	rank := map[models.TrustLevel]int{
		models.TrustLevelCreative:   0,
		models.TrustLevelUnverified: 1,
		models.TrustLevelDerived:    2,
		models.TrustLevelCanonical:  3,
	}
	thresholds := models.DefaultTrustThresholds()
	for _, verified := range []bool{false, true} {
		previous := -1
		for i := 0; i <= 1000; i++ {
			confidence := float64(i) / 1000
			level := trust.Classify(confidence, verified, thresholds)
			require.GreaterOrEqual(t, rank[level], previous, "confidence %.3f verified %t", confidence, verified)
			previous = rank[level]
		}
	}
}

func citation(confidence float64) models.Citation {
	return models.Citation{
		ID:         "c",
		SourceType: models.SourceTypeRulebook,
		SourceName: "Monster Manual",
		Confidence: confidence,
	}
}

func TestCitationVerifier(t *testing.T) {
	t.Parallel()
	verifier := trust.NewCitationVerifier(models.DefaultTrustThresholds())
	assigner := trust.NewAssigner(verifier, models.DefaultTrustThresholds())

	t.Run("no citations is creative", func(t *testing.T) {
		t.Parallel()
		got := assigner.Assign(json.RawMessage(`{"name": "Salt-Eye Bess", "personality": "boisterous"}`), nil)
		require.Equal(t, models.TrustLevelCreative, got.Level)
		require.InDelta(t, 0.0, got.Confidence, 1e-9)
		require.False(t, got.Assessment.HasVerifiedSource)
	})

	t.Run("strong citation backing a stat block is canonical", func(t *testing.T) {
		t.Parallel()
		data := json.RawMessage(`{"name": "Reef Troll", "stat_block": {"ac": 15, "hp": 84}}`)
		got := assigner.Assign(data, []models.Citation{citation(0.97)})
		require.Equal(t, models.TrustLevelCanonical, got.Level)
		require.True(t, got.Assessment.HasVerifiedSource)
		require.Equal(t, 1, got.Assessment.Claims.Verified)
		require.InDelta(t, 0.985, got.Confidence, 1e-9)
	})

	t.Run("weak citations derive mechanics and leave character creative", func(t *testing.T) {
		t.Parallel()
		data := json.RawMessage(`{"name": "Quartermaster", "stats": {"str": 12}, "traits": ["greedy", "loyal"]}`)
		got := verifier.Verify(data, []models.Citation{citation(0.8)})
		require.False(t, got.HasVerifiedSource)
		require.Equal(t, 2, got.Claims.Total)
		require.Equal(t, 1, got.Claims.Derived)
		require.Equal(t, 1, got.Claims.Unsupported)
		// (0.8 + 0.25) / 2
		require.InDelta(t, 0.525, got.Confidence, 1e-9)
	})

	t.Run("payload without claim fields falls back to text estimate", func(t *testing.T) {
		t.Parallel()
		got := verifier.Verify(json.RawMessage(`{"title": "A storm rolls in"}`), []models.Citation{citation(0.5)})
		require.Equal(t, 1, got.Claims.Total)
		require.Equal(t, 0, got.Claims.Verified)
		require.Equal(t, 0, got.Claims.Derived)
		require.InDelta(t, 0.25, got.Confidence, 1e-9)
		require.Equal(t, models.TrustLevelUnverified,
			trust.Classify(got.Confidence, got.HasVerifiedSource, models.DefaultTrustThresholds()))
	})
}
