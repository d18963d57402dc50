// Package grounding finds source citations for a generation request.
package grounding

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"github.com/myrjola/canonforge/internal/models"
)

type Query struct {
	CampaignID     string
	GenerationType models.GenerationType
	Text           string
	// Limit caps the number of citations. Zero means no limit.
	Limit int
}

type Filters struct {
	// SourceTypes restricts the result to the given source types. Empty means all.
	SourceTypes   []models.SourceType
	MinConfidence float64
}

// Grounder searches sources for citations relevant to a query.
type Grounder interface {
	FindCitations(ctx context.Context, query Query, filters Filters) ([]models.Citation, error)
}

// Allows reports whether c passes the filters.
func (f Filters) Allows(c models.Citation) bool {
	if c.Confidence < f.MinConfidence {
		return false
	}
	return len(f.SourceTypes) == 0 || slices.Contains(f.SourceTypes, c.SourceType)
}

const (
	minKeywordLength = 4
	maxKeywords      = 8
)

// Keywords extracts lower-cased search terms from free text, dropping short words and duplicates.
func Keywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	keywords := make([]string, 0, maxKeywords)
	for _, f := range fields {
		if len([]rune(f)) < minKeywordLength || slices.Contains(keywords, f) {
			continue
		}
		keywords = append(keywords, f)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}

func limit(citations []models.Citation, n int) []models.Citation {
	if n > 0 && len(citations) > n {
		return citations[:n]
	}
	return citations
}
