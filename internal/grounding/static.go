package grounding

import (
	"context"

	"github.com/myrjola/canonforge/internal/models"
)

// Static serves a fixed set of citations, for example those pinned by the game master for a session.
type Static struct {
	Citations []models.Citation
}

func (s Static) FindCitations(ctx context.Context, query Query, filters Filters) ([]models.Citation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err //nolint:wrapcheck // cancellation is passed through as is.
	}
	found := make([]models.Citation, 0, len(s.Citations))
	for _, c := range s.Citations {
		if filters.Allows(c) {
			found = append(found, c)
		}
	}
	return limit(found, query.Limit), nil
}
