package grounding

import (
	"context"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
)

const defaultLibraryLimit = 20

// ExcerptSearcher is implemented by repositories.SourceExcerptRepository.
type ExcerptSearcher interface {
	SearchExcerpts(
		ctx context.Context,
		campaignID string,
		keywords []string,
		filters Filters,
		limit int,
	) ([]models.Citation, error)
}

// Library grounds requests on the source excerpts stored for a campaign.
type Library struct {
	store ExcerptSearcher
}

func NewLibrary(store ExcerptSearcher) *Library {
	return &Library{store: store}
}

func (l *Library) FindCitations(ctx context.Context, query Query, filters Filters) ([]models.Citation, error) {
	n := query.Limit
	if n == 0 {
		n = defaultLibraryLimit
	}
	citations, err := l.store.SearchExcerpts(ctx, query.CampaignID, Keywords(query.Text), filters, n)
	if err != nil {
		return nil, errors.Wrap(err, "search source excerpts")
	}
	return citations, nil
}
