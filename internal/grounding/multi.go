package grounding

import (
	"context"
	"log/slog"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"golang.org/x/sync/errgroup"
)

const maxParallelSources = 4

// Multi queries several grounders in parallel and merges their citations in grounder order. Failing grounders are
// logged and skipped. Only when every grounder fails is the search an error.
type Multi struct {
	grounders []Grounder
	logger    *slog.Logger
}

func NewMulti(logger *slog.Logger, grounders ...Grounder) *Multi {
	return &Multi{
		grounders: grounders,
		logger:    logger.With("source", "MultiGrounder"),
	}
}

func (m *Multi) FindCitations(ctx context.Context, query Query, filters Filters) ([]models.Citation, error) {
	var (
		g       errgroup.Group
		results = make([][]models.Citation, len(m.grounders))
		errs    = make([]error, len(m.grounders))
	)
	g.SetLimit(maxParallelSources)
	for i, grounder := range m.grounders {
		g.Go(func() error {
			results[i], errs[i] = grounder.FindCitations(ctx, query, filters)
			return nil
		})
	}
	_ = g.Wait()

	var (
		merged = []models.Citation{}
		seen   = make(map[string]bool)
		failed []error
	)
	for i := range m.grounders {
		if errs[i] != nil {
			failed = append(failed, errs[i])
			m.logger.LogAttrs(ctx, slog.LevelWarn, "grounding source failed",
				slog.Int("grounder", i), errors.SlogError(errs[i]))
			continue
		}
		for _, c := range results[i] {
			if c.ID != "" && seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			merged = append(merged, c)
		}
	}
	if len(m.grounders) > 0 && len(failed) == len(m.grounders) {
		return nil, errors.Wrap(errors.Join(failed...), "all grounding sources failed")
	}
	return limit(merged, query.Limit), nil
}
