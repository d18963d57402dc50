package repositories

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/grounding"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/sqlite"
)

// SourceExcerptRepository stores rulebook and session excerpts that drafts can be grounded on.
type SourceExcerptRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewSourceExcerptRepository(db *sqlite.Database, logger *slog.Logger) *SourceExcerptRepository {
	return &SourceExcerptRepository{
		db:     db,
		logger: logger.With("source", "SourceExcerptRepository"),
	}
}

const excerptColumns = `id, source_type, source_id, source_name, page, section, chapter, excerpt, confidence,
       created_at`

// AddExcerpt stores an excerpt for a campaign. An empty campaignID makes the excerpt available to every campaign.
func (r *SourceExcerptRepository) AddExcerpt(
	ctx context.Context,
	campaignID string,
	excerpt models.Citation,
) (models.Citation, error) {
	if excerpt.ID == "" {
		excerpt.ID = uuid.NewString()
	}
	if excerpt.CreatedAt.IsZero() {
		excerpt.CreatedAt = time.Now().UTC()
	}
	row := newCitationRow(excerpt)
	row.CampaignID = nullString(campaignID)
	stmt := `INSERT INTO source_excerpts (campaign_id, ` + excerptColumns + `)
VALUES (:campaign_id, :id, :source_type, :source_id, :source_name, :page, :section, :chapter, :excerpt, :confidence,
        :created_at)`
	if _, err := r.db.ReadWrite.NamedExecContext(ctx, stmt, row); err != nil {
		return models.Citation{}, errors.Wrap(err, "insert source excerpt", slog.String("source_name", excerpt.SourceName))
	}
	return excerpt, nil
}

// SearchExcerpts returns excerpts of the campaign or shared excerpts matching any keyword, most confident first.
// Without keywords every excerpt passing the filters matches.
func (r *SourceExcerptRepository) SearchExcerpts(
	ctx context.Context,
	campaignID string,
	keywords []string,
	filters grounding.Filters,
	limit int,
) ([]models.Citation, error) {
	var (
		conditions = []string{"(campaign_id IS NULL OR campaign_id = ?)", "confidence >= ?"}
		args       = []any{campaignID, filters.MinConfidence}
	)
	if len(filters.SourceTypes) > 0 {
		conditions = append(conditions, "source_type IN (?)")
		args = append(args, filters.SourceTypes)
	}
	if len(keywords) > 0 {
		matches := make([]string, 0, len(keywords))
		for _, keyword := range keywords {
			matches = append(matches, "(excerpt LIKE ? OR source_name LIKE ? OR section LIKE ?)")
			pattern := "%" + keyword + "%"
			args = append(args, pattern, pattern, pattern)
		}
		conditions = append(conditions, "("+strings.Join(matches, " OR ")+")")
	}
	if limit <= 0 {
		limit = -1 // SQLite reads a negative limit as no limit.
	}
	args = append(args, limit)

	query, inArgs, err := sqlx.In(`SELECT `+excerptColumns+`
FROM source_excerpts
WHERE `+strings.Join(conditions, " AND ")+`
ORDER BY confidence DESC, created_at DESC
LIMIT ?`, args...)
	if err != nil {
		return nil, errors.Wrap(err, "build excerpt query")
	}
	var rows []citationRow
	if err = r.db.ReadOnly.SelectContext(ctx, &rows, r.db.ReadOnly.Rebind(query), inArgs...); err != nil {
		return nil, errors.Wrap(err, "search source excerpts", slog.String("campaign_id", campaignID))
	}
	citations := make([]models.Citation, 0, len(rows))
	for _, row := range rows {
		citations = append(citations, row.toModel())
	}
	return citations, nil
}
