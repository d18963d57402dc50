// Package repositories persists drafts, their audit trail, canonical entities and source excerpts in SQLite.
package repositories

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
)

var (
	ErrNotFound = errors.NewSentinel("not found")
	// ErrConflict means that the row changed after it was read or that the caller does not hold the draft lease.
	ErrConflict = errors.NewSentinel("conflict")
)

// citationRow maps both draft_citations and source_excerpts.
type citationRow struct {
	ID         string         `db:"id"`
	DraftID    string         `db:"draft_id"`
	SourceType string         `db:"source_type"`
	SourceID   sql.NullString `db:"source_id"`
	SourceName string         `db:"source_name"`
	Page       sql.NullInt64  `db:"page"`
	Section    sql.NullString `db:"section"`
	Chapter    sql.NullString `db:"chapter"`
	Paragraph  sql.NullInt64  `db:"paragraph"`
	Excerpt    sql.NullString `db:"excerpt"`
	Confidence float64        `db:"confidence"`
	CreatedAt  time.Time      `db:"created_at"`
	Position   sql.NullInt64  `db:"position"`
	CampaignID sql.NullString `db:"campaign_id"`
}

func (r citationRow) toModel() models.Citation {
	c := models.Citation{
		ID:         r.ID,
		SourceType: models.SourceType(r.SourceType),
		SourceID:   r.SourceID.String,
		SourceName: r.SourceName,
		Excerpt:    r.Excerpt.String,
		Confidence: r.Confidence,
		UsedIn:     r.DraftID,
		CreatedAt:  r.CreatedAt,
	}
	if r.Page.Valid || r.Section.Valid || r.Chapter.Valid || r.Paragraph.Valid {
		c.Location = &models.SourceLocation{
			Page:      nullIntPtr(r.Page),
			Section:   r.Section.String,
			Chapter:   r.Chapter.String,
			Paragraph: nullIntPtr(r.Paragraph),
		}
	}
	return c
}

func newCitationRow(c models.Citation) citationRow {
	row := citationRow{
		ID:         c.ID,
		DraftID:    c.UsedIn,
		SourceType: string(c.SourceType),
		SourceID:   nullString(c.SourceID),
		SourceName: c.SourceName,
		Excerpt:    nullString(c.Excerpt),
		Confidence: c.Confidence,
		CreatedAt:  c.CreatedAt,
	}
	if loc := c.Location; loc != nil {
		row.Page = intPtrNull(loc.Page)
		row.Section = nullString(loc.Section)
		row.Chapter = nullString(loc.Chapter)
		row.Paragraph = intPtrNull(loc.Paragraph)
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullIntPtr(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func intPtrNull(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

// nullTimePtr reads a nullable timestamp in UTC.
func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func timePtrNull(p *time.Time) sql.NullTime {
	if p == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *p, Valid: true}
}

// nullJSON stores absent JSON as NULL instead of an invalid empty string.
func nullJSON(data json.RawMessage) sql.NullString {
	if len(data) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(data), Valid: true}
}
