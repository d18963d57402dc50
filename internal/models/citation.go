package models

import (
	"log/slog"
	"time"

	"github.com/myrjola/canonforge/internal/errors"
)

type SourceType string

const (
	SourceTypeRulebook     SourceType = "rulebook"
	SourceTypePriorSession SourceType = "prior_session"
	SourceTypeGenerated    SourceType = "generated"
	SourceTypeUserProvided SourceType = "user_provided"
	SourceTypeExternal     SourceType = "external"
)

// ParseSourceType validates a source type coming from outside the process.
func ParseSourceType(s string) (SourceType, error) {
	switch t := SourceType(s); t {
	case SourceTypeRulebook, SourceTypePriorSession, SourceTypeGenerated, SourceTypeUserProvided, SourceTypeExternal:
		return t, nil
	default:
		return "", errors.New("unknown source type", slog.String("source_type", s))
	}
}

// SourceLocation pinpoints where in a source a citation comes from.
type SourceLocation struct {
	Page      *int   `json:"page,omitempty"`
	Section   string `json:"section,omitempty"`
	Chapter   string `json:"chapter,omitempty"`
	Paragraph *int   `json:"paragraph,omitempty"`
}

// Citation is a reference to a source supporting a claim within generated content. Citations are immutable once
// attached to a draft.
type Citation struct {
	ID         string          `json:"id"`
	SourceType SourceType      `json:"source_type"`
	SourceID   string          `json:"source_id,omitempty"`
	SourceName string          `json:"source_name"`
	Location   *SourceLocation `json:"location,omitempty"`
	Excerpt    string          `json:"excerpt,omitempty"`
	// Confidence is in [0, 1].
	Confidence float64 `json:"confidence"`
	// UsedIn is the draft the citation is attached to. Empty until the draft is persisted.
	UsedIn    string    `json:"used_in,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
