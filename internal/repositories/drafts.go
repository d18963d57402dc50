package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/sqlite"
)

type DraftRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
}

func NewDraftRepository(db *sqlite.Database, logger *slog.Logger) *DraftRepository {
	return &DraftRepository{
		db:     db,
		logger: logger.With("source", "DraftRepository"),
	}
}

type draftRow struct {
	ID              string         `db:"id"`
	CampaignID      sql.NullString `db:"campaign_id"`
	WizardID        sql.NullString `db:"wizard_id"`
	EntityType      string         `db:"entity_type"`
	Data            string         `db:"data"`
	Status          string         `db:"status"`
	TrustLevel      string         `db:"trust_level"`
	TrustConfidence float64        `db:"trust_confidence"`
	AppliedEntityID sql.NullString `db:"applied_entity_id"`
	AppliedAt       sql.NullTime   `db:"applied_at"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

const draftColumns = `id, campaign_id, wizard_id, entity_type, data, status, trust_level, trust_confidence,
       applied_entity_id, applied_at, created_at, updated_at`

const citationColumns = `id, draft_id, position, source_type, source_id, source_name, page, section, chapter,
       paragraph, excerpt, confidence, created_at`

func (r draftRow) toModel() models.GenerationDraft {
	return models.GenerationDraft{
		ID:              r.ID,
		CampaignID:      r.CampaignID.String,
		WizardID:        r.WizardID.String,
		EntityType:      models.EntityType(r.EntityType),
		Data:            json.RawMessage(r.Data),
		Status:          models.CanonStatus(r.Status),
		TrustLevel:      models.TrustLevel(r.TrustLevel),
		TrustConfidence: r.TrustConfidence,
		Citations:       []models.Citation{},
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
		AppliedEntityID: r.AppliedEntityID.String,
		AppliedAt:       nullTimePtr(r.AppliedAt),
	}
}

// CreateDrafts stores the drafts and their citations in one transaction. Either all drafts are stored or none.
func (r *DraftRepository) CreateDrafts(ctx context.Context, drafts []models.GenerationDraft) error {
	err := r.db.Transact(ctx, func(tx *sqlx.Tx) error {
		for _, d := range drafts {
			row := draftRow{
				ID:              d.ID,
				CampaignID:      nullString(d.CampaignID),
				WizardID:        nullString(d.WizardID),
				EntityType:      string(d.EntityType),
				Data:            string(d.Data),
				Status:          string(d.Status),
				TrustLevel:      string(d.TrustLevel),
				TrustConfidence: d.TrustConfidence,
				AppliedEntityID: nullString(d.AppliedEntityID),
				AppliedAt:       timePtrNull(d.AppliedAt),
				CreatedAt:       d.CreatedAt,
				UpdatedAt:       d.UpdatedAt,
			}
			stmt := `INSERT INTO generation_drafts (` + draftColumns + `)
VALUES (:id, :campaign_id, :wizard_id, :entity_type, :data, :status, :trust_level, :trust_confidence,
        :applied_entity_id, :applied_at, :created_at, :updated_at)`
			if _, err := tx.NamedExecContext(ctx, stmt, row); err != nil {
				return errors.Wrap(err, "insert draft", slog.String("draft_id", d.ID))
			}
			for i, c := range d.Citations {
				citation := newCitationRow(c)
				citation.DraftID = d.ID
				citation.Position = sql.NullInt64{Int64: int64(i), Valid: true}
				stmt = `INSERT INTO draft_citations (` + citationColumns + `)
VALUES (:id, :draft_id, :position, :source_type, :source_id, :source_name, :page, :section, :chapter,
        :paragraph, :excerpt, :confidence, :created_at)`
				if _, err := tx.NamedExecContext(ctx, stmt, citation); err != nil {
					return errors.Wrap(err, "insert citation", slog.String("draft_id", d.ID))
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "create drafts", slog.Int("count", len(drafts)))
	}
	return nil
}

// Get returns the draft with its citations or ErrNotFound.
func (r *DraftRepository) Get(ctx context.Context, draftID string) (models.GenerationDraft, error) {
	return r.getBy(ctx, "id", draftID)
}

// GetByAppliedEntity returns the draft that was applied as the given canonical entity or ErrNotFound.
func (r *DraftRepository) GetByAppliedEntity(ctx context.Context, entityID string) (models.GenerationDraft, error) {
	return r.getBy(ctx, "applied_entity_id", entityID)
}

func (r *DraftRepository) getBy(ctx context.Context, column, value string) (models.GenerationDraft, error) {
	var row draftRow
	stmt := `SELECT ` + draftColumns + ` FROM generation_drafts WHERE ` + column + ` = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &row, stmt, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.GenerationDraft{}, errors.Wrap(ErrNotFound, "get draft", slog.String(column, value))
		}
		return models.GenerationDraft{}, errors.Wrap(err, "get draft", slog.String(column, value))
	}
	drafts, err := r.withCitations(ctx, []draftRow{row})
	if err != nil {
		return models.GenerationDraft{}, err
	}
	return drafts[0], nil
}

// ListPending returns the drafts still awaiting a final decision, oldest first. An empty entityType lists all types.
func (r *DraftRepository) ListPending(
	ctx context.Context,
	campaignID string,
	entityType models.EntityType,
) ([]models.GenerationDraft, error) {
	var rows []draftRow
	stmt := `SELECT ` + draftColumns + `
FROM generation_drafts
WHERE campaign_id IS @campaign_id
  AND status IN ('draft', 'approved')
  AND (@entity_type = '' OR entity_type = @entity_type)
ORDER BY created_at, id`
	if err := r.db.ReadOnly.SelectContext(ctx, &rows, stmt,
		sql.Named("campaign_id", nullString(campaignID)),
		sql.Named("entity_type", string(entityType)),
	); err != nil {
		return nil, errors.Wrap(err, "list pending drafts", slog.String("campaign_id", campaignID))
	}
	return r.withCitations(ctx, rows)
}

func (r *DraftRepository) withCitations(ctx context.Context, rows []draftRow) ([]models.GenerationDraft, error) {
	drafts := make([]models.GenerationDraft, 0, len(rows))
	if len(rows) == 0 {
		return drafts, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	query, args, err := sqlx.In(`SELECT `+citationColumns+`
FROM draft_citations
WHERE draft_id IN (?)
ORDER BY draft_id, position`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "build citation query")
	}
	var citationRows []citationRow
	if err = r.db.ReadOnly.SelectContext(ctx, &citationRows, r.db.ReadOnly.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "select citations")
	}
	byDraft := make(map[string][]models.Citation, len(rows))
	for _, c := range citationRows {
		byDraft[c.DraftID] = append(byDraft[c.DraftID], c.toModel())
	}
	for _, row := range rows {
		d := row.toModel()
		if citations, ok := byDraft[d.ID]; ok {
			d.Citations = citations
		}
		drafts = append(drafts, d)
	}
	return drafts, nil
}

// AcquireLease takes the exclusive lease of a draft until now+ttl. It returns false when another holder has an
// unexpired lease and ErrNotFound when the draft does not exist.
func (r *DraftRepository) AcquireLease(
	ctx context.Context,
	draftID string,
	token string,
	now time.Time,
	ttl time.Duration,
) (bool, error) {
	stmt := `UPDATE generation_drafts
SET lock_token = @token, locked_until = @until
WHERE id = @id
  AND (lock_token IS NULL OR lock_token = @token OR locked_until < @now)`
	result, err := r.db.ReadWrite.ExecContext(ctx, stmt,
		sql.Named("token", token),
		sql.Named("until", now.Add(ttl).UnixMilli()),
		sql.Named("now", now.UnixMilli()),
		sql.Named("id", draftID),
	)
	if err != nil {
		return false, errors.Wrap(err, "acquire lease", slog.String("draft_id", draftID))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return true, nil
	}

	var exists bool
	if err = r.db.ReadWrite.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM generation_drafts WHERE id = ?)`, draftID); err != nil {
		return false, errors.Wrap(err, "check draft exists", slog.String("draft_id", draftID))
	}
	if !exists {
		return false, errors.Wrap(ErrNotFound, "acquire lease", slog.String("draft_id", draftID))
	}
	return false, nil
}

// ReleaseLease gives up a lease. Releasing a lease that has since been taken over is a no-op.
func (r *DraftRepository) ReleaseLease(ctx context.Context, draftID string, token string) error {
	stmt := `UPDATE generation_drafts
SET lock_token = NULL, locked_until = NULL
WHERE id = ? AND lock_token = ?`
	if _, err := r.db.ReadWrite.ExecContext(ctx, stmt, draftID, token); err != nil {
		return errors.Wrap(err, "release lease", slog.String("draft_id", draftID))
	}
	return nil
}

// DraftUpdate is one GM decision applied to a draft by RecordDecision.
type DraftUpdate struct {
	DraftID   string
	LockToken string
	// FromStatus is the status the decision was made against.
	FromStatus models.CanonStatus
	// Hops are appended to the status log in order and the last one sets the new status. No hops keeps the status.
	Hops []models.CanonStatusLogEntry
	// Data replaces the payload when set.
	Data json.RawMessage
	// AppliedEntityID is stored when set, together with Now as the time it was applied.
	AppliedEntityID string
	Event           models.AcceptanceEvent
	Now             time.Time
}

// RecordDecision writes the status change, the status log rows and the acceptance event in one transaction. It
// returns ErrConflict when the draft is no longer in FromStatus or the lease is not held.
func (r *DraftRepository) RecordDecision(ctx context.Context, update DraftUpdate) error {
	newStatus := update.FromStatus
	if n := len(update.Hops); n > 0 {
		newStatus = update.Hops[n-1].NewStatus
	}

	var appliedAt sql.NullTime
	if update.AppliedEntityID != "" {
		appliedAt = sql.NullTime{Time: update.Now, Valid: true}
	}

	err := r.db.Transact(ctx, func(tx *sqlx.Tx) error {
		stmt := `UPDATE generation_drafts
SET status            = @status,
    data              = COALESCE(@data, data),
    applied_entity_id = COALESCE(@applied_entity_id, applied_entity_id),
    applied_at        = COALESCE(@applied_at, applied_at),
    updated_at        = @updated_at
WHERE id = @id
  AND status = @from_status
  AND lock_token = @lock_token`
		result, err := tx.ExecContext(ctx, stmt,
			sql.Named("status", string(newStatus)),
			sql.Named("data", nullJSON(update.Data)),
			sql.Named("applied_entity_id", nullString(update.AppliedEntityID)),
			sql.Named("applied_at", appliedAt),
			sql.Named("updated_at", update.Now),
			sql.Named("id", update.DraftID),
			sql.Named("from_status", string(update.FromStatus)),
			sql.Named("lock_token", update.LockToken),
		)
		if err != nil {
			return errors.Wrap(err, "update draft")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "rows affected")
		}
		if affected != 1 {
			return errors.Wrap(ErrConflict, "update draft", slog.String("from_status", string(update.FromStatus)))
		}

		var sequence int
		if err = tx.GetContext(ctx, &sequence,
			`SELECT COALESCE(MAX(sequence), 0) FROM canon_status_log WHERE draft_id = ?`, update.DraftID); err != nil {
			return errors.Wrap(err, "read status log sequence")
		}
		for _, hop := range update.Hops {
			sequence++
			stmt = `INSERT INTO canon_status_log (id, draft_id, sequence, previous_status, new_status, reason, triggered_by,
                              timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
			if _, err = tx.ExecContext(ctx, stmt, uuid.NewString(), update.DraftID, sequence,
				string(hop.PreviousStatus), string(hop.NewStatus), nullString(hop.Reason), hop.TriggeredBy,
				update.Now); err != nil {
				return errors.Wrap(err, "insert status log entry", slog.Int("sequence", sequence))
			}
		}

		event := update.Event
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		stmt = `INSERT INTO acceptance_events (id, draft_id, entity_type, decision, modifications, reason, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?)`
		if _, err = tx.ExecContext(ctx, stmt, event.ID, update.DraftID, string(event.EntityType),
			string(event.Decision), nullJSON(event.Modifications), nullString(event.Reason), update.Now); err != nil {
			return errors.Wrap(err, "insert acceptance event")
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "record decision", slog.String("draft_id", update.DraftID))
	}
	return nil
}

// History returns the status log ordered by sequence and the acceptance events in the order they were recorded.
func (r *DraftRepository) History(ctx context.Context, draftID string) (models.DraftHistory, error) {
	var logRows []struct {
		ID             string         `db:"id"`
		DraftID        string         `db:"draft_id"`
		Sequence       int            `db:"sequence"`
		PreviousStatus string         `db:"previous_status"`
		NewStatus      string         `db:"new_status"`
		Reason         sql.NullString `db:"reason"`
		TriggeredBy    string         `db:"triggered_by"`
		Timestamp      time.Time      `db:"timestamp"`
	}
	stmt := `SELECT id, draft_id, sequence, previous_status, new_status, reason, triggered_by, timestamp
FROM canon_status_log
WHERE draft_id = ?
ORDER BY sequence`
	if err := r.db.ReadOnly.SelectContext(ctx, &logRows, stmt, draftID); err != nil {
		return models.DraftHistory{}, errors.Wrap(err, "select status log", slog.String("draft_id", draftID))
	}

	var eventRows []struct {
		ID            string         `db:"id"`
		DraftID       string         `db:"draft_id"`
		EntityType    string         `db:"entity_type"`
		Decision      string         `db:"decision"`
		Modifications sql.NullString `db:"modifications"`
		Reason        sql.NullString `db:"reason"`
		Timestamp     time.Time      `db:"timestamp"`
	}
	stmt = `SELECT id, draft_id, entity_type, decision, modifications, reason, timestamp
FROM acceptance_events
WHERE draft_id = ?
ORDER BY timestamp, rowid`
	if err := r.db.ReadOnly.SelectContext(ctx, &eventRows, stmt, draftID); err != nil {
		return models.DraftHistory{}, errors.Wrap(err, "select acceptance events", slog.String("draft_id", draftID))
	}

	history := models.DraftHistory{
		StatusLog: make([]models.CanonStatusLogEntry, 0, len(logRows)),
		Events:    make([]models.AcceptanceEvent, 0, len(eventRows)),
	}
	for _, row := range logRows {
		history.StatusLog = append(history.StatusLog, models.CanonStatusLogEntry{
			ID:             row.ID,
			DraftID:        row.DraftID,
			Sequence:       row.Sequence,
			PreviousStatus: models.CanonStatus(row.PreviousStatus),
			NewStatus:      models.CanonStatus(row.NewStatus),
			Reason:         row.Reason.String,
			TriggeredBy:    row.TriggeredBy,
			Timestamp:      row.Timestamp,
		})
	}
	for _, row := range eventRows {
		event := models.AcceptanceEvent{
			ID:         row.ID,
			DraftID:    row.DraftID,
			EntityType: models.EntityType(row.EntityType),
			Decision:   models.Decision(row.Decision),
			Reason:     row.Reason.String,
			Timestamp:  row.Timestamp,
		}
		if row.Modifications.Valid {
			event.Modifications = json.RawMessage(row.Modifications.String)
		}
		history.Events = append(history.Events, event)
	}
	return history, nil
}
