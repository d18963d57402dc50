package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/sqlite"
)

// CanonicalEntityRepository is the SQLite canonical campaign store.
type CanonicalEntityRepository struct {
	db     *sqlite.Database
	logger *slog.Logger
	now    func() time.Time
}

func NewCanonicalEntityRepository(db *sqlite.Database, logger *slog.Logger) *CanonicalEntityRepository {
	return &CanonicalEntityRepository{
		db:     db,
		logger: logger.With("source", "CanonicalEntityRepository"),
		now:    time.Now,
	}
}

// ApplyEntity stores validated draft data as a canonical entity and returns its ID.
func (r *CanonicalEntityRepository) ApplyEntity(
	ctx context.Context,
	campaignID string,
	entityType models.EntityType,
	data json.RawMessage,
) (string, error) {
	payload, err := models.DecodePayload(entityType, data)
	if err != nil {
		return "", errors.Wrap(err, "decode entity", slog.String("entity_type", string(entityType)))
	}
	id := uuid.NewString()
	stmt := `INSERT INTO canonical_entities (id, campaign_id, entity_type, name, data, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	if _, err = r.db.ReadWrite.ExecContext(ctx, stmt, id, nullString(campaignID), string(entityType),
		payload.DisplayName(), string(data), r.now().UTC()); err != nil {
		return "", errors.Wrap(err, "insert canonical entity", slog.String("entity_type", string(entityType)))
	}
	r.logger.LogAttrs(ctx, slog.LevelInfo, "canonical entity applied",
		slog.String("entity_id", id), slog.String("entity_type", string(entityType)))
	return id, nil
}

// RetractEntity marks an entity retracted. Retracting twice keeps the first reason.
func (r *CanonicalEntityRepository) RetractEntity(ctx context.Context, entityID string, reason string) error {
	stmt := `UPDATE canonical_entities
SET retracted = 1, retraction_reason = ?, retracted_at = ?
WHERE id = ? AND retracted = 0`
	result, err := r.db.ReadWrite.ExecContext(ctx, stmt, nullString(reason), r.now().UTC(), entityID)
	if err != nil {
		return errors.Wrap(err, "retract entity", slog.String("entity_id", entityID))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if affected == 1 {
		return nil
	}
	if _, err = r.Get(ctx, entityID); err != nil {
		return err
	}
	return nil
}

func (r *CanonicalEntityRepository) Get(ctx context.Context, entityID string) (models.CanonicalEntity, error) {
	var row struct {
		ID               string         `db:"id"`
		CampaignID       sql.NullString `db:"campaign_id"`
		EntityType       string         `db:"entity_type"`
		Name             string         `db:"name"`
		Data             string         `db:"data"`
		Retracted        bool           `db:"retracted"`
		RetractionReason sql.NullString `db:"retraction_reason"`
		CreatedAt        time.Time      `db:"created_at"`
		RetractedAt      sql.NullTime   `db:"retracted_at"`
	}
	stmt := `SELECT id, campaign_id, entity_type, name, data, retracted, retraction_reason, created_at, retracted_at
FROM canonical_entities
WHERE id = ?`
	if err := r.db.ReadOnly.GetContext(ctx, &row, stmt, entityID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.CanonicalEntity{}, errors.Wrap(ErrNotFound, "get entity", slog.String("entity_id", entityID))
		}
		return models.CanonicalEntity{}, errors.Wrap(err, "get entity", slog.String("entity_id", entityID))
	}
	entity := models.CanonicalEntity{
		ID:               row.ID,
		CampaignID:       row.CampaignID.String,
		EntityType:       models.EntityType(row.EntityType),
		Name:             row.Name,
		Data:             json.RawMessage(row.Data),
		Retracted:        row.Retracted,
		RetractionReason: row.RetractionReason.String,
		CreatedAt:        row.CreatedAt,
	}
	if row.RetractedAt.Valid {
		entity.RetractedAt = &row.RetractedAt.Time
	}
	return entity, nil
}
