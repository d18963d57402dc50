// Package acceptance moves drafts through their lifecycle on GM decisions. Every decision takes the per-draft lease,
// checks the transition against the canon status table and records the status log rows and the acceptance event in
// one transaction. Only Accept and Revoke touch canonical campaign storage.
package acceptance

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/canonforge/internal/contexthelpers"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/logging"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/pipeline"
	"github.com/myrjola/canonforge/internal/repositories"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/myrjola/canonforge/internal/acceptance"

// DraftStore is the durable draft storage with its audit trail and leases.
type DraftStore interface {
	Get(ctx context.Context, draftID string) (models.GenerationDraft, error)
	GetByAppliedEntity(ctx context.Context, entityID string) (models.GenerationDraft, error)
	ListPending(ctx context.Context, campaignID string, entityType models.EntityType) ([]models.GenerationDraft, error)
	AcquireLease(ctx context.Context, draftID string, token string, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, draftID string, token string) error
	RecordDecision(ctx context.Context, update repositories.DraftUpdate) error
	History(ctx context.Context, draftID string) (models.DraftHistory, error)
}

// CanonicalStore is the campaign storage accepted entities are materialized into.
type CanonicalStore interface {
	ApplyEntity(ctx context.Context, campaignID string, entityType models.EntityType, data json.RawMessage) (string, error)
	RetractEntity(ctx context.Context, entityID string, reason string) error
}

type Options struct {
	LockMode LockMode
	// LockWait bounds the wait for a held lease in LockModeWait.
	LockWait time.Duration
	// LockTTL is how long a lease survives a crashed holder.
	LockTTL time.Duration
	Now     func() time.Time
}

func DefaultOptions() Options {
	return Options{
		LockMode: LockModeFailFast,
		LockWait: 5 * time.Second,  //nolint:mnd // default wait.
		LockTTL:  30 * time.Second, //nolint:mnd // default TTL.
		Now:      time.Now,
	}
}

type Manager struct {
	drafts    DraftStore
	canonical CanonicalStore

	lockMode LockMode
	lockWait time.Duration
	lockTTL  time.Duration
	now      func() time.Time

	logger *slog.Logger
	tracer trace.Tracer
}

func New(drafts DraftStore, canonical CanonicalStore, opts Options, logger *slog.Logger) *Manager {
	defaults := DefaultOptions()
	if opts.LockMode != LockModeWait || opts.LockWait <= 0 {
		opts.LockMode = LockModeFailFast
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.Now == nil {
		opts.Now = defaults.Now
	}
	return &Manager{
		drafts:    drafts,
		canonical: canonical,
		lockMode:  opts.LockMode,
		lockWait:  opts.LockWait,
		lockTTL:   opts.LockTTL,
		now:       opts.Now,
		logger:    logger.With("source", "AcceptanceManager"),
		tracer:    otel.Tracer(tracerName),
	}
}

// decision is what a GM action does to a locked draft.
type decision struct {
	kind   models.Decision
	target models.CanonStatus
	// hops is empty when the status stays the same.
	hops          []models.CanonStatus
	data          json.RawMessage
	modifications json.RawMessage
	reason        string
}

// Accept makes the draft canonical, applying modifications first. A draft still in draft status is approved and
// accepted in one step, which logs both hops. Accepting a canonical draft again returns the existing entity and only
// records the accept event.
func (m *Manager) Accept(
	ctx context.Context,
	draftID string,
	modifications json.RawMessage,
) (_ models.AppliedEntity, err error) {
	ctx, end := m.start(ctx, "acceptance.Accept", draftID)
	defer func() { end(err) }()

	held, err := m.lockAndLoad(ctx, draftID)
	if err != nil {
		return models.AppliedEntity{}, err
	}
	defer held.release()
	draft, scope := held.draft, held.scope

	if draft.Status == models.CanonStatusCanonical {
		if hasModifications(modifications) {
			return models.AppliedEntity{}, pipeline.Validation(scope, "canonical drafts cannot be modified", nil)
		}
		if err = m.record(ctx, held, decision{kind: models.DecisionAccept, target: draft.Status}); err != nil {
			return models.AppliedEntity{}, err
		}
		m.logger.LogAttrs(ctx, slog.LevelInfo, "draft already canonical",
			slog.String("entity_id", draft.AppliedEntityID))
		return appliedEntity(draft, draft.AppliedEntityID, appliedAt(draft)), nil
	}

	hops, ok := draft.Status.PathTo(models.CanonStatusCanonical)
	if !ok {
		return models.AppliedEntity{}, pipeline.InvalidTransition(scope, draft.Status, models.CanonStatusCanonical)
	}

	data := draft.Data
	if hasModifications(modifications) {
		if data, err = merge(draft.EntityType, draft.Data, modifications); err != nil {
			return models.AppliedEntity{}, pipeline.Validation(scope, "invalid modifications", err)
		}
	}

	entityID, err := m.canonical.ApplyEntity(ctx, draft.CampaignID, draft.EntityType, data)
	if err != nil {
		return models.AppliedEntity{}, pipeline.Internal(scope, "apply canonical entity", err)
	}

	d := decision{
		kind:          models.DecisionAccept,
		target:        models.CanonStatusCanonical,
		hops:          hops,
		modifications: compactOrNil(modifications),
		reason:        "accepted",
	}
	if hasModifications(modifications) {
		d.data = data
	}
	at, err := m.recordApplied(ctx, held, d, entityID)
	if err != nil {
		// Leave no canonical entity behind for a decision that was not recorded.
		if retractErr := m.canonical.RetractEntity(context.WithoutCancel(ctx), entityID,
			"acceptance not recorded"); retractErr != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "retract entity of failed acceptance",
				slog.String("entity_id", entityID), errors.SlogError(retractErr))
		}
		return models.AppliedEntity{}, err
	}

	m.logger.LogAttrs(ctx, slog.LevelInfo, "draft accepted",
		slog.String("entity_id", entityID),
		slog.String("from", string(draft.Status)),
		slog.Bool("modified", d.data != nil))
	return appliedEntity(draft, entityID, at), nil
}

// Approve marks a draft as approved without touching canonical storage.
func (m *Manager) Approve(ctx context.Context, draftID string, reason string) (err error) {
	ctx, end := m.start(ctx, "acceptance.Approve", draftID)
	defer func() { end(err) }()

	return m.transition(ctx, draftID, func(draft models.GenerationDraft, scope pipeline.Scope) (decision, error) {
		if !draft.Status.CanTransitionTo(models.CanonStatusApproved) {
			return decision{}, pipeline.InvalidTransition(scope, draft.Status, models.CanonStatusApproved)
		}
		return decision{
			kind:   models.DecisionApprove,
			target: models.CanonStatusApproved,
			hops:   []models.CanonStatus{models.CanonStatusApproved},
			reason: reason,
		}, nil
	})
}

// Reject deprecates a draft that is not canonical yet. Canonical content is withdrawn with Revoke.
func (m *Manager) Reject(ctx context.Context, draftID string, reason string) (err error) {
	ctx, end := m.start(ctx, "acceptance.Reject", draftID)
	defer func() { end(err) }()

	return m.transition(ctx, draftID, func(draft models.GenerationDraft, scope pipeline.Scope) (decision, error) {
		switch draft.Status {
		case models.CanonStatusCanonical:
			return decision{}, pipeline.Validation(scope, "canonical drafts are revoked, not rejected", nil)
		case models.CanonStatusDeprecated:
			return decision{}, pipeline.InvalidTransition(scope, draft.Status, models.CanonStatusDeprecated)
		case models.CanonStatusDraft, models.CanonStatusApproved:
		}
		return decision{
			kind:   models.DecisionReject,
			target: models.CanonStatusDeprecated,
			hops:   []models.CanonStatus{models.CanonStatusDeprecated},
			reason: reason,
		}, nil
	})
}

// ModifyAndHold edits the payload of a draft or approved draft and keeps its status.
func (m *Manager) ModifyAndHold(ctx context.Context, draftID string, modifications json.RawMessage) (err error) {
	ctx, end := m.start(ctx, "acceptance.ModifyAndHold", draftID)
	defer func() { end(err) }()

	return m.transition(ctx, draftID, func(draft models.GenerationDraft, scope pipeline.Scope) (decision, error) {
		if !draft.Status.IsEditable() {
			return decision{}, pipeline.Validation(scope, "draft is no longer editable", nil)
		}
		if !hasModifications(modifications) {
			return decision{}, pipeline.Validation(scope, "no modifications given", nil)
		}
		data, mergeErr := merge(draft.EntityType, draft.Data, modifications)
		if mergeErr != nil {
			return decision{}, pipeline.Validation(scope, "invalid modifications", mergeErr)
		}
		return decision{
			kind:          models.DecisionModify,
			target:        draft.Status,
			data:          data,
			modifications: compactOrNil(modifications),
		}, nil
	})
}

// Revoke retracts a canonical entity and deprecates the draft it was accepted from. The entity is retracted before
// the draft is updated, retracting is idempotent so a failed revoke can be repeated.
func (m *Manager) Revoke(ctx context.Context, entityID string, reason string) (err error) {
	ctx = logging.WithAttrs(ctx, slog.String("entity_id", entityID))
	applied, err := m.drafts.GetByAppliedEntity(ctx, entityID)
	if err != nil {
		return m.storageError(pipeline.Scope{}, "find draft of entity", err)
	}

	ctx, end := m.start(ctx, "acceptance.Revoke", applied.ID)
	defer func() { end(err) }()

	held, err := m.lockAndLoad(ctx, applied.ID)
	if err != nil {
		return err
	}
	defer held.release()
	draft, scope := held.draft, held.scope

	if draft.Status != models.CanonStatusCanonical || draft.AppliedEntityID != entityID {
		return pipeline.InvalidTransition(scope, draft.Status, models.CanonStatusDeprecated)
	}
	if err = m.canonical.RetractEntity(ctx, entityID, reason); err != nil {
		return m.storageError(scope, "retract canonical entity", err)
	}
	return m.record(ctx, held, decision{
		kind:   models.DecisionRevoke,
		target: models.CanonStatusDeprecated,
		hops:   []models.CanonStatus{models.CanonStatusDeprecated},
		reason: reason,
	})
}

func (m *Manager) GetDraft(ctx context.Context, draftID string) (models.GenerationDraft, error) {
	draft, err := m.drafts.Get(ctx, draftID)
	if err != nil {
		return models.GenerationDraft{}, m.storageError(pipeline.Scope{DraftID: draftID}, "get draft", err)
	}
	return draft, nil
}

// ListPendingDrafts lists the drafts of a campaign awaiting a decision. An empty entityType lists every type.
func (m *Manager) ListPendingDrafts(
	ctx context.Context,
	campaignID string,
	entityType models.EntityType,
) ([]models.GenerationDraft, error) {
	drafts, err := m.drafts.ListPending(ctx, campaignID, entityType)
	if err != nil {
		return nil, pipeline.Internal(pipeline.Scope{CampaignID: campaignID}, "list pending drafts", err)
	}
	return drafts, nil
}

func (m *Manager) History(ctx context.Context, draftID string) (models.DraftHistory, error) {
	scope := pipeline.Scope{DraftID: draftID}
	if _, err := m.drafts.Get(ctx, draftID); err != nil {
		return models.DraftHistory{}, m.storageError(scope, "get draft", err)
	}
	history, err := m.drafts.History(ctx, draftID)
	if err != nil {
		return models.DraftHistory{}, pipeline.Internal(scope, "read draft history", err)
	}
	return history, nil
}

// transition runs a decision that needs no canonical storage under the draft lease.
func (m *Manager) transition(
	ctx context.Context,
	draftID string,
	decide func(models.GenerationDraft, pipeline.Scope) (decision, error),
) error {
	held, err := m.lockAndLoad(ctx, draftID)
	if err != nil {
		return err
	}
	defer held.release()

	d, err := decide(held.draft, held.scope)
	if err != nil {
		return err
	}
	return m.record(ctx, held, d)
}

// heldDraft is a draft read under its lease.
type heldDraft struct {
	draft   models.GenerationDraft
	scope   pipeline.Scope
	token   string
	release func()
}

// lockAndLoad takes the lease and reads the draft as it is under the lease.
func (m *Manager) lockAndLoad(ctx context.Context, draftID string) (heldDraft, error) {
	scope := pipeline.Scope{DraftID: draftID}
	token, release, err := m.lock(ctx, draftID, scope)
	if err != nil {
		return heldDraft{}, err
	}
	draft, err := m.drafts.Get(ctx, draftID)
	if err != nil {
		release()
		return heldDraft{}, m.storageError(scope, "get draft", err)
	}
	scope.CampaignID = draft.CampaignID
	return heldDraft{draft: draft, scope: scope, token: token, release: release}, nil
}

func (m *Manager) record(ctx context.Context, held heldDraft, d decision) error {
	_, err := m.recordApplied(ctx, held, d, "")
	return err
}

// recordApplied returns the time the decision was recorded at, which is also the applied time when entityID is set.
func (m *Manager) recordApplied(ctx context.Context, held heldDraft, d decision, entityID string) (time.Time, error) {
	draft, scope := held.draft, held.scope
	now := m.now().UTC()
	actor := contexthelpers.Actor(ctx)
	entries := make([]models.CanonStatusLogEntry, 0, len(d.hops))
	previous := draft.Status
	for _, next := range d.hops {
		entries = append(entries, models.CanonStatusLogEntry{
			DraftID:        draft.ID,
			PreviousStatus: previous,
			NewStatus:      next,
			Reason:         d.reason,
			TriggeredBy:    actor,
			Timestamp:      now,
		})
		previous = next
	}

	err := m.drafts.RecordDecision(ctx, repositories.DraftUpdate{
		DraftID:         draft.ID,
		LockToken:       held.token,
		FromStatus:      draft.Status,
		Hops:            entries,
		Data:            d.data,
		AppliedEntityID: entityID,
		Event: models.AcceptanceEvent{
			ID:            uuid.NewString(),
			DraftID:       draft.ID,
			EntityType:    draft.EntityType,
			Decision:      d.kind,
			Modifications: d.modifications,
			Reason:        d.reason,
			Timestamp:     now,
		},
		Now: now,
	})
	if err != nil {
		return time.Time{}, m.storageError(scope, "record decision", err)
	}
	m.logger.LogAttrs(ctx, slog.LevelInfo, "decision recorded",
		slog.String("decision", string(d.kind)),
		slog.String("from", string(draft.Status)),
		slog.String("to", string(d.target)),
		slog.String("triggered_by", actor))
	return now, nil
}

// storageError maps repository failures to the pipeline taxonomy. A conflict means the lease was lost to another
// operation after it expired.
func (m *Manager) storageError(scope pipeline.Scope, message string, err error) error {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return pipeline.NotFound(scope, "draft")
	case errors.Is(err, repositories.ErrConflict):
		return pipeline.DraftLocked(scope)
	default:
		return pipeline.Internal(scope, message, err)
	}
}

func (m *Manager) start(ctx context.Context, name string, draftID string) (context.Context, func(error)) {
	ctx = logging.WithAttrs(ctx, slog.String("draft_id", draftID))
	ctx, span := m.tracer.Start(ctx, name, trace.WithAttributes(attribute.String("draft_id", draftID)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, name+" failed")
		}
		span.End()
	}
}

// appliedAt is the stored applied time of a canonical draft. Drafts accepted before it was stored fall back to their
// last update.
func appliedAt(draft models.GenerationDraft) time.Time {
	if draft.AppliedAt != nil {
		return draft.AppliedAt.UTC()
	}
	return draft.UpdatedAt.UTC()
}

func appliedEntity(draft models.GenerationDraft, entityID string, at time.Time) models.AppliedEntity {
	return models.AppliedEntity{
		EntityID:   entityID,
		EntityType: draft.EntityType,
		DraftID:    draft.ID,
		CampaignID: draft.CampaignID,
		AppliedAt:  at,
	}
}
