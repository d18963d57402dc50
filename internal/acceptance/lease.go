package acceptance

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/pipeline"
	"github.com/myrjola/canonforge/internal/repositories"
)

type LockMode string

const (
	// LockModeFailFast returns DraftLocked as soon as another operation holds the draft.
	LockModeFailFast LockMode = "fail_fast"
	// LockModeWait polls for the lease until LockWait has passed.
	LockModeWait LockMode = "wait"
)

const (
	leasePollInitial = 10 * time.Millisecond
	leasePollMax     = 250 * time.Millisecond
)

var errLeaseHeld = errors.NewSentinel("lease held by another operation")

type lease struct {
	draftID string
	token   string
}

// lock takes the per-draft lease and returns its token. The returned release must be called once the decision is
// recorded.
func (m *Manager) lock(ctx context.Context, draftID string, scope pipeline.Scope) (string, func(), error) {
	l := lease{draftID: draftID, token: uuid.NewString()}

	var err error
	switch m.lockMode {
	case LockModeWait:
		err = m.waitForLease(ctx, l)
	case LockModeFailFast:
		err = m.tryLease(ctx, l)
	}
	switch {
	case err == nil:
	case errors.Is(err, errLeaseHeld):
		return "", nil, pipeline.DraftLocked(scope)
	case errors.Is(err, repositories.ErrNotFound):
		return "", nil, pipeline.NotFound(scope, "draft")
	case ctx.Err() != nil:
		return "", nil, errors.Wrap(ctx.Err(), "canceled waiting for draft lease")
	default:
		return "", nil, pipeline.Internal(scope, "acquire draft lease", err)
	}

	return l.token, func() {
		// The lease is released even when the caller context has ended.
		releaseCtx := context.WithoutCancel(ctx)
		if releaseErr := m.drafts.ReleaseLease(releaseCtx, l.draftID, l.token); releaseErr != nil {
			m.logger.LogAttrs(releaseCtx, slog.LevelWarn, "release draft lease", errors.SlogError(releaseErr))
		}
	}, nil
}

func (m *Manager) tryLease(ctx context.Context, l lease) error {
	ok, err := m.drafts.AcquireLease(ctx, l.draftID, l.token, m.now(), m.lockTTL)
	if err != nil {
		return err //nolint:wrapcheck // mapped by lock.
	}
	if !ok {
		return errLeaseHeld
	}
	return nil
}

func (m *Manager) waitForLease(ctx context.Context, l lease) error {
	poll := backoff.NewExponentialBackOff()
	poll.InitialInterval = leasePollInitial
	poll.MaxInterval = leasePollMax

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := m.tryLease(ctx, l)
		if err == nil || errors.Is(err, errLeaseHeld) {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	}, backoff.WithBackOff(poll), backoff.WithMaxElapsedTime(m.lockWait))
	if err != nil {
		return err //nolint:wrapcheck // mapped by lock.
	}
	return nil
}
