package contexthelpers

import (
	"context"
)

// WithActor names who triggers the operations run with the returned context, for example "gm:alice" or "wizard".
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, actorContextKey, actor)
}

func WithWizardID(ctx context.Context, wizardID string) context.Context {
	return context.WithValue(ctx, wizardIDContextKey, wizardID)
}
