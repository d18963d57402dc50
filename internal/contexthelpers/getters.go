package contexthelpers

import (
	"context"
)

// Actor returns who triggered the current operation.
func Actor(ctx context.Context) string {
	actor, ok := ctx.Value(actorContextKey).(string)
	if !ok || actor == "" {
		return DefaultActor
	}

	return actor
}

func WizardID(ctx context.Context) string {
	wizardID, ok := ctx.Value(wizardIDContextKey).(string)
	if !ok {
		return ""
	}

	return wizardID
}
