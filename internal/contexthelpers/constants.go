package contexthelpers

type contextKey string

const actorContextKey = contextKey("actor")
const wizardIDContextKey = contextKey("wizardID")

// DefaultActor is recorded as the trigger of status changes when the context names no actor.
const DefaultActor = "gm"
