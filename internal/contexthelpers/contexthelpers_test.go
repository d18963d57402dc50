package contexthelpers_test

import (
	"context"
	"testing"

	"github.com/myrjola/canonforge/internal/contexthelpers"
	"github.com/stretchr/testify/require"
)

func TestActor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require.Equal(t, contexthelpers.DefaultActor, contexthelpers.Actor(ctx))
	require.Equal(t, contexthelpers.DefaultActor, contexthelpers.Actor(contexthelpers.WithActor(ctx, "")))
	require.Equal(t, "gm:alice", contexthelpers.Actor(contexthelpers.WithActor(ctx, "gm:alice")))
}

func TestWizardID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	require.Empty(t, contexthelpers.WizardID(ctx))
	require.Equal(t, "w1", contexthelpers.WizardID(contexthelpers.WithWizardID(ctx, "w1")))
}
