package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/myrjola/canonforge/internal/config"
	"github.com/myrjola/canonforge/internal/contexthelpers"
	"github.com/spf13/cobra"
)

type configLoader func() (config.Config, error)

type appKey struct{}

var (
	generationGroup = &cobra.Group{ID: "generation", Title: "Generation"}
	reviewGroup     = &cobra.Group{ID: "review", Title: "Draft review"}
	sourcesGroup    = &cobra.Group{ID: "sources", Title: "Grounding sources"}
)

// newRootCmd builds the command tree. The application is started before any subcommand runs. The returned closer
// releases it and must be called after Execute, also when the command failed.
func newRootCmd(load configLoader) (*cobra.Command, func(context.Context) error) {
	var (
		actor   string
		started *application
	)
	closer := func(ctx context.Context) error {
		if started == nil {
			return nil
		}
		return started.close(ctx)
	}
	root := &cobra.Command{
		Use:           "canonforge",
		Short:         "Generate and review campaign content",
		Long:          `Generates campaign content with an LLM and moves the drafts through GM review into campaign canon.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := newApplication(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			started = app
			ctx := context.WithValue(cmd.Context(), appKey{}, app)
			ctx = contexthelpers.WithActor(ctx, actor)
			cmd.SetContext(ctx)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&actor, "actor", contexthelpers.DefaultActor,
		"who is recorded as triggering status changes")

	root.AddGroup(generationGroup, reviewGroup, sourcesGroup)
	root.AddCommand(
		newGenerateCmd(),
		newDraftsCmd(),
		newApproveCmd(),
		newAcceptCmd(),
		newRejectCmd(),
		newModifyCmd(),
		newRevokeCmd(),
		newSourcesCmd(),
	)
	return root, closer
}

func appFrom(cmd *cobra.Command) *application {
	return cmd.Context().Value(appKey{}).(*application) //nolint:forcetypeassert // set by PersistentPreRunE.
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v) //nolint:wrapcheck // surfaced as is by cobra.
}
