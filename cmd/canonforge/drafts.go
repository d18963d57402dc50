package main

import (
	"github.com/myrjola/canonforge/internal/models"
	"github.com/spf13/cobra"
)

func newDraftsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "drafts",
		GroupID: reviewGroup.ID,
		Short:   "Inspect drafts",
	}
	cmd.AddCommand(newDraftsListCmd(), newDraftsShowCmd(), newDraftsHistoryCmd())
	return cmd
}

func newDraftsListCmd() *cobra.Command {
	var (
		campaignID string
		entityType string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List drafts awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var t models.EntityType
			if entityType != "" {
				var err error
				if t, err = models.ParseEntityType(entityType); err != nil {
					return err //nolint:wrapcheck // message is self-explanatory.
				}
			}
			drafts, err := appFrom(cmd).acceptance.ListPendingDrafts(cmd.Context(), campaignID, t)
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), drafts)
		},
	}
	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign ID")
	cmd.Flags().StringVar(&entityType, "type", "", "only list drafts of this entity type")
	return cmd
}

func newDraftsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show DRAFT_ID",
		Short: "Show a draft with its citations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			draft, err := appFrom(cmd).acceptance.GetDraft(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), draft)
		},
	}
}

func newDraftsHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history DRAFT_ID",
		Short: "Show the status log and acceptance events of a draft",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			history, err := appFrom(cmd).acceptance.History(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
}
