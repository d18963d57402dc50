package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

type decisionResult struct {
	DraftID  string `json:"draft_id,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
	Decision string `json:"decision"`
}

func newApproveCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:     "approve DRAFT_ID",
		GroupID: reviewGroup.ID,
		Short:   "Approve a draft without making it canonical yet",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).acceptance.Approve(cmd.Context(), args[0], reason); err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), decisionResult{DraftID: args[0], Decision: "approved"})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "optional reason recorded in the status log")
	return cmd
}

func newAcceptCmd() *cobra.Command {
	var modifications string
	cmd := &cobra.Command{
		Use:     "accept DRAFT_ID",
		GroupID: reviewGroup.ID,
		Short:   "Make a draft canonical",
		Long: `Makes the draft canonical. Fields given with --modifications are merged into the draft payload first and a null
value removes a field.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			applied, err := appFrom(cmd).acceptance.Accept(cmd.Context(), args[0], json.RawMessage(modifications))
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), applied)
		},
	}
	cmd.Flags().StringVar(&modifications, "modifications", "", `JSON object merged into the payload, e.g. '{"name":"Kael"}'`)
	return cmd
}

func newRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:     "reject DRAFT_ID",
		GroupID: reviewGroup.ID,
		Short:   "Reject a draft",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).acceptance.Reject(cmd.Context(), args[0], reason); err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), decisionResult{DraftID: args[0], Decision: "rejected"})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the status log")
	return cmd
}

func newModifyCmd() *cobra.Command {
	var modifications string
	cmd := &cobra.Command{
		Use:     "modify DRAFT_ID",
		GroupID: reviewGroup.ID,
		Short:   "Edit a draft and keep it in review",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			if err := app.acceptance.ModifyAndHold(cmd.Context(), args[0], json.RawMessage(modifications)); err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			draft, err := app.acceptance.GetDraft(cmd.Context(), args[0])
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), draft)
		},
	}
	cmd.Flags().StringVar(&modifications, "modifications", "", "JSON object merged into the payload")
	_ = cmd.MarkFlagRequired("modifications")
	return cmd
}

func newRevokeCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:     "revoke ENTITY_ID",
		GroupID: reviewGroup.ID,
		Short:   "Remove a canonical entity and deprecate its draft",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := appFrom(cmd).acceptance.Revoke(cmd.Context(), args[0], reason); err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), decisionResult{EntityID: args[0], Decision: "revoked"})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the status log")
	return cmd
}
