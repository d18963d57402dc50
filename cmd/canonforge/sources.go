package main

import (
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sources",
		GroupID: sourcesGroup.ID,
		Short:   "Manage the excerpts generation is grounded on",
	}
	cmd.AddCommand(newSourcesAddCmd())
	return cmd
}

func newSourcesAddCmd() *cobra.Command {
	var (
		campaignID string
		sourceType string
		page       int
		excerpt    models.Citation
		location   models.SourceLocation
	)
	cmd := &cobra.Command{
		Use:   "add --name NAME --excerpt TEXT",
		Short: "Store a source excerpt",
		Long:  `Stores a source excerpt. Excerpts without --campaign are shared by every campaign.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if excerpt.Confidence < 0 || excerpt.Confidence > 1 {
				return errors.New("confidence must be within [0, 1]")
			}
			var err error
			if excerpt.SourceType, err = models.ParseSourceType(sourceType); err != nil {
				return err //nolint:wrapcheck // message is self-explanatory.
			}
			if cmd.Flags().Changed("page") {
				location.Page = &page
			}
			if location != (models.SourceLocation{}) {
				excerpt.Location = &location
			}
			stored, err := appFrom(cmd).excerpts.AddExcerpt(cmd.Context(), campaignID, excerpt)
			if err != nil {
				return err //nolint:wrapcheck // already annotated.
			}
			return printJSON(cmd.OutOrStdout(), stored)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&campaignID, "campaign", "", "campaign ID, empty shares the excerpt")
	flags.StringVar(&sourceType, "type", string(models.SourceTypeRulebook), "source type")
	flags.StringVar(&excerpt.SourceID, "source-id", "", "identifier of the source")
	flags.StringVar(&excerpt.SourceName, "name", "", "source name, e.g. the book title")
	flags.StringVar(&excerpt.Excerpt, "excerpt", "", "excerpt text")
	flags.Float64Var(&excerpt.Confidence, "confidence", 1, "confidence in [0, 1]")
	flags.IntVar(&page, "page", 0, "page number")
	flags.StringVar(&location.Section, "section", "", "section name")
	flags.StringVar(&location.Chapter, "chapter", "", "chapter name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("excerpt")
	return cmd
}
