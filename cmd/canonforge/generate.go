package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/generation"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// intentFile is the YAML layout of a campaign intent file. JSON is valid YAML so JSON files work as well.
type intentFile struct {
	Fantasy           string   `yaml:"fantasy"`
	PlayerExperiences []string `yaml:"player_experiences"`
	Constraints       []string `yaml:"constraints"`
	Themes            []string `yaml:"themes"`
	ToneKeywords      []string `yaml:"tone_keywords"`
	Avoid             []string `yaml:"avoid"`
	// Conversation is the wizard conversation so far, oldest first.
	Conversation []struct {
		Role    string `yaml:"role"`
		Content string `yaml:"content"`
	} `yaml:"conversation"`
}

func readIntentFile(path string) (models.CampaignIntent, []models.ConversationMessage, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return models.CampaignIntent{}, nil, errors.Wrap(err, "read intent file", slog.String("path", path))
	}
	var f intentFile
	if err = yaml.Unmarshal(content, &f); err != nil {
		return models.CampaignIntent{}, nil, errors.Wrap(err, "parse intent file", slog.String("path", path))
	}
	intent := models.CampaignIntent{
		Fantasy:           f.Fantasy,
		PlayerExperiences: f.PlayerExperiences,
		Constraints:       f.Constraints,
		Themes:            f.Themes,
		ToneKeywords:      f.ToneKeywords,
		Avoid:             f.Avoid,
	}
	now := time.Now()
	conversation := make([]models.ConversationMessage, 0, len(f.Conversation))
	for _, m := range f.Conversation {
		conversation = append(conversation, models.ConversationMessage{
			ID:        uuid.NewString(),
			Role:      m.Role,
			Content:   m.Content,
			CreatedAt: now,
		})
	}
	return intent, conversation, nil
}

func newGenerateCmd() *cobra.Command {
	var (
		req           generation.Request
		generationTyp string
		intentPath    string
		sourceTypes   []string
	)
	cmd := &cobra.Command{
		Use:     "generate --type TYPE [prompt]",
		GroupID: generationGroup.ID,
		Short:   "Generate drafts",
		Long: `Generates drafts of the given type grounded on the stored source excerpts. The drafts wait for review
with the approve, accept, reject and modify commands.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFrom(cmd)
			var err error
			if req.GenerationType, err = models.ParseGenerationType(generationTyp); err != nil {
				return err //nolint:wrapcheck // message is self-explanatory.
			}
			if intentPath != "" {
				flagged := req.Intent
				if req.Intent, req.Conversation, err = readIntentFile(intentPath); err != nil {
					return err
				}
				if flagged.Fantasy != "" {
					req.Intent.Fantasy = flagged.Fantasy
				}
				req.Intent.Themes = append(req.Intent.Themes, flagged.Themes...)
				req.Intent.ToneKeywords = append(req.Intent.ToneKeywords, flagged.ToneKeywords...)
				req.Intent.Avoid = append(req.Intent.Avoid, flagged.Avoid...)
				req.Intent.Constraints = append(req.Intent.Constraints, flagged.Constraints...)
			}
			if req.Intent.Fantasy == "" {
				return errors.New("a campaign fantasy is required, pass --fantasy or --intent")
			}
			for _, s := range sourceTypes {
				sourceType, parseErr := models.ParseSourceType(s)
				if parseErr != nil {
					return parseErr //nolint:wrapcheck // message is self-explanatory.
				}
				req.Filters.SourceTypes = append(req.Filters.SourceTypes, sourceType)
			}
			if len(args) == 1 {
				req.Prompt = args[0]
			}

			ctx := cmd.Context()
			if app.cfg.LLMTimeout > 0 {
				var cancel func()
				ctx, cancel = context.WithTimeout(ctx, app.cfg.LLMTimeout)
				defer cancel()
			}
			resp, err := app.orchestrator.Generate(ctx, req)
			if err != nil {
				return err //nolint:wrapcheck // pipeline errors carry their own context.
			}
			return printJSON(cmd.OutOrStdout(), resp)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&generationTyp, "type", "", "generation type: character, npc, location, session_plan, arc or party_analysis")
	flags.StringVar(&req.CampaignID, "campaign", "", "campaign ID")
	flags.StringVar(&req.WizardID, "wizard", "", "wizard session ID")
	flags.StringVar(&intentPath, "intent", "", "YAML file with the campaign intent and conversation")
	flags.StringVar(&req.Intent.Fantasy, "fantasy", "", "campaign fantasy, overrides the intent file")
	flags.StringSliceVar(&req.Intent.Themes, "theme", nil, "campaign theme, repeatable")
	flags.StringSliceVar(&req.Intent.ToneKeywords, "tone", nil, "tone keyword, repeatable")
	flags.StringSliceVar(&req.Intent.Avoid, "avoid", nil, "content to avoid, repeatable")
	flags.StringSliceVar(&req.Intent.Constraints, "constraint", nil, "campaign constraint, repeatable")
	flags.StringToStringVar(&req.Variables, "var", nil, "template variable as key=value, repeatable")
	flags.IntVar(&req.TokenBudget, "budget", 0, "context token budget, 0 uses the default of the type")
	flags.StringVar(&req.Provider, "provider", "", "LLM provider, empty uses the configured default")
	flags.StringVar(&req.Model, "model", "", "model name, empty uses the provider default")
	flags.StringSliceVar(&sourceTypes, "source-type", nil, "only ground on these source types")
	flags.Float64Var(&req.Filters.MinConfidence, "min-confidence", 0, "only ground on sources at least this confident")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}
