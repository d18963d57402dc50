package assembler

import (
	"fmt"
	"strings"

	"github.com/myrjola/canonforge/internal/models"
)

// RenderIntent is the text block of the campaign intent that is counted against the budget and rendered into
// prompts.
func RenderIntent(intent models.CampaignIntent) string {
	var b strings.Builder
	b.WriteString("Fantasy: ")
	b.WriteString(intent.Fantasy)
	for _, section := range []struct {
		label  string
		values []string
	}{
		{"Player experiences", intent.PlayerExperiences},
		{"Themes", intent.Themes},
		{"Tone", intent.ToneKeywords},
		{"Constraints", intent.Constraints},
		{"Avoid", intent.Avoid},
	} {
		if len(section.values) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s: %s", section.label, strings.Join(section.values, ", "))
	}
	return b.String()
}

// RenderCitation is the text block of a citation in prompts.
func RenderCitation(c models.Citation) string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(c.SourceName)
	if loc := c.Location; loc != nil {
		if loc.Chapter != "" {
			fmt.Fprintf(&b, ", %s", loc.Chapter)
		}
		if loc.Section != "" {
			fmt.Fprintf(&b, ", %s", loc.Section)
		}
		if loc.Page != nil {
			fmt.Fprintf(&b, ", p. %d", *loc.Page)
		}
	}
	b.WriteString("]")
	if c.Excerpt != "" {
		b.WriteString(" ")
		b.WriteString(c.Excerpt)
	}
	return b.String()
}

// RenderMessage is the text block of a conversation message in prompts.
func RenderMessage(m models.ConversationMessage) string {
	return m.Role + ": " + m.Content
}
