package templates_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/templates"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_coversEveryGenerationType(t *testing.T) {
	t.Parallel()
	registry, err := templates.NewRegistry()
	require.NoError(t, err)

	for _, generationType := range models.GenerationTypes() {
		tmpl, getErr := registry.Get(generationType)
		require.NoError(t, getErr, generationType)
		require.Equal(t, generationType, tmpl.GenerationType)
		require.NotEmpty(t, tmpl.SystemPrompt)
	}

	npc, err := registry.Get(models.GenerationTypeNPC)
	require.NoError(t, err)
	require.Equal(t, templates.OutputFormatList, npc.OutputFormat)
	require.Equal(t, "npcs", npc.ListKey)
}

func TestRegistry_Get_unknown(t *testing.T) {
	t.Parallel()
	registry, err := templates.NewRegistry()
	require.NoError(t, err)

	_, err = registry.Get("tavern_song")
	require.ErrorIs(t, err, templates.ErrTemplateNotFound)
}

func TestTemplate_Render(t *testing.T) {
	t.Parallel()
	tmpl, err := templates.Parse([]byte(`
name: test
generation_type: location
system_prompt: "You write {{.tone}} places."
user_prompt: "Campaign: {{.campaign_context}} / {{.prompt}} / {{.unknown}}"
variables:
  - name: campaign_context
    required: true
  - name: tone
    default: gloomy
  - name: prompt
`))
	require.NoError(t, err)
	require.Equal(t, templates.OutputFormatObject, tmpl.OutputFormat)

	tests := []struct {
		name       string
		vars       map[string]string
		wantSystem string
		wantUser   string
		wantErr    bool
	}{
		{
			name:       "defaults fill missing variables",
			vars:       map[string]string{"campaign_context": "pirates"},
			wantSystem: "You write gloomy places.",
			wantUser:   "Campaign: pirates /  /",
		},
		{
			name:       "provided values win over defaults",
			vars:       map[string]string{"campaign_context": "pirates", "tone": "sunny", "prompt": "a port"},
			wantSystem: "You write sunny places.",
			wantUser:   "Campaign: pirates / a port /",
		},
		{
			name:    "required variable missing",
			vars:    map[string]string{"prompt": "a port"},
			wantErr: true,
		},
		{
			name:    "required variable blank",
			vars:    map[string]string{"campaign_context": "  "},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, renderErr := tmpl.Render(tt.vars)
			if tt.wantErr {
				require.Error(t, renderErr)
				return
			}
			require.NoError(t, renderErr)
			require.Equal(t, tt.wantSystem, got.System)
			require.Equal(t, tt.wantUser, got.User)
		})
	}
}

func TestParse_invalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"unknown generation type", "name: x\ngeneration_type: poem\nuser_prompt: hi\n"},
		{"unknown output format", "name: x\ngeneration_type: npc\nuser_prompt: hi\noutput_format: csv\n"},
		{"empty user prompt", "name: x\ngeneration_type: npc\n"},
		{"unknown field", "name: x\ngeneration_type: npc\nuser_prompt: hi\nmodel: gpt\n"},
		{"broken template", "name: x\ngeneration_type: npc\nuser_prompt: \"{{.prompt\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := templates.Parse([]byte(tt.content))
			require.Error(t, err)
		})
	}
}

func TestLoadDir_overridesDefaults(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	override := "name: short_arc\ngeneration_type: arc\nuser_prompt: \"Arc for {{.campaign_context}}\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "arc.yaml"), []byte(override), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o600))

	registry, err := templates.LoadDir(dir)
	require.NoError(t, err)

	arc, err := registry.Get(models.GenerationTypeArc)
	require.NoError(t, err)
	require.Equal(t, "short_arc", arc.Name)

	npc, err := registry.Get(models.GenerationTypeNPC)
	require.NoError(t, err)
	require.Equal(t, "npc_generation", npc.Name)
}
