package main

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"

	"github.com/myrjola/canonforge/internal/config"
	"github.com/myrjola/canonforge/internal/models"
	"github.com/myrjola/canonforge/internal/pipeline"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t   *testing.T
	env map[string]string
}

func newCLI(t *testing.T) cli {
	t.Helper()
	return cli{t: t, env: map[string]string{
		"CANONFORGE_SQLITE_URL":    filepath.Join(t.TempDir(), "canonforge.sqlite"),
		"CANONFORGE_LLM_PROVIDER":  config.ProviderStub,
		"CANONFORGE_LOG_LEVEL":     "ERROR",
		"CANONFORGE_OTEL_ENDPOINT": "",
	}}
}

// run executes one command against a fresh application, the way separate process invocations would.
func (c cli) run(args ...string) (string, error) {
	c.t.Helper()
	root, closeApp := newRootCmd(func() (config.Config, error) { return config.Parse(c.env) })
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(c.t.Context())
	require.NoError(c.t, closeApp(c.t.Context()))
	return out.String(), err
}

func (c cli) mustRun(target any, args ...string) {
	c.t.Helper()
	out, err := c.run(args...)
	require.NoError(c.t, err)
	if target != nil {
		require.NoError(c.t, json.Unmarshal([]byte(out), target), out)
	}
}

func TestGenerateAndAccept(t *testing.T) {
	t.Parallel()
	c := newCLI(t)

	var excerpt models.Citation
	c.mustRun(&excerpt, "sources", "add", "--campaign", "harbour", "--name", "Harbour Gazetteer",
		"--excerpt", "The smuggler guild controls the harbour.", "--confidence", "0.97", "--page", "12")
	require.NotEmpty(t, excerpt.ID)
	require.NotNil(t, excerpt.Location)
	require.Equal(t, 12, *excerpt.Location.Page)

	var generated struct {
		DraftIDs []string `json:"draft_ids"`
		Provider string   `json:"provider"`
	}
	c.mustRun(&generated, "generate", "--type", "character", "--campaign", "harbour",
		"--fantasy", "Intrigue in a smuggler harbour", "--theme", "debt")
	require.Len(t, generated.DraftIDs, 1)
	require.Equal(t, "stub", generated.Provider)
	draftID := generated.DraftIDs[0]

	var pending []models.GenerationDraft
	c.mustRun(&pending, "drafts", "list", "--campaign", "harbour")
	require.Len(t, pending, 1)
	require.Equal(t, draftID, pending[0].ID)
	require.Equal(t, models.CanonStatusDraft, pending[0].Status)

	var applied models.AppliedEntity
	c.mustRun(&applied, "--actor", "alice", "accept", draftID, "--modifications", `{"name":"Kael"}`)
	require.Equal(t, models.EntityTypeCharacter, applied.EntityType)
	require.Equal(t, draftID, applied.DraftID)

	var draft models.GenerationDraft
	c.mustRun(&draft, "drafts", "show", draftID)
	require.Equal(t, models.CanonStatusCanonical, draft.Status)
	require.JSONEq(t, `"Kael"`, mustField(t, draft.Data, "name"))

	var history models.DraftHistory
	c.mustRun(&history, "drafts", "history", draftID)
	require.Len(t, history.StatusLog, 2)
	for _, entry := range history.StatusLog {
		require.Equal(t, "alice", entry.TriggeredBy)
	}
	require.Len(t, history.Events, 1)

	c.mustRun(nil, "revoke", applied.EntityID, "--reason", "retconned")
	c.mustRun(&draft, "drafts", "show", draftID)
	require.Equal(t, models.CanonStatusDeprecated, draft.Status)
}

func TestReviewErrors(t *testing.T) {
	t.Parallel()
	c := newCLI(t)

	var generated struct {
		DraftIDs []string `json:"draft_ids"`
	}
	c.mustRun(&generated, "generate", "--type", "npc", "--campaign", "harbour", "--fantasy", "Harbour intrigue")
	require.Len(t, generated.DraftIDs, 1)
	draftID := generated.DraftIDs[0]
	c.mustRun(nil, "reject", draftID, "--reason", "too generic")

	tests := []struct {
		name string
		args []string
		want error
	}{
		{name: "unknown draft", args: []string{"approve", "missing"}, want: pipeline.ErrNotFound},
		{name: "accept rejected", args: []string{"accept", draftID}, want: pipeline.ErrInvalidTransition},
		{name: "modify rejected", args: []string{"modify", draftID, "--modifications", `{"name":"x"}`},
			want: pipeline.ErrValidation},
		{name: "revoke unknown entity", args: []string{"revoke", "missing"}, want: pipeline.ErrNotFound},
	}
	for _, tt := range tests {
		_, err := c.run(tt.args...)
		require.ErrorIs(t, err, tt.want, tt.name)
	}
}

func TestInvalidInput(t *testing.T) {
	t.Parallel()
	c := newCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "unknown type", args: []string{"generate", "--type", "dragon", "--fantasy", "x"}},
		{name: "missing fantasy", args: []string{"generate", "--type", "character"}},
		{name: "unknown source type", args: []string{"sources", "add", "--type", "rumour", "--name", "n",
			"--excerpt", "e"}},
		{name: "confidence out of range", args: []string{"sources", "add", "--name", "n", "--excerpt", "e",
			"--confidence", "1.5"}},
	}
	for _, tt := range tests {
		_, err := c.run(tt.args...)
		require.Error(t, err, tt.name)
	}
}

func mustField(t *testing.T, data json.RawMessage, field string) string {
	t.Helper()
	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &fields))
	return string(fields[field])
}
