// Package templates loads the prompt templates used for each generation type.
package templates

import (
	"bytes"
	"log/slog"
	"strings"
	"text/template"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
)

type OutputFormat string

const (
	// OutputFormatObject expects a single JSON object describing one entity.
	OutputFormatObject OutputFormat = "object"
	// OutputFormatList expects a JSON array of entities, or an object holding one under ListKey.
	OutputFormatList OutputFormat = "list"
)

type Variable struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Required    bool   `yaml:"required"`
	Default     string `yaml:"default"`
}

// Template is a prompt template for one generation type. Prompts use text/template syntax over the variables, for
// example {{.campaign_context}}.
type Template struct {
	Name           string                `yaml:"name"`
	Version        string                `yaml:"version"`
	Description    string                `yaml:"description"`
	GenerationType models.GenerationType `yaml:"generation_type"`
	SystemPrompt   string                `yaml:"system_prompt"`
	UserPrompt     string                `yaml:"user_prompt"`
	Variables      []Variable            `yaml:"variables"`
	OutputFormat   OutputFormat          `yaml:"output_format"`
	ListKey        string                `yaml:"list_key"`
	Temperature    *float32              `yaml:"temperature"`
	MaxTokens      int                   `yaml:"max_tokens"`

	system *template.Template
	user   *template.Template
}

// Rendered is a template with its variables filled in.
type Rendered struct {
	System string
	User   string
}

// compile validates the definition and parses both prompts.
func (t *Template) compile() error {
	if _, err := t.GenerationType.EntityType(); err != nil {
		return errors.Wrap(err, "invalid generation type", slog.String("template", t.Name))
	}
	switch t.OutputFormat {
	case "":
		t.OutputFormat = OutputFormatObject
	case OutputFormatObject, OutputFormatList:
	default:
		return errors.New("unknown output format",
			slog.String("template", t.Name), slog.String("output_format", string(t.OutputFormat)))
	}
	if strings.TrimSpace(t.UserPrompt) == "" {
		return errors.New("user prompt is empty", slog.String("template", t.Name))
	}

	var err error
	if t.system, err = parse(t.Name+"/system", t.SystemPrompt); err != nil {
		return err
	}
	if t.user, err = parse(t.Name+"/user", t.UserPrompt); err != nil {
		return err
	}
	return nil
}

func parse(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, errors.Wrap(err, "parse prompt", slog.String("template", name))
	}
	return tmpl, nil
}

// Render fills in the prompts. Variables missing from vars take their default. A required variable without a value
// is an error.
func (t *Template) Render(vars map[string]string) (Rendered, error) {
	values := make(map[string]string, len(vars)+len(t.Variables))
	for k, v := range vars {
		values[k] = v
	}
	var missing []string
	for _, v := range t.Variables {
		if strings.TrimSpace(values[v.Name]) != "" {
			continue
		}
		if v.Default != "" {
			values[v.Name] = v.Default
			continue
		}
		if v.Required {
			missing = append(missing, v.Name)
		}
	}
	if len(missing) > 0 {
		return Rendered{}, errors.New("missing required template variables",
			slog.String("template", t.Name), slog.String("variables", strings.Join(missing, ",")))
	}

	var system, user bytes.Buffer
	if err := t.system.Execute(&system, values); err != nil {
		return Rendered{}, errors.Wrap(err, "render system prompt", slog.String("template", t.Name))
	}
	if err := t.user.Execute(&user, values); err != nil {
		return Rendered{}, errors.Wrap(err, "render user prompt", slog.String("template", t.Name))
	}
	return Rendered{
		System: strings.TrimSpace(system.String()),
		User:   strings.TrimSpace(user.String()),
	}, nil
}
