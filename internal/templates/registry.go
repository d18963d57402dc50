package templates

import (
	"bytes"
	"embed"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/*.yaml
var defaultTemplates embed.FS

var ErrTemplateNotFound = errors.NewSentinel("template not found")

// Registry maps generation types to templates. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[models.GenerationType]*Template
}

// NewRegistry returns a registry holding the built-in templates.
func NewRegistry() (*Registry, error) {
	r := &Registry{templates: make(map[models.GenerationType]*Template)}
	if err := r.loadFS(defaultTemplates, "defaults"); err != nil {
		return nil, errors.Wrap(err, "load built-in templates")
	}
	return r, nil
}

// LoadDir returns the built-in templates overridden by the *.yaml files found in dir.
func LoadDir(dir string) (*Registry, error) {
	r, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	if err = r.loadFS(os.DirFS(dir), "."); err != nil {
		return nil, errors.Wrap(err, "load templates", slog.String("dir", dir))
	}
	return r, nil
}

func (r *Registry) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return errors.Wrap(err, "read template dir")
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.ToSlash(filepath.Join(root, entry.Name()))
		content, readErr := fs.ReadFile(fsys, path)
		if readErr != nil {
			return errors.Wrap(readErr, "read template", slog.String("path", path))
		}
		tmpl, parseErr := Parse(content)
		if parseErr != nil {
			return errors.Wrap(parseErr, "parse template", slog.String("path", path))
		}
		r.Register(tmpl)
	}
	return nil
}

// Parse decodes a YAML template definition. Unknown fields are rejected to catch typos.
func Parse(content []byte) (*Template, error) {
	var tmpl Template
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&tmpl); err != nil {
		return nil, errors.Wrap(err, "decode yaml")
	}
	if err := tmpl.compile(); err != nil {
		return nil, err
	}
	return &tmpl, nil
}

// Register adds or replaces the template of its generation type. The template must come from Parse.
func (r *Registry) Register(tmpl *Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[tmpl.GenerationType] = tmpl
}

func (r *Registry) Get(generationType models.GenerationType) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tmpl, ok := r.templates[generationType]
	if !ok {
		return nil, errors.Wrap(ErrTemplateNotFound, "get template",
			slog.String("generation_type", string(generationType)))
	}
	return tmpl, nil
}
