package template

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// Registry is an immutable lookup of templates keyed by ID. It is built once
// at startup; concurrent reads need no locking.
type Registry struct {
	templates map[string]*Template
}

// LoadBuiltin builds a registry from the embedded template definitions only.
func LoadBuiltin() (*Registry, error) {
	return load("")
}

// LoadDir builds a registry from the embedded definitions plus any *.yaml
// files in dir. A directory template with the same ID replaces the builtin.
func LoadDir(dir string) (*Registry, error) {
	return load(dir)
}

func load(dir string) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template)}

	entries, err := builtinFS.ReadDir("builtin")
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("failed to read builtin templates: %w", err)}
	}
	for _, entry := range entries {
		raw, err := builtinFS.ReadFile("builtin/" + entry.Name())
		if err != nil {
			return nil, &Error{Err: fmt.Errorf("failed to read builtin template %s: %w", entry.Name(), err)}
		}
		if err := r.add(raw); err != nil {
			return nil, &Error{Err: fmt.Errorf("builtin template %s: %w", entry.Name(), err)}
		}
	}

	if dir != "" {
		if err := r.loadUserDir(dir); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Registry) loadUserDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return &Error{Err: fmt.Errorf("failed to read template directory: %w", err)}
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return &Error{Err: fmt.Errorf("failed to read template %s: %w", path, err)}
		}
		if err := r.add(raw); err != nil {
			return &Error{Err: fmt.Errorf("template %s: %w", path, err)}
		}
	}
	return nil
}

// add validates, decodes, and indexes one template definition.
func (r *Registry) add(raw []byte) error {
	if err := validateDefinition(raw); err != nil {
		return err
	}

	var t Template
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return fmt.Errorf("failed to decode template: %w", err)
	}
	if err := t.index(); err != nil {
		return err
	}

	r.templates[t.ID] = &t
	return nil
}

// Get returns the template for an ID, or a document-scoped Error wrapping
// ErrNotFound.
func (r *Registry) Get(id string) (*Template, error) {
	t, ok := r.templates[id]
	if !ok {
		return nil, &Error{TemplateID: id, Err: ErrNotFound}
	}
	return t, nil
}

// IDs returns all registered template IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
