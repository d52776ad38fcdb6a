package template

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltin(t *testing.T) {
	r, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, id := range []string{"f1040", "w2", "1099-int", "1099-nec"} {
		tmpl, err := r.Get(id)
		if err != nil {
			t.Errorf("builtin template %q missing: %v", id, err)
			continue
		}
		if len(tmpl.Fields) == 0 {
			t.Errorf("builtin template %q has no fields", id)
		}
	}

	f1040, err := r.Get("f1040")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f1040.Fillable() {
		t.Error("f1040 should be fillable")
	}
	w2, err := r.Get("w2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w2.Fillable() {
		t.Error("w2 is a source form descriptor, not fillable")
	}
}

func TestGetUnknownTemplate(t *testing.T) {
	r, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = r.Get("no-such-form")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound, got %v", err)
	}
	var tmplErr *Error
	if !errors.As(err, &tmplErr) {
		t.Fatalf("error %T is not a *Error", err)
	}
	if tmplErr.TemplateID != "no-such-form" {
		t.Errorf("TemplateID = %q, want no-such-form", tmplErr.TemplateID)
	}
}

func TestLoadDirOverridesBuiltin(t *testing.T) {
	dir := t.TempDir()
	override := `id: w2
description: local override
fields:
  - name: wages
    kind: currency
    aliases: ["Wages"]
`
	if err := os.WriteFile(filepath.Join(dir, "w2.yaml"), []byte(override), 0o644); err != nil {
		t.Fatalf("failed to write override: %v", err)
	}

	r, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	w2, err := r.Get("w2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w2.Description != "local override" {
		t.Errorf("Description = %q, want the override", w2.Description)
	}
	if len(w2.Fields) != 1 {
		t.Errorf("got %d fields, want 1", len(w2.Fields))
	}

	// Builtins without overrides are still present.
	if _, err := r.Get("f1040"); err != nil {
		t.Errorf("f1040 should remain loaded: %v", err)
	}
}

func TestLoadDirMissingDirectoryIsFine(t *testing.T) {
	r, err := LoadDir(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("missing template dir should not fail: %v", err)
	}
	if _, err := r.Get("w2"); err != nil {
		t.Errorf("builtins should load: %v", err)
	}
}

func TestLoadDirRejectsInvalidTemplate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing id",
			yaml: "fields:\n  - name: a\n    kind: text\n",
		},
		{
			name: "bad kind",
			yaml: "id: bad\nfields:\n  - name: a\n    kind: floats\n",
		},
		{
			name: "bad field name",
			yaml: "id: bad\nfields:\n  - name: Not-Snake\n    kind: text\n",
		},
		{
			name: "unknown key",
			yaml: "id: bad\nsurprise: true\nfields:\n  - name: a\n    kind: text\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte(tt.yaml), 0o644); err != nil {
				t.Fatalf("failed to write template: %v", err)
			}
			if _, err := LoadDir(dir); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDuplicateLogicalNameRejected(t *testing.T) {
	dir := t.TempDir()
	dup := `id: dup
fields:
  - name: wages
    kind: currency
  - name: wages
    kind: text
`
	if err := os.WriteFile(filepath.Join(dir, "dup.yaml"), []byte(dup), 0o644); err != nil {
		t.Fatalf("failed to write template: %v", err)
	}
	if _, err := LoadDir(dir); err == nil {
		t.Fatal("expected duplicate name error")
	}
}

func TestFieldLookup(t *testing.T) {
	r, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	w2, err := r.Get("w2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	spec := w2.Field("wages")
	if spec == nil {
		t.Fatal("wages field missing")
	}
	if spec.Kind != KindCurrency {
		t.Errorf("Kind = %q, want currency", spec.Kind)
	}
	if w2.Field("no_such_field") != nil {
		t.Error("unknown field should return nil")
	}
}

func TestIDsSorted(t *testing.T) {
	r, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ids := r.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("IDs not sorted: %v", ids)
		}
	}
}
