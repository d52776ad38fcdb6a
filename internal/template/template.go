// Package template defines form templates: the static field dictionaries that
// drive label matching and the mapping onto a canonical blank PDF. Templates
// are loaded once at startup into an immutable registry.
package template

import (
	"errors"
	"fmt"
)

// Kind is the value domain of a field. The set is closed; normalization
// dispatches on it with an explicit switch.
type Kind string

const (
	KindText     Kind = "text"
	KindCurrency Kind = "currency"
	KindSSN      Kind = "ssn"
	KindDate     Kind = "date"
	KindCheckbox Kind = "checkbox"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindText, KindCurrency, KindSSN, KindDate, KindCheckbox:
		return true
	}
	return false
}

// Layout describes where a field's value sits relative to its label.
type Layout string

const (
	// LayoutSameLine: value tokens follow the label on the same line band.
	LayoutSameLine Layout = "same-line"
	// LayoutBelow: value tokens sit in the band directly below the label.
	LayoutBelow Layout = "below"
)

// Coord is an absolute page position in PDF points (72 per inch),
// origin top-left.
type Coord struct {
	Page int     `yaml:"page" json:"page"` // 0-based
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
}

// FieldSpec describes one logical field of a template.
type FieldSpec struct {
	// LogicalName uniquely identifies the field within its template.
	LogicalName string `yaml:"name" json:"name"`

	// Aliases are the printed labels this field may appear under.
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty"`

	// Kind selects the normalization applied to recognized values.
	Kind Kind `yaml:"kind" json:"kind"`

	// PDFField names the interactive AcroForm field in the template PDF.
	// Empty for extraction-only fields and for legacy overlay targets.
	PDFField string `yaml:"pdf_field,omitempty" json:"pdf_field,omitempty"`

	// Overlay is the absolute page coordinate used when no interactive
	// field exists. A field with neither PDFField nor Overlay is
	// extraction-only (source-form descriptors).
	Overlay *Coord `yaml:"overlay,omitempty" json:"overlay,omitempty"`

	// Anchor is the known checkbox location used by the mark-detection
	// rule. Required for checkbox fields that are located spatially.
	Anchor *Coord `yaml:"anchor,omitempty" json:"anchor,omitempty"`

	// ValueLayout selects the label/value association rule.
	// Defaults to same-line.
	ValueLayout Layout `yaml:"value_layout,omitempty" json:"value_layout,omitempty"`
}

// EffectiveLayout returns the configured layout or the same-line default.
func (f *FieldSpec) EffectiveLayout() Layout {
	if f.ValueLayout == LayoutBelow {
		return LayoutBelow
	}
	return LayoutSameLine
}

// Template is a canonical blank form with a fixed set of named fields.
type Template struct {
	ID          string      `yaml:"id" json:"id"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	PDF         string      `yaml:"pdf,omitempty" json:"pdf,omitempty"` // template PDF filename
	Fields      []FieldSpec `yaml:"fields" json:"fields"`

	byName map[string]*FieldSpec
}

// Fillable reports whether the template has a backing PDF to fill.
// Source-form descriptors (W-2, 1099 variants) are extraction-only.
func (t *Template) Fillable() bool {
	return t.PDF != ""
}

// Field returns the spec for a logical name, or nil when the template has no
// such field.
func (t *Template) Field(name string) *FieldSpec {
	return t.byName[name]
}

// FieldNames returns all logical names in declaration order.
func (t *Template) FieldNames() []string {
	names := make([]string, len(t.Fields))
	for i := range t.Fields {
		names[i] = t.Fields[i].LogicalName
	}
	return names
}

// index builds the name lookup and enforces structural invariants.
func (t *Template) index() error {
	if t.ID == "" {
		return errors.New("template is missing an id")
	}
	t.byName = make(map[string]*FieldSpec, len(t.Fields))
	for i := range t.Fields {
		f := &t.Fields[i]
		if f.LogicalName == "" {
			return fmt.Errorf("template %s: field %d has no name", t.ID, i)
		}
		if !f.Kind.Valid() {
			return fmt.Errorf("template %s: field %s has unknown kind %q", t.ID, f.LogicalName, f.Kind)
		}
		if _, dup := t.byName[f.LogicalName]; dup {
			return fmt.Errorf("template %s: duplicate field name %q", t.ID, f.LogicalName)
		}
		if f.Kind == KindCheckbox && f.Anchor == nil && len(f.Aliases) == 0 {
			return fmt.Errorf("template %s: checkbox field %s needs an anchor or aliases", t.ID, f.LogicalName)
		}
		t.byName[f.LogicalName] = f
	}
	return nil
}

// Error is a document-scoped template failure (missing or corrupt template).
// It aborts processing before any per-page work starts.
type Error struct {
	TemplateID string
	Err        error
}

func (e *Error) Error() string {
	if e.TemplateID == "" {
		return fmt.Sprintf("template error: %v", e.Err)
	}
	return fmt.Sprintf("template %s: %v", e.TemplateID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrNotFound indicates the requested template is not in the registry.
var ErrNotFound = errors.New("template not found")
