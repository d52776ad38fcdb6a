package fill

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/formfill/formfill/internal/template"
)

// MockDoc is a FormDoc for testing. It records values in memory and renders
// a deterministic JSON snapshot of its state.
type MockDoc struct {
	FieldNames []string
	FailFields map[string]bool // fields whose writes fail
	RenderErr  error

	Texts    map[string]string
	Checks   map[string]bool
	Overlays []MockOverlay
}

// MockOverlay records one overlay call.
type MockOverlay struct {
	Page  int     `json:"page"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value string  `json:"value"`
}

// NewMockDoc creates a mock document exposing the given field names.
func NewMockDoc(fields ...string) *MockDoc {
	return &MockDoc{
		FieldNames: fields,
		FailFields: make(map[string]bool),
		Texts:      make(map[string]string),
		Checks:     make(map[string]bool),
	}
}

func (d *MockDoc) Fields() []string {
	out := make([]string, len(d.FieldNames))
	copy(out, d.FieldNames)
	return out
}

func (d *MockDoc) has(name string) bool {
	for _, f := range d.FieldNames {
		if f == name {
			return true
		}
	}
	return false
}

func (d *MockDoc) SetText(name, value string) error {
	if d.FailFields[name] {
		return fmt.Errorf("mock doc configured to fail field %s", name)
	}
	if !d.has(name) {
		return fmt.Errorf("%w: %s", ErrNoSuchField, name)
	}
	d.Texts[name] = value
	return nil
}

func (d *MockDoc) SetCheckbox(name string, checked bool) error {
	if d.FailFields[name] {
		return fmt.Errorf("mock doc configured to fail field %s", name)
	}
	if !d.has(name) {
		return fmt.Errorf("%w: %s", ErrNoSuchField, name)
	}
	d.Checks[name] = checked
	return nil
}

func (d *MockDoc) OverlayText(page int, x, y float64, value string) error {
	d.Overlays = append(d.Overlays, MockOverlay{Page: page, X: x, Y: y, Value: value})
	return nil
}

// Render returns a canonical JSON snapshot so identical writes produce
// identical bytes.
func (d *MockDoc) Render() ([]byte, error) {
	if d.RenderErr != nil {
		return nil, d.RenderErr
	}

	type snapshot struct {
		Texts    map[string]string `json:"texts"`
		Checks   map[string]bool   `json:"checks"`
		Overlays []MockOverlay     `json:"overlays"`
	}
	overlays := make([]MockOverlay, len(d.Overlays))
	copy(overlays, d.Overlays)
	sort.SliceStable(overlays, func(i, j int) bool {
		return overlays[i].Value < overlays[j].Value
	})
	return json.Marshal(snapshot{Texts: d.Texts, Checks: d.Checks, Overlays: overlays})
}

// MockOpener is an Opener returning a fresh MockDoc per call.
type MockOpener struct {
	FieldNames []string
	OpenErr    error

	// LastDoc is the most recently opened document, for assertions.
	LastDoc *MockDoc
}

// NewMockOpener creates an opener whose documents expose the given fields.
// With no explicit fields, documents expose every PDF field the template
// declares.
func NewMockOpener(fields ...string) *MockOpener {
	return &MockOpener{FieldNames: fields}
}

func (o *MockOpener) Open(tmpl *template.Template) (FormDoc, error) {
	if o.OpenErr != nil {
		return nil, o.OpenErr
	}
	fields := o.FieldNames
	if len(fields) == 0 {
		for _, f := range tmpl.Fields {
			if f.PDFField != "" {
				fields = append(fields, f.PDFField)
			}
		}
	}
	doc := NewMockDoc(fields...)
	o.LastDoc = doc
	return doc, nil
}

// Verify interfaces
var (
	_ FormDoc = (*MockDoc)(nil)
	_ Opener  = (*MockOpener)(nil)
)
