// Package fill writes normalized values into the template PDF, through its
// interactive form fields where they exist and by text overlay at absolute
// page coordinates where they don't.
package fill

import (
	"errors"
	"fmt"

	"github.com/formfill/formfill/internal/template"
)

// ErrNoSuchField indicates the named interactive field is absent from the
// template PDF (template drift).
var ErrNoSuchField = errors.New("no such form field")

// FieldError is a field-scoped write failure. It is recorded in the report;
// it never aborts the document.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("failed to write field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FormDoc is the low-level PDF writing capability the writer drives. One
// FormDoc represents a single in-memory output document; implementations are
// not safe for concurrent use, so callers serialize access.
type FormDoc interface {
	// Fields returns the names of the interactive form fields.
	Fields() []string

	// SetText sets a text field's value. Returns an error wrapping
	// ErrNoSuchField when the field is absent.
	SetText(name, value string) error

	// SetCheckbox sets a checkbox field's state.
	SetCheckbox(name string, checked bool) error

	// OverlayText draws text at an absolute page coordinate (PDF
	// points, origin top-left). Used for fields with no interactive
	// counterpart.
	OverlayText(page int, x, y float64, value string) error

	// Render produces the final PDF bytes with all recorded values
	// applied.
	Render() ([]byte, error)
}

// Opener creates a FormDoc from a template. The document-scoped error path:
// an unreadable template PDF aborts before any field work.
type Opener interface {
	Open(tmpl *template.Template) (FormDoc, error)
}
