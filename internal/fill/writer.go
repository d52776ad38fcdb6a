package fill

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/formfill/formfill/internal/normalize"
	"github.com/formfill/formfill/internal/template"
)

// Writer maps normalized values onto a FormDoc. Partial success is the
// contract: every failure is recorded per field and the document is still
// rendered.
type Writer struct {
	logger *slog.Logger
}

// NewWriter creates a Writer.
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger.With("component", "fill")}
}

// Write applies values to the document and returns the logical names written
// plus per-field failures. Values that failed validation upstream are not
// written (they surface in the report's low-confidence list with their raw
// text preserved). Interactive fields are preferred; the overlay coordinate
// is the fallback, never silently skipped.
func (w *Writer) Write(doc FormDoc, values []normalize.Value) (filled []string, errs []*FieldError) {
	ordered := make([]normalize.Value, len(values))
	copy(ordered, values)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Spec.LogicalName < ordered[j].Spec.LogicalName
	})

	for _, v := range ordered {
		if !v.Valid {
			continue
		}
		name := v.Spec.LogicalName

		if err := w.writeOne(doc, v); err != nil {
			w.logger.Warn("field write failed", "field", name, "error", err)
			errs = append(errs, &FieldError{Field: name, Err: err})
			continue
		}
		filled = append(filled, name)
	}

	return filled, errs
}

func (w *Writer) writeOne(doc FormDoc, v normalize.Value) error {
	spec := v.Spec

	if spec.PDFField != "" {
		var err error
		if spec.Kind == template.KindCheckbox {
			err = doc.SetCheckbox(spec.PDFField, v.Checked)
		} else {
			err = doc.SetText(spec.PDFField, v.Text)
		}
		if err == nil {
			return nil
		}
		// Template drift: fall through to the overlay when one is
		// declared, otherwise report the failure.
		if spec.Overlay == nil {
			return err
		}
	}

	if spec.Overlay != nil {
		if spec.Kind == template.KindCheckbox {
			mark := ""
			if v.Checked {
				mark = "X"
			}
			return doc.OverlayText(spec.Overlay.Page, spec.Overlay.X, spec.Overlay.Y, mark)
		}
		return doc.OverlayText(spec.Overlay.Page, spec.Overlay.X, spec.Overlay.Y, v.Text)
	}

	return fmt.Errorf("field %s has no fillable target", spec.LogicalName)
}
