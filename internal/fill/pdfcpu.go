package fill

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/formfill/formfill/internal/template"
)

// PDFCPUOpener opens template PDFs from a directory using pdfcpu.
type PDFCPUOpener struct {
	// TemplateDir holds the canonical blank PDFs named by Template.PDF.
	TemplateDir string
}

// NewPDFCPUOpener creates an opener rooted at dir.
func NewPDFCPUOpener(dir string) *PDFCPUOpener {
	return &PDFCPUOpener{TemplateDir: dir}
}

// Open reads the template's PDF and enumerates its form fields. Failures
// here are document-scoped: nothing has been written yet.
func (o *PDFCPUOpener) Open(tmpl *template.Template) (FormDoc, error) {
	if !tmpl.Fillable() {
		return nil, &template.Error{TemplateID: tmpl.ID, Err: fmt.Errorf("template has no backing PDF")}
	}

	path := filepath.Join(o.TemplateDir, tmpl.PDF)
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &template.Error{TemplateID: tmpl.ID, Err: fmt.Errorf("failed to read template PDF: %w", err)}
	}

	fields, err := listFormFields(src)
	if err != nil {
		return nil, &template.Error{TemplateID: tmpl.ID, Err: fmt.Errorf("failed to enumerate form fields: %w", err)}
	}

	dims, err := pageDims(src)
	if err != nil {
		return nil, &template.Error{TemplateID: tmpl.ID, Err: fmt.Errorf("failed to read page geometry: %w", err)}
	}

	fieldSet := make(map[string]bool, len(fields))
	for _, f := range fields {
		fieldSet[f] = true
	}

	return &pdfDoc{
		src:        src,
		dims:       dims,
		fieldNames: fields,
		fieldSet:   fieldSet,
		textValues: make(map[string]string),
		checkboxes: make(map[string]bool),
	}, nil
}

// pdfDoc accumulates field values and overlays, applying them all in Render.
type pdfDoc struct {
	src        []byte
	dims       []types.Dim
	fieldNames []string
	fieldSet   map[string]bool
	textValues map[string]string
	checkboxes map[string]bool
	overlays   []overlayOp
}

type overlayOp struct {
	page  int
	x, y  float64
	value string
}

func (d *pdfDoc) Fields() []string {
	out := make([]string, len(d.fieldNames))
	copy(out, d.fieldNames)
	return out
}

func (d *pdfDoc) SetText(name, value string) error {
	if !d.fieldSet[name] {
		return fmt.Errorf("%w: %s", ErrNoSuchField, name)
	}
	d.textValues[name] = value
	return nil
}

func (d *pdfDoc) SetCheckbox(name string, checked bool) error {
	if !d.fieldSet[name] {
		return fmt.Errorf("%w: %s", ErrNoSuchField, name)
	}
	d.checkboxes[name] = checked
	return nil
}

func (d *pdfDoc) OverlayText(page int, x, y float64, value string) error {
	if value == "" {
		return nil
	}
	d.overlays = append(d.overlays, overlayOp{page: page, x: x, y: y, value: value})
	return nil
}

// Render fills the recorded form values via pdfcpu's form JSON and then
// stamps overlay text. The output is always produced, even with no values.
func (d *pdfDoc) Render() ([]byte, error) {
	current := d.src

	if len(d.textValues) > 0 || len(d.checkboxes) > 0 {
		formJSON, err := d.buildFormJSON()
		if err != nil {
			return nil, fmt.Errorf("failed to build form data: %w", err)
		}
		var buf bytes.Buffer
		conf := model.NewDefaultConfiguration()
		conf.ValidationMode = model.ValidationRelaxed
		if err := api.FillForm(bytes.NewReader(current), bytes.NewReader(formJSON), &buf, conf); err != nil {
			return nil, fmt.Errorf("form fill failed: %w", err)
		}
		current = buf.Bytes()
	}

	for _, op := range d.overlays {
		stamped, err := d.applyOverlay(current, op)
		if err != nil {
			return nil, fmt.Errorf("overlay on page %d failed: %w", op.page, err)
		}
		current = stamped
	}

	return current, nil
}

// formData is pdfcpu's form fill JSON shape (the same structure its form
// export produces).
type formData struct {
	Forms []formPage `json:"forms"`
}

type formPage struct {
	TextFields []textFieldData `json:"textfield,omitempty"`
	Checkboxes []checkboxData  `json:"checkbox,omitempty"`
}

type textFieldData struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type checkboxData struct {
	Name  string `json:"name"`
	Value bool   `json:"value"`
}

func (d *pdfDoc) buildFormJSON() ([]byte, error) {
	page := formPage{}
	// Deterministic order keeps output bytes identical across runs.
	for _, name := range d.fieldNames {
		if v, ok := d.textValues[name]; ok {
			page.TextFields = append(page.TextFields, textFieldData{Name: name, Value: v})
		}
		if v, ok := d.checkboxes[name]; ok {
			page.Checkboxes = append(page.Checkboxes, checkboxData{Name: name, Value: v})
		}
	}
	return json.Marshal(formData{Forms: []formPage{page}})
}

// applyOverlay stamps one text value using a pdfcpu text watermark positioned
// at the overlay coordinate.
func (d *pdfDoc) applyOverlay(src []byte, op overlayOp) ([]byte, error) {
	if op.page < 0 || op.page >= len(d.dims) {
		return nil, fmt.Errorf("overlay page %d out of range", op.page)
	}
	desc := overlayDescriptor(d.dims[op.page].Height, op)
	wm, err := api.TextWatermark(op.value, desc, true, false, types.POINTS)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	pages := []string{fmt.Sprintf("%d", op.page+1)}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if err := api.AddWatermarks(bytes.NewReader(src), &buf, pages, wm, conf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// overlayDescriptor builds the watermark descriptor for one overlay. Overlay
// coordinates use a top-left origin (matching token boxes and template
// anchors); watermark offsets are measured from the bottom-left corner, so y
// flips against the page height.
func overlayDescriptor(pageHeight float64, op overlayOp) string {
	return fmt.Sprintf("points:9, pos:bl, off:%.1f %.1f, scale:1 abs, rot:0, fillcol:#000000",
		op.x, pageHeight-op.y)
}

// pageDims returns the mediaBox dimensions per page.
func pageDims(src []byte) ([]types.Dim, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return api.PageDims(bytes.NewReader(src), conf)
}

// listFormFields walks the AcroForm dictionary and returns the leaf field
// names in document order.
func listFormFields(src []byte) ([]string, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	ctx, err := api.ReadContext(bytes.NewReader(src), conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF context: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to ensure page count: %w", err)
	}

	rootDict, err := ctx.Catalog()
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog: %w", err)
	}

	acroFormObj, found := rootDict.Find("AcroForm")
	if !found {
		return nil, nil
	}
	acroFormDict, err := ctx.DereferenceDict(acroFormObj)
	if err != nil || acroFormDict == nil {
		return nil, err
	}

	fieldsObj, found := acroFormDict.Find("Fields")
	if !found {
		return nil, nil
	}
	fieldsArray, err := ctx.DereferenceArray(fieldsObj)
	if err != nil {
		return nil, fmt.Errorf("failed to dereference Fields array: %w", err)
	}

	var names []string
	for _, fieldRef := range fieldsArray {
		collectFieldNames(ctx, fieldRef, &names)
	}
	return names, nil
}

// collectFieldNames recurses through Kids so hierarchical forms (like the
// 1040) yield their leaf names.
func collectFieldNames(ctx *model.Context, fieldObj types.Object, names *[]string) {
	fieldDict, err := ctx.DereferenceDict(fieldObj)
	if err != nil || fieldDict == nil {
		return
	}

	if kidsObj, found := fieldDict.Find("Kids"); found {
		if kids, err := ctx.DereferenceArray(kidsObj); err == nil && len(kids) > 0 {
			// Terminal fields have widget kids (no T entry); only
			// recurse into kids that are themselves fields.
			recursed := false
			for _, kid := range kids {
				if kidDict, err := ctx.DereferenceDict(kid); err == nil && kidDict != nil {
					if _, hasName := kidDict.Find("T"); hasName {
						collectFieldNames(ctx, kid, names)
						recursed = true
					}
				}
			}
			if recursed {
				return
			}
		}
	}

	if nameObj, found := fieldDict.Find("T"); found {
		if name, err := ctx.DereferenceStringOrHexLiteral(nameObj, model.V10, nil); err == nil && name != "" {
			*names = append(*names, name)
		}
	}
}

// Verify interfaces
var (
	_ Opener  = (*PDFCPUOpener)(nil)
	_ FormDoc = (*pdfDoc)(nil)
)
