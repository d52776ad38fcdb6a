package pipeline

import "sort"

// State is the document lifecycle stage. Terminal states are StateCompleted
// and StateAborted.
type State string

const (
	StateReceived    State = "received"
	StateRasterizing State = "rasterizing"
	StateExtracting  State = "extracting"
	StateLocating    State = "locating"
	StateNormalizing State = "normalizing"
	StateWriting     State = "writing"
	StateCompleted   State = "completed"
	StateAborted     State = "aborted"
)

// LowConfidence is one report entry for a value the caller should review: a
// failed validation, or a recognized value below the confidence floor. The raw
// text is preserved so nothing recognized is silently dropped.
type LowConfidence struct {
	Name  string  `json:"name" yaml:"name"`
	Score float64 `json:"score" yaml:"score"`
	Raw   string  `json:"raw" yaml:"raw"`
}

// Report accompanies every output document. It is the accumulating side
// channel for all soft failures: unmatched labels, low-confidence values,
// failed pages, per-field write errors.
type Report struct {
	TemplateID    string          `json:"template_id" yaml:"template_id"`
	Filled        []string        `json:"filled" yaml:"filled"`
	Unmatched     []string        `json:"unmatched_labels" yaml:"unmatched_labels"`
	LowConfidence []LowConfidence `json:"low_confidence" yaml:"low_confidence"`
	FailedPages   []int           `json:"failed_pages,omitempty" yaml:"failed_pages,omitempty"`
	WriteErrors   []string        `json:"write_errors,omitempty" yaml:"write_errors,omitempty"`
	Pages         int             `json:"pages" yaml:"pages"`
}

// sortForOutput puts every list in a deterministic order so identical inputs
// produce identical reports.
func (r *Report) sortForOutput() {
	sort.Strings(r.Filled)
	sort.Strings(r.Unmatched)
	sort.Strings(r.WriteErrors)
	sort.Ints(r.FailedPages)
	sort.SliceStable(r.LowConfidence, func(i, j int) bool {
		return r.LowConfidence[i].Name < r.LowConfidence[j].Name
	})
}

// Result is the outcome of one document run: the filled PDF plus its report.
// PDF is nil only in the aborted state.
type Result struct {
	State  State
	PDF    []byte
	Report Report
}
