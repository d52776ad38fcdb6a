package endpoints

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/classify"
	"github.com/formfill/formfill/internal/pipeline"
	"github.com/formfill/formfill/internal/svcctx"
	"github.com/formfill/formfill/internal/taxcalc"
)

// ParsedFormResponse is one classified upload in a return run.
type ParsedFormResponse struct {
	File    string            `json:"file"`
	DocType string            `json:"document_type"`
	Fields  map[string]string `json:"parsed_fields"`
	Report  pipeline.Report   `json:"report"`
}

// ReturnResponse carries a full return-preparation run: per-form extractions,
// the computed summary, and the filled 1040.
type ReturnResponse struct {
	Forms     []ParsedFormResponse `json:"parsed_forms"`
	Summary   *taxcalc.Summary     `json:"tax_summary"`
	Report    pipeline.Report      `json:"report"`
	PDFBase64 string               `json:"pdf_base64"`
}

// ProcessReturnEndpoint handles POST /api/returns: classify uploaded source
// forms, compute the return, and fill the output form.
type ProcessReturnEndpoint struct{}

var _ api.Endpoint = (*ProcessReturnEndpoint)(nil)

func (e *ProcessReturnEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/returns", e.handler
}

func (e *ProcessReturnEndpoint) RequiresInit() bool { return true }

func (e *ProcessReturnEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline not initialized")
		return
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	status, err := taxcalc.ParseFilingStatus(r.FormValue("filing_status"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	children := formInt(r, "num_qualifying_children")
	dependents := formInt(r, "num_other_dependents")

	paths, cleanup, err := saveUploads(r, uploadDirFrom(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	result, err := orch.ProcessBatch(r.Context(), pipeline.BatchRequest{
		InputPaths:         paths,
		FilingStatus:       status,
		QualifyingChildren: children,
		OtherDependents:    dependents,
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toReturnResponse(result))
}

func toReturnResponse(result *pipeline.BatchResult) ReturnResponse {
	resp := ReturnResponse{
		Summary:   result.Summary,
		Report:    result.Report,
		PDFBase64: base64.StdEncoding.EncodeToString(result.PDF),
	}
	for _, form := range result.Forms {
		fr := ParsedFormResponse{
			File:    form.File,
			DocType: docTypeLabel(form.DocType),
			Fields:  map[string]string{},
			Report:  form.Report,
		}
		for name, v := range form.Values {
			fr.Fields[name] = v.Text
		}
		resp.Forms = append(resp.Forms, fr)
	}
	return resp
}

func docTypeLabel(d classify.DocType) string {
	if d == classify.DocUnknown {
		return "unknown"
	}
	return string(d)
}

func formInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.FormValue(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (e *ProcessReturnEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		filingStatus string
		children     int
		dependents   int
		outPath      string
	)
	cmd := &cobra.Command{
		Use:   "returns [source forms...]",
		Short: "Prepare a return from scanned source forms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			fields := map[string]string{
				"filing_status":           filingStatus,
				"num_qualifying_children": strconv.Itoa(children),
				"num_other_dependents":    strconv.Itoa(dependents),
			}
			var resp ReturnResponse
			if err := client.PostMultipart(cmd.Context(), "/api/returns", args, fields, &resp); err != nil {
				return err
			}
			if outPath != "" {
				pdf, err := base64.StdEncoding.DecodeString(resp.PDFBase64)
				if err != nil {
					return fmt.Errorf("failed to decode PDF: %w", err)
				}
				if err := os.WriteFile(outPath, pdf, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", outPath, err)
				}
				fmt.Printf("Wrote %s\n", outPath)
			}
			resp.PDFBase64 = ""
			return api.Output(resp)
		},
	}
	cmd.Flags().StringVar(&filingStatus, "filing-status", "single", "Filing status")
	cmd.Flags().IntVar(&children, "children", 0, "Number of qualifying children")
	cmd.Flags().IntVar(&dependents, "dependents", 0, "Number of other dependents")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the filled PDF to this path")
	return cmd
}
