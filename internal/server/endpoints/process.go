package endpoints

import (
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/pipeline"
	"github.com/formfill/formfill/internal/svcctx"
)

// maxUploadMemory bounds in-memory multipart parsing; larger parts spill to disk.
const maxUploadMemory = 100 << 20 // 100MB

// ProcessResponse carries one document run's output. The PDF comes back
// base64 encoded alongside the report.
type ProcessResponse struct {
	Template  string          `json:"template"`
	State     string          `json:"state"`
	Report    pipeline.Report `json:"report"`
	PDFBase64 string          `json:"pdf_base64"`
}

// ProcessEndpoint handles POST /api/process: one uploaded scan filled against
// one template.
type ProcessEndpoint struct{}

var _ api.Endpoint = (*ProcessEndpoint)(nil)

func (e *ProcessEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/process", e.handler
}

func (e *ProcessEndpoint) RequiresInit() bool { return true }

func (e *ProcessEndpoint) handler(w http.ResponseWriter, r *http.Request) {
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

	paths, cleanup, err := saveUploads(r, uploadDirFrom(r))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()
	if len(paths) != 1 {
		writeError(w, http.StatusBadRequest, "exactly one file is required")
		return
	}

	templateID := r.FormValue("template")
	if templateID == "" {
		if mgr := svcctx.ConfigMgrFrom(r.Context()); mgr != nil {
			templateID = mgr.Get().DefaultTemplate
		}
	}
	if templateID == "" {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}

	result, err := orch.Process(r.Context(), templateID, paths[0])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Template:  templateID,
		State:     string(result.State),
		Report:    result.Report,
		PDFBase64: base64.StdEncoding.EncodeToString(result.PDF),
	})
}

func (e *ProcessEndpoint) Command(getServerURL func() string) *cobra.Command {
	var (
		file       string
		templateID string
		outPath    string
	)
	cmd := &cobra.Command{
		Use:   "process",
		Short: "Process one scanned document against a template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			client := api.NewClient(getServerURL())
			fields := map[string]string{}
			if templateID != "" {
				fields["template"] = templateID
			}
			var resp ProcessResponse
			if err := client.PostMultipart(cmd.Context(), "/api/process", []string{file}, fields, &resp); err != nil {
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
			return api.Output(resp.Report)
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "Scanned document to process")
	cmd.Flags().StringVar(&templateID, "template", "", "Template ID (default from config)")
	cmd.Flags().StringVar(&outPath, "out", "", "Write the filled PDF to this path")
	return cmd
}

// saveUploads writes the request's files into the home uploads scratch dir
// and returns their paths plus a cleanup func.
func saveUploads(r *http.Request, home homeDir) ([]string, func(), error) {
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no files uploaded")
	}

	runID := uuid.NewString()
	var dir string
	if home != nil {
		if err := home.EnsureUploadDir(runID); err != nil {
			return nil, nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
		dir = filepath.Dir(home.UploadPath(runID, "x"))
	} else {
		var err error
		dir, err = os.MkdirTemp("", "formfill-upload-")
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create upload dir: %w", err)
		}
	}
	cleanup := func() { os.RemoveAll(dir) }

	var paths []string
	for _, fh := range files {
		if !allowedUpload(fh.Filename) {
			cleanup()
			return nil, nil, fmt.Errorf("file %s is not a PDF or image", fh.Filename)
		}
		src, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		dstPath := filepath.Join(dir, filepath.Base(fh.Filename))
		dst, err := os.Create(dstPath)
		if err != nil {
			src.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to save upload %s: %w", fh.Filename, err)
		}
		if _, err := io.Copy(dst, src); err != nil {
			src.Close()
			dst.Close()
			cleanup()
			return nil, nil, fmt.Errorf("failed to save upload %s: %w", fh.Filename, err)
		}
		src.Close()
		dst.Close()
		paths = append(paths, dstPath)
	}

	return paths, cleanup, nil
}

// homeDir is the slice of home.Dir the upload path needs; an interface so
// tests can run without a real home.
type homeDir interface {
	EnsureUploadDir(runID string) error
	UploadPath(runID, filename string) string
}

// uploadDirFrom adapts the context's home dir to homeDir, keeping the
// interface nil when no home is configured.
func uploadDirFrom(r *http.Request) homeDir {
	if h := svcctx.HomeFrom(r.Context()); h != nil {
		return h
	}
	return nil
}

func allowedUpload(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf", ".png", ".jpg", ".jpeg", ".tif", ".tiff":
		return true
	}
	return false
}
