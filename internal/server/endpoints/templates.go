package endpoints

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/svcctx"
)

// TemplateInfo describes one loaded template.
type TemplateInfo struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Fields      int    `json:"fields"`
	Fillable    bool   `json:"fillable"`
}

// TemplatesResponse lists the loaded templates.
type TemplatesResponse struct {
	Templates []TemplateInfo `json:"templates"`
}

// ListTemplatesEndpoint handles GET /api/templates.
type ListTemplatesEndpoint struct{}

var _ api.Endpoint = (*ListTemplatesEndpoint)(nil)

func (e *ListTemplatesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/templates", e.handler
}

func (e *ListTemplatesEndpoint) RequiresInit() bool { return true }

func (e *ListTemplatesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	registry := svcctx.TemplatesFrom(r.Context())
	if registry == nil {
		writeError(w, http.StatusServiceUnavailable, "template registry not initialized")
		return
	}

	resp := TemplatesResponse{Templates: []TemplateInfo{}}
	for _, id := range registry.IDs() {
		tmpl, err := registry.Get(id)
		if err != nil {
			continue
		}
		resp.Templates = append(resp.Templates, TemplateInfo{
			ID:          tmpl.ID,
			Description: tmpl.Description,
			Fields:      len(tmpl.Fields),
			Fillable:    tmpl.Fillable(),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (e *ListTemplatesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "templates",
		Short: "List loaded templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := api.NewClient(getServerURL())
			var resp TemplatesResponse
			if err := client.Get(cmd.Context(), "/api/templates", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
