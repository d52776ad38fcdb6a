package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/home"
	"github.com/formfill/formfill/internal/server"
	"github.com/formfill/formfill/internal/template"
)

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "Inspect available form templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadLocalTemplates()
		if err != nil {
			return err
		}

		type info struct {
			ID          string `json:"id" yaml:"id"`
			Description string `json:"description" yaml:"description"`
			Fields      int    `json:"fields" yaml:"fields"`
			Fillable    bool   `json:"fillable" yaml:"fillable"`
		}
		out := make([]info, 0)
		for _, id := range registry.IDs() {
			tmpl, err := registry.Get(id)
			if err != nil {
				continue
			}
			out = append(out, info{
				ID:          tmpl.ID,
				Description: tmpl.Description,
				Fields:      len(tmpl.Fields),
				Fillable:    tmpl.Fillable(),
			})
		}
		return api.Output(out)
	},
}

var templateFieldsCmd = &cobra.Command{
	Use:   "fields [template-id]",
	Short: "Show the field specs of one template",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := loadLocalTemplates()
		if err != nil {
			return err
		}

		tmpl, err := registry.Get(args[0])
		if err != nil {
			return err
		}

		type field struct {
			Name     string   `json:"name" yaml:"name"`
			Kind     string   `json:"kind" yaml:"kind"`
			Aliases  []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
			PDFField string   `json:"pdf_field,omitempty" yaml:"pdf_field,omitempty"`
			Layout   string   `json:"value_layout" yaml:"value_layout"`
		}
		out := make([]field, 0, len(tmpl.Fields))
		for _, f := range tmpl.Fields {
			out = append(out, field{
				Name:     f.LogicalName,
				Kind:     string(f.Kind),
				Aliases:  f.Aliases,
				PDFField: f.PDFField,
				Layout:   string(f.EffectiveLayout()),
			})
		}
		return api.Output(out)
	},
}

func loadLocalTemplates() (*template.Registry, error) {
	h, err := home.New(homeDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return server.LoadTemplates(mgr.Get(), h)
}

func init() {
	templatesCmd.AddCommand(templateFieldsCmd)
	rootCmd.AddCommand(templatesCmd)
}
