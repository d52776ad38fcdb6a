package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/home"
	"github.com/formfill/formfill/internal/pipeline"
	"github.com/formfill/formfill/internal/server"
	"github.com/formfill/formfill/internal/taxcalc"
)

var (
	processTemplate string
	processOut      string
	processReport   string
	processQuiet    bool

	returnsFilingStatus string
	returnsChildren     int
	returnsDependents   int
	returnsOut          string
)

var processCmd = &cobra.Command{
	Use:   "process [document]",
	Short: "Process a scanned document locally and fill its template",
	Long: `Process a scanned document (PDF or page image) without a running
server. The filled PDF is written next to the input unless --out is
given, and the fill report is printed to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input := args[0]
		orch, cfg, _, err := localOrchestrator()
		if err != nil {
			return err
		}

		templateID := processTemplate
		if templateID == "" {
			templateID = cfg.DefaultTemplate
		}

		result, err := orch.Process(cmd.Context(), templateID, input)
		if err != nil {
			return err
		}

		outPath := processOut
		if outPath == "" {
			outPath = filepath.Join(filepath.Dir(input), defaultOutName(input))
		}
		if err := os.WriteFile(outPath, result.PDF, 0o644); err != nil {
			return fmt.Errorf("failed to write filled PDF: %w", err)
		}

		if !processQuiet {
			fmt.Fprintf(os.Stderr, "Filled PDF written to %s\n", outPath)
		}

		if processReport != "" {
			f, err := os.Create(processReport)
			if err != nil {
				return fmt.Errorf("failed to create report file: %w", err)
			}
			defer f.Close()
			return api.OutputTo(f, api.GetOutputFormat(), result.Report)
		}
		return api.Output(result.Report)
	},
}

var returnsCmd = &cobra.Command{
	Use:   "returns [source forms...]",
	Short: "Prepare a 1040 return locally from scanned source forms",
	Long: `Classify scanned W-2 and 1099 forms, extract their values, compute
the tax summary, and fill a Form 1040, all without a running server.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := taxcalc.ParseFilingStatus(returnsFilingStatus)
		if err != nil {
			return err
		}

		orch, _, h, err := localOrchestrator()
		if err != nil {
			return err
		}

		result, err := orch.ProcessBatch(cmd.Context(), pipeline.BatchRequest{
			InputPaths:         args,
			FilingStatus:       status,
			QualifyingChildren: returnsChildren,
			OtherDependents:    returnsDependents,
		})
		if err != nil {
			return err
		}

		outPath := returnsOut
		if outPath == "" {
			outPath = h.OutputPDFPath(uuid.NewString())
		}
		if err := os.WriteFile(outPath, result.PDF, 0o644); err != nil {
			return fmt.Errorf("failed to write filled PDF: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Filled return written to %s\n", outPath)

		return api.Output(map[string]any{
			"summary": result.Summary,
			"report":  result.Report,
		})
	},
}

// localOrchestrator wires a pipeline from config for commands that run
// without a server.
func localOrchestrator() (*pipeline.Orchestrator, *config.Config, *home.Dir, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	h, err := home.New(homeDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}
	if err := h.EnsureExists(); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create home directory: %w", err)
	}

	mgr, err := config.NewManager(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.Get()

	templates, err := server.LoadTemplates(cfg, h)
	if err != nil {
		return nil, nil, nil, err
	}

	orch, err := server.NewOrchestrator(cfg, templates, server.TemplateDir(cfg, h), logger)
	if err != nil {
		return nil, nil, nil, err
	}
	return orch, cfg, h, nil
}

// defaultOutName derives an output filename from the input document.
func defaultOutName(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return base + "_filled.pdf"
}

func init() {
	processCmd.Flags().StringVarP(&processTemplate, "template", "t", "", "template ID (default from config)")
	processCmd.Flags().StringVar(&processOut, "out", "", "output path for the filled PDF")
	processCmd.Flags().StringVar(&processReport, "report", "", "write the fill report to a file instead of stdout")
	processCmd.Flags().BoolVarP(&processQuiet, "quiet", "q", false, "suppress progress output")

	returnsCmd.Flags().StringVar(&returnsFilingStatus, "filing-status", "single", "filing status for the return")
	returnsCmd.Flags().IntVar(&returnsChildren, "children", 0, "number of qualifying children under 17")
	returnsCmd.Flags().IntVar(&returnsDependents, "dependents", 0, "number of other dependents")
	returnsCmd.Flags().StringVar(&returnsOut, "out", "", "output path for the filled 1040")

	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(returnsCmd)
}
