package main

import (
	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/api"
	"github.com/formfill/formfill/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "formfill",
	Short: "Tax form processing pipeline: OCR scanned forms and fill PDFs",
	Long: `Formfill reads scanned tax forms, recognizes their printed and
handwritten values, and writes them into fillable PDF templates.

The pipeline includes:
  - PDF rasterization and word-level OCR
  - Fuzzy label matching against template field definitions
  - Per-kind value normalization (currency, SSN, date, checkbox)
  - Form filling with overlay fallback and a per-run fill report`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.formfill/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "formfill home directory (default: ~/.formfill)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
