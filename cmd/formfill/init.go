package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/formfill/formfill/internal/config"
	"github.com/formfill/formfill/internal/home"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the formfill home directory and default config",
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return fmt.Errorf("failed to resolve home directory: %w", err)
		}
		if err := h.EnsureExists(); err != nil {
			return fmt.Errorf("failed to create home directory: %w", err)
		}

		if h.ConfigExists() && !initForce {
			fmt.Printf("Config already exists at %s (use --force to overwrite)\n", h.ConfigPath())
			return nil
		}

		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Initialized formfill home at %s\n", h.Path())
		fmt.Printf("Config written to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite existing config")
	rootCmd.AddCommand(initCmd)
}
