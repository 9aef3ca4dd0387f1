package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/coda/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create ~/.coda with a default configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Coda - First-Time Setup")
		fmt.Fprintln(out, "=======================")

		fmt.Fprint(out, "Creating directory structure... ")
		codaDir, err := config.EnsureCodaDir()
		if err != nil {
			return fmt.Errorf("create directories: %w", err)
		}
		fmt.Fprintln(out, "✓")

		configPath := filepath.Join(codaDir, "config.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			fmt.Fprint(out, "Creating default configuration... ")
			if err := config.SaveLocalConfig(config.DefaultLocalConfig()); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			fmt.Fprintln(out, "✓")
		} else {
			fmt.Fprintln(out, "Configuration already exists ✓")
		}

		fmt.Fprintf(out, "\nConfiguration: %s\n", configPath)
		fmt.Fprintln(out, "Secrets (Postgres URL, RabbitMQ URL, Redis password) go in secrets.yaml or environment variables.")
		fmt.Fprintln(out, "\nNext steps:")
		fmt.Fprintln(out, "  1. coda start                         # Start the daemon")
		fmt.Fprintln(out, "  2. coda types                         # See exercise types")
		fmt.Fprintln(out, "  3. coda generate MultipleChoice       # Generate an exercise")
		fmt.Fprintln(out, "  4. coda mcp                           # Serve MCP tools on stdio")
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}
