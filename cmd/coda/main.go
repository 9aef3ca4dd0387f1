package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "coda",
	Short:         "Adaptive LSF exercises and virtual learners",
	Long:          "Coda generates French Sign Language exercises adapted to a learner's level, grades responses and evolves virtual learners.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "coda", Version)
	},
}

func init() {
	rootCmd.PersistentFlags().String("addr", "", "Daemon address (defaults to the configured bind and port)")

	rootCmd.AddCommand(initCmd, configCmd)
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, logsCmd)
	rootCmd.AddCommand(typesCmd, generateCmd, showCmd, evaluateCmd)
	rootCmd.AddCommand(conceptCmd, conceptsCmd, catalogCmd)
	rootCmd.AddCommand(learnerCmd, statsCmd, mcpCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// renderProgressBar draws value in [0,1] as a bar of width cells
func renderProgressBar(value float64, width int) string {
	filled := int(value * float64(width))
	filled = max(0, min(filled, width))
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}
