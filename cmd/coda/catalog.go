package main

import (
	"context"
	"fmt"

	"github.com/felixgeelhaar/coda/internal/concept"
	"github.com/felixgeelhaar/coda/internal/domain"
	"github.com/spf13/cobra"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Work with concept catalog files",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a YAML concept catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := concept.LoadFile(args[0])
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "✓ %s: %d concepts\n", args[0], cat.Len())

		p := concept.NewMemoryProvider(cat)
		for _, level := range domain.AllLevels() {
			found, err := p.Search(context.Background(), domain.SearchCriteria{Level: level})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "  %s  %3d\n", level, len(found))
		}
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}
