package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/felixgeelhaar/coda/internal/cache"
	"github.com/felixgeelhaar/coda/internal/factory"
	"github.com/felixgeelhaar/coda/internal/storage/sqlite"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache, generator and evaluation statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := connect(cmd)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		var cs cache.Stats
		if err := c.get("/v1/cache/stats", &cs); err != nil {
			return fmt.Errorf("get cache stats: %w", err)
		}
		fmt.Fprintln(out, "Exercise Cache")
		fmt.Fprintln(out, "==============")
		fmt.Fprintf(out, "Entries:   %d / %d\n", cs.Size, cs.MaxSize)
		fmt.Fprintf(out, "Hit rate:  %s %.1f%% (%d hits, %d misses)\n",
			renderProgressBar(cs.HitRate, 20), cs.HitRate*100, cs.TotalHits, cs.TotalMisses)
		fmt.Fprintf(out, "Evicted:   %d\n", cs.Evictions)

		var fs factory.Stats
		if err := c.get("/v1/factory/stats", &fs); err != nil {
			return fmt.Errorf("get factory stats: %w", err)
		}
		fmt.Fprintln(out, "\nGenerators")
		fmt.Fprintln(out, "==========")
		fmt.Fprintf(out, "Cached instances: %d (%d hits, %d misses)\n", fs.CacheSize, fs.CacheHits, fs.CacheMisses)
		for _, g := range fs.Generators {
			fmt.Fprintf(out, "%-24s requests %-6d errors %-4d success %s avg %s\n",
				g.Name, g.Requests, g.Errors, renderProgressBar(g.SuccessRate, 10), g.AvgResponseTime)
		}

		window, _ := cmd.Flags().GetString("window")
		var summary struct {
			Window string               `json:"window"`
			Types  []sqlite.TypeSummary `json:"types"`
		}
		err = c.get("/v1/evaluations/summary?window="+url.QueryEscape(window), &summary)
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			fmt.Fprintln(out, "\nEvaluation history requires the sqlite backend.")
			return nil
		}
		if err != nil {
			return fmt.Errorf("get evaluation summary: %w", err)
		}

		fmt.Fprintf(out, "\nEvaluations (last %s)\n", summary.Window)
		fmt.Fprintln(out, "===========")
		for _, t := range summary.Types {
			fmt.Fprintf(out, "%-18s %s %.0f%% mean, %d/%d correct\n",
				t.Type, renderProgressBar(t.MeanScore, 20), t.MeanScore*100, t.Correct, t.Count)
		}
		return nil
	},
}

func init() {
	statsCmd.Flags().String("window", "168h", "Evaluation summary window")
}
