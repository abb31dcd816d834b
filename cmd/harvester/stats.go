package main

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
)

func newStatsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Prints totals for the metadata store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := c.app.Store().ReadAll(cmd.Context())
			if err != nil {
				return fmt.Errorf("read store: %w", err)
			}
			return writeStats(cmd.OutOrStdout(), harvest.Summarize(items))
		},
	}
}

func writeStats(out io.Writer, stats harvest.Stats) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "items\t%d\n", stats.Items)
	fmt.Fprintf(w, "downloaded\t%d\n", stats.Downloaded)
	fmt.Fprintf(w, "failed downloads\t%d\n", stats.FailedDownloads)
	fmt.Fprintf(w, "labeled\t%d\n", stats.Labeled)
	fmt.Fprintf(w, "unlabeled\t%d\n", stats.Unlabeled)

	years := make([]int, 0, len(stats.ByYear))
	for y := range stats.ByYear {
		years = append(years, y)
	}
	sort.Ints(years)
	for _, y := range years {
		fmt.Fprintf(w, "year %d\t%d\n", y, stats.ByYear[y])
	}
	for _, l := range stats.Labels() {
		fmt.Fprintf(w, "label %s\t%d\n", l, stats.ByLabel[l])
	}
	return w.Flush()
}
