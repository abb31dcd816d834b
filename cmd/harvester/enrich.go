package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newEnrichCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "enrich",
		Short: "Labels stored papers that have no label yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.enrich(cmd)
		},
	}
}

func newRunCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Crawls the catalog, then labels the new papers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.crawl(cmd); err != nil {
				return err
			}
			return c.enrich(cmd)
		},
	}
}

func (c *cli) enrich(cmd *cobra.Command) error {
	worker, err := c.app.Enricher()
	if err != nil {
		return err
	}
	summary, err := worker.Run(cmd.Context())
	fmt.Fprintf(cmd.OutOrStdout(), "labeled %d items (%d Unknown, %d still pending)\n",
		summary.Classified+summary.Unknown, summary.Unknown, summary.Remaining)
	if err != nil {
		return fmt.Errorf("enrich: %w", err)
	}
	return nil
}
