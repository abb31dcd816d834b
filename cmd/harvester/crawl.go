package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newCrawlCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "crawl",
		Short: "Harvests new papers from the catalog",
		Long: `Walks the catalog root, the newest index pages and every item page,
downloading artifacts and appending one metadata record per new artifact URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.crawl(cmd)
		},
	}
}

func (c *cli) crawl(cmd *cobra.Command) error {
	orchestrator, err := c.app.Crawler(cmd.Context())
	if err != nil {
		return err
	}
	summary, err := orchestrator.Run(cmd.Context())
	if err != nil {
		return fmt.Errorf("crawl: %w", err)
	}
	c.logger.Info("crawl complete",
		zap.String("run_id", summary.RunID),
		zap.Int("recorded", summary.Recorded),
		zap.Int("skipped", summary.Skipped),
		zap.Int("download_failures", summary.DownloadFailures),
	)
	fmt.Fprintf(cmd.OutOrStdout(), "recorded %d new items (%d already known, %d downloads failed)\n",
		summary.Recorded, summary.Skipped, summary.DownloadFailures)
	return nil
}
