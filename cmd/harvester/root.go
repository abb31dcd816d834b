package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/app"
	"github.com/JakeFAU/paper-harvester/internal/config"
	"github.com/JakeFAU/paper-harvester/internal/logging"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

// cli carries the services built once per invocation.
type cli struct {
	cfgFile     string
	envFile     string
	cfg         config.Config
	logger      *zap.Logger
	app         *app.App
	started     time.Time
	stopMetrics context.CancelFunc
	metricsDone chan struct{}
}

func newRootCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "harvester",
		Short: "Crawls conference proceedings and labels the harvested papers.",
		Long: `harvester downloads paper PDFs and metadata from a proceedings catalog
into a local directory and a metadata store, then labels each paper with a
research category using a generative model.`,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "dotenv file with secrets such as GEMINI_API_KEY")

	cmd.AddCommand(newCrawlCmd(c), newEnrichCmd(c), newRunCmd(c), newStatsCmd(c))
	return cmd
}

// setup loads configuration and builds the logger, metrics server and app.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	c.started = time.Now()
	if err := config.LoadEnvFiles(c.envFile); err != nil {
		return err
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	c.cfg = cfg

	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	zap.ReplaceGlobals(logger)

	if cfg.Metrics.Addr != "" {
		c.startMetrics(cmd.Context())
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize application services: %w", err)
	}
	c.app = a
	return nil
}

func (c *cli) startMetrics(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	c.stopMetrics = cancel
	c.metricsDone = make(chan struct{})
	go func() {
		defer close(c.metricsDone)
		if err := metrics.Serve(ctx, c.cfg.Metrics.Addr, c.logger.Named("metrics")); err != nil {
			c.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// close releases everything setup built and logs the total run time.
func (c *cli) close(stderr io.Writer) {
	if c.app != nil {
		if err := c.app.Close(); err != nil {
			c.logger.Warn("failed to close application services", zap.Error(err))
		}
	}
	if c.stopMetrics != nil {
		c.stopMetrics()
		<-c.metricsDone
	}
	if c.logger != nil {
		c.logger.Info("total execution time", zap.Duration("duration", time.Since(c.started)))
		if err := c.logger.Sync(); err != nil {
			fmt.Fprintf(stderr, "logger sync failed: %v\n", err)
		}
	}
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{}
	cmd := newRootCmd(c)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.ExecuteContext(ctx)
	if err != nil && c.logger != nil {
		c.logger.Error("command failed", zap.Error(err))
	}
	c.close(stderr)
	if err != nil {
		return 1
	}
	return 0
}
