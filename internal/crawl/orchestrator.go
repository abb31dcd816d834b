// Package crawl drives the harvesting phase: it discovers index pages from the
// catalog root, expands each into item pages, and records one item per new
// artifact. Index pages and the items within each index page are processed by
// two independent bounded pools; a failure in any single page or download is
// logged and counted without disturbing its siblings.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/paper-harvester/internal/artifact"
	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/metrics"
)

const defaultWidth = 10

// Config controls discovery and fan-out.
type Config struct {
	RootURL          string
	MaxIndexes       int
	IndexConcurrency int
	ItemConcurrency  int
	Topic            string
}

// Parser extracts links and fields from fetched pages.
type Parser interface {
	ParseIndexLinks(body []byte, pageURL string, limit int) ([]string, error)
	ParseItemLinks(body []byte, pageURL string) ([]string, error)
	ParseItem(body []byte, pageURL string) (harvest.ParsedItem, error)
}

// Deduper answers whether an artifact URL is already recorded.
type Deduper interface {
	Exists(ctx context.Context, artifactURL string) (bool, error)
}

// Downloader stores one artifact.
type Downloader interface {
	Fetch(ctx context.Context, artifactURL, key string) (artifact.Result, error)
}

// HostLimiter paces requests to one host.
type HostLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Deps are the collaborators of an Orchestrator. Publisher, IDs and Limiter
// are optional.
type Deps struct {
	Pages      harvest.PageFetcher
	Parser     Parser
	Dedup      Deduper
	Downloader Downloader
	Store      harvest.Store
	Clock      harvest.Clock
	Publisher  harvest.Publisher
	IDs        harvest.IDGenerator
	Limiter    HostLimiter
}

// Summary reports what one run did.
type Summary struct {
	RunID            string
	Indexes          int
	ItemPages        int
	Recorded         int
	DownloadFailures int
	Skipped          int
	Failures         int
	Duration         time.Duration
}

// Orchestrator runs the crawl phase.
type Orchestrator struct {
	cfg    Config
	deps   Deps
	logger *zap.Logger
}

// New validates deps and applies default pool widths.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Orchestrator, error) {
	if cfg.RootURL == "" {
		return nil, fmt.Errorf("root url is required")
	}
	if deps.Pages == nil || deps.Parser == nil || deps.Dedup == nil ||
		deps.Downloader == nil || deps.Store == nil || deps.Clock == nil {
		return nil, fmt.Errorf("pages, parser, dedup, downloader, store and clock are required")
	}
	if cfg.IndexConcurrency <= 0 {
		cfg.IndexConcurrency = defaultWidth
	}
	if cfg.ItemConcurrency <= 0 {
		cfg.ItemConcurrency = defaultWidth
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{cfg: cfg, deps: deps, logger: logger}, nil
}

type tally struct {
	itemPages        atomic.Int64
	recorded         atomic.Int64
	downloadFailures atomic.Int64
	skipped          atomic.Int64
	failures         atomic.Int64
}

// Run fetches the catalog root and processes the selected index pages. Only a
// failure to read the root is returned; everything below it is isolated.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	summary := Summary{RunID: o.newRunID()}
	logger := o.logger.With(zap.String("run_id", summary.RunID))

	root, err := o.fetchPage(ctx, o.cfg.RootURL)
	if err != nil {
		metrics.ObservePage(metrics.KindRoot, metrics.StatusError)
		return summary, fmt.Errorf("fetch catalog root: %w", err)
	}
	metrics.ObservePage(metrics.KindRoot, metrics.StatusOK)

	indexes, err := o.deps.Parser.ParseIndexLinks(root.Body, o.cfg.RootURL, o.cfg.MaxIndexes)
	if err != nil {
		return summary, fmt.Errorf("parse catalog root: %w", err)
	}
	summary.Indexes = len(indexes)
	logger.Info("index pages selected", zap.Int("count", len(indexes)), zap.Strings("index_urls", indexes))

	var t tally
	var g errgroup.Group
	g.SetLimit(o.cfg.IndexConcurrency)
	for _, indexURL := range indexes {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.expandIndex(ctx, logger.With(zap.String("index_url", indexURL)), indexURL, &t)
			return nil
		})
	}
	_ = g.Wait()

	summary.ItemPages = int(t.itemPages.Load())
	summary.Recorded = int(t.recorded.Load())
	summary.DownloadFailures = int(t.downloadFailures.Load())
	summary.Skipped = int(t.skipped.Load())
	summary.Failures = int(t.failures.Load())
	summary.Duration = time.Since(start)

	logger.Info("crawl finished",
		zap.Int("indexes", summary.Indexes),
		zap.Int("item_pages", summary.ItemPages),
		zap.Int("recorded", summary.Recorded),
		zap.Int("download_failures", summary.DownloadFailures),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failures", summary.Failures),
		zap.Duration("duration", summary.Duration),
	)
	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("crawl interrupted: %w", err)
	}
	return summary, nil
}

func (o *Orchestrator) expandIndex(ctx context.Context, logger *zap.Logger, indexURL string, t *tally) {
	defer o.recoverTask(logger, t)

	page, err := o.fetchPage(ctx, indexURL)
	if err != nil {
		metrics.ObservePage(metrics.KindIndex, metrics.StatusError)
		t.failures.Add(1)
		logger.Warn("index fetch failed", zap.Error(err))
		return
	}
	metrics.ObservePage(metrics.KindIndex, metrics.StatusOK)

	links, err := o.deps.Parser.ParseItemLinks(page.Body, indexURL)
	if err != nil {
		t.failures.Add(1)
		logger.Warn("index parse failed", zap.Error(err))
		return
	}
	logger.Info("item pages discovered", zap.Int("count", len(links)))

	var g errgroup.Group
	g.SetLimit(o.cfg.ItemConcurrency)
	for _, itemURL := range links {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			o.processItem(ctx, logger.With(zap.String("item_url", itemURL)), itemURL, t)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) processItem(ctx context.Context, logger *zap.Logger, itemURL string, t *tally) {
	defer o.recoverTask(logger, t)
	t.itemPages.Add(1)

	page, err := o.fetchPage(ctx, itemURL)
	if err != nil {
		metrics.ObservePage(metrics.KindItem, metrics.StatusError)
		t.failures.Add(1)
		logger.Warn("item fetch failed", zap.Error(err))
		return
	}
	metrics.ObservePage(metrics.KindItem, metrics.StatusOK)

	parsed, err := o.deps.Parser.ParseItem(page.Body, itemURL)
	if errors.Is(err, harvest.ErrNoArtifact) {
		t.skipped.Add(1)
		logger.Debug("item has no artifact link")
		return
	}
	if err != nil {
		t.failures.Add(1)
		logger.Warn("item parse failed", zap.Error(err))
		return
	}
	logger = logger.With(zap.String("artifact_url", parsed.ArtifactURL))

	exists, err := o.deps.Dedup.Exists(ctx, parsed.ArtifactURL)
	if err != nil {
		t.failures.Add(1)
		logger.Warn("dedup lookup failed", zap.Error(err))
		return
	}
	if exists {
		t.skipped.Add(1)
		metrics.ObserveDedupSkip()
		logger.Debug("artifact already harvested")
		return
	}

	item := harvest.Item{
		Title:       parsed.Title,
		SourceURL:   parsed.SourceURL,
		ArtifactURL: parsed.ArtifactURL,
		Authors:     parsed.Authors,
		Year:        parsed.Year,
	}
	o.download(ctx, logger, &item, t)
	item.HarvestedAt = o.deps.Clock.Now()

	if err := o.deps.Store.Append(ctx, item); err != nil {
		t.failures.Add(1)
		logger.Error("metadata append failed", zap.Error(err))
		return
	}
	t.recorded.Add(1)
	metrics.ObserveItemRecorded(item.Downloaded())
	logger.Info("item recorded", zap.String("path", item.ArtifactPath), zap.Int("year", item.Year))
	o.publish(ctx, logger, item)
}

func (o *Orchestrator) download(ctx context.Context, logger *zap.Logger, item *harvest.Item, t *tally) {
	key, err := artifact.KeyFor(item.Year, item.ArtifactURL)
	if err != nil {
		t.downloadFailures.Add(1)
		metrics.ObserveDownload(metrics.StatusError, 0)
		logger.Warn("artifact key derivation failed", zap.Error(err))
		return
	}
	res, err := o.fetchArtifact(ctx, item.ArtifactURL, key)
	if err != nil {
		t.downloadFailures.Add(1)
		metrics.ObserveDownload(metrics.StatusError, 0)
		logger.Warn("artifact download failed", zap.Error(err))
		return
	}
	metrics.ObserveDownload(metrics.StatusOK, res.Bytes)
	item.ArtifactPath = res.Path
	item.MirrorURI = res.MirrorURI
	item.SHA256 = res.SHA256
}

func (o *Orchestrator) fetchPage(ctx context.Context, pageURL string) (harvest.Page, error) {
	if err := o.wait(ctx, pageURL); err != nil {
		return harvest.Page{}, err
	}
	return o.deps.Pages.Fetch(ctx, pageURL)
}

func (o *Orchestrator) fetchArtifact(ctx context.Context, artifactURL, key string) (artifact.Result, error) {
	if err := o.wait(ctx, artifactURL); err != nil {
		return artifact.Result{}, err
	}
	return o.deps.Downloader.Fetch(ctx, artifactURL, key)
}

func (o *Orchestrator) wait(ctx context.Context, rawURL string) error {
	if o.deps.Limiter == nil {
		return nil
	}
	return o.deps.Limiter.Wait(ctx, rawURL)
}

func (o *Orchestrator) publish(ctx context.Context, logger *zap.Logger, item harvest.Item) {
	if o.deps.Publisher == nil || o.cfg.Topic == "" {
		return
	}
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, item)
	if err != nil {
		logger.Warn("publish item failed", zap.String("topic", o.cfg.Topic), zap.Error(err))
		return
	}
	logger.Debug("item published", zap.String("message_id", id))
}

func (o *Orchestrator) recoverTask(logger *zap.Logger, t *tally) {
	if r := recover(); r != nil {
		t.failures.Add(1)
		logger.Error("task panicked", zap.Any("panic", r), zap.Stack("stack"))
	}
}

func (o *Orchestrator) newRunID() string {
	if o.deps.IDs == nil {
		return ""
	}
	id, err := o.deps.IDs.NewID()
	if err != nil {
		o.logger.Warn("run id generation failed", zap.Error(err))
		return ""
	}
	return id
}
