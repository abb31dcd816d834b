// Package app wires configuration into the long-lived services used by the
// harvester commands and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/paper-harvester/internal/artifact"
	"github.com/JakeFAU/paper-harvester/internal/classifier"
	"github.com/JakeFAU/paper-harvester/internal/clock/system"
	"github.com/JakeFAU/paper-harvester/internal/config"
	"github.com/JakeFAU/paper-harvester/internal/crawl"
	"github.com/JakeFAU/paper-harvester/internal/dedup"
	"github.com/JakeFAU/paper-harvester/internal/enrich"
	pdfextract "github.com/JakeFAU/paper-harvester/internal/extract/pdf"
	collyfetcher "github.com/JakeFAU/paper-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/id/uuid"
	"github.com/JakeFAU/paper-harvester/internal/parser"
	"github.com/JakeFAU/paper-harvester/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/paper-harvester/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/paper-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/paper-harvester/internal/storage/local"
	"github.com/JakeFAU/paper-harvester/internal/store/jsonfile"
	memorystore "github.com/JakeFAU/paper-harvester/internal/store/memory"
	pgstore "github.com/JakeFAU/paper-harvester/internal/store/postgres"
)

// App holds the store and cloud clients shared by one command invocation.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	store           harvest.Store
	pgStore         *pgstore.Store
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storageClient   *storage.Client
}

// New opens the configured metadata store.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.setupStore(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// Store returns the metadata store.
func (a *App) Store() harvest.Store {
	return a.store
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case config.DriverPostgres:
		s, err := pgstore.New(ctx, pgstore.Config{DSN: a.cfg.Store.DSN, Table: a.cfg.Store.Table})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		a.pgStore = s
		a.store = s
		a.logger.Info("using postgres metadata store", zap.String("table", a.cfg.Store.Table))
	case config.DriverMemory:
		a.store = memorystore.New()
		a.logger.Warn("using in-memory metadata store; results are discarded on exit")
	default:
		s, err := jsonfile.New(jsonfile.Config{Path: a.cfg.Store.Path})
		if err != nil {
			return fmt.Errorf("json store init failed: %w", err)
		}
		a.store = s
		a.logger.Info("using json metadata store", zap.String("path", s.Path()))
	}
	return nil
}

// Crawler builds a crawl orchestrator over the shared store.
func (a *App) Crawler(ctx context.Context) (*crawl.Orchestrator, error) {
	rules, err := parser.New(a.cfg.ParserRules())
	if err != nil {
		return nil, fmt.Errorf("parser init failed: %w", err)
	}
	local, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Artifacts.Dir})
	if err != nil {
		return nil, fmt.Errorf("local blob store init failed: %w", err)
	}
	a.logger.Info("storing artifacts locally", zap.String("dir", local.BaseDir()))
	var opts []artifact.Option
	mirror, err := a.setupMirror(ctx)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		opts = append(opts, artifact.WithMirror(mirror))
	}
	downloader, err := artifact.New(local, artifact.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.Artifacts.DownloadTimeout,
	}, a.logger.Named("artifact"), opts...)
	if err != nil {
		return nil, fmt.Errorf("artifact fetcher init failed: %w", err)
	}
	publisher, err := a.setupPublisher(ctx)
	if err != nil {
		return nil, err
	}

	deps := crawl.Deps{
		Pages: collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Crawler.UserAgent,
			RespectRobots: a.cfg.Crawler.RespectRobots,
			Timeout:       a.cfg.Crawler.PageTimeout,
		}),
		Parser:     rules,
		Dedup:      dedup.New(a.store),
		Downloader: downloader,
		Store:      a.store,
		Clock:      system.New(),
		IDs:        uuid.New(),
	}
	if publisher != nil {
		deps.Publisher = publisher
	}
	if limiter := ratelimit.New(ratelimit.Config{
		RPS:   a.cfg.Crawler.HostRPS,
		Burst: a.cfg.Crawler.HostBurst,
	}); limiter.Enabled() {
		deps.Limiter = limiter
		a.logger.Info("per-host request limit enabled", zap.Float64("rps", a.cfg.Crawler.HostRPS))
	}
	return crawl.New(crawl.Config{
		RootURL:          a.cfg.Catalog.BaseURL,
		MaxIndexes:       a.cfg.Catalog.MaxIndexes,
		IndexConcurrency: a.cfg.Crawler.IndexConcurrency,
		ItemConcurrency:  a.cfg.Crawler.ItemConcurrency,
		Topic:            a.cfg.PubSub.Topic,
	}, deps, a.logger.Named("crawl"))
}

// Enricher builds an enrichment worker backed by the Gemini model.
func (a *App) Enricher() (*enrich.Worker, error) {
	if err := a.cfg.ValidateClassifier(); err != nil {
		return nil, err
	}
	model, err := classifier.NewGemini(classifier.GeminiConfig{
		Endpoint: a.cfg.Classifier.Endpoint,
		Model:    a.cfg.Classifier.Model,
		APIKey:   a.cfg.Classifier.APIKey,
		Timeout:  a.cfg.Classifier.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client init failed: %w", err)
	}
	return a.enricherWith(model)
}

func (a *App) enricherWith(model classifier.Model) (*enrich.Worker, error) {
	labels := a.cfg.LabelSet()
	client, err := classifier.New(model, labels, classifier.Config{
		MaxAttempts: a.cfg.Classifier.MaxAttempts,
		BaseDelay:   a.cfg.Classifier.BaseDelay,
	}, a.logger.Named("classifier"))
	if err != nil {
		return nil, fmt.Errorf("classifier init failed: %w", err)
	}
	return enrich.New(
		a.store,
		pdfextract.New(a.cfg.Enrich.MaxPages),
		client,
		labels,
		enrich.Config{Pace: a.cfg.Enrich.Pace, ExcerptChars: a.cfg.Enrich.ExcerptChars},
		a.logger.Named("enrich"),
	)
}

func (a *App) setupMirror(ctx context.Context) (artifact.BlobWriter, error) {
	if strings.TrimSpace(a.cfg.Artifacts.GCSBucket) == "" {
		return nil, nil
	}
	if a.storageClient == nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
	}
	mirror, err := gcsstorage.New(a.storageClient, gcsstorage.Config{
		Bucket: a.cfg.Artifacts.GCSBucket,
		Prefix: a.cfg.Artifacts.GCSPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("gcs mirror init failed: %w", err)
	}
	a.logger.Info("mirroring artifacts to GCS", zap.String("bucket", a.cfg.Artifacts.GCSBucket))
	return mirror, nil
}

func (a *App) setupPublisher(ctx context.Context) (*gcppublisher.Publisher, error) {
	if a.cfg.PubSub.Topic == "" || a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub topic configured, notifications disabled")
		return nil, nil
	}
	if a.pubsubPublisher != nil {
		return a.pubsubPublisher, nil
	}
	client, err := pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	a.pubsubClient = client
	a.pubsubPublisher = gcppublisher.New(client.Publisher(a.cfg.PubSub.Topic))
	a.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return a.pubsubPublisher, nil
}

// Close flushes publishers and releases clients.
func (a *App) Close() error {
	var errs []error
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
	return errors.Join(errs...)
}
