// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/paper-harvester/internal/harvest"
	"github.com/JakeFAU/paper-harvester/internal/parser"
)

// Store drivers accepted by store.driver.
const (
	DriverJSON     = "json"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Parser     ParserConfig     `mapstructure:"parser"`
	Artifacts  ArtifactsConfig  `mapstructure:"artifacts"`
	Store      StoreConfig      `mapstructure:"store"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Enrich     EnrichConfig     `mapstructure:"enrich"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// CatalogConfig locates the proceedings catalog and its link conventions.
type CatalogConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	IndexSelector string `mapstructure:"index_selector"`
	ItemSelector  string `mapstructure:"item_selector"`
	MaxIndexes    int    `mapstructure:"max_indexes"`
}

// CrawlerConfig governs fan-out widths and page fetching.
type CrawlerConfig struct {
	IndexConcurrency int           `mapstructure:"index_concurrency"`
	ItemConcurrency  int           `mapstructure:"item_concurrency"`
	UserAgent        string        `mapstructure:"user_agent"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	RespectRobots    bool          `mapstructure:"respect_robots"`
	HostRPS          float64       `mapstructure:"host_rps"`
	HostBurst        int           `mapstructure:"host_burst"`
}

// ParserConfig describes item page markup.
type ParserConfig struct {
	TitleSelector    string   `mapstructure:"title_selector"`
	AuthorsHeading   string   `mapstructure:"authors_heading"`
	YearPattern      string   `mapstructure:"year_pattern"`
	ArtifactSuffixes []string `mapstructure:"artifact_suffixes"`
}

// ArtifactsConfig sets where downloaded artifacts land.
type ArtifactsConfig struct {
	Dir             string        `mapstructure:"dir"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout"`
	GCSBucket       string        `mapstructure:"gcs_bucket"`
	GCSPrefix       string        `mapstructure:"gcs_prefix"`
}

// StoreConfig selects the metadata store backend.
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
	Table  string `mapstructure:"table"`
}

// ClassifierConfig configures the Gemini model and its retry policy.
type ClassifierConfig struct {
	Endpoint    string        `mapstructure:"endpoint"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
}

// EnrichConfig controls the labelling pass.
type EnrichConfig struct {
	Labels       []string      `mapstructure:"labels"`
	Pace         time.Duration `mapstructure:"pace"`
	MaxPages     int           `mapstructure:"max_pages"`
	ExcerptChars int           `mapstructure:"excerpt_chars"`
}

// PubSubConfig holds the optional notification topic.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// MetricsConfig enables the /metrics and /healthz listener when Addr is set.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
	File        string `mapstructure:"file"`
	MaxSizeMB   int    `mapstructure:"max_size_mb"`
	MaxBackups  int    `mapstructure:"max_backups"`
}

// Load builds a Config from defaults, an optional YAML file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("classifier.api_key", "HARVESTER_CLASSIFIER_API_KEY", "GEMINI_API_KEY"); err != nil {
		return Config{}, fmt.Errorf("bind api key env: %w", err)
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadEnvFiles exports variables from dotenv files that exist. Variables
// already set in the environment win. Missing files are skipped.
func LoadEnvFiles(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	rules := parser.DefaultRules()

	v.SetDefault("catalog.base_url", "https://papers.nips.cc")
	v.SetDefault("catalog.index_selector", rules.IndexSelector)
	v.SetDefault("catalog.item_selector", rules.ItemSelector)
	v.SetDefault("catalog.max_indexes", 5)
	v.SetDefault("crawler.index_concurrency", 10)
	v.SetDefault("crawler.item_concurrency", 10)
	v.SetDefault("crawler.user_agent", "paper-harvester/0.1")
	v.SetDefault("crawler.page_timeout", 30*time.Second)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.host_rps", 0.0)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("parser.title_selector", rules.TitleSelector)
	v.SetDefault("parser.authors_heading", rules.AuthorsHeading)
	v.SetDefault("parser.year_pattern", rules.YearPattern)
	v.SetDefault("parser.artifact_suffixes", rules.ArtifactSuffixes)
	v.SetDefault("artifacts.dir", "NeurIPS_Papers")
	v.SetDefault("artifacts.download_timeout", 60*time.Second)
	v.SetDefault("artifacts.gcs_prefix", "papers")
	v.SetDefault("store.driver", DriverJSON)
	v.SetDefault("store.path", "NeurIPS_Papers/metadata.json")
	v.SetDefault("store.table", "harvested_items")
	v.SetDefault("classifier.endpoint", "https://generativelanguage.googleapis.com")
	v.SetDefault("classifier.model", "gemini-1.5-flash")
	v.SetDefault("classifier.timeout", 30*time.Second)
	v.SetDefault("classifier.max_attempts", 5)
	v.SetDefault("classifier.base_delay", 2*time.Second)
	v.SetDefault("enrich.labels", harvest.DefaultLabels)
	v.SetDefault("enrich.pace", 2*time.Second)
	v.SetDefault("enrich.max_pages", 3)
	v.SetDefault("enrich.excerpt_chars", 1000)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 5)
	v.SetDefault("logging.max_backups", 3)
}

// Validate performs semantic checks that do not depend on external services.
func (c Config) Validate() error {
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Catalog.MaxIndexes <= 0 {
		return fmt.Errorf("catalog.max_indexes must be > 0")
	}
	if c.Crawler.IndexConcurrency <= 0 {
		return fmt.Errorf("crawler.index_concurrency must be > 0")
	}
	if c.Crawler.ItemConcurrency <= 0 {
		return fmt.Errorf("crawler.item_concurrency must be > 0")
	}
	if c.Crawler.PageTimeout <= 0 {
		return fmt.Errorf("crawler.page_timeout must be > 0")
	}
	if c.Crawler.HostRPS < 0 {
		return fmt.Errorf("crawler.host_rps must not be negative")
	}
	if c.Artifacts.Dir == "" {
		return fmt.Errorf("artifacts.dir is required")
	}
	switch c.Store.Driver {
	case DriverJSON:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the json driver")
		}
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of json, memory, postgres", c.Store.Driver)
	}
	if c.Classifier.MaxAttempts <= 0 {
		return fmt.Errorf("classifier.max_attempts must be > 0")
	}
	if c.Classifier.BaseDelay < 0 || c.Enrich.Pace < 0 {
		return fmt.Errorf("classifier.base_delay and enrich.pace must not be negative")
	}
	if len(harvest.NewLabelSet(c.Enrich.Labels).Names()) == 0 {
		return fmt.Errorf("enrich.labels must name at least one label")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id is required when pubsub.topic is set")
	}
	return nil
}

// ValidateClassifier checks the settings only the enrich phase needs.
func (c Config) ValidateClassifier() error {
	if c.Classifier.APIKey == "" {
		return fmt.Errorf("classifier.api_key (or GEMINI_API_KEY) is required for enrichment")
	}
	if c.Classifier.Model == "" {
		return fmt.Errorf("classifier.model is required")
	}
	return nil
}

// ParserRules converts catalog and parser settings into parser.Rules.
func (c Config) ParserRules() parser.Rules {
	return parser.Rules{
		IndexSelector:    c.Catalog.IndexSelector,
		ItemSelector:     c.Catalog.ItemSelector,
		TitleSelector:    c.Parser.TitleSelector,
		AuthorsHeading:   c.Parser.AuthorsHeading,
		YearPattern:      c.Parser.YearPattern,
		ArtifactSuffixes: c.Parser.ArtifactSuffixes,
	}
}

// LabelSet returns the configured closed label set.
func (c Config) LabelSet() harvest.LabelSet {
	return harvest.NewLabelSet(c.Enrich.Labels)
}
