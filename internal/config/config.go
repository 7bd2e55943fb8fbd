// Package config loads and validates archiver configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/article-archiver/internal/policy/ratelimit"
	"github.com/JakeFAU/article-archiver/internal/storage/gcs"
	"github.com/JakeFAU/article-archiver/internal/storage/local"
	"github.com/JakeFAU/article-archiver/internal/storage/mongo"
	"github.com/JakeFAU/article-archiver/internal/storage/postgres"
	"github.com/JakeFAU/article-archiver/internal/storage/sqlite"
	"github.com/JakeFAU/article-archiver/internal/telemetry"
)

// DefaultBaseURL is the PLOS ONE title search for research articles on menopause.
const DefaultBaseURL = "https://journals.plos.org/plosone/search?filterArticleTypes=Research%20Article" +
	"&filterSections=Title&q=menopause&sortOrder=RELEVANCE&page="

// Navigator drivers.
const (
	DriverHeadless = "headless"
	DriverStatic   = "static"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendMongo    = "mongo"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures all archiver configuration knobs loaded via Viper.
type Config struct {
	Logging   LoggingConfig    `mapstructure:"logging"`
	Navigator NavigatorConfig  `mapstructure:"navigator"`
	Crawl     CrawlConfig      `mapstructure:"crawl"`
	Fetch     FetchConfig      `mapstructure:"fetch"`
	Transfer  TransferConfig   `mapstructure:"transfer"`
	Pipeline  PipelineConfig   `mapstructure:"pipeline"`
	Storage   StorageConfig    `mapstructure:"storage"`
	PubSub    PubSubConfig     `mapstructure:"pubsub"`
	Server    ServerConfig     `mapstructure:"server"`
	Retrieve  RetrieveConfig   `mapstructure:"retrieve"`
	Telemetry telemetry.Config `mapstructure:"telemetry"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// NavigatorConfig selects and tunes the page driver.
type NavigatorConfig struct {
	Driver            string        `mapstructure:"driver"`
	Headful           bool          `mapstructure:"headful"`
	ExecPath          string        `mapstructure:"exec_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
}

// CrawlConfig governs search result pagination.
type CrawlConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	StartPage      int           `mapstructure:"start_page"`
	MaxPages       int           `mapstructure:"max_pages"`
	ResultSelector string        `mapstructure:"result_selector"`
	LinkAttribute  string        `mapstructure:"link_attribute"`
	PageTimeout    time.Duration `mapstructure:"page_timeout"`
}

// FetchConfig locates the download control on article pages.
type FetchConfig struct {
	DownloadSelector string        `mapstructure:"download_selector"`
	TargetAttribute  string        `mapstructure:"target_attribute"`
	WaitTimeout      time.Duration `mapstructure:"wait_timeout"`
}

// TransferConfig configures direct PDF downloads.
type TransferConfig struct {
	UserAgent   string           `mapstructure:"user_agent"`
	Timeout     time.Duration    `mapstructure:"timeout"`
	MaxBodySize int              `mapstructure:"max_body_size"`
	RateLimit   ratelimit.Config `mapstructure:"rate_limit"`
}

// PipelineConfig sets run-level behavior.
type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

// StorageConfig picks content and record backends and holds their settings.
type StorageConfig struct {
	Content  string          `mapstructure:"content"`
	Records  string          `mapstructure:"records"`
	Local    local.Config    `mapstructure:"local"`
	GCS      gcs.Config      `mapstructure:"gcs"`
	Mongo    mongo.Config    `mapstructure:"mongo"`
	SQLite   sqlite.Config   `mapstructure:"sqlite"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// PubSubConfig enables archived-event notifications when ProjectID is set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Enabled reports whether a publisher should be built.
func (p PubSubConfig) Enabled() bool {
	return p.ProjectID != ""
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
	// APIKey guards the /v1 routes when set.
	APIKey string `mapstructure:"api_key"`
}

// RetrieveConfig holds retrieval defaults.
type RetrieveConfig struct {
	OutputDir string `mapstructure:"output_dir"`
}

// Load builds a Config from defaults, an optional file and ARCHIVER_* environment
// variables. With an empty path, config.yaml is looked up in the working
// directory and $HOME/.archiver; a missing file is not an error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.archiver")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("navigator.driver", DriverHeadless)
	v.SetDefault("navigator.headful", false)
	v.SetDefault("navigator.exec_path", "")
	v.SetDefault("navigator.user_agent", "")
	v.SetDefault("navigator.navigation_timeout", "45s")
	v.SetDefault("crawl.base_url", DefaultBaseURL)
	v.SetDefault("crawl.start_page", 1)
	v.SetDefault("crawl.max_pages", 0)
	v.SetDefault("crawl.result_selector", "dt.search-results-title a")
	v.SetDefault("crawl.link_attribute", "href")
	v.SetDefault("crawl.page_timeout", "10s")
	v.SetDefault("fetch.download_selector", "#downloadPdf")
	v.SetDefault("fetch.target_attribute", "href")
	v.SetDefault("fetch.wait_timeout", "10s")
	v.SetDefault("transfer.user_agent", "article-archiver/1.0")
	v.SetDefault("transfer.timeout", "60s")
	v.SetDefault("transfer.max_body_size", 64<<20)
	v.SetDefault("transfer.rate_limit.requests_per_second", 0)
	v.SetDefault("transfer.rate_limit.burst", 1)
	v.SetDefault("pipeline.workers", 1)
	v.SetDefault("storage.content", BackendLocal)
	v.SetDefault("storage.records", BackendSQLite)
	v.SetDefault("storage.local.base_dir", "data/pdfs")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "articles")
	v.SetDefault("storage.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("storage.mongo.database", "menopause")
	v.SetDefault("storage.mongo.bucket", "fs")
	v.SetDefault("storage.mongo.collection", "articles")
	v.SetDefault("storage.mongo.connect_timeout", "10s")
	v.SetDefault("storage.sqlite.path", "data/records.db")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "artifact_records")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "articles-archived")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.api_key", "")
	v.SetDefault("retrieve.output_dir", "downloads")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "article-archiver")
	v.SetDefault("telemetry.version", "dev")
	v.SetDefault("telemetry.project_id", "")
	v.SetDefault("telemetry.sample_ratio", 1.0)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Navigator.Driver {
	case DriverHeadless, DriverStatic:
	default:
		return fmt.Errorf("navigator.driver must be %q or %q, got %q", DriverHeadless, DriverStatic, c.Navigator.Driver)
	}
	if c.Crawl.StartPage < 1 {
		return fmt.Errorf("crawl.start_page must be >= 1")
	}
	if c.Crawl.MaxPages < 0 {
		return fmt.Errorf("crawl.max_pages must be >= 0")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be >= 1")
	}
	if c.Transfer.Timeout <= 0 {
		return fmt.Errorf("transfer.timeout must be > 0")
	}
	if c.Transfer.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("transfer.rate_limit.requests_per_second must be >= 0")
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if c.PubSub.Enabled() && c.PubSub.Topic == "" {
		return fmt.Errorf("pubsub.topic must be set when pubsub.project_id is set")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}

func (c Config) validateStorage() error {
	switch c.Storage.Content {
	case BackendMemory:
	case BackendLocal:
		if c.Storage.Local.BaseDir == "" {
			return fmt.Errorf("storage.local.base_dir is required for the local content backend")
		}
	case BackendGCS:
		if c.Storage.GCS.Bucket == "" {
			return fmt.Errorf("storage.gcs.bucket is required for the gcs content backend")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" || c.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.uri and storage.mongo.database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage.content backend %q", c.Storage.Content)
	}

	switch c.Storage.Records {
	case BackendMemory:
	case BackendSQLite:
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite record backend")
		}
	case BackendPostgres:
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres record backend")
		}
	case BackendMongo:
		if c.Storage.Mongo.URI == "" || c.Storage.Mongo.Database == "" {
			return fmt.Errorf("storage.mongo.uri and storage.mongo.database are required for the mongo backend")
		}
	default:
		return fmt.Errorf("unknown storage.records backend %q", c.Storage.Records)
	}
	return nil
}
