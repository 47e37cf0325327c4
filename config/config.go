// Package config holds the scrape run configuration: defaults, a
// validation pass, and a loader layering an optional config file and
// DECKCHECK_* environment overrides on top of the defaults.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds one scrape run's configuration.
type Config struct {
	// BaseURL is the storefront root; relative links in scraped pages
	// are resolved against it.
	BaseURL string
	// CatalogURL is the collection index page. Empty derives
	// BaseURL/collections at load time.
	CatalogURL string
	// SnapshotPath, when set, enumerates collections from a saved HTML
	// file instead of the live catalog page.
	SnapshotPath string
	UserAgent    string

	// PriorityCollections moves collections whose name contains any of
	// these terms to the front of the run, in term order.
	PriorityCollections []string

	// MaxCardsPerCollection caps accepted cards per collection;
	// 0 means unbounded.
	MaxCardsPerCollection int
	SkipEmptyCollections  bool
	// FetchWorkers is the number of concurrent collection fetches.
	// 1 keeps the strict sequential behavior.
	FetchWorkers int

	DelayBetweenRequests    time.Duration
	DelayBetweenCollections time.Duration
	Timeout                 time.Duration

	// MaxRetries is the total number of fetch attempts per collection,
	// including the first.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// CheckpointBatchSize is the number of handled collections between
	// checkpoint writes.
	CheckpointBatchSize int
	CheckpointFile      string
	// Resume seeds the run from an existing checkpoint when one exists.
	Resume bool

	OutputFile   string
	OutputFormat string // json, csv, or dual

	MetricsAddr string
	Verbose     bool
}

// DefaultConfig returns the complete-run defaults: every collection,
// unbounded cards, empty-collection skipping, resumable checkpointing.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:                 "https://shop.deckcheck.dev",
		CatalogURL:              "https://shop.deckcheck.dev/collections",
		UserAgent:               "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MaxCardsPerCollection:   0,
		SkipEmptyCollections:    true,
		FetchWorkers:            1,
		DelayBetweenRequests:    300 * time.Millisecond,
		DelayBetweenCollections: time.Second,
		Timeout:                 10 * time.Second,
		MaxRetries:              3,
		RetryBaseDelay:          500 * time.Millisecond,
		CheckpointBatchSize:     25,
		CheckpointFile:          "data/checkpoint.json",
		OutputFile:              "data/inventory.json",
		OutputFormat:            "json",
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.SnapshotPath == "" {
		if c.CatalogURL == "" {
			return fmt.Errorf("catalog URL cannot be empty without a snapshot path")
		}
		catalogURL, err := url.Parse(c.CatalogURL)
		if err != nil {
			return fmt.Errorf("invalid catalog URL: %w", err)
		}
		if catalogURL.Host == "" {
			return fmt.Errorf("catalog URL must include a host")
		}
	}

	if c.MaxCardsPerCollection < 0 {
		return fmt.Errorf("max cards per collection cannot be negative")
	}
	if c.FetchWorkers <= 0 {
		return fmt.Errorf("fetch workers must be positive")
	}
	if c.DelayBetweenRequests < 0 {
		return fmt.Errorf("delay between requests cannot be negative")
	}
	if c.DelayBetweenCollections < 0 {
		return fmt.Errorf("delay between collections cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max retries must be positive")
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("retry base delay cannot be negative")
	}
	if c.CheckpointBatchSize <= 0 {
		return fmt.Errorf("checkpoint batch size must be positive")
	}
	if c.CheckpointFile == "" {
		return fmt.Errorf("checkpoint file cannot be empty")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be json, csv, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}

// Load builds the configuration from defaults, an optional config file,
// and DECKCHECK_* environment variables, in increasing precedence.
// An empty path searches for deckcheck.yaml in the working directory
// and ./configs; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("DECKCHECK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("deckcheck")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := fromViper(v)
	if cfg.CatalogURL == "" {
		cfg.CatalogURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/collections"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	def := DefaultConfig()
	v.SetDefault("baseUrl", def.BaseURL)
	v.SetDefault("catalogUrl", def.CatalogURL)
	v.SetDefault("snapshotPath", def.SnapshotPath)
	v.SetDefault("userAgent", def.UserAgent)
	v.SetDefault("priorityCollections", def.PriorityCollections)
	v.SetDefault("maxCardsPerCollection", def.MaxCardsPerCollection)
	v.SetDefault("skipEmptyCollections", def.SkipEmptyCollections)
	v.SetDefault("fetchWorkers", def.FetchWorkers)
	v.SetDefault("delayBetweenRequestsMs", int(def.DelayBetweenRequests/time.Millisecond))
	v.SetDefault("delayBetweenCollectionsMs", int(def.DelayBetweenCollections/time.Millisecond))
	v.SetDefault("timeoutMs", int(def.Timeout/time.Millisecond))
	v.SetDefault("maxRetries", def.MaxRetries)
	v.SetDefault("retryBackoffMs", int(def.RetryBaseDelay/time.Millisecond))
	v.SetDefault("checkpointBatchSize", def.CheckpointBatchSize)
	v.SetDefault("checkpointFile", def.CheckpointFile)
	v.SetDefault("outputFile", def.OutputFile)
	v.SetDefault("outputFormat", def.OutputFormat)
	v.SetDefault("metricsAddr", def.MetricsAddr)
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		BaseURL:                 v.GetString("baseUrl"),
		CatalogURL:              v.GetString("catalogUrl"),
		SnapshotPath:            v.GetString("snapshotPath"),
		UserAgent:               v.GetString("userAgent"),
		PriorityCollections:     v.GetStringSlice("priorityCollections"),
		MaxCardsPerCollection:   v.GetInt("maxCardsPerCollection"),
		SkipEmptyCollections:    v.GetBool("skipEmptyCollections"),
		FetchWorkers:            v.GetInt("fetchWorkers"),
		DelayBetweenRequests:    time.Duration(v.GetInt("delayBetweenRequestsMs")) * time.Millisecond,
		DelayBetweenCollections: time.Duration(v.GetInt("delayBetweenCollectionsMs")) * time.Millisecond,
		Timeout:                 time.Duration(v.GetInt("timeoutMs")) * time.Millisecond,
		MaxRetries:              v.GetInt("maxRetries"),
		RetryBaseDelay:          time.Duration(v.GetInt("retryBackoffMs")) * time.Millisecond,
		CheckpointBatchSize:     v.GetInt("checkpointBatchSize"),
		CheckpointFile:          v.GetString("checkpointFile"),
		OutputFile:              v.GetString("outputFile"),
		OutputFormat:            v.GetString("outputFormat"),
		MetricsAddr:             v.GetString("metricsAddr"),
	}
}
