package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deckcheck/inventory-scraper/config"
	"github.com/deckcheck/inventory-scraper/matcher"
	"github.com/deckcheck/inventory-scraper/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "scraper",
	Short: "scraper collects card inventory from a storefront into a consolidated artifact.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger, level := newLogger(verbose)
		slog.SetDefault(logger)
		setLogLoggerLevel(level.Level())
	},
}

var (
	configPath string
	verbose    bool

	baseURL        string
	snapshotPath   string
	outputFile     string
	outputFormat   string
	checkpointFile string
	fetchWorkers   int
	metricsAddr    string

	matchInput string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape every collection from scratch.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runScrape(cmd, false)
	},
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue an interrupted scrape from its checkpoint.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runScrape(cmd, true)
	},
}

var matchCmd = &cobra.Command{
	Use:   "match [card name]...",
	Short: "Look up card names against a scraped inventory artifact.",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runMatch(args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: deckcheck.yaml in . or ./configs)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	for _, cmd := range []*cobra.Command{runCmd, resumeCmd} {
		cmd.Flags().StringVar(&baseURL, "base-url", "", "Storefront base URL")
		cmd.Flags().StringVar(&snapshotPath, "snapshot", "", "Enumerate collections from a saved catalog HTML file")
		cmd.Flags().StringVar(&outputFile, "output", "", "Output file path")
		cmd.Flags().StringVar(&outputFormat, "format", "", "Output format: json, csv, or dual")
		cmd.Flags().StringVar(&checkpointFile, "checkpoint", "", "Checkpoint file path")
		cmd.Flags().IntVar(&fetchWorkers, "workers", 0, "Concurrent collection fetches")
		cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	}
	matchCmd.Flags().StringVar(&matchInput, "input", "data/inventory.json", "Inventory artifact to match against")

	rootCmd.AddCommand(runCmd, resumeCmd, matchCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runScrape(cmd *cobra.Command, resume bool) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fatal("loading configuration", err)
	}
	applyOverrides(cmd, cfg)
	cfg.Resume = resume
	cfg.Verbose = verbose
	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("workers", cfg.FetchWorkers),
		slog.Bool("resume", cfg.Resume),
	)

	o, err := scraper.New(cfg)
	if err != nil {
		fatal("initialising scraper", err)
	}

	ctx := cmd.Context()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, waiting for in-flight work to finish")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && o.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(o.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	summary, err := o.Run(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	if err != nil {
		if summary != nil {
			printSummary(summary, "Scrape interrupted")
		}
		switch {
		case errors.Is(err, scraper.ErrNoCollections):
			slog.Error("no collections discovered, nothing to scrape")
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			slog.Error("scrape interrupted, checkpoint kept for resume", slog.Any("error", err))
		default:
			slog.Error("scraping failed", slog.Any("error", err))
		}
		os.Exit(1)
	}

	printSummary(summary, "Scrape complete")
}

func runMatch(names []string) {
	m, err := matcher.Load(matchInput)
	if err != nil {
		fatal("loading inventory artifact", err)
	}

	results, missing := m.MatchAll(names)
	total := 0
	for _, r := range results {
		grade := string(r.Offer.Condition)
		if grade == "" {
			grade = "ungraded"
		}
		marker := " "
		if !r.Exact {
			marker = "~"
		}
		total += r.Offer.PriceCents
		fmt.Printf("%s %-40s %-6s %8s  x%-3d %s\n",
			marker, r.Card.Name, grade, formatCents(r.Offer.PriceCents), r.Offer.Stock, r.Card.CollectionName)
	}
	for _, name := range missing {
		fmt.Printf("? %s: no match\n", name)
	}

	fmt.Printf("\n%d of %d matched, total %s\n", len(results), len(names), formatCents(total))
	if len(missing) > 0 {
		os.Exit(1)
	}
}

// applyOverrides layers explicitly set command-line flags over the
// loaded configuration.
func applyOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = baseURL
		cfg.CatalogURL = strings.TrimSuffix(baseURL, "/") + "/collections"
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotPath = snapshotPath
	}
	if flags.Changed("output") {
		cfg.OutputFile = outputFile
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(outputFormat)
	}
	if flags.Changed("checkpoint") {
		cfg.CheckpointFile = checkpointFile
	}
	if flags.Changed("workers") {
		cfg.FetchWorkers = fetchWorkers
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
}

func printSummary(s *scraper.Summary, headline string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println(headline)
	fmt.Printf("  Run ID:        %s\n", s.RunID)
	fmt.Printf("  Collections:   %d processed, %d skipped of %d (%s%%)\n",
		s.CollectionsProcessed, s.CollectionsSkipped, s.TotalCollections, s.CompletionPercentage)
	fmt.Printf("  Raw listings:  %d\n", s.RawListings)
	fmt.Printf("  Cards:         %d\n", s.CanonicalCards)
	if s.Rejected.Total() > 0 {
		fmt.Printf("  Rejected:      %d %v\n", s.Rejected.Total(), map[string]int(s.Rejected))
	}
	if len(s.SkipReasons) > 0 {
		fmt.Printf("  Skip reasons:  %v\n", s.SkipReasons)
	}
	fmt.Printf("  Retries:       %d\n", s.Retries)
	fmt.Printf("  Duration:      %v\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	if s.OutputFile != "" {
		fmt.Printf("  Output file:   %s\n", s.OutputFile)
	}
	fmt.Println(separator)
}

func formatCents(cents int) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}

func fatal(msg string, err error) {
	slog.Error(msg, slog.Any("error", err))
	os.Exit(1)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
