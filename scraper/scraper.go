// Package scraper drives a full inventory run: enumerate collections,
// fetch and extract each pending one, checkpoint periodically,
// consolidate, and write the final artifact.
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/deckcheck/inventory-scraper/catalog"
	"github.com/deckcheck/inventory-scraper/checkpoint"
	"github.com/deckcheck/inventory-scraper/config"
	"github.com/deckcheck/inventory-scraper/consolidate"
	"github.com/deckcheck/inventory-scraper/extractor"
	"github.com/deckcheck/inventory-scraper/fetcher"
	"github.com/deckcheck/inventory-scraper/models"
	"github.com/deckcheck/inventory-scraper/output"
	"github.com/deckcheck/inventory-scraper/retry"
	"github.com/google/uuid"
)

// Version is stamped into the output artifact's metadata.
const Version = "1.1.0"

// ErrNoCollections reports an enumeration that found nothing to scrape.
// The run ends cleanly; there is no partial output and no checkpoint.
var ErrNoCollections = errors.New("no collections discovered")

// Orchestrator owns one run end to end. The progress snapshot, the
// checkpoint file, and the output artifact have no other writer.
type Orchestrator struct {
	cfg         *config.Config
	source      catalog.Source
	client      *fetcher.Client
	extractor   *extractor.Extractor
	checkpoints *checkpoint.Store
	policy      retry.Policy
	Metrics     *Metrics

	retryCount int64
}

// Summary reports what a run accomplished, for the operator to judge
// whether a resume is warranted.
type Summary struct {
	RunID                string
	StartTime            time.Time
	EndTime              time.Time
	TotalCollections     int
	CollectionsProcessed int
	CollectionsSkipped   int
	RawListings          int
	CanonicalCards       int
	Rejected             models.RejectionTally
	SkipReasons          map[string]int
	Retries              int
	CompletionPercentage string
	OutputFile           string
	Resumed              bool
}

// New builds an orchestrator from cfg. The collection source is the
// saved snapshot when cfg.SnapshotPath is set, the live catalog page
// otherwise.
func New(cfg *config.Config) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client, err := fetcher.New(fetcher.Options{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		Delay:       cfg.DelayBetweenRequests,
		Parallelism: cfg.FetchWorkers,
	})
	if err != nil {
		return nil, fmt.Errorf("build fetcher: %w", err)
	}
	return newOrchestrator(cfg, client)
}

func newOrchestrator(cfg *config.Config, client *fetcher.Client) (*Orchestrator, error) {
	ext, err := extractor.New(cfg.BaseURL, cfg.MaxCardsPerCollection)
	if err != nil {
		return nil, fmt.Errorf("build extractor: %w", err)
	}

	var source catalog.Source
	if cfg.SnapshotPath != "" {
		source = catalog.NewSnapshotSource(cfg.SnapshotPath, cfg.BaseURL)
	} else {
		source = catalog.NewLiveSource(client, cfg.CatalogURL)
	}

	return &Orchestrator{
		cfg:         cfg,
		source:      source,
		client:      client,
		extractor:   ext,
		checkpoints: checkpoint.NewStore(cfg.CheckpointFile),
		Metrics:     NewMetrics(),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Backoff:     retry.Linear(cfg.RetryBaseDelay),
			Retryable:   fetcher.Retryable,
		},
	}, nil
}

// Run executes the scrape. On success the checkpoint is cleared and the
// artifact written; on cancellation the run checkpoints what it has and
// stops, resumable; on an unrecoverable failure a reduced partial
// artifact is written best-effort. The returned summary is nil only
// when the run failed before scraping anything.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()
	runID := uuid.NewString()

	summary := &Summary{
		RunID:       runID,
		StartTime:   start,
		Rejected:    make(models.RejectionTally),
		SkipReasons: make(map[string]int),
		OutputFile:  o.cfg.OutputFile,
	}

	slog.Info("starting run",
		slog.String("run_id", runID),
		slog.String("base_url", o.cfg.BaseURL),
		slog.Int("workers", o.cfg.FetchWorkers),
		slog.Bool("resume", o.cfg.Resume),
	)

	refs, err := o.enumerate(ctx)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, ErrNoCollections
	}
	summary.TotalCollections = len(refs)

	progress, resumed, err := o.seedProgress(runID)
	if err != nil {
		return nil, err
	}
	summary.Resumed = resumed

	pending := pendingCollections(refs, progress)
	slog.Info("collections enumerated",
		slog.Int("total", len(refs)),
		slog.Int("pending", len(pending)),
		slog.Bool("resumed", resumed),
	)

	runErr := o.processAll(ctx, pending, progress, summary)

	summary.CollectionsProcessed = progress.CollectionsProcessed
	summary.CollectionsSkipped = progress.CollectionsSkipped
	summary.RawListings = progress.TotalCards
	summary.Retries = int(atomic.LoadInt64(&o.retryCount))
	summary.CompletionPercentage = completion(progress, len(refs))

	if runErr != nil {
		summary.EndTime = time.Now()
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			slog.Info("run stopped, checkpoint kept for resume",
				slog.Int("processed", progress.CollectionsProcessed),
				slog.Int("skipped", progress.CollectionsSkipped),
			)
			return summary, runErr
		}
		return summary, o.abort(progress, runErr)
	}

	canonical := consolidate.Cards(progress.Cards)
	summary.CanonicalCards = len(canonical)

	out := &models.ScrapeOutput{
		LastUpdated:          time.Now().UTC().Format(time.RFC3339),
		TotalCards:           len(canonical),
		CollectionsProcessed: progress.CollectionsProcessed,
		CollectionsSkipped:   progress.CollectionsSkipped,
		TotalCollections:     len(refs),
		CompletionPercentage: summary.CompletionPercentage,
		Cards:                canonical,
		Metadata: models.RunMetadata{
			RunID:           runID,
			Source:          o.cfg.BaseURL,
			ScraperVersion:  Version,
			DurationSeconds: time.Since(start).Seconds(),
		},
	}
	if err := o.writeOutput(out); err != nil {
		summary.EndTime = time.Now()
		return summary, o.abort(progress, err)
	}

	if err := o.checkpoints.Clear(); err != nil {
		slog.Warn("clearing checkpoint failed", slog.Any("error", err))
	}

	summary.EndTime = time.Now()
	slog.Info("run complete",
		slog.Int("collections", summary.CollectionsProcessed),
		slog.Int("skipped", summary.CollectionsSkipped),
		slog.Int("cards", summary.CanonicalCards),
		slog.String("completion", summary.CompletionPercentage),
	)
	return summary, nil
}

func (o *Orchestrator) enumerate(ctx context.Context) ([]models.CollectionRef, error) {
	var refs []models.CollectionRef
	err := retry.Do(ctx, o.fetchPolicy("catalog"), func(ctx context.Context) error {
		if o.cfg.SnapshotPath == "" {
			o.Metrics.IncRequest("catalog")
		}
		found, err := o.source.Collections(ctx)
		if err != nil {
			return err
		}
		refs = found
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate collections: %w", err)
	}
	return catalog.Prioritize(refs, o.cfg.PriorityCollections), nil
}

func (o *Orchestrator) seedProgress(runID string) (*models.ScrapeProgress, bool, error) {
	if o.cfg.Resume {
		progress, err := o.checkpoints.Load()
		if err == nil {
			progress.RunID = runID
			slog.Info("resuming from checkpoint",
				slog.String("path", o.checkpoints.Path()),
				slog.Int("cards", progress.TotalCards),
				slog.Int("processed", progress.CollectionsProcessed),
				slog.Int("skipped", progress.CollectionsSkipped),
			)
			return progress, true, nil
		}
		if !errors.Is(err, checkpoint.ErrNotFound) {
			return nil, false, fmt.Errorf("load checkpoint: %w", err)
		}
		slog.Info("no checkpoint found, starting fresh")
	}
	return &models.ScrapeProgress{RunID: runID}, false, nil
}

func pendingCollections(refs []models.CollectionRef, progress *models.ScrapeProgress) []models.CollectionRef {
	done := progress.DoneIDs()
	pending := make([]models.CollectionRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := done[ref.ID]; ok {
			continue
		}
		pending = append(pending, ref)
	}
	return pending
}

// processAll walks the pending list in checkpoint-sized batches. Every
// batch is fully applied and saved before the next one starts, so the
// checkpoint on disk always describes a consistent prefix of the run.
func (o *Orchestrator) processAll(ctx context.Context, pending []models.CollectionRef, progress *models.ScrapeProgress, summary *Summary) error {
	batch := o.cfg.CheckpointBatchSize
	for from := 0; from < len(pending); from += batch {
		if err := ctx.Err(); err != nil {
			return err
		}

		to := from + batch
		if to > len(pending) {
			to = len(pending)
		}

		results := o.processBatch(ctx, pending[from:to])
		o.apply(results, progress, summary)

		progress.Timestamp = time.Now().UTC()
		if err := o.checkpoints.Save(progress); err != nil {
			return fmt.Errorf("save checkpoint: %w", err)
		}
		slog.Info("checkpoint saved",
			slog.Int("processed", progress.CollectionsProcessed),
			slog.Int("skipped", progress.CollectionsSkipped),
			slog.Int("cards", progress.TotalCards),
			slog.Int("remaining", len(pending)-to),
		)

		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// processBatch fans the batch out to the fetch workers. Results land in
// per-index slots so the accumulated record order equals priority order
// no matter which worker finishes first.
func (o *Orchestrator) processBatch(ctx context.Context, refs []models.CollectionRef) []collectionResult {
	results := make([]collectionResult, len(refs))

	workers := o.cfg.FetchWorkers
	if workers < 1 {
		workers = 1
	}
	if workers > len(refs) {
		workers = len(refs)
	}

	indexes := make(chan int)
	go func() {
		defer close(indexes)
		for i := range refs {
			select {
			case <-ctx.Done():
				return
			case indexes <- i:
			}
		}
	}()

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first := true
			for i := range indexes {
				if !first {
					sleep(ctx, o.cfg.DelayBetweenCollections)
				}
				first = false

				res := o.processCollection(ctx, refs[i])
				if res.status == statusSkipped && ctx.Err() != nil {
					// Shutdown mid-collection: leave it pending for the
					// next run instead of recording a skip.
					res = collectionResult{ref: refs[i]}
				}
				results[i] = res
			}
		}()
	}
	wg.Wait()

	return results
}

type resultStatus int

const (
	statusNone resultStatus = iota
	statusProcessed
	statusSkipped
)

type collectionResult struct {
	ref     models.CollectionRef
	status  resultStatus
	reason  string
	cards   []models.Card
	rejects models.RejectionTally
}

func (o *Orchestrator) processCollection(ctx context.Context, ref models.CollectionRef) collectionResult {
	res := collectionResult{ref: ref}

	if o.cfg.SkipEmptyCollections {
		o.Metrics.IncRequest("precheck")
		if !o.client.HasCards(ctx, ref.URL) {
			res.status = statusSkipped
			res.reason = "empty"
			return res
		}
	}

	body, err := o.fetchCollection(ctx, ref)
	if err != nil {
		label := fetcher.ErrorLabel(err)
		o.Metrics.IncError(label)
		slog.Error("collection fetch failed",
			slog.String("collection", ref.Name),
			slog.String("url", ref.URL),
			slog.String("category", label),
			slog.Any("error", err),
		)
		res.status = statusSkipped
		res.reason = label
		return res
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		res.status = statusSkipped
		res.reason = "parse_failed"
		return res
	}

	cards, rejects := o.extractor.Listings(doc, ref)
	res.rejects = rejects
	if len(cards) == 0 {
		res.status = statusSkipped
		res.reason = "no_cards"
		return res
	}

	res.status = statusProcessed
	res.cards = cards
	return res
}

func (o *Orchestrator) fetchCollection(ctx context.Context, ref models.CollectionRef) ([]byte, error) {
	var body []byte
	err := retry.Do(ctx, o.fetchPolicy(ref.Name), func(ctx context.Context) error {
		o.Metrics.IncRequest("collection")
		start := time.Now()
		fetched, err := o.client.Fetch(ctx, ref.URL)
		o.Metrics.ObserveDuration(time.Since(start))
		if err != nil {
			return err
		}
		body = fetched
		return nil
	})
	return body, err
}

func (o *Orchestrator) fetchPolicy(target string) retry.Policy {
	p := o.policy
	p.Notify = func(attempt int, err error) {
		atomic.AddInt64(&o.retryCount, 1)
		o.Metrics.IncRetries()
		slog.Warn("retrying fetch",
			slog.String("target", target),
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
	}
	return p
}

// apply folds batch results into the progress snapshot in slot order.
// Runs on the orchestrator goroutine only.
func (o *Orchestrator) apply(results []collectionResult, progress *models.ScrapeProgress, summary *Summary) {
	for _, res := range results {
		summary.Rejected.Merge(res.rejects)
		for reason, n := range res.rejects {
			o.Metrics.AddCardsRejected(reason, n)
		}

		switch res.status {
		case statusProcessed:
			progress.Append(res.cards)
			progress.MarkProcessed(res.ref.ID)
			o.Metrics.IncCollection("processed")
			o.Metrics.AddCardsExtracted(len(res.cards))
			slog.Info("collection processed",
				slog.String("collection", res.ref.Name),
				slog.String("id", res.ref.ID),
				slog.Int("cards", len(res.cards)),
				slog.Int("rejected", res.rejects.Total()),
			)
		case statusSkipped:
			progress.MarkSkipped(res.ref.ID)
			o.Metrics.IncCollection("skipped")
			summary.SkipReasons[res.reason]++
			slog.Warn("collection skipped",
				slog.String("collection", res.ref.Name),
				slog.String("id", res.ref.ID),
				slog.String("reason", res.reason),
			)
		}
	}
}

func (o *Orchestrator) writeOutput(out *models.ScrapeOutput) error {
	writer, err := output.NewWriter(o.cfg.OutputFormat, o.cfg.OutputFile)
	if err != nil {
		return fmt.Errorf("create writer: %w", err)
	}
	if err := writer.Write(out); err != nil {
		writer.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := writer.Validate(); err != nil {
		writer.Close()
		return fmt.Errorf("validate output: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	slog.Info("output written",
		slog.String("path", o.cfg.OutputFile),
		slog.Int("cards", out.TotalCards),
	)
	return nil
}

// abort writes the reduced partial artifact best-effort and reports the
// failure. The checkpoint stays on disk for a resume.
func (o *Orchestrator) abort(progress *models.ScrapeProgress, cause error) error {
	slog.Error("aborting run", slog.Any("error", cause))

	partial := &models.PartialOutput{
		LastUpdated:          time.Now().UTC().Format(time.RFC3339),
		TotalCards:           len(progress.Cards),
		CollectionsProcessed: progress.CollectionsProcessed,
		IsPartial:            true,
		Cards:                progress.Cards,
	}
	if err := output.WritePartial(o.cfg.OutputFile, partial); err != nil {
		slog.Error("partial output write failed", slog.Any("error", err))
	} else {
		slog.Info("partial output written",
			slog.String("path", o.cfg.OutputFile),
			slog.Int("cards", partial.TotalCards),
		)
	}
	return fmt.Errorf("run aborted: %w", cause)
}

func completion(progress *models.ScrapeProgress, total int) string {
	if total <= 0 {
		return "0.0"
	}
	handled := progress.CollectionsProcessed + progress.CollectionsSkipped
	return fmt.Sprintf("%.1f", float64(handled)/float64(total)*100)
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
