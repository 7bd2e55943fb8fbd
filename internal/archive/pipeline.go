package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/clock/system"
	"github.com/JakeFAU/article-archiver/internal/hash/sha256"
	"github.com/JakeFAU/article-archiver/internal/id/uuid"
	"github.com/JakeFAU/article-archiver/internal/metrics"
)

// PipelineDeps are the collaborators of a Pipeline. Navigator is the session
// shared by Crawler (and by Fetcher in sequential mode); the pipeline closes it
// when Run returns.
type PipelineDeps struct {
	Navigator Navigator
	Crawler   *ResultSetCrawler
	Fetcher   *ArticleFetcher
	Contents  ContentStore
	Records   RecordStore
	// Optional. Publisher is only used when PipelineConfig.Topic is set.
	Publisher Publisher
	// NavigatorFactory opens worker sessions when PipelineConfig.Workers > 1.
	NavigatorFactory NavigatorFactory
	Clock            Clock
	IDs              IDGenerator
	Hasher           Hasher
	// Tracer and Meter default to the global OpenTelemetry providers.
	Tracer trace.Tracer
	Meter  metric.Meter
}

const instrumentationName = "github.com/JakeFAU/article-archiver/internal/archive"

// PipelineConfig controls Pipeline behavior.
type PipelineConfig struct {
	Workers int
	Topic   string
}

// RunSummary tallies one archive run.
type RunSummary struct {
	Discovered  int
	Archived    int
	FetchFailed int
	StoreFailed int
	Termination Termination
}

// Pipeline orchestrates crawler, fetcher and stores for each discovered article.
type Pipeline struct {
	deps     PipelineDeps
	cfg      PipelineConfig
	logger   *zap.Logger
	duration metric.Float64Histogram
}

// NewPipeline validates deps and fills in the system clock, UUIDv7 record IDs
// and SHA-256 checksums where none were supplied.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, logger *zap.Logger) (*Pipeline, error) {
	switch {
	case deps.Navigator == nil:
		return nil, errors.New("navigator is required")
	case deps.Crawler == nil:
		return nil, errors.New("crawler is required")
	case deps.Fetcher == nil:
		return nil, errors.New("fetcher is required")
	case deps.Contents == nil:
		return nil, errors.New("content store is required")
	case deps.Records == nil:
		return nil, errors.New("record store is required")
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > 1 && deps.NavigatorFactory == nil {
		return nil, errors.New("navigator factory is required when workers > 1")
	}
	if deps.Clock == nil {
		deps.Clock = system.New()
	}
	if deps.IDs == nil {
		deps.IDs = uuid.New()
	}
	if deps.Hasher == nil {
		deps.Hasher = sha256.New()
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer(instrumentationName)
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter(instrumentationName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	duration, err := deps.Meter.Float64Histogram("archiver.article.duration",
		metric.WithUnit("s"),
		metric.WithDescription("Time spent fetching and storing one article."),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return &Pipeline{deps: deps, cfg: cfg, logger: logger, duration: duration}, nil
}

// Run crawls baseURLPrefix from startPage and archives every article found.
// Per-article failures are counted in the summary and never abort the run.
// The primary navigator is closed on every exit path.
func (p *Pipeline) Run(ctx context.Context, baseURLPrefix string, startPage int) (RunSummary, error) {
	defer p.closeNavigator(p.deps.Navigator, "primary")

	ctx, span := p.deps.Tracer.Start(ctx, "archive.Run", trace.WithAttributes(
		attribute.String("archive.base_url", baseURLPrefix),
		attribute.Int("archive.start_page", startPage),
		attribute.Int("archive.workers", p.cfg.Workers),
	))
	defer span.End()

	p.logger.Info("starting archive run",
		zap.String("base_url", baseURLPrefix),
		zap.Int("start_page", startPage),
		zap.Int("workers", p.cfg.Workers),
	)

	results := p.deps.Crawler.Crawl(baseURLPrefix, startPage)
	t := &tally{}
	if p.cfg.Workers == 1 {
		for ref := range results.All(ctx) {
			t.discovered()
			t.record(p.archive(ctx, p.deps.Fetcher, ref))
		}
	} else if err := p.runPool(ctx, results, t); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "worker pool failed")
		return t.summary(results.Termination()), err
	}

	summary := t.summary(results.Termination())
	span.SetAttributes(
		attribute.Int("archive.discovered", summary.Discovered),
		attribute.Int("archive.archived", summary.Archived),
		attribute.Int("archive.fetch_failed", summary.FetchFailed),
		attribute.Int("archive.store_failed", summary.StoreFailed),
		attribute.String("archive.termination", string(summary.Termination.Kind)),
	)
	p.logger.Info("archive run finished",
		zap.Int("discovered", summary.Discovered),
		zap.Int("archived", summary.Archived),
		zap.Int("fetch_failed", summary.FetchFailed),
		zap.Int("store_failed", summary.StoreFailed),
		zap.String("termination", string(summary.Termination.Kind)),
	)
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "canceled")
		return summary, fmt.Errorf("archive run canceled: %w", err)
	}
	return summary, nil
}

// runPool fans references out to workers that each own an exclusive navigator.
func (p *Pipeline) runPool(ctx context.Context, results *ResultSet, t *tally) error {
	navs := make([]Navigator, 0, p.cfg.Workers)
	for i := 0; i < p.cfg.Workers; i++ {
		nav, err := p.deps.NavigatorFactory(ctx)
		if err != nil {
			for j, opened := range navs {
				p.closeNavigator(opened, fmt.Sprintf("worker-%d", j))
			}
			return fmt.Errorf("open navigator for worker %d: %w", i, err)
		}
		navs = append(navs, nav)
	}

	refs := make(chan ArticleReference)
	var wg sync.WaitGroup
	for i, nav := range navs {
		wg.Add(1)
		go func(index int, nav Navigator) {
			defer wg.Done()
			defer p.closeNavigator(nav, fmt.Sprintf("worker-%d", index))
			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			fetcher := p.deps.Fetcher.WithNavigator(nav)
			for ref := range refs {
				t.record(p.archive(ctx, fetcher, ref))
			}
		}(i, nav)
	}

crawl:
	for ref := range results.All(ctx) {
		t.discovered()
		select {
		case refs <- ref:
		case <-ctx.Done():
			break crawl
		}
	}
	close(refs)
	wg.Wait()
	return nil
}

type outcome string

func (p *Pipeline) archive(ctx context.Context, fetcher *ArticleFetcher, ref ArticleReference) (result outcome) {
	ctx, span := p.deps.Tracer.Start(ctx, "archive.Article", trace.WithAttributes(
		attribute.String("article.url", ref.URL),
		attribute.String("article.title", ref.Title),
	))
	start := time.Now()
	defer func() {
		span.SetAttributes(attribute.String("archive.outcome", string(result)))
		p.duration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("outcome", string(result))))
		span.End()
	}()

	content, err := fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "fetch failed")
		metrics.ObserveArticle(ref.URL, metrics.OutcomeFetchFailed, 0)
		return metrics.OutcomeFetchFailed
	}
	record, err := p.store(ctx, ref, content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store failed")
		p.logger.Error("failed to store PDF for article",
			zap.String("url", ref.URL),
			zap.String("title", ref.Title),
			zap.Error(err),
		)
		metrics.ObserveArticle(ref.URL, metrics.OutcomeStoreFailed, 0)
		return metrics.OutcomeStoreFailed
	}
	span.SetAttributes(attribute.String("archive.record_id", record.ID))
	metrics.ObserveArticle(ref.URL, metrics.OutcomeArchived, record.SizeBytes)
	p.publish(ctx, record)
	return metrics.OutcomeArchived
}

// store writes content first and the record second. If the record cannot be
// written the content is deleted again so no unreferenced blob is left behind.
func (p *Pipeline) store(ctx context.Context, ref ArticleReference, content io.Reader) (ArtifactRecord, error) {
	body, err := io.ReadAll(content)
	if err != nil {
		return ArtifactRecord{}, fmt.Errorf("read content: %w", err)
	}
	checksum, err := p.deps.Hasher.Hash(body)
	if err != nil {
		return ArtifactRecord{}, fmt.Errorf("hash content: %w", err)
	}

	meta := ContentMetadata{
		Filename:    SanitizeFilename(ref.Title) + ".pdf",
		ContentType: PDFContentType,
		SourceURL:   ref.URL,
		Checksum:    checksum,
	}
	contentID, err := p.deps.Contents.Put(ctx, bytes.NewReader(body), meta)
	if err != nil {
		return ArtifactRecord{}, fmt.Errorf("put content: %w", err)
	}
	p.logger.Info("stored PDF for article",
		zap.String("title", ref.Title),
		zap.String("content_id", contentID),
	)

	recordID, err := p.deps.IDs.NewID()
	if err != nil {
		p.discard(ctx, contentID, ref)
		return ArtifactRecord{}, fmt.Errorf("generate record id: %w", err)
	}
	record := ArtifactRecord{
		ID:        recordID,
		URL:       ref.URL,
		Title:     ref.Title,
		ContentID: contentID,
		Filename:  meta.Filename,
		Checksum:  checksum,
		SizeBytes: int64(len(body)),
		Timestamp: p.deps.Clock.Now(),
	}
	if err := p.deps.Records.InsertRecord(ctx, record); err != nil {
		p.discard(ctx, contentID, ref)
		return ArtifactRecord{}, fmt.Errorf("insert record: %w", err)
	}
	p.logger.Info("stored metadata for article",
		zap.String("title", ref.Title),
		zap.String("record_id", recordID),
	)
	return record, nil
}

func (p *Pipeline) discard(ctx context.Context, contentID string, ref ArticleReference) {
	// The compensating delete runs even when ctx is already canceled.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := p.deps.Contents.Delete(cleanupCtx, contentID); err != nil {
		p.logger.Error("orphaned content left in store",
			zap.String("content_id", contentID),
			zap.String("url", ref.URL),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) publish(ctx context.Context, record ArtifactRecord) {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return
	}
	event := ArchivedEvent{
		RecordID:  record.ID,
		ContentID: record.ContentID,
		URL:       record.URL,
		Title:     record.Title,
		Filename:  record.Filename,
		Checksum:  record.Checksum,
		Timestamp: record.Timestamp.Format(time.RFC3339),
	}
	if _, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, event); err != nil {
		p.logger.Warn("publish archived event failed",
			zap.String("record_id", record.ID),
			zap.String("topic", p.cfg.Topic),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) closeNavigator(nav Navigator, name string) {
	if err := nav.Close(); err != nil {
		p.logger.Warn("failed to close navigator", zap.String("navigator", name), zap.Error(err))
	}
}

type tally struct {
	mu sync.Mutex
	s  RunSummary
}

func (t *tally) discovered() {
	t.mu.Lock()
	t.s.Discovered++
	t.mu.Unlock()
}

func (t *tally) record(o outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case metrics.OutcomeArchived:
		t.s.Archived++
	case metrics.OutcomeFetchFailed:
		t.s.FetchFailed++
	case metrics.OutcomeStoreFailed:
		t.s.StoreFailed++
	}
}

func (t *tally) summary(term Termination) RunSummary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.s
	s.Termination = term
	return s
}
