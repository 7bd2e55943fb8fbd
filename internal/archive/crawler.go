package archive

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/metrics"
)

// Crawler defaults match the search result markup of the PLOS journal search.
const (
	DefaultResultSelector = "dt.search-results-title a"
	DefaultLinkAttribute  = "href"
	DefaultPageTimeout    = 10 * time.Second
)

// StopKind tags why a crawl ended.
type StopKind string

// Termination kinds reported by ResultSet.Termination.
const (
	// StopExhausted: a page rendered zero result elements, or MaxPages was reached.
	StopExhausted StopKind = "exhausted"
	// StopTimeout: no result element appeared within the page timeout.
	StopTimeout StopKind = "timeout"
	// StopNavigation: loading the page or reading an element failed.
	StopNavigation StopKind = "navigation"
	// StopCanceled: the context was canceled mid-crawl.
	StopCanceled StopKind = "canceled"
	// StopConsumer: the caller stopped ranging over the sequence.
	StopConsumer StopKind = "consumer"
)

// Termination describes how the most recent pass over a ResultSet ended.
type Termination struct {
	Kind StopKind
	// Page is the page number being processed when the crawl stopped.
	Page int
	// Pages is the number of pages that yielded references.
	Pages int
	Err   error
}

// Clean reports whether the crawl ended without any navigation problem.
func (t Termination) Clean() bool {
	return t.Kind == StopExhausted || t.Kind == StopConsumer
}

// CrawlerConfig controls how search pages are read.
type CrawlerConfig struct {
	ResultSelector string
	LinkAttribute  string
	PageTimeout    time.Duration
	// MaxPages caps the number of pages visited per pass; 0 means unbounded.
	MaxPages int
}

// ResultSetCrawler paginates a search endpoint with a Navigator.
type ResultSetCrawler struct {
	nav    Navigator
	cfg    CrawlerConfig
	logger *zap.Logger
}

// NewResultSetCrawler builds a crawler; zero config fields fall back to defaults.
func NewResultSetCrawler(nav Navigator, cfg CrawlerConfig, logger *zap.Logger) *ResultSetCrawler {
	if cfg.ResultSelector == "" {
		cfg.ResultSelector = DefaultResultSelector
	}
	if cfg.LinkAttribute == "" {
		cfg.LinkAttribute = DefaultLinkAttribute
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultPageTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultSetCrawler{nav: nav, cfg: cfg, logger: logger}
}

// ResultSet is a lazily evaluated crawl over baseURLPrefix+page for page >= startPage.
type ResultSet struct {
	crawler   *ResultSetCrawler
	baseURL   string
	startPage int

	mu   sync.Mutex
	term Termination
}

// Crawl prepares a crawl. Nothing is loaded until All is ranged over.
func (c *ResultSetCrawler) Crawl(baseURLPrefix string, startPage int) *ResultSet {
	if startPage < 1 {
		startPage = 1
	}
	return &ResultSet{crawler: c, baseURL: baseURLPrefix, startPage: startPage}
}

// All yields every article reference in page order. Each range starts over at
// the start page; the sequence ends at the first page that produces no results
// or fails to load, and the reason is available from Termination afterwards.
func (rs *ResultSet) All(ctx context.Context) iter.Seq[ArticleReference] {
	return func(yield func(ArticleReference) bool) {
		term := rs.crawler.walk(ctx, rs.baseURL, rs.startPage, yield)
		rs.mu.Lock()
		rs.term = term
		rs.mu.Unlock()
		rs.crawler.logTermination(rs.baseURL, term)
		metrics.ObserveCrawlTermination(string(term.Kind))
	}
}

// Termination returns the outcome of the most recent pass over All.
func (rs *ResultSet) Termination() Termination {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.term
}

func (c *ResultSetCrawler) walk(
	ctx context.Context,
	baseURL string,
	page int,
	yield func(ArticleReference) bool,
) Termination {
	visited := 0
	for {
		if err := ctx.Err(); err != nil {
			return Termination{Kind: StopCanceled, Page: page, Pages: visited, Err: err}
		}
		if c.cfg.MaxPages > 0 && visited >= c.cfg.MaxPages {
			return Termination{Kind: StopExhausted, Page: page, Pages: visited}
		}

		c.logger.Info("navigating to result page", zap.Int("page", page))
		refs, term := c.readPage(ctx, baseURL, page)
		if term != nil {
			term.Pages = visited
			return *term
		}
		visited++
		metrics.ObserveCrawlPage()

		// Every reference of the page is read before yielding: consumers may
		// navigate the shared session away from this page.
		for _, ref := range refs {
			if !yield(ref) {
				// A consumer that quits because its context ended canceled the crawl.
				if err := ctx.Err(); err != nil {
					return Termination{Kind: StopCanceled, Page: page, Pages: visited, Err: err}
				}
				return Termination{Kind: StopConsumer, Page: page, Pages: visited}
			}
		}
		page++
	}
}

// readPage returns the references of one page, or a non-nil Termination when
// the crawl must stop at this page.
func (c *ResultSetCrawler) readPage(ctx context.Context, baseURL string, page int) ([]ArticleReference, *Termination) {
	pageURL := baseURL + strconv.Itoa(page)
	if err := c.nav.Load(ctx, pageURL); err != nil {
		return nil, c.stop(ctx, page, fmt.Errorf("load %s: %w", pageURL, err))
	}
	if _, err := c.nav.WaitForElement(ctx, c.cfg.ResultSelector, c.cfg.PageTimeout); err != nil {
		return nil, c.stop(ctx, page, fmt.Errorf("wait for results on %s: %w", pageURL, err))
	}
	elements, err := c.nav.FindElements(ctx, c.cfg.ResultSelector)
	if err != nil {
		return nil, c.stop(ctx, page, fmt.Errorf("find results on %s: %w", pageURL, err))
	}
	if len(elements) == 0 {
		return nil, &Termination{Kind: StopExhausted, Page: page}
	}

	refs := make([]ArticleReference, 0, len(elements))
	for i, el := range elements {
		href, err := el.Attribute(ctx, c.cfg.LinkAttribute)
		if err != nil {
			return nil, c.stop(ctx, page, fmt.Errorf("read link of result %d on %s: %w", i, pageURL, err))
		}
		title, err := el.Text(ctx)
		if err != nil {
			return nil, c.stop(ctx, page, fmt.Errorf("read title of result %d on %s: %w", i, pageURL, err))
		}
		refs = append(refs, ArticleReference{URL: href, Title: strings.TrimSpace(title)})
	}
	return refs, nil
}

func (c *ResultSetCrawler) stop(ctx context.Context, page int, err error) *Termination {
	kind := StopNavigation
	switch {
	case ctx.Err() != nil:
		kind = StopCanceled
	case errors.Is(err, ErrElementTimeout):
		kind = StopTimeout
	}
	return &Termination{Kind: kind, Page: page, Err: err}
}

func (c *ResultSetCrawler) logTermination(baseURL string, term Termination) {
	fields := []zap.Field{
		zap.String("base_url", baseURL),
		zap.String("kind", string(term.Kind)),
		zap.Int("page", term.Page),
		zap.Int("pages", term.Pages),
	}
	switch term.Kind {
	case StopExhausted, StopConsumer:
		c.logger.Info("crawl finished", fields...)
	case StopTimeout:
		c.logger.Warn("no results appeared before timeout; treating as end of results",
			append(fields, zap.Error(term.Err))...)
	default:
		c.logger.Error("crawl aborted", append(fields, zap.Error(term.Err))...)
	}
}
