// Package transfer implements archive.Downloader using gocolly.
package transfer

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/policy/ratelimit"
)

// Defaults applied when Config leaves a field empty.
const (
	DefaultTimeout     = 60 * time.Second
	DefaultMaxBodySize = 64 << 20
	DefaultUserAgent   = "article-archiver/1.0"
)

// Config controls collector behavior.
type Config struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int           `mapstructure:"max_body_size"`
	// RateLimit spaces out requests to the same host.
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
	// Headers are added to every download request.
	Headers http.Header `mapstructure:"-"`
}

// Downloader performs direct GETs through a cloned Colly collector per call.
type Downloader struct {
	cfg           Config
	baseCollector *colly.Collector
	limiter       *ratelimit.Limiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Downloader.
func New(cfg Config) *Downloader {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}

	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	// Clones share the HTTP backend, so the timeout is set once here.
	c.SetRequestTimeout(cfg.Timeout)
	// PDF links are followed regardless of robots.txt and may repeat across runs.
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	// Non-2xx responses are reported through Transfer.StatusCode, not as errors.
	c.ParseHTTPErrorResponse = true

	return &Downloader{cfg: cfg, baseCollector: c, limiter: ratelimit.New(cfg.RateLimit)}
}

// Download fetches url. Transport failures are errors; HTTP error statuses are
// returned in the Transfer for the caller to judge.
func (d *Downloader) Download(ctx context.Context, url string) (archive.Transfer, error) {
	var (
		result   archive.Transfer
		fetchErr error
	)
	if err := d.limiter.Wait(ctx, url); err != nil {
		return archive.Transfer{}, err
	}
	collector := d.buildCollector(ctx, &result, &fetchErr)
	if err := d.runCollector(ctx, collector, url, &fetchErr); err != nil {
		return archive.Transfer{}, err
	}
	if result.StatusCode == 0 {
		return archive.Transfer{}, fmt.Errorf("colly returned no response for %s", url)
	}
	return result, nil
}

func (d *Downloader) buildCollector(ctx context.Context, result *archive.Transfer, fetchErr *error) *colly.Collector {
	collector := d.baseCollector.Clone()
	collector.UserAgent = d.cfg.UserAgent
	// One byte past the cap tells a truncated body from one that fits exactly.
	collector.MaxBodySize = d.cfg.MaxBodySize + 1
	collector.IgnoreRobotsTxt = true
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.Context = ctx

	d.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (d *Downloader) configureCollectorHooks(hooks collectorHooks, result *archive.Transfer, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		d.copyHeaders(r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		if err := d.checkBodySize(r); err != nil {
			*fetchErr = err
			return
		}
		*result = archive.Transfer{
			URL:         r.Request.URL.String(),
			StatusCode:  r.StatusCode,
			ContentType: r.Headers.Get("Content-Type"),
			Body:        append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		*fetchErr = err
	})
}

func (d *Downloader) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("download canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

func (d *Downloader) checkBodySize(r *colly.Response) error {
	limit := d.cfg.MaxBodySize
	if cl := r.Headers.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil && n > int64(limit) {
			return fmt.Errorf("%w: %s declares %d bytes, limit %d", archive.ErrBodyTooLarge, r.Request.URL, n, limit)
		}
	}
	if len(r.Body) > limit {
		return fmt.Errorf("%w: %s exceeds %d bytes", archive.ErrBodyTooLarge, r.Request.URL, limit)
	}
	return nil
}

func (d *Downloader) copyHeaders(r *colly.Request) {
	for key, values := range d.cfg.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
