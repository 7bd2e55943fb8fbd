package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Fetcher defaults match the article pages of the PLOS journals.
const (
	DefaultDownloadSelector = "#downloadPdf"
	DefaultTargetAttribute  = "href"
	DefaultDownloadWait     = 10 * time.Second
)

// FetcherConfig controls how the download control is located.
type FetcherConfig struct {
	DownloadSelector string
	TargetAttribute  string
	WaitTimeout      time.Duration
}

// ArticleFetcher resolves an article's PDF link with a Navigator and pulls the
// bytes through a Downloader.
type ArticleFetcher struct {
	nav        Navigator
	downloader Downloader
	cfg        FetcherConfig
	logger     *zap.Logger
}

// NewArticleFetcher builds a fetcher; zero config fields fall back to defaults.
func NewArticleFetcher(nav Navigator, downloader Downloader, cfg FetcherConfig, logger *zap.Logger) *ArticleFetcher {
	if cfg.DownloadSelector == "" {
		cfg.DownloadSelector = DefaultDownloadSelector
	}
	if cfg.TargetAttribute == "" {
		cfg.TargetAttribute = DefaultTargetAttribute
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultDownloadWait
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArticleFetcher{nav: nav, downloader: downloader, cfg: cfg, logger: logger}
}

// WithNavigator returns a copy of the fetcher bound to another navigator session.
func (f *ArticleFetcher) WithNavigator(nav Navigator) *ArticleFetcher {
	clone := *f
	clone.nav = nav
	return &clone
}

// Fetch returns the PDF behind articleURL as a seekable reader. Every failure is
// logged and wraps ErrFetchFailed; callers skip the article.
func (f *ArticleFetcher) Fetch(ctx context.Context, articleURL string) (*bytes.Reader, error) {
	body, err := f.fetch(ctx, articleURL)
	if err != nil {
		f.logger.Error("failed to download PDF", zap.String("url", articleURL), zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, articleURL, err)
	}
	return bytes.NewReader(body), nil
}

func (f *ArticleFetcher) fetch(ctx context.Context, articleURL string) ([]byte, error) {
	if err := f.nav.Load(ctx, articleURL); err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}
	control, err := f.nav.WaitForElement(ctx, f.cfg.DownloadSelector, f.cfg.WaitTimeout)
	if err != nil {
		return nil, fmt.Errorf("wait for download control: %w", err)
	}
	target, err := control.Attribute(ctx, f.cfg.TargetAttribute)
	if err != nil {
		return nil, fmt.Errorf("read download target: %w", err)
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, ErrNoDownloadTarget
	}
	f.logger.Info("found PDF link", zap.String("url", articleURL), zap.String("pdf_url", target))

	transfer, err := f.downloader.Download(ctx, target)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", target, err)
	}
	if !transfer.Success() {
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrStatus, transfer.StatusCode, target)
	}
	return transfer.Body, nil
}
