// Package static implements archive.Navigator over plain HTTP responses parsed
// with goquery. It suits result and article pages that render server-side.
package static

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

// Navigator holds the last loaded document. It is not safe for concurrent use.
type Navigator struct {
	downloader archive.Downloader
	doc        *goquery.Document
	base       *url.URL
}

// New returns a Navigator that loads pages through downloader.
func New(downloader archive.Downloader) *Navigator {
	return &Navigator{downloader: downloader}
}

// Factory returns a factory of navigators sharing downloader.
func Factory(downloader archive.Downloader) archive.NavigatorFactory {
	return func(context.Context) (archive.Navigator, error) {
		return New(downloader), nil
	}
}

// Load fetches and parses pageURL.
func (n *Navigator) Load(ctx context.Context, pageURL string) error {
	n.doc, n.base = nil, nil

	t, err := n.downloader.Download(ctx, pageURL)
	if err != nil {
		return fmt.Errorf("load %s: %w", pageURL, err)
	}
	if !t.Success() {
		return fmt.Errorf("%w: HTTP %d loading %s", archive.ErrStatus, t.StatusCode, pageURL)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(t.Body))
	if err != nil {
		return fmt.Errorf("parse %s: %w", pageURL, err)
	}
	final := t.URL
	if final == "" {
		final = pageURL
	}
	base, err := url.Parse(final)
	if err != nil {
		return fmt.Errorf("parse page url %s: %w", final, err)
	}
	n.doc, n.base = doc, base
	return nil
}

// WaitForElement returns the first match. A static page cannot change, so a
// missing element times out immediately.
func (n *Navigator) WaitForElement(_ context.Context, selector string, _ time.Duration) (archive.Element, error) {
	if n.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	sel := n.doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", archive.ErrElementTimeout, selector)
	}
	return &element{sel: sel, base: n.base}, nil
}

// FindElements returns every match in document order.
func (n *Navigator) FindElements(_ context.Context, selector string) ([]archive.Element, error) {
	if n.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	matches := n.doc.Find(selector)
	out := make([]archive.Element, 0, matches.Length())
	matches.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &element{sel: s, base: n.base})
	})
	return out, nil
}

// Close drops the loaded document.
func (n *Navigator) Close() error {
	n.doc, n.base = nil, nil
	return nil
}

type element struct {
	sel  *goquery.Selection
	base *url.URL
}

// Attribute returns the attribute value; href and src resolve against the page URL.
func (e *element) Attribute(_ context.Context, name string) (string, error) {
	value, ok := e.sel.Attr(name)
	if !ok {
		return "", nil
	}
	if name != "href" && name != "src" {
		return value, nil
	}
	ref, err := url.Parse(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("parse %s %q: %w", name, value, err)
	}
	return e.base.ResolveReference(ref).String(), nil
}

func (e *element) Text(_ context.Context) (string, error) {
	return e.sel.Text(), nil
}
