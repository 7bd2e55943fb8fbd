package archive_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

const (
	resultSelector   = "dt.search-results-title a"
	downloadSelector = "#downloadPdf"
	searchPrefix     = "http://x/search?page="
)

type fakeElement struct {
	attrs   map[string]string
	text    string
	attrErr error
}

func (e fakeElement) Attribute(_ context.Context, name string) (string, error) {
	if e.attrErr != nil {
		return "", e.attrErr
	}
	return e.attrs[name], nil
}

func (e fakeElement) Text(_ context.Context) (string, error) {
	return e.text, nil
}

type fakePage struct {
	elements map[string][]fakeElement
	loadErr  error
	// emptyAfterWait lets the wait succeed while the page holds no results.
	emptyAfterWait bool
}

// site is a scripted, read-only set of pages shared by navigators.
type site map[string]fakePage

func (s site) addSearchPage(page int, titles ...string) {
	var els []fakeElement
	for _, title := range titles {
		els = append(els, fakeElement{
			attrs: map[string]string{"href": articleURL(title)},
			text:  "  " + title + "\n",
		})
	}
	s[searchPrefix+strconv.Itoa(page)] = fakePage{elements: map[string][]fakeElement{resultSelector: els}}
}

func (s site) addArticle(title string) {
	s[articleURL(title)] = fakePage{elements: map[string][]fakeElement{
		downloadSelector: {{attrs: map[string]string{"href": pdfURL(title)}}},
	}}
}

func articleURL(title string) string { return "http://x/article/" + title }
func pdfURL(title string) string     { return "http://x/pdf/" + title }

type fakeNavigator struct {
	mu      sync.Mutex
	pages   site
	current string
	loads   []string
	closed  int
}

func newFakeNavigator(pages site) *fakeNavigator {
	return &fakeNavigator{pages: pages}
}

func (n *fakeNavigator) Load(_ context.Context, url string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.loads = append(n.loads, url)
	if page, ok := n.pages[url]; ok && page.loadErr != nil {
		return page.loadErr
	}
	n.current = url
	return nil
}

func (n *fakeNavigator) WaitForElement(_ context.Context, selector string, _ time.Duration) (archive.Element, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	page := n.pages[n.current]
	if page.emptyAfterWait {
		return fakeElement{}, nil
	}
	els := page.elements[selector]
	if len(els) == 0 {
		return nil, fmt.Errorf("%w: %s", archive.ErrElementTimeout, selector)
	}
	return els[0], nil
}

func (n *fakeNavigator) FindElements(_ context.Context, selector string) ([]archive.Element, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []archive.Element
	for _, el := range n.pages[n.current].elements[selector] {
		out = append(out, el)
	}
	return out, nil
}

func (n *fakeNavigator) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed++
	return nil
}

func (n *fakeNavigator) loaded() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.loads...)
}

func (n *fakeNavigator) closeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

type fakeDownloader struct {
	mu        sync.Mutex
	transfers map[string]archive.Transfer
	errs      map[string]error
	calls     []string
}

func newFakeDownloader() *fakeDownloader {
	return &fakeDownloader{
		transfers: make(map[string]archive.Transfer),
		errs:      make(map[string]error),
	}
}

func (d *fakeDownloader) serve(url string, status int, body string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transfers[url] = archive.Transfer{URL: url, StatusCode: status, Body: []byte(body)}
}

func (d *fakeDownloader) Download(_ context.Context, url string) (archive.Transfer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	if err := d.errs[url]; err != nil {
		return archive.Transfer{}, err
	}
	t, ok := d.transfers[url]
	if !ok {
		return archive.Transfer{URL: url, StatusCode: 404}, nil
	}
	return t, nil
}

func (d *fakeDownloader) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

// panickingDownloader simulates an unrecoverable failure inside the run loop.
type panickingDownloader struct{}

func (panickingDownloader) Download(context.Context, string) (archive.Transfer, error) {
	panic("driver crashed")
}

var errBoom = errors.New("boom")
