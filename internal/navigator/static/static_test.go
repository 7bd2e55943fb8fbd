package static_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/navigator/static"
	"github.com/JakeFAU/article-archiver/internal/transfer"
)

const searchPage = `<html><body><dl>
<dt class="search-results-title"><a href="/article?id=1"> First   paper </a></dt>
<dt class="search-results-title"><a href="https://other.example/article?id=2">Second</a></dt>
</dl></body></html>`

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, searchPage)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestLoadAndFindResolvesLinks(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	nav := static.New(transfer.New(transfer.Config{}))
	ctx := context.Background()

	require.NoError(t, nav.Load(ctx, srv.URL+"/search?page=1"))

	first, err := nav.WaitForElement(ctx, archive.DefaultResultSelector, 0)
	require.NoError(t, err)
	href, err := first.Attribute(ctx, "href")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/article?id=1", href)

	all, err := nav.FindElements(ctx, archive.DefaultResultSelector)
	require.NoError(t, err)
	require.Len(t, all, 2)

	text, err := all[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, " First   paper ", text)

	href, err = all[1].Attribute(ctx, "href")
	require.NoError(t, err)
	assert.Equal(t, "https://other.example/article?id=2", href)

	missing, err := all[1].Attribute(ctx, "data-x")
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestMissingElementTimesOutImmediately(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	nav := static.New(transfer.New(transfer.Config{}))
	require.NoError(t, nav.Load(context.Background(), srv.URL+"/search"))

	_, err := nav.WaitForElement(context.Background(), "#downloadPdf", 0)
	assert.ErrorIs(t, err, archive.ErrElementTimeout)

	none, err := nav.FindElements(context.Background(), "#downloadPdf")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLoadErrorStatus(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	nav := static.New(transfer.New(transfer.Config{}))

	err := nav.Load(context.Background(), srv.URL+"/gone")
	assert.ErrorIs(t, err, archive.ErrStatus)

	_, err = nav.FindElements(context.Background(), "a")
	assert.Error(t, err, "no page is loaded after a failed load")
}

func TestCloseAndFactory(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	nav, err := static.Factory(transfer.New(transfer.Config{}))(context.Background())
	require.NoError(t, err)
	require.NoError(t, nav.Load(context.Background(), srv.URL+"/search"))
	require.NoError(t, nav.Close())

	_, err = nav.WaitForElement(context.Background(), "a", 0)
	assert.Error(t, err)
}

func TestLoadRejectsOversizedPage(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	nav := static.New(transfer.New(transfer.Config{MaxBodySize: 64}))

	err := nav.Load(context.Background(), srv.URL+"/search?page=1")
	require.ErrorIs(t, err, archive.ErrBodyTooLarge)
	_, err = nav.FindElements(context.Background(), archive.DefaultResultSelector)
	require.Error(t, err)
}
