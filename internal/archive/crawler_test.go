package archive_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/article-archiver/internal/archive"
)

func collect(t *testing.T, rs *archive.ResultSet) []archive.ArticleReference {
	t.Helper()
	return slices.Collect(rs.All(context.Background()))
}

func TestCrawlYieldsPagesInOrderUntilEmptyPage(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a", "b")
	pages.addSearchPage(2, "c")
	pages.addSearchPage(3, "d", "e", "f")
	nav := newFakeNavigator(pages)

	rs := archive.NewResultSetCrawler(nav, archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	refs := collect(t, rs)

	want := []archive.ArticleReference{
		{URL: articleURL("a"), Title: "a"},
		{URL: articleURL("b"), Title: "b"},
		{URL: articleURL("c"), Title: "c"},
		{URL: articleURL("d"), Title: "d"},
		{URL: articleURL("e"), Title: "e"},
		{URL: articleURL("f"), Title: "f"},
	}
	assert.Equal(t, want, refs)
	assert.Equal(t, []string{
		searchPrefix + "1", searchPrefix + "2", searchPrefix + "3", searchPrefix + "4",
	}, nav.loaded())

	term := rs.Termination()
	assert.Equal(t, archive.StopTimeout, term.Kind)
	assert.Equal(t, 4, term.Page)
	assert.Equal(t, 3, term.Pages)
	assert.ErrorIs(t, term.Err, archive.ErrElementTimeout)
}

func TestCrawlZeroResultsIsExhausted(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a")
	pages[searchPrefix+"2"] = fakePage{emptyAfterWait: true}

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	require.Len(t, collect(t, rs), 1)

	term := rs.Termination()
	assert.Equal(t, archive.StopExhausted, term.Kind)
	assert.True(t, term.Clean())
	assert.NoError(t, term.Err)
}

func TestCrawlTimeoutOnThirdPageKeepsEarlierArticles(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a", "b")
	pages.addSearchPage(2, "c", "d")
	pages.addSearchPage(4, "never")

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	refs := collect(t, rs)

	require.Len(t, refs, 4)
	assert.Equal(t, "d", refs[3].Title)
	assert.Equal(t, archive.StopTimeout, rs.Termination().Kind)
	assert.Equal(t, 3, rs.Termination().Page)
}

func TestCrawlNavigationFailureAbortsWholeCrawl(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a")
	pages[searchPrefix+"2"] = fakePage{loadErr: errBoom}
	pages.addSearchPage(3, "b")

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	refs := collect(t, rs)

	require.Len(t, refs, 1)
	term := rs.Termination()
	assert.Equal(t, archive.StopNavigation, term.Kind)
	assert.False(t, term.Clean())
	assert.ErrorIs(t, term.Err, errBoom)
}

func TestCrawlElementReadFailureIsNavigationStop(t *testing.T) {
	t.Parallel()

	pages := site{
		searchPrefix + "1": {elements: map[string][]fakeElement{
			resultSelector: {{attrErr: errBoom}},
		}},
	}
	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)

	assert.Empty(t, collect(t, rs))
	assert.Equal(t, archive.StopNavigation, rs.Termination().Kind)
}

func TestCrawlRestartsFromStartPageOnEachRange(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(2, "a")
	pages.addSearchPage(3, "b")
	nav := newFakeNavigator(pages)

	rs := archive.NewResultSetCrawler(nav, archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 2)
	first := collect(t, rs)
	second := collect(t, rs)

	assert.Equal(t, first, second)
	assert.Equal(t, searchPrefix+"2", nav.loaded()[0])
	assert.Equal(t, searchPrefix+"2", nav.loaded()[3])
}

func TestCrawlConsumerBreakStopsPaging(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a", "b")
	pages.addSearchPage(2, "c")
	nav := newFakeNavigator(pages)

	rs := archive.NewResultSetCrawler(nav, archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	for ref := range rs.All(context.Background()) {
		if ref.Title == "a" {
			break
		}
	}

	assert.Equal(t, archive.StopConsumer, rs.Termination().Kind)
	assert.Equal(t, []string{searchPrefix + "1"}, nav.loaded())
}

func TestCrawlConsumerQuittingOnCancellationIsCanceled(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	for range rs.All(ctx) {
		cancel()
		break
	}

	assert.Equal(t, archive.StopCanceled, rs.Termination().Kind)
	assert.ErrorIs(t, rs.Termination().Err, context.Canceled)
}

func TestCrawlMaxPagesAndStartPageClamp(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a")
	pages.addSearchPage(2, "b")
	pages.addSearchPage(3, "c")

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{MaxPages: 2}, nil).Crawl(searchPrefix, 0)
	refs := collect(t, rs)

	assert.Len(t, refs, 2)
	assert.Equal(t, archive.StopExhausted, rs.Termination().Kind)
	assert.Equal(t, 2, rs.Termination().Pages)
}

func TestCrawlCanceledContext(t *testing.T) {
	t.Parallel()

	pages := site{}
	pages.addSearchPage(1, "a")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rs := archive.NewResultSetCrawler(newFakeNavigator(pages), archive.CrawlerConfig{}, nil).Crawl(searchPrefix, 1)
	refs := slices.Collect(rs.All(ctx))

	assert.Empty(t, refs)
	assert.Equal(t, archive.StopCanceled, rs.Termination().Kind)
	assert.True(t, errors.Is(rs.Termination().Err, context.Canceled))
}
