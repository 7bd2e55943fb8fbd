// Package archive implements the crawl-and-archive pipeline for research articles.
//
// The package is organized around four components that are wired together by the
// caller through explicit dependencies:
//
//   - ResultSetCrawler pages through a search endpoint with a Navigator and yields
//     ArticleReference values lazily, reporting how the walk ended as a Termination.
//   - ArticleFetcher opens one article page, resolves its download control and pulls
//     the PDF bytes through a Downloader that bypasses the browser.
//   - Pipeline drives crawler, fetcher, ContentStore and RecordStore for every
//     discovered article, optionally across a pool of exclusive navigators.
//   - Retriever exports a stored artifact back to a local directory by content ID.
//
// Browser drivers, network transfer and storage backends live in sibling packages
// (internal/navigator, internal/transfer, internal/storage) and satisfy the
// interfaces declared in interfaces.go.
package archive
