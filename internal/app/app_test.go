package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/app"
	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/config"
	memorypublisher "github.com/JakeFAU/article-archiver/internal/publisher/memory"
)

// newJournal serves two search pages with three articles; the PDF of the
// third article answers 500.
func newJournal(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var titles []int
		switch r.URL.Query().Get("page") {
		case "1":
			titles = []int{1, 2}
		case "2":
			titles = []int{3}
		}
		fmt.Fprint(w, "<html><body><dl>")
		for _, n := range titles {
			fmt.Fprintf(w, `<dt class="search-results-title"><a href="/article/%d">Paper %d: results?</a></dt>`, n, n)
		}
		fmt.Fprint(w, "</dl></body></html>")
	})
	mux.HandleFunc("/article/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/article/")
		fmt.Fprintf(w, `<html><body><a id="downloadPdf" href="/pdf/%s">PDF</a></body></html>`, n)
	})
	mux.HandleFunc("/pdf/", func(w http.ResponseWriter, r *http.Request) {
		n := strings.TrimPrefix(r.URL.Path, "/pdf/")
		if n == "3" {
			http.Error(w, "unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", archive.PDFContentType)
		fmt.Fprintf(w, "%%PDF-1.7 paper %s", n)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, srv *httptest.Server) config.Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Navigator.Driver = config.DriverStatic
	cfg.Storage.Content = config.BackendMemory
	cfg.Storage.Records = config.BackendMemory
	cfg.Crawl.BaseURL = srv.URL + "/search?page="
	return cfg
}

func TestRunArchivesArticlesEndToEnd(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	pub := memorypublisher.New()

	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.WithPublisher(pub))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	summary, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 2, summary.Archived)
	assert.Equal(t, 1, summary.FetchFailed)
	assert.Equal(t, archive.StopTimeout, summary.Termination.Kind)
	assert.Equal(t, 2, summary.Termination.Pages)

	records, err := a.Records().ListRecords(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	titles := []string{records[0].Title, records[1].Title}
	assert.ElementsMatch(t, []string{"Paper 1: results?", "Paper 2: results?"}, titles)
	for _, rec := range records {
		assert.Equal(t, strings.TrimSuffix(rec.Title, ": results?")+"_ results.pdf", rec.Filename)
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, cfg.PubSub.Topic, msgs[0].Topic)

	out := t.TempDir()
	path, err := a.Retriever().Retrieve(context.Background(), records[0].ContentID, out)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-1.7 paper "))
	assert.Equal(t, filepath.Join(out, records[0].Filename), path)
}

func TestRunWithWorkerPool(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	cfg.Pipeline.Workers = 3

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	summary, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Discovered)
	assert.Equal(t, 2, summary.Archived)
	assert.Equal(t, 1, summary.FetchFailed)
}

func TestRunPersistsToLocalAndSQLite(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	dir := t.TempDir()
	cfg.Storage.Content = config.BackendLocal
	cfg.Storage.Local.BaseDir = filepath.Join(dir, "pdfs")
	cfg.Storage.Records = config.BackendSQLite
	cfg.Storage.SQLite.Path = filepath.Join(dir, "records.db")
	require.NoError(t, os.MkdirAll(cfg.Storage.Local.BaseDir, 0o750))

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))

	// A second App over the same paths sees the first run's records.
	b, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close(context.Background())) })

	records, err := b.Records().ListRecords(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, records, 1)

	content, err := b.Contents().Get(context.Background(), records[0].ContentID)
	require.NoError(t, err)
	require.NoError(t, content.Body.Close())
	assert.Equal(t, records[0].Filename, content.Metadata.Filename)
}

func TestAPIServerServesArchivedRecords(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	a.APIServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/records?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Paper 1: results?")
}

func TestNavigatorFactoryOverride(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	errNoBrowser := fmt.Errorf("no browser")

	a, err := app.New(context.Background(), cfg, zap.NewNop(),
		app.WithNavigatorFactory(func(context.Context) (archive.Navigator, error) {
			return nil, errNoBrowser
		}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close(context.Background())) })

	_, err = a.Run(context.Background())
	require.ErrorIs(t, err, errNoBrowser)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	cfg.Navigator.Driver = "telnet"

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "navigator.driver")
}

func TestNewFailsOnUnwritableContentDir(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
	cfg.Storage.Content = config.BackendLocal
	cfg.Storage.Local.BaseDir = file

	_, err := app.New(context.Background(), cfg, zap.NewNop())
	require.ErrorContains(t, err, "init local content store")
}

// keepSpans survives provider shutdown so spans can be read after Close.
type keepSpans struct{ *tracetest.InMemoryExporter }

func (keepSpans) Shutdown(context.Context) error { return nil }

func TestTelemetryEnabledRecordsRunSpans(t *testing.T) {
	srv := newJournal(t)
	cfg := testConfig(t, srv)
	registry := prometheus.NewRegistry()
	exporter := keepSpans{tracetest.NewInMemoryExporter()}
	cfg.Telemetry.Enabled = true
	cfg.Telemetry.Registerer = registry
	cfg.Telemetry.SpanExporter = exporter

	a, err := app.New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = a.Run(context.Background())
	require.NoError(t, err)

	families, err := registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, mf := range families {
		names = append(names, mf.GetName())
	}
	assert.Contains(t, strings.Join(names, ","), "archiver_article_duration")

	require.NoError(t, a.Close(context.Background()))
	var runs, articles int
	for _, span := range exporter.GetSpans() {
		switch span.Name {
		case "archive.Run":
			runs++
		case "archive.Article":
			articles++
		}
	}
	assert.Equal(t, 1, runs)
	assert.Equal(t, 3, articles)
}
