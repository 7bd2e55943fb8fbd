package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/article-archiver/internal/metrics"
)

// DefaultOutputDir is where retrieved artifacts land when no directory is given.
const DefaultOutputDir = "downloads"

// Retriever exports stored artifacts to a local directory.
type Retriever struct {
	contents ContentStore
	fs       afero.Fs
	logger   *zap.Logger
}

// NewRetriever builds a Retriever. A nil fs means the OS filesystem.
func NewRetriever(contents ContentStore, fs afero.Fs, logger *zap.Logger) *Retriever {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{contents: contents, fs: fs, logger: logger}
}

// Retrieve writes the content stored under contentID to outputDir, named after
// the filename recorded at store time, and returns the written path. An existing
// file of the same name is replaced. Unknown IDs fail with ErrNotFound before
// outputDir is touched.
func (r *Retriever) Retrieve(ctx context.Context, contentID, outputDir string) (string, error) {
	if outputDir == "" {
		outputDir = DefaultOutputDir
	}
	r.logger.Info("attempting to retrieve PDF", zap.String("content_id", contentID))

	path, err := r.retrieve(ctx, contentID, outputDir)
	if err != nil {
		outcome := "error"
		if errors.Is(err, ErrNotFound) {
			outcome = "not_found"
		}
		metrics.ObserveRetrieval(outcome)
		r.logger.Error("error retrieving PDF", zap.String("content_id", contentID), zap.Error(err))
		return "", err
	}
	metrics.ObserveRetrieval("ok")
	r.logger.Info("PDF retrieved", zap.String("content_id", contentID), zap.String("path", path))
	return path, nil
}

func (r *Retriever) retrieve(ctx context.Context, contentID, outputDir string) (string, error) {
	content, err := r.contents.Get(ctx, contentID)
	if err != nil {
		return "", fmt.Errorf("lookup content %s: %w", contentID, err)
	}
	defer func() {
		if cerr := content.Body.Close(); cerr != nil {
			r.logger.Warn("failed to close content body", zap.String("content_id", contentID), zap.Error(cerr))
		}
	}()

	if err := r.fs.MkdirAll(outputDir, 0o750); err != nil {
		return "", fmt.Errorf("create output directory %s: %w", outputDir, err)
	}
	dest := filepath.Join(outputDir, ExportFilename(contentID, content.Metadata.Filename))
	if err := r.writeAtomic(dest, content.Body); err != nil {
		return "", err
	}
	return dest, nil
}

// writeAtomic copies src into a temp file next to dest and renames it into place.
func (r *Retriever) writeAtomic(dest string, src io.Reader) error {
	tmp, err := afero.TempFile(r.fs, filepath.Dir(dest), ".retrieve-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, copyErr := io.Copy(tmp, src)
	closeErr := tmp.Close()
	if copyErr != nil {
		r.removeTemp(tmpPath)
		return fmt.Errorf("write content: %w", copyErr)
	}
	if closeErr != nil {
		r.removeTemp(tmpPath)
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	if err := r.fs.Rename(tmpPath, dest); err != nil {
		r.removeTemp(tmpPath)
		return fmt.Errorf("rename into %s: %w", dest, err)
	}
	return nil
}

func (r *Retriever) removeTemp(path string) {
	if err := r.fs.Remove(path); err != nil {
		r.logger.Warn("failed to remove temp file", zap.String("path", path), zap.Error(err))
	}
}

// ExportFilename picks the local name for stored content: the stored filename
// reduced to a safe base name, or "<contentID>.pdf" when none was recorded.
func ExportFilename(contentID, stored string) string {
	base := filepath.Base(filepath.ToSlash(stored))
	if stored == "" || base == "." || base == "/" {
		return sanitize(contentID, maxTitleBytes) + ".pdf"
	}
	return sanitize(base, maxFilenameBytes)
}
