// Package local implements a local filesystem content store.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/JakeFAU/article-archiver/internal/archive"
	"github.com/JakeFAU/article-archiver/internal/id/uuid"
)

const (
	dataExt    = ".pdf"
	sidecarExt = ".yaml"
)

// Config captures the parameters for the local filesystem content store.
type Config struct {
	// BaseDir is the root directory where artifacts will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// ContentStore writes artifacts to <base_dir>/<id>.pdf with the metadata in a
// YAML sidecar next to it.
type ContentStore struct {
	baseDir string
	ids     archive.IDGenerator
}

// New creates a new local filesystem-backed content store.
func New(cfg Config) (*ContentStore, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	// Check for write permissions.
	testFile := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("failed to clean up test file: %w", err)
	}

	return &ContentStore{
		baseDir: cfg.BaseDir,
		ids:     uuid.New(),
	}, nil
}

// Put writes the artifact and its sidecar and returns the new content ID.
func (s *ContentStore) Put(_ context.Context, r io.Reader, meta archive.ContentMetadata) (string, error) {
	id, err := s.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("content id: %w", err)
	}
	sidecar, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.writeAtomic(s.path(id, dataExt), r); err != nil {
		return "", err
	}
	if err := s.writeAtomic(s.path(id, sidecarExt), bytes.NewReader(sidecar)); err != nil {
		_ = os.Remove(s.path(id, dataExt))
		return "", err
	}
	return id, nil
}

// Get opens the artifact stored under id. The caller closes Body.
func (s *ContentStore) Get(_ context.Context, id string) (*archive.StoredContent, error) {
	if !uuid.Valid(id) {
		return nil, fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	raw, err := os.ReadFile(s.path(id, sidecarExt))
	if err != nil {
		return nil, notFound(id, err)
	}
	var meta archive.ContentMetadata
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
	}

	f, err := os.Open(s.path(id, dataExt))
	if err != nil {
		return nil, notFound(id, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat content %s: %w", id, err)
	}
	return &archive.StoredContent{ID: id, Metadata: meta, Size: info.Size(), Body: f}, nil
}

// Delete removes the artifact and its sidecar.
func (s *ContentStore) Delete(_ context.Context, id string) error {
	if !uuid.Valid(id) {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	dataErr := os.Remove(s.path(id, dataExt))
	sidecarErr := os.Remove(s.path(id, sidecarExt))
	if errors.Is(dataErr, fs.ErrNotExist) && errors.Is(sidecarErr, fs.ErrNotExist) {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	for _, err := range []error{dataErr, sidecarErr} {
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("delete content %s: %w", id, err)
		}
	}
	return nil
}

func (s *ContentStore) path(id, ext string) string {
	return filepath.Join(s.baseDir, id+ext)
}

func (s *ContentStore) writeAtomic(dest string, r io.Reader) error {
	tmp, err := os.CreateTemp(s.baseDir, ".put-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

func notFound(id string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("content %q: %w", id, archive.ErrNotFound)
	}
	return fmt.Errorf("read content %s: %w", id, err)
}
