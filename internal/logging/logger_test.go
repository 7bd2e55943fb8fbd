// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	if logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("production logger should not log debug")
	}
	defer Sync(logger) //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestInstallRestoresPreviousGlobal(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	restore := Install(zap.New(core))

	zap.L().Info("archived", zap.String("title", "A study"))
	restore()
	zap.L().Info("after restore")

	if logs.Len() != 1 {
		t.Fatalf("expected one captured entry, got %d", logs.Len())
	}
	entry := logs.All()[0]
	if entry.Message != "archived" || entry.ContextMap()["title"] != "A study" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
