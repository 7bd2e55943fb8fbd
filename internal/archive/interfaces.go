package archive

import (
	"context"
	"io"
	"time"
)

// Navigator drives a single browser session. Implementations are not safe for
// concurrent use: Load replaces whatever page was loaded before.
type Navigator interface {
	Load(ctx context.Context, url string) error
	// WaitForElement blocks until selector matches or timeout elapses, in which
	// case the error wraps ErrElementTimeout.
	WaitForElement(ctx context.Context, selector string, timeout time.Duration) (Element, error)
	FindElements(ctx context.Context, selector string) ([]Element, error)
	Close() error
}

// Element is a handle on one DOM node of the currently loaded page.
type Element interface {
	Attribute(ctx context.Context, name string) (string, error)
	Text(ctx context.Context) (string, error)
}

// NavigatorFactory opens a new, exclusively owned navigator session.
type NavigatorFactory func(ctx context.Context) (Navigator, error)

// Downloader performs a direct GET outside of the browser session.
type Downloader interface {
	Download(ctx context.Context, url string) (Transfer, error)
}

// ContentStore persists binary artifacts under opaque identifiers.
type ContentStore interface {
	Put(ctx context.Context, r io.Reader, meta ContentMetadata) (string, error)
	// Get returns ErrNotFound when id was never stored (or is malformed).
	Get(ctx context.Context, id string) (*StoredContent, error)
	Delete(ctx context.Context, id string) error
}

// RecordStore is the metadata collection holding one ArtifactRecord per artifact.
type RecordStore interface {
	InsertRecord(ctx context.Context, record ArtifactRecord) error
	// ListRecords returns up to limit records, newest first.
	ListRecords(ctx context.Context, limit int) ([]ArtifactRecord, error)
}

// Publisher pushes archive notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests of stored content.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces record IDs.
type IDGenerator interface {
	NewID() (string, error)
}
