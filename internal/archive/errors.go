package archive

import "errors"

var (
	// ErrNotFound is returned when a content ID is absent from the store.
	ErrNotFound = errors.New("artifact not found")
	// ErrElementTimeout is returned by navigators when a wait runs out of time.
	ErrElementTimeout = errors.New("element wait timed out")
	// ErrFetchFailed marks a per-article fetch failure; the pipeline skips the article.
	ErrFetchFailed = errors.New("article fetch failed")
	// ErrStatus marks a transfer that completed with a non-2xx status.
	ErrStatus = errors.New("unexpected transfer status")
	// ErrBodyTooLarge marks a transfer whose body exceeds the configured size cap.
	ErrBodyTooLarge = errors.New("transfer body exceeds size limit")
	// ErrNoDownloadTarget is returned when the download control carries no target URL.
	ErrNoDownloadTarget = errors.New("download control has no target")
)
