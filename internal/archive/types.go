package archive

import (
	"io"
	"time"
)

// PDFContentType is the content type recorded for every archived artifact.
const PDFContentType = "application/pdf"

// ArticleReference is one (url, title) pair discovered on a search result page.
type ArticleReference struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

// ArtifactRecord is the metadata row persisted for each archived article.
type ArtifactRecord struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Title     string    `json:"title"`
	ContentID string    `json:"content_id"`
	Filename  string    `json:"filename"`
	Checksum  string    `json:"checksum"`
	SizeBytes int64     `json:"size_bytes"`
	Timestamp time.Time `json:"timestamp"`
}

// ContentMetadata is attached to binary content when it is stored.
type ContentMetadata struct {
	Filename    string `json:"filename" yaml:"filename"`
	ContentType string `json:"content_type" yaml:"content_type"`
	SourceURL   string `json:"source_url" yaml:"source_url"`
	Checksum    string `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// StoredContent is returned by ContentStore.Get. Callers must close Body.
type StoredContent struct {
	ID       string
	Metadata ContentMetadata
	Size     int64
	Body     io.ReadCloser
}

// Transfer is the outcome of a direct network download.
type Transfer struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        []byte
}

// Success reports whether the transfer returned a 2xx status.
func (t Transfer) Success() bool {
	return t.StatusCode >= 200 && t.StatusCode < 300
}

// ArchivedEvent is the notification payload published after a record is written.
type ArchivedEvent struct {
	RecordID  string `json:"record_id"`
	ContentID string `json:"content_id"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Filename  string `json:"filename"`
	Checksum  string `json:"checksum"`
	Timestamp string `json:"timestamp"`
}
