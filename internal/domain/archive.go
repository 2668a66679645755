package domain

import (
	"context"
	"io"
	"time"
)

// ArchiveObject is one stored market list archive.
type ArchiveObject struct {
	Key      string
	Size     int64
	StoredAt time.Time
}

// ArchiveUpload describes a document to store. Encoding is the
// Content-Encoding of Body ("" or "gzip").
type ArchiveUpload struct {
	Key         string
	Body        io.Reader
	ContentType string
	Encoding    string
	Metadata    map[string]string
}

// ArchiveStore keeps market list archives in object storage.
type ArchiveStore interface {
	Upload(ctx context.Context, u ArchiveUpload) error
	Objects(ctx context.Context, prefix string) ([]ArchiveObject, error)
	Remove(ctx context.Context, keys []string) error
}
