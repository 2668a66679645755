package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

// ArchivePrefix is the key prefix of market list archives.
const ArchivePrefix = "archive/markets/"

// Archiver exports the cached market list to object storage as gzipped JSON
// and keeps only the newest archives.
type Archiver struct {
	store   domain.ArchiveStore
	markets domain.MarketListStore
	audit   domain.AuditStore
	retain  int
	now     func() time.Time
	logger  *slog.Logger
}

// NewArchiver creates an Archiver. audit may be nil. A non-positive retain
// disables pruning.
func NewArchiver(
	store domain.ArchiveStore,
	markets domain.MarketListStore,
	audit domain.AuditStore,
	retain int,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		store:   store,
		markets: markets,
		audit:   audit,
		retain:  retain,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "archiver")),
	}
}

// Archive uploads the cached market list as one JSON document and returns
// its path. It returns "" when nothing is cached.
func (a *Archiver) Archive(ctx context.Context) (string, error) {
	cached, ok, err := a.markets.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive read cache: %w", err)
	}
	if !ok {
		return "", nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	enc := json.NewEncoder(zw)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(cached); err != nil {
		return "", fmt.Errorf("s3blob: archive marshal: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("s3blob: archive compress: %w", err)
	}

	path := archivePath(a.now())
	size := buf.Len()
	err = a.store.Upload(ctx, domain.ArchiveUpload{
		Key:         path,
		Body:        &buf,
		ContentType: "application/json",
		Encoding:    "gzip",
		Metadata: map[string]string{
			"markets":   strconv.Itoa(len(cached.Data)),
			"cached-at": cached.Timestamp.UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive upload: %w", err)
	}

	a.logger.InfoContext(ctx, "market list archived",
		slog.String("path", path),
		slog.Int("markets", len(cached.Data)),
		slog.Int("bytes", size),
	)
	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.markets", map[string]any{
			"path":      path,
			"count":     len(cached.Data),
			"cached_at": cached.Timestamp.Format(time.RFC3339),
		}); err != nil {
			a.logger.WarnContext(ctx, "archive audit log failed", slog.String("error", err.Error()))
		}
	}
	return path, nil
}

// Prune deletes all but the newest retain archives and returns how many were
// removed.
func (a *Archiver) Prune(ctx context.Context) (int, error) {
	if a.retain <= 0 {
		return 0, nil
	}
	objs, err := a.store.Objects(ctx, ArchivePrefix)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune list: %w", err)
	}
	if len(objs) <= a.retain {
		return 0, nil
	}

	// Keys embed a sortable UTC timestamp, so lexical order is age order.
	keys := make([]string, len(objs))
	for i, o := range objs {
		keys[i] = o.Key
	}
	slices.Sort(keys)
	stale := keys[:len(keys)-a.retain]
	if err := a.store.Remove(ctx, stale); err != nil {
		return 0, fmt.Errorf("s3blob: prune: %w", err)
	}
	a.logger.InfoContext(ctx, "pruned market archives", slog.Int("removed", len(stale)))
	return len(stale), nil
}

// archivePath builds the key of an archive taken at t:
//
//	archive/markets/2025/01/31/150405.json.gz
func archivePath(t time.Time) string {
	return ArchivePrefix + t.UTC().Format("2006/01/02/150405") + ".json.gz"
}
