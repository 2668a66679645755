package s3blob

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/cache/memory"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]domain.ArchiveUpload
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: map[string][]byte{}, uploads: map[string]domain.ArchiveUpload{}}
}

func (m *memBlobs) Upload(_ context.Context, u domain.ArchiveUpload) error {
	b, err := io.ReadAll(u.Body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[u.Key] = b
	m.uploads[u.Key] = u
	return nil
}

func (m *memBlobs) Objects(_ context.Context, prefix string) ([]domain.ArchiveObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.ArchiveObject
	for k, b := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.ArchiveObject{Key: k, Size: int64(len(b))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memBlobs) Remove(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

type recordingAudit struct {
	events []string
}

func (r *recordingAudit) Log(_ context.Context, event string, _ map[string]any) error {
	r.events = append(r.events, event)
	return nil
}

func (r *recordingAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, errors.New("not implemented")
}

func TestArchiver_Archive(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2025, 1, 31, 15, 4, 5, 0, time.UTC)
	store := memory.NewMarketListStore(func() time.Time { return at })
	require.NoError(t, store.Write(ctx, []domain.Market{
		{ID: 1, MarketMetadata: domain.MarketMetadata{Question: "Rain?"}, YesShares: big.NewInt(5), NoShares: big.NewInt(3)},
	}))

	blobs := newMemBlobs()
	audit := &recordingAudit{}
	a := NewArchiver(blobs, store, audit, 0, slog.Default())
	a.now = func() time.Time { return at }

	path, err := a.Archive(ctx)
	require.NoError(t, err)
	assert.Equal(t, "archive/markets/2025/01/31/150405.json.gz", path)
	up := blobs.uploads[path]
	assert.Equal(t, "application/json", up.ContentType)
	assert.Equal(t, "gzip", up.Encoding)
	assert.Equal(t, "1", up.Metadata["markets"])
	assert.Equal(t, []string{"archive.markets"}, audit.events)

	zr, err := gzip.NewReader(bytes.NewReader(blobs.objects[path]))
	require.NoError(t, err)
	var got domain.CachedMarketList
	require.NoError(t, json.NewDecoder(zr).Decode(&got))
	require.Len(t, got.Data, 1)
	assert.Equal(t, "Rain?", got.Data[0].Question)
	assert.True(t, got.Timestamp.Equal(at))
}

func TestArchiver_ArchiveEmptyCache(t *testing.T) {
	blobs := newMemBlobs()
	a := NewArchiver(blobs, memory.NewMarketListStore(time.Now), nil, 3, slog.Default())

	path, err := a.Archive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, blobs.objects)
}

func TestArchiver_Prune(t *testing.T) {
	ctx := context.Background()
	blobs := newMemBlobs()
	store := memory.NewMarketListStore(time.Now)
	require.NoError(t, store.Write(ctx, nil))

	a := NewArchiver(blobs, store, nil, 2, slog.Default())
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := range 4 {
		a.now = func() time.Time { return base.Add(time.Duration(i) * time.Hour) }
		_, err := a.Archive(ctx)
		require.NoError(t, err)
	}
	require.NoError(t, blobs.Upload(ctx, domain.ArchiveUpload{Key: "other/keep.json", Body: strings.NewReader("{}")}))

	removed, err := a.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	left, _ := blobs.Objects(ctx, ArchivePrefix)
	require.Len(t, left, 2)
	assert.Equal(t, "archive/markets/2025/03/01/020000.json.gz", left[0].Key)
	assert.Equal(t, "archive/markets/2025/03/01/030000.json.gz", left[1].Key)
	assert.Contains(t, blobs.objects, "other/keep.json")
}
