package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/chain/chaintest"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

var viewer = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seed(t *testing.T, n int) *chaintest.Fake {
	t.Helper()
	f := chaintest.New()
	for i := 1; i <= n; i++ {
		f.AddMarket(chaintest.Account, domain.MarketMetadata{
			Question: "Q" + string(rune('0'+i)),
			Category: "crypto",
		}, time.Unix(1_800_000_000, 0), int64(i*10), int64(i))
	}
	return f
}

func TestBuild(t *testing.T) {
	f := seed(t, 1)
	f.SetPosition(1, viewer, 5, 2)
	b := NewBuilder(f, f, 2, discardLogger())

	m, err := b.Build(context.Background(), 1, viewer)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.ID)
	assert.Equal(t, chaintest.Account, m.Creator)
	assert.Equal(t, "Q1", m.Question)
	assert.Equal(t, "crypto", m.Category)
	assert.Equal(t, int64(10), m.YesShares.Int64())
	assert.Equal(t, int64(1), m.NoShares.Int64())
	assert.True(t, m.Active)
	assert.Equal(t, time.Unix(1_800_000_000, 0).UTC(), m.ResolutionDate)
	assert.Equal(t, int64(5), m.Position.YesBet.Int64())
	assert.Equal(t, int64(2), m.Position.NoBet.Int64())
}

func TestBuild_NoViewerSkipsPositionRead(t *testing.T) {
	f := seed(t, 1)
	b := NewBuilder(f, f, 2, discardLogger())

	m, err := b.Build(context.Background(), 1, "")
	require.NoError(t, err)
	assert.Equal(t, 0, f.Calls("UserBets"))
	assert.Equal(t, int64(0), m.Position.YesBet.Int64())
	assert.Equal(t, int64(0), m.Position.NoBet.Int64())
}

func TestBuild_PositionFailureDegrades(t *testing.T) {
	f := seed(t, 1)
	f.FailOn("UserBets", 1, errors.New("no wallet connected"))
	b := NewBuilder(f, f, 2, discardLogger())

	m, err := b.Build(context.Background(), 1, viewer)
	require.NoError(t, err)
	assert.Equal(t, int64(0), m.Position.YesBet.Int64())
	assert.Equal(t, int64(0), m.Position.NoBet.Int64())
}

func TestBuild_RequiredReadFailure(t *testing.T) {
	for _, method := range []string{"MarketMetadata", "MarketStatus", "MarketShares"} {
		t.Run(method, func(t *testing.T) {
			f := seed(t, 1)
			f.FailOn(method, 1, errors.New("rpc down"))
			b := NewBuilder(f, f, 2, discardLogger())

			_, err := b.Build(context.Background(), 1, viewer)
			var fetchErr *domain.SnapshotFetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, uint64(1), fetchErr.MarketID)
			assert.ErrorIs(t, err, domain.ErrSnapshotFetch)
		})
	}
}

func TestBuild_MetadataDecodeFailure(t *testing.T) {
	f := chaintest.New()
	f.AddRawMarket(chaintest.Account, []byte("not json"), time.Unix(1_800_000_000, 0), 0, 0)
	b := NewBuilder(f, f, 2, discardLogger())

	_, err := b.Build(context.Background(), 1, "")
	assert.ErrorIs(t, err, domain.ErrSnapshotFetch)
	assert.ErrorIs(t, err, domain.ErrMetadataDecode)
}

func TestBuildAll_PartialFailure(t *testing.T) {
	f := seed(t, 3)
	f.FailOn("MarketMetadata", 2, errors.New("malformed"))
	b := NewBuilder(f, f, 3, discardLogger())

	markets, err := b.BuildAll(context.Background(), viewer)
	require.NoError(t, err)
	require.Len(t, markets, 2)
	assert.Equal(t, uint64(1), markets[0].ID)
	assert.Equal(t, uint64(3), markets[1].ID)
}

func TestBuildAll_OrderedByID(t *testing.T) {
	f := seed(t, 9)
	b := NewBuilder(f, f, 4, discardLogger())

	markets, err := b.BuildAll(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, markets, 9)
	for i, m := range markets {
		assert.Equal(t, uint64(i+1), m.ID)
	}
}

func TestBuildAll_CountFailure(t *testing.T) {
	f := seed(t, 2)
	f.FailCount(errors.New("rpc down"))
	b := NewBuilder(f, f, 2, discardLogger())

	_, err := b.BuildAll(context.Background(), "")
	assert.Error(t, err)
}

func TestBuildAll_Cancelled(t *testing.T) {
	f := seed(t, 2)
	b := NewBuilder(f, f, 2, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.BuildAll(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildAllCampaigns(t *testing.T) {
	f := chaintest.New()
	for i := 0; i < 3; i++ {
		f.AddCampaign(domain.Campaign{Title: "c", Goal: bigInt(100), Deadline: time.Unix(1_800_000_000, 0)})
	}
	f.FailOn("CampaignDetails", 2, errors.New("boom"))
	b := NewBuilder(f, f, 2, discardLogger())

	camps, err := b.BuildAllCampaigns(context.Background())
	require.NoError(t, err)
	require.Len(t, camps, 2)
	assert.Equal(t, uint64(1), camps[0].ID)
	assert.Equal(t, uint64(3), camps[1].ID)

	_, err = b.BuildCampaign(context.Background(), 2)
	assert.Error(t, err)
}

func TestBuildCampaign_NotConfigured(t *testing.T) {
	b := NewBuilder(seed(t, 1), nil, 2, discardLogger())
	_, err := b.BuildAllCampaigns(context.Background())
	assert.Error(t, err)
}

func bigInt(v int64) *big.Int { return big.NewInt(v) }

func TestBuild_UnknownMarketIsNotFound(t *testing.T) {
	f := seed(t, 2)
	b := NewBuilder(f, f, 2, discardLogger())

	for _, id := range []uint64{0, 3} {
		_, err := b.Build(context.Background(), id, viewer)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NotErrorIs(t, err, domain.ErrSnapshotFetch)
	}
}
