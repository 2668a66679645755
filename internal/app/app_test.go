package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kunalatmosoft/MetaMarket/internal/config"
	"github.com/kunalatmosoft/MetaMarket/internal/domain"
)

func TestRun_NoProvider(t *testing.T) {
	cfg := config.Defaults()
	cfg.Chain.RPCURL = ""

	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer a.Close()

	err := a.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoProvider)
}

func TestDependencies_OptionalBackendsAreNilInterfaces(t *testing.T) {
	d := &Dependencies{}
	assert.True(t, d.CampaignReader() == nil)
	assert.True(t, d.CampaignWriter() == nil)
	assert.True(t, d.ShareHistory() == nil)
}

func TestRun_UnknownMode(t *testing.T) {
	cfg := config.Defaults()
	cfg.Mode = "trade"

	a := New(&cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	err := a.Run(context.Background())
	assert.ErrorContains(t, err, `unsupported mode "trade"`)
	a.Close()
	a.Close()
}
