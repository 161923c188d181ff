package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-tracker/internal/storage"
	"crypto-tracker/internal/storage/memory"
)

func saveSnapshot(t *testing.T, store *memory.Store, btc, eth string) int64 {
	t.Helper()

	snap := storage.NewSnapshot{Source: "coincap"}
	if btc != "" {
		d := decimal.RequireFromString(btc)
		snap.BTCUSD = &d
	}
	if eth != "" {
		d := decimal.RequireFromString(eth)
		snap.ETHUSD = &d
	}

	id, err := store.SaveSnapshot(context.Background(), snap)
	require.NoError(t, err)
	return id
}

func TestChangePct(t *testing.T) {
	change := ChangePct(decimal.NewFromInt(50000), decimal.NewFromInt(50600))
	assert.True(t, change.Equal(decimal.RequireFromString("1.2")), "expected 1.2, got %s", change)

	change = ChangePct(decimal.NewFromInt(50000), decimal.NewFromInt(49400))
	assert.True(t, change.Equal(decimal.RequireFromString("-1.2")), "expected -1.2, got %s", change)
}

func TestChangePctZeroPrevious(t *testing.T) {
	change := ChangePct(decimal.Zero, decimal.NewFromInt(50000))
	assert.True(t, change.IsZero(), "zero previous price must yield zero change")
}

func TestAnalyzeFewerThanTwoSnapshots(t *testing.T) {
	store := memory.NewStore()
	id := saveSnapshot(t, store, "50000", "3000")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))
	assert.Empty(t, store.Alerts())
}

func TestAnalyzeAboveThreshold(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "50000", "3000")
	id := saveSnapshot(t, store, "50600", "3000")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTC", alerts[0].Asset)
	assert.Equal(t, id, alerts[0].SnapshotID)
	assert.True(t, alerts[0].ChangePct.Equal(decimal.RequireFromString("1.2")))
	assert.True(t, alerts[0].PreviousPrice.Equal(decimal.NewFromInt(50000)))
	assert.True(t, alerts[0].CurrentPrice.Equal(decimal.NewFromInt(50600)))
}

func TestAnalyzeBelowThreshold(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "50000", "")
	id := saveSnapshot(t, store, "50300", "")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))
	assert.Empty(t, store.Alerts())
}

func TestAnalyzeExactThresholdAlerts(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "50000", "")
	id := saveSnapshot(t, store, "50500", "")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))
	require.Len(t, store.Alerts(), 1, "a change of exactly 1.0%% must alert")
}

func TestAnalyzeDownwardMove(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "", "3000")
	id := saveSnapshot(t, store, "", "2940")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "ETH", alerts[0].Asset)
	assert.True(t, alerts[0].ChangePct.IsNegative())
}

func TestAnalyzeSkipsMissingPrices(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "50000", "")
	id := saveSnapshot(t, store, "", "3000")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))
	assert.Empty(t, store.Alerts())
}

func TestAnalyzeZeroPreviousNeverAlerts(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "0", "")
	id := saveSnapshot(t, store, "50000", "")

	a := New(1.0, nil, zerolog.Nop())
	require.NoError(t, a.Analyze(context.Background(), store, id))
	assert.Empty(t, store.Alerts())
}

func TestAnalyzePropagatesInsertError(t *testing.T) {
	store := memory.NewStore()
	saveSnapshot(t, store, "50000", "")
	id := saveSnapshot(t, store, "51000", "")
	store.AlertErr = errors.New("disk full")

	a := New(1.0, nil, zerolog.Nop())
	err := a.Analyze(context.Background(), store, id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
