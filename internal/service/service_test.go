package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-tracker/internal/analyzer"
	"crypto-tracker/internal/fetcher"
	"crypto-tracker/internal/storage/memory"
)

type stubFetcher struct {
	result fetcher.Aggregated
}

func (s *stubFetcher) FetchAll(ctx context.Context) fetcher.Aggregated {
	return s.result
}

func aggWithBTC(price string) fetcher.Aggregated {
	d := decimal.RequireFromString(price)
	return fetcher.Aggregated{
		Crypto: fetcher.CryptoPrice{BTCUSD: &d},
		Source: "coincap",
		Raw:    map[string]any{"crypto_source": "coincap", "btc_usd": &d},
	}
}

func newService(f Fetcher, store *memory.Store) *Service {
	return New(f, store, analyzer.New(1.0, nil, zerolog.Nop()), zerolog.Nop())
}

func TestRunCycleAlertsOnLargeMove(t *testing.T) {
	store := memory.NewStore()
	f := &stubFetcher{result: aggWithBTC("50000")}
	svc := newService(f, store)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// 1.2% move against the previous snapshot.
	f.result = aggWithBTC("50600")
	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.SnapshotID)
	assert.Equal(t, "coincap", result.Source)

	alerts := store.Alerts()
	require.Len(t, alerts, 1)
	assert.Equal(t, "BTC", alerts[0].Asset)
	assert.Equal(t, result.SnapshotID, alerts[0].SnapshotID)
	assert.True(t, alerts[0].ChangePct.Equal(decimal.RequireFromString("1.2")))
}

func TestRunCycleNoAlertOnSmallMove(t *testing.T) {
	store := memory.NewStore()
	f := &stubFetcher{result: aggWithBTC("50000")}
	svc := newService(f, store)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	// 0.6% move stays below the threshold.
	f.result = aggWithBTC("50300")
	_, err = svc.RunCycle(context.Background())
	require.NoError(t, err)

	count, err := store.CountSnapshots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Empty(t, store.Alerts())
}

func TestRunCycleAllProvidersFailed(t *testing.T) {
	store := memory.NewStore()
	eur := decimal.RequireFromString("0.92")
	f := &stubFetcher{result: fetcher.Aggregated{
		Source: fetcher.SourceNone,
		Rates:  fetcher.ExchangeRates{EUR: &eur},
		Raw:    map[string]any{"crypto_source": fetcher.SourceNone, "eur_rate": &eur},
	}}
	svc := newService(f, store)

	result, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fetcher.SourceNone, result.Source)
	assert.Nil(t, result.BTCUSD)
	require.NotNil(t, result.EURRate)

	latest, err := store.LatestSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, fetcher.SourceNone, latest.Source)
	assert.Nil(t, latest.BTCUSD)
	assert.NotNil(t, latest.EURRate)
}

func TestRunCycleRollsBackOnSaveFailure(t *testing.T) {
	store := memory.NewStore()
	store.SaveErr = assert.AnError
	svc := newService(&stubFetcher{result: aggWithBTC("50000")}, store)

	_, err := svc.RunCycle(context.Background())
	require.Error(t, err)

	count, countErr := store.CountSnapshots(context.Background())
	require.NoError(t, countErr)
	assert.Zero(t, count)
}

func TestRunCycleRollsBackSnapshotWhenAlertFails(t *testing.T) {
	store := memory.NewStore()
	f := &stubFetcher{result: aggWithBTC("50000")}
	svc := newService(f, store)

	_, err := svc.RunCycle(context.Background())
	require.NoError(t, err)

	store.AlertErr = assert.AnError
	f.result = aggWithBTC("51000")
	_, err = svc.RunCycle(context.Background())
	require.Error(t, err)

	// The snapshot write must roll back with the failed alert write.
	count, countErr := store.CountSnapshots(context.Background())
	require.NoError(t, countErr)
	assert.Equal(t, int64(1), count)
}

func TestFetchOnceSkipsAnalysis(t *testing.T) {
	store := memory.NewStore()
	f := &stubFetcher{result: aggWithBTC("50000")}
	svc := newService(f, store)

	_, err := svc.FetchOnce(context.Background())
	require.NoError(t, err)

	// Second fetch moves 2%, but direct invocation never analyzes.
	f.result = aggWithBTC("51000")
	result, err := svc.FetchOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.SnapshotID)
	assert.Empty(t, store.Alerts())
}
