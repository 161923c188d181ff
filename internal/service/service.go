package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-tracker/internal/fetcher"
	"crypto-tracker/internal/storage"
)

// Fetcher aggregates external price sources into one best-effort result.
type Fetcher interface {
	FetchAll(ctx context.Context) fetcher.Aggregated
}

// Analyzer compares the latest snapshots and persists alerts.
type Analyzer interface {
	Analyze(ctx context.Context, stores storage.Stores, currentSnapshotID int64) error
}

// Result summarises one persisted fetch cycle.
type Result struct {
	SnapshotID int64
	Source     string
	BTCUSD     *decimal.Decimal
	ETHUSD     *decimal.Decimal
	EURRate    *decimal.Decimal
	GBPRate    *decimal.Decimal
	JPYRate    *decimal.Decimal
}

// Service orchestrates fetch, persistence, and analysis.
type Service struct {
	aggregator Fetcher
	store      storage.TxRunner
	analyzer   Analyzer
	logger     zerolog.Logger
}

// New constructs the pipeline service.
func New(aggregator Fetcher, store storage.TxRunner, analyzer Analyzer, logger zerolog.Logger) *Service {
	return &Service{
		aggregator: aggregator,
		store:      store,
		analyzer:   analyzer,
		logger:     logger.With().Str("component", "service").Logger(),
	}
}

// RunCycle executes the full pipeline: fetch, persist, analyze. Snapshot and
// derived alerts are written in one transaction, so readers never observe a
// snapshot without its warranted alert.
func (s *Service) RunCycle(ctx context.Context) (Result, error) {
	agg := s.aggregator.FetchAll(ctx)

	snap, err := toNewSnapshot(agg)
	if err != nil {
		return Result{}, err
	}

	var snapshotID int64
	err = s.store.InTx(ctx, func(stores storage.Stores) error {
		id, saveErr := stores.SaveSnapshot(ctx, snap)
		if saveErr != nil {
			return fmt.Errorf("save snapshot: %w", saveErr)
		}
		snapshotID = id

		if s.analyzer != nil {
			if analyzeErr := s.analyzer.Analyze(ctx, stores, id); analyzeErr != nil {
				return analyzeErr
			}
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.logger.Info().
		Int64("snapshot_id", snapshotID).
		Str("source", agg.Source).
		Msg("cycle completed")

	return buildResult(snapshotID, agg), nil
}

// FetchOnce runs a single fetch-persist cycle without analysis, for ad hoc
// invocations outside the webhook path.
func (s *Service) FetchOnce(ctx context.Context) (Result, error) {
	agg := s.aggregator.FetchAll(ctx)

	snap, err := toNewSnapshot(agg)
	if err != nil {
		return Result{}, err
	}

	var snapshotID int64
	err = s.store.InTx(ctx, func(stores storage.Stores) error {
		id, saveErr := stores.SaveSnapshot(ctx, snap)
		if saveErr != nil {
			return fmt.Errorf("save snapshot: %w", saveErr)
		}
		snapshotID = id
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	return buildResult(snapshotID, agg), nil
}

func toNewSnapshot(agg fetcher.Aggregated) (storage.NewSnapshot, error) {
	raw, err := json.Marshal(agg.Raw)
	if err != nil {
		return storage.NewSnapshot{}, fmt.Errorf("marshal raw data: %w", err)
	}

	return storage.NewSnapshot{
		Source:  agg.Source,
		BTCUSD:  agg.Crypto.BTCUSD,
		ETHUSD:  agg.Crypto.ETHUSD,
		EURRate: agg.Rates.EUR,
		GBPRate: agg.Rates.GBP,
		JPYRate: agg.Rates.JPY,
		RawData: raw,
	}, nil
}

func buildResult(id int64, agg fetcher.Aggregated) Result {
	return Result{
		SnapshotID: id,
		Source:     agg.Source,
		BTCUSD:     agg.Crypto.BTCUSD,
		ETHUSD:     agg.Crypto.ETHUSD,
		EURRate:    agg.Rates.EUR,
		GBPRate:    agg.Rates.GBP,
		JPYRate:    agg.Rates.JPY,
	}
}
