package analyzer

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"crypto-tracker/internal/alerting"
	"crypto-tracker/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// trackedAsset pairs an asset symbol with its price accessor on a snapshot.
type trackedAsset struct {
	symbol string
	price  func(*storage.PriceSnapshot) *decimal.Decimal
}

var trackedAssets = []trackedAsset{
	{symbol: "BTC", price: func(s *storage.PriceSnapshot) *decimal.Decimal { return s.BTCUSD }},
	{symbol: "ETH", price: func(s *storage.PriceSnapshot) *decimal.Decimal { return s.ETHUSD }},
}

// Analyzer compares the two most recent snapshots and persists an alert per
// tracked asset whose absolute percentage change crosses the threshold.
type Analyzer struct {
	threshold decimal.Decimal
	notifier  alerting.Notifier
	logger    zerolog.Logger
}

// New constructs an Analyzer. notifier may be nil.
func New(thresholdPct float64, notifier alerting.Notifier, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		threshold: decimal.NewFromFloat(thresholdPct),
		notifier:  notifier,
		logger:    logger.With().Str("component", "analyzer").Logger(),
	}
}

// Analyze runs the comparison against the given stores. With fewer than two
// snapshots it logs and returns nil; an alert write failure is returned so
// the caller's transaction rolls back.
func (a *Analyzer) Analyze(ctx context.Context, stores storage.Stores, currentSnapshotID int64) error {
	current, err := stores.LatestSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load latest snapshot: %w", err)
	}
	previous, err := stores.PreviousSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load previous snapshot: %w", err)
	}

	if current == nil || previous == nil {
		a.logger.Info().Msg("not enough data for price change analysis")
		return nil
	}

	for _, asset := range trackedAssets {
		curPrice := asset.price(current)
		prevPrice := asset.price(previous)
		if curPrice == nil || prevPrice == nil {
			continue
		}

		change := ChangePct(*prevPrice, *curPrice)
		if change.Abs().LessThan(a.threshold) {
			a.logger.Info().
				Str("asset", asset.symbol).
				Str("change_pct", change.StringFixed(2)).
				Msg("change below threshold")
			continue
		}

		alert := storage.PriceAlert{
			Asset:         asset.symbol,
			PreviousPrice: *prevPrice,
			CurrentPrice:  *curPrice,
			ChangePct:     change,
			SnapshotID:    currentSnapshotID,
		}
		if _, err := stores.InsertAlert(ctx, alert); err != nil {
			return fmt.Errorf("persist alert for %s: %w", asset.symbol, err)
		}

		a.logger.Warn().
			Str("asset", asset.symbol).
			Str("previous", prevPrice.StringFixed(2)).
			Str("current", curPrice.StringFixed(2)).
			Str("change_pct", change.StringFixed(2)).
			Msg("price alert recorded")

		if a.notifier != nil {
			note := alerting.Notification{
				Asset:         asset.symbol,
				PreviousPrice: *prevPrice,
				CurrentPrice:  *curPrice,
				ChangePct:     change,
				ThresholdPct:  a.threshold,
				SnapshotID:    currentSnapshotID,
				FetchedAt:     current.FetchedAt,
			}
			if err := a.notifier.Notify(ctx, note); err != nil {
				a.logger.Error().Err(err).Str("asset", asset.symbol).Msg("failed to dispatch alert")
			}
		}
	}

	return nil
}

// ChangePct computes the signed percentage change between two prices. A
// previous price of exactly zero yields zero: no signal rather than a
// division error.
func ChangePct(previous, current decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}
