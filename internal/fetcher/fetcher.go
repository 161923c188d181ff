package fetcher

import (
	"context"

	"github.com/shopspring/decimal"
)

// CryptoPrice holds the USD prices for the tracked crypto assets. Fields are
// nil when the provider did not supply a value.
type CryptoPrice struct {
	BTCUSD *decimal.Decimal
	ETHUSD *decimal.Decimal
}

// ExchangeRates holds units-per-USD FX rates. Fields are nil when the rate
// provider did not supply a value.
type ExchangeRates struct {
	EUR *decimal.Decimal
	GBP *decimal.Decimal
	JPY *decimal.Decimal
}

// Aggregated is the best-effort result of one fetch cycle. Source names the
// crypto provider that succeeded, or "none". Raw preserves every fetched
// field for audit.
type Aggregated struct {
	Crypto CryptoPrice
	Rates  ExchangeRates
	Source string
	Raw    map[string]any
}

// SourceNone is the sentinel source label used when every crypto provider
// in the chain failed.
const SourceNone = "none"

// CryptoProvider fetches the BTC/ETH USD price pair from one upstream API.
type CryptoProvider interface {
	Name() string
	FetchCrypto(ctx context.Context) (CryptoPrice, error)
}

// RatesProvider fetches FX rates quoted against USD.
type RatesProvider interface {
	FetchRates(ctx context.Context) (ExchangeRates, error)
}
