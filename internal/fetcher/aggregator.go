package fetcher

import (
	"context"

	"github.com/rs/zerolog"
)

// Aggregator queries the crypto provider chain and the FX rate provider and
// folds the results into one best-effort Aggregated record.
type Aggregator struct {
	providers []CryptoProvider
	rates     RatesProvider
	logger    zerolog.Logger
}

// NewAggregator wires the ordered crypto provider chain and the rate
// provider. Providers are tried in slice order; the first success wins.
func NewAggregator(providers []CryptoProvider, rates RatesProvider, logger zerolog.Logger) *Aggregator {
	return &Aggregator{
		providers: providers,
		rates:     rates,
		logger:    logger.With().Str("component", "aggregator").Logger(),
	}
}

// FetchAll never fails: provider errors degrade the result field-by-field.
// If every crypto provider errors, the crypto fields are nil and the source
// label is "none". An FX failure leaves the rate fields nil and does not
// affect the crypto chain.
func (a *Aggregator) FetchAll(ctx context.Context) Aggregated {
	crypto, source := a.fetchCrypto(ctx)

	var rates ExchangeRates
	if a.rates != nil {
		fetched, err := a.rates.FetchRates(ctx)
		if err != nil {
			a.logger.Error().Err(err).Msg("fx rate fetch failed")
		} else {
			rates = fetched
		}
	}

	raw := map[string]any{
		"crypto_source": source,
		"btc_usd":       crypto.BTCUSD,
		"eth_usd":       crypto.ETHUSD,
		"eur_rate":      rates.EUR,
		"gbp_rate":      rates.GBP,
		"jpy_rate":      rates.JPY,
	}

	return Aggregated{
		Crypto: crypto,
		Rates:  rates,
		Source: source,
		Raw:    raw,
	}
}

func (a *Aggregator) fetchCrypto(ctx context.Context) (CryptoPrice, string) {
	for _, provider := range a.providers {
		prices, err := provider.FetchCrypto(ctx)
		if err != nil {
			a.logger.Error().Err(err).Str("provider", provider.Name()).Msg("crypto provider failed")
			continue
		}
		return prices, provider.Name()
	}

	a.logger.Warn().Msg("all crypto providers failed")
	return CryptoPrice{}, SourceNone
}
