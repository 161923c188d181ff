package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CoinCapOptions parameterise the CoinCap provider.
type CoinCapOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CoinCap fetches BTC and ETH prices from the CoinCap asset API. It issues
// one request per asset; both must succeed for the fetch to count.
type CoinCap struct {
	opts    CoinCapOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinCap constructs a CoinCap provider.
func NewCoinCap(opts CoinCapOptions, logger zerolog.Logger) *CoinCap {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coincap.io/v2"
	}

	return &CoinCap{
		opts:    opts,
		logger:  logger.With().Str("component", "coincap_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the provider in snapshot source labels.
func (c *CoinCap) Name() string { return "coincap" }

// FetchCrypto retrieves the BTC and ETH USD prices.
func (c *CoinCap) FetchCrypto(ctx context.Context) (CryptoPrice, error) {
	btc, err := c.fetchAsset(ctx, "bitcoin")
	if err != nil {
		return CryptoPrice{}, fmt.Errorf("fetch bitcoin: %w", err)
	}

	eth, err := c.fetchAsset(ctx, "ethereum")
	if err != nil {
		return CryptoPrice{}, fmt.Errorf("fetch ethereum: %w", err)
	}

	c.logger.Info().
		Str("btc_usd", btc.StringFixed(2)).
		Str("eth_usd", eth.StringFixed(2)).
		Msg("coincap prices fetched")

	return CryptoPrice{BTCUSD: &btc, ETHUSD: &eth}, nil
}

func (c *CoinCap) fetchAsset(ctx context.Context, asset string) (decimal.Decimal, error) {
	endpoint := fmt.Sprintf("%s/assets/%s", c.baseURL, asset)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return decimal.Decimal{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return decimal.Decimal{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return decimal.Decimal{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("coincap status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Data struct {
			PriceUSD string `json:"priceUsd"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return decimal.Decimal{}, err
	}
	if body.Data.PriceUSD == "" {
		return decimal.Decimal{}, fmt.Errorf("coincap response missing priceUsd for %s", asset)
	}

	price, err := decimal.NewFromString(body.Data.PriceUSD)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse priceUsd: %w", err)
	}
	return price, nil
}

var _ CryptoProvider = (*CoinCap)(nil)
