package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// CoinGeckoOptions parameterise the CoinGecko provider.
type CoinGeckoOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// CoinGecko fetches BTC and ETH prices from the CoinGecko simple price API
// in a single request. A missing per-asset field is tolerated and left nil.
type CoinGecko struct {
	opts    CoinGeckoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewCoinGecko constructs a CoinGecko provider.
func NewCoinGecko(opts CoinGeckoOptions, logger zerolog.Logger) *CoinGecko {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com/api/v3"
	}

	return &CoinGecko{
		opts:    opts,
		logger:  logger.With().Str("component", "coingecko_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies the provider in snapshot source labels.
func (c *CoinGecko) Name() string { return "coingecko" }

// FetchCrypto retrieves the BTC and ETH USD prices.
func (c *CoinGecko) FetchCrypto(ctx context.Context) (CryptoPrice, error) {
	params := url.Values{}
	params.Set("ids", "bitcoin,ethereum")
	params.Set("vs_currencies", "usd")
	endpoint := c.baseURL + "/simple/price?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return CryptoPrice{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return CryptoPrice{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return CryptoPrice{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return CryptoPrice{}, fmt.Errorf("coingecko status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &body); err != nil {
		return CryptoPrice{}, err
	}

	prices := CryptoPrice{
		BTCUSD: numberToDecimal(body["bitcoin"]["usd"]),
		ETHUSD: numberToDecimal(body["ethereum"]["usd"]),
	}

	c.logger.Info().
		Str("btc_usd", decimalOrDash(prices.BTCUSD)).
		Str("eth_usd", decimalOrDash(prices.ETHUSD)).
		Msg("coingecko prices fetched")

	return prices, nil
}

func numberToDecimal(n json.Number) *decimal.Decimal {
	if n == "" {
		return nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return nil
	}
	return &d
}

func decimalOrDash(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

var _ CryptoProvider = (*CoinGecko)(nil)
