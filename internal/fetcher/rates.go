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
)

// RatesOptions parameterise the FX rate provider.
type RatesOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// ExchangeRateAPI fetches EUR/GBP/JPY-per-USD rates from open.er-api.com.
type ExchangeRateAPI struct {
	opts    RatesOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewExchangeRateAPI constructs the FX rate provider.
func NewExchangeRateAPI(opts RatesOptions, logger zerolog.Logger) *ExchangeRateAPI {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://open.er-api.com/v6"
	}

	return &ExchangeRateAPI{
		opts:    opts,
		logger:  logger.With().Str("component", "rates_provider").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// FetchRates retrieves the tracked FX rates quoted against USD.
func (e *ExchangeRateAPI) FetchRates(ctx context.Context) (ExchangeRates, error) {
	endpoint := e.baseURL + "/latest/USD"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return ExchangeRates{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return ExchangeRates{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExchangeRates{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return ExchangeRates{}, fmt.Errorf("exchange rate api status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var body struct {
		Rates map[string]json.Number `json:"rates"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ExchangeRates{}, err
	}

	rates := ExchangeRates{
		EUR: numberToDecimal(body.Rates["EUR"]),
		GBP: numberToDecimal(body.Rates["GBP"]),
		JPY: numberToDecimal(body.Rates["JPY"]),
	}

	e.logger.Info().
		Str("eur", decimalOrDash(rates.EUR)).
		Str("gbp", decimalOrDash(rates.GBP)).
		Str("jpy", decimalOrDash(rates.JPY)).
		Msg("fx rates fetched")

	return rates, nil
}

var _ RatesProvider = (*ExchangeRateAPI)(nil)
