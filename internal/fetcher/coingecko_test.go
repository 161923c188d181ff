package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCoinGeckoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin,ethereum" {
			t.Fatalf("unexpected ids param: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"bitcoin":{"usd":50000.25},"ethereum":{"usd":3000}}`)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	prices, err := c.FetchCrypto(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if prices.BTCUSD == nil || prices.BTCUSD.StringFixed(2) != "50000.25" {
		t.Fatalf("unexpected btc price: %#v", prices.BTCUSD)
	}
	if prices.ETHUSD == nil || !prices.ETHUSD.Equal(decimal.NewFromInt(3000)) {
		t.Fatalf("unexpected eth price: %#v", prices.ETHUSD)
	}
}

func TestCoinGeckoPartialFieldsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"bitcoin":{"usd":50000}}`)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	prices, err := c.FetchCrypto(context.Background())
	if err != nil {
		t.Fatalf("partial response should not error: %v", err)
	}
	if prices.BTCUSD == nil {
		t.Fatal("btc price should be present")
	}
	if prices.ETHUSD != nil {
		t.Fatal("eth price should be nil")
	}
}

func TestCoinGeckoMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `not json`)
	}))
	defer srv.Close()

	c := NewCoinGecko(CoinGeckoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := c.FetchCrypto(context.Background()); err == nil {
		t.Fatal("malformed body 应返回错误")
	}
}
