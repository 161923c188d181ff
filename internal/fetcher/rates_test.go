package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestExchangeRateAPISuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/latest/USD" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		fmt.Fprint(w, `{"result":"success","rates":{"EUR":0.92,"GBP":0.79,"JPY":149.5,"CHF":0.88}}`)
	}))
	defer srv.Close()

	e := NewExchangeRateAPI(RatesOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	rates, err := e.FetchRates(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if rates.EUR == nil || rates.EUR.StringFixed(2) != "0.92" {
		t.Fatalf("unexpected eur rate: %#v", rates.EUR)
	}
	if rates.GBP == nil || rates.JPY == nil {
		t.Fatal("gbp and jpy rates should be present")
	}
}

func TestExchangeRateAPIMissingCurrencies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"rates":{"EUR":0.92}}`)
	}))
	defer srv.Close()

	e := NewExchangeRateAPI(RatesOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	rates, err := e.FetchRates(context.Background())
	if err != nil {
		t.Fatalf("missing currencies should not error: %v", err)
	}
	if rates.EUR == nil {
		t.Fatal("eur rate should be present")
	}
	if rates.GBP != nil || rates.JPY != nil {
		t.Fatal("absent currencies should stay nil")
	}
}

func TestExchangeRateAPIHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	e := NewExchangeRateAPI(RatesOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := e.FetchRates(context.Background()); err == nil {
		t.Fatal("HTTP 503 应返回错误")
	}
}
