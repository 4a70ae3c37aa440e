package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/http/httputil"
	"strings"
	"testing"
	"time"

	"marketfeed/internal/broker"
	"marketfeed/internal/feed"
	"marketfeed/internal/httpx"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
)

type stubPrices struct{ prices []model.Price }

func (stubPrices) Name() string { return "stub" }
func (s stubPrices) Prices(context.Context, string, string, string) ([]model.Price, error) {
	return s.prices, nil
}

func newTestServer(priceSource provider.PriceSource, brokerClient *broker.Client) *server {
	opts := feed.Options{Logf: func(string, ...any) {}}
	if priceSource != nil {
		opts.PriceSources = []provider.PriceSource{priceSource}
	}
	return &server{
		feed:       feed.New(opts),
		broker:     brokerClient,
		reqTimeout: 5 * time.Second,
	}
}

func TestHandlePrices(t *testing.T) {
	s := newTestServer(stubPrices{prices: []model.Price{
		{Time: "2024-01-02T00:00:00Z", Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
	}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/prices?ticker=AAPL&start=2024-01-01&end=2024-01-31", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var prices []model.Price
	if err := json.Unmarshal(rr.Body.Bytes(), &prices); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(prices) != 1 || prices[0].Close != 1.5 {
		t.Fatalf("unexpected body: %s", rr.Body.String())
	}
}

func TestHandlePrices_ValidationErrorIs400(t *testing.T) {
	s := newTestServer(stubPrices{}, nil)
	for _, target := range []string{
		"/api/prices?start=2024-01-01&end=2024-01-31",          // missing ticker
		"/api/prices?ticker=AAPL&start=bogus&end=2024-01-31",   // malformed start
		"/api/prices?ticker=AAPL&start=2024-02-01&end=2024-01-01", // end before start
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rr := httptest.NewRecorder()
		s.routes().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: want 400, got %d", target, rr.Code)
		}
	}
}

func TestHandlePrices_NoDataIsEmptyArray(t *testing.T) {
	s := newTestServer(stubPrices{}, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/prices?ticker=AAPL&start=2024-01-01&end=2024-01-31", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Fatalf("want [] for no data, got %s", body)
	}
}

func TestHandlePrices_MethodNotAllowed(t *testing.T) {
	s := newTestServer(stubPrices{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/prices?ticker=AAPL&start=2024-01-01&end=2024-01-31", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rr.Code)
	}
}

func TestTradeRoutes_UnconfiguredBrokerIs503(t *testing.T) {
	s := newTestServer(nil, nil)
	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/trade/account"},
		{http.MethodGet, "/trade/position?ticker=AAPL"},
		{http.MethodPost, "/trade/buy"},
		{http.MethodPost, "/trade/sell"},
	} {
		req := httptest.NewRequest(tc.method, tc.target, strings.NewReader(`{"ticker":"AAPL","qty":1}`))
		rr := httptest.NewRecorder()
		s.routes().ServeHTTP(rr, req)
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("%s %s: want 503, got %d", tc.method, tc.target, rr.Code)
		}
	}
}

func TestTradeBuy(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		b, _ := httputil.DumpRequest(r, true)
		if !strings.Contains(string(b), `"side":"buy"`) {
			t.Errorf("missing buy side: %s", b)
		}
		_, _ = w.Write([]byte(`{"id":"ord-1","symbol":"AAPL","side":"buy","status":"accepted"}`))
	}))
	defer upstream.Close()

	bc := broker.New(broker.Config{BaseURL: upstream.URL, Key: "k", Secret: "s"}, httpx.New(5*time.Second))
	s := newTestServer(nil, bc)

	req := httptest.NewRequest(http.MethodPost, "/trade/buy", strings.NewReader(`{"ticker":"AAPL","qty":10}`))
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rr.Code, rr.Body.String())
	}
	var order broker.Order
	if err := json.Unmarshal(rr.Body.Bytes(), &order); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if order.Status != "accepted" {
		t.Fatalf("unexpected order: %+v", order)
	}
}

func TestTradeBuy_BadBody(t *testing.T) {
	bc := broker.New(broker.Config{BaseURL: "http://example.test", Key: "k", Secret: "s"}, httpx.New(time.Second))
	s := newTestServer(nil, bc)

	for _, body := range []string{`{`, `{"ticker":"","qty":1}`, `{"ticker":"AAPL","qty":0}`, `{"ticker":"AAPL","qty":1,"extra":true}`} {
		req := httptest.NewRequest(http.MethodPost, "/trade/buy", strings.NewReader(body))
		rr := httptest.NewRecorder()
		s.routes().ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %s: want 400, got %d", body, rr.Code)
		}
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)
	if rr.Code != http.StatusOK || rr.Body.String() != "ok" {
		t.Fatalf("healthz: %d %s", rr.Code, rr.Body.String())
	}
}

func TestMarketCapRoute_AbsentIsNull(t *testing.T) {
	s := newTestServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/market-cap?ticker=AAPL&end=2024-01-31", nil)
	rr := httptest.NewRecorder()
	s.routes().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["market_cap"]) != "null" {
		t.Fatalf("want null market cap, got %s", body["market_cap"])
	}
}
