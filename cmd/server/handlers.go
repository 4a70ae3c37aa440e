package main

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"marketfeed/internal/broker"
	"marketfeed/internal/feed"
)

// server holds the wired dependencies behind the HTTP surface. Trading
// routes answer 503 when no broker credentials are configured.
type server struct {
	feed       *feed.Service
	broker     *broker.Client
	reqTimeout time.Duration
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/prices", s.requireGet(s.handlePrices))
	mux.HandleFunc("/api/metrics", s.requireGet(s.handleMetrics))
	mux.HandleFunc("/api/line-items", s.requireGet(s.handleLineItems))
	mux.HandleFunc("/api/insider-trades", s.requireGet(s.handleInsiderTrades))
	mux.HandleFunc("/api/news", s.requireGet(s.handleNews))
	mux.HandleFunc("/api/market-cap", s.requireGet(s.handleMarketCap))
	mux.HandleFunc("/trade/account", s.requireGet(s.withBroker(s.handleAccount)))
	mux.HandleFunc("/trade/position", s.requireGet(s.withBroker(s.handlePosition)))
	mux.HandleFunc("/trade/buy", s.requirePost(s.withBroker(s.handleOrder(broker.Buy))))
	mux.HandleFunc("/trade/sell", s.requirePost(s.withBroker(s.handleOrder(broker.Sell))))
	return mux
}

func (s *server) requireGet(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *server) requirePost(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *server) withBroker(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.broker == nil {
			http.Error(w, "trading not configured", http.StatusServiceUnavailable)
			return
		}
		h(w, r)
	}
}

func (s *server) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.reqTimeout)
}

func (s *server) handlePrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := s.ctx(r)
	defer cancel()
	records, err := s.feed.Prices(ctx, q.Get("ticker"), q.Get("start"), q.Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

func (s *server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := s.ctx(r)
	defer cancel()
	records, err := s.feed.FinancialMetrics(ctx, q.Get("ticker"), q.Get("end"), orDefault(q.Get("period"), "ttm"), intParam(q.Get("limit"), 10))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

func (s *server) handleLineItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	items := splitCSV(q.Get("items"))
	if len(items) == 0 {
		http.Error(w, "missing items query param", http.StatusBadRequest)
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	records, err := s.feed.SearchLineItems(ctx, q.Get("ticker"), items, q.Get("end"), orDefault(q.Get("period"), "ttm"), intParam(q.Get("limit"), 10))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

func (s *server) handleInsiderTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := s.ctx(r)
	defer cancel()
	records, err := s.feed.InsiderTrades(ctx, q.Get("ticker"), q.Get("end"), q.Get("start"), intParam(q.Get("limit"), 1000))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := s.ctx(r)
	defer cancel()
	records, err := s.feed.CompanyNews(ctx, q.Get("ticker"), q.Get("end"), q.Get("start"), intParam(q.Get("limit"), 1000))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, records)
}

func (s *server) handleMarketCap(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ctx, cancel := s.ctx(r)
	defer cancel()
	mcap, err := s.feed.MarketCap(ctx, q.Get("ticker"), q.Get("end"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, map[string]any{
		"ticker":     q.Get("ticker"),
		"end_date":   q.Get("end"),
		"market_cap": mcap,
	})
}

func (s *server) handleAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.ctx(r)
	defer cancel()
	acct, err := s.broker.Account(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, acct)
}

func (s *server) handlePosition(w http.ResponseWriter, r *http.Request) {
	ticker := r.URL.Query().Get("ticker")
	if strings.TrimSpace(ticker) == "" {
		http.Error(w, "missing ticker query param", http.StatusBadRequest)
		return
	}
	ctx, cancel := s.ctx(r)
	defer cancel()
	pos, err := s.broker.Position(ctx, ticker)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if pos == nil {
		writeJSON(w, map[string]any{"ticker": ticker, "position": nil})
		return
	}
	writeJSON(w, pos)
}

type orderBody struct {
	Ticker string  `json:"ticker"`
	Qty    float64 `json:"qty"`
}

func (s *server) handleOrder(side broker.OrderSide) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var b orderBody
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&b); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(b.Ticker) == "" {
			http.Error(w, "ticker cannot be empty", http.StatusBadRequest)
			return
		}
		if b.Qty <= 0 {
			http.Error(w, "qty must be positive", http.StatusBadRequest)
			return
		}
		ctx, cancel := s.ctx(r)
		defer cancel()
		order, err := s.broker.SubmitMarketOrder(ctx, b.Ticker, b.Qty, side)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, order)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func intParam(s string, def int) int {
	if s == "" {
		return def
	}
	if x, err := strconv.Atoi(s); err == nil && x > 0 {
		return x
	}
	return def
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
