// Package alpaca fetches daily price bars and company news from the Alpaca
// market-data API. The free tier serves the IEX feed, which is what the
// default config asks for.
package alpaca

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/guregu/null/v6"

	"marketfeed/internal/httpx"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
)

//go:generate mockgen -package=alpaca_test -destination=mock_http_client_test.go marketfeed/internal/httpx HTTPClient

// ErrNoCredentials marks a source that is configured but unusable; the
// fallback chain treats it like any other provider failure.
var ErrNoCredentials = errors.New("alpaca: credentials not configured")

type Config struct {
	Name       string
	DataURL    string // bars endpoint base, default https://data.alpaca.markets/v2
	NewsURL    string // default https://data.alpaca.markets/v1beta1/news
	Key        string
	Secret     string
	Feed       string // bar feed, default "iex"
	MaxRetries int    // rate-limit retries per request
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "alpaca"
	}
	if cfg.DataURL == "" {
		cfg.DataURL = "https://data.alpaca.markets/v2"
	}
	if cfg.NewsURL == "" {
		cfg.NewsURL = "https://data.alpaca.markets/v1beta1/news"
	}
	if cfg.Feed == "" {
		cfg.Feed = "iex"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

type bar struct {
	Time   string  `json:"t"`
	Open   float64 `json:"o"`
	High   float64 `json:"h"`
	Low    float64 `json:"l"`
	Close  float64 `json:"c"`
	Volume int64   `json:"v"`
}

type barsResponse struct {
	Bars          []bar   `json:"bars"`
	Symbol        string  `json:"symbol"`
	NextPageToken *string `json:"next_page_token"`
}

func (s *Source) Prices(ctx context.Context, ticker, startDate, endDate string) ([]model.Price, error) {
	if s.cfg.Key == "" || s.cfg.Secret == "" {
		return nil, ErrNoCredentials
	}

	q := url.Values{}
	q.Set("start", startDate)
	q.Set("end", endDate)
	q.Set("timeframe", "1Day")
	q.Set("adjustment", "raw")
	q.Set("feed", s.cfg.Feed)
	q.Set("sort", "asc")
	q.Set("limit", "10000")
	reqURL := fmt.Sprintf("%s/stocks/%s/bars?%s", s.cfg.DataURL, url.PathEscape(ticker), q.Encode())

	var out barsResponse
	if err := s.getJSON(ctx, reqURL, &out); err != nil {
		return nil, err
	}

	prices := make([]model.Price, 0, len(out.Bars))
	for _, b := range out.Bars {
		prices = append(prices, model.Price{
			Time:   normalizeTime(b.Time),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}
	model.SortPrices(prices)
	return prices, nil
}

type article struct {
	Headline  string `json:"headline"`
	Author    string `json:"author"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
	URL       string `json:"url"`
}

type newsResponse struct {
	News          []article `json:"news"`
	NextPageToken *string   `json:"next_page_token"`
}

func (s *Source) CompanyNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]model.CompanyNews, error) {
	if s.cfg.Key == "" || s.cfg.Secret == "" {
		return nil, ErrNoCredentials
	}

	q := url.Values{}
	q.Set("symbols", ticker)
	if startDate != "" {
		q.Set("start", model.DateTimestamp(startDate))
	}
	q.Set("end", endDate+"T23:59:59Z")
	q.Set("sort", "desc")
	pageSize := limit
	if pageSize > 50 || pageSize <= 0 {
		pageSize = 50 // Alpaca page cap
	}
	q.Set("page_size", fmt.Sprintf("%d", pageSize))
	reqURL := s.cfg.NewsURL + "?" + q.Encode()

	var out newsResponse
	if err := s.getJSON(ctx, reqURL, &out); err != nil {
		return nil, err
	}

	news := make([]model.CompanyNews, 0, len(out.News))
	for _, a := range out.News {
		author := a.Author
		if author == "" {
			author = "Unknown"
		}
		source := a.Source
		if source == "" {
			source = "Alpaca"
		}
		news = append(news, model.CompanyNews{
			Ticker:    ticker,
			Title:     a.Headline,
			Author:    author,
			Source:    source,
			Date:      normalizeTime(a.CreatedAt),
			URL:       a.URL,
			Sentiment: null.String{},
		})
	}
	return news, nil
}

func (s *Source) getJSON(ctx context.Context, reqURL string, dst any) error {
	resp, err := s.client.DoRetry(ctx, s.cfg.MaxRetries, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("APCA-API-KEY-ID", s.cfg.Key)
		req.Header.Set("APCA-API-SECRET-KEY", s.cfg.Secret)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &provider.StatusError{Provider: s.cfg.Name, Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode: %w", s.cfg.Name, err)
	}
	return nil
}

// normalizeTime reformats an RFC3339 vendor timestamp into the canonical
// layout, passing the raw string through when it does not parse.
func normalizeTime(s string) string {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return model.Timestamp(t)
}
