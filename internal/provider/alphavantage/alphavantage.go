// Package alphavantage fetches daily price bars from the Alpha Vantage
// TIME_SERIES_DAILY endpoint. The API has no server-side range filter, so the
// requested window is applied client-side over the full series.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"marketfeed/internal/httpx"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
)

// ErrNoAPIKey marks a source that is configured but unusable.
var ErrNoAPIKey = errors.New("alphavantage: API key not configured")

type Config struct {
	Name       string
	Endpoint   string // default https://www.alphavantage.co/query
	APIKey     string
	OutputSize string // default "full"; "compact" trims to ~100 rows
	MaxRetries int
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "alphavantage"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://www.alphavantage.co/query"
	}
	if cfg.OutputSize == "" {
		cfg.OutputSize = "full"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

type dailyBar struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type dailyResponse struct {
	MetaData struct {
		Symbol        string `json:"2. Symbol"`
		LastRefreshed string `json:"3. Last Refreshed"`
	} `json:"Meta Data"`
	TimeSeries map[string]dailyBar `json:"Time Series (Daily)"`
	// Throttle and misuse notices arrive with status 200.
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

func (s *Source) Prices(ctx context.Context, ticker, startDate, endDate string) ([]model.Price, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}
	start, err := model.ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDate(endDate)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("function", "TIME_SERIES_DAILY")
	q.Set("symbol", ticker)
	q.Set("outputsize", s.cfg.OutputSize)
	q.Set("apikey", s.cfg.APIKey)
	reqURL := s.cfg.Endpoint + "?" + q.Encode()

	resp, err := s.client.DoRetry(ctx, s.cfg.MaxRetries, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &provider.StatusError{Provider: s.cfg.Name, Status: resp.StatusCode, Body: string(b)}
	}

	var out dailyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", s.cfg.Name, err)
	}
	if len(out.TimeSeries) == 0 {
		switch {
		case out.ErrorMessage != "":
			return nil, fmt.Errorf("%s: %s", s.cfg.Name, out.ErrorMessage)
		case out.Note != "":
			return nil, fmt.Errorf("%s: throttled: %s", s.cfg.Name, out.Note)
		case out.Information != "":
			return nil, fmt.Errorf("%s: %s", s.cfg.Name, out.Information)
		}
		return nil, nil
	}

	prices := make([]model.Price, 0, len(out.TimeSeries))
	for date, bar := range out.TimeSeries {
		day, err := model.ParseDate(date)
		if err != nil {
			continue
		}
		// inclusive [start, end] window
		if day.Before(start) || day.After(end) {
			continue
		}
		p, err := parseBar(date, bar)
		if err != nil {
			return nil, fmt.Errorf("%s: bar %s: %w", s.cfg.Name, date, err)
		}
		prices = append(prices, p)
	}
	model.SortPrices(prices)
	return prices, nil
}

func parseBar(date string, b dailyBar) (model.Price, error) {
	open, err := strconv.ParseFloat(b.Open, 64)
	if err != nil {
		return model.Price{}, err
	}
	high, err := strconv.ParseFloat(b.High, 64)
	if err != nil {
		return model.Price{}, err
	}
	low, err := strconv.ParseFloat(b.Low, 64)
	if err != nil {
		return model.Price{}, err
	}
	cl, err := strconv.ParseFloat(b.Close, 64)
	if err != nil {
		return model.Price{}, err
	}
	vol, err := strconv.ParseInt(b.Volume, 10, 64)
	if err != nil {
		return model.Price{}, err
	}
	return model.Price{
		Time:   model.DateTimestamp(date),
		Open:   open,
		High:   high,
		Low:    low,
		Close:  cl,
		Volume: vol,
	}, nil
}
