// Package newsapi fetches company news from the NewsAPI /everything
// endpoint.
package newsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/guregu/null/v6"

	"marketfeed/internal/httpx"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
)

// ErrNoAPIKey marks a source that is configured but unusable.
var ErrNoAPIKey = errors.New("newsapi: API key not configured")

type Config struct {
	Name       string
	Endpoint   string // default https://newsapi.org/v2/everything
	APIKey     string
	PageSize   int // default and hard cap 100 (NewsAPI limit)
	MaxRetries int
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "newsapi"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://newsapi.org/v2/everything"
	}
	if cfg.PageSize <= 0 || cfg.PageSize > 100 {
		cfg.PageSize = 100
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

type apiArticle struct {
	Source struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"source"`
	Author      string    `json:"author"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	PublishedAt time.Time `json:"publishedAt"`
}

type apiResponse struct {
	Status       string       `json:"status"`
	Code         string       `json:"code"`
	Message      string       `json:"message"`
	TotalResults int          `json:"totalResults"`
	Articles     []apiArticle `json:"articles"`
}

func (s *Source) CompanyNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]model.CompanyNews, error) {
	if s.cfg.APIKey == "" {
		return nil, ErrNoAPIKey
	}

	pageSize := s.cfg.PageSize
	if limit > 0 && limit < pageSize {
		pageSize = limit
	}

	q := url.Values{}
	q.Set("q", ticker)
	if startDate != "" {
		q.Set("from", startDate)
	}
	q.Set("to", endDate)
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(pageSize))
	q.Set("apiKey", s.cfg.APIKey)
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

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", s.cfg.Name, err)
	}
	if out.Status != "ok" {
		return nil, fmt.Errorf("%s: %s: %s", s.cfg.Name, out.Code, out.Message)
	}

	news := make([]model.CompanyNews, 0, len(out.Articles))
	for _, a := range out.Articles {
		author := a.Author
		if author == "" {
			author = "Unknown"
		}
		source := a.Source.Name
		if source == "" {
			source = "NewsAPI"
		}
		news = append(news, model.CompanyNews{
			Ticker:    ticker,
			Title:     a.Title,
			Author:    author,
			Source:    source,
			Date:      model.Timestamp(a.PublishedAt),
			URL:       a.URL,
			Sentiment: null.String{},
		})
	}
	return news, nil
}
