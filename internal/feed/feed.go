// Package feed is the fallback orchestrator: for each data category it
// checks the cache, then tries the configured sources in priority order, and
// writes the first non-empty result through to the cache. Provider failures
// are logged and swallowed; callers only ever see data or an empty result.
package feed

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/guregu/null/v6"
	"golang.org/x/sync/singleflight"

	"marketfeed/internal/cache"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
	"marketfeed/internal/recorder"
)

// Options wires a Service. Everything is injected so tests can isolate the
// fallback logic and a process can run several configurations (paper vs live
// credentials) side by side.
type Options struct {
	Cache           *cache.Store
	PriceSources    []provider.PriceSource
	MetricsSources  []provider.MetricsSource
	LineItemSources []provider.LineItemSource
	InsiderSources  []provider.InsiderSource
	NewsSources     []provider.NewsSource
	Recorder        recorder.Recorder
	Logf            func(format string, args ...any)
}

type Service struct {
	cache     *cache.Store
	prices    []provider.PriceSource
	metrics   []provider.MetricsSource
	lineItems []provider.LineItemSource
	insiders  []provider.InsiderSource
	news      []provider.NewsSource
	rec       recorder.Recorder
	logf      func(format string, args ...any)

	// coalesces concurrent misses on the same key into one provider pass
	sf singleflight.Group
}

func New(opts Options) *Service {
	s := &Service{
		cache:     opts.Cache,
		prices:    opts.PriceSources,
		metrics:   opts.MetricsSources,
		lineItems: opts.LineItemSources,
		insiders:  opts.InsiderSources,
		news:      opts.NewsSources,
		rec:       opts.Recorder,
		logf:      opts.Logf,
	}
	if s.cache == nil {
		s.cache = cache.New(cache.Options{})
	}
	if s.rec == nil {
		s.rec = recorder.NewNoop()
	}
	if s.logf == nil {
		s.logf = log.Printf
	}
	return s
}

// Prices returns daily bars for ticker over [startDate, endDate], sorted
// ascending by time.
func (s *Service) Prices(ctx context.Context, ticker, startDate, endDate string) ([]model.Price, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := validateRange(startDate, endDate); err != nil {
		return nil, err
	}

	key := cache.Key(ticker, startDate, endDate)
	if cached, ok := s.cache.Prices(key); ok {
		return cached, nil
	}
	v, _, _ := s.sf.Do("prices:"+key, func() (any, error) {
		if cached, ok := s.cache.Prices(key); ok {
			return cached, nil
		}
		for _, src := range s.prices {
			records, err := src.Prices(ctx, ticker, startDate, endDate)
			if err != nil {
				s.logf("feed: prices: source=%s ticker=%s: %v", src.Name(), ticker, err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			s.cache.SetPrices(key, records)
			if err := s.rec.RecordPrices(ticker, records); err != nil {
				s.logf("feed: prices: record ticker=%s: %v", ticker, err)
			}
			return records, nil
		}
		return []model.Price{}, nil
	})
	return v.([]model.Price), nil
}

// FinancialMetrics returns derived ratio/growth records for ticker as of
// endDate.
func (s *Service) FinancialMetrics(ctx context.Context, ticker, endDate, period string, limit int) ([]model.FinancialMetrics, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if _, err := model.ParseDate(endDate); err != nil {
		return nil, err
	}

	key := cache.Key(ticker, period, endDate, fmt.Sprint(limit))
	if cached, ok := s.cache.FinancialMetrics(key); ok {
		return cached, nil
	}
	v, _, _ := s.sf.Do("metrics:"+key, func() (any, error) {
		if cached, ok := s.cache.FinancialMetrics(key); ok {
			return cached, nil
		}
		for _, src := range s.metrics {
			records, err := src.FinancialMetrics(ctx, ticker, endDate, period, limit)
			if err != nil {
				s.logf("feed: metrics: source=%s ticker=%s: %v", src.Name(), ticker, err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			s.cache.SetFinancialMetrics(key, records)
			return records, nil
		}
		return []model.FinancialMetrics{}, nil
	})
	return v.([]model.FinancialMetrics), nil
}

// SearchLineItems resolves requested statement lines for ticker, at most
// limit records, one per distinct matched key.
func (s *Service) SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate, period string, limit int) ([]model.LineItem, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if _, err := model.ParseDate(endDate); err != nil {
		return nil, err
	}

	key := cache.Key(ticker, period, endDate, fmt.Sprint(limit), strings.Join(lineItems, "+"))
	if cached, ok := s.cache.LineItems(key); ok {
		return cached, nil
	}
	v, _, _ := s.sf.Do("lineitems:"+key, func() (any, error) {
		if cached, ok := s.cache.LineItems(key); ok {
			return cached, nil
		}
		for _, src := range s.lineItems {
			records, err := src.SearchLineItems(ctx, ticker, lineItems, endDate, period, limit)
			if err != nil {
				s.logf("feed: line items: source=%s ticker=%s: %v", src.Name(), ticker, err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			s.cache.SetLineItems(key, records)
			return records, nil
		}
		return []model.LineItem{}, nil
	})
	return v.([]model.LineItem), nil
}

// InsiderTrades returns insider transactions for ticker up to endDate.
// startDate may be empty.
func (s *Service) InsiderTrades(ctx context.Context, ticker, endDate, startDate string, limit int) ([]model.InsiderTrade, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := validateOptionalRange(startDate, endDate); err != nil {
		return nil, err
	}

	key := cache.Key(ticker, orNone(startDate), endDate, fmt.Sprint(limit))
	if cached, ok := s.cache.InsiderTrades(key); ok {
		return cached, nil
	}
	v, _, _ := s.sf.Do("insiders:"+key, func() (any, error) {
		if cached, ok := s.cache.InsiderTrades(key); ok {
			return cached, nil
		}
		for _, src := range s.insiders {
			records, err := src.InsiderTrades(ctx, ticker, startDate, endDate, limit)
			if err != nil {
				s.logf("feed: insider trades: source=%s ticker=%s: %v", src.Name(), ticker, err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			s.cache.SetInsiderTrades(key, records)
			return records, nil
		}
		return []model.InsiderTrade{}, nil
	})
	return v.([]model.InsiderTrade), nil
}

// CompanyNews returns articles for ticker up to endDate. startDate may be
// empty.
func (s *Service) CompanyNews(ctx context.Context, ticker, endDate, startDate string, limit int) ([]model.CompanyNews, error) {
	if err := validateTicker(ticker); err != nil {
		return nil, err
	}
	if err := validateOptionalRange(startDate, endDate); err != nil {
		return nil, err
	}

	key := cache.Key(ticker, orNone(startDate), endDate, fmt.Sprint(limit))
	if cached, ok := s.cache.CompanyNews(key); ok {
		return cached, nil
	}
	v, _, _ := s.sf.Do("news:"+key, func() (any, error) {
		if cached, ok := s.cache.CompanyNews(key); ok {
			return cached, nil
		}
		for _, src := range s.news {
			records, err := src.CompanyNews(ctx, ticker, startDate, endDate, limit)
			if err != nil {
				s.logf("feed: news: source=%s ticker=%s: %v", src.Name(), ticker, err)
				continue
			}
			if len(records) == 0 {
				continue
			}
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}
			s.cache.SetCompanyNews(key, records)
			return records, nil
		}
		return []model.CompanyNews{}, nil
	})
	return v.([]model.CompanyNews), nil
}

// MarketCap reports the market capitalization of ticker as of endDate, absent
// when no source can supply it.
func (s *Service) MarketCap(ctx context.Context, ticker, endDate string) (null.Float, error) {
	metrics, err := s.FinancialMetrics(ctx, ticker, endDate, "ttm", 1)
	if err != nil {
		return null.Float{}, err
	}
	if len(metrics) == 0 {
		return null.Float{}, nil
	}
	return metrics[0].MarketCap, nil
}

func validateTicker(ticker string) error {
	if strings.TrimSpace(ticker) == "" {
		return fmt.Errorf("ticker must not be empty")
	}
	return nil
}

func validateRange(startDate, endDate string) error {
	start, err := model.ParseDate(startDate)
	if err != nil {
		return err
	}
	end, err := model.ParseDate(endDate)
	if err != nil {
		return err
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s before start date %s", endDate, startDate)
	}
	return nil
}

func validateOptionalRange(startDate, endDate string) error {
	if startDate == "" {
		_, err := model.ParseDate(endDate)
		return err
	}
	return validateRange(startDate, endDate)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
