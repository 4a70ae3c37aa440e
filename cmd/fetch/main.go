// Command fetch runs one acquisition against the configured sources and
// prints the result as indented JSON. Useful for smoke-testing credentials
// and for piping data into scripts without standing up the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"marketfeed/internal/config"
	"marketfeed/internal/feed"
	"marketfeed/internal/httpx"
	"marketfeed/internal/provider"
	"marketfeed/internal/provider/alpaca"
	"marketfeed/internal/provider/alphavantage"
	"marketfeed/internal/provider/edgar"
	"marketfeed/internal/provider/newsapi"
	"marketfeed/internal/provider/ratelimit"
	"marketfeed/internal/provider/yahoo"
)

func main() {
	var (
		ticker   string
		start    string
		end      string
		category string
		items    string
		period   string
		limit    int
		cfgPath  string
	)
	flag.StringVar(&ticker, "ticker", "", "ticker symbol (required)")
	flag.StringVar(&start, "start", "", "start date YYYY-MM-DD")
	flag.StringVar(&end, "end", "", "end date YYYY-MM-DD (required)")
	flag.StringVar(&category, "category", "prices", "prices | metrics | line-items | insider-trades | news | market-cap")
	flag.StringVar(&items, "items", "", "comma-separated line item names (line-items only)")
	flag.StringVar(&period, "period", "ttm", "reporting period: ttm | annual | quarterly")
	flag.IntVar(&limit, "limit", 10, "max records")
	flag.StringVar(&cfgPath, "config", "", "path to config.json (optional)")
	flag.Parse()

	if ticker == "" || end == "" {
		flag.Usage()
		os.Exit(2)
	}

	_ = godotenv.Load()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	svc := buildFeed(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	var out any
	switch category {
	case "prices":
		out, err = svc.Prices(ctx, ticker, start, end)
	case "metrics":
		out, err = svc.FinancialMetrics(ctx, ticker, end, period, limit)
	case "line-items":
		names := splitCSV(items)
		if len(names) == 0 {
			log.Fatal("line-items requires -items")
		}
		out, err = svc.SearchLineItems(ctx, ticker, names, end, period, limit)
	case "insider-trades":
		out, err = svc.InsiderTrades(ctx, ticker, end, start, limit)
	case "news":
		out, err = svc.CompanyNews(ctx, ticker, end, start, limit)
	case "market-cap":
		out, err = svc.MarketCap(ctx, ticker, end)
	default:
		log.Fatalf("unknown category %q", category)
	}
	if err != nil {
		log.Fatalf("fetch: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func buildFeed(cfg config.Config) *feed.Service {
	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	httpClient.UserAgent = "marketfeed/1.0"

	var (
		priceSources    []provider.PriceSource
		metricsSources  []provider.MetricsSource
		lineItemSources []provider.LineItemSource
		insiderSources  []provider.InsiderSource
		newsSources     []provider.NewsSource
	)
	if cfg.Alpaca.Enabled && cfg.Alpaca.APIKey != "" {
		src := alpaca.New(alpaca.Config{
			DataURL:    cfg.Alpaca.DataURL,
			NewsURL:    cfg.Alpaca.NewsURL,
			Key:        cfg.Alpaca.APIKey,
			Secret:     cfg.Alpaca.APISecret,
			Feed:       cfg.Alpaca.Feed,
			MaxRetries: cfg.Alpaca.MaxRetries,
		}, httpClient)
		priceSources = append(priceSources, src)
		newsSources = append(newsSources, src)
	}
	if cfg.Yahoo.Enabled {
		src := yahoo.New(yahoo.Config{
			ChartURL:   cfg.Yahoo.ChartURL,
			SummaryURL: cfg.Yahoo.SummaryURL,
			MaxRetries: cfg.Yahoo.MaxRetries,
		}, httpClient)
		priceSources = append(priceSources, src)
		metricsSources = append(metricsSources, src)
		lineItemSources = append(lineItemSources, src)
	}
	if cfg.AlphaVantage.Enabled && cfg.AlphaVantage.APIKey != "" {
		avClient := httpClient
		if cfg.AlphaVantage.MaxRequestsPerMinute > 0 {
			burst := cfg.AlphaVantage.Burst
			if burst <= 0 {
				burst = 1
			}
			avClient = httpClient.WithLimiter(ratelimit.PerMinute(cfg.AlphaVantage.MaxRequestsPerMinute, burst))
		}
		priceSources = append(priceSources, alphavantage.New(alphavantage.Config{
			Endpoint:   cfg.AlphaVantage.Endpoint,
			APIKey:     cfg.AlphaVantage.APIKey,
			OutputSize: cfg.AlphaVantage.OutputSize,
			MaxRetries: cfg.AlphaVantage.MaxRetries,
		}, avClient))
	}
	if cfg.NewsAPI.Enabled && cfg.NewsAPI.APIKey != "" {
		naClient := httpClient
		if cfg.NewsAPI.MinRequestIntervalSec > 0 {
			naClient = httpClient.WithLimiter(&ratelimit.MinInterval{
				Interval: time.Duration(cfg.NewsAPI.MinRequestIntervalSec) * time.Second,
			})
		}
		newsSources = append(newsSources, newsapi.New(newsapi.Config{
			Endpoint:   cfg.NewsAPI.Endpoint,
			APIKey:     cfg.NewsAPI.APIKey,
			PageSize:   cfg.NewsAPI.PageSize,
			MaxRetries: cfg.NewsAPI.MaxRetries,
		}, naClient))
	}
	insiderSources = append(insiderSources, edgar.New())

	return feed.New(feed.Options{
		PriceSources:    priceSources,
		MetricsSources:  metricsSources,
		LineItemSources: lineItemSources,
		InsiderSources:  insiderSources,
		NewsSources:     newsSources,
	})
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
