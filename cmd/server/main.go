package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketfeed/internal/broker"
	"marketfeed/internal/cache"
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
	"marketfeed/internal/recorder"
)

func main() {
	// .env first so config env overrides pick up local credentials
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	port := cfg.Server.Port
	timeoutSec := cfg.Server.RequestTimeoutSec

	httpClient := httpx.New(time.Duration(timeoutSec) * time.Second)
	httpClient.UserAgent = "marketfeed/1.0"

	var (
		priceSources    []provider.PriceSource
		metricsSources  []provider.MetricsSource
		lineItemSources []provider.LineItemSource
		insiderSources  []provider.InsiderSource
		newsSources     []provider.NewsSource
	)

	if cfg.Alpaca.Enabled {
		if cfg.Alpaca.APIKey == "" {
			log.Println("warning: alpaca.enabled=true but ALPACA_API_KEY not set; skipping")
		} else {
			src := alpaca.New(alpaca.Config{
				Name:       "alpaca",
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
	}
	if cfg.Yahoo.Enabled {
		src := yahoo.New(yahoo.Config{
			Name:       "yahoo",
			ChartURL:   cfg.Yahoo.ChartURL,
			SummaryURL: cfg.Yahoo.SummaryURL,
			MaxRetries: cfg.Yahoo.MaxRetries,
		}, httpClient)
		priceSources = append(priceSources, src)
		metricsSources = append(metricsSources, src)
		lineItemSources = append(lineItemSources, src)
	}
	if cfg.AlphaVantage.Enabled {
		if cfg.AlphaVantage.APIKey == "" {
			log.Println("warning: alphavantage.enabled=true but ALPHA_VANTAGE_API_KEY not set; skipping")
		} else {
			avClient := httpClient
			// free tier is 5 req/min; gate before the request leaves
			if cfg.AlphaVantage.MaxRequestsPerMinute > 0 {
				burst := cfg.AlphaVantage.Burst
				if burst <= 0 {
					burst = 1
				}
				avClient = httpClient.WithLimiter(ratelimit.PerMinute(cfg.AlphaVantage.MaxRequestsPerMinute, burst))
			}
			priceSources = append(priceSources, alphavantage.New(alphavantage.Config{
				Name:       "alphavantage",
				Endpoint:   cfg.AlphaVantage.Endpoint,
				APIKey:     cfg.AlphaVantage.APIKey,
				OutputSize: cfg.AlphaVantage.OutputSize,
				MaxRetries: cfg.AlphaVantage.MaxRetries,
			}, avClient))
		}
	}
	if cfg.NewsAPI.Enabled {
		if cfg.NewsAPI.APIKey == "" {
			log.Println("warning: newsapi.enabled=true but NEWS_API_KEY not set; skipping")
		} else {
			naClient := httpClient
			if cfg.NewsAPI.MinRequestIntervalSec > 0 {
				naClient = httpClient.WithLimiter(&ratelimit.MinInterval{
					Interval: time.Duration(cfg.NewsAPI.MinRequestIntervalSec) * time.Second,
				})
			}
			newsSources = append(newsSources, newsapi.New(newsapi.Config{
				Name:       "newsapi",
				Endpoint:   cfg.NewsAPI.Endpoint,
				APIKey:     cfg.NewsAPI.APIKey,
				PageSize:   cfg.NewsAPI.PageSize,
				MaxRetries: cfg.NewsAPI.MaxRetries,
			}, naClient))
		}
	}
	insiderSources = append(insiderSources, edgar.New())

	var rec recorder.Recorder = recorder.NewNoop()
	if cfg.Recorder.Path != "" {
		sqlRec, err := recorder.NewSQLite(cfg.Recorder.Path)
		if err != nil {
			log.Fatalf("recorder: %v", err)
		}
		defer sqlRec.Close()
		rec = sqlRec
	}

	svc := feed.New(feed.Options{
		Cache: cache.New(cache.Options{
			TTL:        time.Duration(cfg.Cache.TTLSeconds) * time.Second,
			MaxEntries: cfg.Cache.MaxEntries,
		}),
		PriceSources:    priceSources,
		MetricsSources:  metricsSources,
		LineItemSources: lineItemSources,
		InsiderSources:  insiderSources,
		NewsSources:     newsSources,
		Recorder:        rec,
	})

	var brokerClient *broker.Client
	if cfg.Alpaca.APIKey != "" && cfg.Alpaca.APISecret != "" {
		tradeURL := cfg.Alpaca.TradeURL
		if tradeURL == "" && !cfg.Alpaca.Paper {
			tradeURL = "https://api.alpaca.markets"
		}
		brokerClient = broker.New(broker.Config{
			BaseURL: tradeURL,
			Key:     cfg.Alpaca.APIKey,
			Secret:  cfg.Alpaca.APISecret,
		}, httpClient)
	}

	s := &server{
		feed:       svc,
		broker:     brokerClient,
		reqTimeout: time.Duration(timeoutSec) * time.Second,
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           withJSONHeaders(withGzip(recoverPanic(limitBody(s.routes())))),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Duration(timeoutSec) * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("server listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
