// Package provider defines the per-category source interfaces every vendor
// adapter implements, one interface per data category so chains can grow a
// provider without touching callers.
package provider

import (
	"context"
	"fmt"

	"marketfeed/internal/model"
)

// A source returning an empty slice and a nil error has nothing for the
// query; the fallback chain advances to the next source either way, so
// adapters should report real failures as errors for the logs.

type PriceSource interface {
	Name() string
	Prices(ctx context.Context, ticker, startDate, endDate string) ([]model.Price, error)
}

type MetricsSource interface {
	Name() string
	FinancialMetrics(ctx context.Context, ticker, endDate, period string, limit int) ([]model.FinancialMetrics, error)
}

type LineItemSource interface {
	Name() string
	SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate, period string, limit int) ([]model.LineItem, error)
}

type InsiderSource interface {
	Name() string
	InsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]model.InsiderTrade, error)
}

type NewsSource interface {
	Name() string
	CompanyNews(ctx context.Context, ticker, startDate, endDate string, limit int) ([]model.CompanyNews, error)
}

// StatusError reports a non-success HTTP response from a vendor.
type StatusError struct {
	Provider string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Provider, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Status, e.Body)
}
