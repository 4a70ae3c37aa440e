// Package edgar is the insider-trade source slot. Form 4 data needs either a
// paid API or full EDGAR filing parsing; until one of those lands this source
// reports no data, which keeps the fallback chain total without inventing
// numbers.
package edgar

import (
	"context"

	"marketfeed/internal/model"
)

type Source struct{}

func New() *Source { return &Source{} }

func (*Source) Name() string { return "sec-edgar" }

func (*Source) InsiderTrades(ctx context.Context, ticker, startDate, endDate string, limit int) ([]model.InsiderTrade, error) {
	return nil, nil
}
