// Package recorder persists an audit trail of freshly fetched price series,
// so backfills and provider discrepancies can be inspected after the fact.
package recorder

import "marketfeed/internal/model"

type Recorder interface {
	RecordPrices(ticker string, prices []model.Price) error
	Close() error
}
