package recorder

import "marketfeed/internal/model"

// Noop is used when no recorder database is configured.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (*Noop) RecordPrices(_ string, _ []model.Price) error { return nil }
func (*Noop) Close() error                                 { return nil }
