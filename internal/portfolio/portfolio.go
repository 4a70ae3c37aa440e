// Package portfolio builds the portfolio state the trading loop consumes,
// either flat from an initial cash balance or seeded with live brokerage
// positions.
package portfolio

import (
	"context"
	"fmt"

	"marketfeed/internal/broker"
)

type Position struct {
	Long            float64 `json:"long"`
	Short           float64 `json:"short"`
	LongCostBasis   float64 `json:"long_cost_basis"`
	ShortCostBasis  float64 `json:"short_cost_basis"`
	ShortMarginUsed float64 `json:"short_margin_used"`
}

type RealizedGains struct {
	Long  float64 `json:"long"`
	Short float64 `json:"short"`
}

type Portfolio struct {
	Cash              float64                  `json:"cash"`
	MarginRequirement float64                  `json:"margin_requirement"`
	MarginUsed        float64                  `json:"margin_used"`
	Positions         map[string]Position      `json:"positions"`
	RealizedGains     map[string]RealizedGains `json:"realized_gains"`
}

// New builds a flat portfolio holding only cash.
func New(initialCash, marginRequirement float64, tickers []string) *Portfolio {
	p := &Portfolio{
		Cash:              initialCash,
		MarginRequirement: marginRequirement,
		Positions:         make(map[string]Position, len(tickers)),
		RealizedGains:     make(map[string]RealizedGains, len(tickers)),
	}
	for _, t := range tickers {
		p.Positions[t] = Position{}
		p.RealizedGains[t] = RealizedGains{}
	}
	return p
}

// FromBroker seeds a portfolio from live brokerage state: account cash plus
// the current long position per ticker. Shorts are not tracked here.
func FromBroker(ctx context.Context, c *broker.Client, marginRequirement float64, tickers []string) (*Portfolio, error) {
	acct, err := c.Account(ctx)
	if err != nil {
		return nil, fmt.Errorf("portfolio: account: %w", err)
	}

	p := New(acct.Cash, marginRequirement, tickers)
	for _, t := range tickers {
		pos, err := c.Position(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("portfolio: position %s: %w", t, err)
		}
		if pos == nil {
			continue
		}
		p.Positions[t] = Position{
			Long:          pos.Qty,
			LongCostBasis: pos.AvgEntryPrice,
		}
	}
	return p, nil
}
