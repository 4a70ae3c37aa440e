package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/guregu/null/v6"
)

// TimeLayout is the canonical timestamp format all sources normalize to.
// It sorts lexicographically, which the price-series invariant relies on.
const TimeLayout = "2006-01-02T15:04:05Z"

// DateLayout is the wire format for caller-supplied dates.
const DateLayout = "2006-01-02"

// Price is one normalized OHLCV bar.
type Price struct {
	Time   string  `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// SortPrices orders a series ascending by time, in place.
func SortPrices(prices []Price) {
	sort.SliceStable(prices, func(i, j int) bool { return prices[i].Time < prices[j].Time })
}

// FinancialMetrics is one reporting period of derived ratios and growth
// figures. Every numeric field is nullable: a provider that cannot supply a
// value leaves it absent rather than zero, so downstream reasoning can tell
// "unknown" from "actually zero".
type FinancialMetrics struct {
	Ticker       string `json:"ticker"`
	ReportPeriod string `json:"report_period"`
	Period       string `json:"period"`
	Currency     string `json:"currency"`

	MarketCap                     null.Float `json:"market_cap"`
	EnterpriseValue               null.Float `json:"enterprise_value"`
	PriceToEarningsRatio          null.Float `json:"price_to_earnings_ratio"`
	PriceToBookRatio              null.Float `json:"price_to_book_ratio"`
	PriceToSalesRatio             null.Float `json:"price_to_sales_ratio"`
	EnterpriseValueToEBITDARatio  null.Float `json:"enterprise_value_to_ebitda_ratio"`
	EnterpriseValueToRevenueRatio null.Float `json:"enterprise_value_to_revenue_ratio"`
	FreeCashFlowYield             null.Float `json:"free_cash_flow_yield"`
	PEGRatio                      null.Float `json:"peg_ratio"`
	GrossMargin                   null.Float `json:"gross_margin"`
	OperatingMargin               null.Float `json:"operating_margin"`
	NetMargin                     null.Float `json:"net_margin"`
	ReturnOnEquity                null.Float `json:"return_on_equity"`
	ReturnOnAssets                null.Float `json:"return_on_assets"`
	ReturnOnInvestedCapital       null.Float `json:"return_on_invested_capital"`
	AssetTurnover                 null.Float `json:"asset_turnover"`
	InventoryTurnover             null.Float `json:"inventory_turnover"`
	ReceivablesTurnover           null.Float `json:"receivables_turnover"`
	DaysSalesOutstanding          null.Float `json:"days_sales_outstanding"`
	OperatingCycle                null.Float `json:"operating_cycle"`
	WorkingCapitalTurnover        null.Float `json:"working_capital_turnover"`
	CurrentRatio                  null.Float `json:"current_ratio"`
	QuickRatio                    null.Float `json:"quick_ratio"`
	CashRatio                     null.Float `json:"cash_ratio"`
	OperatingCashFlowRatio        null.Float `json:"operating_cash_flow_ratio"`
	DebtToEquity                  null.Float `json:"debt_to_equity"`
	DebtToAssets                  null.Float `json:"debt_to_assets"`
	InterestCoverage              null.Float `json:"interest_coverage"`
	RevenueGrowth                 null.Float `json:"revenue_growth"`
	EarningsGrowth                null.Float `json:"earnings_growth"`
	BookValueGrowth               null.Float `json:"book_value_growth"`
	EarningsPerShareGrowth        null.Float `json:"earnings_per_share_growth"`
	FreeCashFlowGrowth            null.Float `json:"free_cash_flow_growth"`
	OperatingIncomeGrowth         null.Float `json:"operating_income_growth"`
	EBITDAGrowth                  null.Float `json:"ebitda_growth"`
	PayoutRatio                   null.Float `json:"payout_ratio"`
	EarningsPerShare              null.Float `json:"earnings_per_share"`
	BookValuePerShare             null.Float `json:"book_value_per_share"`
	FreeCashFlowPerShare          null.Float `json:"free_cash_flow_per_share"`
}

// InsiderTrade is one reported insider transaction. No wired source produces
// these yet; the shape exists so the fallback chain and cache stay uniform.
type InsiderTrade struct {
	Ticker                      string     `json:"ticker"`
	Issuer                      string     `json:"issuer"`
	Name                        string     `json:"name"`
	Title                       string     `json:"title"`
	TransactionDate             string     `json:"transaction_date"`
	TransactionShares           null.Float `json:"transaction_shares"`
	TransactionPricePerShare    null.Float `json:"transaction_price_per_share"`
	TransactionValue            null.Float `json:"transaction_value"`
	SharesOwnedAfterTransaction null.Float `json:"shares_owned_after_transaction"`
	FilingDate                  string     `json:"filing_date"`
}

// CompanyNews is one normalized article. Sentiment stays absent unless a
// provider explicitly supplies it.
type CompanyNews struct {
	Ticker    string      `json:"ticker"`
	Title     string      `json:"title"`
	Author    string      `json:"author"`
	Source    string      `json:"source"`
	Date      string      `json:"date"`
	URL       string      `json:"url"`
	Sentiment null.String `json:"sentiment"`
}

// Timestamp formats t in the canonical layout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// DateTimestamp formats a YYYY-MM-DD date as a canonical midnight timestamp.
func DateTimestamp(date string) string {
	return date + "T00:00:00Z"
}

// ParseDate validates a caller-supplied YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// Ratio divides num by den, yielding absent when either side is absent or the
// denominator is zero. Never NaN, never Inf, never a panic.
func Ratio(num, den null.Float) null.Float {
	if !num.Valid || !den.Valid || den.Float64 == 0 {
		return null.Float{}
	}
	return null.FloatFrom(num.Float64 / den.Float64)
}
