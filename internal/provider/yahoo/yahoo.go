// Package yahoo reads the public Yahoo Finance endpoints: the v8 chart API
// for daily bars and the v10 quoteSummary API for fundamentals. No API key;
// Yahoo does reject non-browser user agents, hence the explicit header.
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/guregu/null/v6"

	"marketfeed/internal/httpx"
	"marketfeed/internal/model"
	"marketfeed/internal/provider"
)

const userAgent = "Mozilla/5.0"

type Config struct {
	Name       string
	ChartURL   string // default https://query1.finance.yahoo.com/v8/finance/chart
	SummaryURL string // default https://query1.finance.yahoo.com/v10/finance/quoteSummary
	MaxRetries int
}

type Source struct {
	cfg    Config
	client *httpx.Client
}

func New(cfg Config, hc *httpx.Client) *Source {
	if cfg.Name == "" {
		cfg.Name = "yahoo"
	}
	if cfg.ChartURL == "" {
		cfg.ChartURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	}
	if cfg.SummaryURL == "" {
		cfg.SummaryURL = "https://query1.finance.yahoo.com/v10/finance/quoteSummary"
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	return &Source{cfg: cfg, client: hc}
}

func (s *Source) Name() string { return s.cfg.Name }

// chartResponse is the v8 chart shape. Yahoo emits JSON nulls inside the
// quote arrays for holidays and halts, so the slices hold pointers.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func (s *Source) Prices(ctx context.Context, ticker, startDate, endDate string) ([]model.Price, error) {
	start, err := model.ParseDate(startDate)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseDate(endDate)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("period1", fmt.Sprintf("%d", start.Unix()))
	// period2 is exclusive; push it past the end date so that day is kept.
	q.Set("period2", fmt.Sprintf("%d", end.Add(24*time.Hour).Unix()))
	q.Set("interval", "1d")
	q.Set("includePrePost", "false")
	reqURL := fmt.Sprintf("%s/%s?%s", s.cfg.ChartURL, url.PathEscape(ticker), q.Encode())

	var chart chartResponse
	if err := s.getJSON(ctx, reqURL, &chart); err != nil {
		return nil, err
	}
	if chart.Chart.Error != nil {
		return nil, fmt.Errorf("%s: chart error: %s", s.cfg.Name, chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 || len(chart.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, nil
	}

	result := chart.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	prices := make([]model.Price, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		o := deref(at(quote.Open, i))
		h := deref(at(quote.High, i))
		l := deref(at(quote.Low, i))
		c := deref(at(quote.Close, i))
		if o == 0 && h == 0 && l == 0 && c == 0 {
			continue // null bar (holiday etc.)
		}
		var vol int64
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			vol = *quote.Volume[i]
		}
		prices = append(prices, model.Price{
			Time:   model.Timestamp(time.Unix(ts, 0)),
			Open:   o,
			High:   h,
			Low:    l,
			Close:  c,
			Volume: vol,
		})
	}
	model.SortPrices(prices)
	return prices, nil
}

func (s *Source) FinancialMetrics(ctx context.Context, ticker, endDate, period string, limit int) ([]model.FinancialMetrics, error) {
	sum, err := s.quoteSummary(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, nil
	}

	income := latestIncome(sum)
	balance := latestBalance(sum)
	cashflow := latestCashflow(sum)
	fd := sum.FinancialData
	sd := sum.SummaryDetail
	ks := sum.DefaultKeyStatistics

	currency := sum.Price.Currency
	if currency == "" {
		currency = "USD"
	}
	marketCap := orElse(sum.Price.MarketCap.nullable(), sd.MarketCap.nullable())

	totalDebt := orElse(fd.TotalDebt.nullable(), balance.LongTermDebt.nullable())
	equity := balance.TotalStockholderEquity.nullable()
	totalAssets := balance.TotalAssets.nullable()
	totalRevenue := income.TotalRevenue.nullable()
	netIncome := income.NetIncome.nullable()

	m := model.FinancialMetrics{
		Ticker:       ticker,
		ReportPeriod: endDate,
		Period:       period,
		Currency:     currency,

		MarketCap:                     marketCap,
		EnterpriseValue:               ks.EnterpriseValue.nullable(),
		PriceToEarningsRatio:          sd.TrailingPE.nullable(),
		PriceToBookRatio:              ks.PriceToBook.nullable(),
		PriceToSalesRatio:             sd.PriceToSalesTrailing12Months.nullable(),
		EnterpriseValueToEBITDARatio:  ks.EnterpriseToEbitda.nullable(),
		EnterpriseValueToRevenueRatio: ks.EnterpriseToRevenue.nullable(),
		FreeCashFlowYield:             model.Ratio(fd.FreeCashflow.nullable(), marketCap),
		PEGRatio:                      ks.PegRatio.nullable(),
		GrossMargin:                   orElse(model.Ratio(income.GrossProfit.nullable(), totalRevenue), fd.GrossMargins.nullable()),
		OperatingMargin:               orElse(model.Ratio(income.OperatingIncome.nullable(), totalRevenue), fd.OperatingMargins.nullable()),
		NetMargin:                     orElse(model.Ratio(netIncome, totalRevenue), fd.ProfitMargins.nullable()),
		ReturnOnEquity:                orElse(model.Ratio(netIncome, equity), fd.ReturnOnEquity.nullable()),
		ReturnOnAssets:                orElse(model.Ratio(netIncome, totalAssets), fd.ReturnOnAssets.nullable()),
		CurrentRatio:                  orElse(model.Ratio(balance.TotalCurrentAssets.nullable(), balance.TotalCurrentLiabilities.nullable()), fd.CurrentRatio.nullable()),
		QuickRatio:                    fd.QuickRatio.nullable(),
		CashRatio:                     model.Ratio(balance.Cash.nullable(), balance.TotalCurrentLiabilities.nullable()),
		OperatingCashFlowRatio:        model.Ratio(cashflow.TotalCashFromOperatingActivities.nullable(), balance.TotalCurrentLiabilities.nullable()),
		DebtToEquity:                  model.Ratio(totalDebt, equity),
		DebtToAssets:                  model.Ratio(totalDebt, totalAssets),
		AssetTurnover:                 model.Ratio(totalRevenue, totalAssets),
		RevenueGrowth:                 fd.RevenueGrowth.nullable(),
		EarningsGrowth:                fd.EarningsGrowth.nullable(),
		PayoutRatio:                   sd.PayoutRatio.nullable(),
		EarningsPerShare:              ks.TrailingEps.nullable(),
		BookValuePerShare:             ks.BookValue.nullable(),
	}
	return []model.FinancialMetrics{m}, nil
}

func (s *Source) SearchLineItems(ctx context.Context, ticker string, lineItems []string, endDate, period string, limit int) ([]model.LineItem, error) {
	sum, err := s.quoteSummary(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if sum == nil {
		return nil, nil
	}

	currency := sum.Price.Currency
	if currency == "" {
		currency = "USD"
	}
	entries := statementEntries(sum)

	results := make([]model.LineItem, 0, len(lineItems))
	for _, wanted := range lineItems {
		needle := strings.ToLower(wanted)
		for _, e := range entries {
			if !strings.Contains(strings.ToLower(e.name), needle) {
				continue
			}
			if !e.value.Valid {
				continue
			}
			results = append(results, model.LineItem{
				Ticker:       ticker,
				ReportPeriod: endDate,
				Period:       period,
				Currency:     currency,
				Name:         model.LineItemKey(e.name),
				Value:        e.value.Float64,
			})
			break // first matching statement key wins
		}
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// statementEntries flattens the three statements into one ordered list;
// income precedes balance precedes cash flow, so shared key names resolve to
// the income statement first.
func statementEntries(sum *summaryResult) []statementEntry {
	income := latestIncome(sum)
	balance := latestBalance(sum)
	cashflow := latestCashflow(sum)
	return []statementEntry{
		{"Total Revenue", income.TotalRevenue.nullable()},
		{"Cost Of Revenue", income.CostOfRevenue.nullable()},
		{"Gross Profit", income.GrossProfit.nullable()},
		{"Operating Income", income.OperatingIncome.nullable()},
		{"Net Income", income.NetIncome.nullable()},
		{"Ebit", income.Ebit.nullable()},
		{"Interest Expense", income.InterestExpense.nullable()},
		{"Income Tax Expense", income.IncomeTaxExpense.nullable()},
		{"Total Assets", balance.TotalAssets.nullable()},
		{"Total Current Assets", balance.TotalCurrentAssets.nullable()},
		{"Total Current Liabilities", balance.TotalCurrentLiabilities.nullable()},
		{"Total Liabilities", balance.TotalLiab.nullable()},
		{"Stockholders Equity", balance.TotalStockholderEquity.nullable()},
		{"Long Term Debt", balance.LongTermDebt.nullable()},
		{"Short Long Term Debt", balance.ShortLongTermDebt.nullable()},
		{"Cash", balance.Cash.nullable()},
		{"Inventory", balance.Inventory.nullable()},
		{"Net Receivables", balance.NetReceivables.nullable()},
		{"Total Cash From Operating Activities", cashflow.TotalCashFromOperatingActivities.nullable()},
		{"Capital Expenditures", cashflow.CapitalExpenditures.nullable()},
		{"Depreciation", cashflow.Depreciation.nullable()},
		{"Dividends Paid", cashflow.DividendsPaid.nullable()},
		{"Net Borrowings", cashflow.NetBorrowings.nullable()},
	}
}

type statementEntry struct {
	name  string
	value null.Float
}

// value is Yahoo's {"raw": n, "fmt": "..."} wrapper.
type value struct {
	Raw *float64 `json:"raw"`
}

func (v value) nullable() null.Float { return null.FloatFromPtr(v.Raw) }

type incomeStatement struct {
	EndDate          value `json:"endDate"`
	TotalRevenue     value `json:"totalRevenue"`
	CostOfRevenue    value `json:"costOfRevenue"`
	GrossProfit      value `json:"grossProfit"`
	OperatingIncome  value `json:"operatingIncome"`
	NetIncome        value `json:"netIncome"`
	Ebit             value `json:"ebit"`
	InterestExpense  value `json:"interestExpense"`
	IncomeTaxExpense value `json:"incomeTaxExpense"`
}

type balanceSheet struct {
	EndDate                 value `json:"endDate"`
	TotalAssets             value `json:"totalAssets"`
	TotalCurrentAssets      value `json:"totalCurrentAssets"`
	TotalCurrentLiabilities value `json:"totalCurrentLiabilities"`
	TotalLiab               value `json:"totalLiab"`
	TotalStockholderEquity  value `json:"totalStockholderEquity"`
	LongTermDebt            value `json:"longTermDebt"`
	ShortLongTermDebt       value `json:"shortLongTermDebt"`
	Cash                    value `json:"cash"`
	Inventory               value `json:"inventory"`
	NetReceivables          value `json:"netReceivables"`
}

type cashflowStatement struct {
	EndDate                          value `json:"endDate"`
	TotalCashFromOperatingActivities value `json:"totalCashFromOperatingActivities"`
	CapitalExpenditures              value `json:"capitalExpenditures"`
	Depreciation                     value `json:"depreciation"`
	DividendsPaid                    value `json:"dividendsPaid"`
	NetBorrowings                    value `json:"netBorrowings"`
}

type summaryResult struct {
	Price struct {
		Currency  string `json:"currency"`
		MarketCap value  `json:"marketCap"`
	} `json:"price"`
	SummaryDetail struct {
		TrailingPE                   value `json:"trailingPE"`
		PriceToSalesTrailing12Months value `json:"priceToSalesTrailing12Months"`
		PayoutRatio                  value `json:"payoutRatio"`
		MarketCap                    value `json:"marketCap"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics struct {
		PriceToBook         value `json:"priceToBook"`
		EnterpriseValue     value `json:"enterpriseValue"`
		EnterpriseToEbitda  value `json:"enterpriseToEbitda"`
		EnterpriseToRevenue value `json:"enterpriseToRevenue"`
		PegRatio            value `json:"pegRatio"`
		TrailingEps         value `json:"trailingEps"`
		BookValue           value `json:"bookValue"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		CurrentRatio     value `json:"currentRatio"`
		QuickRatio       value `json:"quickRatio"`
		ReturnOnEquity   value `json:"returnOnEquity"`
		ReturnOnAssets   value `json:"returnOnAssets"`
		GrossMargins     value `json:"grossMargins"`
		OperatingMargins value `json:"operatingMargins"`
		ProfitMargins    value `json:"profitMargins"`
		RevenueGrowth    value `json:"revenueGrowth"`
		EarningsGrowth   value `json:"earningsGrowth"`
		TotalDebt        value `json:"totalDebt"`
		FreeCashflow     value `json:"freeCashflow"`
	} `json:"financialData"`
	IncomeStatementHistory struct {
		Statements []incomeStatement `json:"incomeStatementHistory"`
	} `json:"incomeStatementHistory"`
	BalanceSheetHistory struct {
		Statements []balanceSheet `json:"balanceSheetStatements"`
	} `json:"balanceSheetHistory"`
	CashflowStatementHistory struct {
		Statements []cashflowStatement `json:"cashflowStatements"`
	} `json:"cashflowStatementHistory"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

const summaryModules = "price,summaryDetail,defaultKeyStatistics,financialData," +
	"incomeStatementHistory,balanceSheetHistory,cashflowStatementHistory"

func (s *Source) quoteSummary(ctx context.Context, ticker string) (*summaryResult, error) {
	q := url.Values{}
	q.Set("modules", summaryModules)
	reqURL := fmt.Sprintf("%s/%s?%s", s.cfg.SummaryURL, url.PathEscape(ticker), q.Encode())

	var out quoteSummaryResponse
	if err := s.getJSON(ctx, reqURL, &out); err != nil {
		return nil, err
	}
	if out.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("%s: quoteSummary error: %s", s.cfg.Name, out.QuoteSummary.Error.Description)
	}
	if len(out.QuoteSummary.Result) == 0 {
		return nil, nil
	}
	return &out.QuoteSummary.Result[0], nil
}

func (s *Source) getJSON(ctx context.Context, reqURL string, dst any) error {
	resp, err := s.client.DoRetry(ctx, s.cfg.MaxRetries, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return &provider.StatusError{Provider: s.cfg.Name, Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("%s: decode: %w", s.cfg.Name, err)
	}
	return nil
}

func latestIncome(sum *summaryResult) incomeStatement {
	if st := sum.IncomeStatementHistory.Statements; len(st) > 0 {
		return st[0]
	}
	return incomeStatement{}
}

func latestBalance(sum *summaryResult) balanceSheet {
	if st := sum.BalanceSheetHistory.Statements; len(st) > 0 {
		return st[0]
	}
	return balanceSheet{}
}

func latestCashflow(sum *summaryResult) cashflowStatement {
	if st := sum.CashflowStatementHistory.Statements; len(st) > 0 {
		return st[0]
	}
	return cashflowStatement{}
}

func orElse(a, b null.Float) null.Float {
	if a.Valid {
		return a
	}
	return b
}

func at(xs []*float64, i int) *float64 {
	if i < len(xs) {
		return xs[i]
	}
	return nil
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
