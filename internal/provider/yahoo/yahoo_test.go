package yahoo_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider/yahoo"
)

func newTestSource(chartHandler, summaryHandler http.HandlerFunc) (*yahoo.Source, func()) {
	chart := httptest.NewServer(chartHandler)
	summary := httptest.NewServer(summaryHandler)
	src := yahoo.New(yahoo.Config{
		ChartURL:   chart.URL,
		SummaryURL: summary.URL,
	}, httpx.New(5*time.Second))
	return src, func() {
		chart.Close()
		summary.Close()
	}
}

func TestPrices_SkipsNullBars(t *testing.T) {
	// 2024-01-02, 2024-01-03 (holiday: nulls), 2024-01-04
	chartBody := `{"chart":{"result":[{
		"timestamp":[1704153600,1704240000,1704326400],
		"indicators":{"quote":[{
			"open":[185.0,null,182.0],
			"high":[186.0,null,183.0],
			"low":[184.0,null,181.0],
			"close":[185.5,null,182.5],
			"volume":[1000,null,3000]
		}]}
	}],"error":null}}`

	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "1d", r.URL.Query().Get("interval"))
			require.NotEmpty(t, r.URL.Query().Get("period1"))
			require.NotEmpty(t, r.URL.Query().Get("period2"))
			_, _ = w.Write([]byte(chartBody))
		},
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("summary endpoint must not be hit") },
	)
	defer done()

	prices, err := src.Prices(t.Context(), "AAPL", "2024-01-01", "2024-01-05")
	require.NoError(t, err)

	require.Len(t, prices, 2, "null bar must be dropped")
	require.Equal(t, "2024-01-02T00:00:00Z", prices[0].Time)
	require.Equal(t, "2024-01-04T00:00:00Z", prices[1].Time)
	require.InDelta(t, 185.5, prices[0].Close, 1e-9)
	require.EqualValues(t, 3000, prices[1].Volume)
}

func TestPrices_MalformedDate(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("must not be hit") },
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("must not be hit") },
	)
	defer done()

	_, err := src.Prices(t.Context(), "AAPL", "01/02/2024", "2024-01-05")
	require.Error(t, err)
}

func TestPrices_ChartError(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
		},
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("must not be hit") },
	)
	defer done()

	_, err := src.Prices(t.Context(), "NOPE", "2024-01-01", "2024-01-05")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No data found")
}

const summaryBody = `{"quoteSummary":{"result":[{
	"price":{"currency":"USD","marketCap":{"raw":3000000000000}},
	"summaryDetail":{"trailingPE":{"raw":30.5},"priceToSalesTrailing12Months":{"raw":8.1},"payoutRatio":{"raw":0.15}},
	"defaultKeyStatistics":{"priceToBook":{"raw":45.2},"enterpriseValue":{"raw":3050000000000},"trailingEps":{"raw":6.1},"bookValue":{"raw":4.2}},
	"financialData":{"currentRatio":{"raw":1.1},"returnOnEquity":{"raw":1.5},"totalDebt":{"raw":110000000000},"freeCashflow":{"raw":100000000000}},
	"incomeStatementHistory":{"incomeStatementHistory":[
		{"endDate":{"raw":1696032000},"totalRevenue":{"raw":383000000000},"grossProfit":{"raw":169000000000},"netIncome":{"raw":97000000000}}
	]},
	"balanceSheetHistory":{"balanceSheetStatements":[
		{"endDate":{"raw":1696032000},"totalAssets":{"raw":352000000000},"totalStockholderEquity":{"raw":62000000000},"totalCurrentAssets":{"raw":143000000000},"totalCurrentLiabilities":{"raw":145000000000},"cash":{"raw":30000000000}}
	]},
	"cashflowStatementHistory":{"cashflowStatements":[
		{"endDate":{"raw":1696032000},"totalCashFromOperatingActivities":{"raw":110000000000},"capitalExpenditures":{"raw":-10900000000}}
	]}
}],"error":null}}`

func TestFinancialMetrics(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("chart endpoint must not be hit") },
		func(w http.ResponseWriter, r *http.Request) {
			require.Contains(t, r.URL.Query().Get("modules"), "financialData")
			_, _ = w.Write([]byte(summaryBody))
		},
	)
	defer done()

	metrics, err := src.FinancialMetrics(t.Context(), "AAPL", "2024-01-31", "ttm", 1)
	require.NoError(t, err)
	require.Len(t, metrics, 1)

	m := metrics[0]
	require.Equal(t, "AAPL", m.Ticker)
	require.Equal(t, "USD", m.Currency)
	require.True(t, m.MarketCap.Valid)
	require.InDelta(t, 3e12, m.MarketCap.Float64, 1)

	// derived from the statements
	require.True(t, m.NetMargin.Valid)
	require.InDelta(t, 97.0/383.0, m.NetMargin.Float64, 1e-6)
	require.True(t, m.DebtToEquity.Valid)
	require.InDelta(t, 110.0/62.0, m.DebtToEquity.Float64, 1e-6)

	// never supplied by Yahoo: absent, not zero
	require.False(t, m.InventoryTurnover.Valid)
	require.False(t, m.EBITDAGrowth.Valid)
}

func TestFinancialMetrics_ZeroDenominatorStaysAbsent(t *testing.T) {
	body := `{"quoteSummary":{"result":[{
		"price":{"currency":"USD"},
		"incomeStatementHistory":{"incomeStatementHistory":[
			{"totalRevenue":{"raw":0},"netIncome":{"raw":5}}
		]}
	}],"error":null}}`
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("chart endpoint must not be hit") },
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(body)) },
	)
	defer done()

	metrics, err := src.FinancialMetrics(t.Context(), "ZERO", "2024-01-31", "ttm", 1)
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	require.False(t, metrics[0].NetMargin.Valid, "division by zero revenue must stay absent")
}

func TestSearchLineItems(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("chart endpoint must not be hit") },
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(summaryBody)) },
	)
	defer done()

	items, err := src.SearchLineItems(t.Context(), "AAPL",
		[]string{"total revenue", "capital expenditures", "no such line"},
		"2024-01-31", "annual", 10)
	require.NoError(t, err)

	// unmatched names are dropped, matched ones keep snake_case keys
	require.Len(t, items, 2)
	require.Equal(t, "total_revenue", items[0].Name)
	require.InDelta(t, 383e9, items[0].Value, 1)
	require.Equal(t, "capital_expenditures", items[1].Name)
	require.Equal(t, "annual", items[0].Period)
}

func TestSearchLineItems_CaseInsensitiveFirstMatchAndLimit(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("chart endpoint must not be hit") },
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(summaryBody)) },
	)
	defer done()

	// "Total" matches several statement lines; the first (Total Revenue) wins
	items, err := src.SearchLineItems(t.Context(), "AAPL", []string{"TOTAL"}, "2024-01-31", "ttm", 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "total_revenue", items[0].Name)

	// limit truncates
	items, err = src.SearchLineItems(t.Context(), "AAPL",
		[]string{"total revenue", "gross profit", "net income"}, "2024-01-31", "ttm", 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestQuoteSummary_EmptyResultIsSoft(t *testing.T) {
	src, done := newTestSource(
		func(w http.ResponseWriter, r *http.Request) { t.Fatal("chart endpoint must not be hit") },
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"quoteSummary":{"result":[],"error":null}}`))
		},
	)
	defer done()

	metrics, err := src.FinancialMetrics(t.Context(), "NOPE", "2024-01-31", "ttm", 1)
	require.NoError(t, err)
	require.Empty(t, metrics)
}
