package alphavantage_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketfeed/internal/httpx"
	"marketfeed/internal/provider/alphavantage"
)

func newTestSource(handler http.HandlerFunc) (*alphavantage.Source, func()) {
	srv := httptest.NewServer(handler)
	src := alphavantage.New(alphavantage.Config{
		Endpoint: srv.URL,
		APIKey:   "test-key",
	}, httpx.New(5*time.Second))
	return src, srv.Close
}

const dailyBody = `{
	"Meta Data": {"2. Symbol": "AAPL", "3. Last Refreshed": "2024-01-10"},
	"Time Series (Daily)": {
		"2024-01-10": {"1. open":"186.0","2. high":"187.0","3. low":"185.0","4. close":"186.2","5. volume":"4000"},
		"2024-01-04": {"1. open":"182.0","2. high":"183.0","3. low":"181.0","4. close":"182.5","5. volume":"3000"},
		"2024-01-02": {"1. open":"185.0","2. high":"186.0","3. low":"184.0","4. close":"185.5","5. volume":"1000"},
		"2023-12-29": {"1. open":"193.0","2. high":"194.0","3. low":"192.0","4. close":"193.5","5. volume":"9000"}
	}
}`

func TestPrices_InclusiveWindowAndSort(t *testing.T) {
	src, done := newTestSource(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		require.Equal(t, "full", r.URL.Query().Get("outputsize"))
		require.Equal(t, "test-key", r.URL.Query().Get("apikey"))
		_, _ = w.Write([]byte(dailyBody))
	})
	defer done()

	// window [2024-01-02, 2024-01-04]: both endpoints inclusive, the rest
	// filtered client-side
	prices, err := src.Prices(t.Context(), "AAPL", "2024-01-02", "2024-01-04")
	require.NoError(t, err)

	require.Len(t, prices, 2)
	require.Equal(t, "2024-01-02T00:00:00Z", prices[0].Time)
	require.Equal(t, "2024-01-04T00:00:00Z", prices[1].Time)
	require.InDelta(t, 185.5, prices[0].Close, 1e-9)
	require.EqualValues(t, 1000, prices[0].Volume)
}

func TestPrices_NoAPIKey(t *testing.T) {
	src := alphavantage.New(alphavantage.Config{}, httpx.New(time.Second))
	_, err := src.Prices(t.Context(), "AAPL", "2024-01-02", "2024-01-04")
	require.ErrorIs(t, err, alphavantage.ErrNoAPIKey)
}

func TestPrices_ThrottleNoteIsError(t *testing.T) {
	src, done := newTestSource(func(w http.ResponseWriter, r *http.Request) {
		// Alpha Vantage reports throttling with HTTP 200 and a Note
		_, _ = w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})
	defer done()

	_, err := src.Prices(t.Context(), "AAPL", "2024-01-02", "2024-01-04")
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttled")
}

func TestPrices_ErrorMessage(t *testing.T) {
	src, done := newTestSource(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Error Message": "Invalid API call."}`))
	})
	defer done()

	_, err := src.Prices(t.Context(), "BOGUS", "2024-01-02", "2024-01-04")
	require.Error(t, err)
	require.Contains(t, err.Error(), "Invalid API call")
}

func TestPrices_EmptySeriesWithoutNoticeIsSoft(t *testing.T) {
	src, done := newTestSource(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Time Series (Daily)": {}}`))
	})
	defer done()

	prices, err := src.Prices(t.Context(), "AAPL", "2024-01-02", "2024-01-04")
	require.NoError(t, err)
	require.Empty(t, prices)
}

func TestPrices_MalformedBar(t *testing.T) {
	src, done := newTestSource(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Time Series (Daily)": {
			"2024-01-02": {"1. open":"not-a-number","2. high":"1","3. low":"1","4. close":"1","5. volume":"1"}
		}}`))
	})
	defer done()

	_, err := src.Prices(t.Context(), "AAPL", "2024-01-02", "2024-01-04")
	require.Error(t, err)
}
