package polygon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/valyala/fasthttp"
)

type PolygonTestSuite struct {
	suite.Suite
}

func TestPolygonTestSuite(t *testing.T) {
	suite.Run(t, new(PolygonTestSuite))
}

// fakeClient wires a Client to an in-memory sequence of pages keyed by
// call order, so fetchPages's next_url loop is exercised without a live
// server.
func fakeClient(pages ...interface{}) *Client {
	i := 0
	c := &Client{baseURL: defaultBaseURL, apiKey: "test-key"}
	c.request = func(req *fasthttp.Request, resp *fasthttp.Response) error {
		if i >= len(pages) {
			panic("unexpected extra request")
		}
		body, err := json.Marshal(pages[i])
		if err != nil {
			return err
		}
		i++
		resp.SetStatusCode(fasthttp.StatusOK)
		resp.SetBody(body)
		return nil
	}
	return c
}

func (s *PolygonTestSuite) TestListSplitsFollowsPagination() {
	first := page[SplitResult]{
		Results: []SplitResult{{Ticker: "AAPL", ExecutionDate: "2020-08-31", SplitFrom: 1, SplitTo: 4}},
		NextURL: "https://api.polygon.io/v3/reference/splits?cursor=abc",
	}
	second := page[SplitResult]{
		Results: []SplitResult{{Ticker: "AAPL", ExecutionDate: "2005-02-28", SplitFrom: 1, SplitTo: 2}},
	}
	c := fakeClient(first, second)

	got, err := c.ListSplits("AAPL", "2000-01-01", "2026-08-03")
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), "2020-08-31", got[0].ExecutionDate)
	assert.Equal(s.T(), "2005-02-28", got[1].ExecutionDate)
}

func (s *PolygonTestSuite) TestListDividendsStopsWhenNextURLEmpty() {
	only := page[DividendResult]{
		Results: []DividendResult{{Ticker: "AAPL", ExDividendDate: "2024-02-09", CashAmount: 0.24}},
	}
	c := fakeClient(only)

	got, err := c.ListDividends("AAPL", "2000-01-01", "2026-08-03")
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), 0.24, got[0].CashAmount)
}

func (s *PolygonTestSuite) TestTickerEventsSortsByDateAscending() {
	only := page[TickerEventResult]{
		Results: []TickerEventResult{
			{Type: "ticker_change", Date: "2019-06-01", TickerChange: &struct {
				Ticker string `json:"ticker"`
			}{Ticker: "NEW"}},
			{Type: "delisted", Date: "2010-01-01"},
		},
	}
	c := fakeClient(only)

	got, err := c.TickerEvents("OLD")
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 2)
	assert.Equal(s.T(), "2010-01-01", got[0].Date)
	assert.Equal(s.T(), "2019-06-01", got[1].Date)
}

func (s *PolygonTestSuite) TestFullMarketSnapshotUnwrapsEnvelope() {
	c := fakeClient(snapshotEnvelope{
		Tickers: []SnapshotResult{
			{Ticker: "AAPL", Day: &SnapshotBar{Close: 190.5, Volume: 1000}},
		},
	})

	got, err := c.FullMarketSnapshot()
	require.NoError(s.T(), err)
	require.Len(s.T(), got, 1)
	assert.Equal(s.T(), "AAPL", got[0].Ticker)
	assert.Equal(s.T(), 190.5, got[0].Day.Close)
}

func (s *PolygonTestSuite) TestFetchPageWrapsHTTPErrorStatus() {
	c := &Client{baseURL: defaultBaseURL, apiKey: "test-key"}
	c.request = func(req *fasthttp.Request, resp *fasthttp.Response) error {
		resp.SetStatusCode(fasthttp.StatusInternalServerError)
		return nil
	}

	_, err := c.ListSplits("AAPL", "2000-01-01", "2026-08-03")
	require.Error(s.T(), err)
}

func (s *PolygonTestSuite) TestFinancialsPropagatesTransportError() {
	c := &Client{baseURL: defaultBaseURL, apiKey: "test-key"}
	c.request = func(req *fasthttp.Request, resp *fasthttp.Response) error {
		return assert.AnError
	}

	_, err := c.Financials("AAPL")
	require.Error(s.T(), err)
}
