package mapfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
)

type fakeGateway struct {
	events []polygon.TickerEventResult
	err    error
}

func (f *fakeGateway) ListSplits(string, string, string) ([]polygon.SplitResult, error) { return nil, nil }
func (f *fakeGateway) ListDividends(string, string, string) ([]polygon.DividendResult, error) {
	return nil, nil
}
func (f *fakeGateway) DailyAggregates(string, string, string) ([]polygon.AggResult, error) {
	return nil, nil
}
func (f *fakeGateway) TickerEvents(string) ([]polygon.TickerEventResult, error) {
	return f.events, f.err
}
func (f *fakeGateway) ActiveTickers() ([]polygon.TickerResult, error)            { return nil, nil }
func (f *fakeGateway) FullMarketSnapshot() ([]polygon.SnapshotResult, error)     { return nil, nil }
func (f *fakeGateway) Financials(string) ([]polygon.FinancialResult, error) { return nil, nil }

type MapFileTestSuite struct {
	suite.Suite
}

func TestMapFileTestSuite(t *testing.T) {
	suite.Run(t, new(MapFileTestSuite))
}

func (s *MapFileTestSuite) symbol(ticker string) models.Symbol {
	return models.Symbol{Ticker: ticker, Market: models.MarketUSA, IsEquity: true}
}

// S3: ticker_change on 2019-05-01 from OLD to NEW, no delisting.
func (s *MapFileTestSuite) TestTickerChangeSynthesizesThreeRows() {
	gw := &fakeGateway{
		events: []polygon.TickerEventResult{
			{
				Type: "ticker_change",
				Date: "2019-05-01",
				TickerChange: &struct {
					Ticker string `json:"ticker"`
				}{Ticker: "OLD"},
			},
		},
	}
	eng := New(s.T().TempDir(), gw)

	mf, ok := eng.Resolve(s.symbol("NEW"), tradingdate.Today())
	require.True(s.T(), ok)
	require.Len(s.T(), mf.Rows, 3)

	assert.Equal(s.T(), "2000-01-01", mf.Rows[0].Date.String())
	assert.Equal(s.T(), "NEW", mf.Rows[0].Symbol)

	assert.Equal(s.T(), "2019-04-30", mf.Rows[1].Date.String())
	assert.Equal(s.T(), "OLD", mf.Rows[1].Symbol)

	assert.Equal(s.T(), "2050-12-31", mf.Rows[2].Date.String())
	assert.Equal(s.T(), "NEW", mf.Rows[2].Symbol)
}

func (s *MapFileTestSuite) TestDelistedSymbolEndsWithDelistingRow() {
	gw := &fakeGateway{
		events: []polygon.TickerEventResult{
			{Type: "delisted", Date: "2015-03-10"},
		},
	}
	eng := New(s.T().TempDir(), gw)

	mf, ok := eng.Resolve(s.symbol("DEAD"), tradingdate.Today())
	require.True(s.T(), ok)
	require.True(s.T(), mf.IsDelisted())
	last := mf.LastRow()
	assert.Equal(s.T(), "2015-03-10", last.Date.String())
	assert.Equal(s.T(), "DEAD", last.Symbol)
}

func (s *MapFileTestSuite) TestUpstreamFailureEmitsMinimalFileWithoutCaching() {
	gw := &fakeGateway{err: assertAnError{}}
	eng := New(s.T().TempDir(), gw)

	mf, ok := eng.Resolve(s.symbol("FAIL"), tradingdate.Today())
	require.True(s.T(), ok)
	require.Len(s.T(), mf.Rows, 2)
	assert.Equal(s.T(), "2000-01-01", mf.Rows[0].Date.String())
	assert.Equal(s.T(), "2050-12-31", mf.Rows[1].Date.String())
}

type assertAnError struct{}

func (assertAnError) Error() string { return "upstream unavailable" }
