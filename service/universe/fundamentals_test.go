package universe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alpacahq/refdata/external/polygon"
)

type fakeFinancialsGateway struct {
	results []polygon.FinancialResult
}

func (f *fakeFinancialsGateway) ListSplits(string, string, string) ([]polygon.SplitResult, error) {
	return nil, nil
}
func (f *fakeFinancialsGateway) ListDividends(string, string, string) ([]polygon.DividendResult, error) {
	return nil, nil
}
func (f *fakeFinancialsGateway) DailyAggregates(string, string, string) ([]polygon.AggResult, error) {
	return nil, nil
}
func (f *fakeFinancialsGateway) TickerEvents(string) ([]polygon.TickerEventResult, error) {
	return nil, nil
}
func (f *fakeFinancialsGateway) ActiveTickers() ([]polygon.TickerResult, error)        { return nil, nil }
func (f *fakeFinancialsGateway) FullMarketSnapshot() ([]polygon.SnapshotResult, error) { return nil, nil }
func (f *fakeFinancialsGateway) Financials(ticker string) ([]polygon.FinancialResult, error) {
	return f.results, nil
}

func revenueFiling(filingDate string, revenue float64) polygon.FinancialResult {
	return polygon.FinancialResult{
		Ticker:       "AAPL",
		FiscalPeriod: "Q",
		StartDate:    "2023-01-01",
		EndDate:      "2023-03-31",
		FilingDate:   filingDate,
		Timeframe:    "quarterly",
		Financials: polygon.FinancialStatementSet{
			IncomeStatement: map[string]polygon.FinancialValue{
				"revenues": {Value: revenue},
			},
		},
	}
}

func cashFlowFiling(filingDate string, ocf, capex float64) polygon.FinancialResult {
	return polygon.FinancialResult{
		Ticker:     "AAPL",
		Timeframe:  "quarterly",
		FilingDate: filingDate,
		Financials: polygon.FinancialStatementSet{
			CashFlowStatement: map[string]polygon.FinancialValue{
				"net_cash_flow_from_operating_activities": {Value: ocf},
				"capital_expenditure":                     {Value: capex},
			},
		},
	}
}

func at(day string) time.Time {
	t, _ := time.Parse("2006-01-02", day)
	return t
}

// S4
func TestTTMFlowSumsFourQuarterliesWhenAllPresent(t *testing.T) {
	gw := &fakeFinancialsGateway{results: []polygon.FinancialResult{
		revenueFiling("2023-02-03", 100000),
		revenueFiling("2023-05-05", 110000),
		revenueFiling("2023-08-04", 120000),
		revenueFiling("2023-11-03", 130000),
	}}
	cache := newFilingCache(t.TempDir(), gw, 24, true, time.Now)
	p, ok := ParseProperty("FinancialStatements_IncomeStatement_TotalRevenue_TwelveMonths")
	require.True(t, ok)

	got := cache.lookup("AAPL", at("2023-12-01"), p)
	assert.Equal(t, 460000.0, got)
}

func TestTTMFlowIsNaNWithFewerThanFourFilings(t *testing.T) {
	gw := &fakeFinancialsGateway{results: []polygon.FinancialResult{
		revenueFiling("2023-02-03", 100000),
		revenueFiling("2023-05-05", 110000),
	}}
	cache := newFilingCache(t.TempDir(), gw, 24, true, time.Now)
	p, ok := ParseProperty("FinancialStatements_IncomeStatement_TotalRevenue_TwelveMonths")
	require.True(t, ok)

	got := cache.lookup("AAPL", at("2023-06-01"), p)
	assert.True(t, got != got, "expected NaN, got %v", got)
}

// S5
func TestFreeCashFlowTTMSumsOCFPlusCapex(t *testing.T) {
	gw := &fakeFinancialsGateway{results: []polygon.FinancialResult{
		cashFlowFiling("2023-02-03", 30000, -5000),
		cashFlowFiling("2023-05-05", 32000, -6000),
		cashFlowFiling("2023-08-04", 28000, -4000),
		cashFlowFiling("2023-11-03", 35000, -7000),
	}}
	cache := newFilingCache(t.TempDir(), gw, 24, true, time.Now)
	p, ok := ParseProperty("FinancialStatements_CashFlowStatement_FreeCashFlow_TwelveMonths")
	require.True(t, ok)

	got := cache.lookup("AAPL", at("2023-12-01"), p)
	assert.Equal(t, 103000.0, got)
}

func TestQuarterlyPicksMostRecentFilingAtOrBeforeDate(t *testing.T) {
	gw := &fakeFinancialsGateway{results: []polygon.FinancialResult{
		revenueFiling("2023-02-03", 100000),
		revenueFiling("2023-05-05", 110000),
	}}
	cache := newFilingCache(t.TempDir(), gw, 24, true, time.Now)
	p, ok := ParseProperty("FinancialStatements_IncomeStatement_TotalRevenue_ThreeMonths")
	require.True(t, ok)

	got := cache.lookup("AAPL", at("2023-06-01"), p)
	assert.Equal(t, 110000.0, got)
}
