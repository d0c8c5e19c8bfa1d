package polygon

// page is the shape every paginated upstream response carries: a results
// array plus an optional continuation link, per §4.2.
type page[T any] struct {
	Results []T    `json:"results"`
	NextURL string `json:"next_url"`
}

// SplitResult is one row of v3/reference/splits.
type SplitResult struct {
	Ticker         string  `json:"ticker"`
	ExecutionDate  string  `json:"execution_date"`
	SplitFrom      float64 `json:"split_from"`
	SplitTo        float64 `json:"split_to"`
}

// DividendResult is one row of v3/reference/dividends.
type DividendResult struct {
	Ticker          string  `json:"ticker"`
	ExDividendDate  string  `json:"ex_dividend_date"`
	CashAmount      float64 `json:"cash_amount"`
	DividendType    string  `json:"dividend_type"`
}

// AggResult is one daily bar of v2/aggs/ticker/{ticker}/range/1/day/{from}/{to}.
// Timestamp T is milliseconds since Unix epoch, per §4.2.
type AggResult struct {
	Timestamp int64   `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// TickerEventResult is one event of v3/reference/tickers/{ticker}/events.
type TickerEventResult struct {
	Type string `json:"type"` // "ticker_change" or "delisted"
	Date string `json:"date"`
	TickerChange *struct {
		Ticker string `json:"ticker"`
	} `json:"ticker_change,omitempty"`
}

// TickerResult is one row of v3/reference/tickers.
type TickerResult struct {
	Ticker          string `json:"ticker"`
	Market          string `json:"market"`
	Type            string `json:"type"`
	Active          bool   `json:"active"`
	PrimaryExchange string `json:"primary_exchange"`
}

// SnapshotBar is the prevDay/day bar embedded in a full-market snapshot
// entry.
type SnapshotBar struct {
	Close  float64 `json:"c"`
	Volume float64 `json:"v"`
}

// SnapshotResult is one ticker's entry in
// v2/snapshot/locale/us/markets/stocks/tickers.
type SnapshotResult struct {
	Ticker  string       `json:"ticker"`
	Day     *SnapshotBar `json:"day,omitempty"`
	PrevDay *SnapshotBar `json:"prevDay,omitempty"`
}

// snapshotEnvelope is the non-paginated top-level shape of the full-market
// snapshot endpoint.
type snapshotEnvelope struct {
	Tickers []SnapshotResult `json:"tickers"`
}

// FinancialResult is one filing of vX/reference/financials.
type FinancialResult struct {
	Ticker       string                `json:"ticker"`
	FiscalYear   string                `json:"fiscal_year"`
	FiscalPeriod string                `json:"fiscal_period"`
	StartDate    string                `json:"start_date"`
	EndDate      string                `json:"end_date"`
	FilingDate   string                `json:"filing_date"`
	Timeframe    string                `json:"timeframe"`
	Financials   FinancialStatementSet `json:"financials"`
}

type FinancialStatementSet struct {
	IncomeStatement   map[string]FinancialValue `json:"income_statement"`
	BalanceSheet      map[string]FinancialValue `json:"balance_sheet"`
	CashFlowStatement map[string]FinancialValue `json:"cash_flow_statement"`
}

type FinancialValue struct {
	Value float64 `json:"value"`
}
