package universe

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/internal/atomicfile"
	"github.com/alpacahq/refdata/internal/keyed"
	"github.com/alpacahq/refdata/models"
)

// tickerEntry is the in-memory half of the dual-tier per-ticker filing
// cache described in §4.5.3.
type tickerEntry struct {
	records  []models.FilingRecord
	loadedAt time.Time
}

// filingCache implements ensureLoaded and the point-in-time lookup
// semantics of §4.5.2/§4.5.3.
type filingCache struct {
	rootDir    string
	gw         polygon.Gateway
	locks      *keyed.Group
	cacheHours int
	batchMode  bool
	now        func() time.Time

	mu      sync.RWMutex
	entries map[string]*tickerEntry
}

func newFilingCache(rootDir string, gw polygon.Gateway, cacheHours int, batchMode bool, now func() time.Time) *filingCache {
	return &filingCache{
		rootDir:    rootDir,
		gw:         gw,
		locks:      keyed.NewGroup(),
		cacheHours: cacheHours,
		batchMode:  batchMode,
		now:        now,
		entries:    map[string]*tickerEntry{},
	}
}

func (c *filingCache) path(ticker string) string {
	return filepath.Join(c.rootDir, "equity", "usa", "fundamental", "fine", "polygon", strings.ToLower(ticker)+".json")
}

func (c *filingCache) get(ticker string) *tickerEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entries[ticker]
}

func (c *filingCache) set(ticker string, e *tickerEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ticker] = e
}

func (c *filingCache) isFresh(loadedAt time.Time) bool {
	if loadedAt.IsZero() {
		return false
	}
	if c.batchMode {
		return true
	}
	return c.now().Sub(loadedAt) < time.Duration(c.cacheHours)*time.Hour
}

// ensureLoaded implements §4.5.3's ensureLoaded(ticker).
func (c *filingCache) ensureLoaded(ticker string) {
	ticker = strings.ToUpper(ticker)

	if e := c.get(ticker); e != nil && c.isFresh(e.loadedAt) {
		return
	}

	_ = c.locks.Execute(ticker, false, func() error {
		if e := c.get(ticker); e != nil && c.isFresh(e.loadedAt) {
			return nil
		}

		if records, ok := c.tryDisk(ticker); ok {
			c.set(ticker, &tickerEntry{records: records, loadedAt: c.now()})
			return nil
		}

		records, err := c.downloadAndCache(ticker)
		if err != nil {
			log.Warn("filing cache: upstream download failed, will retry next call", "ticker", ticker, "error", err)
			return nil
		}
		c.set(ticker, &tickerEntry{records: records, loadedAt: c.now()})
		return nil
	})
}

// tryDisk implements §4.5.3 step 3.
func (c *filingCache) tryDisk(ticker string) ([]models.FilingRecord, bool) {
	path := c.path(ticker)
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if !c.batchMode && c.now().Sub(info.ModTime()) >= time.Duration(c.cacheHours)*time.Hour {
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var records []models.FilingRecord
	if err := json.Unmarshal(data, &records); err != nil {
		log.Warn("filing cache: corrupt disk cache, deleting", "ticker", ticker, "error", err)
		os.Remove(path)
		return nil, false
	}
	return records, true
}

// downloadAndCache implements §4.5.3 step 4.
func (c *filingCache) downloadAndCache(ticker string) ([]models.FilingRecord, error) {
	raw, err := c.gw.Financials(ticker)
	if err != nil {
		return nil, err
	}

	records := make([]models.FilingRecord, 0, len(raw))
	for _, r := range raw {
		fr, ok := toFilingRecord(r)
		if !ok {
			continue
		}
		records = append(records, fr)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].FilingDate.Before(records[j].FilingDate) })

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return nil, err
	}
	if err := atomicfile.Write(c.path(ticker), data, 0o644); err != nil {
		return nil, err
	}
	return records, nil
}

func toFilingRecord(r polygon.FinancialResult) (models.FilingRecord, bool) {
	filingDate, err := time.Parse("2006-01-02", r.FilingDate)
	if err != nil {
		return models.FilingRecord{}, false
	}
	startDate, _ := time.Parse("2006-01-02", r.StartDate)
	endDate, _ := time.Parse("2006-01-02", r.EndDate)
	fiscalYear, _ := strconv.Atoi(r.FiscalYear)

	timeframe := models.TimeframeQuarterly
	if r.Timeframe == string(models.TimeframeAnnual) {
		timeframe = models.TimeframeAnnual
	}

	return models.FilingRecord{
		Ticker:       r.Ticker,
		FiscalYear:   fiscalYear,
		FiscalPeriod: r.FiscalPeriod,
		StartDate:    startDate,
		EndDate:      endDate,
		FilingDate:   filingDate,
		Timeframe:    timeframe,
		Statements: models.Statements{
			IncomeStatement:   toStatement(r.Financials.IncomeStatement),
			BalanceSheet:      toStatement(r.Financials.BalanceSheet),
			CashFlowStatement: toStatement(r.Financials.CashFlowStatement),
		},
	}, true
}

func toStatement(in map[string]polygon.FinancialValue) models.Statement {
	out := make(models.Statement, len(in))
	for k, v := range in {
		out[k] = models.StatementField{Value: v.Value}
	}
	return out
}

// lookup implements §4.5.2's lookup semantics.
func (c *filingCache) lookup(ticker string, d time.Time, p Property) float64 {
	c.ensureLoaded(ticker)
	e := c.get(strings.ToUpper(ticker))
	if e == nil || len(e.records) == 0 {
		return math.NaN()
	}
	quarterlies := quarterlyFilingsAsOf(e.records, d)

	switch p.Period {
	case PeriodThreeMonths:
		latest := mostRecent(quarterlies)
		if latest == nil {
			return math.NaN()
		}
		return fieldValue(*latest, p)
	case PeriodTwelveMonths:
		if p.IsBalanceSheetField() {
			latest := mostRecent(quarterlies)
			if latest == nil {
				return math.NaN()
			}
			return fieldValue(*latest, p)
		}
		lastFour := lastNChronological(quarterlies, 4)
		if len(lastFour) < 4 {
			return math.NaN()
		}
		sum := 0.0
		for _, f := range lastFour {
			v := fieldValue(f, p)
			if math.IsNaN(v) {
				return math.NaN()
			}
			sum += v
		}
		return sum
	default:
		return math.NaN()
	}
}

func quarterlyFilingsAsOf(records []models.FilingRecord, d time.Time) []models.FilingRecord {
	out := make([]models.FilingRecord, 0, len(records))
	for _, r := range records {
		if r.Timeframe != models.TimeframeQuarterly {
			continue
		}
		if r.FilingDate.After(d) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// mostRecent returns the filing with the latest filingDate, assuming
// records is already ascending by filingDate.
func mostRecent(records []models.FilingRecord) *models.FilingRecord {
	if len(records) == 0 {
		return nil
	}
	return &records[len(records)-1]
}

// lastNChronological returns the n most recent filings, re-sorted
// ascending, per §4.5.2 ("the four most recent, then re-sorted
// chronologically").
func lastNChronological(records []models.FilingRecord, n int) []models.FilingRecord {
	if len(records) < n {
		return nil
	}
	last := append([]models.FilingRecord(nil), records[len(records)-n:]...)
	sort.Slice(last, func(i, j int) bool { return last[i].FilingDate.Before(last[j].FilingDate) })
	return last
}

func statementFor(f models.FilingRecord, stmt Statement) models.Statement {
	switch stmt {
	case StatementIncome:
		return f.Statements.IncomeStatement
	case StatementBalance:
		return f.Statements.BalanceSheet
	case StatementCashFlow:
		return f.Statements.CashFlowStatement
	default:
		return nil
	}
}

// fieldValue reads the named field's value, computing FreeCashFlow per
// §4.5.2's rule and returning NaN for any missing key.
func fieldValue(f models.FilingRecord, p Property) float64 {
	if p.Field == FieldFreeCashFlow {
		cashFlow := f.Statements.CashFlowStatement
		ocf, ok := cashFlow[fieldKeys[FieldOperatingCashFlow]]
		if !ok {
			return math.NaN()
		}
		capex, ok := cashFlow[fieldKeys[FieldCapitalExpenditure]]
		if !ok {
			return math.NaN()
		}
		return ocf.Value + capex.Value
	}

	statement := statementFor(f, p.Statement)
	key, ok := fieldKeys[p.Field]
	if !ok {
		return math.NaN()
	}
	v, ok := statement[key]
	if !ok {
		return math.NaN()
	}
	return v.Value
}

// hasFundamentalData reports whether ticker has at least one cached
// filing, used by the HasFundamentalData property.
func (c *filingCache) hasFundamentalData(ticker string) bool {
	c.ensureLoaded(ticker)
	e := c.get(strings.ToUpper(ticker))
	return e != nil && len(e.records) > 0
}
