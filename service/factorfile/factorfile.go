// Package factorfile implements C3, FactorFileEngine: it materializes and
// incrementally refreshes one factor file per symbol, following the
// interface+constructor+injected-clock shape of the teacher's
// service/bar.BarService and the CSV read/write/timing-log pattern of
// sod/files.
package factorfile

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alpacahq/gopaca/clock"
	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/gberrors"
	"github.com/alpacahq/refdata/internal/atomicfile"
	"github.com/alpacahq/refdata/internal/keyed"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
)

const dateLayout = "2006-01-02"

// Engine exposes Get, the FactorFileEngine.get(symbol) operation of §4.3.
type Engine interface {
	Get(symbol models.Symbol) (*models.FactorFile, bool)
}

type engine struct {
	rootDir string
	gw      polygon.Gateway
	locks   *keyed.Group
	now     func() time.Time
}

func New(rootDir string, gw polygon.Gateway) Engine {
	return &engine{
		rootDir: rootDir,
		gw:      gw,
		locks:   keyed.NewGroup(),
		now:     clock.Now,
	}
}

func (e *engine) path(ticker string) string {
	return filepath.Join(e.rootDir, "equity", "usa", "factor_files", ticker+".csv")
}

// Get implements §4.3's double-checked get(symbol): equity-only, fresh
// file returned directly, otherwise a singleflight-guarded refresh or
// generation.
func (e *engine) Get(symbol models.Symbol) (*models.FactorFile, bool) {
	if !symbol.IsUSEquity() {
		return nil, false
	}
	ticker := symbol.Normalize()
	today := tradingdate.Today()

	if ff, ok := e.readFresh(ticker, today); ok {
		return ff, true
	}

	var result *models.FactorFile
	err := e.locks.Execute(ticker, false, func() error {
		if ff, ok := e.readFresh(ticker, today); ok {
			result = ff
			return nil
		}

		existing, err := models.ReadFactorFile(e.path(ticker))
		if err == nil {
			ff, refreshErr := e.incrementalRefresh(ticker, existing, today)
			if refreshErr != nil {
				return refreshErr
			}
			result = ff
			return nil
		}

		ff, genErr := e.fullGeneration(ticker, today)
		if genErr != nil {
			return genErr
		}
		result = ff
		return nil
	})
	if err != nil {
		log.Warn("factor file engine degraded", "ticker", ticker, "error", err)
		return nil, false
	}
	return result, result != nil
}

// readFresh returns the parsed file if its top sentinel is at or after
// today-1 (§4.3 step 2).
func (e *engine) readFresh(ticker string, today tradingdate.TradingDate) (*models.FactorFile, bool) {
	ff, err := models.ReadFactorFile(e.path(ticker))
	if err != nil {
		return nil, false
	}
	top := ff.TopSentinel()
	if !top.Date.Before(today.DaysAgo(1)) {
		return ff, true
	}
	return nil, false
}

// incrementalRefresh implements §4.3.1.
func (e *engine) incrementalRefresh(ticker string, existing *models.FactorFile, today tradingdate.TradingDate) (*models.FactorFile, error) {
	top := existing.TopSentinel()
	from := top.Date.Next().String()
	to := today.String()

	splits, err := e.gw.ListSplits(ticker, from, to)
	if err != nil {
		log.Warn("incremental refresh: splits fetch failed, falling back to full generation", "ticker", ticker, "error", err)
		return e.fullGeneration(ticker, today)
	}
	dividends, err := e.gw.ListDividends(ticker, from, to)
	if err != nil {
		log.Warn("incremental refresh: dividends fetch failed, falling back to full generation", "ticker", ticker, "error", err)
		return e.fullGeneration(ticker, today)
	}

	if len(splits) == 0 && len(dividends) == 0 {
		rows := append([]models.FactorFileRow(nil), existing.Rows...)
		rows[len(rows)-1].Date = today
		ff := &models.FactorFile{Rows: rows}
		if err := e.write(ticker, ff); err != nil {
			return nil, err
		}
		return ff, nil
	}

	return e.fullGeneration(ticker, today)
}

// fullGeneration implements §4.3.2.
func (e *engine) fullGeneration(ticker string, today tradingdate.TradingDate) (*models.FactorFile, error) {
	from := models.EarliestSentinelDate.String()
	to := today.String()

	rawSplits, err := e.gw.ListSplits(ticker, from, to)
	if err != nil {
		log.Warn("full generation: splits fetch failed", "ticker", ticker, "error", err)
		return e.writeMinimal(ticker, today)
	}
	rawDividends, err := e.gw.ListDividends(ticker, from, to)
	if err != nil {
		log.Warn("full generation: dividends fetch failed", "ticker", ticker, "error", err)
		return e.writeMinimal(ticker, today)
	}

	splits := dedupeSplits(rawSplits)
	dividends := dedupeDividends(rawDividends)

	if len(splits) == 0 && len(dividends) == 0 {
		return e.writeMinimal(ticker, today)
	}

	aggs, err := e.gw.DailyAggregates(ticker, from, to)
	if err != nil {
		log.Warn("full generation: aggregates fetch failed", "ticker", ticker, "error", err)
		return e.writeMinimal(ticker, today)
	}
	closes := closesByDate(aggs)
	if len(closes) == 0 {
		log.Info("full generation: no daily closes available, emitting minimal file", "ticker", ticker)
		return e.writeMinimal(ticker, today)
	}

	actions := make([]models.CorporateAction, 0, len(splits)+len(dividends))
	for _, sp := range splits {
		action, ok := splitToAction(sp, closes)
		if ok {
			actions = append(actions, action)
		}
	}
	for _, dv := range dividends {
		action, ok := dividendToAction(dv, closes)
		if ok {
			actions = append(actions, action)
		}
	}
	if len(actions) == 0 {
		return e.writeMinimal(ticker, today)
	}

	sort.SliceStable(actions, func(i, j int) bool {
		if !actions[i].Date.Equal(actions[j].Date) {
			return actions[i].Date.Before(actions[j].Date)
		}
		// tie-break: split before dividend, per §4.3.2 tie-breaking rule.
		return actions[i].Type == models.ActionSplit && actions[j].Type != models.ActionSplit
	})

	earliestDaily := earliestDate(closes)
	ff := seedFactorFile(earliestDaily, today)
	applyActions(ff, actions)

	if err := e.write(ticker, ff); err != nil {
		return nil, err
	}
	return ff, nil
}

func (e *engine) writeMinimal(ticker string, today tradingdate.TradingDate) (*models.FactorFile, error) {
	ff := minimalFactorFile(models.EarliestSentinelDate, today)
	if err := e.write(ticker, ff); err != nil {
		return nil, err
	}
	return ff, nil
}

func (e *engine) write(ticker string, ff *models.FactorFile) error {
	if err := atomicfile.Write(e.path(ticker), ff.EncodeCSV(), 0o644); err != nil {
		return gberrors.New(gberrors.DiskCorruption, "write factor file").WithError(err)
	}
	return nil
}

// minimalFactorFile builds the two-row degraded artifact used whenever
// upstream has nothing (or fails) for a symbol, per §4.3.2 step 3.
func minimalFactorFile(earliest, today tradingdate.TradingDate) *models.FactorFile {
	return &models.FactorFile{
		Rows: []models.FactorFileRow{
			{Date: earliest, PriceFactor: decimal.NewFromInt(1), SplitFactor: decimal.NewFromInt(1), ReferencePrice: decimal.Zero},
			{Date: today, PriceFactor: decimal.NewFromInt(1), SplitFactor: decimal.NewFromInt(1), ReferencePrice: decimal.Zero},
		},
	}
}

func seedFactorFile(earliestDaily, today tradingdate.TradingDate) *models.FactorFile {
	return &models.FactorFile{
		Rows: []models.FactorFileRow{
			{Date: earliestDaily, PriceFactor: decimal.NewFromInt(1), SplitFactor: decimal.NewFromInt(1), ReferencePrice: decimal.Zero},
			{Date: today, PriceFactor: decimal.NewFromInt(1), SplitFactor: decimal.NewFromInt(1), ReferencePrice: decimal.Zero},
		},
	}
}

// applyActions implements §4.3.2 step 8: an accumulating fold where each
// action retroactively scales every row older than it, then inserts (or
// overwrites) a row at the previous trading day carrying the
// newly-computed cumulative factors. The top sentinel is never touched by
// the fold; its factors stay (1, 1) by construction since it's inserted
// after the last real corporate action.
func applyActions(ff *models.FactorFile, actions []models.CorporateAction) {
	for _, a := range actions {
		insertDate := a.Date.Prev()

		switch a.Type {
		case models.ActionSplit:
			priceFactor := cumulativeFactorAt(ff, insertDate, priceFactorOf)
			splitFactor := cumulativeFactorAt(ff, insertDate, splitFactorOf).Mul(a.SplitFactor)
			scaleOlderRows(ff, insertDate, func(r *models.FactorFileRow) {
				r.SplitFactor = r.SplitFactor.Mul(a.SplitFactor)
			})
			upsertRow(ff, models.FactorFileRow{
				Date:           insertDate,
				PriceFactor:    priceFactor,
				SplitFactor:    splitFactor,
				ReferencePrice: a.ReferencePrice,
			})
		case models.ActionDividend:
			p := a.ReferencePrice
			scale := p.Sub(a.CashAmount).Div(p)
			priceFactor := cumulativeFactorAt(ff, insertDate, priceFactorOf).Mul(scale)
			splitFactor := cumulativeFactorAt(ff, insertDate, splitFactorOf)
			scaleOlderRows(ff, insertDate, func(r *models.FactorFileRow) {
				r.PriceFactor = r.PriceFactor.Mul(scale)
			})
			upsertRow(ff, models.FactorFileRow{
				Date:           insertDate,
				PriceFactor:    priceFactor,
				SplitFactor:    splitFactor,
				ReferencePrice: a.ReferencePrice,
			})
		}

		sort.SliceStable(ff.Rows, func(i, j int) bool { return ff.Rows[i].Date.Before(ff.Rows[j].Date) })
	}
}

func priceFactorOf(r models.FactorFileRow) decimal.Decimal { return r.PriceFactor }
func splitFactorOf(r models.FactorFileRow) decimal.Decimal { return r.SplitFactor }

// cumulativeFactorAt reads the factor prevailing at-or-after insertDate,
// captured before this action's own scaleOlderRows mutation runs. The
// inclusive (>=) comparison matters when two actions share the same
// insertDate (a split and a dividend on the same date): the second
// action to be processed must fold the first action's already-inserted
// row forward rather than skip past it to the top sentinel. Because this
// is always called before scaleOlderRows for the current action, the
// same-date row it finds (if any) is never one this action has already
// mutated, so no factor is ever multiplied in twice.
func cumulativeFactorAt(ff *models.FactorFile, insertDate tradingdate.TradingDate, pick func(models.FactorFileRow) decimal.Decimal) decimal.Decimal {
	for _, r := range ff.Rows {
		if !r.Date.Before(insertDate) {
			return pick(r)
		}
	}
	return pick(ff.TopSentinel())
}

// scaleOlderRows multiplies every row dated at or before cutoff by
// mutating in place via f, per §4.3.2 step 8 ("retroactively scale older
// rows"). A row dated exactly at cutoff is then overwritten by the
// caller's upsertRow, so only the strictly older rows keep the scaling.
func scaleOlderRows(ff *models.FactorFile, cutoff tradingdate.TradingDate, f func(*models.FactorFileRow)) {
	for i := range ff.Rows {
		if ff.Rows[i].Date.Before(cutoff) || ff.Rows[i].Date.Equal(cutoff) {
			f(&ff.Rows[i])
		}
	}
}

// upsertRow overwrites the row at r.Date if one exists (tie-break per
// §4.3.2: "overwrite its non-date fields"), else appends it.
func upsertRow(ff *models.FactorFile, r models.FactorFileRow) {
	for i := range ff.Rows {
		if ff.Rows[i].Date.Equal(r.Date) {
			ff.Rows[i] = r
			return
		}
	}
	ff.Rows = append(ff.Rows, r)
}

func dedupeSplits(in []polygon.SplitResult) []polygon.SplitResult {
	seen := map[string]bool{}
	out := make([]polygon.SplitResult, 0, len(in))
	for _, s := range in {
		if _, err := time.Parse(dateLayout, s.ExecutionDate); err != nil {
			continue
		}
		if seen[s.ExecutionDate] {
			continue
		}
		seen[s.ExecutionDate] = true
		out = append(out, s)
	}
	return out
}

func dedupeDividends(in []polygon.DividendResult) []polygon.DividendResult {
	seen := map[string]bool{}
	out := make([]polygon.DividendResult, 0, len(in))
	for _, d := range in {
		if d.DividendType != "CD" && d.DividendType != "SC" {
			continue
		}
		if _, err := time.Parse(dateLayout, d.ExDividendDate); err != nil {
			continue
		}
		if seen[d.ExDividendDate] {
			continue
		}
		seen[d.ExDividendDate] = true
		out = append(out, d)
	}
	return out
}

func closesByDate(aggs []polygon.AggResult) map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal, len(aggs))
	for _, a := range aggs {
		t := time.UnixMilli(a.Timestamp).UTC()
		d := tradingdate.FromTime(t)
		m[d.String()] = decimal.NewFromFloat(a.Close)
	}
	return m
}

func earliestDate(closes map[string]decimal.Decimal) tradingdate.TradingDate {
	var earliest tradingdate.TradingDate
	first := true
	for k := range closes {
		d, err := tradingdate.Parse(k)
		if err != nil {
			continue
		}
		if first || d.Before(earliest) {
			earliest = d
			first = false
		}
	}
	return earliest
}

// referencePrice finds the close on the most recent trading day strictly
// within [eventDate-5d, eventDate-1d], per §4.3.2 step 5.
func referencePrice(eventDate tradingdate.TradingDate, closes map[string]decimal.Decimal) (decimal.Decimal, bool) {
	cursor := eventDate.Prev()
	for i := 0; i < 5; i++ {
		if close, ok := closes[cursor.String()]; ok {
			return close, true
		}
		cursor = cursor.Prev()
	}
	return decimal.Zero, false
}

func splitToAction(s polygon.SplitResult, closes map[string]decimal.Decimal) (models.CorporateAction, bool) {
	d, err := tradingdate.Parse(s.ExecutionDate)
	if err != nil || s.SplitTo == 0 {
		return models.CorporateAction{}, false
	}
	price, ok := referencePrice(d, closes)
	if !ok {
		return models.CorporateAction{}, false
	}
	factor := decimal.NewFromFloat(s.SplitFrom).Div(decimal.NewFromFloat(s.SplitTo))
	a := models.CorporateAction{Type: models.ActionSplit, Date: d, SplitFactor: factor, ReferencePrice: price}
	if !a.Valid() {
		return models.CorporateAction{}, false
	}
	return a, true
}

func dividendToAction(d polygon.DividendResult, closes map[string]decimal.Decimal) (models.CorporateAction, bool) {
	date, err := tradingdate.Parse(d.ExDividendDate)
	if err != nil {
		return models.CorporateAction{}, false
	}
	price, ok := referencePrice(date, closes)
	if !ok {
		return models.CorporateAction{}, false
	}
	a := models.CorporateAction{
		Type:           models.ActionDividend,
		Date:           date,
		CashAmount:     decimal.NewFromFloat(d.CashAmount),
		ReferencePrice: price,
	}
	if !a.Valid() {
		return models.CorporateAction{}, false
	}
	return a, true
}

// FactorsOn returns the cumulative price/split factors valid on date (those
// of the first row dated on or after date; (1, 1) past the top sentinel),
// used by UniverseEngine (§4.5.1) to scale a coarse row's close. A
// failure to resolve the factor file degrades to (1, 1) rather than
// propagating, per §4.5.1's "factor-lookup failures degrade silently."
func FactorsOn(ff *models.FactorFile, date tradingdate.TradingDate) (price, split decimal.Decimal) {
	price, split = decimal.NewFromInt(1), decimal.NewFromInt(1)
	if ff == nil || len(ff.Rows) == 0 {
		return
	}
	for _, r := range ff.Rows {
		if !r.Date.Before(date) {
			return r.PriceFactor, r.SplitFactor
		}
	}
	return
}
