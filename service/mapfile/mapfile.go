// Package mapfile implements C4, MapFileEngine: it resolves one map file
// per symbol from upstream ticker-change/delisted events, following the
// same engine shape as service/factorfile and grounded on the teacher's
// date-filtered event listing in service/corporateaction.
package mapfile

import (
	"path/filepath"
	"sort"
	"time"

	"github.com/alpacahq/gopaca/clock"
	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/gberrors"
	"github.com/alpacahq/refdata/internal/atomicfile"
	"github.com/alpacahq/refdata/internal/keyed"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
)

// Engine exposes Resolve, the MapFileEngine.resolve(symbol, date)
// operation of §4.4. date is accepted for interface symmetry with the
// other engines and to allow a future per-date resolver; this
// implementation (like the upstream it's grounded on) only has one
// current map file per ticker, so date is unused beyond validating the
// call shape.
type Engine interface {
	Resolve(symbol models.Symbol, date tradingdate.TradingDate) (*models.MapFile, bool)
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
	return filepath.Join(e.rootDir, "equity", "usa", "map_files", ticker+".csv")
}

// Resolve implements §4.4's resolve(symbol, date).
func (e *engine) Resolve(symbol models.Symbol, _ tradingdate.TradingDate) (*models.MapFile, bool) {
	ticker := symbol.Normalize()

	if mf, err := models.ReadMapFile(e.path(ticker)); err == nil && !mf.IsEmpty() {
		return mf, true
	}

	var result *models.MapFile
	err := e.locks.Execute(ticker, false, func() error {
		if mf, ok := e.freshLocalFile(ticker); ok {
			result = mf
			return nil
		}

		events, err := e.gw.TickerEvents(ticker)
		if err != nil {
			log.Warn("map file: upstream ticker events failed, emitting minimal file", "ticker", ticker, "error", err)
			result = minimalMapFile(ticker, models.PrimaryExchange(symbol.Market))
			// §4.4 step 6: do not cache the failure.
			return nil
		}

		mf := synthesize(ticker, models.PrimaryExchange(symbol.Market), events)
		if err := e.write(ticker, mf); err != nil {
			return err
		}
		result = mf
		return nil
	})
	if err != nil {
		log.Warn("map file engine degraded", "ticker", ticker, "error", err)
		return nil, false
	}
	return result, result != nil
}

// freshLocalFile implements §4.4 step 2: fresh means the last row's date
// is at or after today-1d, OR at or after farFutureSentinel minus one
// year — the latter branch is redundant with the former whenever today-1
// falls on or before 2049-12-31, but it is the documented check and is
// preserved as-specified.
func (e *engine) freshLocalFile(ticker string) (*models.MapFile, bool) {
	mf, err := models.ReadMapFile(e.path(ticker))
	if err != nil || mf.IsEmpty() {
		return nil, false
	}
	last := mf.LastRow().Date
	today := tradingdate.Today()
	farFutureMinusYear := models.FarFutureSentinelDate.Time().AddDate(-1, 0, 0)
	if !last.Before(today.DaysAgo(1)) || !last.Before(tradingdate.FromTime(farFutureMinusYear)) {
		return mf, true
	}
	return nil, false
}

func (e *engine) write(ticker string, mf *models.MapFile) error {
	if err := atomicfile.Write(e.path(ticker), mf.EncodeCSV(), 0o644); err != nil {
		return gberrors.New(gberrors.DiskCorruption, "write map file").WithError(err)
	}
	return nil
}

func minimalMapFile(ticker string, exchange models.ExchangeCode) *models.MapFile {
	return &models.MapFile{
		Rows: []models.MapFileRow{
			{Date: models.EarliestSentinelDate, Symbol: ticker, Exchange: exchange},
			{Date: models.FarFutureSentinelDate, Symbol: ticker, Exchange: exchange},
		},
	}
}

// synthesize implements §4.4 step 4: walk the chronologically-ordered
// event stream, emitting a row for each ticker_change at the day before
// the change (still labeled with the OLD ticker — the trailing-symbol
// imprecision this system's upstream source also exhibits for chained
// renames is intentionally preserved), and a closing row for the
// delisting date or the far-future sentinel.
func synthesize(requestedTicker string, exchange models.ExchangeCode, events []polygon.TickerEventResult) *models.MapFile {
	rows := []models.MapFileRow{
		{Date: models.EarliestSentinelDate, Symbol: requestedTicker, Exchange: exchange},
	}

	currentSymbol := requestedTicker
	delistingDate, delisted := tradingdate.TradingDate{}, false

	for _, ev := range events {
		evDate, err := tradingdate.Parse(ev.Date)
		if err != nil {
			continue
		}
		switch ev.Type {
		case "ticker_change":
			if ev.TickerChange == nil {
				continue
			}
			rows = append(rows, models.MapFileRow{
				Date:     evDate.Prev(),
				Symbol:   ev.TickerChange.Ticker,
				Exchange: exchange,
			})
		case "delisted":
			delistingDate, delisted = evDate, true
		}
	}

	if delisted {
		rows = append(rows, models.MapFileRow{Date: delistingDate, Symbol: currentSymbol, Exchange: exchange})
	} else {
		rows = append(rows, models.MapFileRow{Date: models.FarFutureSentinelDate, Symbol: currentSymbol, Exchange: exchange})
	}

	return &models.MapFile{Rows: dedupeByDate(rows)}
}

// dedupeByDate retains the last entry per date and sorts ascending, per
// §4.4 step 4.
func dedupeByDate(rows []models.MapFileRow) []models.MapFileRow {
	byDate := make(map[string]models.MapFileRow, len(rows))
	order := make([]string, 0, len(rows))
	for _, r := range rows {
		key := r.Date.Compact()
		if _, seen := byDate[key]; !seen {
			order = append(order, key)
		}
		byDate[key] = r
	}
	out := make([]models.MapFileRow, 0, len(order))
	for _, key := range order {
		out = append(out, byDate[key])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}
