// Package universe implements C5, UniverseEngine: coarse-universe
// generation plus point-in-time fundamentals lookup, grounded on the
// bounded per-symbol fan-out shape of service/bar and the in-memory
// single-entry cache of service/assetcache.
package universe

import (
	"math"
	"strings"
	"sync"

	"github.com/alpacahq/gopaca/clock"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/internal/keyed"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
	"github.com/alpacahq/refdata/service/factorfile"
)

// Engine exposes GenerateFor (§4.5.1) and Get (§4.5.1/§4.5.2).
type Engine interface {
	GenerateFor(date tradingdate.TradingDate) error
	Get(property string, date tradingdate.TradingDate, permID models.PermID) float64
}

type engine struct {
	rootDir       string
	gw            polygon.Gateway
	factors       factorfile.Engine
	locks         *keyed.Group
	maxConcurrent int
	permIDs       *permIDStore
	filings       *filingCache

	mu           sync.Mutex
	cachedDate   tradingdate.TradingDate
	cacheLoaded  bool
	dayCache     map[models.PermID]models.CoarseRow
}

// Options configures the engine's runtime knobs, following §6's
// configuration keys.
type Options struct {
	MaxConcurrent        int
	FinancialsCacheHours int
	BatchMode            bool
}

func New(rootDir string, gw polygon.Gateway, factors factorfile.Engine, opts Options) Engine {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.FinancialsCacheHours <= 0 {
		opts.FinancialsCacheHours = 24
	}
	return &engine{
		rootDir:       rootDir,
		gw:            gw,
		factors:       factors,
		locks:         keyed.NewGroup(),
		maxConcurrent: opts.MaxConcurrent,
		permIDs:       newPermIDStore(rootDir),
		filings:       newFilingCache(rootDir, gw, opts.FinancialsCacheHours, opts.BatchMode, clock.Now),
	}
}

func (e *engine) GenerateFor(date tradingdate.TradingDate) error {
	return e.generateCoarse(date)
}

// isFinancialPropertyName reports whether property belongs to §4.5.2's
// fundamentals grammar, as opposed to a plain coarse-row field name like
// "Close" or "Volume" — the two property namespaces are disjoint, and
// only the former is ever passed to ParseProperty.
func isFinancialPropertyName(property string) bool {
	return strings.HasPrefix(property, "FinancialStatements_") ||
		property == "CompanyProfile_MarketCap" ||
		property == "HasFundamentalData"
}

// Get implements §4.5.1's get(property, date, permId): financial
// properties delegate to the fundamentals lookup (§4.5.2); everything
// else resolves against the coarse-row cache for date.
func (e *engine) Get(property string, date tradingdate.TradingDate, permID models.PermID) float64 {
	if isFinancialPropertyName(property) {
		p, ok := ParseProperty(property)
		if !ok {
			return math.NaN()
		}
		if p.IsMarketCap {
			return math.NaN()
		}

		row, found := e.coarseRow(date, permID)

		if p.IsHasFundamentals {
			if !found {
				return 0
			}
			if e.filings.hasFundamentalData(row.Ticker) {
				return 1
			}
			return 0
		}

		if !found {
			return math.NaN()
		}
		return e.filings.lookup(row.Ticker, date.Time(), p)
	}

	row, found := e.coarseRow(date, permID)
	return coarseField(row, found, property)
}

// coarseRow ensures the coarse file for date is loaded into the
// per-engine in-memory map, evicting any prior day's cache, per §4.5.1's
// get() operation.
func (e *engine) coarseRow(date tradingdate.TradingDate, permID models.PermID) (models.CoarseRow, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.cacheLoaded || !e.cachedDate.Equal(date) {
		universe, err := models.ReadCoarseUniverse(coarsePath(e.rootDir, date))
		if err != nil {
			e.dayCache = map[models.PermID]models.CoarseRow{}
		} else {
			e.dayCache = universe.ByPermID()
		}
		e.cachedDate = date
		e.cacheLoaded = true
	}

	row, ok := e.dayCache[permID]
	return row, ok
}

// coarseField looks up a named non-financial field on a coarse row,
// returning a type-appropriate zero when the row or field is absent, per
// §4.5.1's get() fallback.
func coarseField(row models.CoarseRow, found bool, property string) float64 {
	if !found {
		return 0
	}
	switch property {
	case "Close":
		v, _ := row.Close.Float64()
		return v
	case "Volume":
		return float64(row.Volume)
	case "DollarVolume":
		v, _ := row.DollarVolume.Float64()
		return v
	case "PriceFactor":
		v, _ := row.PriceFactor.Float64()
		return v
	case "SplitFactor":
		v, _ := row.SplitFactor.Float64()
		return v
	default:
		return 0
	}
}
