package universe

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/gberrors"
	"github.com/alpacahq/refdata/internal/atomicfile"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
	"github.com/alpacahq/refdata/service/factorfile"
)

func coarsePath(rootDir string, date tradingdate.TradingDate) string {
	return filepath.Join(rootDir, "equity", "usa", "fundamental", "coarse", date.Compact()+".csv")
}

// generateCoarse implements §4.5.1's generateFor(date).
func (e *engine) generateCoarse(date tradingdate.TradingDate) error {
	path := coarsePath(e.rootDir, date)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	key := fmt.Sprintf("coarse-%s", date.Compact())
	return e.locks.Execute(key, false, func() error {
		if _, err := os.Stat(path); err == nil {
			return nil
		}

		tickers, err := e.gw.ActiveTickers()
		if err != nil {
			return gberrors.New(gberrors.UpstreamFailure, "active tickers fetch failed").WithError(err)
		}
		active := make(map[string]bool, len(tickers))
		for _, t := range tickers {
			active[t.Ticker] = true
		}

		snapshot, err := e.gw.FullMarketSnapshot()
		if err != nil {
			return gberrors.New(gberrors.UpstreamFailure, "full market snapshot fetch failed").WithError(err)
		}

		var (
			mu   sync.Mutex
			rows []models.CoarseRow
		)
		g := new(errgroup.Group)
		g.SetLimit(e.maxConcurrent)

		for _, snap := range snapshot {
			snap := snap
			if !active[snap.Ticker] {
				continue
			}
			g.Go(func() error {
				row, ok := e.coarseRowFor(snap, date)
				if !ok {
					return nil
				}
				mu.Lock()
				rows = append(rows, row)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		universe := &models.CoarseUniverse{Rows: rows}
		universe.Sort()

		if err := atomicfile.Write(path, universe.EncodeCSV(), 0o644); err != nil {
			return gberrors.New(gberrors.DiskCorruption, "write coarse universe").WithError(err)
		}
		return nil
	})
}

// coarseRowFor implements the per-ticker body of §4.5.1's parallel loop.
func (e *engine) coarseRowFor(snap polygon.SnapshotResult, date tradingdate.TradingDate) (models.CoarseRow, bool) {
	bar := snap.PrevDay
	if bar == nil {
		bar = snap.Day
	}
	if bar == nil || bar.Close <= 0 || bar.Volume <= 0 {
		return models.CoarseRow{}, false
	}

	priceFactor, splitFactor := decimal.NewFromInt(1), decimal.NewFromInt(1)
	symbol := models.Symbol{Ticker: snap.Ticker, Market: models.MarketUSA, IsEquity: true}
	if ff, ok := e.factors.Get(symbol); ok {
		priceFactor, splitFactor = factorfile.FactorsOn(ff, date)
	}

	permID := e.permIDs.getOrCreate(symbol.Normalize())
	close := decimal.NewFromFloat(bar.Close)
	volume := int64(bar.Volume)

	row := models.NewCoarseRow(permID, symbol.Normalize(), close, volume, priceFactor, splitFactor)
	return row, true
}
