// Command refdatatool is a thin operator CLI over the three refdata
// engines, in the spirit of the teacher's cmd/sidecar and tools/ binaries.
// It is not part of the engines' own contract; it exists so the module has
// a runnable entrypoint for manual inspection and scripting.
package main

import (
	"fmt"
	"os"

	"github.com/alpacahq/gopaca/log"

	"github.com/alpacahq/refdata/config"
	"github.com/alpacahq/refdata/external/polygon"
	"github.com/alpacahq/refdata/internal/tradingdate"
	"github.com/alpacahq/refdata/models"
	"github.com/alpacahq/refdata/service/factorfile"
	"github.com/alpacahq/refdata/service/mapfile"
	"github.com/alpacahq/refdata/service/universe"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: refdatatool <factorfile|mapfile|coarse> <symbol|date>")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 3 {
		usage()
	}

	cfg := config.MustLoad()
	log.Info("refdatatool starting",
		"rootDir", cfg.RootDir,
		"financialsCacheHours", cfg.FinancialsCacheHours,
		"coarseMaxConcurrent", cfg.CoarseMaxConcurrent,
	)

	gw := polygon.NewClient(cfg.PolygonAPIKey)
	factors := factorfile.New(cfg.RootDir, gw)

	switch cmd := os.Args[1]; cmd {
	case "factorfile":
		runFactorFile(factors, os.Args[2])
	case "mapfile":
		runMapFile(mapfile.New(cfg.RootDir, gw), os.Args[2])
	case "coarse":
		runCoarse(universe.New(cfg.RootDir, gw, factors, universe.Options{
			MaxConcurrent:        cfg.CoarseMaxConcurrent,
			FinancialsCacheHours: cfg.FinancialsCacheHours,
		}), os.Args[2])
	default:
		usage()
	}
}

func runFactorFile(eng factorfile.Engine, ticker string) {
	symbol := models.Symbol{Ticker: ticker, Market: models.MarketUSA, IsEquity: true}
	ff, ok := eng.Get(symbol)
	if !ok {
		log.Fatal("factor file unavailable", "ticker", ticker)
	}
	fmt.Print(string(ff.EncodeCSV()))
}

func runMapFile(eng mapfile.Engine, ticker string) {
	symbol := models.Symbol{Ticker: ticker, Market: models.MarketUSA, IsEquity: true}
	mf, ok := eng.Resolve(symbol, tradingdate.Today())
	if !ok {
		log.Fatal("map file unavailable", "ticker", ticker)
	}
	fmt.Print(string(mf.EncodeCSV()))
}

func runCoarse(eng universe.Engine, dateArg string) {
	date, err := tradingdate.Parse(dateArg)
	if err != nil {
		log.Fatal("invalid date", "arg", dateArg, "error", err)
	}
	if err := eng.GenerateFor(date); err != nil {
		log.Fatal("coarse generation failed", "date", date.String(), "error", err)
	}
	fmt.Printf("coarse universe generated for %s\n", date.String())
}
