package models

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/alpacahq/refdata/internal/tradingdate"
)

// FarFutureSentinelDate is the sentinel date used for still-active securities
// on the final map-file row, per §3.
var FarFutureSentinelDate = mustParseDate("2050-12-31")

// EarliestSentinelDate anchors the start of every map file and of minimal
// factor files; a fully generated factor file starts at its earliest
// daily close instead.
var EarliestSentinelDate = mustParseDate("2000-01-01")

func mustParseDate(s string) tradingdate.TradingDate {
	d, err := tradingdate.Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// MapFileRow is one row of a MapFile: (date, symbolOnThatDay,
// primaryExchange), per §3.
type MapFileRow struct {
	Date         tradingdate.TradingDate
	Symbol       string
	Exchange     ExchangeCode
}

// MapFile is the ordered, date-ascending ticker-identity history of a
// permanent equity identifier, per §3.
type MapFile struct {
	Rows []MapFileRow
}

// IsEmpty reports whether the map file has no rows (e.g. a freshly
// constructed, unpopulated value).
func (m *MapFile) IsEmpty() bool {
	return len(m.Rows) == 0
}

// LastRow returns the final row (the delisting date or far-future
// sentinel row).
func (m *MapFile) LastRow() MapFileRow {
	return m.Rows[len(m.Rows)-1]
}

// IsDelisted reports whether the last row's date is before the far-future
// sentinel, i.e. this map file ends in a real delisting event rather than
// the still-active sentinel.
func (m *MapFile) IsDelisted() bool {
	return m.LastRow().Date.Before(FarFutureSentinelDate)
}

// EncodeCSV renders the map file per §6: CSV, no header,
// "YYYYMMDD,ticker,exchangeCode".
func (m *MapFile) EncodeCSV() []byte {
	var buf bytes.Buffer
	for _, r := range m.Rows {
		fmt.Fprintf(&buf, "%s,%s,%s\n", r.Date.Compact(), strings.ToUpper(r.Symbol), r.Exchange)
	}
	return buf.Bytes()
}

// ParseMapFile reads a map file from raw CSV bytes.
func ParseMapFile(data []byte) (*MapFile, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	m := &MapFile{}
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, fmt.Errorf("map file: expected 3 fields, got %d: %q", len(fields), line)
		}
		date, err := tradingdate.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("map file: invalid date %q: %w", fields[0], err)
		}
		m.Rows = append(m.Rows, MapFileRow{
			Date:     date,
			Symbol:   strings.ToUpper(fields[1]),
			Exchange: ExchangeCode(fields[2]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// ReadMapFile reads and parses a map file from path.
func ReadMapFile(path string) (*MapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMapFile(data)
}
