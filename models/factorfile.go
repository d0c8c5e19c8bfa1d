package models

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alpacahq/refdata/internal/tradingdate"
)

// FactorFileRow is one row of a FactorFile: (date, priceFactor,
// splitFactor, referencePrice), per §3.
type FactorFileRow struct {
	Date           tradingdate.TradingDate
	PriceFactor    decimal.Decimal
	SplitFactor    decimal.Decimal
	ReferencePrice decimal.Decimal
}

// FactorFile is the ordered, date-ascending row sequence described in §3.
// Row 0 is the earliest sentinel; the last row is the top sentinel.
type FactorFile struct {
	Rows []FactorFileRow
}

// TopSentinel returns the last row — the "file has been verified through
// this date" marker.
func (f *FactorFile) TopSentinel() FactorFileRow {
	return f.Rows[len(f.Rows)-1]
}

// EarliestSentinel returns the first row.
func (f *FactorFile) EarliestSentinel() FactorFileRow {
	return f.Rows[0]
}

// one decimal formatted with invariant-culture trailing-zero
// normalization: shopspring/decimal's String() already drops trailing
// zeros and uses '.' regardless of locale, matching §6.
func formatDecimal(d decimal.Decimal) string {
	return d.String()
}

// EncodeCSV renders the factor file per §6: CSV, UTF-8, no header, one row
// per line, "YYYYMMDD,priceFactor,splitFactor,referencePrice".
func (f *FactorFile) EncodeCSV() []byte {
	var buf bytes.Buffer
	for _, r := range f.Rows {
		fmt.Fprintf(&buf, "%s,%s,%s,%s\n",
			r.Date.Compact(),
			formatDecimal(r.PriceFactor),
			formatDecimal(r.SplitFactor),
			formatDecimal(r.ReferencePrice),
		)
	}
	return buf.Bytes()
}

// ParseFactorFile reads a factor file from disk, following the same
// bufio.Reader line-scan + strings.Split shape as the teacher's
// sod/files.Unmarshal, generalized to this module's 4-column record.
func ParseFactorFile(data []byte) (*FactorFile, error) {
	r := bufio.NewScanner(bytes.NewReader(data))
	f := &FactorFile{}
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 4 {
			return nil, fmt.Errorf("factor file: expected 4 fields, got %d: %q", len(fields), line)
		}
		date, err := tradingdate.Parse(fields[0])
		if err != nil {
			return nil, fmt.Errorf("factor file: invalid date %q: %w", fields[0], err)
		}
		priceFactor, err := decimal.NewFromString(fields[1])
		if err != nil {
			return nil, fmt.Errorf("factor file: invalid price factor %q: %w", fields[1], err)
		}
		splitFactor, err := decimal.NewFromString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("factor file: invalid split factor %q: %w", fields[2], err)
		}
		refPrice, err := decimal.NewFromString(fields[3])
		if err != nil {
			return nil, fmt.Errorf("factor file: invalid reference price %q: %w", fields[3], err)
		}
		f.Rows = append(f.Rows, FactorFileRow{
			Date:           date,
			PriceFactor:    priceFactor,
			SplitFactor:    splitFactor,
			ReferencePrice: refPrice,
		})
	}
	if err := r.Err(); err != nil {
		return nil, err
	}
	if len(f.Rows) == 0 {
		return nil, fmt.Errorf("factor file: no rows")
	}
	return f, nil
}

// ReadFactorFile reads and parses a factor file from path.
func ReadFactorFile(path string) (*FactorFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseFactorFile(data)
}
