package models

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// CoarseRow is one row of a coarse universe snapshot: (permId, ticker,
// close, volumeInt, dollarVolume, hasFundamentals, priceFactor,
// splitFactor), per §3.
type CoarseRow struct {
	PermID          PermID
	Ticker          string
	Close           decimal.Decimal
	Volume          int64
	DollarVolume    decimal.Decimal
	HasFundamentals bool
	PriceFactor     decimal.Decimal
	SplitFactor     decimal.Decimal
}

// NewCoarseRow computes DollarVolume as trunc(close * volume), per §3.
func NewCoarseRow(permID PermID, ticker string, close decimal.Decimal, volume int64, priceFactor, splitFactor decimal.Decimal) CoarseRow {
	dv := close.Mul(decimal.NewFromInt(volume)).Truncate(0)
	return CoarseRow{
		PermID:       permID,
		Ticker:       ticker,
		Close:        close,
		Volume:       volume,
		DollarVolume: dv,
		PriceFactor:  priceFactor,
		SplitFactor:  splitFactor,
	}
}

// CoarseUniverse is the full set of rows for one trading day, sorted
// lexicographically by stringified permanent identifier per §4.5.1.
type CoarseUniverse struct {
	Rows []CoarseRow
}

func (u *CoarseUniverse) Sort() {
	sort.Slice(u.Rows, func(i, j int) bool {
		return u.Rows[i].PermID.String() < u.Rows[j].PermID.String()
	})
}

// EncodeCSV renders the coarse universe per §6:
// permId,ticker,close,volume,dollarVolume,hasFundamentalData,priceFactor,splitFactor
func (u *CoarseUniverse) EncodeCSV() []byte {
	var buf bytes.Buffer
	for _, r := range u.Rows {
		fmt.Fprintf(&buf, "%s,%s,%s,%d,%s,%t,%s,%s\n",
			r.PermID, strings.ToUpper(r.Ticker), r.Close.String(), r.Volume,
			r.DollarVolume.String(), r.HasFundamentals, r.PriceFactor.String(), r.SplitFactor.String())
	}
	return buf.Bytes()
}

// ParseCoarseUniverse parses a coarse universe CSV.
func ParseCoarseUniverse(data []byte) (*CoarseUniverse, error) {
	u := &CoarseUniverse{}
	lines := strings.Split(string(bytes.TrimRight(data, "\n")), "\n")
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 8 {
			return nil, fmt.Errorf("coarse universe: expected 8 fields, got %d: %q", len(fields), line)
		}
		close, err := decimal.NewFromString(fields[2])
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid close %q: %w", fields[2], err)
		}
		volume, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid volume %q: %w", fields[3], err)
		}
		dollarVolume, err := decimal.NewFromString(fields[4])
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid dollar volume %q: %w", fields[4], err)
		}
		hasFund, err := strconv.ParseBool(fields[5])
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid hasFundamentalData %q: %w", fields[5], err)
		}
		priceFactor, err := decimal.NewFromString(fields[6])
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid price factor %q: %w", fields[6], err)
		}
		splitFactor, err := decimal.NewFromString(fields[7])
		if err != nil {
			return nil, fmt.Errorf("coarse universe: invalid split factor %q: %w", fields[7], err)
		}
		u.Rows = append(u.Rows, CoarseRow{
			PermID:          PermID(fields[0]),
			Ticker:          fields[1],
			Close:           close,
			Volume:          volume,
			DollarVolume:    dollarVolume,
			HasFundamentals: hasFund,
			PriceFactor:     priceFactor,
			SplitFactor:     splitFactor,
		})
	}
	return u, nil
}

// ReadCoarseUniverse reads and parses a coarse universe CSV from path.
func ReadCoarseUniverse(path string) (*CoarseUniverse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCoarseUniverse(data)
}

// ByPermID indexes a CoarseUniverse's rows by permanent identifier, used
// by UniverseEngine's per-day in-memory cache (§4.5.1 get()).
func (u *CoarseUniverse) ByPermID() map[PermID]CoarseRow {
	m := make(map[PermID]CoarseRow, len(u.Rows))
	for _, r := range u.Rows {
		m[r.PermID] = r
	}
	return m
}

// NaN is the sentinel value returned by fundamental lookups that cannot be
// resolved (§4.5.2).
var NaN = math.NaN()
