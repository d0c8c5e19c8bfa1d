// Package tradingdate wraps github.com/alpacahq/gopaca/calendar into a
// value type for trading-day arithmetic, adapted from the teacher's
// utils/tradingdate package. It backs the "previous trading day" and
// "today" primitives used by the factor-file, map-file and universe
// engines.
package tradingdate

import (
	"fmt"
	"time"

	"github.com/alpacahq/gopaca/calendar"
	"github.com/alpacahq/gopaca/clock"
)

// TradingDate represents a single trading day, always normalized to the
// market's local (NY) calendar day.
type TradingDate struct {
	timestamp time.Time
}

// String renders the date as YYYY-MM-DD, matching upstream's date param
// format.
func (t TradingDate) String() string {
	return t.timestamp.Format("2006-01-02")
}

// Compact renders the date as YYYYMMDD, matching the on-disk artifact
// naming scheme (coarse/{yyyyMMdd}.csv) and the coarse-{yyyyMMdd} lock key.
func (t TradingDate) Compact() string {
	return t.timestamp.Format("20060102")
}

func (t TradingDate) Time() time.Time {
	return t.timestamp
}

// Prev returns the previous trading day.
func (t TradingDate) Prev() TradingDate {
	return FromTime(calendar.PrevClose(t.timestamp))
}

// Next returns the next trading day.
func (t TradingDate) Next() TradingDate {
	return FromTime(calendar.NextClose(t.timestamp))
}

func (t TradingDate) After(o TradingDate) bool {
	return t.timestamp.After(o.timestamp)
}

func (t TradingDate) Before(o TradingDate) bool {
	return t.timestamp.Before(o.timestamp)
}

func (t TradingDate) Equal(o TradingDate) bool {
	return t.timestamp.Equal(o.timestamp)
}

// DaysAgo returns the trading day N trading sessions before t.
func (t TradingDate) DaysAgo(n int) TradingDate {
	cur := t
	for i := 0; i < n; i++ {
		cur = cur.Prev()
	}
	return cur
}

// New builds a TradingDate anchored on t's calendar day. If t does not
// fall on a trading day, it returns an error the way the teacher's
// tradingdate.New does.
func New(t time.Time) (*TradingDate, error) {
	if calendar.IsMarketDay(t) {
		d := TradingDate{timestamp: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, calendar.NY)}
		return &d, nil
	}
	return nil, fmt.Errorf("not a trading day: %v", t.Format("2006-01-02"))
}

// Last returns the most recent trading day at or before t.
func Last(t time.Time) TradingDate {
	t = t.In(calendar.NY)
	for !calendar.IsMarketDay(t) {
		t = t.AddDate(0, 0, -1)
	}
	return TradingDate{timestamp: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, calendar.NY)}
}

// Today returns the current trading day as of clock.Now(), which tests can
// pin via clock.Set.
func Today() TradingDate {
	return Last(clock.Now().In(calendar.NY))
}

// Parse parses a YYYY-MM-DD or YYYYMMDD string into a TradingDate without
// requiring the date to be a trading day (used for sentinel dates like
// 2000-01-01 and 2050-12-31, which are anchors, not real sessions).
func Parse(s string) (TradingDate, error) {
	layouts := []string{"2006-01-02", "20060102"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.ParseInLocation(layout, s, calendar.NY)
		if err == nil {
			return TradingDate{timestamp: t}, nil
		}
		lastErr = err
	}
	return TradingDate{}, lastErr
}

// FromTime builds a TradingDate from an arbitrary timestamp without
// requiring a trading-day check, truncating to the calendar day in NY.
func FromTime(t time.Time) TradingDate {
	t = t.In(calendar.NY)
	return TradingDate{timestamp: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, calendar.NY)}
}
