package tradingdate

import (
	"testing"
	"time"

	"github.com/alpacahq/gopaca/calendar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAcceptsBothLayouts(t *testing.T) {
	d1, err := Parse("2020-08-31")
	require.NoError(t, err)
	d2, err := Parse("20200831")
	require.NoError(t, err)
	assert.True(t, d1.Equal(d2))
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("not-a-date")
	assert.Error(t, err)
}

func TestStringAndCompactFormats(t *testing.T) {
	d, err := Parse("2020-08-31")
	require.NoError(t, err)
	assert.Equal(t, "2020-08-31", d.String())
	assert.Equal(t, "20200831", d.Compact())
}

func TestPrevAndNextAreInverses(t *testing.T) {
	d, err := Parse("2020-08-31")
	require.NoError(t, err)
	assert.True(t, d.Prev().Next().Equal(d))
}

func TestDaysAgoWalksBackNTradingSessions(t *testing.T) {
	d, err := Parse("2020-08-31")
	require.NoError(t, err)
	assert.True(t, d.DaysAgo(0).Equal(d))
	assert.True(t, d.DaysAgo(1).Equal(d.Prev()))
	assert.True(t, d.DaysAgo(2).Equal(d.Prev().Prev()))
}

func TestBeforeAfterEqual(t *testing.T) {
	a, _ := Parse("2020-08-30")
	b, _ := Parse("2020-08-31")
	assert.True(t, a.Before(b))
	assert.True(t, b.After(a))
	assert.False(t, a.Equal(b))
}

func TestNewRejectsNonTradingDay(t *testing.T) {
	// a Saturday
	saturday := time.Date(2020, 8, 29, 0, 0, 0, 0, calendar.NY)
	_, err := New(saturday)
	assert.Error(t, err)
}

func TestNewAcceptsTradingDay(t *testing.T) {
	monday := time.Date(2020, 8, 31, 12, 0, 0, 0, calendar.NY)
	d, err := New(monday)
	require.NoError(t, err)
	assert.Equal(t, "2020-08-31", d.String())
}

func TestLastRollsBackToMostRecentTradingDay(t *testing.T) {
	saturday := time.Date(2020, 8, 29, 0, 0, 0, 0, calendar.NY)
	d := Last(saturday)
	assert.Equal(t, "2020-08-28", d.String())
}

func TestFromTimeTruncatesToCalendarDay(t *testing.T) {
	ts := time.Date(2020, 8, 31, 23, 59, 0, 0, time.UTC)
	d := FromTime(ts)
	assert.Equal(t, "2020-08-31", d.String())
}
