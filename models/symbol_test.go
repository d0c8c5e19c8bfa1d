package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUSEquity(t *testing.T) {
	assert.True(t, Symbol{Ticker: "AAPL", Market: MarketUSA, IsEquity: true}.IsUSEquity())
	assert.False(t, Symbol{Ticker: "AAPL", Market: MarketUSA, IsEquity: false}.IsUSEquity())
	assert.False(t, Symbol{Ticker: "VOD", Market: "GBR", IsEquity: true}.IsUSEquity())
}

func TestNormalizeUppercasesTicker(t *testing.T) {
	assert.Equal(t, "AAPL", Symbol{Ticker: "aapl"}.Normalize())
}

func TestPrimaryExchange(t *testing.T) {
	assert.Equal(t, ExchangeNASDAQ, PrimaryExchange(MarketUSA))
	assert.Equal(t, ExchangeUnknown, PrimaryExchange("GBR"))
}
