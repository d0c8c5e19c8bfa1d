package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCorporateActionValid(t *testing.T) {
	cases := []struct {
		name string
		a    CorporateAction
		want bool
	}{
		{"valid split", CorporateAction{Type: ActionSplit, SplitFactor: decimal.NewFromFloat(0.5), ReferencePrice: decimal.NewFromInt(100)}, true},
		{"split with zero factor", CorporateAction{Type: ActionSplit, SplitFactor: decimal.Zero, ReferencePrice: decimal.NewFromInt(100)}, false},
		{"valid dividend", CorporateAction{Type: ActionDividend, CashAmount: decimal.NewFromFloat(0.25), ReferencePrice: decimal.NewFromInt(100)}, true},
		{"dividend with zero cash", CorporateAction{Type: ActionDividend, CashAmount: decimal.Zero, ReferencePrice: decimal.NewFromInt(100)}, false},
		{"non-positive reference price", CorporateAction{Type: ActionSplit, SplitFactor: decimal.NewFromFloat(0.5), ReferencePrice: decimal.Zero}, false},
		{"unknown type", CorporateAction{Type: "merger", ReferencePrice: decimal.NewFromInt(100)}, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.a.Valid(), c.name)
	}
}
