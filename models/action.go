package models

import (
	"github.com/shopspring/decimal"

	"github.com/alpacahq/refdata/internal/tradingdate"
)

// ActionType distinguishes the two CorporateAction variants described in
// §3. Unlike the teacher's models.CorporateAction (which also models
// merger/spin-off rows via a general enum), this system only ever
// synthesizes Split and Dividend actions from the upstream splits and
// dividends endpoints.
type ActionType string

const (
	ActionSplit    ActionType = "split"
	ActionDividend ActionType = "dividend"
)

// CorporateAction is either a Split (date, splitFactor =
// oldShares/newShares, referencePrice) or a Dividend (exDate, cashAmount,
// referencePrice), per §3. Dividends here are always cash-type: special
// cash dividends are included, stock dividends and capital-gain
// distributions are excluded by construction (the gateway only surfaces
// "CD"/"SC" dividend types to this model, see §4.3.2 step 2).
type CorporateAction struct {
	Type           ActionType
	Date           tradingdate.TradingDate
	SplitFactor    decimal.Decimal // valid only when Type == ActionSplit
	CashAmount     decimal.Decimal // valid only when Type == ActionDividend
	ReferencePrice decimal.Decimal
}

// Valid reports whether the action survives the drop rules in §3/§4.3.2
// step 5: reference price must be positive, and the type-specific factor
// or cash amount must be positive.
func (a CorporateAction) Valid() bool {
	if a.ReferencePrice.LessThanOrEqual(decimal.Zero) {
		return false
	}
	switch a.Type {
	case ActionSplit:
		return !a.SplitFactor.IsZero()
	case ActionDividend:
		return a.CashAmount.GreaterThan(decimal.Zero)
	default:
		return false
	}
}
