package model

import (
	"github.com/shopspring/decimal"
)

// Inventory is a (base, quote) holding pair for one market.
type Inventory struct {
	Base  decimal.Decimal
	Quote decimal.Decimal
}

// MarketConditions bundles the statistics optimizers consume.
type MarketConditions struct {
	MidPrice   decimal.Decimal
	Volatility decimal.Decimal
	Volume     decimal.Decimal
	Imbalance  decimal.Decimal
}

// InventoryOptimizer maps current holdings plus market conditions to a
// target allocation. Implementations must return finite, non-negative
// amounts and must not mutate the input.
type InventoryOptimizer interface {
	Optimize(market string, current Inventory, cond MarketConditions) (Inventory, error)
}

var two = decimal.NewFromInt(2)

// RangeInventoryOptimizer keeps base exposure inside a configured share
// of total portfolio value, leaning the target toward the side the book
// is likely to fill against.
type RangeInventoryOptimizer struct {
	// MaxInventoryRatio bounds the base-asset share of portfolio
	// value, e.g. 0.1 for 10%.
	MaxInventoryRatio decimal.Decimal
}

func NewRangeInventoryOptimizer(maxRatio decimal.Decimal) *RangeInventoryOptimizer {
	return &RangeInventoryOptimizer{MaxInventoryRatio: maxRatio}
}

func (o *RangeInventoryOptimizer) Optimize(market string, current Inventory, cond MarketConditions) (Inventory, error) {
	// Without a price there is no common unit; hold what we have.
	if cond.MidPrice.Sign() <= 0 {
		return current, nil
	}

	total := current.Quote.Add(current.Base.Mul(cond.MidPrice))
	if total.Sign() <= 0 {
		return Inventory{}, nil
	}

	// Positive imbalance (bid pressure) means our asks fill first, so
	// carry more base to sell into it; negative means the opposite.
	lean := decimal.NewFromInt(1).Add(cond.Imbalance) // [0, 2]
	baseValue := total.Mul(o.MaxInventoryRatio).Mul(lean).Div(two)
	if baseValue.Sign() < 0 {
		baseValue = decimal.Decimal{}
	}
	if baseValue.GreaterThan(total) {
		baseValue = total
	}

	return Inventory{
		Base:  baseValue.Div(cond.MidPrice),
		Quote: total.Sub(baseValue),
	}, nil
}
