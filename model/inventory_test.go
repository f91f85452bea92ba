package model

import (
	"testing"

	"github.com/shopspring/decimal"
)

func conditions(mid string) MarketConditions {
	return MarketConditions{MidPrice: decimal.RequireFromString(mid)}
}

func TestOptimizeNonNegative(t *testing.T) {
	o := NewRangeInventoryOptimizer(decimal.RequireFromString("0.1"))
	cur := Inventory{Base: decimal.NewFromInt(10), Quote: decimal.NewFromInt(1000)}

	cond := conditions("100")
	cond.Imbalance = decimal.NewFromInt(-1) // maximum ask pressure
	target, err := o.Optimize("SOL-USDC", cur, cond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if target.Base.Sign() < 0 || target.Quote.Sign() < 0 {
		t.Fatalf("negative target: %s/%s", target.Base, target.Quote)
	}
}

func TestOptimizePreservesPortfolioValue(t *testing.T) {
	o := NewRangeInventoryOptimizer(decimal.RequireFromString("0.1"))
	cur := Inventory{Base: decimal.NewFromInt(10), Quote: decimal.NewFromInt(1000)}
	cond := conditions("100")

	target, err := o.Optimize("SOL-USDC", cur, cond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := target.Quote.Add(target.Base.Mul(cond.MidPrice))
	want := decimal.NewFromInt(2000) // 1000 quote + 10*100 base
	if !total.Equal(want) {
		t.Fatalf("target changes portfolio value: %s want %s", total, want)
	}
}

func TestOptimizeRespectsRatio(t *testing.T) {
	ratio := decimal.RequireFromString("0.1")
	o := NewRangeInventoryOptimizer(ratio)
	cur := Inventory{Base: decimal.NewFromInt(10), Quote: decimal.NewFromInt(1000)}
	cond := conditions("100")
	cond.Imbalance = decimal.NewFromInt(1) // strongest lean toward base

	target, err := o.Optimize("SOL-USDC", cur, cond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	total := cur.Quote.Add(cur.Base.Mul(cond.MidPrice))
	baseValue := target.Base.Mul(cond.MidPrice)
	if baseValue.GreaterThan(total.Mul(ratio)) {
		t.Fatalf("base exposure %s exceeds ratio bound %s", baseValue, total.Mul(ratio))
	}
}

func TestOptimizeDoesNotMutateInput(t *testing.T) {
	o := NewRangeInventoryOptimizer(decimal.RequireFromString("0.1"))
	cur := Inventory{Base: decimal.NewFromInt(10), Quote: decimal.NewFromInt(1000)}
	if _, err := o.Optimize("SOL-USDC", cur, conditions("100")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cur.Base.Equal(decimal.NewFromInt(10)) || !cur.Quote.Equal(decimal.NewFromInt(1000)) {
		t.Fatal("current inventory mutated")
	}
}

func TestOptimizeNoPrice(t *testing.T) {
	o := NewRangeInventoryOptimizer(decimal.RequireFromString("0.1"))
	cur := Inventory{Base: decimal.NewFromInt(10), Quote: decimal.NewFromInt(1000)}
	target, err := o.Optimize("SOL-USDC", cur, MarketConditions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !target.Base.Equal(cur.Base) || !target.Quote.Equal(cur.Quote) {
		t.Fatal("expected current holdings back when price is unknown")
	}
}

func TestOptimizeEmptyPortfolio(t *testing.T) {
	o := NewRangeInventoryOptimizer(decimal.RequireFromString("0.1"))
	target, err := o.Optimize("SOL-USDC", Inventory{}, conditions("100"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !target.Base.IsZero() || !target.Quote.IsZero() {
		t.Fatalf("empty portfolio should target zero, got %s/%s", target.Base, target.Quote)
	}
}
