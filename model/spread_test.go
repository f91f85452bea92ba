package model

import (
	"testing"

	"github.com/shopspring/decimal"

	"solana-market-maker/book"
)

func level(price, size string) book.PriceLevel {
	return book.PriceLevel{
		Price: decimal.RequireFromString(price),
		Size:  decimal.RequireFromString(size),
	}
}

func balancedBook() *book.OrderBook {
	ob := book.NewOrderBook("SOL-USDC")
	ob.Update(
		[]book.PriceLevel{level("100", "5")},
		[]book.PriceLevel{level("101", "5")},
	)
	return ob
}

func TestPredictBaselineExact(t *testing.T) {
	p := NewHeuristicSpreadPredictor(DefaultSpreadModelConfig())
	bid, ask := p.Predict("SOL-USDC", balancedBook(), decimal.Decimal{}, decimal.Decimal{})
	base := decimal.RequireFromString("0.002")
	if !bid.Equal(base) || !ask.Equal(base) {
		t.Fatalf("expected (%s, %s), got (%s, %s)", base, base, bid, ask)
	}
}

func TestPredictDeterministic(t *testing.T) {
	p := NewHeuristicSpreadPredictor(DefaultSpreadModelConfig())
	ob := book.NewOrderBook("SOL-USDC")
	ob.Update(
		[]book.PriceLevel{level("100", "9"), level("99", "4")},
		[]book.PriceLevel{level("101", "2")},
	)
	vol := decimal.RequireFromString("0.02")
	volume := decimal.NewFromInt(500_000)
	bid1, ask1 := p.Predict("SOL-USDC", ob, vol, volume)
	bid2, ask2 := p.Predict("SOL-USDC", ob, vol, volume)
	if !bid1.Equal(bid2) || !ask1.Equal(ask2) {
		t.Fatalf("predict not deterministic: (%s,%s) vs (%s,%s)", bid1, ask1, bid2, ask2)
	}
}

func TestPredictFloor(t *testing.T) {
	cfg := DefaultSpreadModelConfig()
	p := NewHeuristicSpreadPredictor(cfg)
	// Enormous volume pushes the raw spread negative; floor must hold.
	bid, ask := p.Predict("SOL-USDC", balancedBook(), decimal.Decimal{}, decimal.NewFromInt(1_000_000_000))
	if !bid.Equal(cfg.Floor) || !ask.Equal(cfg.Floor) {
		t.Fatalf("expected floor %s on both sides, got (%s, %s)", cfg.Floor, bid, ask)
	}
}

func TestPredictSkewDirection(t *testing.T) {
	p := NewHeuristicSpreadPredictor(DefaultSpreadModelConfig())

	bidHeavy := book.NewOrderBook("SOL-USDC")
	bidHeavy.Update(
		[]book.PriceLevel{level("100", "9")},
		[]book.PriceLevel{level("101", "1")},
	)
	bid, ask := p.Predict("SOL-USDC", bidHeavy, decimal.Decimal{}, decimal.Decimal{})
	if !bid.LessThan(ask) {
		t.Fatalf("bid-heavy book should tighten bid and widen ask, got (%s, %s)", bid, ask)
	}

	askHeavy := book.NewOrderBook("SOL-USDC")
	askHeavy.Update(
		[]book.PriceLevel{level("100", "1")},
		[]book.PriceLevel{level("101", "9")},
	)
	bid, ask = p.Predict("SOL-USDC", askHeavy, decimal.Decimal{}, decimal.Decimal{})
	if !ask.LessThan(bid) {
		t.Fatalf("ask-heavy book should tighten ask and widen bid, got (%s, %s)", bid, ask)
	}
}

func TestPredictVolatilityWidens(t *testing.T) {
	p := NewHeuristicSpreadPredictor(DefaultSpreadModelConfig())
	ob := balancedBook()
	calmBid, _ := p.Predict("SOL-USDC", ob, decimal.Decimal{}, decimal.Decimal{})
	wildBid, _ := p.Predict("SOL-USDC", ob, decimal.RequireFromString("0.05"), decimal.Decimal{})
	if !wildBid.GreaterThan(calmBid) {
		t.Fatalf("volatility should widen spread: %s vs %s", wildBid, calmBid)
	}
}

func TestPredictNilBook(t *testing.T) {
	p := NewHeuristicSpreadPredictor(DefaultSpreadModelConfig())
	bid, ask := p.Predict("SOL-USDC", nil, decimal.Decimal{}, decimal.Decimal{})
	base := decimal.RequireFromString("0.002")
	if !bid.Equal(base) || !ask.Equal(base) {
		t.Fatalf("nil book should behave as balanced, got (%s, %s)", bid, ask)
	}
}
