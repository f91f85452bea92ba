// Package model holds the pluggable decision models: spread
// prediction, inventory optimization and toxic-flow classification.
// Default implementations are simple deterministic heuristics; callers
// may swap in anything satisfying the contracts.
package model

import (
	"github.com/shopspring/decimal"

	"solana-market-maker/book"
)

// SpreadPredictor maps a book snapshot plus market statistics to a
// (bid spread, ask spread) pair, both expressed as fractions of price.
// Predict must be pure: identical inputs yield identical outputs.
type SpreadPredictor interface {
	Predict(market string, ob *book.OrderBook, volatility, volume decimal.Decimal) (bidSpread, askSpread decimal.Decimal)
}

// SpreadModelConfig parameterizes the heuristic predictor.
type SpreadModelConfig struct {
	BaseSpread       decimal.Decimal // starting spread, e.g. 0.002
	VolatilityFactor decimal.Decimal // spread added per unit of volatility
	VolumeFactor     decimal.Decimal // spread removed per $1M of volume
	ImbalanceFactor  decimal.Decimal // skew applied per unit of |imbalance|
	Floor            decimal.Decimal // lower clamp, e.g. 1bp
	ImbalanceLevels  int             // book levels used for imbalance
}

// DefaultSpreadModelConfig mirrors the stock model parameters.
func DefaultSpreadModelConfig() SpreadModelConfig {
	return SpreadModelConfig{
		BaseSpread:       decimal.RequireFromString("0.002"),
		VolatilityFactor: decimal.RequireFromString("0.5"),
		VolumeFactor:     decimal.RequireFromString("0.2"),
		ImbalanceFactor:  decimal.RequireFromString("0.001"),
		Floor:            decimal.RequireFromString("0.0001"),
		ImbalanceLevels:  book.DefaultDepthLevels,
	}
}

var million = decimal.NewFromInt(1_000_000)

// HeuristicSpreadPredictor widens with volatility, tightens with traded
// volume, and skews both sides away from the heavier half of the book.
type HeuristicSpreadPredictor struct {
	cfg SpreadModelConfig
}

func NewHeuristicSpreadPredictor(cfg SpreadModelConfig) *HeuristicSpreadPredictor {
	if cfg.ImbalanceLevels <= 0 {
		cfg.ImbalanceLevels = book.DefaultDepthLevels
	}
	return &HeuristicSpreadPredictor{cfg: cfg}
}

func (p *HeuristicSpreadPredictor) Predict(market string, ob *book.OrderBook, volatility, volume decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	base := p.cfg.BaseSpread.
		Add(volatility.Mul(p.cfg.VolatilityFactor)).
		Sub(volume.Div(million).Mul(p.cfg.VolumeFactor))

	imbalance := decimal.Decimal{}
	if ob != nil {
		imbalance = ob.Imbalance(p.cfg.ImbalanceLevels)
	}
	skew := imbalance.Abs().Mul(p.cfg.ImbalanceFactor)

	// More resting bids than asks: lean the bid tighter and the ask
	// wider so fills rebalance inventory instead of stacking it.
	var bidSpread, askSpread decimal.Decimal
	if imbalance.Sign() > 0 {
		bidSpread = base.Sub(skew)
		askSpread = base.Add(skew)
	} else {
		bidSpread = base.Add(skew)
		askSpread = base.Sub(skew)
	}

	return decimal.Max(bidSpread, p.cfg.Floor), decimal.Max(askSpread, p.cfg.Floor)
}
