package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-market-maker/infrastructure/logger"
)

var (
	toxicWiden = decimal.NewFromInt(2)
	// sizeSkew boosts the side that moves inventory toward target.
	sizeSkew = decimal.RequireFromString("1.25")
)

// Adaptive asks the spread predictor for both spreads and the
// inventory optimizer for a target allocation on every cycle, then
// skews quote sizes toward the target. While the toxic flag is set it
// keeps quoting but doubles both spreads.
type Adaptive struct {
	lifecycle
	trader       Trader
	log          *logger.Logger
	minOrderSize decimal.Decimal
	toxicCooloff time.Duration
}

func NewAdaptive(trader Trader, log *logger.Logger, minOrderSize decimal.Decimal, toxicCooloff time.Duration) *Adaptive {
	return &Adaptive{
		lifecycle:    newLifecycle(),
		trader:       trader,
		log:          log,
		minOrderSize: minOrderSize,
		toxicCooloff: toxicCooloff,
	}
}

func (s *Adaptive) Name() string { return "adaptive" }

func (s *Adaptive) Start(ctx context.Context, market string, params Params) error {
	if err := validateParams(params); err != nil {
		return err
	}
	return s.begin(market, params)
}

func (s *Adaptive) Stop(ctx context.Context, market string) error {
	if _, ok := s.params(market); !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, market)
	}
	cancelErr := s.trader.CancelOrders(ctx, market)
	if err := s.end(market); err != nil {
		return err
	}
	if cancelErr != nil {
		return fmt.Errorf("cancel on stop: %w", cancelErr)
	}
	return nil
}

func (s *Adaptive) Requote(ctx context.Context, market string) error {
	params, ok := s.params(market)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, market)
	}
	ob := s.trader.Book(market)
	if ob == nil {
		return nil
	}
	mid, haveMid := ob.MidPrice()
	if !haveMid {
		return nil
	}

	bidSpread, askSpread := s.trader.OptimalSpread(ctx, market)
	if s.isToxic(market) {
		bidSpread = bidSpread.Mul(toxicWiden)
		askSpread = askSpread.Mul(toxicWiden)
	}

	size := params.Get(ParamBaseAmount, s.minOrderSize)
	if size.LessThan(s.minOrderSize) {
		size = s.minOrderSize
	}
	bidSize, askSize := size, size

	// Lean the quote toward the inventory target: quote more on the
	// side whose fill moves us closer.
	if target, err := s.trader.OptimalInventory(ctx, market); err == nil {
		if current, err := s.trader.CurrentInventory(ctx, market); err == nil {
			diff := target.Base.Sub(current.Base)
			if diff.Sign() > 0 {
				bidSize = size.Mul(sizeSkew)
			} else if diff.Sign() < 0 {
				askSize = size.Mul(sizeSkew)
			}
		}
	}

	bid := mid.Mul(decimal.NewFromInt(1).Sub(bidSpread))
	ask := mid.Mul(decimal.NewFromInt(1).Add(askSpread))
	_, err := s.trader.PlaceOrders(ctx, market, bid, bidSize, ask, askSize)
	return err
}

func (s *Adaptive) HandleToxicFlow(market string) {
	if _, ok := s.params(market); !ok {
		return
	}
	s.markToxic(market, s.toxicCooloff)
	s.log.LogToxicFlow(market, map[string]interface{}{"action": "widen", "strategy": s.Name()})
}
