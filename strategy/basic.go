package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"solana-market-maker/infrastructure/logger"
)

// Basic quotes a static spread around mid. While the toxic flag is
// set it withdraws its quote instead of replacing it.
type Basic struct {
	lifecycle
	trader        Trader
	log           *logger.Logger
	defaultSpread decimal.Decimal
	minOrderSize  decimal.Decimal
	toxicCooloff  time.Duration
}

func NewBasic(trader Trader, log *logger.Logger, defaultSpread, minOrderSize decimal.Decimal, toxicCooloff time.Duration) *Basic {
	return &Basic{
		lifecycle:     newLifecycle(),
		trader:        trader,
		log:           log,
		defaultSpread: defaultSpread,
		minOrderSize:  minOrderSize,
		toxicCooloff:  toxicCooloff,
	}
}

func (s *Basic) Name() string { return "basic" }

func (s *Basic) Start(ctx context.Context, market string, params Params) error {
	if err := validateParams(params); err != nil {
		return err
	}
	return s.begin(market, params)
}

func (s *Basic) Stop(ctx context.Context, market string) error {
	if _, ok := s.params(market); !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, market)
	}
	// Cancel the outstanding quote before releasing the market.
	cancelErr := s.trader.CancelOrders(ctx, market)
	if err := s.end(market); err != nil {
		return err
	}
	if cancelErr != nil {
		return fmt.Errorf("cancel on stop: %w", cancelErr)
	}
	return nil
}

func (s *Basic) Requote(ctx context.Context, market string) error {
	params, ok := s.params(market)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, market)
	}
	if s.isToxic(market) {
		// Quote already withdrawn by HandleToxicFlow; sit out the
		// cooloff.
		return nil
	}

	ob := s.trader.Book(market)
	if ob == nil {
		return nil
	}
	mid, haveMid := ob.MidPrice()
	if !haveMid {
		return nil
	}

	spread := params.Get(ParamSpread, s.defaultSpread)
	half := mid.Mul(spread).Div(two)
	size := params.Get(ParamBaseAmount, s.minOrderSize)
	if size.LessThan(s.minOrderSize) {
		size = s.minOrderSize
	}

	_, err := s.trader.PlaceOrders(ctx, market, mid.Sub(half), size, mid.Add(half), size)
	return err
}

func (s *Basic) HandleToxicFlow(market string) {
	if _, ok := s.params(market); !ok {
		return
	}
	s.markToxic(market, s.toxicCooloff)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.trader.CancelOrders(ctx, market); err != nil {
		s.log.LogError(err, market, map[string]interface{}{"op": "toxic_withdraw"})
		return
	}
	s.log.LogToxicFlow(market, map[string]interface{}{"action": "withdraw", "strategy": s.Name()})
}

var two = decimal.NewFromInt(2)
