package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"solana-market-maker/gateway"
	"solana-market-maker/infrastructure/logger"
)

// CrossVenue quotes like Adaptive but additionally checks the top of
// book on other venues and clamps its own quote so it never crosses
// them: it will not bid above where the base asset can be bought
// elsewhere, nor ask below where it can be sold elsewhere.
type CrossVenue struct {
	lifecycle
	trader       Trader
	log          *logger.Logger
	venues       []gateway.VenueQuoter
	minOrderSize decimal.Decimal
	toxicCooloff time.Duration
}

func NewCrossVenue(trader Trader, log *logger.Logger, venues []gateway.VenueQuoter, minOrderSize decimal.Decimal, toxicCooloff time.Duration) *CrossVenue {
	return &CrossVenue{
		lifecycle:    newLifecycle(),
		trader:       trader,
		log:          log,
		venues:       venues,
		minOrderSize: minOrderSize,
		toxicCooloff: toxicCooloff,
	}
}

func (s *CrossVenue) Name() string { return "cross_venue" }

func (s *CrossVenue) Start(ctx context.Context, market string, params Params) error {
	if err := validateParams(params); err != nil {
		return err
	}
	return s.begin(market, params)
}

func (s *CrossVenue) Stop(ctx context.Context, market string) error {
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

func (s *CrossVenue) Requote(ctx context.Context, market string) error {
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

	bid := mid.Mul(decimal.NewFromInt(1).Sub(bidSpread))
	ask := mid.Mul(decimal.NewFromInt(1).Add(askSpread))
	bid, ask = s.clampToVenues(ctx, market, bid, ask)
	if bid.GreaterThanOrEqual(ask) {
		// Venue constraints collapsed the quote; stand aside this
		// cycle rather than self-cross.
		return nil
	}

	size := params.Get(ParamBaseAmount, s.minOrderSize)
	if size.LessThan(s.minOrderSize) {
		size = s.minOrderSize
	}
	_, err := s.trader.PlaceOrders(ctx, market, bid, size, ask, size)
	return err
}

// clampToVenues keeps the quote inside the tightest external top of
// book. Venue failures are skipped; one dead venue must not stop
// quoting.
func (s *CrossVenue) clampToVenues(ctx context.Context, market string, bid, ask decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	for _, venue := range s.venues {
		vBid, vAsk, err := venue.BestQuote(ctx, market)
		if err != nil {
			s.log.Debug("venue quote unavailable",
				zap.String("venue", venue.Name()), zap.String("market", market))
			continue
		}
		if vAsk.Sign() > 0 && bid.GreaterThanOrEqual(vAsk) {
			bid = vAsk.Mul(justUnder)
		}
		if vBid.Sign() > 0 && ask.LessThanOrEqual(vBid) {
			ask = vBid.Mul(justOver)
		}
	}
	return bid, ask
}

func (s *CrossVenue) HandleToxicFlow(market string) {
	if _, ok := s.params(market); !ok {
		return
	}
	s.markToxic(market, s.toxicCooloff)
	s.log.LogToxicFlow(market, map[string]interface{}{"action": "widen", "strategy": s.Name()})
}

var (
	justUnder = decimal.RequireFromString("0.9999")
	justOver  = decimal.RequireFromString("1.0001")
)
