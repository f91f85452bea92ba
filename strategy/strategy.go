// Package strategy holds the per-market quoting strategies and the
// closed registry they are resolved from.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-market-maker/book"
	"solana-market-maker/model"
)

// Well-known parameter keys.
const (
	ParamBaseAmount  = "base_amount"
	ParamQuoteAmount = "quote_amount"
	ParamSpread      = "spread"
)

var (
	// ErrAlreadyActive is returned by Start on an active market.
	ErrAlreadyActive = errors.New("market already active")
	// ErrNotActive is returned by Stop/Requote on an inactive market.
	ErrNotActive = errors.New("market not active")
	// ErrInvalidParams is returned by Start for malformed parameters.
	ErrInvalidParams = errors.New("invalid strategy params")
)

// Params carries per-market strategy configuration.
type Params map[string]decimal.Decimal

// Get returns the value for key or def when absent.
func (p Params) Get(key string, def decimal.Decimal) decimal.Decimal {
	if p == nil {
		return def
	}
	if v, ok := p[key]; ok {
		return v
	}
	return def
}

// Clone returns a shallow copy so callers can merge without aliasing.
func (p Params) Clone() Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Quote is one two-sided quote for a market. At most one is live per
// market; a new quote replaces the previous one.
type Quote struct {
	BidPrice  decimal.Decimal
	BidSize   decimal.Decimal
	AskPrice  decimal.Decimal
	AskSize   decimal.Decimal
	Timestamp time.Time
}

// Trader is the slice of the client surface strategies drive. The
// market making client implements it.
type Trader interface {
	Book(market string) *book.OrderBook
	OptimalSpread(ctx context.Context, market string) (bidSpread, askSpread decimal.Decimal)
	OptimalInventory(ctx context.Context, market string) (model.Inventory, error)
	CurrentInventory(ctx context.Context, market string) (model.Inventory, error)
	PlaceOrders(ctx context.Context, market string, bidPrice, bidSize, askPrice, askSize decimal.Decimal) (Quote, error)
	CancelOrders(ctx context.Context, market string) error
}

// Strategy is the lifecycle controller for quoting one or more
// markets. Start and Stop move a market between Inactive and Active;
// Requote runs once per refresh cycle while Active; HandleToxicFlow is
// a transient adjustment that does not change state.
type Strategy interface {
	Name() string
	Start(ctx context.Context, market string, params Params) error
	Stop(ctx context.Context, market string) error
	Requote(ctx context.Context, market string) error
	HandleToxicFlow(market string)
}

// lifecycle is the shared Inactive/Active bookkeeping.
type lifecycle struct {
	mu     sync.Mutex
	active map[string]*marketState
}

type marketState struct {
	params     Params
	toxicUntil time.Time
}

func newLifecycle() lifecycle {
	return lifecycle{active: make(map[string]*marketState)}
}

func (l *lifecycle) begin(market string, params Params) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[market]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyActive, market)
	}
	l.active[market] = &marketState{params: params.Clone()}
	return nil
}

func (l *lifecycle) end(market string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.active[market]; !ok {
		return fmt.Errorf("%w: %s", ErrNotActive, market)
	}
	delete(l.active, market)
	return nil
}

func (l *lifecycle) params(market string) (Params, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.active[market]
	if !ok {
		return nil, false
	}
	return st.params, true
}

func (l *lifecycle) markToxic(market string, cooloff time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.active[market]; ok {
		st.toxicUntil = time.Now().Add(cooloff)
	}
}

func (l *lifecycle) isToxic(market string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.active[market]
	return ok && time.Now().Before(st.toxicUntil)
}

// validateParams rejects negative amounts before any side effect.
func validateParams(params Params) error {
	for _, key := range []string{ParamBaseAmount, ParamQuoteAmount, ParamSpread} {
		if v, ok := params[key]; ok && v.Sign() < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidParams, key)
		}
	}
	return nil
}
