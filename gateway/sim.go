package gateway

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// In-memory collaborators for dry runs and tests. They satisfy the
// same contracts as real adapters and allow error injection.

// SimChain connects unconditionally.
type SimChain struct {
	ConnectErr error
}

func (c *SimChain) Connect(ctx context.Context) error {
	return c.ConnectErr
}

// SimMarketData serves fixed volatility/volume per market.
type SimMarketData struct {
	mu         sync.RWMutex
	volatility map[string]decimal.Decimal
	volume     map[string]decimal.Decimal
	Err        error
}

func NewSimMarketData() *SimMarketData {
	return &SimMarketData{
		volatility: make(map[string]decimal.Decimal),
		volume:     make(map[string]decimal.Decimal),
	}
}

func (d *SimMarketData) SetStats(market string, volatility, volume decimal.Decimal) {
	d.mu.Lock()
	d.volatility[market] = volatility
	d.volume[market] = volume
	d.mu.Unlock()
}

func (d *SimMarketData) MarketVolatility(ctx context.Context, market string) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return decimal.Decimal{}, d.Err
	}
	return d.volatility[market], nil
}

func (d *SimMarketData) MarketVolume(ctx context.Context, market string) (decimal.Decimal, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.Err != nil {
		return decimal.Decimal{}, d.Err
	}
	return d.volume[market], nil
}

// SimOrder is the last quote a SimExecutor accepted for a market.
type SimOrder struct {
	OrderID  string
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
}

// SimExecutor records placements and cancels in memory.
type SimExecutor struct {
	mu        sync.Mutex
	seq       int
	open      map[string]SimOrder
	placed    int
	cancelled int

	PlaceErr  error
	CancelErr error
}

func NewSimExecutor() *SimExecutor {
	return &SimExecutor{open: make(map[string]SimOrder)}
}

func (e *SimExecutor) Place(ctx context.Context, market string, bidPrice, bidSize, askPrice, askSize decimal.Decimal) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.PlaceErr != nil {
		return "", e.PlaceErr
	}
	e.seq++
	id := fmt.Sprintf("sim-%s-%d", market, e.seq)
	e.open[market] = SimOrder{
		OrderID:  id,
		BidPrice: bidPrice,
		BidSize:  bidSize,
		AskPrice: askPrice,
		AskSize:  askSize,
	}
	e.placed++
	return id, nil
}

func (e *SimExecutor) Cancel(ctx context.Context, market string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.CancelErr != nil {
		return e.CancelErr
	}
	delete(e.open, market)
	e.cancelled++
	return nil
}

// Open returns the live order for a market, if any.
func (e *SimExecutor) Open(market string) (SimOrder, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.open[market]
	return o, ok
}

// Placed returns the number of accepted placements.
func (e *SimExecutor) Placed() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.placed
}

// Cancelled returns the number of accepted cancels.
func (e *SimExecutor) Cancelled() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

// SimWallet serves fixed balances per market.
type SimWallet struct {
	mu       sync.RWMutex
	balances map[string][2]decimal.Decimal
	Err      error
}

func NewSimWallet() *SimWallet {
	return &SimWallet{balances: make(map[string][2]decimal.Decimal)}
}

func (w *SimWallet) SetBalances(market string, base, quote decimal.Decimal) {
	w.mu.Lock()
	w.balances[market] = [2]decimal.Decimal{base, quote}
	w.mu.Unlock()
}

func (w *SimWallet) Balances(ctx context.Context, market string) (decimal.Decimal, decimal.Decimal, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.Err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, w.Err
	}
	b := w.balances[market]
	return b[0], b[1], nil
}

// SimVenue serves a fixed top of book for cross-venue comparison.
type SimVenue struct {
	VenueName string
	mu        sync.RWMutex
	quotes    map[string][2]decimal.Decimal
	Err       error
}

func NewSimVenue(name string) *SimVenue {
	return &SimVenue{VenueName: name, quotes: make(map[string][2]decimal.Decimal)}
}

func (v *SimVenue) Name() string { return v.VenueName }

func (v *SimVenue) SetQuote(market string, bid, ask decimal.Decimal) {
	v.mu.Lock()
	v.quotes[market] = [2]decimal.Decimal{bid, ask}
	v.mu.Unlock()
}

func (v *SimVenue) BestQuote(ctx context.Context, market string) (decimal.Decimal, decimal.Decimal, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.Err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, v.Err
	}
	q, ok := v.quotes[market]
	if !ok {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("venue %s has no quote for %s", v.VenueName, market)
	}
	return q[0], q[1], nil
}
