// Package book maintains per-market order book snapshots and the
// analytics derived from them (mid, spread, depth, imbalance, VWAP,
// price impact). All prices and sizes are exact decimals.
package book

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultDepthLevels is used when a caller passes levels <= 0.
const DefaultDepthLevels = 10

var (
	// ErrInsufficientLiquidity is returned by VWAP when the requested
	// size exceeds the resting depth on that side.
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	// ErrInvalidSide is returned for a side other than bid/ask.
	ErrInvalidSide = errors.New("invalid side")
)

// Side identifies which half of the book an operation targets.
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// PriceLevel is a single price+size entry.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook holds the current snapshot for one market. Each Update
// replaces the whole book; there is no incremental diffing. Bids are
// kept descending by price, asks ascending.
type OrderBook struct {
	mu         sync.RWMutex
	market     string
	bids       []PriceLevel
	asks       []PriceLevel
	lastUpdate time.Time
}

func NewOrderBook(market string) *OrderBook {
	return &OrderBook{market: market}
}

// Market returns the market symbol this book belongs to.
func (ob *OrderBook) Market() string {
	return ob.market
}

// Update replaces the full book with the given levels. Input order does
// not matter; levels are re-sorted here. A crossed snapshot is stored
// as-is and surfaces as a negative spread.
func (ob *OrderBook) Update(bids, asks []PriceLevel) {
	sortedBids := make([]PriceLevel, len(bids))
	copy(sortedBids, bids)
	sort.Slice(sortedBids, func(i, j int) bool {
		return sortedBids[i].Price.GreaterThan(sortedBids[j].Price)
	})

	sortedAsks := make([]PriceLevel, len(asks))
	copy(sortedAsks, asks)
	sort.Slice(sortedAsks, func(i, j int) bool {
		return sortedAsks[i].Price.LessThan(sortedAsks[j].Price)
	})

	now := time.Now()
	ob.mu.Lock()
	ob.bids = sortedBids
	ob.asks = sortedAsks
	if now.After(ob.lastUpdate) {
		ob.lastUpdate = now
	}
	ob.mu.Unlock()
}

// LastUpdate returns the time of the most recent Update; zero before
// the first one.
func (ob *OrderBook) LastUpdate() time.Time {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.lastUpdate
}

// Snapshot returns copies of both sides in sorted order.
func (ob *OrderBook) Snapshot() (bids, asks []PriceLevel) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	bids = make([]PriceLevel, len(ob.bids))
	copy(bids, ob.bids)
	asks = make([]PriceLevel, len(ob.asks))
	copy(asks, ob.asks)
	return bids, asks
}

// BestBid returns the highest bid level.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.bids[0], true
}

// BestAsk returns the lowest ask level.
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.asks[0], true
}

// MidPrice returns (bestBid+bestAsk)/2; ok is false if either side is
// empty.
func (ob *OrderBook) MidPrice() (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.midLocked()
}

func (ob *OrderBook) midLocked() (decimal.Decimal, bool) {
	if len(ob.bids) == 0 || len(ob.asks) == 0 {
		return decimal.Decimal{}, false
	}
	return ob.bids[0].Price.Add(ob.asks[0].Price).Div(decimal.NewFromInt(2)), true
}

// Spread returns (bestAsk-bestBid)/bestBid; ok is false if either side
// is empty. The value is negative for a crossed book; callers treat
// that as a data-quality signal.
func (ob *OrderBook) Spread() (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	if len(ob.bids) == 0 || len(ob.asks) == 0 {
		return decimal.Decimal{}, false
	}
	bestBid := ob.bids[0].Price
	if bestBid.IsZero() {
		return decimal.Decimal{}, false
	}
	return ob.asks[0].Price.Sub(bestBid).Div(bestBid), true
}

// Depth sums sizes over the top levels of each side. levels <= 0 means
// DefaultDepthLevels.
func (ob *OrderBook) Depth(levels int) (bidDepth, askDepth decimal.Decimal) {
	if levels <= 0 {
		levels = DefaultDepthLevels
	}
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return sumDepth(ob.bids, levels), sumDepth(ob.asks, levels)
}

func sumDepth(side []PriceLevel, levels int) decimal.Decimal {
	total := decimal.Decimal{}
	for i, lvl := range side {
		if i >= levels {
			break
		}
		total = total.Add(lvl.Size)
	}
	return total
}

// Imbalance returns (bidDepth-askDepth)/(bidDepth+askDepth) over the
// top levels, in [-1, 1]. Zero when total depth is zero.
func (ob *OrderBook) Imbalance(levels int) decimal.Decimal {
	bidDepth, askDepth := ob.Depth(levels)
	total := bidDepth.Add(askDepth)
	if total.IsZero() {
		return decimal.Decimal{}
	}
	return bidDepth.Sub(askDepth).Div(total)
}

// VWAP walks the given side from best to worst consuming size and
// returns the size-weighted average fill price. It never consumes more
// than the requested size. ErrInsufficientLiquidity when the side
// cannot absorb the size (including size <= 0).
func (ob *OrderBook) VWAP(size decimal.Decimal, side Side) (decimal.Decimal, error) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	return ob.vwapLocked(size, side)
}

func (ob *OrderBook) vwapLocked(size decimal.Decimal, side Side) (decimal.Decimal, error) {
	var levels []PriceLevel
	switch side {
	case SideBid:
		levels = ob.bids
	case SideAsk:
		levels = ob.asks
	default:
		return decimal.Decimal{}, ErrInvalidSide
	}

	if size.Sign() <= 0 {
		return decimal.Decimal{}, ErrInsufficientLiquidity
	}

	remaining := size
	totalValue := decimal.Decimal{}
	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		executed := decimal.Min(remaining, lvl.Size)
		totalValue = totalValue.Add(executed.Mul(lvl.Price))
		remaining = remaining.Sub(executed)
	}
	if remaining.Sign() > 0 {
		return decimal.Decimal{}, ErrInsufficientLiquidity
	}
	return totalValue.Div(size), nil
}

// PriceImpact returns the relative deviation of VWAP from mid for the
// given size: (mid-vwap)/mid on the bid side, (vwap-mid)/mid on the
// ask side. ok is false when mid or VWAP is unavailable.
func (ob *OrderBook) PriceImpact(size decimal.Decimal, side Side) (decimal.Decimal, bool) {
	ob.mu.RLock()
	defer ob.mu.RUnlock()
	mid, ok := ob.midLocked()
	if !ok || mid.IsZero() {
		return decimal.Decimal{}, false
	}
	vwap, err := ob.vwapLocked(size, side)
	if err != nil {
		return decimal.Decimal{}, false
	}
	if side == SideBid {
		return mid.Sub(vwap).Div(mid), true
	}
	return vwap.Sub(mid).Div(mid), true
}
