package maker

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-market-maker/strategy"
)

// PerformanceRecord summarizes one completed market-making session,
// from start_market_making to stop_market_making.
type PerformanceRecord struct {
	Market     string
	StartTime  time.Time
	Duration   time.Duration
	QuoteCount int
	// PnL is a spread-capture proxy, not realized profit: half the
	// quoted absolute spread times the smaller quoted size, summed
	// over every quote placed.
	PnL decimal.Decimal
}

// PerformanceTracker accumulates per-market session stats. Safe for
// concurrent markets.
type PerformanceTracker struct {
	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	start  time.Time
	quotes int
	pnl    decimal.Decimal
}

func NewPerformanceTracker() *PerformanceTracker {
	return &PerformanceTracker{sessions: make(map[string]*session)}
}

// StartTracking opens a session for the market, replacing any stale
// one.
func (t *PerformanceTracker) StartTracking(market string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[market] = &session{start: time.Now()}
}

// RecordQuote folds one placed quote into the market's session. No-op
// for untracked markets.
func (t *PerformanceTracker) RecordQuote(market string, q strategy.Quote) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[market]
	if !ok {
		return
	}
	s.quotes++
	captured := q.AskPrice.Sub(q.BidPrice).Div(two).Mul(decimal.Min(q.BidSize, q.AskSize))
	if captured.Sign() > 0 {
		s.pnl = s.pnl.Add(captured)
	}
}

// StopTracking closes the market's session and returns its record.
func (t *PerformanceTracker) StopTracking(market string) (PerformanceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[market]
	if !ok {
		return PerformanceRecord{}, false
	}
	delete(t.sessions, market)
	return PerformanceRecord{
		Market:     market,
		StartTime:  s.start,
		Duration:   time.Since(s.start),
		QuoteCount: s.quotes,
		PnL:        s.pnl,
	}, true
}

var two = decimal.NewFromInt(2)
