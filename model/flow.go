package model

import (
	"sync"

	"github.com/shopspring/decimal"

	"solana-market-maker/book"
)

// FlowAnalyzer classifies a book snapshot as exhibiting toxic flow.
// Analyze runs on every book update, so implementations must stay well
// under a millisecond and never block.
type FlowAnalyzer interface {
	Analyze(market string, ob *book.OrderBook) bool
}

// FlowModelConfig parameterizes the imbalance-window analyzer.
type FlowModelConfig struct {
	Levels     int             // book levels per imbalance sample
	WindowSize int             // samples retained per market
	Threshold  decimal.Decimal // |mean imbalance| above this is toxic
}

func DefaultFlowModelConfig() FlowModelConfig {
	return FlowModelConfig{
		Levels:     book.DefaultDepthLevels,
		WindowSize: 32,
		Threshold:  decimal.RequireFromString("0.6"),
	}
}

// ImbalanceFlowAnalyzer keeps a small rolling window of signed
// imbalance samples per market. Flow is flagged toxic when the book is
// crossed, or when the window is warm and its mean absolute imbalance
// stays persistently one-sided. One noisy update is not enough to trip
// it.
type ImbalanceFlowAnalyzer struct {
	cfg     FlowModelConfig
	mu      sync.Mutex
	windows map[string]*imbalanceWindow
}

type imbalanceWindow struct {
	samples []decimal.Decimal
	next    int
	filled  bool
}

func NewImbalanceFlowAnalyzer(cfg FlowModelConfig) *ImbalanceFlowAnalyzer {
	if cfg.Levels <= 0 {
		cfg.Levels = book.DefaultDepthLevels
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 32
	}
	return &ImbalanceFlowAnalyzer{
		cfg:     cfg,
		windows: make(map[string]*imbalanceWindow),
	}
}

func (a *ImbalanceFlowAnalyzer) Analyze(market string, ob *book.OrderBook) bool {
	if ob == nil {
		return false
	}

	// A crossed book is adverse by itself: someone is sweeping through
	// the quote faster than the feed can keep up.
	if spread, ok := ob.Spread(); ok && spread.Sign() < 0 {
		return true
	}

	sample := ob.Imbalance(a.cfg.Levels)

	a.mu.Lock()
	defer a.mu.Unlock()
	w, ok := a.windows[market]
	if !ok {
		w = &imbalanceWindow{samples: make([]decimal.Decimal, a.cfg.WindowSize)}
		a.windows[market] = w
	}
	w.samples[w.next] = sample
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.filled = true
	}

	// Warmup: at least half a window before classifying.
	count := w.next
	if w.filled {
		count = len(w.samples)
	}
	if count < len(w.samples)/2 {
		return false
	}

	sum := decimal.Decimal{}
	for i := 0; i < count; i++ {
		sum = sum.Add(w.samples[i])
	}
	mean := sum.Div(decimal.NewFromInt(int64(count)))
	return mean.Abs().GreaterThan(a.cfg.Threshold)
}

// Forget drops the rolling window for a market that stopped.
func (a *ImbalanceFlowAnalyzer) Forget(market string) {
	a.mu.Lock()
	delete(a.windows, market)
	a.mu.Unlock()
}
