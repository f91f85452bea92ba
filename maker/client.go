// Package maker hosts the market making client: the orchestrator that
// owns active markets, their order books and strategies, and the only
// component talking to external collaborators.
package maker

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-market-maker/book"
	"solana-market-maker/gateway"
	"solana-market-maker/infrastructure/logger"
	"solana-market-maker/metrics"
	"solana-market-maker/model"
	"solana-market-maker/strategy"
)

// Options are the engine knobs, typically sourced from config.
type Options struct {
	DefaultSpread     decimal.Decimal
	MaxInventoryRatio decimal.Decimal
	OrderRefresh      time.Duration
	MinOrderSize      decimal.Decimal
	ToxicCooloff      time.Duration
	SpreadModel       model.SpreadModelConfig
	FlowModel         model.FlowModelConfig
	VolWindowSize     int
}

// DefaultOptions returns the stock engine parameters.
func DefaultOptions() Options {
	return Options{
		DefaultSpread:     decimal.RequireFromString("0.002"),
		MaxInventoryRatio: decimal.RequireFromString("0.1"),
		OrderRefresh:      10 * time.Second,
		MinOrderSize:      decimal.RequireFromString("0.01"),
		ToxicCooloff:      time.Minute,
		SpreadModel:       model.DefaultSpreadModelConfig(),
		FlowModel:         model.DefaultFlowModelConfig(),
		VolWindowSize:     64,
	}
}

// Collaborators are the external dependencies, injected explicitly.
type Collaborators struct {
	Chain    gateway.ChainClient
	Data     gateway.MarketData
	Executor gateway.OrderExecutor
	Wallet   gateway.Wallet
	Venues   []gateway.VenueQuoter
}

// ActiveMarketState describes one market currently being made.
type ActiveMarketState struct {
	Market       string
	StrategyName string
	Params       strategy.Params
	StartTime    time.Time
}

type bookSnapshot struct {
	bids []book.PriceLevel
	asks []book.PriceLevel
}

// marketEntry bundles everything owned by one active market. The book
// is mutated only from the market's own loop goroutine; the client
// mutex guards only map membership and the stopping/failed flags.
type marketEntry struct {
	state    ActiveMarketState
	strat    strategy.Strategy
	book     *book.OrderBook
	vol      *book.VolatilityWindow
	updates  chan bookSnapshot
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
	// failed marks a reservation whose strategy Start never
	// succeeded; written before done is closed.
	failed bool

	quoteMu   sync.Mutex
	lastQuote *strategy.Quote
}

func (e *marketEntry) setQuote(q strategy.Quote) {
	e.quoteMu.Lock()
	e.lastQuote = &q
	e.quoteMu.Unlock()
}

func (e *marketEntry) clearQuote() {
	e.quoteMu.Lock()
	e.lastQuote = nil
	e.quoteMu.Unlock()
}

// Client is the market making orchestrator. It implements
// strategy.Trader and gateway.BookSink.
type Client struct {
	opts Options
	log  *logger.Logger

	chain    gateway.ChainClient
	data     gateway.MarketData
	executor gateway.OrderExecutor
	wallet   gateway.Wallet

	predictor model.SpreadPredictor
	optimizer model.InventoryOptimizer
	analyzer  model.FlowAnalyzer
	registry  *strategy.Registry
	perf      *PerformanceTracker

	mu        sync.Mutex
	connected bool
	markets   map[string]*marketEntry
}

// New wires the client, its decision models and the strategy registry.
// Strategies drive the client back through the Trader interface.
func New(opts Options, collab Collaborators, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	if opts.VolWindowSize <= 0 {
		opts.VolWindowSize = 64
	}
	c := &Client{
		opts:      opts,
		log:       log,
		chain:     collab.Chain,
		data:      collab.Data,
		executor:  collab.Executor,
		wallet:    collab.Wallet,
		predictor: model.NewHeuristicSpreadPredictor(opts.SpreadModel),
		optimizer: model.NewRangeInventoryOptimizer(opts.MaxInventoryRatio),
		analyzer:  model.NewImbalanceFlowAnalyzer(opts.FlowModel),
		perf:      NewPerformanceTracker(),
		markets:   make(map[string]*marketEntry),
	}
	c.registry = strategy.NewRegistry(
		strategy.NewBasic(c, log, opts.DefaultSpread, opts.MinOrderSize, opts.ToxicCooloff),
		strategy.NewAdaptive(c, log, opts.MinOrderSize, opts.ToxicCooloff),
		strategy.NewCrossVenue(c, log, collab.Venues, opts.MinOrderSize, opts.ToxicCooloff),
	)
	return c
}

// Connect establishes chain connectivity. Market making cannot start
// until it succeeds.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.chain.Connect(ctx); err != nil {
		return wrap(KindCollaboratorFailure, err, "connect chain client")
	}
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	c.log.LogMarketEvent("connected", "", nil)
	return nil
}

// Connected reports whether Connect has succeeded.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// StartMarketMaking activates a strategy on a market. baseAmount and
// quoteAmount override the matching keys in custom when non-zero. On
// any failure nothing is left behind for the market.
func (c *Client) StartMarketMaking(ctx context.Context, market, strategyName string, baseAmount, quoteAmount decimal.Decimal, custom strategy.Params) (*ActiveMarketState, error) {
	if err := validateMarket(market); err != nil {
		return nil, err
	}

	strat, ok := c.registry.Get(strategyName)
	if !ok {
		return nil, errf(KindUnknownStrategy, "Strategy %s not found. Available: %v", strategyName, c.registry.Names())
	}

	params := custom.Clone()
	if baseAmount.Sign() != 0 {
		params[strategy.ParamBaseAmount] = baseAmount
	}
	if quoteAmount.Sign() != 0 {
		params[strategy.ParamQuoteAmount] = quoteAmount
	}

	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, errf(KindCollaboratorFailure, "not connected; call Connect before starting %s", market)
	}
	if _, exists := c.markets[market]; exists {
		c.mu.Unlock()
		return nil, errf(KindMarketAlreadyActive, "market making already active for %s", market)
	}
	loopCtx, cancel := context.WithCancel(context.Background())
	entry := &marketEntry{
		state: ActiveMarketState{
			Market:       market,
			StrategyName: strategyName,
			Params:       params,
			StartTime:    time.Now(),
		},
		strat:   strat,
		book:    book.NewOrderBook(market),
		vol:     book.NewVolatilityWindow(c.opts.VolWindowSize),
		updates: make(chan bookSnapshot, updateQueueSize),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	c.markets[market] = entry
	c.mu.Unlock()

	if err := strat.Start(ctx, market, params); err != nil {
		cancel()
		c.mu.Lock()
		entry.failed = true
		delete(c.markets, market)
		c.mu.Unlock()
		// The loop never ran for this entry, so close done here: a
		// Stop that caught the reservation window is waiting on it.
		close(entry.done)
		return nil, mapStrategyErr(err, market)
	}

	c.perf.StartTracking(market)
	metrics.ActiveMarkets.Inc()
	go c.runMarket(loopCtx, entry)

	c.log.LogMarketEvent("start_market_making", market, map[string]interface{}{
		"strategy": strategyName,
	})
	state := entry.state
	return &state, nil
}

// StopMarketMaking deactivates a market: cancels its outstanding quote
// through the strategy, then tears down its book and state. The
// performance record is returned even when quote cancellation fails;
// the failure is surfaced alongside it.
func (c *Client) StopMarketMaking(ctx context.Context, market string) (PerformanceRecord, error) {
	c.mu.Lock()
	entry, ok := c.markets[market]
	if !ok || entry.stopping {
		c.mu.Unlock()
		return PerformanceRecord{}, errf(KindMarketNotActive, "no active market making for %s", market)
	}
	entry.stopping = true
	c.mu.Unlock()

	// Quiesce the loop first so no requote races the teardown.
	entry.cancel()
	<-entry.done

	// The entry may have been a reservation whose Start failed; it
	// already removed itself and there is nothing to tear down.
	if entry.failed {
		return PerformanceRecord{}, errf(KindMarketNotActive, "no active market making for %s", market)
	}

	stopErr := entry.strat.Stop(ctx, market)
	entry.clearQuote()

	rec, _ := c.perf.StopTracking(market)

	c.mu.Lock()
	delete(c.markets, market)
	c.mu.Unlock()
	metrics.ActiveMarkets.Dec()
	if f, ok := c.analyzer.(interface{ Forget(string) }); ok {
		f.Forget(market)
	}

	c.log.LogMarketEvent("stop_market_making", market, map[string]interface{}{
		"quotes":   rec.QuoteCount,
		"duration": rec.Duration.String(),
	})
	if stopErr != nil {
		return rec, wrap(KindCollaboratorFailure, stopErr, "stop strategy for %s", market)
	}
	return rec, nil
}

// UpdateOrderBook queues a full book snapshot for the market's loop.
// No-op when the market is not active; the snapshot is dropped (and
// counted) when the market's queue is full.
func (c *Client) UpdateOrderBook(market string, bids, asks []book.PriceLevel) {
	c.mu.Lock()
	entry, ok := c.markets[market]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case entry.updates <- bookSnapshot{bids: bids, asks: asks}:
	default:
		metrics.DroppedBookUpdates.WithLabelValues(market).Inc()
	}
}

// ActiveMarkets lists the markets currently being made, sorted by id.
func (c *Client) ActiveMarkets() []ActiveMarketState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActiveMarketState, 0, len(c.markets))
	for _, e := range c.markets {
		out = append(out, e.state)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out
}

// ActiveQuote returns the last quote sent for the market, if any.
func (c *Client) ActiveQuote(market string) (strategy.Quote, bool) {
	c.mu.Lock()
	entry, ok := c.markets[market]
	c.mu.Unlock()
	if !ok {
		return strategy.Quote{}, false
	}
	entry.quoteMu.Lock()
	defer entry.quoteMu.Unlock()
	if entry.lastQuote == nil {
		return strategy.Quote{}, false
	}
	return *entry.lastQuote, true
}

// Book returns the market's order book, or nil when inactive.
func (c *Client) Book(market string) *book.OrderBook {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.markets[market]; ok {
		return entry.book
	}
	return nil
}

// OptimalSpread returns the model's (bid, ask) spread pair for the
// market. Falls back to the configured default spread when no book
// exists yet.
func (c *Client) OptimalSpread(ctx context.Context, market string) (decimal.Decimal, decimal.Decimal) {
	entry := c.entry(market)
	if entry == nil {
		return c.opts.DefaultSpread, c.opts.DefaultSpread
	}
	if _, ok := entry.book.MidPrice(); !ok {
		return c.opts.DefaultSpread, c.opts.DefaultSpread
	}
	vol, volume := c.marketStats(ctx, market, entry)
	return c.predictor.Predict(market, entry.book, vol, volume)
}

// OptimalInventory returns the target (base, quote) allocation for the
// market's current conditions.
func (c *Client) OptimalInventory(ctx context.Context, market string) (model.Inventory, error) {
	current, err := c.CurrentInventory(ctx, market)
	if err != nil {
		return model.Inventory{}, err
	}
	cond := model.MarketConditions{}
	if entry := c.entry(market); entry != nil {
		if mid, ok := entry.book.MidPrice(); ok {
			cond.MidPrice = mid
		}
		cond.Imbalance = entry.book.Imbalance(book.DefaultDepthLevels)
		cond.Volatility, cond.Volume = c.marketStats(ctx, market, entry)
	}
	target, err := c.optimizer.Optimize(market, current, cond)
	if err != nil {
		return model.Inventory{}, wrap(KindInvalidInput, err, "optimize inventory for %s", market)
	}
	return target, nil
}

// CurrentInventory reads the market's holdings from the wallet
// collaborator.
func (c *Client) CurrentInventory(ctx context.Context, market string) (model.Inventory, error) {
	base, quote, err := c.wallet.Balances(ctx, market)
	if err != nil {
		metrics.RecordCollaboratorError(market, "wallet")
		return model.Inventory{}, wrap(KindCollaboratorFailure, err, "read balances for %s", market)
	}
	return model.Inventory{Base: base, Quote: quote}, nil
}

// PlaceOrders records the intended quote and forwards it to the order
// executor. The previous quote for the market is replaced, never
// accumulated.
func (c *Client) PlaceOrders(ctx context.Context, market string, bidPrice, bidSize, askPrice, askSize decimal.Decimal) (strategy.Quote, error) {
	for _, v := range []decimal.Decimal{bidPrice, bidSize, askPrice, askSize} {
		if v.Sign() < 0 {
			return strategy.Quote{}, errf(KindInvalidInput, "negative price or size for %s", market)
		}
	}
	entry := c.entry(market)
	if entry == nil {
		return strategy.Quote{}, errf(KindMarketNotActive, "no active market making for %s", market)
	}

	orderID, err := c.executor.Place(ctx, market, bidPrice, bidSize, askPrice, askSize)
	if err != nil {
		metrics.RecordCollaboratorError(market, "executor")
		return strategy.Quote{}, wrap(KindCollaboratorFailure, err, "place orders for %s", market)
	}

	q := strategy.Quote{
		BidPrice:  bidPrice,
		BidSize:   bidSize,
		AskPrice:  askPrice,
		AskSize:   askSize,
		Timestamp: time.Now(),
	}
	entry.setQuote(q)
	c.perf.RecordQuote(market, q)
	metrics.QuotesPlaced.WithLabelValues(market).Inc()
	c.log.LogQuote(market, map[string]interface{}{
		"order_id": orderID,
		"bid":      bidPrice.String(),
		"ask":      askPrice.String(),
	})
	return q, nil
}

// CancelOrders clears the market's recorded quote and forwards the
// cancellation to the executor.
func (c *Client) CancelOrders(ctx context.Context, market string) error {
	entry := c.entry(market)
	if entry == nil {
		return errf(KindMarketNotActive, "no active market making for %s", market)
	}
	entry.clearQuote()
	if err := c.executor.Cancel(ctx, market); err != nil {
		metrics.RecordCollaboratorError(market, "executor")
		return wrap(KindCollaboratorFailure, err, "cancel orders for %s", market)
	}
	return nil
}

// ExecutionPrice returns the VWAP achievable for size on the given
// book side of an active market.
func (c *Client) ExecutionPrice(market string, size decimal.Decimal, side book.Side) (decimal.Decimal, error) {
	entry := c.entry(market)
	if entry == nil {
		return decimal.Decimal{}, errf(KindMarketNotActive, "no active market making for %s", market)
	}
	price, err := entry.book.VWAP(size, side)
	switch {
	case err == nil:
		return price, nil
	case errors.Is(err, book.ErrInsufficientLiquidity):
		return decimal.Decimal{}, wrap(KindInsufficientLiquidity, err, "vwap %s %s on %s", size, side, market)
	default:
		return decimal.Decimal{}, wrap(KindInvalidInput, err, "vwap %s %s on %s", size, side, market)
	}
}

func (c *Client) entry(market string) *marketEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markets[market]
}

// marketStats reads volatility and volume from the data collaborator,
// falling back to the realized volatility window when it fails.
func (c *Client) marketStats(ctx context.Context, market string, entry *marketEntry) (decimal.Decimal, decimal.Decimal) {
	vol, err := c.data.MarketVolatility(ctx, market)
	if err != nil {
		metrics.RecordCollaboratorError(market, "data")
		if entry.vol.IsReady() {
			vol = entry.vol.RealizedVol()
		} else {
			vol = decimal.Decimal{}
		}
	}
	volume, err := c.data.MarketVolume(ctx, market)
	if err != nil {
		metrics.RecordCollaboratorError(market, "data")
		volume = decimal.Decimal{}
	}
	return vol, volume
}

// validateMarket enforces the BASE-QUOTE symbol format.
func validateMarket(market string) error {
	parts := strings.Split(market, "-")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return errf(KindInvalidInput, "market id %q must be BASE-QUOTE", market)
	}
	return nil
}

func mapStrategyErr(err error, market string) error {
	switch {
	case errors.Is(err, strategy.ErrInvalidParams):
		return wrap(KindInvalidInput, err, "start strategy for %s", market)
	case errors.Is(err, strategy.ErrAlreadyActive):
		return wrap(KindMarketAlreadyActive, err, "start strategy for %s", market)
	default:
		return wrap(KindCollaboratorFailure, err, "start strategy for %s", market)
	}
}
