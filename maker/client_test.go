package maker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"solana-market-maker/book"
	"solana-market-maker/gateway"
	"solana-market-maker/infrastructure/logger"
	"solana-market-maker/strategy"
)

type testRig struct {
	client   *Client
	chain    *gateway.SimChain
	data     *gateway.SimMarketData
	executor gateway.OrderExecutor
	sim      *gateway.SimExecutor
	wallet   *gateway.SimWallet
}

func newTestRig(t *testing.T, executor gateway.OrderExecutor) *testRig {
	t.Helper()
	rig := &testRig{
		chain:  &gateway.SimChain{},
		data:   gateway.NewSimMarketData(),
		sim:    gateway.NewSimExecutor(),
		wallet: gateway.NewSimWallet(),
	}
	if executor == nil {
		executor = rig.sim
	}
	rig.executor = executor

	opts := DefaultOptions()
	opts.OrderRefresh = 20 * time.Millisecond
	rig.client = New(opts, Collaborators{
		Chain:    rig.chain,
		Data:     rig.data,
		Executor: executor,
		Wallet:   rig.wallet,
	}, logger.NewNop())
	require.NoError(t, rig.client.Connect(context.Background()))
	return rig
}

func sampleBook() ([]book.PriceLevel, []book.PriceLevel) {
	bids := []book.PriceLevel{
		{Price: decimal.NewFromInt(100), Size: decimal.NewFromInt(5)},
		{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(3)},
	}
	asks := []book.PriceLevel{
		{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(4)},
		{Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(6)},
	}
	return bids, asks
}

func TestStartUnknownStrategy(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "nonexistent", decimal.Decimal{}, decimal.Decimal{}, nil)
	require.True(t, IsKind(err, KindUnknownStrategy), "got %v", err)
	require.Contains(t, err.Error(), "Strategy nonexistent not found. Available:")

	// No state may be left behind.
	require.Nil(t, rig.client.Book("SOL-USDC"))
	require.Empty(t, rig.client.ActiveMarkets())
}

func TestStartInvalidMarketFormat(t *testing.T) {
	rig := newTestRig(t, nil)
	for _, market := range []string{"SOLUSDC", "-USDC", "SOL-", "SOL-USDC-X", ""} {
		_, err := rig.client.StartMarketMaking(context.Background(), market, "basic", decimal.Decimal{}, decimal.Decimal{}, nil)
		require.True(t, IsKind(err, KindInvalidInput), "market %q: got %v", market, err)
	}
}

func TestStartRequiresConnect(t *testing.T) {
	opts := DefaultOptions()
	c := New(opts, Collaborators{
		Chain:    &gateway.SimChain{},
		Data:     gateway.NewSimMarketData(),
		Executor: gateway.NewSimExecutor(),
		Wallet:   gateway.NewSimWallet(),
	}, logger.NewNop())

	_, err := c.StartMarketMaking(context.Background(), "SOL-USDC", "basic", decimal.Decimal{}, decimal.Decimal{}, nil)
	require.True(t, IsKind(err, KindCollaboratorFailure), "got %v", err)
}

func TestStartStopLifecycle(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	state, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)
	require.Equal(t, "SOL-USDC", state.Market)
	require.Equal(t, "basic", state.StrategyName)
	require.NotNil(t, rig.client.Book("SOL-USDC"))

	_, err = rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.Decimal{}, decimal.Decimal{}, nil)
	require.True(t, IsKind(err, KindMarketAlreadyActive), "got %v", err)

	rec, err := rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)
	require.Equal(t, "SOL-USDC", rec.Market)
	require.Nil(t, rig.client.Book("SOL-USDC"))

	_, err = rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.True(t, IsKind(err, KindMarketNotActive), "got %v", err)
}

func TestStartNegativeAmountNoSideEffects(t *testing.T) {
	rig := newTestRig(t, nil)
	_, err := rig.client.StartMarketMaking(context.Background(), "SOL-USDC", "basic", decimal.NewFromInt(-1), decimal.Decimal{}, nil)
	require.True(t, IsKind(err, KindInvalidInput), "got %v", err)
	require.Nil(t, rig.client.Book("SOL-USDC"))
	require.Empty(t, rig.client.ActiveMarkets())
}

func TestFailedStartNeverWedgesConcurrentStop(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	// Hammer a failing start against a concurrent stop on the same
	// market; the stop must always come back, either with
	// MarketNotActive or after a clean teardown.
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for i := 0; i < 500; i++ {
			var wg sync.WaitGroup
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, _ = rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(-1), decimal.Decimal{}, nil)
			}()
			go func() {
				defer wg.Done()
				_, _ = rig.client.StopMarketMaking(ctx, "SOL-USDC")
			}()
			wg.Wait()
		}
	}()

	select {
	case <-finished:
	case <-time.After(30 * time.Second):
		t.Fatal("stop deadlocked against a failing start")
	}

	require.Empty(t, rig.client.ActiveMarkets())
	require.Nil(t, rig.client.Book("SOL-USDC"))
	_, err := rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.True(t, IsKind(err, KindMarketNotActive), "got %v", err)

	// The market is still startable after the churn.
	_, err = rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)
	_, err = rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)
}

func TestUpdateOrderBookDrivesQuotes(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)

	bids, asks := sampleBook()
	rig.client.UpdateOrderBook("SOL-USDC", bids, asks)

	require.Eventually(t, func() bool {
		return rig.sim.Placed() > 0
	}, 2*time.Second, 10*time.Millisecond, "no quote placed")

	q, ok := rig.client.ActiveQuote("SOL-USDC")
	require.True(t, ok)
	require.True(t, q.BidPrice.LessThan(q.AskPrice))

	rec, err := rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)
	require.Greater(t, rec.QuoteCount, 0)
	require.True(t, rec.PnL.Sign() > 0)
}

func TestStopCancelsOutstandingQuote(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)
	bids, asks := sampleBook()
	rig.client.UpdateOrderBook("SOL-USDC", bids, asks)
	require.Eventually(t, func() bool { return rig.sim.Placed() > 0 }, 2*time.Second, 10*time.Millisecond)

	_, err = rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)

	require.GreaterOrEqual(t, rig.sim.Cancelled(), 1)
	_, open := rig.sim.Open("SOL-USDC")
	require.False(t, open, "order left open after stop")
}

func TestUpdateOrderBookInactiveIsNoop(t *testing.T) {
	rig := newTestRig(t, nil)
	bids, asks := sampleBook()
	rig.client.UpdateOrderBook("SOL-USDC", bids, asks)
	require.Nil(t, rig.client.Book("SOL-USDC"))
}

func TestCrossedBookTriggersToxicWithdraw(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)

	// A crossed book (bid above ask) is classified toxic immediately;
	// the basic strategy responds by withdrawing its quote.
	crossedBids := []book.PriceLevel{{Price: decimal.NewFromInt(102), Size: decimal.NewFromInt(5)}}
	crossedAsks := []book.PriceLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(4)}}
	rig.client.UpdateOrderBook("SOL-USDC", crossedBids, crossedAsks)

	require.Eventually(t, func() bool {
		return rig.sim.Cancelled() >= 1
	}, 2*time.Second, 10*time.Millisecond, "toxic flow did not withdraw the quote")

	_, err = rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)
}

// marketFailExecutor fails placements for one market only.
type marketFailExecutor struct {
	*gateway.SimExecutor
	failMarket string
}

func (e *marketFailExecutor) Place(ctx context.Context, market string, bidPrice, bidSize, askPrice, askSize decimal.Decimal) (string, error) {
	if market == e.failMarket {
		return "", errors.New("venue rejected order")
	}
	return e.SimExecutor.Place(ctx, market, bidPrice, bidSize, askPrice, askSize)
}

func TestFailureInOneMarketDoesNotHaltOthers(t *testing.T) {
	sim := gateway.NewSimExecutor()
	rig := newTestRig(t, &marketFailExecutor{SimExecutor: sim, failMarket: "BONK-USDC"})
	rig.sim = sim
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "BONK-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)
	_, err = rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)

	bids, asks := sampleBook()
	rig.client.UpdateOrderBook("BONK-USDC", bids, asks)
	rig.client.UpdateOrderBook("SOL-USDC", bids, asks)

	// The healthy market keeps quoting while the broken one errors.
	require.Eventually(t, func() bool {
		_, ok := rig.sim.Open("SOL-USDC")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	_, err = rig.client.StopMarketMaking(ctx, "SOL-USDC")
	require.NoError(t, err)
	_, err = rig.client.StopMarketMaking(ctx, "BONK-USDC")
	require.NoError(t, err)
}

func TestPlaceOrdersValidation(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	one := decimal.NewFromInt(1)
	_, err := rig.client.PlaceOrders(ctx, "SOL-USDC", one, one, one, one)
	require.True(t, IsKind(err, KindMarketNotActive), "got %v", err)

	_, err = rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", one, decimal.Decimal{}, nil)
	require.NoError(t, err)

	_, err = rig.client.PlaceOrders(ctx, "SOL-USDC", decimal.NewFromInt(-1), one, one, one)
	require.True(t, IsKind(err, KindInvalidInput), "got %v", err)
}

func TestPlaceOrdersCollaboratorFailure(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", one, decimal.Decimal{}, nil)
	require.NoError(t, err)

	rig.sim.PlaceErr = errors.New("rpc timeout")
	_, err = rig.client.PlaceOrders(ctx, "SOL-USDC", one, one, decimal.NewFromInt(2), one)
	require.True(t, IsKind(err, KindCollaboratorFailure), "got %v", err)
	_, ok := rig.client.ActiveQuote("SOL-USDC")
	require.False(t, ok, "failed placement must not record a quote")
}

func TestCancelOrdersClearsQuote(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()
	one := decimal.NewFromInt(1)

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", one, decimal.Decimal{}, nil)
	require.NoError(t, err)

	_, err = rig.client.PlaceOrders(ctx, "SOL-USDC", one, one, decimal.NewFromInt(2), one)
	require.NoError(t, err)
	_, ok := rig.client.ActiveQuote("SOL-USDC")
	require.True(t, ok)

	require.NoError(t, rig.client.CancelOrders(ctx, "SOL-USDC"))
	_, ok = rig.client.ActiveQuote("SOL-USDC")
	require.False(t, ok)
}

func TestExecutionPriceInsufficientLiquidity(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()

	_, err := rig.client.StartMarketMaking(ctx, "SOL-USDC", "basic", decimal.NewFromInt(1), decimal.Decimal{}, nil)
	require.NoError(t, err)
	bids, asks := sampleBook()
	rig.client.UpdateOrderBook("SOL-USDC", bids, asks)
	require.Eventually(t, func() bool {
		_, ok := rig.client.Book("SOL-USDC").MidPrice()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	// Total ask depth is 10; asking for 20 cannot fill.
	_, err = rig.client.ExecutionPrice("SOL-USDC", decimal.NewFromInt(20), book.SideAsk)
	require.True(t, IsKind(err, KindInsufficientLiquidity), "got %v", err)

	price, err := rig.client.ExecutionPrice("SOL-USDC", decimal.NewFromInt(7), book.SideAsk)
	require.NoError(t, err)
	want := decimal.NewFromInt(710).Div(decimal.NewFromInt(7))
	require.True(t, price.Equal(want), "got %s want %s", price, want)
}

func TestOptimalSpreadFallsBackToDefault(t *testing.T) {
	rig := newTestRig(t, nil)
	bid, ask := rig.client.OptimalSpread(context.Background(), "SOL-USDC")
	require.True(t, bid.Equal(DefaultOptions().DefaultSpread))
	require.True(t, ask.Equal(DefaultOptions().DefaultSpread))
}

func TestOptimalInventoryUsesWallet(t *testing.T) {
	rig := newTestRig(t, nil)
	ctx := context.Background()
	rig.wallet.SetBalances("SOL-USDC", decimal.NewFromInt(2), decimal.NewFromInt(500))

	inv, err := rig.client.CurrentInventory(ctx, "SOL-USDC")
	require.NoError(t, err)
	require.True(t, inv.Base.Equal(decimal.NewFromInt(2)))
	require.True(t, inv.Quote.Equal(decimal.NewFromInt(500)))

	target, err := rig.client.OptimalInventory(ctx, "SOL-USDC")
	require.NoError(t, err)
	require.True(t, target.Base.Sign() >= 0)
	require.True(t, target.Quote.Sign() >= 0)
}

func TestOptimalInventoryWalletFailure(t *testing.T) {
	rig := newTestRig(t, nil)
	rig.wallet.Err = errors.New("rpc unavailable")
	_, err := rig.client.OptimalInventory(context.Background(), "SOL-USDC")
	require.True(t, IsKind(err, KindCollaboratorFailure), "got %v", err)
}

func TestPerformanceTracker(t *testing.T) {
	tr := NewPerformanceTracker()
	tr.StartTracking("SOL-USDC")

	q := strategy.Quote{
		BidPrice: decimal.NewFromInt(100),
		BidSize:  decimal.NewFromInt(2),
		AskPrice: decimal.NewFromInt(102),
		AskSize:  decimal.NewFromInt(1),
	}
	tr.RecordQuote("SOL-USDC", q)
	tr.RecordQuote("SOL-USDC", q)
	tr.RecordQuote("ETH-USDC", q) // untracked, ignored

	rec, ok := tr.StopTracking("SOL-USDC")
	require.True(t, ok)
	require.Equal(t, 2, rec.QuoteCount)
	// (102-100)/2 * min(2,1) = 1 per quote.
	require.True(t, rec.PnL.Equal(decimal.NewFromInt(2)), "pnl %s", rec.PnL)

	_, ok = tr.StopTracking("SOL-USDC")
	require.False(t, ok)
}

func TestErrorKinds(t *testing.T) {
	base := errors.New("boom")
	err := wrap(KindCollaboratorFailure, base, "place orders for %s", "SOL-USDC")
	require.True(t, IsKind(err, KindCollaboratorFailure))
	require.False(t, IsKind(err, KindMarketNotActive))
	require.ErrorIs(t, err, base)
	require.Contains(t, err.Error(), "collaborator_failure")
}
