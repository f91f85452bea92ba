package maker

import (
	"context"
	"time"

	"solana-market-maker/metrics"
)

// updateQueueSize bounds the per-market snapshot queue. Snapshots are
// full replacements, so dropping under backpressure loses freshness,
// not correctness; the next snapshot supersedes the lost one.
const updateQueueSize = 64

// runMarket is the market's single goroutine: it owns all mutation of
// the market's order book and drives the periodic requote. Errors here
// never leave the loop; a failing collaborator degrades one market and
// leaves the rest running.
func (c *Client) runMarket(ctx context.Context, e *marketEntry) {
	defer close(e.done)
	ticker := time.NewTicker(c.opts.OrderRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-e.updates:
			c.applySnapshot(e, snap)
		case <-ticker.C:
			if err := e.strat.Requote(ctx, e.state.Market); err != nil {
				c.log.LogError(err, e.state.Market, map[string]interface{}{"op": "requote"})
			}
		}
	}
}

// applySnapshot replaces the book, feeds the realized-vol window and
// consults the flow analyzer. Runs only on the market's goroutine, so
// every analytics read elsewhere sees a complete snapshot.
func (c *Client) applySnapshot(e *marketEntry, snap bookSnapshot) {
	e.book.Update(snap.bids, snap.asks)

	mid, haveMid := e.book.MidPrice()
	spread, haveSpread := e.book.Spread()
	if haveMid {
		e.vol.AddPrice(mid)
	}
	midF, _ := mid.Float64()
	spreadF, _ := spread.Float64()
	metrics.RecordBookUpdate(e.state.Market, midF, spreadF, haveMid && haveSpread)

	if c.analyzer.Analyze(e.state.Market, e.book) {
		metrics.ToxicFlowEvents.WithLabelValues(e.state.Market).Inc()
		e.strat.HandleToxicFlow(e.state.Market)
	}
}
