package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"solana-market-maker/book"
)

// BookSink receives full depth snapshots from a feed. The market
// making client satisfies it.
type BookSink interface {
	UpdateOrderBook(market string, bids, asks []book.PriceLevel)
}

// depthFrame is one full snapshot on the wire. Prices and sizes arrive
// as strings so no precision is lost in transit.
type depthFrame struct {
	Market string      `json:"market"`
	Bids   [][2]string `json:"bids"`
	Asks   [][2]string `json:"asks"`
}

// DepthFeed subscribes to full order book snapshots over WebSocket and
// pushes them into a BookSink. Run reads until the connection drops or
// the context is cancelled; reconnect policy belongs to the caller.
type DepthFeed struct {
	Endpoint    string
	Markets     []string
	Dialer      *websocket.Dialer
	ReadTimeout time.Duration
}

func NewDepthFeed(endpoint string, markets ...string) *DepthFeed {
	return &DepthFeed{
		Endpoint:    endpoint,
		Markets:     markets,
		Dialer:      websocket.DefaultDialer,
		ReadTimeout: 30 * time.Second,
	}
}

// Run dials the feed, subscribes, and forwards snapshots until error
// or cancellation.
func (f *DepthFeed) Run(ctx context.Context, sink BookSink) error {
	if f.Endpoint == "" {
		return fmt.Errorf("feed endpoint required")
	}
	if len(f.Markets) == 0 {
		return fmt.Errorf("no markets subscribed")
	}
	dialer := f.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, f.Endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial feed: %w", err)
	}
	defer conn.Close()

	sub := map[string]interface{}{"op": "subscribe", "channel": "depth", "markets": f.Markets}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	// Unblock ReadMessage when the context is cancelled. The done
	// channel releases the watchdog when Run returns on a read error
	// while the context is still live, as in a reconnect loop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		if f.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(f.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read feed: %w", err)
		}
		market, bids, asks, err := ParseDepthFrame(msg)
		if err != nil {
			// Skip malformed frames; the feed stays up.
			continue
		}
		sink.UpdateOrderBook(market, bids, asks)
	}
}

// ParseDepthFrame decodes one snapshot frame into price levels.
func ParseDepthFrame(msg []byte) (market string, bids, asks []book.PriceLevel, err error) {
	var frame depthFrame
	if err = json.Unmarshal(msg, &frame); err != nil {
		return "", nil, nil, fmt.Errorf("decode depth frame: %w", err)
	}
	if frame.Market == "" {
		return "", nil, nil, fmt.Errorf("depth frame missing market")
	}
	bids, err = parseLevels(frame.Bids)
	if err != nil {
		return "", nil, nil, fmt.Errorf("bids: %w", err)
	}
	asks, err = parseLevels(frame.Asks)
	if err != nil {
		return "", nil, nil, fmt.Errorf("asks: %w", err)
	}
	return frame.Market, bids, asks, nil
}

func parseLevels(raw [][2]string) ([]book.PriceLevel, error) {
	levels := make([]book.PriceLevel, 0, len(raw))
	for _, entry := range raw {
		price, err := decimal.NewFromString(entry[0])
		if err != nil {
			return nil, fmt.Errorf("price %q: %w", entry[0], err)
		}
		size, err := decimal.NewFromString(entry[1])
		if err != nil {
			return nil, fmt.Errorf("size %q: %w", entry[1], err)
		}
		levels = append(levels, book.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}
