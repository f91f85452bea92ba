// Package gateway defines the narrow contracts the engine consumes
// from external collaborators (chain connectivity, market data, order
// execution, balances, other venues) plus adapters and in-memory
// implementations of them. The engine never looks past these
// interfaces.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// ChainClient is the blockchain connectivity collaborator.
type ChainClient interface {
	Connect(ctx context.Context) error
}

// MarketData supplies per-market statistics.
type MarketData interface {
	MarketVolatility(ctx context.Context, market string) (decimal.Decimal, error)
	MarketVolume(ctx context.Context, market string) (decimal.Decimal, error)
}

// OrderExecutor places and cancels the two-sided quote on a venue.
// The protocol behind it (Jupiter, Raydium, Drift, ...) is opaque to
// the engine; only success/failure and an optional order id surface.
type OrderExecutor interface {
	Place(ctx context.Context, market string, bidPrice, bidSize, askPrice, askSize decimal.Decimal) (orderID string, err error)
	Cancel(ctx context.Context, market string) error
}

// Wallet reports current holdings for a market's base/quote pair.
type Wallet interface {
	Balances(ctx context.Context, market string) (base, quote decimal.Decimal, err error)
}

// VenueQuoter exposes another venue's top of book for cross-venue
// comparison.
type VenueQuoter interface {
	Name() string
	BestQuote(ctx context.Context, market string) (bid, ask decimal.Decimal, err error)
}
