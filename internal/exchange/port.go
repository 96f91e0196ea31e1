// Package exchange implements the exchange boundary: the Port interface the
// engine trades through, a REST client for live mode, token-bucket rate
// limiting, and a deterministic paper simulator.
//
// Adapters convert transport failures into the error kinds in pkg/types at
// this boundary; nothing HTTP-shaped leaks into the pipeline. Implementations
// guarantee at-most-once submission per logical attempt — the caller never
// retries SubmitOrder automatically.
package exchange

import (
	"context"

	"github.com/Snapwave333/klashibot-sub000/pkg/types"
)

// Port is the capability set the engine needs from an exchange.
type Port interface {
	// ListOpenMarkets returns up to limit open markets, ordered by volume
	// descending.
	ListOpenMarkets(ctx context.Context, limit int) ([]types.Market, error)

	// GetOrderBook returns the top-of-book snapshot for ticker, or nil if the
	// ticker is unknown or the market is closed.
	GetOrderBook(ctx context.Context, ticker string) (*types.OrderBook, error)

	// GetPortfolio returns the current account snapshot.
	GetPortfolio(ctx context.Context) (*types.PortfolioSnapshot, error)

	// SubmitOrder places one order. At-most-once per call.
	SubmitOrder(ctx context.Context, req types.OrderRequest) (*types.OrderResult, error)

	// CancelOrder cancels a resting order by ID.
	CancelOrder(ctx context.Context, orderID string) error
}
