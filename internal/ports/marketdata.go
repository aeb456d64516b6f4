package ports

import (
	"context"

	"tradeRoom/internal/domain"
)

// MarketDataFeed defines the interface for the external market-data source and
// funding-rate source. This abstraction decouples the core from any specific
// exchange implementation.
type MarketDataFeed interface {
	// StreamTicks starts a streaming price subscription for the given symbols.
	// Each normalized tick is delivered to handler; stream-level errors go to
	// errHandler. Returns channels to observe/stop the stream (doneCh, stopCh)
	// or an error if the initial connection fails. Implementations must never
	// deliver a tick with a non-positive price.
	StreamTicks(ctx context.Context, symbols []string, handler func(tick *domain.PriceTick), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)

	// GetTicker retrieves the 24-hour ticker snapshot for a symbol, used to
	// hydrate last-known prices before the stream's first tick.
	GetTicker(ctx context.Context, symbol string) (*domain.TickerSnapshot, error)

	// GetFundingRates retrieves current funding/mark/index prices for all
	// symbols in one bulk pull; the caller filters down to symbols of interest.
	GetFundingRates(ctx context.Context) ([]*domain.FundingRateSnapshot, error)
}
