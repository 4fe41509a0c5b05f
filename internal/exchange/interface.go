package exchange

import (
	"context"
	"errors"
)

// Package-level errors returned by Client implementations.
var (
	// ErrTransient marks a retryable I/O failure (timeouts, 5xx, rate
	// limiting). Callers skip the symbol for the cycle and retry next time.
	ErrTransient = errors.New("transient exchange error")

	// ErrSymbolUnknown is returned for symbols the exchange does not list.
	ErrSymbolUnknown = errors.New("unknown symbol")
)

// Client is the exchange contract the decision engine depends on. All
// methods take a context and respect its deadline; implementations must not
// block past cancellation.
type Client interface {
	// GetKlines returns up to limit candles for the symbol and interval,
	// ordered by open time ascending. The newest candle may still be
	// forming.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// GetPositions returns the open position legs for a symbol. Hedge-mode
	// accounts may return both a long and a short leg; an empty slice means
	// no open position.
	GetPositions(ctx context.Context, symbol string) ([]Position, error)

	// GetCurrentPrice returns the latest mark price for the symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)

	// SetLeverage sets the leverage used for subsequent orders on symbol.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// PlaceOrder submits a market order and returns the exchange ack.
	PlaceOrder(ctx context.Context, params OrderParams) (*OrderResponse, error)

	// ClosePosition reduces the given leg by size with a reduce-only market
	// order. size <= 0 closes the whole leg.
	ClosePosition(ctx context.Context, symbol string, side PositionSide, size float64) error
}
