package exchange

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is an in-memory Client for tests and paper trading. Klines and
// positions are seeded by the caller; orders mutate the seeded positions.
type MockClient struct {
	mu sync.Mutex

	Klines    map[string][]Candle // key: symbol:interval
	Positions map[string][]Position
	Prices    map[string]float64

	// Err, when set, is returned by every call. Used to exercise
	// transient-failure paths.
	Err error

	// OrderErr, when set, fails only the order-placing calls (SetLeverage,
	// PlaceOrder, ClosePosition) while data fetches keep working.
	OrderErr error

	Orders    []OrderParams
	CallCount int
}

// NewMockClient creates an empty mock.
func NewMockClient() *MockClient {
	return &MockClient{
		Klines:    make(map[string][]Candle),
		Positions: make(map[string][]Position),
		Prices:    make(map[string]float64),
	}
}

// SeedKlines registers candles for a symbol/interval pair.
func (m *MockClient) SeedKlines(symbol, interval string, candles []Candle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Klines[NormalizeSymbol(symbol)+":"+interval] = candles
}

// SeedPosition registers an open position leg.
func (m *MockClient) SeedPosition(p Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.Symbol = NormalizeSymbol(p.Symbol)
	m.Positions[p.Symbol] = append(m.Positions[p.Symbol], p)
}

func (m *MockClient) GetKlines(_ context.Context, symbol, interval string, limit int) ([]Candle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	candles := m.Klines[NormalizeSymbol(symbol)+":"+interval]
	if limit > 0 && len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	return out, nil
}

func (m *MockClient) GetPositions(_ context.Context, symbol string) ([]Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	positions := m.Positions[NormalizeSymbol(symbol)]
	out := make([]Position, len(positions))
	copy(out, positions)
	return out, nil
}

func (m *MockClient) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return 0, m.Err
	}
	price, ok := m.Prices[NormalizeSymbol(symbol)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSymbolUnknown, symbol)
	}
	return price, nil
}

func (m *MockClient) SetLeverage(_ context.Context, symbol string, leverage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return m.Err
	}
	return m.OrderErr
}

func (m *MockClient) PlaceOrder(_ context.Context, params OrderParams) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if m.OrderErr != nil {
		return nil, m.OrderErr
	}
	m.Orders = append(m.Orders, params)
	return &OrderResponse{
		OrderID: int64(len(m.Orders)),
		Symbol:  NormalizeSymbol(params.Symbol),
		Status:  "FILLED",
	}, nil
}

func (m *MockClient) ClosePosition(_ context.Context, symbol string, side PositionSide, size float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return m.Err
	}
	if m.OrderErr != nil {
		return m.OrderErr
	}
	symbol = NormalizeSymbol(symbol)
	remaining := make([]Position, 0, len(m.Positions[symbol]))
	for _, p := range m.Positions[symbol] {
		if p.Side != side {
			remaining = append(remaining, p)
			continue
		}
		if size > 0 && size < p.Size {
			p.Size -= size
			remaining = append(remaining, p)
		}
	}
	m.Positions[symbol] = remaining
	return nil
}
