package risk

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"futures-decision-engine/internal/exchange"
)

// ==================== HELPER FUNCTIONS ====================

// seedBars seeds two candles: the closed bar with closedPrice and a still
// forming bar after it
func seedBars(m *exchange.MockClient, symbol, interval string, closedPrice, formingPrice float64) {
	m.SeedKlines(symbol, interval, []exchange.Candle{
		{OpenTime: 1000, Close: closedPrice, CloseTime: 1999},
		{OpenTime: 2000, Close: formingPrice, CloseTime: 2999},
	})
}

func newTestMonitor(levels map[string]float64, failClosed bool, client exchange.Client) *Monitor {
	return NewMonitor(MonitorConfig{
		Levels:        levels,
		FastTimeframe: "15m",
		FailClosed:    failClosed,
	}, client, zerolog.Nop())
}

// ==================== LEVEL CHECKS ====================

func TestInvalidationTriggersOnClosedBarBelowLevel(t *testing.T) {
	mock := exchange.NewMockClient()
	seedBars(mock, "BTCUSDT", "15m", 104000, 106000)

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)
	result := m.Check(context.Background(), "BTCUSDT")

	if !result.Triggered {
		t.Fatalf("not triggered with closed bar 104000 below level 105000: %q", result.Reason)
	}
	if !strings.Contains(result.Reason, "invalidation") {
		t.Errorf("reason %q does not mention invalidation", result.Reason)
	}
}

func TestInvalidationIgnoresFormingBar(t *testing.T) {
	// The forming bar dipped below the level but the closed bar holds above
	// it, so the thesis stands
	mock := exchange.NewMockClient()
	seedBars(mock, "BTCUSDT", "15m", 106000, 104000)

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)
	result := m.Check(context.Background(), "BTCUSDT")

	if result.Triggered {
		t.Errorf("triggered on forming bar: %q", result.Reason)
	}
}

func TestInvalidationHoldsAtExactLevel(t *testing.T) {
	mock := exchange.NewMockClient()
	seedBars(mock, "BTCUSDT", "15m", 105000, 105000)

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)
	if result := m.Check(context.Background(), "BTCUSDT"); result.Triggered {
		t.Errorf("triggered with close exactly at level: %q", result.Reason)
	}
}

func TestInvalidationNoLevelConfigured(t *testing.T) {
	mock := exchange.NewMockClient()
	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)

	result := m.Check(context.Background(), "LINKUSDT")
	if result.Triggered {
		t.Errorf("triggered for symbol without level: %q", result.Reason)
	}
	if mock.CallCount != 0 {
		t.Errorf("fetched klines for a symbol without a level (%d calls)", mock.CallCount)
	}
}

// ==================== SYMBOL NORMALIZATION ====================

func TestInvalidationNormalizesSymbols(t *testing.T) {
	mock := exchange.NewMockClient()
	seedBars(mock, "BTCUSDT", "15m", 104000, 104500)

	// Level configured with a non-canonical spelling; lookup with another
	m := newTestMonitor(map[string]float64{"BTC/USDT": 105000}, false, mock)
	result := m.Check(context.Background(), "btcusdt")
	if !result.Triggered {
		t.Errorf("normalized lookup failed: %q", result.Reason)
	}

	if level, ok := m.Level("BTC-USDT"); !ok || level != 105000 {
		t.Errorf("Level(BTC-USDT) = %v/%v, want 105000/true", level, ok)
	}
}

// ==================== FETCH FAILURES ====================

func TestInvalidationFailOpen(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.Err = errors.New("connection reset")

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)
	result := m.Check(context.Background(), "BTCUSDT")

	if result.Triggered {
		t.Errorf("fail-open monitor triggered on fetch failure: %q", result.Reason)
	}
	if !strings.Contains(result.Reason, "unavailable") {
		t.Errorf("reason %q does not flag the failed check", result.Reason)
	}
}

func TestInvalidationFailClosed(t *testing.T) {
	mock := exchange.NewMockClient()
	mock.Err = errors.New("connection reset")

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, true, mock)
	result := m.Check(context.Background(), "BTCUSDT")

	if !result.Triggered {
		t.Error("fail-closed monitor did not trigger on fetch failure")
	}
	if !strings.Contains(result.Reason, "failing closed") {
		t.Errorf("reason %q does not flag the fail-closed trigger", result.Reason)
	}
}

func TestInvalidationSingleBarTreatedAsFailure(t *testing.T) {
	// One candle means no closed bar to inspect
	mock := exchange.NewMockClient()
	mock.SeedKlines("BTCUSDT", "15m", []exchange.Candle{{OpenTime: 1000, Close: 90000}})

	m := newTestMonitor(map[string]float64{"BTCUSDT": 105000}, false, mock)
	if result := m.Check(context.Background(), "BTCUSDT"); result.Triggered {
		t.Errorf("triggered with only a forming bar available: %q", result.Reason)
	}
}
