package risk

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"futures-decision-engine/internal/exchange"
)

// InvalidationResult is the monitor's verdict for one evaluation.
type InvalidationResult struct {
	Triggered bool
	Reason    string
}

// MonitorConfig configures the invalidation monitor.
type MonitorConfig struct {
	// Levels maps canonical symbols to their hard price floors. A fast
	// timeframe close below the floor breaks the trade thesis.
	Levels map[string]float64

	// FastTimeframe is the interval whose closed bar is checked.
	FastTimeframe string

	// FailClosed forces a trigger when the closed bar cannot be fetched
	// while a position is open. The default (false) keeps the original
	// fail-open behavior: a fetch failure means "not triggered".
	FailClosed bool
}

// Monitor checks per-symbol price floors against the latest closed bar on
// the fast timeframe. It re-fetches that bar on every evaluation; the
// newest bar of a live fetch may still be forming and must never be used.
type Monitor struct {
	config MonitorConfig
	client exchange.Client
	logger zerolog.Logger
}

// NewMonitor creates an invalidation monitor.
func NewMonitor(config MonitorConfig, client exchange.Client, logger zerolog.Logger) *Monitor {
	if config.FastTimeframe == "" {
		config.FastTimeframe = "15m"
	}
	normalized := make(map[string]float64, len(config.Levels))
	for sym, level := range config.Levels {
		normalized[exchange.NormalizeSymbol(sym)] = level
	}
	config.Levels = normalized
	return &Monitor{
		config: config,
		client: client,
		logger: logger.With().Str("component", "InvalidationMonitor").Logger(),
	}
}

// Level returns the configured floor for a symbol.
func (m *Monitor) Level(symbol string) (float64, bool) {
	level, ok := m.config.Levels[exchange.NormalizeSymbol(symbol)]
	return level, ok
}

// Check evaluates the floor for one symbol. It never returns an error: a
// symbol without a configured level or a fetch failure resolves to "not
// triggered" with a diagnostic reason (or to a forced trigger when
// FailClosed is set).
func (m *Monitor) Check(ctx context.Context, symbol string) InvalidationResult {
	symbol = exchange.NormalizeSymbol(symbol)
	level, ok := m.config.Levels[symbol]
	if !ok {
		return InvalidationResult{Reason: "no invalidation level configured"}
	}

	candles, err := m.client.GetKlines(ctx, symbol, m.config.FastTimeframe, 2)
	if err != nil || len(candles) < 2 {
		if err == nil {
			err = fmt.Errorf("got %d candles, need 2", len(candles))
		}
		m.logger.Warn().
			Str("symbol", symbol).
			Err(err).
			Bool("fail_closed", m.config.FailClosed).
			Msg("Could not fetch closed candle for invalidation check")
		if m.config.FailClosed {
			return InvalidationResult{
				Triggered: true,
				Reason:    fmt.Sprintf("invalidation check unavailable (%v), failing closed", err),
			}
		}
		return InvalidationResult{Reason: fmt.Sprintf("invalidation check unavailable (%v)", err)}
	}

	// The newest entry may still be forming; the one before it is the
	// latest closed bar.
	closed := candles[len(candles)-2]
	if closed.Close < level {
		m.logger.Warn().
			Str("symbol", symbol).
			Float64("close", closed.Close).
			Float64("level", level).
			Msg("Invalidation level broken")
		return InvalidationResult{
			Triggered: true,
			Reason:    fmt.Sprintf("invalidation: %s closed at %.6g below level %.6g", symbol, closed.Close, level),
		}
	}

	return InvalidationResult{Reason: fmt.Sprintf("close %.6g holds above level %.6g", closed.Close, level)}
}
