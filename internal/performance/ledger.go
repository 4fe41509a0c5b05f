// Package performance tracks realized trade outcomes per symbol and derives
// risk-adjusted metrics from them. The ledger is the only mutable shared
// state in the engine; every mutation goes through RecordTradeOpen or
// RecordTradeClose under a per-symbol lock.
package performance

import (
	"sync"

	"github.com/rs/zerolog"
)

// maxReturnSeries caps the per-symbol return history; the oldest entry is
// evicted beyond this.
const maxReturnSeries = 1000

// DirectionStats tracks prediction accuracy for one signal direction.
type DirectionStats struct {
	Wins  int `json:"wins"`
	Total int `json:"total"`
}

// WinRate returns wins/total, 0 when empty.
func (d DirectionStats) WinRate() float64 {
	if d.Total == 0 {
		return 0
	}
	return float64(d.Wins) / float64(d.Total)
}

// Record is the realized-trade summary for one symbol. Counters only grow;
// CurrentConsecutiveLosses is the single exception, resetting to zero on
// any winning trade.
type Record struct {
	Symbol                   string                    `json:"symbol"`
	TotalTrades              int                       `json:"total_trades"`
	WinningTrades            int                       `json:"winning_trades"`
	LosingTrades             int                       `json:"losing_trades"`
	TotalPnL                 float64                   `json:"total_pnl"`
	CurrentConsecutiveLosses int                       `json:"current_consecutive_losses"`
	MaxConsecutiveLosses     int                       `json:"max_consecutive_losses"`
	AccuracyByDirection      map[string]DirectionStats `json:"accuracy_by_direction"`
}

// WinRate returns the overall win rate, 0 with no trades.
func (r Record) WinRate() float64 {
	if r.TotalTrades == 0 {
		return 0
	}
	return float64(r.WinningTrades) / float64(r.TotalTrades)
}

// symbolState is the per-symbol ledger cell. Its mutex also serializes the
// open/close pairing so a close always sees the direction of its open.
type symbolState struct {
	mu             sync.Mutex
	record         Record
	returns        []float64
	openDirection  string
	openConfidence string
}

// Ledger owns all per-symbol performance state.
type Ledger struct {
	mu          sync.RWMutex
	symbols     map[string]*symbolState
	tradeMargin float64
	logger      zerolog.Logger
}

// NewLedger creates a ledger. tradeMargin is the configured per-trade
// margin used to turn a PnL into a return fraction.
func NewLedger(tradeMargin float64, logger zerolog.Logger) *Ledger {
	if tradeMargin <= 0 {
		tradeMargin = 100
	}
	return &Ledger{
		symbols:     make(map[string]*symbolState),
		tradeMargin: tradeMargin,
		logger:      logger.With().Str("component", "PerformanceLedger").Logger(),
	}
}

func (l *Ledger) state(symbol string) *symbolState {
	l.mu.RLock()
	s, ok := l.symbols[symbol]
	l.mu.RUnlock()
	if ok {
		return s
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok = l.symbols[symbol]; ok {
		return s
	}
	s = &symbolState{
		record: Record{
			Symbol: symbol,
			AccuracyByDirection: map[string]DirectionStats{
				"BUY":  {},
				"SELL": {},
			},
		},
	}
	l.symbols[symbol] = s
	return s
}

// RecordTradeOpen notes a newly opened trade. Direction is BUY or SELL;
// confidence is the signal label that sized the entry.
func (l *Ledger) RecordTradeOpen(symbol, direction, confidence string) {
	s := l.state(symbol)
	s.mu.Lock()
	s.openDirection = direction
	s.openConfidence = confidence
	s.mu.Unlock()

	l.logger.Info().
		Str("symbol", symbol).
		Str("direction", direction).
		Str("confidence", confidence).
		Msg("Trade opened")
}

// RecordTradeClose books a realized PnL against the symbol. Counters,
// streaks and the return series update atomically; a concurrent evaluation
// of the same symbol sees either the full old or full new state.
func (l *Ledger) RecordTradeClose(symbol string, pnl float64) {
	s := l.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	r := &s.record
	r.TotalTrades++
	r.TotalPnL += pnl

	direction := s.openDirection
	stats, tracked := r.AccuracyByDirection[direction]
	if tracked {
		stats.Total++
	}

	if pnl > 0 {
		r.WinningTrades++
		r.CurrentConsecutiveLosses = 0
		if tracked {
			stats.Wins++
		}
	} else {
		r.LosingTrades++
		r.CurrentConsecutiveLosses++
		if r.CurrentConsecutiveLosses > r.MaxConsecutiveLosses {
			r.MaxConsecutiveLosses = r.CurrentConsecutiveLosses
		}
	}
	if tracked {
		r.AccuracyByDirection[direction] = stats
	}
	confidence := s.openConfidence
	s.openDirection = ""
	s.openConfidence = ""

	s.returns = append(s.returns, pnl/l.tradeMargin)
	if len(s.returns) > maxReturnSeries {
		s.returns = s.returns[len(s.returns)-maxReturnSeries:]
	}

	l.logger.Info().
		Str("symbol", symbol).
		Str("direction", direction).
		Str("confidence", confidence).
		Float64("pnl", pnl).
		Int("total_trades", r.TotalTrades).
		Int("consecutive_losses", r.CurrentConsecutiveLosses).
		Msg("Trade closed")
}

// Snapshot returns a copy of the symbol's record.
func (l *Ledger) Snapshot(symbol string) Record {
	s := l.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.record
	out.AccuracyByDirection = make(map[string]DirectionStats, len(s.record.AccuracyByDirection))
	for k, v := range s.record.AccuracyByDirection {
		out.AccuracyByDirection[k] = v
	}
	return out
}

// Returns returns a copy of the symbol's return series, oldest first.
func (l *Ledger) Returns(symbol string) []float64 {
	s := l.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]float64, len(s.returns))
	copy(out, s.returns)
	return out
}

// Symbols lists symbols with recorded state.
func (l *Ledger) Symbols() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.symbols))
	for sym := range l.symbols {
		out = append(out, sym)
	}
	return out
}
