// Package engine runs the evaluation loop: every cycle it refreshes market
// data per symbol, classifies trends on two timeframes, runs the exit
// cascade for open positions or sizes a new entry, and books realized
// results into the performance ledger.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"futures-decision-engine/internal/analysis"
	"futures-decision-engine/internal/circuit"
	"futures-decision-engine/internal/events"
	"futures-decision-engine/internal/exchange"
	"futures-decision-engine/internal/market"
	"futures-decision-engine/internal/performance"
	"futures-decision-engine/internal/risk"
	"futures-decision-engine/internal/signal"
	"futures-decision-engine/internal/storage"
)

// Config holds the engine's scheduling and market parameters.
type Config struct {
	Symbols       []string      `json:"symbols"`
	FastTimeframe string        `json:"fast_timeframe"`
	SlowTimeframe string        `json:"slow_timeframe"`
	CycleInterval time.Duration `json:"cycle_interval"`
	CandleLimit   int           `json:"candle_limit"`
	FetchTimeout  time.Duration `json:"fetch_timeout"`

	// DryRun computes decisions without placing orders.
	DryRun bool `json:"dry_run"`
}

// DefaultConfig returns the standard schedule: 15m fast bars evaluated
// every 3 minutes against a 4h slow trend.
func DefaultConfig() Config {
	return Config{
		FastTimeframe: "15m",
		SlowTimeframe: "4h",
		CycleInterval: 3 * time.Minute,
		CandleLimit:   30,
		FetchTimeout:  10 * time.Second,
	}
}

// PeriodsPerYear derives the analytics annualization factor from the
// evaluation cadence.
func (c Config) PeriodsPerYear() float64 {
	interval := c.CycleInterval
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	return (365 * 24 * time.Hour).Seconds() / interval.Seconds()
}

// Deps bundles the engine's collaborators. Repo and Cache may be nil.
type Deps struct {
	Client     exchange.Client
	Store      *market.Store
	Classifier *analysis.Classifier
	Monitor    *risk.Monitor
	Cascade    *risk.Cascade
	Sizer      *risk.Sizer
	Ledger     *performance.Ledger
	Signals    signal.Source
	Breaker    *circuit.Breaker
	Bus        *events.Bus
	Repo       *storage.Repository
	Cache      *storage.SnapshotCache
}

// symbolSlot serializes evaluations of one symbol across cycles. If the
// previous evaluation (including its ledger mutation) has not finished,
// the new cycle skips the symbol instead of overlapping it.
type symbolSlot struct {
	mu          sync.Mutex
	lastSignal  signal.Direction
	decision    risk.Decision
	hasDecision bool
}

// Engine evaluates all configured symbols on a fixed cadence.
type Engine struct {
	config Config
	deps   Deps
	logger zerolog.Logger

	slotMu sync.Mutex
	slots  map[string]*symbolSlot
}

// New creates an engine. Symbols are normalized once here; the rest of the
// pipeline only sees canonical identifiers.
func New(config Config, deps Deps, logger zerolog.Logger) *Engine {
	def := DefaultConfig()
	if config.FastTimeframe == "" {
		config.FastTimeframe = def.FastTimeframe
	}
	if config.SlowTimeframe == "" {
		config.SlowTimeframe = def.SlowTimeframe
	}
	if config.CycleInterval <= 0 {
		config.CycleInterval = def.CycleInterval
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = def.CandleLimit
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = def.FetchTimeout
	}
	for i, s := range config.Symbols {
		config.Symbols[i] = exchange.NormalizeSymbol(s)
	}

	return &Engine{
		config: config,
		deps:   deps,
		logger: logger.With().Str("component", "Engine").Logger(),
		slots:  make(map[string]*symbolSlot),
	}
}

// Run evaluates until the context is cancelled. The first cycle starts
// immediately.
func (e *Engine) Run(ctx context.Context) {
	e.logger.Info().
		Strs("symbols", e.config.Symbols).
		Str("fast_timeframe", e.config.FastTimeframe).
		Str("slow_timeframe", e.config.SlowTimeframe).
		Dur("cycle_interval", e.config.CycleInterval).
		Bool("dry_run", e.config.DryRun).
		Msg("Engine started")

	ticker := time.NewTicker(e.config.CycleInterval)
	defer ticker.Stop()

	e.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			e.logger.Info().Msg("Engine stopped")
			return
		case <-ticker.C:
			e.RunCycle(ctx)
		}
	}
}

// RunCycle evaluates every symbol once, concurrently. A symbol whose
// previous evaluation is still running is skipped this cycle so per-symbol
// ordering is never violated.
func (e *Engine) RunCycle(ctx context.Context) {
	started := time.Now()
	e.deps.Bus.Publish(events.Event{Type: events.EventCycleStarted})

	var wg sync.WaitGroup
	for _, symbol := range e.config.Symbols {
		slot := e.slot(symbol)
		if !slot.mu.TryLock() {
			e.logger.Warn().Str("symbol", symbol).Msg("Previous evaluation still running, skipping symbol")
			e.deps.Bus.Publish(events.Event{
				Type:   events.EventSymbolSkipped,
				Symbol: symbol,
				Data:   map[string]interface{}{"reason": "previous evaluation still running"},
			})
			continue
		}

		wg.Add(1)
		go func(symbol string, slot *symbolSlot) {
			defer wg.Done()
			defer slot.mu.Unlock()
			e.evaluateSymbol(ctx, symbol, slot)
		}(symbol, slot)
	}
	wg.Wait()

	e.deps.Bus.Publish(events.Event{
		Type: events.EventCycleCompleted,
		Data: map[string]interface{}{"duration_ms": time.Since(started).Milliseconds()},
	})
}

func (e *Engine) slot(symbol string) *symbolSlot {
	e.slotMu.Lock()
	defer e.slotMu.Unlock()
	s, ok := e.slots[symbol]
	if !ok {
		s = &symbolSlot{}
		e.slots[symbol] = s
	}
	return s
}

// evaluateSymbol runs the full pipeline for one symbol. Any transient
// fetch failure abandons the symbol for this cycle without touching the
// ledger.
func (e *Engine) evaluateSymbol(ctx context.Context, symbol string, slot *symbolSlot) {
	fast, slow, ok := e.refreshTrends(ctx, symbol)
	if !ok {
		return
	}
	assessment := analysis.Aggregate(fast, slow)

	fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	positions, err := e.deps.Client.GetPositions(fetchCtx, symbol)
	cancel()
	if err != nil {
		e.skip(symbol, "position fetch failed", err)
		return
	}

	if len(positions) > 0 {
		for _, pos := range positions {
			decision := e.evaluatePosition(ctx, pos, fast, slow, slot)
			e.emit(slot, decision)
		}
		return
	}

	decision := e.evaluateEntry(ctx, symbol, assessment, slot)
	e.emit(slot, decision)
}

// refreshTrends fetches both timeframes into the store and classifies
// them.
func (e *Engine) refreshTrends(ctx context.Context, symbol string) (fast, slow analysis.TrendVerdict, ok bool) {
	for _, tf := range []string{e.config.FastTimeframe, e.config.SlowTimeframe} {
		fetchCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
		candles, err := e.deps.Client.GetKlines(fetchCtx, symbol, tf, e.config.CandleLimit)
		cancel()
		if err != nil {
			e.skip(symbol, "candle fetch failed for "+tf, err)
			return fast, slow, false
		}
		e.deps.Store.Replace(symbol, tf, candles)
	}

	fast = e.deps.Classifier.Classify(e.config.FastTimeframe, e.deps.Store.Candles(symbol, e.config.FastTimeframe))
	slow = e.deps.Classifier.Classify(e.config.SlowTimeframe, e.deps.Store.Candles(symbol, e.config.SlowTimeframe))
	return fast, slow, true
}

// evaluatePosition runs the exit cascade for one open leg and executes a
// resulting close. Only a successful close mutates the ledger.
func (e *Engine) evaluatePosition(ctx context.Context, pos exchange.Position, fast, slow analysis.TrendVerdict, slot *symbolSlot) risk.Decision {
	invCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	inv := e.deps.Monitor.Check(invCtx, pos.Symbol)
	cancel()
	if inv.Triggered {
		e.deps.Bus.Publish(events.Event{
			Type:   events.EventInvalidation,
			Symbol: pos.Symbol,
			Data:   map[string]interface{}{"reason": inv.Reason},
		})
	}

	currentPrice := e.currentPrice(ctx, pos)
	decision := e.deps.Cascade.Evaluate(pos, currentPrice, inv, fast, slow)
	decision.ID = uuid.New().String()
	decision.Timestamp = time.Now()

	if !decision.IsActionable() || e.config.DryRun {
		return decision
	}

	closeCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	size := decision.Quantity // zero closes the whole leg
	if err := e.deps.Client.ClosePosition(closeCtx, pos.Symbol, pos.Side, size); err != nil {
		// A failed order is not a realized trade; the ledger stays
		// untouched and the cascade will fire again next cycle.
		e.logger.Error().Err(err).Str("symbol", pos.Symbol).Msg("Close order failed")
		e.deps.Bus.Publish(events.Event{
			Type:   events.EventOrderFailed,
			Symbol: pos.Symbol,
			Data:   map[string]interface{}{"action": string(decision.Action), "error": err.Error()},
		})
		return decision
	}

	// The position changed, so the unchanged-signal skip no longer applies;
	// the next cycle may re-enter in the same direction.
	slot.lastSignal = ""

	if decision.Action == risk.ActionClose {
		e.recordClose(ctx, pos)
	}
	return decision
}

// evaluateEntry asks the signal source for a direction and sizes it.
func (e *Engine) evaluateEntry(ctx context.Context, symbol string, assessment analysis.Assessment, slot *symbolSlot) risk.Decision {
	hold := func(reason string, confidence float64) risk.Decision {
		return risk.Decision{
			ID:         uuid.New().String(),
			Symbol:     symbol,
			Action:     risk.ActionHold,
			Confidence: confidence,
			Reason:     reason,
			Timestamp:  time.Now(),
		}
	}

	if e.deps.Signals == nil {
		e.logger.Debug().Str("symbol", symbol).Msg("No signal source configured, entries disabled")
		return hold("no signal source configured", 0)
	}

	if allowed, reason := e.deps.Breaker.AllowEntry(); !allowed {
		e.deps.Bus.Publish(events.Event{
			Type:   events.EventBreakerTripped,
			Symbol: symbol,
			Data:   map[string]interface{}{"reason": reason},
		})
		return hold(reason, 0)
	}

	mctx := signal.MarketContext{
		Symbol:        symbol,
		CurrentPrice:  assessment.Fast.Snapshot.LastClose,
		FastTrend:     string(assessment.Fast.Direction),
		SlowTrend:     string(assessment.Slow.Direction),
		OverallTrend:  string(assessment.Direction),
		RSI:           assessment.Fast.Snapshot.RSI,
		ChangePercent: assessment.Fast.Snapshot.ChangePercent,
	}

	sigCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	sig, err := e.deps.Signals.GetSignal(sigCtx, mctx)
	cancel()
	if err != nil {
		e.skip(symbol, "signal source unavailable", err)
		return hold("signal source unavailable, retrying next cycle", 0)
	}

	// An unchanged direction with no position change is noise; skip the
	// entry path until the signal moves.
	if sig.Direction != signal.DirectionHold && sig.Direction == slot.lastSignal {
		return hold("signal unchanged since last cycle", sig.Confidence.Score())
	}

	record := e.deps.Ledger.Snapshot(symbol)
	decision := e.deps.Sizer.Size(symbol, sig, record)
	decision.ID = uuid.New().String()
	decision.Timestamp = time.Now()

	if !decision.IsActionable() || e.config.DryRun {
		if e.config.DryRun && decision.IsActionable() {
			slot.lastSignal = sig.Direction
		}
		return decision
	}

	if e.openPosition(ctx, decision, mctx.CurrentPrice) {
		slot.lastSignal = sig.Direction
		e.deps.Ledger.RecordTradeOpen(symbol, string(decision.Action), string(sig.Confidence))
		e.deps.Bus.Publish(events.Event{
			Type:   events.EventTradeOpened,
			Symbol: symbol,
			Data: map[string]interface{}{
				"action":   string(decision.Action),
				"leverage": decision.Leverage,
				"margin":   decision.Margin,
			},
		})
	}
	return decision
}

// openPosition sets leverage and places the entry order. Quantity is the
// notional (margin x leverage) at the current price.
func (e *Engine) openPosition(ctx context.Context, d risk.Decision, price float64) bool {
	if price <= 0 {
		e.logger.Warn().Str("symbol", d.Symbol).Msg("No price available, entry abandoned")
		return false
	}

	orderCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	if err := e.deps.Client.SetLeverage(orderCtx, d.Symbol, d.Leverage); err != nil {
		e.logger.Error().Err(err).Str("symbol", d.Symbol).Msg("Failed to set leverage")
		return false
	}

	side := exchange.OrderSideBuy
	posSide := exchange.PositionSideLong
	if d.Action == risk.ActionSell {
		side = exchange.OrderSideSell
		posSide = exchange.PositionSideShort
	}
	quantity := d.Margin * float64(d.Leverage) / price

	_, err := e.deps.Client.PlaceOrder(orderCtx, exchange.OrderParams{
		Symbol:       d.Symbol,
		Side:         side,
		PositionSide: posSide,
		Quantity:     quantity,
	})
	if err != nil {
		e.logger.Error().Err(err).Str("symbol", d.Symbol).Msg("Entry order failed")
		e.deps.Bus.Publish(events.Event{
			Type:   events.EventOrderFailed,
			Symbol: d.Symbol,
			Data:   map[string]interface{}{"action": string(d.Action), "error": err.Error()},
		})
		return false
	}
	return true
}

// recordClose books the realized result of a fully closed leg.
func (e *Engine) recordClose(ctx context.Context, pos exchange.Position) {
	pnl := pos.UnrealizedPnL
	direction := "BUY"
	if pos.Side == exchange.PositionSideShort {
		direction = "SELL"
	}

	e.deps.Ledger.RecordTradeClose(pos.Symbol, pnl)
	e.deps.Breaker.RecordResult(pnl)

	margin := pos.Margin
	if margin <= 0 {
		margin = 1
	}
	e.deps.Repo.SaveClosedTrade(ctx, storage.ClosedTrade{
		ID:             uuid.New().String(),
		Symbol:         pos.Symbol,
		Direction:      direction,
		PnL:            pnl,
		ReturnFraction: pnl / margin,
		ClosedAt:       time.Now(),
	})
	e.deps.Bus.Publish(events.Event{
		Type:   events.EventTradeClosed,
		Symbol: pos.Symbol,
		Data:   map[string]interface{}{"pnl": pnl},
	})
}

// currentPrice resolves the price for the ratio stop: the live mark price
// when reachable, otherwise the freshest candle close.
func (e *Engine) currentPrice(ctx context.Context, pos exchange.Position) float64 {
	priceCtx, cancel := context.WithTimeout(ctx, e.config.FetchTimeout)
	defer cancel()

	price, err := e.deps.Client.GetCurrentPrice(priceCtx, pos.Symbol)
	if err == nil && price > 0 {
		return price
	}

	if latest, ok := e.deps.Store.Latest(pos.Symbol, e.config.FastTimeframe); ok {
		return latest.Close
	}
	if pos.MarkPrice > 0 {
		return pos.MarkPrice
	}
	return 0
}

// emit records the decision in the slot and fans it out to the bus, the
// repository and the snapshot cache.
func (e *Engine) emit(slot *symbolSlot, d risk.Decision) {
	slot.decision = d
	slot.hasDecision = true

	e.logger.Info().
		Str("symbol", d.Symbol).
		Str("action", string(d.Action)).
		Float64("confidence", d.Confidence).
		Str("reason", d.Reason).
		Msg("Decision")

	e.deps.Bus.Publish(events.Event{
		Type:   events.EventDecision,
		Symbol: d.Symbol,
		Data: map[string]interface{}{
			"action":     string(d.Action),
			"confidence": d.Confidence,
			"reason":     d.Reason,
			"leverage":   d.Leverage,
		},
	})

	persistCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	e.deps.Repo.SaveDecision(persistCtx, d)
	e.deps.Cache.SaveDecision(persistCtx, d)
}

func (e *Engine) skip(symbol, reason string, err error) {
	e.logger.Warn().Err(err).Str("symbol", symbol).Str("reason", reason).Msg("Symbol skipped this cycle")
	e.deps.Bus.Publish(events.Event{
		Type:   events.EventSymbolSkipped,
		Symbol: symbol,
		Data:   map[string]interface{}{"reason": reason, "error": err.Error()},
	})
}

// ==================== READ SURFACE ====================

// Symbols returns the configured symbol set.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.config.Symbols))
	copy(out, e.config.Symbols)
	return out
}

// LatestDecision returns the most recent decision for a symbol.
func (e *Engine) LatestDecision(symbol string) (risk.Decision, bool) {
	symbol = exchange.NormalizeSymbol(symbol)
	e.slotMu.Lock()
	slot, ok := e.slots[symbol]
	e.slotMu.Unlock()
	if !ok {
		return risk.Decision{}, false
	}
	// The slot lock also guards the decision fields.
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.decision, slot.hasDecision
}

// PerformanceRecord returns the ledger snapshot for a symbol.
func (e *Engine) PerformanceRecord(symbol string) performance.Record {
	return e.deps.Ledger.Snapshot(exchange.NormalizeSymbol(symbol))
}

// RiskMetrics computes the current risk metrics for a symbol.
func (e *Engine) RiskMetrics(symbol string) performance.RiskMetrics {
	returns := e.deps.Ledger.Returns(exchange.NormalizeSymbol(symbol))
	return performance.ComputeRiskMetrics(returns, e.config.PeriodsPerYear())
}

// BreakerStats exposes the circuit breaker state.
func (e *Engine) BreakerStats() map[string]interface{} {
	return e.deps.Breaker.Stats()
}
