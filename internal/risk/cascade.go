package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"futures-decision-engine/internal/analysis"
	"futures-decision-engine/internal/exchange"
)

// CascadeConfig holds the exit-policy thresholds.
type CascadeConfig struct {
	// HoldThreshold is the base price-ratio stop. A long is closed when
	// current/entry drops below it, a short when entry/current does.
	HoldThreshold float64 `json:"hold_threshold"`

	// ProtectionMargin widens the stop when the slow timeframe confirms
	// the position, expressed in ratio points.
	ProtectionMargin float64 `json:"protection_margin"`

	// PartialTakeProfitPct triggers a half close once the price has moved
	// this far in the position's favor. Zero disables the layer.
	PartialTakeProfitPct float64 `json:"partial_take_profit_pct"`
}

// DefaultCascadeConfig returns the standard thresholds.
func DefaultCascadeConfig() CascadeConfig {
	return CascadeConfig{
		HoldThreshold:        0.95,
		ProtectionMargin:     0.02,
		PartialTakeProfitPct: 0.10,
	}
}

// Cascade evaluates an open position against the layered exit policy. The
// evaluation is pure CPU work; the invalidation check is performed by the
// caller and passed in, so no layer here can block.
type Cascade struct {
	config CascadeConfig
	logger zerolog.Logger
}

// NewCascade creates the exit-policy evaluator.
func NewCascade(config CascadeConfig, logger zerolog.Logger) *Cascade {
	if config.HoldThreshold <= 0 || config.HoldThreshold >= 1 {
		config.HoldThreshold = 0.95
	}
	if config.ProtectionMargin < 0 {
		config.ProtectionMargin = 0.02
	}
	return &Cascade{
		config: config,
		logger: logger.With().Str("component", "RiskCascade").Logger(),
	}
}

// favorable returns the trend direction that supports the position.
func favorable(side exchange.PositionSide) analysis.TrendDirection {
	if side == exchange.PositionSideLong {
		return analysis.TrendBullish
	}
	return analysis.TrendBearish
}

// adverse returns the trend direction that runs against the position.
func adverse(side exchange.PositionSide) analysis.TrendDirection {
	if side == exchange.PositionSideLong {
		return analysis.TrendBearish
	}
	return analysis.TrendBullish
}

// Evaluate runs the layers in strict order; the first one that fires wins.
// A layer that cannot compute (zero price, missing verdict) does not fire.
//
//  1. Hard invalidation.
//  2. Partial take-profit once the move exceeds the configured gain.
//  3. Fast-timeframe strong reversal, unless the slow timeframe confirms
//     the position.
//  4. Slow-timeframe confirmation widens the stop (protected position).
//  5. Price-ratio stop against the (possibly widened) threshold.
func (c *Cascade) Evaluate(pos exchange.Position, currentPrice float64, inv InvalidationResult, fast, slow analysis.TrendVerdict) Decision {
	d := Decision{Symbol: pos.Symbol, Action: ActionHold, Confidence: 0.5}

	if inv.Triggered {
		d.Action = ActionClose
		d.Confidence = 1.0
		d.Reason = inv.Reason
		c.logDecision(pos, d)
		return d
	}

	ratio := priceRatio(pos, currentPrice)

	if c.config.PartialTakeProfitPct > 0 && ratio > 0 && ratio-1 >= c.config.PartialTakeProfitPct {
		d.Action = ActionPartialClose
		d.Confidence = 0.6
		d.Quantity = pos.Size / 2
		d.Reason = fmt.Sprintf("take profit: price moved %.1f%% in favor, closing half", (ratio-1)*100)
		c.logDecision(pos, d)
		return d
	}

	slowConfirms := slow.Direction == favorable(pos.Side)
	if fast.IsStrong() && fast.Direction == adverse(pos.Side) && !slowConfirms {
		d.Action = ActionClose
		d.Confidence = 0.8
		d.Reason = fmt.Sprintf("fast-timeframe strong reversal: %s trend %s against %s position", fast.Timeframe, fast.Direction, pos.Side)
		c.logDecision(pos, d)
		return d
	}

	threshold := c.config.HoldThreshold
	protected := slowConfirms && slow.IsStrong()
	if protected {
		threshold -= c.config.ProtectionMargin
	}

	if ratio > 0 && ratio < threshold {
		d.Action = ActionClose
		d.Confidence = 0.9
		d.Reason = fmt.Sprintf("ratio stop: %.4f below threshold %.4f", ratio, threshold)
		c.logDecision(pos, d)
		return d
	}

	if protected {
		d.Reason = fmt.Sprintf("holding: ratio %.4f, stop widened to %.4f by %s confirmation", ratio, threshold, slow.Timeframe)
	} else if ratio > 0 {
		d.Reason = fmt.Sprintf("holding: ratio %.4f above threshold %.4f", ratio, threshold)
	} else {
		d.Reason = "holding: current price unavailable, ratio stop skipped"
	}
	return d
}

// priceRatio is current/entry for longs and entry/current for shorts, so a
// value below 1 always means the position is under water. Zero when it
// cannot be computed.
func priceRatio(pos exchange.Position, currentPrice float64) float64 {
	if currentPrice <= 0 || pos.EntryPrice <= 0 {
		return 0
	}
	if pos.Side == exchange.PositionSideLong {
		return currentPrice / pos.EntryPrice
	}
	return pos.EntryPrice / currentPrice
}

func (c *Cascade) logDecision(pos exchange.Position, d Decision) {
	c.logger.Info().
		Str("symbol", pos.Symbol).
		Str("side", string(pos.Side)).
		Str("action", string(d.Action)).
		Str("reason", d.Reason).
		Msg("Cascade decision")
}
