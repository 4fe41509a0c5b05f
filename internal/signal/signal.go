// Package signal defines the external directional-signal contract and the
// parsing that shields the engine from malformed model output.
package signal

import (
	"context"
	"encoding/json"
	"strings"
)

// Direction is the recommended action from the external signal source.
type Direction string

const (
	DirectionBuy  Direction = "BUY"
	DirectionSell Direction = "SELL"
	DirectionHold Direction = "HOLD"
)

// Confidence is the coarse label attached to a recommendation. It drives
// leverage sizing only, never trend classification.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Score maps the label to a numeric confidence used for gating.
func (c Confidence) Score() float64 {
	switch c {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.7
	case ConfidenceLow:
		return 0.5
	default:
		return 0
	}
}

// Signal is one directional recommendation.
type Signal struct {
	Direction  Direction  `json:"signal"`
	Confidence Confidence `json:"confidence"`
	Rationale  string     `json:"reason"`
	StopLoss   float64    `json:"stop_loss,omitempty"`
	TakeProfit float64    `json:"take_profit,omitempty"`

	// Malformed is set when the source's output could not be parsed; the
	// signal is then a HOLD with zero confidence, logged distinctly from a
	// genuine HOLD.
	Malformed bool `json:"-"`
}

// Hold returns a genuine hold signal.
func Hold(rationale string) Signal {
	return Signal{Direction: DirectionHold, Confidence: ConfidenceLow, Rationale: rationale}
}

// MarketContext is the engine-side state handed to the source when asking
// for a recommendation.
type MarketContext struct {
	Symbol        string  `json:"symbol"`
	CurrentPrice  float64 `json:"current_price"`
	FastTrend     string  `json:"fast_trend"`
	SlowTrend     string  `json:"slow_trend"`
	OverallTrend  string  `json:"overall_trend"`
	RSI           float64 `json:"rsi"`
	ChangePercent float64 `json:"change_percent"`
	HasPosition   bool    `json:"has_position"`
}

// Source produces directional signals. Implementations may be slow or
// flaky; callers bound them with the context deadline and treat errors as
// "no signal this cycle".
type Source interface {
	GetSignal(ctx context.Context, mctx MarketContext) (Signal, error)
}

// Parse interprets a raw source payload. Sources are expected to reply with
// a JSON object {"signal","confidence","reason",...}, possibly wrapped in
// markdown fences or prose. Unparsable payloads yield a malformed HOLD
// rather than an error.
func Parse(raw string) Signal {
	payload := extractJSON(raw)
	if payload == "" {
		return malformed("no JSON object in signal payload")
	}

	var parsed struct {
		Signal     string  `json:"signal"`
		Confidence string  `json:"confidence"`
		Reason     string  `json:"reason"`
		StopLoss   float64 `json:"stop_loss"`
		TakeProfit float64 `json:"take_profit"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return malformed("invalid JSON in signal payload")
	}

	direction, ok := parseDirection(parsed.Signal)
	if !ok {
		return malformed("unknown direction " + parsed.Signal)
	}
	confidence, ok := parseConfidence(parsed.Confidence)
	if !ok {
		return malformed("unknown confidence " + parsed.Confidence)
	}

	return Signal{
		Direction:  direction,
		Confidence: confidence,
		Rationale:  parsed.Reason,
		StopLoss:   parsed.StopLoss,
		TakeProfit: parsed.TakeProfit,
	}
}

func malformed(why string) Signal {
	return Signal{Direction: DirectionHold, Rationale: why, Malformed: true}
}

func parseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return DirectionBuy, true
	case "SELL", "SHORT":
		return DirectionSell, true
	case "HOLD", "WAIT", "NEUTRAL":
		return DirectionHold, true
	default:
		return "", false
	}
}

func parseConfidence(s string) (Confidence, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HIGH":
		return ConfidenceHigh, true
	case "MEDIUM", "MED":
		return ConfidenceMedium, true
	case "LOW", "":
		return ConfidenceLow, true
	default:
		return "", false
	}
}

// extractJSON pulls the first top-level {...} object out of a payload that
// may contain markdown fences or prose around it.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return ""
}
