package risk

import (
	"fmt"

	"github.com/rs/zerolog"

	"futures-decision-engine/internal/performance"
	"futures-decision-engine/internal/signal"
)

// SizerConfig holds the leverage policy for new entries.
type SizerConfig struct {
	// BaseLeverage maps the signal confidence label to a starting leverage.
	BaseLeverage map[signal.Confidence]int `json:"base_leverage"`

	MinLeverage int `json:"min_leverage"`
	MaxLeverage int `json:"max_leverage"`

	// TradeMargin is the fixed margin committed per trade, in quote
	// currency.
	TradeMargin float64 `json:"trade_margin"`

	// ConfidenceFloor gates entries: signals scoring below it become HOLD.
	ConfidenceFloor float64 `json:"confidence_floor"`

	// LossStreakTrigger is the consecutive-loss count that forces the
	// defensive leverage cut.
	LossStreakTrigger int `json:"loss_streak_trigger"`
}

// DefaultSizerConfig returns the standard sizing policy.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{
		BaseLeverage: map[signal.Confidence]int{
			signal.ConfidenceHigh:   10,
			signal.ConfidenceMedium: 5,
			signal.ConfidenceLow:    3,
		},
		MinLeverage:       1,
		MaxLeverage:       15,
		TradeMargin:       100,
		ConfidenceFloor:   0.6,
		LossStreakTrigger: 3,
	}
}

// Sizer converts an external signal plus the symbol's performance record
// into an entry decision with a concrete leverage.
type Sizer struct {
	config SizerConfig
	logger zerolog.Logger
}

// NewSizer creates the entry sizer.
func NewSizer(config SizerConfig, logger zerolog.Logger) *Sizer {
	def := DefaultSizerConfig()
	if len(config.BaseLeverage) == 0 {
		config.BaseLeverage = def.BaseLeverage
	}
	if config.MinLeverage <= 0 {
		config.MinLeverage = def.MinLeverage
	}
	if config.MaxLeverage < config.MinLeverage {
		config.MaxLeverage = def.MaxLeverage
	}
	if config.TradeMargin <= 0 {
		config.TradeMargin = def.TradeMargin
	}
	if config.ConfidenceFloor <= 0 {
		config.ConfidenceFloor = def.ConfidenceFloor
	}
	if config.LossStreakTrigger <= 0 {
		config.LossStreakTrigger = def.LossStreakTrigger
	}
	return &Sizer{
		config: config,
		logger: logger.With().Str("component", "EntrySizer").Logger(),
	}
}

// Size evaluates an entry. HOLD signals, malformed signals and signals
// below the confidence floor all produce a HOLD decision; everything else
// becomes a BUY or SELL with leverage adjusted by the symbol's track
// record and clamped to the configured band.
func (s *Sizer) Size(symbol string, sig signal.Signal, record performance.Record) Decision {
	d := Decision{Symbol: symbol, Action: ActionHold}

	if sig.Malformed {
		d.Reason = "malformed signal: " + sig.Rationale
		return d
	}
	if sig.Direction == signal.DirectionHold {
		d.Confidence = sig.Confidence.Score()
		d.Reason = "signal is HOLD"
		if sig.Rationale != "" {
			d.Reason = "signal is HOLD: " + sig.Rationale
		}
		return d
	}
	if score := sig.Confidence.Score(); score < s.config.ConfidenceFloor {
		d.Confidence = score
		d.Reason = fmt.Sprintf("confidence %.2f below floor %.2f", score, s.config.ConfidenceFloor)
		return d
	}

	leverage, note := s.adjustedLeverage(sig.Confidence, record)

	d.Action = ActionBuy
	if sig.Direction == signal.DirectionSell {
		d.Action = ActionSell
	}
	d.Confidence = sig.Confidence.Score()
	d.Leverage = leverage
	d.Margin = s.config.TradeMargin
	d.StopLoss = sig.StopLoss
	d.TakeProfit = sig.TakeProfit
	d.Reason = fmt.Sprintf("%s signal, %s confidence, leverage %dx%s", sig.Direction, sig.Confidence, leverage, note)

	s.logger.Info().
		Str("symbol", symbol).
		Str("action", string(d.Action)).
		Int("leverage", leverage).
		Float64("margin", d.Margin).
		Msg("Entry sized")
	return d
}

// adjustedLeverage applies the track-record rules: a loss streak cuts
// leverage; with enough history a strong win rate adds and a poor one
// subtracts. The result is always clamped to [MinLeverage, MaxLeverage].
func (s *Sizer) adjustedLeverage(confidence signal.Confidence, record performance.Record) (int, string) {
	leverage, ok := s.config.BaseLeverage[confidence]
	if !ok {
		leverage = s.config.MinLeverage
	}
	note := ""

	switch {
	case record.CurrentConsecutiveLosses >= s.config.LossStreakTrigger:
		leverage -= 2
		note = fmt.Sprintf(" (reduced after %d consecutive losses)", record.CurrentConsecutiveLosses)
	case record.TotalTrades > 5:
		winRate := record.WinRate()
		if winRate > 0.6 {
			leverage += 2
			note = fmt.Sprintf(" (raised on %.0f%% win rate)", winRate*100)
		} else if winRate < 0.4 {
			leverage -= 2
			note = fmt.Sprintf(" (reduced on %.0f%% win rate)", winRate*100)
		}
	}

	if leverage < s.config.MinLeverage {
		leverage = s.config.MinLeverage
	}
	if leverage > s.config.MaxLeverage {
		leverage = s.config.MaxLeverage
	}
	return leverage, note
}
