package analysis

import (
	"github.com/rs/zerolog"

	"futures-decision-engine/internal/exchange"
)

// TrendDirection represents the direction of one timeframe's trend.
type TrendDirection string

const (
	TrendBullish TrendDirection = "bullish"
	TrendBearish TrendDirection = "bearish"
	TrendNeutral TrendDirection = "neutral"
)

// TrendStrength grades how decisive the signal vote was.
type TrendStrength string

const (
	StrengthWeak     TrendStrength = "weak"
	StrengthModerate TrendStrength = "moderate"
	StrengthStrong   TrendStrength = "strong"
)

// Signal names emitted by the classifier.
const (
	SignalBullishMA        = "bullish_ma"
	SignalBearishMA        = "bearish_ma"
	SignalMACDBullish      = "macd_bullish"
	SignalMACDBearish      = "macd_bearish"
	SignalOverbought       = "overbought"
	SignalOversold         = "oversold"
	SignalStrongMomentumUp = "strong_momentum_up"
	SignalStrongMomentumDn = "strong_momentum_down"
	SignalHighVolume       = "high_volume"
)

// TrendSnapshot carries the numeric values behind a verdict, for logging
// and the API surface.
type TrendSnapshot struct {
	RSI            float64 `json:"rsi"`
	ShortMA        float64 `json:"short_ma"`
	MediumMA       float64 `json:"medium_ma"`
	LongEMA        float64 `json:"long_ema"`
	MACD           float64 `json:"macd"`
	MACDSignal     float64 `json:"macd_signal"`
	BollingerUpper float64 `json:"bollinger_upper"`
	BollingerLower float64 `json:"bollinger_lower"`
	ChangePercent  float64 `json:"change_percent"`
	VolumeRatio    float64 `json:"volume_ratio"`
	LastClose      float64 `json:"last_close"`
}

// TrendVerdict is the classifier output for one (symbol, timeframe).
type TrendVerdict struct {
	Timeframe string         `json:"timeframe"`
	Direction TrendDirection `json:"direction"`
	Strength  TrendStrength  `json:"strength"`
	Signals   []string       `json:"signals"`
	Snapshot  TrendSnapshot  `json:"snapshot"`
	Reason    string         `json:"reason,omitempty"`
}

// IsStrong reports a strong non-neutral verdict.
func (v TrendVerdict) IsStrong() bool {
	return v.Direction != TrendNeutral && v.Strength == StrengthStrong
}

// ClassifierConfig holds the indicator periods and thresholds.
type ClassifierConfig struct {
	ShortMAPeriod    int     `json:"short_ma_period"`
	MediumMAPeriod   int     `json:"medium_ma_period"`
	LongEMAPeriod    int     `json:"long_ema_period"`
	RSIPeriod        int     `json:"rsi_period"`
	MACDFast         int     `json:"macd_fast"`
	MACDSlow         int     `json:"macd_slow"`
	MACDSignal       int     `json:"macd_signal"`
	VolumePeriod     int     `json:"volume_period"`
	VolumeSpikeRatio float64 `json:"volume_spike_ratio"`
	MomentumPercent  float64 `json:"momentum_percent"`
	MinBars          int     `json:"min_bars"`
}

// DefaultClassifierConfig returns the standard indicator setup.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{
		ShortMAPeriod:    5,
		MediumMAPeriod:   10,
		LongEMAPeriod:    20,
		RSIPeriod:        14,
		MACDFast:         12,
		MACDSlow:         26,
		MACDSignal:       9,
		VolumePeriod:     10,
		VolumeSpikeRatio: 1.5,
		MomentumPercent:  2.0,
		MinBars:          10,
	}
}

// Classifier turns one timeframe's candle history into a TrendVerdict.
// Classification is a pure function of its input: identical candles always
// produce an identical verdict.
type Classifier struct {
	config ClassifierConfig
	logger zerolog.Logger
}

// NewClassifier creates a classifier. Zero-valued config fields fall back
// to defaults.
func NewClassifier(config ClassifierConfig, logger zerolog.Logger) *Classifier {
	def := DefaultClassifierConfig()
	if config.ShortMAPeriod <= 0 {
		config.ShortMAPeriod = def.ShortMAPeriod
	}
	if config.MediumMAPeriod <= 0 {
		config.MediumMAPeriod = def.MediumMAPeriod
	}
	if config.LongEMAPeriod <= 0 {
		config.LongEMAPeriod = def.LongEMAPeriod
	}
	if config.RSIPeriod <= 0 {
		config.RSIPeriod = def.RSIPeriod
	}
	if config.MACDFast <= 0 {
		config.MACDFast = def.MACDFast
	}
	if config.MACDSlow <= 0 {
		config.MACDSlow = def.MACDSlow
	}
	if config.MACDSignal <= 0 {
		config.MACDSignal = def.MACDSignal
	}
	if config.VolumePeriod <= 0 {
		config.VolumePeriod = def.VolumePeriod
	}
	if config.VolumeSpikeRatio <= 0 {
		config.VolumeSpikeRatio = def.VolumeSpikeRatio
	}
	if config.MomentumPercent <= 0 {
		config.MomentumPercent = def.MomentumPercent
	}
	if config.MinBars <= 0 {
		config.MinBars = def.MinBars
	}
	return &Classifier{
		config: config,
		logger: logger.With().Str("component", "TrendClassifier").Logger(),
	}
}

// Classify evaluates the candle history of one timeframe. With fewer than
// MinBars candles it returns a neutral/weak verdict with an explanatory
// reason; it never errors.
func (c *Classifier) Classify(timeframe string, candles []exchange.Candle) TrendVerdict {
	if len(candles) < c.config.MinBars {
		return TrendVerdict{
			Timeframe: timeframe,
			Direction: TrendNeutral,
			Strength:  StrengthWeak,
			Reason:    "insufficient data",
		}
	}

	cfg := c.config
	macd := CalculateMACD(candles, cfg.MACDFast, cfg.MACDSlow, cfg.MACDSignal)
	upper, _, lower := CalculateBollingerBands(candles, cfg.MediumMAPeriod, 2.0)

	snapshot := TrendSnapshot{
		RSI:            CalculateRSI(candles, cfg.RSIPeriod),
		ShortMA:        CalculateSMA(candles, cfg.ShortMAPeriod),
		MediumMA:       CalculateSMA(candles, cfg.MediumMAPeriod),
		LongEMA:        CalculateEMA(candles, cfg.LongEMAPeriod),
		MACD:           macd.MACD,
		MACDSignal:     macd.Signal,
		BollingerUpper: upper,
		BollingerLower: lower,
		ChangePercent:  LastChangePercent(candles),
		VolumeRatio:    VolumeRatio(candles, cfg.VolumePeriod),
		LastClose:      candles[len(candles)-1].Close,
	}

	var signals []string
	bullish := 0
	bearish := 0

	switch {
	case snapshot.ShortMA > snapshot.MediumMA && snapshot.MediumMA > snapshot.LongEMA:
		signals = append(signals, SignalBullishMA)
		bullish++
	case snapshot.ShortMA < snapshot.MediumMA && snapshot.MediumMA < snapshot.LongEMA:
		signals = append(signals, SignalBearishMA)
		bearish++
	}

	if macd.Histogram > 0 {
		signals = append(signals, SignalMACDBullish)
		bullish++
	} else if macd.Histogram < 0 {
		signals = append(signals, SignalMACDBearish)
		bearish++
	}

	switch {
	case snapshot.RSI > 70:
		signals = append(signals, SignalOverbought)
		bearish++
	case snapshot.RSI < 30:
		signals = append(signals, SignalOversold)
		bullish++
	}

	switch {
	case snapshot.ChangePercent > cfg.MomentumPercent:
		signals = append(signals, SignalStrongMomentumUp)
		bullish++
	case snapshot.ChangePercent < -cfg.MomentumPercent:
		signals = append(signals, SignalStrongMomentumDn)
		bearish++
	}

	// Volume confirms but carries no direction of its own.
	if snapshot.VolumeRatio > cfg.VolumeSpikeRatio {
		signals = append(signals, SignalHighVolume)
	}

	direction := TrendNeutral
	strength := StrengthWeak
	count := 0
	switch {
	case bullish >= 2 && bullish > bearish:
		direction = TrendBullish
		count = bullish
	case bearish >= 2 && bearish > bullish:
		direction = TrendBearish
		count = bearish
	}
	if direction != TrendNeutral {
		if count >= 3 {
			strength = StrengthStrong
		} else {
			strength = StrengthModerate
		}
	}

	verdict := TrendVerdict{
		Timeframe: timeframe,
		Direction: direction,
		Strength:  strength,
		Signals:   signals,
		Snapshot:  snapshot,
	}

	c.logger.Debug().
		Str("timeframe", timeframe).
		Str("direction", string(direction)).
		Str("strength", string(strength)).
		Strs("signals", signals).
		Float64("rsi", snapshot.RSI).
		Msg("Trend classified")

	return verdict
}
