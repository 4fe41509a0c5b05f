package analysis

import (
	"math"

	"futures-decision-engine/internal/exchange"
)

// Technical indicator calculations over candle slices. All functions return
// neutral values on insufficient data instead of failing.

// CalculateSMA calculates the Simple Moving Average of closes.
func CalculateSMA(candles []exchange.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Close
	}
	return sum / float64(period)
}

// CalculateEMA calculates the Exponential Moving Average, seeded with the
// SMA of the first period bars.
func CalculateEMA(candles []exchange.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += candles[i].Close
	}
	ema := sum / float64(period)

	multiplier := 2.0 / (float64(period) + 1.0)
	for i := period; i < len(candles); i++ {
		ema = (candles[i].Close-ema)*multiplier + ema
	}
	return ema
}

// CalculateRSI calculates the Relative Strength Index. Returns the neutral
// value 50 when there is not enough history.
func CalculateRSI(candles []exchange.Candle, period int) float64 {
	if len(candles) < period+1 {
		return 50.0
	}

	gains := 0.0
	losses := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		change := candles[i].Close - candles[i-1].Close
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}

	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	if avgLoss == 0 {
		return 100.0
	}

	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// MACDResult holds MACD calculation output.
type MACDResult struct {
	MACD      float64
	Signal    float64
	Histogram float64
}

// CalculateMACD calculates MACD(fast, slow, signal). The signal line is
// approximated from the MACD value; a full implementation would keep an EMA
// of the MACD series.
func CalculateMACD(candles []exchange.Candle, fastPeriod, slowPeriod, signalPeriod int) *MACDResult {
	if len(candles) < slowPeriod {
		return &MACDResult{}
	}

	fastEMA := CalculateEMA(candles, fastPeriod)
	slowEMA := CalculateEMA(candles, slowPeriod)
	macd := fastEMA - slowEMA

	signal := macd * 0.8
	return &MACDResult{
		MACD:      macd,
		Signal:    signal,
		Histogram: macd - signal,
	}
}

// CalculateBollingerBands returns the upper, middle and lower bands.
func CalculateBollingerBands(candles []exchange.Candle, period int, stdDevMult float64) (upper, middle, lower float64) {
	if len(candles) < period || period <= 0 {
		return 0, 0, 0
	}

	middle = CalculateSMA(candles, period)

	varianceSum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		diff := candles[i].Close - middle
		varianceSum += diff * diff
	}
	stdDev := math.Sqrt(varianceSum / float64(period))

	upper = middle + stdDevMult*stdDev
	lower = middle - stdDevMult*stdDev
	return upper, middle, lower
}

// CalculateAverageVolume returns the mean volume over the last period bars.
func CalculateAverageVolume(candles []exchange.Candle, period int) float64 {
	if len(candles) < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Volume
	}
	return sum / float64(period)
}

// VolumeRatio returns current volume over its rolling average, 1.0 when the
// average is unavailable.
func VolumeRatio(candles []exchange.Candle, period int) float64 {
	if len(candles) == 0 {
		return 1.0
	}
	avg := CalculateAverageVolume(candles, period)
	if avg <= 0 {
		return 1.0
	}
	return candles[len(candles)-1].Volume / avg
}

// LastChangePercent returns the percent change of the newest bar's close
// against the previous close.
func LastChangePercent(candles []exchange.Candle) float64 {
	if len(candles) < 2 {
		return 0
	}
	prev := candles[len(candles)-2].Close
	if prev == 0 {
		return 0
	}
	return (candles[len(candles)-1].Close - prev) / prev * 100.0
}
