package analysis

import (
	"math"
	"testing"

	"futures-decision-engine/internal/exchange"
)

// ==================== HELPER FUNCTIONS ====================

// candlesFromCloses builds candles with the given closes and constant volume
func candlesFromCloses(closes []float64) []exchange.Candle {
	candles := make([]exchange.Candle, len(closes))
	for i, c := range closes {
		candles[i] = exchange.Candle{
			OpenTime:  int64(i * 60000),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    1000,
			CloseTime: int64((i+1)*60000 - 1),
		}
	}
	return candles
}

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

// ==================== SMA ====================

func TestCalculateSMA(t *testing.T) {
	candles := candlesFromCloses([]float64{10, 20, 30, 40, 50})

	sma := CalculateSMA(candles, 3)
	if !almostEqual(sma, 40, 1e-9) {
		t.Errorf("SMA(3) of last three closes 30,40,50 = %v, want 40", sma)
	}

	if got := CalculateSMA(candles, 10); got != 0 {
		t.Errorf("SMA with period longer than history = %v, want 0", got)
	}
	if got := CalculateSMA(nil, 3); got != 0 {
		t.Errorf("SMA of empty history = %v, want 0", got)
	}
}

// ==================== EMA ====================

func TestCalculateEMA(t *testing.T) {
	// Constant series: EMA must equal the constant regardless of period
	candles := candlesFromCloses([]float64{100, 100, 100, 100, 100, 100})
	if got := CalculateEMA(candles, 3); !almostEqual(got, 100, 1e-9) {
		t.Errorf("EMA of constant series = %v, want 100", got)
	}

	// Rising series: EMA must sit between the seed SMA and the last close
	rising := candlesFromCloses([]float64{10, 11, 12, 13, 14, 15})
	ema := CalculateEMA(rising, 3)
	if ema <= 11 || ema >= 15 {
		t.Errorf("EMA of rising series = %v, want between seed 11 and last close 15", ema)
	}
}

// ==================== RSI ====================

func TestCalculateRSI(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		period int
		want   float64
	}{
		{
			name:   "insufficient history returns neutral 50",
			closes: []float64{100, 101},
			period: 14,
			want:   50,
		},
		{
			name:   "all gains returns 100",
			closes: []float64{100, 101, 102, 103, 104, 105},
			period: 5,
			want:   100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateRSI(candlesFromCloses(tt.closes), tt.period)
			if !almostEqual(got, tt.want, 1e-9) {
				t.Errorf("RSI = %v, want %v", got, tt.want)
			}
		})
	}

	// Balanced gains and losses land at 50
	balanced := candlesFromCloses([]float64{100, 102, 100, 102, 100, 102, 100})
	got := CalculateRSI(balanced, 6)
	if !almostEqual(got, 50, 1) {
		t.Errorf("RSI of balanced series = %v, want ~50", got)
	}
}

// ==================== MACD ====================

func TestCalculateMACD(t *testing.T) {
	// Uptrend: fast EMA above slow EMA, positive MACD and histogram
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	result := CalculateMACD(candlesFromCloses(closes), 12, 26, 9)
	if result.MACD <= 0 {
		t.Errorf("MACD in uptrend = %v, want positive", result.MACD)
	}
	if result.Histogram <= 0 {
		t.Errorf("histogram in uptrend = %v, want positive", result.Histogram)
	}

	// Too little history yields the zero result, not a panic
	short := CalculateMACD(candlesFromCloses([]float64{1, 2, 3}), 12, 26, 9)
	if short.MACD != 0 || short.Signal != 0 || short.Histogram != 0 {
		t.Errorf("MACD with insufficient history = %+v, want zeros", short)
	}
}

// ==================== BOLLINGER BANDS ====================

func TestCalculateBollingerBands(t *testing.T) {
	// Constant series collapses to the middle band
	constant := candlesFromCloses([]float64{50, 50, 50, 50, 50})
	upper, middle, lower := CalculateBollingerBands(constant, 5, 2.0)
	if upper != 50 || middle != 50 || lower != 50 {
		t.Errorf("bands on constant series = %v/%v/%v, want all 50", upper, middle, lower)
	}

	varied := candlesFromCloses([]float64{48, 52, 49, 51, 50})
	upper, middle, lower = CalculateBollingerBands(varied, 5, 2.0)
	if !(lower < middle && middle < upper) {
		t.Errorf("band ordering broken: lower=%v middle=%v upper=%v", lower, middle, upper)
	}
	if !almostEqual(middle, 50, 1e-9) {
		t.Errorf("middle band = %v, want 50", middle)
	}
}

// ==================== VOLUME ====================

func TestVolumeRatio(t *testing.T) {
	candles := candlesFromCloses([]float64{10, 10, 10, 10})
	for i := range candles {
		candles[i].Volume = 100
	}
	candles[len(candles)-1].Volume = 400

	ratio := VolumeRatio(candles, 4)
	// avg = (100+100+100+400)/4 = 175, ratio = 400/175
	if !almostEqual(ratio, 400.0/175.0, 1e-9) {
		t.Errorf("volume ratio = %v, want %v", ratio, 400.0/175.0)
	}

	if got := VolumeRatio(nil, 4); got != 1.0 {
		t.Errorf("volume ratio of empty history = %v, want 1.0", got)
	}
	if got := VolumeRatio(candles, 10); got != 1.0 {
		t.Errorf("volume ratio with short history = %v, want 1.0", got)
	}
}

// ==================== CHANGE PERCENT ====================

func TestLastChangePercent(t *testing.T) {
	candles := candlesFromCloses([]float64{100, 105})
	if got := LastChangePercent(candles); !almostEqual(got, 5, 1e-9) {
		t.Errorf("change percent = %v, want 5", got)
	}
	if got := LastChangePercent(candlesFromCloses([]float64{100})); got != 0 {
		t.Errorf("change percent with one bar = %v, want 0", got)
	}
}
