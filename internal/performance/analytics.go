package performance

import "math"

// minMeaningfulSamples marks metrics computed from fewer points as
// low-sample for display; the values themselves are unchanged.
const minMeaningfulSamples = 10

// RiskMetrics are the risk-adjusted ratios derived from a return series.
// Recomputed on demand, never stored.
type RiskMetrics struct {
	Sharpe           float64 `json:"sharpe"`
	AnnualizedSharpe float64 `json:"annualized_sharpe"`
	Sortino          float64 `json:"sortino"`
	MaxDrawdown      float64 `json:"max_drawdown"`
	AnnualReturn     float64 `json:"annual_return"`
	Calmar           float64 `json:"calmar"`
	SampleSize       int     `json:"sample_size"`
	Insufficient     bool    `json:"insufficient"`
	LowSample        bool    `json:"low_sample"`
}

// ComputeRiskMetrics evaluates a return-series snapshot. With fewer than
// two points every ratio is zero and Insufficient is set; no division by
// zero can occur.
func ComputeRiskMetrics(returns []float64, periodsPerYear float64) RiskMetrics {
	m := RiskMetrics{SampleSize: len(returns)}
	if len(returns) < 2 {
		m.Insufficient = true
		return m
	}
	m.LowSample = len(returns) < minMeaningfulSamples
	if periodsPerYear <= 0 {
		periodsPerYear = 1
	}

	mean, vol := meanStd(returns)

	if vol > 0 {
		m.Sharpe = mean / vol
	}
	m.AnnualizedSharpe = m.Sharpe * math.Sqrt(periodsPerYear)

	downside := downsideDeviation(returns, vol)
	if downside > 0 {
		m.Sortino = mean / downside
	}

	m.MaxDrawdown = maxDrawdown(returns)

	m.AnnualReturn = math.Pow(1+mean, periodsPerYear) - 1
	if m.MaxDrawdown != 0 {
		m.Calmar = m.AnnualReturn / math.Abs(m.MaxDrawdown)
	}

	return m
}

// meanStd returns the mean and population standard deviation.
func meanStd(data []float64) (float64, float64) {
	sum := 0.0
	for _, v := range data {
		sum += v
	}
	mean := sum / float64(len(data))

	varianceSum := 0.0
	for _, v := range data {
		varianceSum += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(varianceSum / float64(len(data)))
}

// downsideDeviation is the standard deviation of the negative returns only.
// With no losing periods it falls back to the full volatility.
func downsideDeviation(returns []float64, fallback float64) float64 {
	var negatives []float64
	for _, r := range returns {
		if r < 0 {
			negatives = append(negatives, r)
		}
	}
	if len(negatives) == 0 {
		return fallback
	}
	_, std := meanStd(negatives)
	if std == 0 {
		return fallback
	}
	return std
}

// maxDrawdown walks the cumulative product of (1+r) against its running
// peak and returns the deepest relative drop (a non-positive number).
func maxDrawdown(returns []float64) float64 {
	cumulative := 1.0
	peak := 1.0
	worst := 0.0
	for _, r := range returns {
		cumulative *= 1 + r
		if cumulative > peak {
			peak = cumulative
		}
		drawdown := (cumulative - peak) / peak
		if drawdown < worst {
			worst = drawdown
		}
	}
	return worst
}
