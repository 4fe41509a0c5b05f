package exchange

import (
	"context"
	"sync"
	"time"
)

// Binance futures enforces a per-minute request-weight budget. The limiter
// tracks consumed weight in the current minute window and makes callers wait
// when the budget would be exceeded, instead of letting the exchange ban the
// IP.
const (
	defaultMaxWeightPerMinute = 2400
	minInterCallDelay         = 50 * time.Millisecond
)

// Request weights per endpoint, from the Binance futures API docs.
var endpointWeights = map[string]int{
	"/fapi/v1/klines":       5,
	"/fapi/v2/positionRisk": 5,
	"/fapi/v1/premiumIndex": 1,
	"/fapi/v1/leverage":     1,
	"/fapi/v1/order":        1,
}

// RequestPriority orders requests when the budget runs low. Position-exit
// calls must go through even when analysis calls are being throttled.
type RequestPriority int

const (
	PriorityCritical RequestPriority = iota // order placement, position close
	PriorityHigh                            // position fetch
	PriorityNormal                          // candle fetch
)

// usableFraction returns how much of the weight budget a priority class may
// consume. Critical requests may use the full budget.
func (p RequestPriority) usableFraction() float64 {
	switch p {
	case PriorityCritical:
		return 1.0
	case PriorityHigh:
		return 0.85
	default:
		return 0.70
	}
}

// WeightLimiter is a minute-window request-weight budget with priority
// thresholds and a minimum inter-call delay.
type WeightLimiter struct {
	mu          sync.Mutex
	maxWeight   int
	usedWeight  int
	windowStart time.Time
	lastCall    time.Time
}

// NewWeightLimiter creates a limiter with the given per-minute budget.
// maxWeight <= 0 selects the Binance futures default.
func NewWeightLimiter(maxWeight int) *WeightLimiter {
	if maxWeight <= 0 {
		maxWeight = defaultMaxWeightPerMinute
	}
	return &WeightLimiter{
		maxWeight:   maxWeight,
		windowStart: time.Now(),
	}
}

// EndpointWeight returns the documented weight for an endpoint, defaulting
// to 1 for unknown paths.
func EndpointWeight(endpoint string) int {
	if w, ok := endpointWeights[endpoint]; ok {
		return w
	}
	return 1
}

// Wait blocks until the request may proceed or the context is done. It
// reserves the weight on success.
func (l *WeightLimiter) Wait(ctx context.Context, weight int, priority RequestPriority) error {
	for {
		wait, ok := l.tryAcquire(weight, priority)
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire reserves weight if the priority's share of the budget allows
// it, otherwise returns how long to wait before retrying.
func (l *WeightLimiter) tryAcquire(weight int, priority RequestPriority) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.windowStart) >= time.Minute {
		l.windowStart = now
		l.usedWeight = 0
	}

	if d := minInterCallDelay - now.Sub(l.lastCall); d > 0 {
		return d, false
	}

	budget := int(float64(l.maxWeight) * priority.usableFraction())
	if l.usedWeight+weight > budget {
		return time.Until(l.windowStart.Add(time.Minute)), false
	}

	l.usedWeight += weight
	l.lastCall = now
	return 0, true
}

// Used returns the weight consumed in the current window.
func (l *WeightLimiter) Used() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.windowStart) >= time.Minute {
		return 0
	}
	return l.usedWeight
}
