// Package circuit halts new entries when recent trading goes badly enough
// that continuing would compound the damage. Exits are never blocked.
package circuit

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// BreakerState represents the breaker state.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"    // Normal operation
	StateOpen     BreakerState = "open"      // Entries halted
	StateHalfOpen BreakerState = "half_open" // One trial entry allowed
)

// BreakerConfig holds the trip thresholds.
type BreakerConfig struct {
	Enabled              bool    `json:"enabled"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"`
	MaxDailyLoss         float64 `json:"max_daily_loss"` // quote currency
	CooldownMinutes      int     `json:"cooldown_minutes"`
}

// DefaultBreakerConfig returns safe defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Enabled:              true,
		MaxConsecutiveLosses: 5,
		MaxDailyLoss:         500,
		CooldownMinutes:      60,
	}
}

// Breaker gates entry decisions on recent realized results. After the
// cooldown it moves to half-open: one entry is allowed, and its outcome
// decides whether the breaker closes again or re-trips.
type Breaker struct {
	config            BreakerConfig
	state             BreakerState
	consecutiveLosses int
	dailyLoss         float64
	dailyResetTime    time.Time
	lastTripTime      time.Time
	tripReason        string
	mu                sync.Mutex
	logger            zerolog.Logger
}

// NewBreaker creates a breaker in the closed state.
func NewBreaker(config BreakerConfig, logger zerolog.Logger) *Breaker {
	def := DefaultBreakerConfig()
	if config.MaxConsecutiveLosses <= 0 {
		config.MaxConsecutiveLosses = def.MaxConsecutiveLosses
	}
	if config.CooldownMinutes <= 0 {
		config.CooldownMinutes = def.CooldownMinutes
	}
	now := time.Now()
	return &Breaker{
		config:         config,
		state:          StateClosed,
		dailyResetTime: now.Truncate(24 * time.Hour).Add(24 * time.Hour),
		logger:         logger.With().Str("component", "CircuitBreaker").Logger(),
	}
}

// AllowEntry reports whether a new position may be opened, with a reason
// when it may not.
func (b *Breaker) AllowEntry() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetDailyIfNeeded()

	if b.state == StateOpen {
		cooldown := time.Duration(b.config.CooldownMinutes) * time.Minute
		elapsed := time.Since(b.lastTripTime)
		if elapsed < cooldown {
			remaining := (cooldown - elapsed).Round(time.Second)
			return false, fmt.Sprintf("circuit breaker open (%s), cooldown remaining %v", b.tripReason, remaining)
		}
		b.state = StateHalfOpen
		b.logger.Info().Msg("Circuit breaker half-open, allowing trial entry")
	}
	return true, ""
}

// RecordResult feeds a realized trade outcome into the breaker.
func (b *Breaker) RecordResult(pnl float64) {
	if !b.config.Enabled {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.resetDailyIfNeeded()

	if pnl > 0 {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			b.state = StateClosed
			b.tripReason = ""
			b.logger.Info().Msg("Circuit breaker closed after winning trial trade")
		}
		return
	}

	b.consecutiveLosses++
	b.dailyLoss += -pnl

	switch {
	case b.state == StateHalfOpen:
		b.trip("trial trade lost")
	case b.consecutiveLosses >= b.config.MaxConsecutiveLosses:
		b.trip(fmt.Sprintf("%d consecutive losses", b.consecutiveLosses))
	case b.config.MaxDailyLoss > 0 && b.dailyLoss >= b.config.MaxDailyLoss:
		b.trip(fmt.Sprintf("daily loss %.2f reached limit %.2f", b.dailyLoss, b.config.MaxDailyLoss))
	}
}

func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.lastTripTime = time.Now()
	b.tripReason = reason
	b.logger.Warn().Str("reason", reason).Msg("Circuit breaker tripped, entries halted")
}

func (b *Breaker) resetDailyIfNeeded() {
	now := time.Now()
	if now.After(b.dailyResetTime) {
		b.dailyLoss = 0
		b.dailyResetTime = now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot for the API surface.
func (b *Breaker) Stats() map[string]interface{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	return map[string]interface{}{
		"state":              string(b.state),
		"consecutive_losses": b.consecutiveLosses,
		"daily_loss":         b.dailyLoss,
		"trip_reason":        b.tripReason,
		"enabled":            b.config.Enabled,
	}
}
