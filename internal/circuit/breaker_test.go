package circuit

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBreaker(maxLosses int, maxDaily float64) *Breaker {
	return NewBreaker(BreakerConfig{
		Enabled:              true,
		MaxConsecutiveLosses: maxLosses,
		MaxDailyLoss:         maxDaily,
		CooldownMinutes:      60,
	}, zerolog.Nop())
}

// ==================== TRIP CONDITIONS ====================

func TestBreakerTripsOnLossStreak(t *testing.T) {
	b := newTestBreaker(3, 0)

	for i := 0; i < 2; i++ {
		b.RecordResult(-10)
	}
	if allowed, _ := b.AllowEntry(); !allowed {
		t.Fatal("breaker tripped before the streak limit")
	}

	b.RecordResult(-10)
	allowed, reason := b.AllowEntry()
	if allowed {
		t.Fatal("breaker did not trip at 3 consecutive losses")
	}
	if !strings.Contains(reason, "cooldown") {
		t.Errorf("reason = %q, want cooldown mention", reason)
	}
	if b.State() != StateOpen {
		t.Errorf("state = %v, want open", b.State())
	}
}

func TestBreakerTripsOnDailyLoss(t *testing.T) {
	b := newTestBreaker(100, 50)

	b.RecordResult(-30)
	if allowed, _ := b.AllowEntry(); !allowed {
		t.Fatal("tripped below the daily limit")
	}
	b.RecordResult(10) // win resets the streak, not the daily loss
	b.RecordResult(-25)

	if allowed, _ := b.AllowEntry(); allowed {
		t.Error("did not trip at 55 daily loss against a 50 limit")
	}
}

func TestWinResetsStreak(t *testing.T) {
	b := newTestBreaker(3, 0)

	b.RecordResult(-10)
	b.RecordResult(-10)
	b.RecordResult(20)
	b.RecordResult(-10)
	b.RecordResult(-10)

	if allowed, _ := b.AllowEntry(); !allowed {
		t.Error("tripped although a win broke the streak")
	}
}

// ==================== RECOVERY ====================

func TestBreakerHalfOpenAfterCooldown(t *testing.T) {
	b := newTestBreaker(1, 0)
	b.RecordResult(-10)

	if allowed, _ := b.AllowEntry(); allowed {
		t.Fatal("open breaker allowed an entry")
	}

	// Backdate the trip past the cooldown
	b.mu.Lock()
	b.lastTripTime = time.Now().Add(-2 * time.Hour)
	b.mu.Unlock()

	if allowed, _ := b.AllowEntry(); !allowed {
		t.Fatal("breaker did not move to half-open after the cooldown")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}

	// Winning trial closes the breaker
	b.RecordResult(15)
	if b.State() != StateClosed {
		t.Errorf("state after winning trial = %v, want closed", b.State())
	}
}

func TestLosingTrialReTrips(t *testing.T) {
	b := newTestBreaker(1, 0)
	b.RecordResult(-10)

	b.mu.Lock()
	b.lastTripTime = time.Now().Add(-2 * time.Hour)
	b.mu.Unlock()
	b.AllowEntry()

	b.RecordResult(-5)
	if b.State() != StateOpen {
		t.Errorf("state after losing trial = %v, want open", b.State())
	}
}

// ==================== DISABLED ====================

func TestDisabledBreakerAlwaysAllows(t *testing.T) {
	b := NewBreaker(BreakerConfig{Enabled: false}, zerolog.Nop())

	for i := 0; i < 20; i++ {
		b.RecordResult(-100)
	}
	if allowed, _ := b.AllowEntry(); !allowed {
		t.Error("disabled breaker blocked an entry")
	}
}

func TestBreakerStats(t *testing.T) {
	b := newTestBreaker(3, 0)
	b.RecordResult(-10)

	stats := b.Stats()
	if stats["consecutive_losses"] != 1 {
		t.Errorf("stats consecutive_losses = %v, want 1", stats["consecutive_losses"])
	}
	if stats["state"] != "closed" {
		t.Errorf("stats state = %v, want closed", stats["state"])
	}
}
