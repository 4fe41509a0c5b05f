package performance

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// ==================== COUNTERS ====================

func TestLedgerCountersAndPnL(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
	l.RecordTradeClose("BTCUSDT", 50)
	l.RecordTradeOpen("BTCUSDT", "SELL", "MEDIUM")
	l.RecordTradeClose("BTCUSDT", -20)

	r := l.Snapshot("BTCUSDT")
	if r.TotalTrades != 2 {
		t.Errorf("total trades = %d, want 2", r.TotalTrades)
	}
	if r.WinningTrades != 1 || r.LosingTrades != 1 {
		t.Errorf("wins/losses = %d/%d, want 1/1", r.WinningTrades, r.LosingTrades)
	}
	if r.TotalPnL != 30 {
		t.Errorf("total PnL = %v, want 30", r.TotalPnL)
	}
	if got := r.WinRate(); got != 0.5 {
		t.Errorf("win rate = %v, want 0.5", got)
	}
}

// ==================== CONSECUTIVE LOSSES ====================

func TestConsecutiveLossesResetOnWin(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	for i := 0; i < 3; i++ {
		l.RecordTradeOpen("ETHUSDT", "BUY", "LOW")
		l.RecordTradeClose("ETHUSDT", -10)
	}
	r := l.Snapshot("ETHUSDT")
	if r.CurrentConsecutiveLosses != 3 {
		t.Fatalf("consecutive losses after 3 losses = %d, want 3", r.CurrentConsecutiveLosses)
	}
	if r.MaxConsecutiveLosses != 3 {
		t.Errorf("max consecutive losses = %d, want 3", r.MaxConsecutiveLosses)
	}

	l.RecordTradeOpen("ETHUSDT", "BUY", "LOW")
	l.RecordTradeClose("ETHUSDT", 25)

	r = l.Snapshot("ETHUSDT")
	if r.CurrentConsecutiveLosses != 0 {
		t.Errorf("consecutive losses after a win = %d, want 0", r.CurrentConsecutiveLosses)
	}
	if r.MaxConsecutiveLosses != 3 {
		t.Errorf("max consecutive losses after a win = %d, want 3 preserved", r.MaxConsecutiveLosses)
	}
}

func TestZeroPnLCountsAsLoss(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	l.RecordTradeOpen("SOLUSDT", "BUY", "HIGH")
	l.RecordTradeClose("SOLUSDT", 0)

	r := l.Snapshot("SOLUSDT")
	if r.LosingTrades != 1 || r.CurrentConsecutiveLosses != 1 {
		t.Errorf("zero PnL close: losses=%d streak=%d, want 1/1", r.LosingTrades, r.CurrentConsecutiveLosses)
	}
}

// ==================== DIRECTIONAL ACCURACY ====================

func TestAccuracyByDirection(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
	l.RecordTradeClose("BTCUSDT", 30)
	l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
	l.RecordTradeClose("BTCUSDT", -10)
	l.RecordTradeOpen("BTCUSDT", "SELL", "MEDIUM")
	l.RecordTradeClose("BTCUSDT", 15)

	r := l.Snapshot("BTCUSDT")
	buy := r.AccuracyByDirection["BUY"]
	if buy.Total != 2 || buy.Wins != 1 {
		t.Errorf("BUY stats = %d wins / %d total, want 1/2", buy.Wins, buy.Total)
	}
	sell := r.AccuracyByDirection["SELL"]
	if sell.Total != 1 || sell.Wins != 1 {
		t.Errorf("SELL stats = %d wins / %d total, want 1/1", sell.Wins, sell.Total)
	}
	if got := buy.WinRate(); got != 0.5 {
		t.Errorf("BUY win rate = %v, want 0.5", got)
	}
}

// ==================== RETURN SERIES ====================

func TestReturnSeries(t *testing.T) {
	l := NewLedger(200, zerolog.Nop())

	l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
	l.RecordTradeClose("BTCUSDT", 40) // 40/200 = 0.2
	l.RecordTradeOpen("BTCUSDT", "SELL", "LOW")
	l.RecordTradeClose("BTCUSDT", -10) // -0.05

	returns := l.Returns("BTCUSDT")
	if len(returns) != 2 {
		t.Fatalf("return series length = %d, want 2", len(returns))
	}
	if returns[0] != 0.2 || returns[1] != -0.05 {
		t.Errorf("return series = %v, want [0.2 -0.05]", returns)
	}

	// Mutating the copy must not touch ledger state
	returns[0] = 99
	if got := l.Returns("BTCUSDT"); got[0] != 0.2 {
		t.Errorf("ledger returns mutated through the copy: %v", got)
	}
}

func TestReturnSeriesCapped(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	for i := 0; i < maxReturnSeries+50; i++ {
		l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
		l.RecordTradeClose("BTCUSDT", float64(i))
	}

	returns := l.Returns("BTCUSDT")
	if len(returns) != maxReturnSeries {
		t.Fatalf("capped series length = %d, want %d", len(returns), maxReturnSeries)
	}
	// Oldest entries evicted, newest kept
	if returns[len(returns)-1] != float64(maxReturnSeries+49)/100 {
		t.Errorf("newest return = %v, want %v", returns[len(returns)-1], float64(maxReturnSeries+49)/100)
	}
}

// ==================== ISOLATION & CONCURRENCY ====================

func TestSymbolsAreIsolated(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())

	l.RecordTradeOpen("BTCUSDT", "BUY", "HIGH")
	l.RecordTradeClose("BTCUSDT", -10)

	r := l.Snapshot("ETHUSDT")
	if r.TotalTrades != 0 {
		t.Errorf("untouched symbol has %d trades, want 0", r.TotalTrades)
	}
}

func TestConcurrentRecording(t *testing.T) {
	l := NewLedger(100, zerolog.Nop())
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}

	var wg sync.WaitGroup
	for _, sym := range symbols {
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(sym string, i int) {
				defer wg.Done()
				l.RecordTradeOpen(sym, "BUY", "HIGH")
				l.RecordTradeClose(sym, float64(i%2*10-5))
			}(sym, i)
		}
	}
	wg.Wait()

	for _, sym := range symbols {
		r := l.Snapshot(sym)
		if r.TotalTrades != 50 {
			t.Errorf("%s total trades = %d, want 50", sym, r.TotalTrades)
		}
		if r.WinningTrades+r.LosingTrades != r.TotalTrades {
			t.Errorf("%s wins+losses %d != total %d", sym, r.WinningTrades+r.LosingTrades, r.TotalTrades)
		}
	}
}
