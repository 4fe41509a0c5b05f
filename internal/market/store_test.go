package market

import (
	"testing"

	"futures-decision-engine/internal/exchange"
)

// ==================== HELPER FUNCTIONS ====================

func bar(openTime int64, close float64) exchange.Candle {
	return exchange.Candle{
		OpenTime:  openTime,
		Close:     close,
		CloseTime: openTime + 59999,
	}
}

func bars(count int) []exchange.Candle {
	out := make([]exchange.Candle, count)
	for i := range out {
		out[i] = bar(int64(i*60000), float64(100+i))
	}
	return out
}

// ==================== APPEND & ORDERING ====================

func TestStoreAppendAndSnapshot(t *testing.T) {
	s := NewStore(10)

	for _, c := range bars(3) {
		s.Append("BTCUSDT", "15m", c)
	}

	candles := s.Candles("BTCUSDT", "15m")
	if len(candles) != 3 {
		t.Fatalf("stored %d candles, want 3", len(candles))
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime <= candles[i-1].OpenTime {
			t.Fatalf("candles out of order at %d: %d <= %d", i, candles[i].OpenTime, candles[i-1].OpenTime)
		}
	}
	if s.Size("BTCUSDT", "15m") != 3 {
		t.Errorf("Size = %d, want 3", s.Size("BTCUSDT", "15m"))
	}
}

func TestStoreEvictsOldestWhenFull(t *testing.T) {
	s := NewStore(5)

	for _, c := range bars(8) {
		s.Append("BTCUSDT", "15m", c)
	}

	candles := s.Candles("BTCUSDT", "15m")
	if len(candles) != 5 {
		t.Fatalf("stored %d candles, want capacity 5", len(candles))
	}
	if candles[0].OpenTime != 3*60000 {
		t.Errorf("oldest kept bar opens at %d, want %d", candles[0].OpenTime, 3*60000)
	}
	if candles[4].Close != 107 {
		t.Errorf("newest close = %v, want 107", candles[4].Close)
	}
}

func TestStoreReplacesFormingBar(t *testing.T) {
	s := NewStore(10)

	s.Append("BTCUSDT", "15m", bar(60000, 100))
	s.Append("BTCUSDT", "15m", bar(120000, 101))
	// Same open time: the forming bar was re-fetched with a newer close
	s.Append("BTCUSDT", "15m", bar(120000, 105))

	candles := s.Candles("BTCUSDT", "15m")
	if len(candles) != 2 {
		t.Fatalf("stored %d candles, want 2 after in-place update", len(candles))
	}
	if candles[1].Close != 105 {
		t.Errorf("updated close = %v, want 105", candles[1].Close)
	}
}

func TestStoreIgnoresStaleBars(t *testing.T) {
	s := NewStore(10)

	s.Append("BTCUSDT", "15m", bar(120000, 101))
	s.Append("BTCUSDT", "15m", bar(60000, 100)) // older than the newest entry

	if got := s.Size("BTCUSDT", "15m"); got != 1 {
		t.Errorf("size = %d, want 1 after dropping stale bar", got)
	}
}

// ==================== REPLACE ====================

func TestStoreReplace(t *testing.T) {
	s := NewStore(5)
	for _, c := range bars(3) {
		s.Append("BTCUSDT", "15m", c)
	}

	fresh := bars(8)
	s.Replace("BTCUSDT", "15m", fresh)

	candles := s.Candles("BTCUSDT", "15m")
	if len(candles) != 5 {
		t.Fatalf("after replace stored %d, want 5", len(candles))
	}
	if candles[len(candles)-1].Close != 107 {
		t.Errorf("newest close after replace = %v, want 107", candles[len(candles)-1].Close)
	}
}

// ==================== LATEST / LATEST CLOSED ====================

func TestStoreLatestAndLatestClosed(t *testing.T) {
	s := NewStore(10)

	if _, ok := s.Latest("BTCUSDT", "15m"); ok {
		t.Error("Latest on empty store reported ok")
	}

	s.Append("BTCUSDT", "15m", bar(60000, 100))
	if _, ok := s.LatestClosed("BTCUSDT", "15m"); ok {
		t.Error("LatestClosed with a single (forming) bar reported ok")
	}

	s.Append("BTCUSDT", "15m", bar(120000, 101))
	latest, ok := s.Latest("BTCUSDT", "15m")
	if !ok || latest.Close != 101 {
		t.Errorf("Latest = %v/%v, want close 101", latest.Close, ok)
	}
	closed, ok := s.LatestClosed("BTCUSDT", "15m")
	if !ok || closed.Close != 100 {
		t.Errorf("LatestClosed = %v/%v, want close 100", closed.Close, ok)
	}
}

// ==================== KEY NORMALIZATION & ISOLATION ====================

func TestStoreNormalizesSymbolKeys(t *testing.T) {
	s := NewStore(10)
	s.Append("btc/usdt", "15m", bar(60000, 100))

	if got := s.Size("BTCUSDT", "15m"); got != 1 {
		t.Errorf("normalized lookup size = %d, want 1", got)
	}
}

func TestStoreTimeframesAreIsolated(t *testing.T) {
	s := NewStore(10)
	s.Append("BTCUSDT", "15m", bar(60000, 100))
	s.Append("BTCUSDT", "4h", bar(60000, 200))

	if got := s.Candles("BTCUSDT", "15m"); len(got) != 1 || got[0].Close != 100 {
		t.Errorf("15m ring polluted: %+v", got)
	}
	if got := s.Candles("BTCUSDT", "4h"); len(got) != 1 || got[0].Close != 200 {
		t.Errorf("4h ring polluted: %+v", got)
	}
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	s := NewStore(10)
	s.Append("BTCUSDT", "15m", bar(60000, 100))

	candles := s.Candles("BTCUSDT", "15m")
	candles[0].Close = 999

	if got := s.Candles("BTCUSDT", "15m"); got[0].Close != 100 {
		t.Errorf("ring mutated through snapshot copy: %v", got[0].Close)
	}
}
