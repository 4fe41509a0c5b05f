// Package market holds the in-memory candle history the analysis layer
// reads from. Each (symbol, timeframe) pair owns one fixed-capacity ring;
// appending never allocates and the oldest bar is evicted when full.
package market

import (
	"sync"

	"futures-decision-engine/internal/exchange"
)

// DefaultCapacity is the per-ring bar count when none is configured.
const DefaultCapacity = 30

// ring is a fixed-size circular buffer of candles, ordered by open time.
type ring struct {
	data     []exchange.Candle
	capacity int
	index    int // next write position
	size     int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ring{
		data:     make([]exchange.Candle, capacity),
		capacity: capacity,
	}
}

// append adds a candle. A candle with the same open time as the newest
// entry replaces it (a forming bar being re-fetched); an older open time is
// ignored so the ring stays sorted.
func (r *ring) append(c exchange.Candle) {
	if r.size > 0 {
		last := (r.index - 1 + r.capacity) % r.capacity
		newest := r.data[last]
		if c.OpenTime == newest.OpenTime {
			r.data[last] = c
			return
		}
		if c.OpenTime < newest.OpenTime {
			return
		}
	}
	r.data[r.index] = c
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// snapshot returns all candles oldest to newest as a copy.
func (r *ring) snapshot() []exchange.Candle {
	if r.size == 0 {
		return nil
	}
	start := 0
	if r.size == r.capacity {
		start = r.index
	}
	out := make([]exchange.Candle, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.data[(start+i)%r.capacity]
	}
	return out
}

// Store keeps bounded candle history per (symbol, timeframe).
type Store struct {
	mu       sync.RWMutex
	rings    map[string]*ring
	capacity int
}

// NewStore creates a store whose rings hold capacity bars each.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		rings:    make(map[string]*ring),
		capacity: capacity,
	}
}

func key(symbol, timeframe string) string {
	return exchange.NormalizeSymbol(symbol) + ":" + timeframe
}

// Append adds one candle to the (symbol, timeframe) ring.
func (s *Store) Append(symbol, timeframe string, c exchange.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(symbol, timeframe)
	r, ok := s.rings[k]
	if !ok {
		r = newRing(s.capacity)
		s.rings[k] = r
	}
	r.append(c)
}

// Replace overwrites a ring's contents with a freshly fetched batch. Bars
// are appended in order, so duplicate and stale entries are dropped by the
// ring's ordering rule.
func (s *Store) Replace(symbol, timeframe string, candles []exchange.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := newRing(s.capacity)
	for _, c := range candles {
		r.append(c)
	}
	s.rings[key(symbol, timeframe)] = r
}

// Candles returns a copy of the stored bars, oldest first. Nil when the
// pair has no history yet.
func (s *Store) Candles(symbol, timeframe string) []exchange.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[key(symbol, timeframe)]
	if !ok {
		return nil
	}
	return r.snapshot()
}

// Latest returns the newest bar, which may still be forming.
func (s *Store) Latest(symbol, timeframe string) (exchange.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[key(symbol, timeframe)]
	if !ok || r.size == 0 {
		return exchange.Candle{}, false
	}
	last := (r.index - 1 + r.capacity) % r.capacity
	return r.data[last], true
}

// LatestClosed returns the newest bar that is no longer forming: the
// last-but-one entry of the ring. Stop-loss layers must read this, never
// the forming bar.
func (s *Store) LatestClosed(symbol, timeframe string) (exchange.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[key(symbol, timeframe)]
	if !ok || r.size < 2 {
		return exchange.Candle{}, false
	}
	idx := (r.index - 2 + r.capacity) % r.capacity
	return r.data[idx], true
}

// Size returns the number of stored bars for the pair.
func (s *Store) Size(symbol, timeframe string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rings[key(symbol, timeframe)]
	if !ok {
		return 0
	}
	return r.size
}
