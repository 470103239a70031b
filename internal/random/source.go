// Package random provides the bounded random draws and row selection used to
// vary scenario data between iterations.
package random

import (
	"math"
	"math/rand"
	"sync"
	"time"
)

// Source is a seedable random generator safe for concurrent use.
type Source struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSource creates a source. A zero seed seeds from the clock.
func NewSource(seed int64) *Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Source{rng: rand.New(rand.NewSource(seed))}
}

// Int returns a uniformly distributed value in [min, max). When max <= min it
// returns min. Any int range is supported, including [math.MinInt, math.MaxInt).
func (s *Source) Int(min, max int) int {
	if max <= min {
		return min
	}
	span := uint64(max) - uint64(min)
	if span <= math.MaxInt {
		return min + s.Intn(int(span))
	}
	return int(uint64(min) + s.wide(span))
}

// Intn returns a uniformly distributed value in [0, n). n must be positive.
func (s *Source) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// Duration returns a uniformly distributed duration in [min, max).
func (s *Source) Duration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := uint64(max) - uint64(min)
	if span <= math.MaxInt64 {
		s.mu.Lock()
		defer s.mu.Unlock()
		return min + time.Duration(s.rng.Int63n(int64(span)))
	}
	return time.Duration(uint64(min) + s.wide(span))
}

// wide returns a uniformly distributed value in [0, n) for n > 0 that may not
// fit in an int.
func (s *Source) wide(n uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= math.MaxInt64 {
		return uint64(s.rng.Int63n(int64(n)))
	}
	// More than half of all draws land below n.
	for {
		if v := s.rng.Uint64(); v < n {
			return v
		}
	}
}
