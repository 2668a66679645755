package domain

import (
	"sync"
	"time"
)

// ChartCapacity is the number of samples a market chart keeps.
const ChartCapacity = 20

// ChartPoint is one yes/no share sample, in ETH.
type ChartPoint struct {
	Label time.Time `json:"label"`
	Yes   float64   `json:"yes"`
	No    float64   `json:"no"`
}

// ChartSeries is a bounded ring buffer of ChartPoints. Appending beyond the
// capacity evicts the oldest sample. It is safe for concurrent use.
type ChartSeries struct {
	mu     sync.Mutex
	points []ChartPoint
	start  int
	size   int
}

// NewChartSeries creates a series holding at most capacity points. A
// non-positive capacity falls back to ChartCapacity.
func NewChartSeries(capacity int) *ChartSeries {
	if capacity <= 0 {
		capacity = ChartCapacity
	}
	return &ChartSeries{points: make([]ChartPoint, capacity)}
}

// Append adds p as the newest sample.
func (s *ChartSeries) Append(p ChartPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	capacity := len(s.points)
	if s.size < capacity {
		s.points[(s.start+s.size)%capacity] = p
		s.size++
		return
	}
	s.points[s.start] = p
	s.start = (s.start + 1) % capacity
}

// Points returns a copy of the samples, oldest first.
func (s *ChartSeries) Points() []ChartPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChartPoint, s.size)
	for i := 0; i < s.size; i++ {
		out[i] = s.points[(s.start+i)%len(s.points)]
	}
	return out
}

// Len returns the number of samples held.
func (s *ChartSeries) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// Cap returns the capacity of the series.
func (s *ChartSeries) Cap() int {
	return len(s.points)
}
