// Package aqi computes the 24 hour PM2.5 average and its US AQI.
package aqi

import (
	"sync"

	"golang.org/x/exp/constraints"
)

// Number is any numeric sample or total type.
type Number interface {
	constraints.Integer | constraints.Float
}

// MovingAverage keeps the last N samples of type T in a ring buffer and a
// running total of type Total, so the average costs O(1). Total should be
// wide enough to hold N samples.
type MovingAverage[T, Total Number] struct {
	mu      sync.RWMutex
	samples []T
	next    int
	count   int
	total   Total
}

// NewMovingAverage creates an average over capacity samples.
func NewMovingAverage[T, Total Number](capacity int) *MovingAverage[T, Total] {
	if capacity < 1 {
		capacity = 1
	}
	return &MovingAverage[T, Total]{samples: make([]T, capacity)}
}

// Add stores a sample, evicting the oldest one once the buffer is full.
func (m *MovingAverage[T, Total]) Add(v T) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.count == len(m.samples) {
		m.total -= Total(m.samples[m.next])
	} else {
		m.count++
	}
	m.samples[m.next] = v
	m.total += Total(v)
	m.next = (m.next + 1) % len(m.samples)
}

// Average returns the mean of the stored samples, 0 when empty.
func (m *MovingAverage[T, Total]) Average() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.count == 0 || m.total == 0 {
		return 0
	}
	return float32(m.total) / float32(m.count)
}

// Count returns the number of stored samples.
func (m *MovingAverage[T, Total]) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count
}

// Capacity returns N.
func (m *MovingAverage[T, Total]) Capacity() int {
	return len(m.samples)
}

// HasReachedCapacity reports whether N samples have been added.
func (m *MovingAverage[T, Total]) HasReachedCapacity() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.count == len(m.samples)
}

// Reset drops all samples.
func (m *MovingAverage[T, Total]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.samples)
	m.next, m.count = 0, 0
	m.total = 0
}
