// Package history keeps the per-tick status tallies of a run and turns them
// into the counts chart shown next to the arena.
package history

import (
	"sync"

	"outbreak/internal/sim"
)

// DefaultCapacity is enough for the whole life of a default outbreak.
const DefaultCapacity = 50 * 450

// Point is the tally of one tick.
type Point struct {
	Tick   int64      `json:"tick"`
	Counts sim.Counts `json:"counts"`
}

// Recorder stores the most recent points of a run. The oldest points are
// dropped once capacity is reached.
type Recorder struct {
	mu       sync.RWMutex
	capacity int
	points   []Point
}

// NewRecorder creates a recorder. A non-positive capacity uses DefaultCapacity.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Recorder{capacity: capacity}
}

// Record appends the tally for tick.
func (r *Recorder) Record(tick int64, counts sim.Counts) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.points) == r.capacity {
		copy(r.points, r.points[1:])
		r.points = r.points[:len(r.points)-1]
	}
	r.points = append(r.points, Point{Tick: tick, Counts: counts})
}

// Points returns a copy of the recorded series, oldest first.
func (r *Recorder) Points() []Point {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Point, len(r.points))
	copy(out, r.points)
	return out
}

func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}

// Reset drops every point, ready for a new run.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.points = r.points[:0]
}

// TimeToFraction returns the first tick at which the tally for status reached
// fraction of population.
func TimeToFraction(points []Point, population int, status sim.Status, fraction float64) (int64, bool) {
	target := fraction * float64(population)
	for _, p := range points {
		if float64(count(p.Counts, status)) >= target {
			return p.Tick, true
		}
	}
	return 0, false
}

// Peak returns the point with the largest Sick tally.
func Peak(points []Point) (Point, bool) {
	if len(points) == 0 {
		return Point{}, false
	}
	best := points[0]
	for _, p := range points[1:] {
		if p.Counts.Sick > best.Counts.Sick {
			best = p
		}
	}
	return best, true
}

func count(c sim.Counts, status sim.Status) int {
	switch status {
	case sim.Healthy:
		return c.Healthy
	case sim.Sick:
		return c.Sick
	case sim.Recovered:
		return c.Recovered
	default:
		return 0
	}
}
