package sim

import (
	"fmt"
	"math"
	"math/rand"
)

// Simulation owns a fixed population of agents moving inside an arena and the
// infection state between them. It is not safe for concurrent use; callers
// that share one across goroutines must serialise access.
type Simulation struct {
	arena      Arena
	mode       Mode
	compliance float64
	params     Params
	rng        *rand.Rand

	agents    []Agent
	counts    Counts
	compliant int
	tick      int64

	// scratch reused across ticks
	contacts *grid
	avoid    *grid
	sick     []int
	push     [][2]float64
}

// New builds a simulation of width x height. compliance is the percentage
// (0-100) of agents that keep their distance; it only has an effect in
// Distancing mode. Exactly one randomly chosen agent starts Sick.
func New(width, height float64, mode Mode, compliance float64, opts ...Option) (*Simulation, error) {
	if !positive(width) {
		return nil, &ConfigurationError{Field: "width", Reason: fmt.Sprintf("must be positive, got %v", width)}
	}
	if !positive(height) {
		return nil, &ConfigurationError{Field: "height", Reason: fmt.Sprintf("must be positive, got %v", height)}
	}
	if mode != FreeForAll && mode != Distancing {
		return nil, &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unsupported sim type %v", mode)}
	}
	if !(compliance >= 0 && compliance <= 100) {
		return nil, &ConfigurationError{Field: "compliance", Reason: fmt.Sprintf("must be within [0, 100], got %v", compliance)}
	}

	o := buildOptions(opts)
	if err := o.params.validate(); err != nil {
		return nil, err
	}

	s := &Simulation{
		arena:      Arena{Width: width, Height: height},
		mode:       mode,
		compliance: compliance,
		params:     o.params,
		rng:        o.rng,
	}
	s.populate()
	s.contacts = newGrid(s.arena, s.params.InfectionRadius)
	if mode == Distancing {
		s.avoid = newGrid(s.arena, s.params.AvoidanceRadius)
		s.push = make([][2]float64, len(s.agents))
	}
	return s, nil
}

func (s *Simulation) populate() {
	n := s.params.Population
	mx := math.Min(s.params.SpawnMargin, s.arena.Width/2)
	my := math.Min(s.params.SpawnMargin, s.arena.Height/2)

	s.agents = make([]Agent, n)
	for i := range s.agents {
		heading := s.rng.Float64() * 2 * math.Pi
		s.agents[i] = Agent{
			X:     mx + s.rng.Float64()*(s.arena.Width-2*mx),
			Y:     my + s.rng.Float64()*(s.arena.Height-2*my),
			VX:    math.Cos(heading) * s.params.Speed,
			VY:    math.Sin(heading) * s.params.Speed,
			Speed: s.params.Speed,
		}
	}
	s.counts = Counts{Healthy: n}

	seed := s.rng.Intn(n)
	s.agents[seed].infect(0)
	s.counts.add(Healthy, -1)
	s.counts.add(Sick, 1)

	if s.mode == Distancing {
		s.compliant = int(math.Round(s.compliance / 100 * float64(n)))
		for _, i := range s.rng.Perm(n)[:s.compliant] {
			s.agents[i].Compliant = true
		}
	}
}

// Advance moves the simulation forward one tick: motion, then contacts, then
// recovery.
func (s *Simulation) Advance() {
	s.tick++
	s.move()
	s.spread()
	s.heal()
}

// Snapshot returns the current position and status of every agent. The order
// is the same on every call for the lifetime of the simulation.
func (s *Simulation) Snapshot() []AgentState {
	out := make([]AgentState, len(s.agents))
	for i := range s.agents {
		a := &s.agents[i]
		out[i] = AgentState{X: a.X, Y: a.Y, Status: a.Status}
	}
	return out
}

// HealthyTotal returns the number of agents that have never been infected.
func (s *Simulation) HealthyTotal() int { return s.counts.Healthy }

// SickTotal returns the number of currently infectious agents.
func (s *Simulation) SickTotal() int { return s.counts.Sick }

// RecoveredTotal returns the number of agents that have recovered.
func (s *Simulation) RecoveredTotal() int { return s.counts.Recovered }

// Counts returns all three tallies at once.
func (s *Simulation) Counts() Counts { return s.counts }

// Tick returns how many times Advance has run.
func (s *Simulation) Tick() int64 { return s.tick }

func (s *Simulation) Arena() Arena        { return s.arena }
func (s *Simulation) Mode() Mode          { return s.mode }
func (s *Simulation) Compliance() float64 { return s.compliance }
func (s *Simulation) Params() Params      { return s.params }
func (s *Simulation) Population() int     { return len(s.agents) }

// CompliantTotal returns how many agents avoid others. Always zero outside
// Distancing mode.
func (s *Simulation) CompliantTotal() int { return s.compliant }

// CheckInvariants recounts the population and verifies every agent is inside
// the arena. A non-nil result means the engine is broken.
func (s *Simulation) CheckInvariants() error {
	var recount Counts
	for i := range s.agents {
		a := &s.agents[i]
		if !s.arena.Contains(a.X, a.Y) {
			return fmt.Errorf("agent %d at (%v, %v) outside arena %vx%v", i, a.X, a.Y, s.arena.Width, s.arena.Height)
		}
		switch a.Status {
		case Healthy, Sick, Recovered:
			recount.add(a.Status, 1)
		default:
			return fmt.Errorf("agent %d has unknown status %v", i, a.Status)
		}
	}
	if recount != s.counts {
		return fmt.Errorf("counters %+v disagree with agents %+v", s.counts, recount)
	}
	if recount.Total() != s.params.Population {
		return fmt.Errorf("population %d, want %d", recount.Total(), s.params.Population)
	}
	return nil
}
