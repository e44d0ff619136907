package sim

import (
	"fmt"
	"math"
)

// Status is the health state of an agent. Transitions only run forward:
// Healthy -> Sick -> Recovered.
type Status uint8

const (
	Healthy Status = iota
	Sick
	Recovered
)

func (s Status) String() string {
	switch s {
	case Healthy:
		return "Healthy"
	case Sick:
		return "Sick"
	case Recovered:
		return "Recovered"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// MarshalText emits the renderer label so JSON snapshots carry "Healthy",
// "Sick" or "Recovered" verbatim.
func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case Healthy, Sick, Recovered:
		return []byte(s.String()), nil
	default:
		return nil, fmt.Errorf("unknown status %d", uint8(s))
	}
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "Healthy":
		*s = Healthy
	case "Sick":
		*s = Sick
	case "Recovered":
		*s = Recovered
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Agent represents a moving participant in the simulation space.
type Agent struct {
	X, Y   float64
	VX, VY float64
	// Speed is the cruise speed a steering agent is renormalised to.
	Speed     float64
	Status    Status
	Compliant bool

	sickTicks  int
	infectedAt int64
}

// Step advances the agent's position by its velocity.
func (a *Agent) Step() {
	a.X += a.VX
	a.Y += a.VY
}

// bounce reflects the velocity component that points out of the arena and
// clamps the position back onto the wall it crossed.
func (a *Agent) bounce(arena Arena) {
	if a.X <= 0 {
		a.X = 0
		a.VX = math.Abs(a.VX)
	} else if a.X >= arena.Width {
		a.X = arena.Width
		a.VX = -math.Abs(a.VX)
	}
	if a.Y <= 0 {
		a.Y = 0
		a.VY = math.Abs(a.VY)
	} else if a.Y >= arena.Height {
		a.Y = arena.Height
		a.VY = -math.Abs(a.VY)
	}
}

// infect moves a Healthy agent to Sick and restarts its recovery timer.
// It reports whether the transition happened.
func (a *Agent) infect(tick int64) bool {
	if a.Status != Healthy {
		return false
	}
	a.Status = Sick
	a.sickTicks = 0
	a.infectedAt = tick
	return true
}

// SickTicks is the number of ticks the agent has spent Sick. Zero unless the
// agent is currently Sick.
func (a *Agent) SickTicks() int {
	if a.Status != Sick {
		return 0
	}
	return a.sickTicks
}

func (a *Agent) distSq(b *Agent) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	return dx*dx + dy*dy
}

// Arena is the fixed rectangle [0, Width] x [0, Height] agents live in.
type Arena struct {
	Width, Height float64
}

// Contains reports whether (x, y) lies inside the arena, walls included.
func (r Arena) Contains(x, y float64) bool {
	return x >= 0 && x <= r.Width && y >= 0 && y <= r.Height
}

// AgentState is the read-only projection of one agent handed to renderers.
type AgentState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Status Status  `json:"status"`
}

// Counts is the per-status tally of a population.
type Counts struct {
	Healthy   int `json:"healthy"`
	Sick      int `json:"sick"`
	Recovered int `json:"recovered"`
}

// Total returns the population size the tally covers.
func (c Counts) Total() int {
	return c.Healthy + c.Sick + c.Recovered
}

func (c *Counts) add(s Status, delta int) {
	switch s {
	case Healthy:
		c.Healthy += delta
	case Sick:
		c.Sick += delta
	case Recovered:
		c.Recovered += delta
	default:
		panic(fmt.Sprintf("sim: unknown status %d", uint8(s)))
	}
}
