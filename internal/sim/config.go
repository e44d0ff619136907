package sim

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

// Mode selects the movement behaviour for a run. It is fixed at construction.
type Mode uint8

const (
	FreeForAll Mode = iota
	Distancing
)

func (m Mode) String() string {
	switch m {
	case FreeForAll:
		return "freeForAll"
	case Distancing:
		return "distancing"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode accepts the labels used by the browser controls.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "freeforall", "free-for-all", "free":
		return FreeForAll, nil
	case "distancing":
		return Distancing, nil
	}
	return 0, &ConfigurationError{Field: "mode", Reason: fmt.Sprintf("unsupported sim type %q", s)}
}

// ErrInvalidConfig is wrapped by every ConfigurationError.
var ErrInvalidConfig = errors.New("invalid simulation configuration")

// ConfigurationError reports a construction parameter that cannot produce a
// valid simulation.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInvalidConfig, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return ErrInvalidConfig }

// Params holds the engine constants. The zero value is not usable; start from
// DefaultParams.
type Params struct {
	Population      int
	InfectionRadius float64
	RecoveryTicks   int
	AvoidanceRadius float64
	// AvoidanceStrength scales the separation push relative to cruise speed.
	AvoidanceStrength float64
	Speed             float64
	SpawnMargin       float64
	// TransmissionProbability is the chance a single qualifying contact
	// infects. 1 makes contact deterministic.
	TransmissionProbability float64
}

// DefaultParams returns the constants the browser client is drawn against:
// 50 people with 3.75 radius bodies that stay sick for 450 frames.
func DefaultParams() Params {
	return Params{
		Population:              50,
		InfectionRadius:         7.5,
		RecoveryTicks:           450,
		AvoidanceRadius:         20,
		AvoidanceStrength:       4,
		Speed:                   1,
		SpawnMargin:             5,
		TransmissionProbability: 1,
	}
}

func (p Params) validate() error {
	switch {
	case p.Population < 1:
		return &ConfigurationError{Field: "population", Reason: "must be at least 1"}
	case !positive(p.InfectionRadius):
		return &ConfigurationError{Field: "infection radius", Reason: "must be positive"}
	case p.RecoveryTicks < 1:
		return &ConfigurationError{Field: "recovery ticks", Reason: "must be at least 1"}
	case !positive(p.AvoidanceRadius):
		return &ConfigurationError{Field: "avoidance radius", Reason: "must be positive"}
	case p.AvoidanceStrength < 0 || !finite(p.AvoidanceStrength):
		return &ConfigurationError{Field: "avoidance strength", Reason: "must be non-negative"}
	case p.Speed < 0 || !finite(p.Speed):
		return &ConfigurationError{Field: "speed", Reason: "must be non-negative"}
	case p.SpawnMargin < 0 || !finite(p.SpawnMargin):
		return &ConfigurationError{Field: "spawn margin", Reason: "must be non-negative"}
	case !(p.TransmissionProbability >= 0 && p.TransmissionProbability <= 1):
		return &ConfigurationError{Field: "transmission probability", Reason: "must be within [0, 1]"}
	}
	return nil
}

func positive(v float64) bool { return v > 0 && finite(v) }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

type options struct {
	params Params
	rng    *rand.Rand
}

// Option customises a Simulation at construction.
type Option func(*options)

// WithParams replaces the engine constants.
func WithParams(p Params) Option {
	return func(o *options) { o.params = p }
}

// WithSeed makes the run reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) { o.rng = rand.New(rand.NewSource(seed)) }
}

// WithRand hands the simulation its random source. The simulation takes
// ownership; callers must not use rng concurrently.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

func buildOptions(opts []Option) options {
	o := options{params: DefaultParams()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return o
}
