package sim

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func mustNew(t *testing.T, width, height float64, mode Mode, compliance float64, opts ...Option) *Simulation {
	t.Helper()
	s, err := New(width, height, mode, compliance, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// stillParams returns constants for hand-placed scenarios: nobody moves.
func stillParams(population, recovery int) Params {
	p := DefaultParams()
	p.Population = population
	p.RecoveryTicks = recovery
	p.Speed = 0
	return p
}

func seedIndex(t *testing.T, s *Simulation) int {
	t.Helper()
	for i := range s.agents {
		if s.agents[i].Status == Sick {
			return i
		}
	}
	t.Fatal("no sick agent found")
	return -1
}

func TestNewSeedsExactlyOneSickAgent(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		s := mustNew(t, 400, 400, FreeForAll, 0, WithSeed(seed))
		n := DefaultParams().Population

		if s.SickTotal() != 1 {
			t.Fatalf("seed %d: expected 1 sick agent, got %d", seed, s.SickTotal())
		}
		if s.HealthyTotal() != n-1 {
			t.Fatalf("seed %d: expected %d healthy agents, got %d", seed, n-1, s.HealthyTotal())
		}
		if s.RecoveredTotal() != 0 {
			t.Fatalf("seed %d: expected no recovered agents, got %d", seed, s.RecoveredTotal())
		}
		if s.Tick() != 0 {
			t.Fatalf("seed %d: expected tick 0, got %d", seed, s.Tick())
		}

		sick := 0
		for _, st := range s.Snapshot() {
			if st.Status == Sick {
				sick++
			}
		}
		if sick != 1 {
			t.Fatalf("seed %d: snapshot shows %d sick agents", seed, sick)
		}
		if err := s.CheckInvariants(); err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
	}
}

func TestNewRejectsInvalidConfiguration(t *testing.T) {
	badParams := DefaultParams()
	badParams.RecoveryTicks = 0

	cases := []struct {
		name          string
		width, height float64
		mode          Mode
		compliance    float64
		opts          []Option
		field         string
	}{
		{"zero width", 0, 400, FreeForAll, 0, nil, "width"},
		{"negative height", 400, -1, FreeForAll, 0, nil, "height"},
		{"nan width", math.NaN(), 400, FreeForAll, 0, nil, "width"},
		{"infinite height", 400, math.Inf(1), FreeForAll, 0, nil, "height"},
		{"compliance above range", 400, 400, Distancing, 101, nil, "compliance"},
		{"compliance below range", 400, 400, FreeForAll, -1, nil, "compliance"},
		{"unknown mode", 400, 400, Mode(7), 0, nil, "mode"},
		{"bad params", 400, 400, FreeForAll, 0, []Option{WithParams(badParams)}, "recovery ticks"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := New(tc.width, tc.height, tc.mode, tc.compliance, tc.opts...)
			if s != nil {
				t.Fatal("expected no simulation on failure")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if cfgErr.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, cfgErr.Field)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("expected error to wrap ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestCompliantAgentsFollowPercentage(t *testing.T) {
	cases := []struct {
		mode       Mode
		compliance float64
		want       int
	}{
		{Distancing, 0, 0},
		{Distancing, 30, 15},
		{Distancing, 25, 13},
		{Distancing, 100, 50},
		{FreeForAll, 100, 0},
	}

	for _, tc := range cases {
		s := mustNew(t, 400, 400, tc.mode, tc.compliance, WithSeed(3))
		if got := s.CompliantTotal(); got != tc.want {
			t.Fatalf("%v at %v%%: expected %d compliant agents, got %d", tc.mode, tc.compliance, tc.want, got)
		}
		marked := 0
		for i := range s.agents {
			if s.agents[i].Compliant {
				marked++
			}
		}
		if marked != tc.want {
			t.Fatalf("%v at %v%%: %d agents flagged, want %d", tc.mode, tc.compliance, marked, tc.want)
		}
	}
}

func TestSpawnInsideMargins(t *testing.T) {
	s := mustNew(t, 400, 300, FreeForAll, 0, WithSeed(11))
	for i, st := range s.Snapshot() {
		if st.X < 5 || st.X > 395 || st.Y < 5 || st.Y > 295 {
			t.Fatalf("agent %d spawned at (%v, %v), outside the margin", i, st.X, st.Y)
		}
	}

	tiny := mustNew(t, 4, 2, FreeForAll, 0, WithSeed(11))
	if err := tiny.CheckInvariants(); err != nil {
		t.Fatalf("tiny arena: %v", err)
	}
}

func statusRank(s Status) int {
	switch s {
	case Healthy:
		return 0
	case Sick:
		return 1
	case Recovered:
		return 2
	default:
		panic("unknown status")
	}
}

func TestInvariantsHoldEveryTick(t *testing.T) {
	params := DefaultParams()
	params.RecoveryTicks = 60

	for _, mode := range []Mode{FreeForAll, Distancing} {
		for _, compliance := range []float64{0, 50, 100} {
			s := mustNew(t, 200, 150, mode, compliance, WithSeed(42), WithParams(params))
			prev := s.Snapshot()
			for tick := 1; tick <= 1500; tick++ {
				s.Advance()
				if err := s.CheckInvariants(); err != nil {
					t.Fatalf("%v/%v tick %d: %v", mode, compliance, tick, err)
				}
				if s.HealthyTotal()+s.SickTotal()+s.RecoveredTotal() != params.Population {
					t.Fatalf("%v/%v tick %d: counts do not sum to population", mode, compliance, tick)
				}

				cur := s.Snapshot()
				for i := range cur {
					if !s.arena.Contains(cur[i].X, cur[i].Y) {
						t.Fatalf("%v/%v tick %d: agent %d escaped to (%v, %v)", mode, compliance, tick, i, cur[i].X, cur[i].Y)
					}
					from, to := statusRank(prev[i].Status), statusRank(cur[i].Status)
					if to < from || to-from > 1 {
						t.Fatalf("%v/%v tick %d: agent %d went %v -> %v", mode, compliance, tick, i, prev[i].Status, cur[i].Status)
					}
				}
				prev = cur
			}
		}
	}
}

func TestRecoveryIsExactlyThresholdTicksAfterInfection(t *testing.T) {
	const threshold = 10
	s := mustNew(t, 100, 100, FreeForAll, 0, WithSeed(5), WithParams(stillParams(2, threshold)))

	seed := seedIndex(t, s)
	other := 1 - seed
	s.agents[seed].X, s.agents[seed].Y = 20, 20
	s.agents[other].X, s.agents[other].Y = 25, 20

	s.Advance()
	if s.agents[other].Status != Sick {
		t.Fatalf("expected neighbour to be infected on tick 1, got %v", s.agents[other].Status)
	}

	for s.Tick() < threshold-1 {
		s.Advance()
	}
	if s.agents[seed].Status != Sick {
		t.Fatalf("tick %d: expected seed still sick, got %v", s.Tick(), s.agents[seed].Status)
	}

	s.Advance() // tick == threshold
	if s.agents[seed].Status != Recovered {
		t.Fatalf("tick %d: expected seed recovered, got %v", s.Tick(), s.agents[seed].Status)
	}
	if s.agents[other].Status != Sick {
		t.Fatalf("tick %d: expected tick-1 infection still sick, got %v", s.Tick(), s.agents[other].Status)
	}
	if s.agents[other].SickTicks() != threshold-1 {
		t.Fatalf("expected %d sick ticks, got %d", threshold-1, s.agents[other].SickTicks())
	}

	s.Advance() // tick == 1 + threshold
	if s.agents[other].Status != Recovered {
		t.Fatalf("tick %d: expected neighbour recovered, got %v", s.Tick(), s.agents[other].Status)
	}
	if s.SickTotal() != 0 || s.RecoveredTotal() != 2 {
		t.Fatalf("unexpected counts %+v", s.Counts())
	}
}

func TestInfectionDoesNotChainWithinATick(t *testing.T) {
	// Varying the seed varies which index is the sick agent, so the
	// evaluation order relative to the chain changes between runs.
	for seed := int64(1); seed <= 12; seed++ {
		s := mustNew(t, 100, 100, FreeForAll, 0, WithSeed(seed), WithParams(stillParams(3, 100)))

		sick := seedIndex(t, s)
		near, far := (sick+1)%3, (sick+2)%3
		if seed%2 == 0 {
			near, far = far, near
		}
		s.agents[sick].X, s.agents[sick].Y = 10, 50
		s.agents[near].X, s.agents[near].Y = 15, 50
		s.agents[far].X, s.agents[far].Y = 20, 50

		s.Advance()
		if s.agents[near].Status != Sick {
			t.Fatalf("seed %d: expected near agent infected, got %v", seed, s.agents[near].Status)
		}
		if s.agents[far].Status != Healthy {
			t.Fatalf("seed %d: expected far agent untouched on the first tick, got %v", seed, s.agents[far].Status)
		}

		s.Advance()
		if s.agents[far].Status != Sick {
			t.Fatalf("seed %d: expected far agent infected on the second tick, got %v", seed, s.agents[far].Status)
		}
	}
}

func TestContactRadiusIsStrict(t *testing.T) {
	params := stillParams(2, 100)
	s := mustNew(t, 100, 100, FreeForAll, 0, WithSeed(9), WithParams(params))

	seed := seedIndex(t, s)
	other := 1 - seed
	s.agents[seed].X, s.agents[seed].Y = 10, 10
	s.agents[other].X, s.agents[other].Y = 10+params.InfectionRadius, 10

	s.Advance()
	if s.agents[other].Status != Healthy {
		t.Fatalf("expected agent exactly at the radius to stay healthy, got %v", s.agents[other].Status)
	}
}

func TestMultipleContactsInfectOnce(t *testing.T) {
	s := mustNew(t, 100, 100, FreeForAll, 0, WithSeed(2), WithParams(stillParams(4, 100)))

	seed := seedIndex(t, s)
	for i := range s.agents {
		s.agents[i].X, s.agents[i].Y = 50, 50
		if i != seed {
			s.agents[i].infect(0)
			s.counts.add(Healthy, -1)
			s.counts.add(Sick, 1)
		}
	}
	target := (seed + 1) % 4
	s.agents[target].Status = Healthy
	s.agents[target].sickTicks = 0
	s.counts.add(Sick, -1)
	s.counts.add(Healthy, 1)

	s.Advance()
	if s.agents[target].Status != Sick {
		t.Fatalf("expected target infected, got %v", s.agents[target].Status)
	}
	if s.SickTotal() != 4 || s.HealthyTotal() != 0 {
		t.Fatalf("unexpected counts %+v", s.Counts())
	}
	if err := s.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestZeroTransmissionProbabilityNeverSpreads(t *testing.T) {
	params := stillParams(2, 5)
	params.TransmissionProbability = 0
	s := mustNew(t, 100, 100, FreeForAll, 0, WithSeed(4), WithParams(params))

	seed := seedIndex(t, s)
	other := 1 - seed
	s.agents[seed].X, s.agents[seed].Y = 30, 30
	s.agents[other].X, s.agents[other].Y = 31, 30

	for i := 0; i < 10; i++ {
		s.Advance()
	}
	if s.agents[other].Status != Healthy {
		t.Fatalf("expected no transmission, got %v", s.agents[other].Status)
	}
}

func TestSnapshotDoesNotMutate(t *testing.T) {
	s := mustNew(t, 400, 400, Distancing, 50, WithSeed(8))
	for i := 0; i < 25; i++ {
		s.Advance()
	}

	first := s.Snapshot()
	counts := s.Counts()
	tick := s.Tick()
	for i := 0; i < 5; i++ {
		if got := s.Snapshot(); !reflect.DeepEqual(first, got) {
			t.Fatal("expected repeated snapshots to be identical")
		}
		if s.HealthyTotal() != counts.Healthy || s.SickTotal() != counts.Sick || s.RecoveredTotal() != counts.Recovered {
			t.Fatal("expected counters to be stable between advances")
		}
	}
	if s.Tick() != tick {
		t.Fatalf("expected tick %d, got %d", tick, s.Tick())
	}

	first[0].X = -1000
	if s.Snapshot()[0].X == -1000 {
		t.Fatal("expected snapshot to be a copy")
	}
}

func TestFreeForAllRunBurnsOut(t *testing.T) {
	s := mustNew(t, 400, 400, FreeForAll, 0, WithSeed(1))
	p := s.Params()

	if s.SickTotal() != 1 || s.HealthyTotal() != p.Population-1 || s.RecoveredTotal() != 0 {
		t.Fatalf("unexpected initial counts %+v", s.Counts())
	}

	// Each infection needs a sick source, so the last one lands before
	// Population*RecoveryTicks and recovers by then.
	for i := 0; i < p.Population*p.RecoveryTicks; i++ {
		s.Advance()
	}
	if s.SickTotal() != 0 {
		t.Fatalf("expected the outbreak to end, %d still sick", s.SickTotal())
	}
	if s.RecoveredTotal() < 1 {
		t.Fatal("expected at least the seed to recover")
	}
	if s.HealthyTotal()+s.RecoveredTotal() != p.Population {
		t.Fatalf("unexpected final counts %+v", s.Counts())
	}
}

func TestDistancingSteersApart(t *testing.T) {
	params := DefaultParams()
	params.Population = 2
	s := mustNew(t, 200, 200, Distancing, 100, WithSeed(6), WithParams(params))

	a, b := &s.agents[0], &s.agents[1]
	a.X, a.Y, a.VX, a.VY = 90, 100, 1, 0
	b.X, b.Y, b.VX, b.VY = 110, 100.5, -1, 0

	minDist := math.Inf(1)
	for i := 0; i < 40; i++ {
		s.Advance()
		minDist = math.Min(minDist, math.Sqrt(a.distSq(b)))
		if speed := math.Hypot(a.VX, a.VY); math.Abs(speed-params.Speed) > 1e-9 {
			t.Fatalf("expected cruise speed %v, got %v", params.Speed, speed)
		}
	}
	if minDist < params.InfectionRadius {
		t.Fatalf("expected compliant agents to keep apart, closest approach %v", minDist)
	}
}

func TestNonCompliantAgentsIgnoreNeighbours(t *testing.T) {
	params := DefaultParams()
	params.Population = 2
	s := mustNew(t, 200, 200, Distancing, 0, WithSeed(6), WithParams(params))

	a, b := &s.agents[0], &s.agents[1]
	a.X, a.Y, a.VX, a.VY = 90, 100, 1, 0
	b.X, b.Y, b.VX, b.VY = 110, 100, -1, 0

	for i := 0; i < 5; i++ {
		s.Advance()
	}
	if a.X != 95 || a.Y != 100 || a.VX != 1 {
		t.Fatalf("expected straight-line motion, got pos (%v, %v) vel (%v, %v)", a.X, a.Y, a.VX, a.VY)
	}
}

// halfRecoveredAt runs until half the population has recovered and returns
// the tick, or limit when that never happens.
func halfRecoveredAt(t *testing.T, mode Mode, seed int64, limit int) int {
	t.Helper()
	s := mustNew(t, 400, 400, mode, 100, WithSeed(seed))
	half := (s.Population() + 1) / 2
	for tick := 1; tick <= limit; tick++ {
		s.Advance()
		if s.RecoveredTotal() >= half {
			return tick
		}
		if s.SickTotal() == 0 {
			return limit
		}
	}
	return limit
}

func TestDistancingDoesNotSpeedUpSpread(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical comparison")
	}

	const (
		trials = 24
		limit  = 4000
	)
	var free, distanced float64
	for seed := int64(1); seed <= trials; seed++ {
		free += float64(halfRecoveredAt(t, FreeForAll, seed, limit))
		distanced += float64(halfRecoveredAt(t, Distancing, seed, limit))
	}
	free /= trials
	distanced /= trials

	if distanced < free {
		t.Fatalf("expected distancing to be no faster: free %.1f ticks, distancing %.1f ticks", free, distanced)
	}
}
