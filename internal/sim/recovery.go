package sim

// heal runs the recovery clock. Agents infected during the current tick
// start counting on the next one.
func (s *Simulation) heal() {
	threshold := s.params.RecoveryTicks
	for i := range s.agents {
		a := &s.agents[i]
		if a.Status != Sick || a.infectedAt == s.tick {
			continue
		}
		a.sickTicks++
		if a.sickTicks >= threshold {
			a.Status = Recovered
			a.sickTicks = 0
			s.counts.add(Sick, -1)
			s.counts.add(Recovered, 1)
		}
	}
}
