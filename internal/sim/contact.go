package sim

// spread runs the contact phase. Only agents that were Sick when the phase
// started are indexed, so an agent infected here cannot pass it on until the
// next tick.
func (s *Simulation) spread() {
	s.sick = s.sick[:0]
	for i := range s.agents {
		if s.agents[i].Status == Sick {
			s.sick = append(s.sick, i)
		}
	}
	if len(s.sick) == 0 {
		return
	}

	s.contacts.reset()
	for _, i := range s.sick {
		s.contacts.insert(i, s.agents[i].X, s.agents[i].Y)
	}

	r2 := s.params.InfectionRadius * s.params.InfectionRadius
	for i := range s.agents {
		a := &s.agents[i]
		if a.Status != Healthy {
			continue
		}
		caught := false
		s.contacts.each(a.X, a.Y, func(j int) {
			if caught || a.distSq(&s.agents[j]) >= r2 {
				return
			}
			caught = s.transmits()
		})
		if caught && a.infect(s.tick) {
			s.counts.add(Healthy, -1)
			s.counts.add(Sick, 1)
		}
	}
}

// transmits samples whether one qualifying contact passes the infection on.
func (s *Simulation) transmits() bool {
	p := s.params.TransmissionProbability
	if p >= 1 {
		return true
	}
	if p <= 0 {
		return false
	}
	return s.rng.Float64() < p
}
