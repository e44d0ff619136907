package sim

import "math"

// move runs the motion phase. Steering is computed from start-of-tick
// positions for every compliant agent before anyone moves, so agent order does
// not bias who dodges whom.
func (s *Simulation) move() {
	if s.mode == Distancing && s.compliant > 0 {
		s.steer()
	}
	for i := range s.agents {
		a := &s.agents[i]
		a.Step()
		a.bounce(s.arena)
	}
}

func (s *Simulation) steer() {
	s.avoid.reset()
	for i := range s.agents {
		s.avoid.insert(i, s.agents[i].X, s.agents[i].Y)
	}

	radius := s.params.AvoidanceRadius
	r2 := radius * radius
	for i := range s.agents {
		a := &s.agents[i]
		if !a.Compliant {
			s.push[i] = [2]float64{}
			continue
		}
		var px, py float64
		s.avoid.each(a.X, a.Y, func(j int) {
			if j == i {
				return
			}
			b := &s.agents[j]
			d2 := a.distSq(b)
			if d2 == 0 || d2 >= r2 {
				return
			}
			d := math.Sqrt(d2)
			w := 1 - d/radius
			px += (a.X - b.X) / d * w
			py += (a.Y - b.Y) / d * w
		})
		s.push[i] = [2]float64{px, py}
	}

	for i := range s.agents {
		a := &s.agents[i]
		if !a.Compliant {
			continue
		}
		p := s.push[i]
		if p[0] == 0 && p[1] == 0 {
			continue
		}
		gain := s.params.AvoidanceStrength * a.Speed
		vx := a.VX + p[0]*gain
		vy := a.VY + p[1]*gain
		norm := math.Hypot(vx, vy)
		if norm == 0 {
			continue
		}
		a.VX = vx / norm * a.Speed
		a.VY = vy / norm * a.Speed
	}
}
