// Package trials runs batches of headless simulations and compares how fast
// the outbreak moves under each movement mode.
package trials

import (
	"context"
	"fmt"

	"outbreak/internal/history"
	"outbreak/internal/sim"
)

// Config describes one batch. Trial i of every mode uses seed Seed+i, so the
// modes are compared on matching seeds.
type Config struct {
	Width, Height float64
	Compliance    float64
	Trials        int
	MaxTicks      int
	Seed          int64
	Params        *sim.Params
}

// Result is the outcome of one run.
type Result struct {
	Mode sim.Mode
	Seed int64
	// HalfRecovered is the tick at which half the population had
	// recovered, or MaxTicks when that never happened.
	HalfRecovered int64
	Reached       bool
	Ticks         int64
	Final         sim.Counts
	PeakSick      int
	Points        []history.Point
}

// Summary aggregates the results of one mode.
type Summary struct {
	Mode              sim.Mode
	Runs              int
	Reached           int
	MeanHalfRecovered float64
	MeanRecovered     float64
	MeanPeakSick      float64
}

func (c Config) validate() error {
	if c.Trials < 1 {
		return fmt.Errorf("trials must be at least 1, got %d", c.Trials)
	}
	if c.MaxTicks < 1 {
		return fmt.Errorf("max ticks must be at least 1, got %d", c.MaxTicks)
	}
	return nil
}

// RunOne plays a single simulation until the outbreak ends or MaxTicks.
func RunOne(cfg Config, mode sim.Mode, seed int64) (Result, error) {
	opts := []sim.Option{sim.WithSeed(seed)}
	if cfg.Params != nil {
		opts = append(opts, sim.WithParams(*cfg.Params))
	}
	s, err := sim.New(cfg.Width, cfg.Height, mode, cfg.Compliance, opts...)
	if err != nil {
		return Result{}, err
	}

	rec := history.NewRecorder(cfg.MaxTicks + 1)
	rec.Record(s.Tick(), s.Counts())
	for s.Tick() < int64(cfg.MaxTicks) && s.SickTotal() > 0 {
		s.Advance()
		rec.Record(s.Tick(), s.Counts())
	}

	points := rec.Points()
	res := Result{
		Mode:   mode,
		Seed:   seed,
		Ticks:  s.Tick(),
		Final:  s.Counts(),
		Points: points,
	}
	res.HalfRecovered, res.Reached = history.TimeToFraction(points, s.Population(), sim.Recovered, 0.5)
	if !res.Reached {
		res.HalfRecovered = int64(cfg.MaxTicks)
	}
	if peak, ok := history.Peak(points); ok {
		res.PeakSick = peak.Counts.Sick
	}
	return res, nil
}

// Run plays cfg.Trials runs per mode, FreeForAll first. It stops early when
// ctx is cancelled.
func Run(ctx context.Context, cfg Config) ([]Summary, [][]Result, error) {
	if err := cfg.validate(); err != nil {
		return nil, nil, err
	}

	modes := []sim.Mode{sim.FreeForAll, sim.Distancing}
	summaries := make([]Summary, len(modes))
	results := make([][]Result, len(modes))
	for m, mode := range modes {
		sum := Summary{Mode: mode}
		for i := 0; i < cfg.Trials; i++ {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
			res, err := RunOne(cfg, mode, cfg.Seed+int64(i))
			if err != nil {
				return nil, nil, fmt.Errorf("%v trial %d: %w", mode, i, err)
			}
			results[m] = append(results[m], res)

			sum.Runs++
			if res.Reached {
				sum.Reached++
			}
			sum.MeanHalfRecovered += float64(res.HalfRecovered)
			sum.MeanRecovered += float64(res.Final.Recovered)
			sum.MeanPeakSick += float64(res.PeakSick)
		}
		n := float64(sum.Runs)
		sum.MeanHalfRecovered /= n
		sum.MeanRecovered /= n
		sum.MeanPeakSick /= n
		summaries[m] = sum
	}
	return summaries, results, nil
}
