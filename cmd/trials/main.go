// Command trials compares how fast an outbreak spreads with and without
// distancing over a batch of seeded runs.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"outbreak/internal/history"
	"outbreak/internal/logging"
	"outbreak/internal/trials"
)

func main() {
	width := flag.Float64("width", 400, "arena width")
	height := flag.Float64("height", 400, "arena height")
	compliance := flag.Float64("compliance", 100, "distancing compliance percentage")
	count := flag.Int("trials", 20, "runs per mode")
	maxTicks := flag.Int("ticks", 5000, "tick limit per run")
	seed := flag.Int64("seed", 1, "seed of the first run")
	chartPath := flag.String("chart", "", "write the first run of each mode as PNG charts with this prefix")
	level := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	lvl, err := logging.ParseLevel(*level)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := logging.New(os.Stderr, lvl, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cfg := trials.Config{
		Width:      *width,
		Height:     *height,
		Compliance: *compliance,
		Trials:     *count,
		MaxTicks:   *maxTicks,
		Seed:       *seed,
	}
	logger.Info("running trials", "trials", cfg.Trials, "ticks", cfg.MaxTicks, "compliance", cfg.Compliance)
	summaries, results, err := trials.Run(ctx, cfg)
	if err != nil {
		logger.Error("trials failed", "err", err)
		os.Exit(1)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "mode\truns\treached 50%\tmean ticks to 50% recovered\tmean recovered\tmean peak sick")
	for _, s := range summaries {
		fmt.Fprintf(tw, "%v\t%d\t%d\t%.1f\t%.1f\t%.1f\n", s.Mode, s.Runs, s.Reached, s.MeanHalfRecovered, s.MeanRecovered, s.MeanPeakSick)
	}
	tw.Flush()

	if *chartPath != "" {
		for m := range results {
			if len(results[m]) == 0 {
				continue
			}
			if err := writeChart(*chartPath, results[m][0], logger); err != nil {
				logger.Error("chart failed", "err", err)
				os.Exit(1)
			}
		}
	}
}

func writeChart(prefix string, res trials.Result, logger *slog.Logger) error {
	name := fmt.Sprintf("%s-%v.png", prefix, res.Mode)
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := history.RenderPNG(f, res.Points, res.Final.Total(), history.ChartSize{Width: 800, Height: 400}); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	logger.Info("chart written", "file", name, "seed", res.Seed)
	return nil
}
