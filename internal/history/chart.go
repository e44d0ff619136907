package history

import (
	"errors"
	"fmt"
	"io"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"outbreak/internal/sim"
)

// ErrNotEnoughData is returned when a chart would have a zero-width axis.
var ErrNotEnoughData = errors.New("history: need at least two points to chart")

// Colours match the circles drawn in the arena.
var (
	healthyColor   = drawing.Color{R: 0xad, G: 0xd8, B: 0xe6, A: 255}
	sickColor      = drawing.Color{R: 0xba, G: 0x6d, B: 0x20, A: 255}
	recoveredColor = drawing.Color{R: 0xa8, G: 0x85, B: 0xcc, A: 255}
)

// ChartSize is the rendered image size in pixels.
type ChartSize struct {
	Width, Height int
}

// DefaultChartSize matches the 400px arena.
var DefaultChartSize = ChartSize{Width: 400, Height: 220}

// RenderPNG draws the three tallies over time as a PNG.
func RenderPNG(w io.Writer, points []Point, population int, size ChartSize) error {
	if len(points) < 2 || points[0].Tick == points[len(points)-1].Tick {
		return ErrNotEnoughData
	}
	if population < 1 {
		return fmt.Errorf("history: population must be positive, got %d", population)
	}

	ticks := make([]float64, len(points))
	healthy := make([]float64, len(points))
	sick := make([]float64, len(points))
	recovered := make([]float64, len(points))
	for i, p := range points {
		ticks[i] = float64(p.Tick)
		healthy[i] = float64(p.Counts.Healthy)
		sick[i] = float64(p.Counts.Sick)
		recovered[i] = float64(p.Counts.Recovered)
	}

	graph := chart.Chart{
		Width:  size.Width,
		Height: size.Height,
		XAxis: chart.XAxis{
			Name:  "tick",
			Style: chart.Style{FontSize: 8.0},
			Range: &chart.ContinuousRange{Min: ticks[0], Max: ticks[len(ticks)-1]},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int64(v.(float64)))
			},
		},
		YAxis: chart.YAxis{
			Style: chart.Style{FontSize: 8.0},
			Range: &chart.ContinuousRange{Min: 0, Max: float64(population)},
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%d", int(v.(float64)))
			},
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    sim.Healthy.String(),
				XValues: ticks,
				YValues: healthy,
				Style:   chart.Style{StrokeColor: healthyColor, StrokeWidth: 2.0},
			},
			chart.ContinuousSeries{
				Name:    sim.Sick.String(),
				XValues: ticks,
				YValues: sick,
				Style:   chart.Style{StrokeColor: sickColor, StrokeWidth: 2.0},
			},
			chart.ContinuousSeries{
				Name:    sim.Recovered.String(),
				XValues: ticks,
				YValues: recovered,
				Style:   chart.Style{StrokeColor: recoveredColor, StrokeWidth: 2.0},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render counts chart: %w", err)
	}
	return nil
}
