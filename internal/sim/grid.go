package sim

import "math"

// grid is a uniform spatial index over agent indices. Cells are square with
// side equal to the query radius, so any neighbour within that radius sits in
// the 3x3 block around the query cell.
type grid struct {
	cell       float64
	cols, rows int
	buckets    [][]int
}

// maxGridCells bounds the index size for very large arenas; cells grow
// instead, which keeps the 3x3 scan correct.
const maxGridCells = 1 << 16

func newGrid(arena Arena, radius float64) *grid {
	cell := radius
	for (math.Ceil(arena.Width/cell)+1)*(math.Ceil(arena.Height/cell)+1) > maxGridCells {
		cell *= 2
	}
	cols := int(math.Ceil(arena.Width/cell)) + 1
	rows := int(math.Ceil(arena.Height/cell)) + 1
	return &grid{
		cell:    cell,
		cols:    cols,
		rows:    rows,
		buckets: make([][]int, cols*rows),
	}
}

func (g *grid) coords(x, y float64) (int, int) {
	cx := int(x / g.cell)
	cy := int(y / g.cell)
	if cx < 0 {
		cx = 0
	} else if cx >= g.cols {
		cx = g.cols - 1
	}
	if cy < 0 {
		cy = 0
	} else if cy >= g.rows {
		cy = g.rows - 1
	}
	return cx, cy
}

// reset empties every bucket while keeping their backing arrays.
func (g *grid) reset() {
	for i := range g.buckets {
		g.buckets[i] = g.buckets[i][:0]
	}
}

func (g *grid) insert(idx int, x, y float64) {
	cx, cy := g.coords(x, y)
	k := cy*g.cols + cx
	g.buckets[k] = append(g.buckets[k], idx)
}

// each calls fn for every indexed agent whose cell is adjacent to (x, y).
// Callers still filter by exact distance.
func (g *grid) each(x, y float64, fn func(idx int)) {
	cx, cy := g.coords(x, y)
	for dy := -1; dy <= 1; dy++ {
		ny := cy + dy
		if ny < 0 || ny >= g.rows {
			continue
		}
		for dx := -1; dx <= 1; dx++ {
			nx := cx + dx
			if nx < 0 || nx >= g.cols {
				continue
			}
			for _, idx := range g.buckets[ny*g.cols+nx] {
				fn(idx)
			}
		}
	}
}
