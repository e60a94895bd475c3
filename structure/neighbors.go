package structure

import (
	"context"
	"math"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/lattice"
)

// NewAnalyzer validates the inputs and prepares an analyzer. No heavy work
// happens until IdentifyStructures is called.
func NewAnalyzer(positions []r3.Vec, simCell *cell.Cell, input lattice.StructureType, opts ...Option) (*Analyzer, error) {
	if len(positions) == 0 {
		return nil, ErrNoAtoms
	}
	if simCell == nil {
		return nil, ErrNilCell
	}
	if lattice.TemplateOf(input) == nil {
		return nil, ErrUnknownStructure
	}
	o := options{tol: DefaultTolerances()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.selection != nil && len(o.selection) != len(positions) {
		return nil, ErrBadSelection
	}
	if o.clusterIDs != nil && len(o.clusterIDs) != len(positions) {
		return nil, ErrBadClusterIDs
	}
	return &Analyzer{
		positions: positions,
		simCell:   simCell,
		input:     input,
		opts:      o,
		atoms:     make([]atomState, len(positions)),
		graph:     cluster.NewGraph(),
	}, nil
}

// selected reports whether atom i participates in the analysis.
func (a *Analyzer) selected(i int) bool {
	return a.opts.selection == nil || a.opts.selection[i]
}

// checkpoint performs the bounded-granularity cancellation and progress
// update for loop counter i out of total.
func (a *Analyzer) checkpoint(ctx context.Context, i, total int) error {
	if i%progressGranularity != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if a.opts.progress != nil {
		a.opts.progress(i, total)
	}
	return nil
}

// binGrid is a uniform cell-space binning of the atoms used for cutoff
// neighbor queries.
type binGrid struct {
	simCell *cell.Cell
	cutoff  float64
	n       [3]int     // bins per direction
	lo, hi  [3]float64 // reduced-coordinate bounds (non-periodic dims)
	bins    [][]int32
	reduced []r3.Vec
}

func newBinGrid(positions []r3.Vec, simCell *cell.Cell, cutoff float64) *binGrid {
	g := &binGrid{simCell: simCell, cutoff: cutoff, reduced: make([]r3.Vec, len(positions))}
	for d := 0; d < 3; d++ {
		g.lo[d], g.hi[d] = 0, 1
	}
	for i, p := range positions {
		red := simCell.AbsoluteToReduced(p)
		red = r3.Vec{X: wrapCoord(red.X, simCell.Periodic(0)), Y: wrapCoord(red.Y, simCell.Periodic(1)), Z: wrapCoord(red.Z, simCell.Periodic(2))}
		g.reduced[i] = red
		for d := 0; d < 3; d++ {
			c := vecComponent(red, d)
			if c < g.lo[d] {
				g.lo[d] = c
			}
			if c > g.hi[d] {
				g.hi[d] = c
			}
		}
	}
	for d := 0; d < 3; d++ {
		width := g.simCell.PerpendicularWidth(d) * (g.hi[d] - g.lo[d])
		n := int(math.Floor(width / cutoff))
		if n < 1 {
			n = 1
		}
		if n > 256 {
			n = 256
		}
		g.n[d] = n
	}
	g.bins = make([][]int32, g.n[0]*g.n[1]*g.n[2])
	for i := range positions {
		g.bins[g.binIndexOf(i)] = append(g.bins[g.binIndexOf(i)], int32(i))
	}
	return g
}

func wrapCoord(c float64, periodic bool) float64 {
	if !periodic {
		return c
	}
	c -= math.Floor(c)
	if c >= 1 {
		c = 0
	}
	return c
}

func vecComponent(v r3.Vec, d int) float64 {
	switch d {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}

func (g *binGrid) binCoord(i, d int) int {
	span := g.hi[d] - g.lo[d]
	if span <= 0 {
		return 0
	}
	b := int(float64(g.n[d]) * (vecComponent(g.reduced[i], d) - g.lo[d]) / span)
	if b < 0 {
		b = 0
	}
	if b >= g.n[d] {
		b = g.n[d] - 1
	}
	return b
}

func (g *binGrid) binIndexOf(i int) int {
	return (g.binCoord(i, 2)*g.n[1]+g.binCoord(i, 1))*g.n[0] + g.binCoord(i, 0)
}

// neighborBins appends the distinct bin coordinates {b-1, b, b+1} along dim,
// wrapped for periodic directions.
func (g *binGrid) neighborBins(b, d int, out []int) []int {
	for off := -1; off <= 1; off++ {
		c := b + off
		if g.simCell.Periodic(d) {
			c = ((c % g.n[d]) + g.n[d]) % g.n[d]
		} else if c < 0 || c >= g.n[d] {
			continue
		}
		dup := false
		for _, e := range out {
			if e == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out
}

// visit calls fn for every atom j != i within the cutoff of atom i, with the
// minimum-image displacement from i to j.
func (g *binGrid) visit(positions []r3.Vec, i int, fn func(j int, delta r3.Vec, dist float64)) {
	var xs, ys, zs [3]int
	bx := g.neighborBins(g.binCoord(i, 0), 0, xs[:0])
	by := g.neighborBins(g.binCoord(i, 1), 1, ys[:0])
	bz := g.neighborBins(g.binCoord(i, 2), 2, zs[:0])
	cut2 := g.cutoff * g.cutoff
	for _, z := range bz {
		for _, y := range by {
			for _, x := range bx {
				for _, j := range g.bins[(z*g.n[1]+y)*g.n[0]+x] {
					if int(j) == i {
						continue
					}
					delta := g.simCell.WrapVector(r3.Sub(positions[j], positions[i]))
					if d2 := r3.Norm2(delta); d2 <= cut2 {
						fn(int(j), delta, math.Sqrt(d2))
					}
				}
			}
		}
	}
}

// estimateNearestDistance measures the median first-neighbor distance using a
// density-derived probe radius.
func (a *Analyzer) estimateNearestDistance(ctx context.Context) error {
	probe := 1.75 * math.Cbrt(a.simCell.Volume()/float64(len(a.positions)))
	grid := newBinGrid(a.positions, a.simCell, probe)
	nearest := make([]float64, 0, len(a.positions))
	for i := range a.positions {
		if err := a.checkpoint(ctx, i, len(a.positions)); err != nil {
			return err
		}
		best := math.Inf(1)
		grid.visit(a.positions, i, func(j int, delta r3.Vec, dist float64) {
			if dist < best && dist > 0 {
				best = dist
			}
		})
		if !math.IsInf(best, 1) {
			nearest = append(nearest, best)
		}
	}
	if len(nearest) == 0 {
		// Isolated atoms everywhere; fall back to the probe radius so the
		// pipeline degrades to "all atoms are Other" instead of dividing by
		// zero.
		a.nearestDistance = probe
		return nil
	}
	sort.Float64s(nearest)
	a.nearestDistance = nearest[len(nearest)/2]
	return nil
}

// buildNeighborLists fills the per-atom neighbor lists using the
// template-derived cutoff.
func (a *Analyzer) buildNeighborLists(ctx context.Context) error {
	tmpl := lattice.TemplateOf(a.input)
	cutoff := tmpl.CutoffFactor * a.nearestDistance
	a.maxNeighborDistance = cutoff
	a.latticeConstant = a.nearestDistance / tmpl.NearestDistance

	grid := newBinGrid(a.positions, a.simCell, cutoff)
	type candidate struct {
		index int32
		dist  float64
	}
	scratch := make([]candidate, 0, lattice.MaxNeighbors*2)
	for i := range a.positions {
		if err := a.checkpoint(ctx, i, len(a.positions)); err != nil {
			return err
		}
		scratch = scratch[:0]
		grid.visit(a.positions, i, func(j int, delta r3.Vec, dist float64) {
			scratch = append(scratch, candidate{index: int32(j), dist: dist})
		})
		sort.Slice(scratch, func(x, y int) bool {
			if scratch[x].dist != scratch[y].dist {
				return scratch[x].dist < scratch[y].dist
			}
			return scratch[x].index < scratch[y].index
		})
		limit := len(scratch)
		if limit > lattice.MaxNeighbors+4 {
			limit = lattice.MaxNeighbors + 4
		}
		st := &a.atoms[i]
		st.neighbors = make([]int32, limit)
		st.slots = make([]int8, limit)
		for k := 0; k < limit; k++ {
			st.neighbors[k] = scratch[k].index
			st.slots[k] = -1
		}
	}
	return nil
}

// neighborVector returns the minimum-image displacement from atom i to its
// k-th neighbor.
func (a *Analyzer) neighborVector(i, k int) r3.Vec {
	j := int(a.atoms[i].neighbors[k])
	return a.simCell.WrapVector(r3.Sub(a.positions[j], a.positions[i]))
}
