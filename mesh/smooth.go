package mesh

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
)

// Taubin smoothing constants. The shrink and inflate factors form a
// pass-band filter that smooths without collapsing the surface.
const (
	smoothLambda = 0.5
	smoothKPB    = 0.1
)

// Smooth applies the given number of Taubin smoothing iterations to the
// mesh vertices. Neighbor displacements are taken through the minimum image
// convention of simCell so periodic surfaces smooth correctly.
func (m *Mesh) Smooth(iterations int, simCell *cell.Cell) {
	mu := 1.0 / (smoothKPB - 1.0/smoothLambda)
	laplacian := make([]r3.Vec, len(m.Vertices))
	for i := 0; i < iterations; i++ {
		m.smoothPass(smoothLambda, simCell, laplacian)
		m.smoothPass(mu, simCell, laplacian)
	}
}

func (m *Mesh) smoothPass(factor float64, simCell *cell.Cell, laplacian []r3.Vec) {
	counts := make([]int, len(m.Vertices))
	for i := range laplacian {
		laplacian[i] = r3.Vec{}
	}
	for ei := range m.Edges {
		e := &m.Edges[ei]
		d := simCell.WrapVector(r3.Sub(m.Vertices[e.Dest].Pos, m.Vertices[e.Origin].Pos))
		laplacian[e.Origin] = r3.Add(laplacian[e.Origin], d)
		counts[e.Origin]++
	}
	for v := range m.Vertices {
		if counts[v] == 0 {
			continue
		}
		shift := r3.Scale(factor/float64(counts[v]), laplacian[v])
		m.Vertices[v].Pos = r3.Add(m.Vertices[v].Pos, shift)
	}
}
