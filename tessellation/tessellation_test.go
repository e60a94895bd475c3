package tessellation

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/linalg"
)

func fccPositions(n int, a0 float64) ([]r3.Vec, *cell.Cell) {
	basis := []r3.Vec{
		{X: 0, Y: 0, Z: 0},
		{X: 0, Y: 0.5, Z: 0.5},
		{X: 0.5, Y: 0, Z: 0.5},
		{X: 0.5, Y: 0.5, Z: 0},
	}
	var positions []r3.Vec
	for ix := 0; ix < n; ix++ {
		for iy := 0; iy < n; iy++ {
			for iz := 0; iz < n; iz++ {
				for _, b := range basis {
					positions = append(positions, r3.Vec{
						X: a0 * (float64(ix) + b.X),
						Y: a0 * (float64(iy) + b.Y),
						Z: a0 * (float64(iz) + b.Z),
					})
				}
			}
		}
	}
	l := a0 * float64(n)
	c, err := cell.NewOrthorhombic(l, l, l, [3]bool{true, true, true})
	if err != nil {
		panic(err)
	}
	return positions, c
}

// lcg is a tiny deterministic generator for scattered test points.
func lcg(state *uint64) float64 {
	*state = *state*6364136223846793005 + 1442695040888963407
	return float64(*state>>11) / float64(1<<53)
}

func TestGenerate_CellTooSmall(t *testing.T) {
	positions, c := fccPositions(3, 1.0)
	_, err := Generate(context.Background(), positions, c, 2.0, nil)
	if !errors.Is(err, cell.ErrCellTooSmall) {
		t.Fatalf("want ErrCellTooSmall, got %v", err)
	}
}

func TestGenerate_PeriodicVolume(t *testing.T) {
	positions, c := fccPositions(3, 1.0)
	tess, err := Generate(context.Background(), positions, c, 1.2, nil)
	if err != nil {
		t.Fatal(err)
	}
	// The primary copies of the tetrahedra must tile the cell exactly once.
	var vol float64
	primary := 0
	for ci := 0; ci < tess.CellCount(); ci++ {
		if v := tess.CellVolume(ci); v <= 0 {
			t.Fatalf("cell %d has non-positive volume %g", ci, v)
		}
		if tess.IsGhostCell(ci) {
			continue
		}
		primary++
		vol += tess.CellVolume(ci)
	}
	if primary == 0 {
		t.Fatal("no primary cells")
	}
	if math.Abs(vol-c.Volume()) > 1e-6*c.Volume() {
		t.Fatalf("primary cell volumes sum to %g, want %g", vol, c.Volume())
	}
}

func TestGenerate_PeriodicFCCLocal(t *testing.T) {
	positions, c := fccPositions(4, 1.0)
	tess, err := Generate(context.Background(), positions, c, 1.2, nil)
	if err != nil {
		t.Fatal(err)
	}
	// The Delaunay cells of a face-centered lattice are near-regular
	// tetrahedra and split octahedra; no edge exceeds the conventional cell
	// edge and no cell collapses flat. Violations mean a corrupt insertion
	// cavity or an unbroken periodic-image cosphericity.
	for ci := 0; ci < tess.CellCount(); ci++ {
		for _, ev := range EdgeVertices {
			a := tess.VertexPos(tess.CellVertex(ci, ev[0]))
			b := tess.VertexPos(tess.CellVertex(ci, ev[1]))
			if l := r3.Norm(r3.Sub(a, b)); l > 1.05 {
				t.Fatalf("cell %d has edge of length %g", ci, l)
			}
		}
		if v := tess.CellVolume(ci); v < 1e-6 {
			t.Fatalf("cell %d has volume %g", ci, v)
		}
	}
}

func TestGenerate_AdjacencyMirrors(t *testing.T) {
	positions, c := fccPositions(2, 1.0)
	tess, err := Generate(context.Background(), positions, c, 0.9, nil)
	if err != nil {
		t.Fatal(err)
	}
	for ci := 0; ci < tess.CellCount(); ci++ {
		for f := 0; f < 4; f++ {
			ac, af := tess.AdjacentCell(ci, f)
			if ac < 0 {
				continue
			}
			back, _ := tess.AdjacentCell(ac, af)
			if back != ci {
				t.Fatalf("adjacency not symmetric: %d/%d -> %d/%d -> %d", ci, f, ac, af, back)
			}
			// The shared facet must reference the same three vertices.
			mine := map[int]bool{}
			for _, lv := range FacetVertices[f] {
				mine[tess.CellVertex(ci, lv)] = true
			}
			for _, lv := range FacetVertices[af] {
				if !mine[tess.CellVertex(ac, lv)] {
					t.Fatalf("facet vertex mismatch between cells %d and %d", ci, ac)
				}
			}
		}
	}
}

func TestGenerate_DelaunayProperty(t *testing.T) {
	// Scattered points in a non-periodic box: no vertex may fall inside
	// another tetrahedron's circumsphere.
	state := uint64(7)
	var positions []r3.Vec
	for i := 0; i < 60; i++ {
		positions = append(positions, r3.Vec{X: 10 * lcg(&state), Y: 10 * lcg(&state), Z: 10 * lcg(&state)})
	}
	c, err := cell.NewOrthorhombic(10, 10, 10, [3]bool{false, false, false})
	if err != nil {
		t.Fatal(err)
	}
	tess, err := Generate(context.Background(), positions, c, 1.0, nil)
	if err != nil {
		t.Fatal(err)
	}
	for ci := 0; ci < tess.CellCount(); ci++ {
		center, r2, ok := circumsphere(tess, ci)
		if !ok {
			continue
		}
		for v := 0; v < tess.VertexCount(); v++ {
			d2 := r3.Norm2(r3.Sub(tess.VertexPos(v), center))
			if d2 < r2*(1-1e-7) {
				t.Fatalf("vertex %d inside circumsphere of cell %d", v, ci)
			}
		}
	}
}

// circumsphere solves for the circumcenter of cell ci.
func circumsphere(tess *Tessellation, ci int) (r3.Vec, float64, bool) {
	a := tess.VertexPos(tess.CellVertex(ci, 0))
	m := r3.NewMat(nil)
	rhs := [3]float64{}
	for r := 0; r < 3; r++ {
		q := tess.VertexPos(tess.CellVertex(ci, r+1))
		d := r3.Sub(q, a)
		m.Set(r, 0, 2*d.X)
		m.Set(r, 1, 2*d.Y)
		m.Set(r, 2, 2*d.Z)
		rhs[r] = r3.Norm2(q) - r3.Norm2(a)
	}
	inv, err := linalg.Inverse(m)
	if err != nil {
		return r3.Vec{}, 0, false
	}
	center := inv.MulVec(r3.Vec{X: rhs[0], Y: rhs[1], Z: rhs[2]})
	return center, r3.Norm2(r3.Sub(center, a)), true
}

func TestGenerate_Selection(t *testing.T) {
	positions, c := fccPositions(3, 1.0)
	mask := make([]bool, len(positions))
	for i := range mask {
		mask[i] = i%2 == 0
	}
	tess, err := Generate(context.Background(), positions, c, 1.2, mask)
	if err != nil {
		t.Fatal(err)
	}
	for v := 0; v < tess.VertexCount(); v++ {
		if tess.VertexAtom(v)%2 != 0 {
			t.Fatalf("unselected atom %d present in tessellation", tess.VertexAtom(v))
		}
	}
}

func TestGenerate_Cancellation(t *testing.T) {
	positions, c := fccPositions(3, 1.0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Generate(ctx, positions, c, 1.2, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}
