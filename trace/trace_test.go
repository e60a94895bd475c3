package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/disloc"
	"github.com/katalvlaran/dxa/elastic"
	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/mesh"
	"github.com/katalvlaran/dxa/structure"
	"github.com/katalvlaran/dxa/tessellation"
)

func makeFCC(n int, a0 float64) ([]r3.Vec, *cell.Cell) {
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

// removeNearest drops the atom closest to p.
func removeNearest(positions []r3.Vec, c *cell.Cell, p r3.Vec) []r3.Vec {
	best, bestD := -1, 0.0
	for i, q := range positions {
		d := r3.Norm(c.WrapVector(r3.Sub(q, p)))
		if best < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return append(positions[:best:best], positions[best+1:]...)
}

// buildInterface runs the pipeline from raw positions up to the interface
// mesh.
func buildInterface(t *testing.T, positions []r3.Vec, c *cell.Cell) (*structure.Analyzer, *InterfaceMesh) {
	t.Helper()
	ctx := context.Background()
	a, err := structure.NewAnalyzer(positions, c, lattice.FCC)
	require.NoError(t, err)
	require.NoError(t, a.IdentifyStructures(ctx))
	require.NoError(t, a.BuildClusters(ctx))
	require.NoError(t, a.ConnectClusters(ctx))

	ghost := 1.5 * a.MaximumNeighborDistance()
	tess, err := tessellation.Generate(ctx, positions, c, ghost, nil)
	require.NoError(t, err)

	m := elastic.NewMapping(a, tess)
	require.NoError(t, m.GenerateTessellationEdges(ctx))
	require.NoError(t, m.AssignVerticesToClusters(ctx))
	require.NoError(t, m.AssignIdealVectorsToEdges(ctx, elastic.DefaultPathDepth))

	im, err := BuildInterfaceMesh(ctx, a, tess, m, 1e-3)
	require.NoError(t, err)
	return a, im
}

func TestBuildInterfaceMesh_PerfectCrystalSpaceFilling(t *testing.T) {
	positions, c := makeFCC(3, 3.6)
	_, im := buildInterface(t, positions, c)

	require.True(t, im.SpaceFillingGood)
	require.False(t, im.SpaceFillingBad)
	require.Empty(t, im.Mesh.Faces)

	tr := NewTracer(im, disloc.NewNetwork(c), DefaultMaxCircuitSize, DefaultMaxElongation)
	require.NoError(t, tr.Trace(context.Background()))
	require.Empty(t, tr.Network().Segments())

	dm, err := tr.EmitDefectMesh()
	require.NoError(t, err)
	require.Empty(t, dm.Faces)
}

func TestBuildInterfaceMesh_VacancyClosedManifold(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	center := r3.Scale(0.5, r3.Add(c.Vector(0), r3.Add(c.Vector(1), c.Vector(2))))
	positions = removeNearest(positions, c, center)
	_, im := buildInterface(t, positions, c)

	require.False(t, im.SpaceFillingGood)
	require.False(t, im.SpaceFillingBad)
	require.NotEmpty(t, im.Mesh.Faces)
	require.NoError(t, im.Mesh.Validate())

	// Every half-edge pairs with a reversed twin and carries a physical
	// vector matching its endpoints under the minimum image convention.
	for ei := range im.Mesh.Edges {
		e := &im.Mesh.Edges[ei]
		op := &im.Mesh.Edges[e.Opposite]
		require.Equal(t, e.Origin, op.Dest)
		require.Equal(t, e.Dest, op.Origin)

		d := r3.Sub(im.Mesh.Vertices[e.Dest].Pos, im.Mesh.Vertices[e.Origin].Pos)
		diff := r3.Sub(c.WrapVector(d), c.WrapVector(im.EdgePhysicalVector(ei)))
		require.InDelta(t, 0, r3.Norm(diff), 1e-9)
	}
}

func TestTrace_VacancyYieldsNoSegments(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	center := r3.Scale(0.5, r3.Add(c.Vector(0), r3.Add(c.Vector(1), c.Vector(2))))
	positions = removeNearest(positions, c, center)
	_, im := buildInterface(t, positions, c)

	tr := NewTracer(im, disloc.NewNetwork(c), DefaultMaxCircuitSize, DefaultMaxElongation)
	require.NoError(t, tr.Trace(context.Background()))

	// A vacancy carries no net Burgers vector, so no circuit survives the
	// seeding threshold and the surface stays unswept.
	require.Empty(t, tr.Network().Segments())
	dm, err := tr.EmitDefectMesh()
	require.NoError(t, err)
	require.Len(t, dm.Faces, len(im.Mesh.Faces))
	require.NoError(t, dm.Validate())
}

func TestEmitDefectMesh_CapsHoles(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	center := r3.Scale(0.5, r3.Add(c.Vector(0), r3.Add(c.Vector(1), c.Vector(2))))
	positions = removeNearest(positions, c, center)
	_, im := buildInterface(t, positions, c)

	nw := disloc.NewNetwork(c)
	tr := NewTracer(im, nw, DefaultMaxCircuitSize, DefaultMaxElongation)
	require.NoError(t, tr.Trace(context.Background()))

	// Knock one face out of the surface and hand it to a circuit whose
	// segment still dangles. The emitter must close the triangular hole
	// with a three-face fan whose apex sits on the dangling endpoint.
	e0 := im.Mesh.Faces[0].FirstEdge
	nodePos := r3.Add(im.Mesh.Vertices[im.Mesh.Edges[e0].Origin].Pos, r3.Vec{X: 0.3})
	seg := nw.CreateSegment(r3.Vec{Z: 1}, nil)
	seg.Line = []r3.Vec{nodePos}
	seg.CoreSize = []int{1}
	tr.circuits = append(tr.circuits, &circuit{seg: seg, forward: true})
	tr.faceOwner[0] = int32(len(tr.circuits) - 1)

	dm, err := tr.EmitDefectMesh()
	require.NoError(t, err)
	require.NoError(t, dm.Validate())
	require.Len(t, dm.Faces, len(im.Mesh.Faces)-1+3)

	apex := dm.Vertices[len(dm.Vertices)-1].Pos
	require.InDelta(t, 0, r3.Norm(r3.Sub(apex, nodePos)), 1e-9)

	for ei := range dm.Edges {
		require.NotEqual(t, int32(mesh.InvalidIndex), dm.Edges[ei].Opposite)
	}
}

func TestTrace_Cancellation(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	center := r3.Scale(0.5, r3.Add(c.Vector(0), r3.Add(c.Vector(1), c.Vector(2))))
	positions = removeNearest(positions, c, center)
	_, im := buildInterface(t, positions, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	tr := NewTracer(im, disloc.NewNetwork(c), DefaultMaxCircuitSize, DefaultMaxElongation)
	require.ErrorIs(t, tr.Trace(ctx), context.Canceled)
}
