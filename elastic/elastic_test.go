package elastic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/linalg"
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

// buildMapping runs the full pipeline up to the elastic mapping.
func buildMapping(t *testing.T, positions []r3.Vec, c *cell.Cell) (*structure.Analyzer, *tessellation.Tessellation, *Mapping) {
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

	m := NewMapping(a, tess)
	require.NoError(t, m.GenerateTessellationEdges(ctx))
	require.NoError(t, m.AssignVerticesToClusters(ctx))
	require.NoError(t, m.AssignIdealVectorsToEdges(ctx, DefaultPathDepth))
	return a, tess, m
}

func TestMapping_PerfectCrystalAllCompatible(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	_, tess, m := buildMapping(t, positions, c)

	require.Positive(t, m.EdgeCount())
	for e := 0; e < m.EdgeCount(); e++ {
		require.True(t, m.EdgeAssigned(e), "edge %d unassigned", e)
	}
	for ci := 0; ci < tess.CellCount(); ci++ {
		if tess.IsGhostCell(ci) {
			continue
		}
		require.True(t, m.IsCompatible(ci, 1e-3), "cell %d incompatible", ci)
	}
}

func TestMapping_DirectBondVector(t *testing.T) {
	positions, c := makeFCC(3, 3.6)
	a, tess, m := buildMapping(t, positions, c)

	// For a direct neighbor bond the assigned cluster vector must map back
	// onto the physical bond under the cluster orientation.
	checked := 0
	for e := 0; e < m.EdgeCount() && checked < 50; e++ {
		edge := m.edges[e]
		a1 := tess.VertexAtom(int(edge.Vertex1))
		a2 := tess.VertexAtom(int(edge.Vertex2))
		if a.NeighborIndex(a1, a2) < 0 {
			continue
		}
		require.True(t, m.EdgeAssigned(e))
		cl := m.VertexCluster(int(edge.Vertex1))
		require.NotNil(t, cl)
		phys := cl.Orientation.MulVec(m.EdgeClusterVector(e, 1))
		want := c.WrapVector(r3.Sub(positions[a2], positions[a1]))
		require.InDelta(t, 0, r3.Norm(r3.Sub(phys, want)), 1e-6)
		checked++
	}
	require.Positive(t, checked)
}

func TestMapping_ReversedEdgeNegates(t *testing.T) {
	positions, c := makeFCC(3, 3.6)
	_, _, m := buildMapping(t, positions, c)
	for e := 0; e < m.EdgeCount() && e < 100; e++ {
		if !m.EdgeAssigned(e) {
			continue
		}
		fwd := m.EdgeClusterVector(e, 1)
		rev := m.EdgeClusterVector(e, -1)
		// In a single perfect cluster all transitions are the identity, so
		// the reverse traversal is the exact negation.
		require.InDelta(t, 0, r3.Norm(r3.Add(fwd, rev)), 1e-9)
		require.True(t, linalg.EqualsIdentity(m.EdgeTransition(e, 1).TM, 1e-9))
	}
}

func TestMapping_VacancyMarksBadCells(t *testing.T) {
	positions, c := makeFCC(4, 3.6)
	positions = positions[1:]
	_, tess, m := buildMapping(t, positions, c)

	good, bad := 0, 0
	for ci := 0; ci < tess.CellCount(); ci++ {
		if tess.IsGhostCell(ci) {
			continue
		}
		if m.IsCompatible(ci, 1e-3) {
			good++
		} else {
			bad++
		}
	}
	require.Positive(t, good, "crystal far from the vacancy must stay compatible")
	require.Positive(t, bad, "cells at the vacancy must be incompatible")
}

func TestPathFinder_TwoHops(t *testing.T) {
	positions, c := makeFCC(3, 3.6)
	ctx := context.Background()
	a, err := structure.NewAnalyzer(positions, c, lattice.FCC)
	require.NoError(t, err)
	require.NoError(t, a.IdentifyStructures(ctx))
	require.NoError(t, a.BuildClusters(ctx))
	require.NoError(t, a.ConnectClusters(ctx))

	finder := newPathFinder(a, DefaultPathDepth)
	// Walk two bonds by hand and compare against the finder's result.
	a0 := 0
	a1 := a.Neighbor(a0, 0)
	var a2 int
	for k := 0; k < a.NumNeighbors(a1); k++ {
		if n := a.Neighbor(a1, k); n != a0 && a.NeighborIndex(a0, n) < 0 {
			a2 = n
			break
		}
	}
	vec, cl, ok := finder.findVector(a0, a2)
	require.True(t, ok)
	require.NotNil(t, cl)
	phys := cl.Orientation.MulVec(vec)
	want := c.WrapVector(r3.Sub(positions[a2], positions[a0]))
	require.InDelta(t, 0, r3.Norm(r3.Sub(phys, want)), 1e-6)
}
