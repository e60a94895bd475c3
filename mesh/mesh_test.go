package mesh

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
)

// buildTetrahedron creates a closed tetrahedral surface.
func buildTetrahedron(t *testing.T) *Mesh {
	t.Helper()
	m := New()
	v0 := m.CreateVertex(r3.Vec{X: 0, Y: 0, Z: 0})
	v1 := m.CreateVertex(r3.Vec{X: 1, Y: 0, Z: 0})
	v2 := m.CreateVertex(r3.Vec{X: 0, Y: 1, Z: 0})
	v3 := m.CreateVertex(r3.Vec{X: 0, Y: 0, Z: 1})
	m.CreateFace(v0, v2, v1)
	m.CreateFace(v0, v1, v3)
	m.CreateFace(v1, v2, v3)
	m.CreateFace(v2, v0, v3)
	return m
}

func TestConnectOppositeHalfedges_ClosesTetrahedron(t *testing.T) {
	m := buildTetrahedron(t)
	if err := m.ConnectOppositeHalfedges(); err != nil {
		t.Fatal(err)
	}
	if err := m.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := len(m.Edges); got != 12 {
		t.Fatalf("want 12 half-edges, got %d", got)
	}
}

func TestConnectOppositeHalfedges_OpenSurface(t *testing.T) {
	m := New()
	v0 := m.CreateVertex(r3.Vec{})
	v1 := m.CreateVertex(r3.Vec{X: 1})
	v2 := m.CreateVertex(r3.Vec{Y: 1})
	m.CreateFace(v0, v1, v2)
	err := m.ConnectOppositeHalfedges()
	if !errors.Is(err, ErrNonManifold) {
		t.Fatalf("want ErrNonManifold, got %v", err)
	}
}

func TestFindEdge(t *testing.T) {
	m := buildTetrahedron(t)
	e := m.FindEdge(0, 2)
	if e == InvalidIndex {
		t.Fatal("edge 0->2 not found")
	}
	if m.Edges[e].Origin != 0 || m.Edges[e].Dest != 2 {
		t.Fatalf("wrong edge returned: %+v", m.Edges[e])
	}
	if m.FindEdge(1, 1) != InvalidIndex {
		t.Fatal("nonexistent edge found")
	}
}

func TestValidate_DetectsBrokenOpposite(t *testing.T) {
	m := buildTetrahedron(t)
	if err := m.ConnectOppositeHalfedges(); err != nil {
		t.Fatal(err)
	}
	m.Edges[0].Opposite = InvalidIndex
	if err := m.Validate(); !errors.Is(err, ErrNonManifold) {
		t.Fatalf("want ErrNonManifold, got %v", err)
	}
}

func TestSmooth_ShrinksTowardCentroidBounded(t *testing.T) {
	m := buildTetrahedron(t)
	if err := m.ConnectOppositeHalfedges(); err != nil {
		t.Fatal(err)
	}
	c, err := cell.New(
		r3.Vec{X: 10}, r3.Vec{Y: 10}, r3.Vec{Z: 10},
		r3.Vec{X: -5, Y: -5, Z: -5}, [3]bool{false, false, false})
	if err != nil {
		t.Fatal(err)
	}
	var before r3.Vec
	for _, v := range m.Vertices {
		before = r3.Add(before, v.Pos)
	}
	m.Smooth(8, c)
	var after r3.Vec
	for _, v := range m.Vertices {
		after = r3.Add(after, v.Pos)
	}
	// The pass-band filter must not collapse the surface: vertices stay
	// within the original bounding box and the centroid barely moves.
	if r3.Norm(r3.Sub(before, after)) > 0.5 {
		t.Fatalf("centroid moved too far: %v -> %v", before, after)
	}
	for i, v := range m.Vertices {
		if math.Abs(v.Pos.X) > 1.5 || math.Abs(v.Pos.Y) > 1.5 || math.Abs(v.Pos.Z) > 1.5 {
			t.Fatalf("vertex %d escaped: %v", i, v.Pos)
		}
	}
}
