package disloc

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
)

func testCell(t *testing.T) *cell.Cell {
	t.Helper()
	c, err := cell.NewOrthorhombic(20, 20, 20, [3]bool{true, true, true})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestCreateAndDiscardSegment(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s1 := nw.CreateSegment(r3.Vec{X: 0.5, Y: 0.5}, nil)
	s2 := nw.CreateSegment(r3.Vec{X: 0.5, Z: 0.5}, nil)
	if s1.ID == s2.ID {
		t.Fatal("segment ids not unique")
	}
	if len(nw.Segments()) != 2 {
		t.Fatalf("want 2 segments, got %d", len(nw.Segments()))
	}
	if !s1.BackwardNode().IsDangling() || !s1.ForwardNode().IsDangling() {
		t.Fatal("fresh nodes must be dangling")
	}
	nw.DiscardSegment(s1)
	segs := nw.Segments()
	if len(segs) != 1 || segs[0] != s2 {
		t.Fatalf("discard failed: %v", segs)
	}
}

func TestJunctionRings(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s1 := nw.CreateSegment(r3.Vec{}, nil)
	s2 := nw.CreateSegment(r3.Vec{}, nil)
	s3 := nw.CreateSegment(r3.Vec{}, nil)

	ConnectNodes(s1.ForwardNode(), s2.BackwardNode())
	if got := s1.ForwardNode().CountArms(); got != 2 {
		t.Fatalf("want 2 arms, got %d", got)
	}
	ConnectNodes(s1.ForwardNode(), s3.BackwardNode())
	if got := s2.BackwardNode().CountArms(); got != 3 {
		t.Fatalf("want 3 arms, got %d", got)
	}
	if s1.BackwardNode().CountArms() != 1 {
		t.Fatal("far end must stay dangling")
	}
}

func TestDiscardSegment_UnlinksJunctionRing(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s1 := nw.CreateSegment(r3.Vec{}, nil)
	s2 := nw.CreateSegment(r3.Vec{}, nil)
	s3 := nw.CreateSegment(r3.Vec{}, nil)

	ConnectNodes(s1.ForwardNode(), s2.BackwardNode())
	ConnectNodes(s1.ForwardNode(), s3.BackwardNode())
	nw.DiscardSegment(s2)

	if !s2.BackwardNode().IsDangling() {
		t.Fatal("discarded node must leave the ring")
	}
	if got := s1.ForwardNode().CountArms(); got != 2 {
		t.Fatalf("want 2 arms after discard, got %d", got)
	}
	for cur := s1.ForwardNode().NextRingNode(); cur != s1.ForwardNode(); cur = cur.NextRingNode() {
		if cur.Segment() == s2 {
			t.Fatal("ring still references the discarded segment")
		}
	}
}

func TestReplacedByResolution(t *testing.T) {
	nw := NewNetwork(testCell(t))
	a := nw.CreateSegment(r3.Vec{}, nil)
	b := nw.CreateSegment(r3.Vec{}, nil)
	c := nw.CreateSegment(r3.Vec{}, nil)
	a.ReplacedBy = b
	b.ReplacedBy = c
	if a.Resolved() != c {
		t.Fatal("forwarding chain not resolved")
	}
	if c.Resolved() != c {
		t.Fatal("live segment must resolve to itself")
	}
}

func TestSegmentLengthAndInterpolation(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s := nw.CreateSegment(r3.Vec{}, nil)
	s.Line = []r3.Vec{{X: 0}, {X: 3}, {X: 3, Y: 4}}
	s.CoreSize = []int{4, 4, 4}
	if got := s.Length(); math.Abs(got-7) > 1e-12 {
		t.Fatalf("want length 7, got %g", got)
	}
	p := s.PointOnLine(3.0 / 7.0)
	if r3.Norm(r3.Sub(p, r3.Vec{X: 3})) > 1e-9 {
		t.Fatalf("midpoint interpolation off: %v", p)
	}
	if r3.Norm(r3.Sub(s.PointOnLine(1), r3.Vec{X: 3, Y: 4})) > 1e-9 {
		t.Fatal("endpoint interpolation off")
	}
}

func TestClosedLoopDetection(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s := nw.CreateSegment(r3.Vec{}, nil)
	s.Line = []r3.Vec{{X: 1}, {X: 2, Y: 1}, {X: 1, Y: 2}, {X: 1}}
	s.CoreSize = []int{4, 4, 4, 4}
	if s.IsClosedLoop() {
		t.Fatal("unconnected segment reported as loop")
	}
	ConnectNodes(s.ForwardNode(), s.BackwardNode())
	if !s.IsClosedLoop() {
		t.Fatal("loop not detected")
	}
	if s.IsInfiniteLine(nw.Cell()) {
		t.Fatal("coinciding endpoints are not an infinite line")
	}

	inf := nw.CreateSegment(r3.Vec{}, nil)
	inf.Line = []r3.Vec{{X: 1}, {X: 11}, {X: 21}}
	inf.CoreSize = []int{4, 4, 4}
	ConnectNodes(inf.ForwardNode(), inf.BackwardNode())
	if !inf.IsInfiniteLine(nw.Cell()) {
		t.Fatal("periodic line not detected as infinite")
	}
}

func TestSmoothLines_PinsJunctions(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s := nw.CreateSegment(r3.Vec{}, nil)
	// A zigzag line between fixed endpoints.
	for i := 0; i <= 16; i++ {
		y := 0.0
		if i%2 == 1 {
			y = 0.8
		}
		s.Line = append(s.Line, r3.Vec{X: float64(i), Y: y})
		s.CoreSize = append(s.CoreSize, 4)
	}
	start, end := s.Line[0], s.Line[len(s.Line)-1]
	before := s.Length()
	nw.SmoothLines(4, 0)
	if r3.Norm(r3.Sub(s.Line[0], start)) > 1e-12 || r3.Norm(r3.Sub(s.Line[len(s.Line)-1], end)) > 1e-12 {
		t.Fatal("endpoints moved")
	}
	if s.Length() >= before {
		t.Fatal("smoothing did not straighten the zigzag")
	}
}

func TestSmoothLines_Coarsening(t *testing.T) {
	nw := NewNetwork(testCell(t))
	s := nw.CreateSegment(r3.Vec{}, nil)
	for i := 0; i <= 40; i++ {
		s.Line = append(s.Line, r3.Vec{X: float64(i) * 0.25})
		s.CoreSize = append(s.CoreSize, 4)
	}
	points := len(s.Line)
	nw.SmoothLines(0, 4)
	if len(s.Line) >= points {
		t.Fatalf("coarsening did not reduce point count: %d -> %d", points, len(s.Line))
	}
	// A straight line must stay straight and keep its extent.
	if math.Abs(s.Length()-10) > 1e-6 {
		t.Fatalf("length changed: %g", s.Length())
	}
}
