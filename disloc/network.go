package disloc

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/cluster"
)

// Node is one endpoint of a dislocation segment. Nodes meeting at a
// junction are linked into a circular ring.
type Node struct {
	segment *Segment
	forward bool

	// ring points to the next node of the junction, itself for a dangling
	// node.
	ring *Node
}

// Segment returns the owning segment.
func (n *Node) Segment() *Segment { return n.segment }

// IsForward reports whether this is the segment's forward (line end) node.
func (n *Node) IsForward() bool { return n.forward }

// Position returns the line endpoint the node sits at.
func (n *Node) Position() r3.Vec {
	if n.forward {
		return n.segment.Line[len(n.segment.Line)-1]
	}
	return n.segment.Line[0]
}

// NextRingNode returns the next node of the junction ring.
func (n *Node) NextRingNode() *Node { return n.ring }

// CountArms returns the number of segment arms meeting at this junction.
func (n *Node) CountArms() int {
	arms := 1
	for cur := n.ring; cur != n; cur = cur.ring {
		arms++
	}
	return arms
}

// IsDangling reports whether the node connects to no other segment.
func (n *Node) IsDangling() bool { return n.ring == n }

// ConnectNodes merges the junction rings of two nodes.
func ConnectNodes(a, b *Node) {
	a.ring, b.ring = b.ring, a.ring
}

// Segment is one dislocation line.
type Segment struct {
	ID int

	// BurgersVector is the true Burgers vector in the frame of Cluster.
	BurgersVector r3.Vec
	Cluster       *cluster.Cluster

	// Line is the polyline sampling, continuous in space (never wrapped
	// back into the cell). CoreSize holds the defect core atom count per
	// point.
	Line     []r3.Vec
	CoreSize []int

	// Nodes are the backward (index 0) and forward (index 1) endpoints.
	Nodes [2]*Node

	// ReplacedBy forwards to the surviving segment after a merge, nil for
	// live segments.
	ReplacedBy *Segment

	discarded bool
}

// AdoptNode attaches n as the segment's endpoint end (0 backward, 1
// forward), rebinding the node to this segment. The node keeps its
// junction ring.
func (s *Segment) AdoptNode(end int, n *Node) {
	s.Nodes[end] = n
	n.segment = s
	n.forward = end == 1
}

// Resolved follows the ReplacedBy chain to the surviving segment.
func (s *Segment) Resolved() *Segment {
	cur := s
	for cur.ReplacedBy != nil {
		cur = cur.ReplacedBy
	}
	return cur
}

// BackwardNode returns the line start node.
func (s *Segment) BackwardNode() *Node { return s.Nodes[0] }

// ForwardNode returns the line end node.
func (s *Segment) ForwardNode() *Node { return s.Nodes[1] }

// IsClosedLoop reports whether the segment's two endpoints are joined into
// a two-arm junction, forming a loop.
func (s *Segment) IsClosedLoop() bool {
	return s.Nodes[0].ring == s.Nodes[1] && s.Nodes[1].ring == s.Nodes[0]
}

// IsInfiniteLine reports whether the segment is a closed loop whose ends do
// not coincide in space, i.e. a line wrapping through a periodic boundary.
func (s *Segment) IsInfiniteLine(simCell *cell.Cell) bool {
	if !s.IsClosedLoop() {
		return false
	}
	// The endpoints of an infinite line differ by a whole cell translation.
	d := r3.Sub(s.Line[len(s.Line)-1], s.Line[0])
	return r3.Norm(d) > 1e-6 && r3.Norm(simCell.WrapVector(d)) < 1e-6
}

// Length returns the polyline arc length.
func (s *Segment) Length() float64 {
	var l float64
	for i := 1; i < len(s.Line); i++ {
		l += r3.Norm(r3.Sub(s.Line[i], s.Line[i-1]))
	}
	return l
}

// PointOnLine returns the position at normalized arc-length parameter t in
// [0, 1].
func (s *Segment) PointOnLine(t float64) r3.Vec {
	if len(s.Line) == 0 {
		return r3.Vec{}
	}
	if t <= 0 {
		return s.Line[0]
	}
	target := t * s.Length()
	for i := 1; i < len(s.Line); i++ {
		step := r3.Norm(r3.Sub(s.Line[i], s.Line[i-1]))
		if target <= step && step > 0 {
			return r3.Add(s.Line[i-1], r3.Scale(target/step, r3.Sub(s.Line[i], s.Line[i-1])))
		}
		target -= step
	}
	return s.Line[len(s.Line)-1]
}

// Network owns the segments of one analysis.
type Network struct {
	simCell  *cell.Cell
	segments []*Segment
	nextID   int
}

// NewNetwork returns an empty network for the given cell.
func NewNetwork(simCell *cell.Cell) *Network {
	return &Network{simCell: simCell, nextID: 1}
}

// Cell returns the simulation cell.
func (nw *Network) Cell() *cell.Cell { return nw.simCell }

// CreateSegment appends a segment with two fresh dangling nodes.
func (nw *Network) CreateSegment(burgers r3.Vec, cl *cluster.Cluster) *Segment {
	s := &Segment{ID: nw.nextID, BurgersVector: burgers, Cluster: cl}
	nw.nextID++
	for i := range s.Nodes {
		n := &Node{segment: s, forward: i == 1}
		n.ring = n
		s.Nodes[i] = n
	}
	nw.segments = append(nw.segments, s)
	return s
}

// DiscardSegment removes a segment from the network. Nodes of the segment
// still spliced into a junction ring are unlinked; nodes adopted by another
// segment are left alone.
func (nw *Network) DiscardSegment(s *Segment) {
	for _, n := range s.Nodes {
		if n == nil || n.segment != s || n.ring == n {
			continue
		}
		pred := n.ring
		for pred.ring != n {
			pred = pred.ring
		}
		pred.ring = n.ring
		n.ring = n
	}
	s.discarded = true
}

// Segments returns the live segments in creation order.
func (nw *Network) Segments() []*Segment {
	out := make([]*Segment, 0, len(nw.segments))
	for _, s := range nw.segments {
		if !s.discarded {
			out = append(out, s)
		}
	}
	return out
}

// TotalLineLength sums the length of all live segments.
func (nw *Network) TotalLineLength() float64 {
	var l float64
	for _, s := range nw.Segments() {
		l += s.Length()
	}
	return l
}
