package trace

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/disloc"
	"github.com/katalvlaran/dxa/linalg"
	"github.com/katalvlaran/dxa/mesh"
)

// Default Burgers circuit search limits.
const (
	DefaultMaxCircuitSize = 14
	DefaultMaxElongation  = 9
)

// burgersEps rejects closure noise. The shortest lattice Burgers vector is
// the fcc Shockley partial at about 0.41 lattice units.
const burgersEps = 0.1

// frameClosureEps bounds the deviation from identity tolerated when the
// cluster transitions around a trial circuit are concatenated. A larger
// deviation marks a disclination, which carries no Burgers vector.
const frameClosureEps = 1e-2

// circuit is one directed half-edge loop sweeping along a dislocation
// line. Each segment owns two circuits moving in opposite directions; a
// circuit always sweeps the faces on its left, so the pair never collides
// with itself.
type circuit struct {
	id      int32
	seg     *disloc.Segment
	forward bool
	edges   []int32

	// minLen triggers line point recording: a point is appended whenever
	// a shorten move takes the circuit below its previous minimum.
	minLen int

	points    []r3.Vec
	coreSizes []int

	// contacted is set once the circuit has touched a swept region and
	// its junction or loop closure has been recorded. The circuit keeps
	// sweeping afterwards to tile the surface, without recording points.
	contacted bool
	done      bool
}

// Tracer sweeps Burgers circuits over an interface mesh and builds the
// dislocation network.
type Tracer struct {
	im *InterfaceMesh
	nw *disloc.Network

	maxCircuitSize int
	maxElongation  int

	circuits  []*circuit
	faceOwner []int32

	search seedSearch
}

// NewTracer returns a tracer writing into nw. maxCircuitSize limits trial
// circuits during seeding; maxElongation is the extra length a circuit may
// take on while sweeping.
func NewTracer(im *InterfaceMesh, nw *disloc.Network, maxCircuitSize, maxElongation int) *Tracer {
	return &Tracer{im: im, nw: nw, maxCircuitSize: maxCircuitSize, maxElongation: maxElongation}
}

// Network returns the dislocation network being built.
func (t *Tracer) Network() *disloc.Network { return t.nw }

// FaceSwept reports whether interface mesh face f was consumed by a
// circuit. Unswept faces make up the residual defect surface.
func (t *Tracer) FaceSwept(f int) bool {
	return t.faceOwner != nil && t.faceOwner[f] >= 0
}

// Trace seeds Burgers circuits at every mesh vertex and advances them until
// the interface mesh is fully swept or no further circuit can move. Found
// segments are appended to the network; junction rings, ring position
// averaging and two-arm merging run at the end.
func (t *Tracer) Trace(ctx context.Context) error {
	if t.im.SpaceFillingGood || t.im.SpaceFillingBad {
		return nil
	}
	t.faceOwner = make([]int32, len(t.im.Mesh.Faces))
	for i := range t.faceOwner {
		t.faceOwner[i] = -1
	}
	for v := range t.im.Mesh.Vertices {
		if v%progressGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for {
			cf, cb, ok := t.seedAt(v)
			if !ok {
				break
			}
			if err := t.traceSegment(ctx, cf, cb); err != nil {
				return err
			}
		}
	}
	t.averageJunctionPositions()
	t.mergeTwoArmJunctions()
	return nil
}

// seedSearch is the reusable breadth-first arena of the circuit search.
type seedSearch struct {
	acc   []r3.Vec
	tm    []*r3.Mat
	pred  []int32
	depth []int32
	stamp []int32
	epoch int32
	queue []int32
}

func (s *seedSearch) reset(n int) {
	if len(s.stamp) < n {
		s.acc = make([]r3.Vec, n)
		s.tm = make([]*r3.Mat, n)
		s.pred = make([]int32, n)
		s.depth = make([]int32, n)
		s.stamp = make([]int32, n)
		s.epoch = 0
	}
	s.epoch++
	s.queue = s.queue[:0]
}

// seedAt searches for a closed half-edge loop through vertex v whose
// accumulated ideal lattice vectors fail to cancel. A hit creates a new
// segment with its forward and backward circuits.
func (t *Tracer) seedAt(v int) (*circuit, *circuit, bool) {
	m := t.im.Mesh
	s := &t.search
	s.reset(len(m.Vertices))
	s.stamp[v] = s.epoch
	s.acc[v] = r3.Vec{}
	s.tm[v] = linalg.Identity()
	s.pred[v] = -1
	s.depth[v] = 0
	s.queue = append(s.queue, int32(v))

	for qi := 0; qi < len(s.queue); qi++ {
		u := s.queue[qi]
		for e := m.Vertices[u].FirstEdge; e >= 0; e = m.Edges[e].NextVertex {
			tr := t.im.EdgeTransition(int(e))
			if tr == nil {
				continue
			}
			w := m.Edges[e].Dest
			accW := r3.Add(s.acc[u], s.tm[u].MulVec(t.im.EdgeClusterVector(int(e))))
			if int(w) == v && s.depth[u] >= 2 {
				if r3.Norm(accW) <= burgersEps {
					continue
				}
				if !linalg.EqualsIdentity(linalg.Mul(s.tm[u], tr.TM), frameClosureEps) {
					continue
				}
				edges := t.collectCircuit(u, e)
				if edges == nil {
					continue
				}
				cf, cb := t.createSegment(accW, edges)
				return cf, cb, true
			}
			if s.stamp[w] == s.epoch || int(s.depth[u])+1 > t.maxCircuitSize-1 {
				continue
			}
			s.stamp[w] = s.epoch
			s.acc[w] = accW
			s.tm[w] = linalg.Mul(s.tm[u], tr.TM)
			s.pred[w] = e
			s.depth[w] = s.depth[u] + 1
			s.queue = append(s.queue, w)
		}
	}
	return nil, nil, false
}

// collectCircuit assembles the tree path to u plus the closing edge, or
// nil when the loop crosses already swept ground.
func (t *Tracer) collectCircuit(u, closing int32) []int32 {
	m := t.im.Mesh
	var edges []int32
	for e := t.search.pred[u]; e >= 0; e = t.search.pred[m.Edges[e].Origin] {
		edges = append(edges, e)
	}
	for i, j := 0, len(edges)-1; i < j; i, j = i+1, j-1 {
		edges[i], edges[j] = edges[j], edges[i]
	}
	edges = append(edges, closing)
	for _, e := range edges {
		if t.faceOwner[m.Edges[e].Face] >= 0 {
			return nil
		}
		if t.faceOwner[m.Edges[m.Edges[e].Opposite].Face] >= 0 {
			return nil
		}
	}
	return edges
}

// createSegment registers a new segment and its two circuits. The backward
// circuit is the reversed opposite loop, so the pair sweeps away from the
// seed in both directions.
func (t *Tracer) createSegment(b r3.Vec, edges []int32) (*circuit, *circuit) {
	m := t.im.Mesh
	seg := t.nw.CreateSegment(b, t.im.EdgeClusterOf(int(edges[0])))

	cf := &circuit{id: int32(len(t.circuits)), seg: seg, forward: true, edges: edges, minLen: len(edges)}
	t.circuits = append(t.circuits, cf)
	rev := make([]int32, len(edges))
	for i, e := range edges {
		rev[len(edges)-1-i] = m.Edges[e].Opposite
	}
	cb := &circuit{id: int32(len(t.circuits)), seg: seg, forward: false, edges: rev, minLen: len(rev)}
	t.circuits = append(t.circuits, cb)

	center := t.circuitCenter(cf)
	cf.points = append(cf.points, center)
	cf.coreSizes = append(cf.coreSizes, len(edges))
	return cf, cb
}

// traceSegment advances both circuits of a segment until neither can move,
// then assembles the segment polyline from the recorded circuit centers.
func (t *Tracer) traceSegment(ctx context.Context, cf, cb *circuit) error {
	steps := 0
	for {
		moved := false
		for _, c := range []*circuit{cf, cb} {
			if c.done {
				continue
			}
			if t.advance(c) {
				moved = true
			}
			steps++
			if steps%progressGranularity == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		if !moved {
			break
		}
	}

	seg := cf.seg
	line := make([]r3.Vec, 0, len(cb.points)+len(cf.points))
	core := make([]int, 0, len(cb.points)+len(cf.points))
	for i := len(cb.points) - 1; i >= 0; i-- {
		line = append(line, cb.points[i])
		core = append(core, cb.coreSizes[i])
	}
	line = append(line, cf.points...)
	core = append(core, cf.coreSizes...)
	if len(line) == 1 {
		line = append(line, line[0])
		core = append(core, core[0])
	}
	seg.Line = line
	seg.CoreSize = core
	return nil
}

// advance performs one contact check and one sweep move. It returns false
// and marks the circuit done when no move is possible.
func (t *Tracer) advance(c *circuit) bool {
	m := t.im.Mesh
	if !c.contacted {
		t.checkContact(c)
	}

	// Shorten: two consecutive circuit edges spanning one unswept face
	// collapse onto the face's third edge.
	moved := false
	n := len(c.edges)
	for i := 0; i < n; i++ {
		e1 := c.edges[i]
		e2 := c.edges[(i+1)%n]
		if m.Edges[e1].NextFace != e2 {
			continue
		}
		f := m.Edges[e1].Face
		if t.faceOwner[f] >= 0 {
			continue
		}
		t.faceOwner[f] = c.id
		third := m.Edges[e2].NextFace
		c.edges = replacePair(c.edges, i, m.Edges[third].Opposite)
		moved = true
		break
	}

	// Elongate: one circuit edge is pushed across the unswept face on its
	// left, taking on that face's two far edges.
	if !moved && n+1 <= t.maxCircuitSize+t.maxElongation {
		for i := 0; i < n; i++ {
			e := c.edges[i]
			f := m.Edges[e].Face
			if t.faceOwner[f] >= 0 {
				continue
			}
			t.faceOwner[f] = c.id
			f1 := m.Edges[e].NextFace
			f2 := m.Edges[f1].NextFace
			c.edges = insertPair(c.edges, i, m.Edges[f2].Opposite, m.Edges[f1].Opposite)
			moved = true
			break
		}
	}

	if !moved {
		c.done = true
		return false
	}
	c.edges = removeSpikes(m, c.edges)
	if len(c.edges) < 3 {
		// The circuit pinched shut. The line ends here.
		c.done = true
		return true
	}
	if len(c.edges) < c.minLen {
		c.minLen = len(c.edges)
		t.recordPoint(c)
	}
	return true
}

// removeSpikes drops adjacent edge pairs that double back on themselves.
// Spikes contribute nothing to the enclosed Burgers vector and block
// shorten moves.
func removeSpikes(m *mesh.Mesh, edges []int32) []int32 {
	for {
		n := len(edges)
		if n < 2 {
			return edges
		}
		removed := false
		for i := 0; i < n; i++ {
			j := (i + 1) % n
			if m.Edges[edges[i]].Opposite != edges[j] {
				continue
			}
			if j > i {
				edges = append(edges[:i], edges[j+1:]...)
			} else {
				edges = edges[1 : n-1]
			}
			removed = true
			break
		}
		if !removed {
			return edges
		}
	}
}

// checkContact looks for a left-adjacent face already swept by a circuit.
// Self contact closes the segment into a loop; a foreign circuit forms a
// junction. Only the first contact of a circuit is recorded.
func (t *Tracer) checkContact(c *circuit) {
	m := t.im.Mesh
	for _, e := range c.edges {
		owner := t.faceOwner[m.Edges[e].Face]
		if owner < 0 {
			continue
		}
		other := t.circuits[owner]
		if other.seg == c.seg {
			// Connect only untouched endpoints: an end already spliced
			// into a junction ring stays there.
			if c.seg.Nodes[0].IsDangling() && c.seg.Nodes[1].IsDangling() {
				disloc.ConnectNodes(c.seg.Nodes[0], c.seg.Nodes[1])
			}
		} else if a := t.nodeOf(c); a.IsDangling() {
			disloc.ConnectNodes(a, t.nodeOf(other))
		}
		c.contacted = true
		t.recordPoint(c)
		return
	}
}

func (t *Tracer) nodeOf(c *circuit) *disloc.Node {
	if c.forward {
		return c.seg.Nodes[1]
	}
	return c.seg.Nodes[0]
}

// recordPoint appends the current circuit center to the circuit's polyline
// contribution, kept continuous across periodic boundaries.
func (t *Tracer) recordPoint(c *circuit) {
	raw := t.circuitCenter(c)
	var prev r3.Vec
	if len(c.points) > 0 {
		prev = c.points[len(c.points)-1]
	} else if c.forward {
		prev = raw
	} else {
		// The backward chain anchors at the seed center recorded by the
		// forward circuit.
		sib := t.circuits[c.id-1]
		prev = sib.points[0]
	}
	p := r3.Add(prev, t.im.Cell().WrapVector(r3.Sub(raw, prev)))
	c.points = append(c.points, p)
	c.coreSizes = append(c.coreSizes, len(c.edges))
}

// circuitCenter returns the mean of the circuit's vertex positions,
// unwrapped along the loop.
func (t *Tracer) circuitCenter(c *circuit) r3.Vec {
	m := t.im.Mesh
	sc := t.im.Cell()
	cur := m.Vertices[m.Edges[c.edges[0]].Origin].Pos
	sum := cur
	for _, e := range c.edges[1:] {
		q := m.Vertices[m.Edges[e].Origin].Pos
		cur = r3.Add(cur, sc.WrapVector(r3.Sub(q, cur)))
		sum = r3.Add(sum, cur)
	}
	return r3.Scale(1/float64(len(c.edges)), sum)
}

func replacePair(edges []int32, i int, repl int32) []int32 {
	n := len(edges)
	if (i+1)%n == 0 {
		out := make([]int32, 0, n-1)
		out = append(out, repl)
		out = append(out, edges[1:n-1]...)
		return out
	}
	edges[i] = repl
	return append(edges[:i+1], edges[i+2:]...)
}

func insertPair(edges []int32, i int, a, b int32) []int32 {
	out := make([]int32, 0, len(edges)+1)
	out = append(out, edges[:i]...)
	out = append(out, a, b)
	out = append(out, edges[i+1:]...)
	return out
}

// averageJunctionPositions snaps the endpoints of every junction ring to
// their common mean, so the arms meet in a single point.
func (t *Tracer) averageJunctionPositions() {
	sc := t.im.Cell()
	seen := map[*disloc.Node]bool{}
	for _, seg := range t.nw.Segments() {
		for _, n := range seg.Nodes {
			if seen[n] || n.IsDangling() {
				continue
			}
			ring := []*disloc.Node{n}
			for cur := n.NextRingNode(); cur != n; cur = cur.NextRingNode() {
				ring = append(ring, cur)
			}
			ref := ring[0].Position()
			sum := ref
			for _, r := range ring[1:] {
				seen[r] = true
				sum = r3.Add(sum, r3.Add(ref, sc.WrapVector(r3.Sub(r.Position(), ref))))
			}
			seen[n] = true
			avg := r3.Scale(1/float64(len(ring)), sum)
			for _, r := range ring {
				p := r3.Add(r.Position(), sc.WrapVector(r3.Sub(avg, r.Position())))
				setEndpoint(r, p)
			}
		}
	}
}

func setEndpoint(n *disloc.Node, p r3.Vec) {
	s := n.Segment()
	if n.IsForward() {
		s.Line[len(s.Line)-1] = p
	} else {
		s.Line[0] = p
	}
}

// mergeTwoArmJunctions joins pairs of segments that meet in a two-arm
// junction into single continuous segments, repeating until no further
// merge applies.
func (t *Tracer) mergeTwoArmJunctions() {
	for {
		merged := false
		for _, seg := range t.nw.Segments() {
			for _, n := range seg.Nodes {
				m := n.NextRingNode()
				if m == n || m.NextRingNode() != n {
					continue
				}
				if n.Segment() == m.Segment() {
					continue
				}
				if t.mergeSegments(n, m) {
					merged = true
					break
				}
			}
			if merged {
				break
			}
		}
		if !merged {
			return
		}
	}
}

// mergeSegments absorbs the segment of node m into the segment of node n
// when their Burgers vectors agree across the junction. The lower segment
// ID survives.
func (t *Tracer) mergeSegments(n, m *disloc.Node) bool {
	if m.Segment().ID < n.Segment().ID {
		n, m = m, n
	}
	surv := n.Segment()
	other := m.Segment()

	bo := other.BurgersVector
	if other.Cluster != surv.Cluster {
		tr, err := t.im.ClusterGraph().DetermineTransition(other.Cluster, surv.Cluster)
		if err != nil || tr == nil {
			return false
		}
		bo = tr.Apply(bo)
	}
	// Joining like ends reverses the traversal of the absorbed line, which
	// flips its Burgers vector.
	if n.IsForward() == m.IsForward() {
		bo = r3.Scale(-1, bo)
	}
	d := r3.Sub(bo, surv.BurgersVector)
	if r3.Norm(d) > burgersEps {
		return false
	}

	// Orient the absorbed line to continue outward from the junction.
	seq := other.Line
	coreSeq := other.CoreSize
	far := other.Nodes[1]
	if m.IsForward() {
		seq = reversedLine(seq)
		coreSeq = reversedCore(coreSeq)
		far = other.Nodes[0]
	}

	sc := t.im.Cell()
	if n.IsForward() {
		prev := surv.Line[len(surv.Line)-1]
		for i := 1; i < len(seq); i++ {
			prev = r3.Add(prev, sc.WrapVector(r3.Sub(seq[i], prev)))
			surv.Line = append(surv.Line, prev)
			surv.CoreSize = append(surv.CoreSize, coreSeq[i])
		}
		surv.AdoptNode(1, far)
	} else {
		prev := surv.Line[0]
		head := make([]r3.Vec, 0, len(seq)-1)
		headCore := make([]int, 0, len(seq)-1)
		for i := 1; i < len(seq); i++ {
			prev = r3.Add(prev, sc.WrapVector(r3.Sub(seq[i], prev)))
			head = append(head, prev)
			headCore = append(headCore, coreSeq[i])
		}
		for i, j := 0, len(head)-1; i < j; i, j = i+1, j-1 {
			head[i], head[j] = head[j], head[i]
			headCore[i], headCore[j] = headCore[j], headCore[i]
		}
		surv.Line = append(head, surv.Line...)
		surv.CoreSize = append(headCore, surv.CoreSize...)
		surv.AdoptNode(0, far)
	}

	other.ReplacedBy = surv
	t.nw.DiscardSegment(other)
	return true
}

func reversedLine(line []r3.Vec) []r3.Vec {
	out := make([]r3.Vec, len(line))
	for i, p := range line {
		out[len(line)-1-i] = p
	}
	return out
}

func reversedCore(core []int) []int {
	out := make([]int, len(core))
	for i, v := range core {
		out[len(core)-1-i] = v
	}
	return out
}
