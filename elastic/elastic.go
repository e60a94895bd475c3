package elastic

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/linalg"
	"github.com/katalvlaran/dxa/structure"
	"github.com/katalvlaran/dxa/tessellation"
)

// DefaultPathDepth is the maximum hop count of the crystal path finder when
// resolving tessellation edges that are not direct neighbor bonds.
const DefaultPathDepth = 4

// progressGranularity is the loop interval between cancellation checks.
const progressGranularity = 4096

// Edge is one deduplicated tessellation edge, directed from Vertex1 to
// Vertex2.
type Edge struct {
	Vertex1, Vertex2 int32

	// nextLeaving/nextArriving chain the edges around their endpoint
	// vertices, -1 terminated.
	nextLeaving, nextArriving int32

	// clusterVector is the ideal lattice vector of the edge in the frame
	// of Vertex1's cluster; valid only when assigned is set.
	clusterVector r3.Vec

	// transition carries vectors from Vertex2's cluster frame into
	// Vertex1's.
	transition *cluster.Transition

	assigned bool
}

// Mapping is the elastic mapping of one tessellation.
type Mapping struct {
	analyzer *structure.Analyzer
	tess     *tessellation.Tessellation

	edges        []Edge
	firstLeaving []int32
	firstArrive  []int32

	// vertexCluster holds the cluster id assigned to each tessellation
	// vertex, 0 for none.
	vertexCluster []int32

	// cellEdges/cellSigns give, per non-ghost tessellation cell, the six
	// edge indices in tessellation.EdgeVertices order and their traversal
	// signs. Ghost cells keep edge index -1.
	cellEdges [][6]int32
	cellSigns [][6]int8
}

// NewMapping prepares an empty mapping for the given analysis and
// tessellation.
func NewMapping(a *structure.Analyzer, tess *tessellation.Tessellation) *Mapping {
	m := &Mapping{
		analyzer:      a,
		tess:          tess,
		firstLeaving:  make([]int32, tess.VertexCount()),
		firstArrive:   make([]int32, tess.VertexCount()),
		vertexCluster: make([]int32, tess.VertexCount()),
		cellEdges:     make([][6]int32, tess.CellCount()),
		cellSigns:     make([][6]int8, tess.CellCount()),
	}
	for i := range m.firstLeaving {
		m.firstLeaving[i] = -1
		m.firstArrive[i] = -1
	}
	for c := range m.cellEdges {
		for e := 0; e < 6; e++ {
			m.cellEdges[c][e] = -1
		}
	}
	return m
}

// GenerateTessellationEdges creates one directed edge per unordered vertex
// pair occurring in a non-ghost tessellation cell and records the per-cell
// edge handles.
func (m *Mapping) GenerateTessellationEdges(ctx context.Context) error {
	for c := 0; c < m.tess.CellCount(); c++ {
		if c%progressGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if m.tess.IsGhostCell(c) {
			continue
		}
		for e := 0; e < 6; e++ {
			v1 := int32(m.tess.CellVertex(c, tessellation.EdgeVertices[e][0]))
			v2 := int32(m.tess.CellVertex(c, tessellation.EdgeVertices[e][1]))
			idx, sign := m.FindEdge(int(v1), int(v2))
			if idx < 0 {
				idx = len(m.edges)
				m.edges = append(m.edges, Edge{
					Vertex1:      v1,
					Vertex2:      v2,
					nextLeaving:  m.firstLeaving[v1],
					nextArriving: m.firstArrive[v2],
				})
				m.firstLeaving[v1] = int32(idx)
				m.firstArrive[v2] = int32(idx)
				sign = 1
			}
			m.cellEdges[c][e] = int32(idx)
			m.cellSigns[c][e] = int8(sign)
		}
	}
	return nil
}

// FindEdge looks up the edge between two tessellation vertices. The sign is
// +1 when the stored edge runs v1 to v2, -1 when it is stored reversed;
// (-1, 0) when no such edge exists.
func (m *Mapping) FindEdge(v1, v2 int) (int, int) {
	for e := m.firstLeaving[v1]; e >= 0; e = m.edges[e].nextLeaving {
		if int(m.edges[e].Vertex2) == v2 {
			return int(e), 1
		}
	}
	for e := m.firstLeaving[v2]; e >= 0; e = m.edges[e].nextLeaving {
		if int(m.edges[e].Vertex2) == v1 {
			return int(e), -1
		}
	}
	return -1, 0
}

// EdgeCount returns the number of deduplicated tessellation edges.
func (m *Mapping) EdgeCount() int { return len(m.edges) }

// AssignVerticesToClusters seeds every tessellation vertex with its atom's
// cluster and then spreads cluster assignments to unassigned vertices from
// their edge neighbors until a fixed point. An unassigned vertex adopts the
// cluster most frequent among its assigned neighbors, lowest id on ties.
func (m *Mapping) AssignVerticesToClusters(ctx context.Context) error {
	for v := 0; v < m.tess.VertexCount(); v++ {
		if c := m.analyzer.AtomCluster(m.tess.VertexAtom(v)); c != nil {
			m.vertexCluster[v] = int32(c.ID)
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		changed := false
		for v := 0; v < m.tess.VertexCount(); v++ {
			if m.vertexCluster[v] != 0 {
				continue
			}
			votes := map[int32]int{}
			m.visitIncident(v, func(other int32) {
				if c := m.vertexCluster[other]; c != 0 {
					votes[c]++
				}
			})
			best := int32(0)
			bestN := 0
			for c, n := range votes {
				if n > bestN || (n == bestN && best != 0 && c < best) {
					best, bestN = c, n
				}
			}
			if best != 0 {
				m.vertexCluster[v] = best
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
}

// visitIncident calls fn with the far vertex of every edge incident to v.
func (m *Mapping) visitIncident(v int, fn func(other int32)) {
	for e := m.firstLeaving[v]; e >= 0; e = m.edges[e].nextLeaving {
		fn(m.edges[e].Vertex2)
	}
	for e := m.firstArrive[v]; e >= 0; e = m.edges[e].nextArriving {
		fn(m.edges[e].Vertex1)
	}
}

// VertexCluster returns the cluster assigned to a tessellation vertex, nil
// if none.
func (m *Mapping) VertexCluster(v int) *cluster.Cluster {
	id := m.vertexCluster[v]
	if id == 0 {
		return nil
	}
	return m.analyzer.ClusterGraph().ClusterByID(int(id))
}

// AssignIdealVectorsToEdges resolves the ideal lattice vector of every edge.
// Direct neighbor bonds use the recorded template slot; other edges fall
// back to a bounded-depth path search through the crystal. Edges that
// cannot be resolved stay unassigned, which later marks the surrounding
// tetrahedra bad.
func (m *Mapping) AssignIdealVectorsToEdges(ctx context.Context, pathDepth int) error {
	if pathDepth <= 0 {
		pathDepth = DefaultPathDepth
	}
	finder := newPathFinder(m.analyzer, pathDepth)
	graph := m.analyzer.ClusterGraph()
	for ei := range m.edges {
		if ei%progressGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		edge := &m.edges[ei]
		c1 := m.VertexCluster(int(edge.Vertex1))
		c2 := m.VertexCluster(int(edge.Vertex2))
		if c1 == nil || c2 == nil {
			continue
		}
		a1 := m.tess.VertexAtom(int(edge.Vertex1))
		a2 := m.tess.VertexAtom(int(edge.Vertex2))
		if a1 == a2 {
			// Two periodic images of one atom; no lattice path exists at
			// this scale.
			continue
		}
		vec, pathCluster, ok := finder.findVector(a1, a2)
		if !ok {
			continue
		}
		if pathCluster.ID != c1.ID {
			t, err := graph.DetermineTransition(pathCluster, c1)
			if err != nil || t == nil {
				continue
			}
			vec = t.Apply(vec)
		}
		t, err := graph.DetermineTransition(c2, c1)
		if err != nil || t == nil {
			continue
		}
		edge.clusterVector = vec
		edge.transition = t
		edge.assigned = true
	}
	return nil
}

// EdgeAssigned reports whether edge e carries an ideal vector.
func (m *Mapping) EdgeAssigned(e int) bool { return m.edges[e].assigned }

// EdgeClusterVector returns the ideal vector of edge e traversed with the
// given sign, expressed in the frame of the traversal's start vertex
// cluster.
func (m *Mapping) EdgeClusterVector(e, sign int) r3.Vec {
	edge := &m.edges[e]
	if sign >= 0 {
		return edge.clusterVector
	}
	return r3.Scale(-1, edge.transition.ApplyReverse(edge.clusterVector))
}

// EdgeTransition returns the frame transition of edge e traversed with the
// given sign: it maps vectors from the traversal's end cluster frame to its
// start cluster frame.
func (m *Mapping) EdgeTransition(e, sign int) *cluster.Transition {
	if sign >= 0 {
		return m.edges[e].transition
	}
	return m.edges[e].transition.Reverse
}

// CellEdge returns the edge handle and traversal sign of local edge le
// (tessellation.EdgeVertices order) of a non-ghost cell. Edge handle -1 for
// ghost cells.
func (m *Mapping) CellEdge(c, le int) (int, int) {
	return int(m.cellEdges[c][le]), int(m.cellSigns[c][le])
}

// faceCircuits lists, per tetrahedron face, the local edge triple whose
// ideal vectors must close: edge a followed by edge b equals edge c.
var faceCircuits = [4][3]int{{0, 4, 2}, {1, 5, 2}, {0, 3, 1}, {3, 5, 4}}

// IsCompatible reports whether non-ghost cell c lies in intact crystal: all
// six edges assigned, every face circuit closes, and the transitions around
// every face compose to the identity (no disclination).
func (m *Mapping) IsCompatible(c int, eps float64) bool {
	if m.cellEdges[c][0] < 0 {
		return false
	}
	var sign [6]int
	var idx [6]int
	for le := 0; le < 6; le++ {
		idx[le], sign[le] = m.CellEdge(c, le)
		if !m.edges[idx[le]].assigned {
			return false
		}
	}
	for _, fc := range faceCircuits {
		va := m.EdgeClusterVector(idx[fc[0]], sign[fc[0]])
		vb := m.EdgeClusterVector(idx[fc[1]], sign[fc[1]])
		vc := m.EdgeClusterVector(idx[fc[2]], sign[fc[2]])
		ta := m.EdgeTransition(idx[fc[0]], sign[fc[0]])
		sum := r3.Add(va, ta.Apply(vb))
		if !vecNear(sum, vc, eps) {
			return false
		}
		// Disclination test: going a, b then back along c must restore the
		// start frame.
		tb := m.EdgeTransition(idx[fc[1]], sign[fc[1]])
		tc := m.EdgeTransition(idx[fc[2]], sign[fc[2]])
		prod := composeTM(ta, tb)
		if !transitionsAgree(prod, tc, eps) {
			return false
		}
	}
	return true
}

func vecNear(a, b r3.Vec, eps float64) bool {
	d := r3.Sub(a, b)
	return r3.Norm(d) <= eps
}

// composeTM multiplies the matrices of two chained transitions: the result
// maps the frame at the far end of tb into the frame at the start of ta.
func composeTM(ta, tb *cluster.Transition) *r3.Mat {
	return linalg.Mul(ta.TM, tb.TM)
}

// transitionsAgree compares a composed transition matrix against a stored
// transition element-wise.
func transitionsAgree(tm *r3.Mat, t *cluster.Transition, eps float64) bool {
	return linalg.Equals(tm, t.TM, eps)
}
