package trace

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/elastic"
	"github.com/katalvlaran/dxa/mesh"
	"github.com/katalvlaran/dxa/structure"
	"github.com/katalvlaran/dxa/tessellation"
)

// progressGranularity is the loop interval between cancellation checks.
const progressGranularity = 1024

// InterfaceMesh is the two-manifold surface separating good from bad
// tetrahedra, with per-half-edge lattice data inherited from the elastic
// mapping.
type InterfaceMesh struct {
	Mesh *mesh.Mesh

	// SpaceFillingGood/Bad report degenerate classifications: the whole
	// cell is intact crystal, or entirely defective. The mesh is empty in
	// both cases.
	SpaceFillingGood bool
	SpaceFillingBad  bool

	simCell *cell.Cell
	graph   *cluster.Graph

	// Per directed half-edge, parallel to Mesh.Edges: the geometric edge
	// vector, the ideal lattice vector in the frame of the origin-side
	// cluster, the transition mapping the far cluster frame into it, and
	// that origin-side cluster.
	physVec     []r3.Vec
	clusterVec  []r3.Vec
	transitions []*cluster.Transition
	edgeCluster []*cluster.Cluster
}

// BuildInterfaceMesh classifies every tetrahedron and emits one triangular
// face per facet separating a bad tetrahedron from a good one. Mesh
// vertices are atoms, so faces meeting across a periodic boundary share
// vertices and the surface closes. Returns cell.ErrCellTooSmall when a
// face edge spans more than half a periodic cell extent.
func BuildInterfaceMesh(ctx context.Context, analyzer *structure.Analyzer, tess *tessellation.Tessellation, mapping *elastic.Mapping, latticeEps float64) (*InterfaceMesh, error) {
	im := &InterfaceMesh{
		Mesh:    mesh.New(),
		simCell: analyzer.Cell(),
		graph:   analyzer.ClusterGraph(),
	}

	// Classify primary cells and index the result by atom quadruple so the
	// ghost copies of a tetrahedron answer like their primary.
	good := make([]bool, tess.CellCount())
	byAtoms := make(map[[4]int32]bool, tess.CellCount())
	numGood, numBad := 0, 0
	for c := 0; c < tess.CellCount(); c++ {
		if c%progressGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if tess.IsGhostCell(c) {
			continue
		}
		good[c] = mapping.IsCompatible(c, latticeEps)
		byAtoms[cellAtomKey(tess, c)] = good[c]
		if good[c] {
			numGood++
		} else {
			numBad++
		}
	}
	if numBad == 0 {
		im.SpaceFillingGood = true
		return im, nil
	}
	if numGood == 0 {
		im.SpaceFillingBad = true
		return im, nil
	}

	isGoodCell := func(c int) bool {
		if c < 0 {
			// Open boundary of a non-periodic cell counts as good, so the
			// defect surface closes against it.
			return true
		}
		if !tess.IsGhostCell(c) {
			return good[c]
		}
		g, ok := byAtoms[cellAtomKey(tess, c)]
		if !ok {
			return true
		}
		return g
	}

	atomVertex := map[int]int{}
	for c := 0; c < tess.CellCount(); c++ {
		if c%progressGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if tess.IsGhostCell(c) || good[c] {
			continue
		}
		for f := 0; f < 4; f++ {
			ac, _ := tess.AdjacentCell(c, f)
			if !isGoodCell(ac) {
				continue
			}
			if err := im.emitFace(tess, mapping, atomVertex, c, f); err != nil {
				return nil, err
			}
		}
	}
	if err := im.Mesh.ConnectOppositeHalfedges(); err != nil {
		return nil, err
	}
	im.makeManifold()
	if err := im.Mesh.Validate(); err != nil {
		return nil, err
	}
	return im, nil
}

func cellAtomKey(tess *tessellation.Tessellation, c int) [4]int32 {
	var key [4]int32
	for k := 0; k < 4; k++ {
		key[k] = int32(tess.VertexAtom(tess.CellVertex(c, k)))
	}
	// Insertion sort; four elements.
	for i := 1; i < 4; i++ {
		for j := i; j > 0 && key[j] < key[j-1]; j-- {
			key[j], key[j-1] = key[j-1], key[j]
		}
	}
	return key
}

// emitFace adds the triangular face of facet f of bad cell c, oriented out
// of the bad region, and records the per-edge lattice data.
func (im *InterfaceMesh) emitFace(tess *tessellation.Tessellation, mapping *elastic.Mapping, atomVertex map[int]int, c, f int) error {
	var tessV [3]int
	var meshV [3]int
	for k := 0; k < 3; k++ {
		tv := tess.CellVertex(c, tessellation.FacetVertices[f][k])
		tessV[k] = tv
		atom := tess.VertexAtom(tv)
		mv, ok := atomVertex[atom]
		if !ok {
			mv = im.Mesh.CreateVertex(im.simCell.WrapPoint(tess.VertexPos(tv)))
			atomVertex[atom] = mv
		}
		meshV[k] = mv
	}
	im.Mesh.CreateFace(meshV[0], meshV[1], meshV[2])
	for k := 0; k < 3; k++ {
		t1, t2 := tessV[k], tessV[(k+1)%3]
		phys := r3.Sub(tess.VertexPos(t2), tess.VertexPos(t1))
		if im.simCell.IsWrappedVector(phys) {
			return cell.ErrCellTooSmall
		}
		ei, sign := mapping.FindEdge(t1, t2)
		im.physVec = append(im.physVec, phys)
		if ei >= 0 && mapping.EdgeAssigned(ei) {
			im.clusterVec = append(im.clusterVec, mapping.EdgeClusterVector(ei, sign))
			im.transitions = append(im.transitions, mapping.EdgeTransition(ei, sign))
		} else {
			im.clusterVec = append(im.clusterVec, r3.Vec{})
			im.transitions = append(im.transitions, nil)
		}
		im.edgeCluster = append(im.edgeCluster, mapping.VertexCluster(t1))
	}
	return nil
}

// makeManifold splits every vertex whose incident faces form more than one
// connected fan into one mesh vertex per fan.
func (im *InterfaceMesh) makeManifold() {
	m := im.Mesh
	numVerts := len(m.Vertices)
	assigned := make([]bool, len(m.Edges))
	for v := 0; v < numVerts; v++ {
		// Gather the edges leaving v, then peel off connected fans.
		var leaving []int32
		for e := m.Vertices[v].FirstEdge; e != mesh.InvalidIndex; e = m.Edges[e].NextVertex {
			leaving = append(leaving, e)
		}
		fan := 0
		for _, start := range leaving {
			if assigned[start] {
				continue
			}
			fan++
			target := int32(v)
			if fan > 1 {
				target = int32(m.CreateVertex(m.Vertices[v].Pos))
			}
			// On a closed mesh the orbit Opposite(PrevFace(e)) cycles
			// through exactly one fan of edges leaving the vertex.
			e := start
			for {
				assigned[e] = true
				m.Edges[e].Origin = target
				m.Edges[m.Edges[e].PrevFace].Dest = target
				e = m.Edges[m.Edges[e].PrevFace].Opposite
				if e == start || assigned[e] {
					break
				}
			}
		}
	}
	im.rebuildVertexChains()
}

// rebuildVertexChains reconstructs the per-vertex leaving-edge lists after
// vertex splitting rewired edge origins.
func (im *InterfaceMesh) rebuildVertexChains() {
	m := im.Mesh
	for v := range m.Vertices {
		m.Vertices[v].FirstEdge = mesh.InvalidIndex
	}
	for ei := range m.Edges {
		origin := m.Edges[ei].Origin
		m.Edges[ei].NextVertex = m.Vertices[origin].FirstEdge
		m.Vertices[origin].FirstEdge = int32(ei)
	}
}

// EdgePhysicalVector returns the geometric vector of directed half-edge e.
func (im *InterfaceMesh) EdgePhysicalVector(e int) r3.Vec { return im.physVec[e] }

// EdgeClusterVector returns the ideal lattice vector of directed half-edge
// e in the frame of EdgeClusterOf(e).
func (im *InterfaceMesh) EdgeClusterVector(e int) r3.Vec { return im.clusterVec[e] }

// EdgeTransition returns the cluster transition of directed half-edge e,
// nil for unassigned edges.
func (im *InterfaceMesh) EdgeTransition(e int) *cluster.Transition { return im.transitions[e] }

// EdgeClusterOf returns the cluster frame the edge's lattice vector is
// expressed in.
func (im *InterfaceMesh) EdgeClusterOf(e int) *cluster.Cluster { return im.edgeCluster[e] }

// Cell returns the simulation cell.
func (im *InterfaceMesh) Cell() *cell.Cell { return im.simCell }

// ClusterGraph returns the cluster graph of the analysis.
func (im *InterfaceMesh) ClusterGraph() *cluster.Graph { return im.graph }
