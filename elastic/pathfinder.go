package elastic

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/linalg"
	"github.com/katalvlaran/dxa/structure"
)

// pathFinder resolves the ideal lattice vector between two atoms by walking
// matched neighbor bonds through the crystal, composing cluster transitions
// along the way. The search is a bounded-depth breadth-first walk; its node
// arena and visit stamps are reused across queries.
type pathFinder struct {
	analyzer *structure.Analyzer
	maxDepth int

	nodes []pathNode
	stamp []uint32
	epoch uint32
}

type pathNode struct {
	atom  int32
	depth int8

	// vec is the accumulated ideal vector from the start atom, in the
	// start atom's cluster frame.
	vec r3.Vec

	// tm maps this atom's cluster frame into the start cluster frame.
	tm *r3.Mat
}

func newPathFinder(a *structure.Analyzer, maxDepth int) *pathFinder {
	return &pathFinder{
		analyzer: a,
		maxDepth: maxDepth,
		stamp:    make([]uint32, a.AtomCount()),
	}
}

// findVector returns the ideal lattice vector from atom a1 to atom a2 in
// the frame of a1's cluster, together with that cluster. ok is false when
// no bond path of at most maxDepth hops connects the atoms.
func (p *pathFinder) findVector(a1, a2 int) (r3.Vec, *cluster.Cluster, bool) {
	start := p.analyzer.AtomCluster(a1)
	if start == nil || p.analyzer.AtomCluster(a2) == nil {
		return r3.Vec{}, nil, false
	}
	graph := p.analyzer.ClusterGraph()

	p.epoch++
	p.nodes = append(p.nodes[:0], pathNode{atom: int32(a1), tm: linalg.Identity()})
	p.stamp[a1] = p.epoch

	for head := 0; head < len(p.nodes); head++ {
		cur := p.nodes[head]
		if int(cur.depth) >= p.maxDepth {
			continue
		}
		u := int(cur.atom)
		cu := p.analyzer.AtomCluster(u)
		for k := 0; k < p.analyzer.NumNeighbors(u); k++ {
			w := p.analyzer.Neighbor(u, k)
			if p.stamp[w] == p.epoch {
				continue
			}
			ideal, ok := p.analyzer.IdealNeighborVector(u, k)
			if !ok {
				continue
			}
			cw := p.analyzer.AtomCluster(w)
			if cw == nil {
				continue
			}
			tm := cur.tm
			if cw.ID != cu.ID {
				t, err := graph.DetermineTransition(cw, cu)
				if err != nil || t == nil {
					continue
				}
				tm = linalg.Mul(cur.tm, t.TM)
			}
			vec := r3.Add(cur.vec, cur.tm.MulVec(ideal))
			if w == a2 {
				return vec, start, true
			}
			p.stamp[w] = p.epoch
			p.nodes = append(p.nodes, pathNode{atom: int32(w), depth: cur.depth + 1, vec: vec, tm: tm})
		}
	}
	return r3.Vec{}, nil, false
}
