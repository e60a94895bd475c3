package cluster

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/linalg"
)

// Sentinel errors for cluster graph operations.
var (
	// ErrNilCluster indicates a nil cluster pointer passed to a graph
	// operation.
	ErrNilCluster = errors.New("cluster: cluster is nil")

	// ErrForeignCluster indicates a cluster that belongs to a different
	// graph.
	ErrForeignCluster = errors.New("cluster: cluster belongs to another graph")
)

// Cluster is a maximal group of atoms sharing one consistent crystal
// orientation. ID 0 is reserved for "no cluster"; real clusters are numbered
// from 1.
type Cluster struct {
	// ID is the 1-based numeric id of the cluster within its graph.
	ID int

	// Structure is the lattice structure type of the cluster.
	Structure lattice.StructureType

	// Orientation maps lattice-frame vectors (lattice constant 1) to
	// physical space; it includes the physical lattice constant as a
	// uniform scale.
	Orientation *r3.Mat

	// AtomCount is the number of atoms assigned to the cluster.
	AtomCount int

	// transitions holds all transitions leaving this cluster, in creation
	// order.
	transitions []*Transition

	graph *Graph
}

// Transitions returns the transitions leaving the cluster in creation order.
func (c *Cluster) Transitions() []*Transition { return c.transitions }

// Transition is the rigid transformation relating two differently oriented
// clusters. Apply maps vectors from the frame of From into the frame of To.
type Transition struct {
	// From and To are the ordered endpoint clusters.
	From, To *Cluster

	// TM is the pure rotation mapping From-frame vectors into the To frame.
	TM *r3.Mat

	// Reverse is the inverse transition (To→From). Never nil after
	// creation.
	Reverse *Transition

	// Distance is the number of primitive (directly measured) transitions
	// concatenated into this one; primitive transitions have distance 1,
	// self transitions 0.
	Distance int
}

// Apply transforms a From-frame vector into the To frame.
func (t *Transition) Apply(v r3.Vec) r3.Vec { return t.TM.MulVec(v) }

// ApplyReverse transforms a To-frame vector into the From frame.
func (t *Transition) ApplyReverse(v r3.Vec) r3.Vec { return t.Reverse.TM.MulVec(v) }

// IsSelf reports whether the transition connects a cluster to itself with
// the identity matrix.
func (t *Transition) IsSelf() bool { return t.From == t.To && t.Distance == 0 }

// Graph owns all clusters and transitions of one analysis run.
type Graph struct {
	clusters    []*Cluster
	transitions []*Transition

	// maxConcatDistance bounds the transition path search.
	maxConcatDistance int
}

// DefaultMaxConcatDistance bounds DetermineTransition's path search. Longer
// paths accumulate too much numeric noise to be trusted.
const DefaultMaxConcatDistance = 3

// NewGraph creates an empty cluster graph.
func NewGraph() *Graph {
	return &Graph{maxConcatDistance: DefaultMaxConcatDistance}
}

// CreateCluster allocates a new cluster with the next free id. The
// orientation matrix is stored as given (not copied).
func (g *Graph) CreateCluster(structure lattice.StructureType, orientation *r3.Mat) *Cluster {
	c := &Cluster{
		ID:          len(g.clusters) + 1,
		Structure:   structure,
		Orientation: orientation,
		graph:       g,
	}
	g.clusters = append(g.clusters, c)
	return c
}

// Clusters returns all clusters in id order.
func (g *Graph) Clusters() []*Cluster { return g.clusters }

// Transitions returns all transitions in creation order. Each transition is
// listed once per direction.
func (g *Graph) Transitions() []*Transition { return g.transitions }

// ClusterByID returns the cluster with the given 1-based id, or nil.
func (g *Graph) ClusterByID(id int) *Cluster {
	if id < 1 || id > len(g.clusters) {
		return nil
	}
	return g.clusters[id-1]
}

// SelfTransition returns the identity transition of c, creating it on first
// use.
func (g *Graph) SelfTransition(c *Cluster) (*Transition, error) {
	if c == nil {
		return nil, ErrNilCluster
	}
	if c.graph != g {
		return nil, ErrForeignCluster
	}
	if t := g.findDirect(c, c); t != nil {
		return t, nil
	}
	t := &Transition{From: c, To: c, TM: linalg.Identity(), Distance: 0}
	t.Reverse = t
	g.transitions = append(g.transitions, t)
	c.transitions = append(c.transitions, t)
	return t, nil
}

// findDirect returns the stored transition a→b, or nil.
func (g *Graph) findDirect(a, b *Cluster) *Transition {
	for _, t := range a.transitions {
		if t.To == b {
			return t
		}
	}
	return nil
}

// FindTransition returns the directly stored transition a→b without
// searching for concatenated paths. Self lookups return the identity
// transition.
func (g *Graph) FindTransition(a, b *Cluster) (*Transition, error) {
	if a == nil || b == nil {
		return nil, ErrNilCluster
	}
	if a.graph != g || b.graph != g {
		return nil, ErrForeignCluster
	}
	if a == b {
		return g.SelfTransition(a)
	}
	return g.findDirect(a, b), nil
}

// CreateTransition inserts the transition a→b with matrix tm, plus its
// reverse b→a with the transposed matrix. If a→b already exists it is
// returned unchanged. distance is the concatenation depth (1 for directly
// measured transitions).
func (g *Graph) CreateTransition(a, b *Cluster, tm *r3.Mat, distance int) (*Transition, error) {
	if a == nil || b == nil {
		return nil, ErrNilCluster
	}
	if a.graph != g || b.graph != g {
		return nil, ErrForeignCluster
	}
	if a == b {
		return g.SelfTransition(a)
	}
	if t := g.findDirect(a, b); t != nil {
		return t, nil
	}
	fwd := &Transition{From: a, To: b, TM: tm, Distance: distance}
	// A transition matrix is a pure rotation, so the reverse is the
	// transpose.
	rev := &Transition{From: b, To: a, TM: linalg.Transpose(tm), Distance: distance}
	fwd.Reverse = rev
	rev.Reverse = fwd
	g.transitions = append(g.transitions, fwd, rev)
	a.transitions = append(a.transitions, fwd)
	b.transitions = append(b.transitions, rev)
	return fwd, nil
}

// DetermineTransition returns the transition a→b, concatenating stored
// transitions along the shortest path through the graph if no direct
// transition exists. The discovered transition is cached in the graph. A nil
// result means a and b are in disconnected components, an expected outcome.
func (g *Graph) DetermineTransition(a, b *Cluster) (*Transition, error) {
	if a == nil || b == nil {
		return nil, ErrNilCluster
	}
	if a.graph != g || b.graph != g {
		return nil, ErrForeignCluster
	}
	if a == b {
		return g.SelfTransition(a)
	}
	if t := g.findDirect(a, b); t != nil {
		return t, nil
	}

	// Breadth-first search over stored transitions, bounded by the
	// concatenation distance limit.
	type frontierNode struct {
		cluster  *Cluster
		tm       *r3.Mat // maps a-frame into cluster's frame
		distance int
	}
	visited := map[*Cluster]bool{a: true}
	queue := []frontierNode{{cluster: a, tm: linalg.Identity(), distance: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.distance >= g.maxConcatDistance {
			continue
		}
		for _, t := range cur.cluster.transitions {
			next := t.To
			if visited[next] {
				continue
			}
			visited[next] = true
			tm := linalg.Mul(t.TM, cur.tm)
			dist := cur.distance + maxInt(t.Distance, 1)
			if next == b {
				return g.CreateTransition(a, b, tm, dist)
			}
			queue = append(queue, frontierNode{cluster: next, tm: tm, distance: dist})
		}
	}
	return nil, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
