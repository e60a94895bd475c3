package structure

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/linalg"
)

// BuildClusters groups identified atoms into orientation-consistent clusters
// by breadth-first growth from seed atoms. An atom joins a cluster only if
// its neighbor shell matches the structure template in the cluster's frame,
// which pins down the slot assignment unambiguously even for symmetric
// lattices.
func (a *Analyzer) BuildClusters(ctx context.Context) error {
	queue := make([]int32, 0, 1024)
	for seed := range a.atoms {
		if err := a.checkpoint(ctx, seed, len(a.atoms)); err != nil {
			return err
		}
		st := &a.atoms[seed]
		if st.structure == lattice.Other || st.clusterID != 0 || st.orientation == nil {
			continue
		}
		tmpl := lattice.TemplateOf(st.structure)
		orient, inv, slots, ok := a.clusterFrame(seed, tmpl)
		if !ok {
			continue
		}

		c := a.graph.CreateCluster(st.structure, orient)
		a.clusters = append(a.clusters, c)
		st.clusterID = c.ID
		copy(st.slots, slots)
		c.AtomCount++

		queue = append(queue[:0], int32(seed))
		for len(queue) > 0 {
			cur := int(queue[0])
			queue = queue[1:]
			for k := 0; k < len(a.atoms[cur].neighbors); k++ {
				j := int(a.atoms[cur].neighbors[k])
				nb := &a.atoms[j]
				if nb.structure != c.Structure || nb.clusterID != 0 {
					continue
				}
				if a.opts.clusterIDs != nil && a.opts.clusterIDs[j] != a.opts.clusterIDs[cur] {
					continue
				}
				nbSlots, ok := a.constrainedMatch(j, inv, tmpl)
				if !ok {
					continue
				}
				nb.clusterID = c.ID
				copy(nb.slots, nbSlots)
				c.AtomCount++
				queue = append(queue, int32(j))
			}
		}
	}
	if a.opts.progress != nil {
		a.opts.progress(len(a.atoms), len(a.atoms))
	}
	return nil
}

// clusterFrame picks the lattice frame of a new cluster seeded at atom
// seed. Preferred orientations win when the seed's neighbor shell matches
// the template in that frame; a free-fit orientation is only recovered up
// to the lattice point group, so this shell test is the right equivalence.
// Falls back to the seed's own fitted orientation.
func (a *Analyzer) clusterFrame(seed int, tmpl *lattice.Template) (orient, inv *r3.Mat, slots []int8, ok bool) {
	own := a.atoms[seed].orientation
	scale := math.Cbrt(math.Abs(own.Det()))
	for _, pref := range a.opts.preferredOrientations {
		prefRot, err := linalg.Orthonormalize(pref)
		if err != nil {
			continue
		}
		q := linalg.ScaleMat(scale, prefRot)
		qinv, err := linalg.Inverse(q)
		if err != nil {
			continue
		}
		if s, matched := a.constrainedMatch(seed, qinv, tmpl); matched {
			return q, qinv, s, true
		}
	}
	orient = linalg.Clone(own)
	inv, err := linalg.Inverse(orient)
	if err != nil {
		return nil, nil, nil, false
	}
	slots, ok = a.constrainedMatch(seed, inv, tmpl)
	return orient, inv, slots, ok
}

// constrainedMatch matches atom i's neighbor shell against tmpl in a fixed
// frame given by the inverse orientation. Unlike the free match of the
// identification stage there is no rotation search, so lattice point-group
// symmetry cannot produce conflicting slot assignments within one cluster.
func (a *Analyzer) constrainedMatch(i int, inv *r3.Mat, tmpl *lattice.Template) ([]int8, bool) {
	n := len(tmpl.Neighbors)
	if len(a.atoms[i].neighbors) != n {
		return nil, false
	}
	tol := a.opts.tol.NeighborMatch
	slots := make([]int8, n)
	var taken [lattice.MaxNeighbors]bool
	for k := 0; k < n; k++ {
		w := inv.MulVec(a.neighborVector(i, k))
		best := -1
		bestDist := math.Inf(1)
		for m := 0; m < n; m++ {
			if taken[m] {
				continue
			}
			if d := r3.Norm(r3.Sub(w, tmpl.Neighbors[m])); d < bestDist {
				best, bestDist = m, d
			}
		}
		if best < 0 || bestDist > tol*r3.Norm(tmpl.Neighbors[best]) {
			return nil, false
		}
		taken[best] = true
		slots[k] = int8(best)
	}
	return slots, true
}

// ConnectClusters records a cluster graph transition for every pair of
// adjacent clusters. The transition matrix carries vectors from the first
// cluster's lattice frame to the second's and is orthonormalized, so pure
// misorientations survive the numeric fit noise.
func (a *Analyzer) ConnectClusters(ctx context.Context) error {
	seen := make(map[[2]int]bool)
	for i := range a.atoms {
		if err := a.checkpoint(ctx, i, len(a.atoms)); err != nil {
			return err
		}
		ca := a.AtomCluster(i)
		if ca == nil {
			continue
		}
		for k := 0; k < len(a.atoms[i].neighbors); k++ {
			cb := a.AtomCluster(int(a.atoms[i].neighbors[k]))
			if cb == nil || cb.ID == ca.ID {
				continue
			}
			key := [2]int{ca.ID, cb.ID}
			if key[0] > key[1] {
				key[0], key[1] = key[1], key[0]
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			tm, err := a.misorientation(ca, cb)
			if err != nil {
				continue
			}
			if _, err := a.graph.CreateTransition(ca, cb, tm, 1); err != nil {
				return err
			}
		}
	}
	if a.opts.progress != nil {
		a.opts.progress(len(a.atoms), len(a.atoms))
	}
	return nil
}

// misorientation computes the frame change from cluster ca to cluster cb,
// tm = Qb^-1 * Qa. The raw product must already be close to a rotation;
// otherwise the cluster pair is too distorted to connect.
func (a *Analyzer) misorientation(ca, cb *cluster.Cluster) (*r3.Mat, error) {
	inv, err := linalg.Inverse(cb.Orientation)
	if err != nil {
		return nil, err
	}
	raw := linalg.Mul(inv, ca.Orientation)
	tm, err := linalg.Orthonormalize(raw)
	if err != nil {
		return nil, err
	}
	if !linalg.Equals(raw, tm, a.opts.tol.OrientationMatch) {
		return nil, linalg.ErrSingular
	}
	return tm, nil
}
