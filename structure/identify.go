package structure

import (
	"context"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/linalg"
)

// IdentifyStructures classifies every atom against the input structure
// template (and its planar-defect partner when imperfect dislocations are
// enabled). For each matched atom it records the neighbor-to-template-slot
// assignment and a best-fit orientation. Unmatched atoms become
// lattice.Other; only context cancellation returns an error.
func (a *Analyzer) IdentifyStructures(ctx context.Context) error {
	if err := a.estimateNearestDistance(ctx); err != nil {
		return err
	}
	if err := a.buildNeighborLists(ctx); err != nil {
		return err
	}

	primary := lattice.TemplateOf(a.input)
	var partner *lattice.Template
	if a.opts.allowImperfect && primary.Partner != lattice.Other {
		partner = lattice.TemplateOf(primary.Partner)
	}

	for i := range a.positions {
		if err := a.checkpoint(ctx, i, len(a.positions)); err != nil {
			return err
		}
		st := &a.atoms[i]
		st.structure = lattice.Other
		if !a.selected(i) {
			continue
		}
		if a.matchTemplate(i, primary) {
			st.structure = primary.Structure
		} else if partner != nil && a.matchTemplate(i, partner) {
			st.structure = partner.Structure
		}
	}
	for i := range a.atoms {
		a.typeCounts[a.atoms[i].structure]++
	}
	if a.opts.progress != nil {
		a.opts.progress(len(a.positions), len(a.positions))
	}
	return nil
}

// matchTemplate attempts a free correspondence match of atom i's neighbor
// shell against tmpl. On success it stores the slot assignment and the
// fitted orientation (rotation times scale, lattice frame to physical) and
// returns true.
func (a *Analyzer) matchTemplate(i int, tmpl *lattice.Template) bool {
	st := &a.atoms[i]
	n := len(tmpl.Neighbors)
	if len(st.neighbors) != n {
		return false
	}

	var measured [lattice.MaxNeighbors]r3.Vec
	for k := 0; k < n; k++ {
		measured[k] = a.neighborVector(i, k)
	}

	// Two reference bonds anchor a trial rotation: the shortest measured
	// vector and the first one not nearly collinear with it.
	ref0 := 0
	ref1 := -1
	for k := 1; k < n; k++ {
		cosang := math.Abs(cosAngle(measured[ref0], measured[k]))
		if cosang < 0.9 {
			ref1 = k
			break
		}
	}
	if ref1 < 0 {
		return false
	}

	tol := a.opts.tol.NeighborMatch
	scaleEstimate := a.nearestDistance / tmpl.NearestDistance
	for m0 := 0; m0 < n; m0++ {
		s0 := r3.Norm(measured[ref0]) / r3.Norm(tmpl.Neighbors[m0])
		if math.Abs(s0-scaleEstimate) > tol*scaleEstimate {
			continue
		}
		for m1 := 0; m1 < n; m1++ {
			if m1 == m0 {
				continue
			}
			s1 := r3.Norm(measured[ref1]) / r3.Norm(tmpl.Neighbors[m1])
			if math.Abs(s1-s0) > tol*s0 {
				continue
			}
			// Angles between the pair must agree before the pair is worth a
			// rotation fit.
			if math.Abs(cosAngle(measured[ref0], measured[ref1])-cosAngle(tmpl.Neighbors[m0], tmpl.Neighbors[m1])) > tol {
				continue
			}
			scale := (s0 + s1) / 2
			rot := pairRotation(tmpl.Neighbors[m0], tmpl.Neighbors[m1], measured[ref0], measured[ref1])
			if rot == nil {
				continue
			}
			slots, ok := assignSlots(measured[:n], tmpl, rot, scale, tol)
			if !ok {
				continue
			}
			q, ok := refineOrientation(measured[:n], tmpl, slots, tol)
			if !ok {
				continue
			}
			copy(st.slots, slots)
			st.orientation = q
			return true
		}
	}
	return false
}

// assignSlots maps each measured vector to the nearest template slot under
// the trial rotation and scale. The assignment must be injective and every
// pairing must deviate by at most tol relative to the ideal bond length.
func assignSlots(measured []r3.Vec, tmpl *lattice.Template, rot *r3.Mat, scale, tol float64) ([]int8, bool) {
	n := len(measured)
	slots := make([]int8, n)
	var taken [lattice.MaxNeighbors]bool
	for k := 0; k < n; k++ {
		best := -1
		bestDist := math.Inf(1)
		for m := 0; m < n; m++ {
			if taken[m] {
				continue
			}
			ideal := r3.Scale(scale, rot.MulVec(tmpl.Neighbors[m]))
			if d := r3.Norm(r3.Sub(measured[k], ideal)); d < bestDist {
				best, bestDist = m, d
			}
		}
		if best < 0 || bestDist > tol*scale*r3.Norm(tmpl.Neighbors[best]) {
			return nil, false
		}
		taken[best] = true
		slots[k] = int8(best)
	}
	return slots, true
}

// refineOrientation runs a least-squares fit over the full assignment and
// re-checks every bond against the refined orientation.
func refineOrientation(measured []r3.Vec, tmpl *lattice.Template, slots []int8, tol float64) (*r3.Mat, bool) {
	ideal := make([]r3.Vec, len(measured))
	for k := range measured {
		ideal[k] = tmpl.Neighbors[slots[k]]
	}
	rot, scale, err := linalg.Kabsch(measured, ideal)
	if err != nil {
		return nil, false
	}
	q := linalg.ScaleMat(scale, rot)
	for k := range measured {
		want := q.MulVec(ideal[k])
		if r3.Norm(r3.Sub(measured[k], want)) > tol*r3.Norm(want) {
			return nil, false
		}
	}
	return q, true
}

// pairRotation builds the rotation that carries the template pair (ta, tb)
// onto the measured pair (ma, mb) by aligning their orthonormal triads.
// Returns nil for degenerate (collinear) pairs.
func pairRotation(ta, tb, ma, mb r3.Vec) *r3.Mat {
	ft, ok := triad(ta, tb)
	if !ok {
		return nil
	}
	fm, ok := triad(ma, mb)
	if !ok {
		return nil
	}
	rot := r3.NewMat(nil)
	rot.Mul(fm, ft.T())
	return rot
}

// triad builds an orthonormal frame matrix whose columns are derived from a
// and b.
func triad(va, vb r3.Vec) (*r3.Mat, bool) {
	e1 := r3.Unit(va)
	p := r3.Sub(vb, r3.Scale(r3.Dot(vb, e1), e1))
	if r3.Norm(p) < 1e-9*r3.Norm(vb) {
		return nil, false
	}
	e2 := r3.Unit(p)
	e3 := r3.Cross(e1, e2)
	m := r3.NewMat(nil)
	for r, e := range []r3.Vec{e1, e2, e3} {
		m.Set(0, r, e.X)
		m.Set(1, r, e.Y)
		m.Set(2, r, e.Z)
	}
	return m, true
}

func cosAngle(a, b r3.Vec) float64 {
	return r3.Dot(a, b) / (r3.Norm(a) * r3.Norm(b))
}
