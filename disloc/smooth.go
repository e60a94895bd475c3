package disloc

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// Taubin line-smoothing constants, shared with the surface mesh smoother.
const (
	smoothLambda = 0.5
	smoothKPB    = 0.1
)

// SmoothLines coarsens and smooths every live segment polyline. level is
// the number of Taubin smoothing iterations; pointInterval controls the
// coarsening spacing in multiples of the segment's average per-point core
// width. Closed loops smooth with wraparound; the endpoints of open
// segments are pinned so junctions stay put.
func (nw *Network) SmoothLines(level int, pointInterval float64) {
	for _, s := range nw.Segments() {
		closed := s.IsClosedLoop() && !s.IsInfiniteLine(nw.simCell)
		if pointInterval > 0 {
			coarsenLine(s, pointInterval, closed)
		}
		if level > 0 {
			smoothLine(s.Line, level, closed)
		}
	}
}

// coarsenLine resamples the polyline by grouping consecutive points until
// the accumulated core weight reaches pointInterval times the segment mean,
// replacing each group by its weighted centroid.
func coarsenLine(s *Segment, pointInterval float64, closed bool) {
	n := len(s.Line)
	if n < 4 {
		return
	}
	total := 0
	for _, c := range s.CoreSize {
		total += c
	}
	threshold := pointInterval * float64(total) / float64(n)
	if threshold <= 0 {
		return
	}

	var outPts []r3.Vec
	var outCore []int
	first, last := 0, n
	if !closed {
		// Keep the endpoints exact.
		outPts = append(outPts, s.Line[0])
		outCore = append(outCore, s.CoreSize[0])
		first, last = 1, n-1
	}
	var acc r3.Vec
	accW, accC, cnt := 0.0, 0, 0
	flush := func() {
		if cnt == 0 {
			return
		}
		outPts = append(outPts, r3.Scale(1/accW, acc))
		outCore = append(outCore, accC/cnt)
		acc, accW, accC, cnt = r3.Vec{}, 0, 0, 0
	}
	for i := first; i < last; i++ {
		w := float64(s.CoreSize[i])
		if w <= 0 {
			w = 1
		}
		acc = r3.Add(acc, r3.Scale(w, s.Line[i]))
		accW += w
		accC += s.CoreSize[i]
		cnt++
		if accW >= threshold {
			flush()
		}
	}
	flush()
	if !closed {
		outPts = append(outPts, s.Line[n-1])
		outCore = append(outCore, s.CoreSize[n-1])
	} else {
		for len(outPts) < 3 {
			outPts = append(outPts, s.Line[len(outPts)*n/3])
			outCore = append(outCore, s.CoreSize[len(outCore)*n/3])
		}
		// Re-close the loop.
		outPts = append(outPts, outPts[0])
		outCore = append(outCore, outCore[0])
	}
	s.Line = outPts
	s.CoreSize = outCore
}

// smoothLine runs Taubin pass-band smoothing over the polyline points.
func smoothLine(line []r3.Vec, iterations int, closed bool) {
	n := len(line)
	if n < 3 {
		return
	}
	mu := 1.0 / (smoothKPB - 1.0/smoothLambda)
	delta := make([]r3.Vec, n)
	// Closed polylines duplicate their first point at the end; smooth the
	// unique points with wraparound and restore the duplicate afterwards.
	m := n
	if closed {
		m = n - 1
	}
	pass := func(factor float64) {
		for i := range delta {
			delta[i] = r3.Vec{}
		}
		lo, hi := 1, n-1
		if closed {
			lo, hi = 0, m
		}
		for i := lo; i < hi; i++ {
			prev := line[(i-1+m)%m]
			next := line[(i+1)%m]
			mid := r3.Scale(0.5, r3.Add(prev, next))
			delta[i] = r3.Scale(factor, r3.Sub(mid, line[i]))
		}
		for i := 0; i < m; i++ {
			line[i] = r3.Add(line[i], delta[i])
		}
		if closed {
			line[n-1] = line[0]
		}
	}
	for it := 0; it < iterations; it++ {
		pass(smoothLambda)
		pass(mu)
	}
}
