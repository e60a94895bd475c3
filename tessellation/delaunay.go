package tessellation

import (
	"context"
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrDegenerate indicates a point set the incremental insertion could not
// triangulate (all points coplanar, or a point outside the bounding volume).
var ErrDegenerate = errors.New("tessellation: degenerate point configuration")

// locateGranularity is the insertion interval between cancellation checks.
const locateGranularity = 1024

type tet struct {
	v     [4]int32
	nbr   [4]int32
	alive bool
}

// triangulator holds the mutable Bowyer-Watson state. pts carries the
// jittered coordinates of the real vertices followed by the four
// super-tetrahedron vertices.
type triangulator struct {
	pts   []r3.Vec
	super int // index of the first super vertex
	tets  []tet
	last  int32 // recently created tet, walk start

	stamp   []uint32
	inCav   []int32
	epoch   uint32
	scratch []int32
}

func (t *Tessellation) triangulate(ctx context.Context, ghostLayer float64) error {
	n := len(t.verts)
	if n < 4 {
		return ErrDegenerate
	}
	pts := make([]r3.Vec, n+4)
	eps := ghostLayer * 1e-6
	lo := t.verts[0].Pos
	hi := lo
	for i, v := range t.verts {
		pts[i] = r3.Add(v.Pos, jitter(jitterKey(v.Atom, v.image), eps))
		lo = r3.Vec{X: math.Min(lo.X, v.Pos.X), Y: math.Min(lo.Y, v.Pos.Y), Z: math.Min(lo.Z, v.Pos.Z)}
		hi = r3.Vec{X: math.Max(hi.X, v.Pos.X), Y: math.Max(hi.Y, v.Pos.Y), Z: math.Max(hi.Z, v.Pos.Z)}
	}
	center := r3.Scale(0.5, r3.Add(lo, hi))
	radius := 0.5*r3.Norm(r3.Sub(hi, lo)) + ghostLayer
	big := 100 * radius
	pts[n+0] = r3.Add(center, r3.Vec{X: big, Y: big, Z: big})
	pts[n+1] = r3.Add(center, r3.Vec{X: big, Y: -big, Z: -big})
	pts[n+2] = r3.Add(center, r3.Vec{X: -big, Y: big, Z: -big})
	pts[n+3] = r3.Add(center, r3.Vec{X: -big, Y: -big, Z: big})

	d := &triangulator{pts: pts, super: n}
	first := tet{v: [4]int32{int32(n), int32(n + 1), int32(n + 2), int32(n + 3)}, nbr: [4]int32{-1, -1, -1, -1}, alive: true}
	if d.orient(first.v[0], first.v[1], first.v[2], first.v[3]) < 0 {
		first.v[1], first.v[2] = first.v[2], first.v[1]
	}
	d.tets = append(d.tets, first)

	for i := 0; i < n; i++ {
		if i%locateGranularity == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := d.insert(int32(i)); err != nil {
			return err
		}
	}
	t.extract(d)
	return nil
}

func (d *triangulator) orient(a, b, c, p int32) float64 {
	return orient3d(d.pts[a], d.pts[b], d.pts[c], d.pts[p])
}

// orient3d is positive when p lies on the positive side of the plane
// through a, b, c (counter-clockwise seen from the positive side).
func orient3d(a, b, c, p r3.Vec) float64 {
	return r3.Dot(r3.Sub(b, a), r3.Cross(r3.Sub(c, a), r3.Sub(p, a)))
}

// inSphere reports whether p is inside the circumsphere of the positively
// oriented tetrahedron ti.
func (d *triangulator) inSphere(ti int32, p r3.Vec) bool {
	tt := &d.tets[ti]
	var m [4][4]float64
	for r := 0; r < 4; r++ {
		q := r3.Sub(d.pts[tt.v[r]], p)
		m[r] = [4]float64{q.X, q.Y, q.Z, r3.Norm2(q)}
	}
	return det4(&m) < 0
}

func det4(m *[4][4]float64) float64 {
	det := 0.0
	sign := 1.0
	for c := 0; c < 4; c++ {
		var sub [3][3]float64
		for r := 1; r < 4; r++ {
			cc := 0
			for k := 0; k < 4; k++ {
				if k == c {
					continue
				}
				sub[r-1][cc] = m[r][k]
				cc++
			}
		}
		det += sign * m[0][c] * det3(&sub)
		sign = -sign
	}
	return det
}

func det3(m *[3][3]float64) float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// locate walks the adjacency from the most recent tet toward the tet
// containing p, falling back to a scan when the walk stalls.
func (d *triangulator) locate(p r3.Vec) (int32, error) {
	cur := d.last
	if cur < 0 || int(cur) >= len(d.tets) || !d.tets[cur].alive {
		cur = d.anyAlive()
	}
	for steps := 0; steps < 4*len(d.tets)+16; steps++ {
		tt := &d.tets[cur]
		moved := false
		for f := 0; f < 4; f++ {
			fv := FacetVertices[f]
			if orient3d(d.pts[tt.v[fv[0]]], d.pts[tt.v[fv[1]]], d.pts[tt.v[fv[2]]], p) > 0 {
				if tt.nbr[f] < 0 {
					return -1, ErrDegenerate
				}
				cur = tt.nbr[f]
				moved = true
				break
			}
		}
		if !moved {
			// The cavity flood is seeded here, so the circumsphere must
			// contain p. A walk stalled on a near-degenerate tet may satisfy
			// the orientation tests without that holding; fall through to
			// the scan then.
			if d.inSphere(cur, p) {
				return cur, nil
			}
			break
		}
	}
	// Scan for any tet whose circumsphere contains p. Flooding from any
	// such tet reaches the whole cavity.
	for i := range d.tets {
		if d.tets[i].alive && d.inSphere(int32(i), p) {
			return int32(i), nil
		}
	}
	return -1, ErrDegenerate
}

func (d *triangulator) anyAlive() int32 {
	for i := len(d.tets) - 1; i >= 0; i-- {
		if d.tets[i].alive {
			return int32(i)
		}
	}
	return 0
}

type boundaryFacet struct {
	v     [3]int32 // outward-ordered facet vertices
	outer int32    // tet outside the cavity, -1 at the hull
}

// insert retriangulates the cavity of tets whose circumsphere contains
// vertex vi.
func (d *triangulator) insert(vi int32) error {
	p := d.pts[vi]
	start, err := d.locate(p)
	if err != nil {
		return err
	}

	// Flood the cavity.
	if len(d.stamp) < len(d.tets) {
		d.stamp = make([]uint32, 2*len(d.tets)+1024)
		d.epoch = 0
	}
	d.epoch++
	cavity := d.inCav[:0]
	d.scratch = append(d.scratch[:0], start)
	d.stamp[start] = d.epoch
	for len(d.scratch) > 0 {
		cur := d.scratch[len(d.scratch)-1]
		d.scratch = d.scratch[:len(d.scratch)-1]
		cavity = append(cavity, cur)
		for f := 0; f < 4; f++ {
			nb := d.tets[cur].nbr[f]
			if nb < 0 || d.stamp[nb] == d.epoch {
				continue
			}
			if d.inSphere(nb, p) {
				d.stamp[nb] = d.epoch
				d.scratch = append(d.scratch, nb)
			}
		}
	}
	d.inCav = cavity

	// Collect boundary facets, then retire the cavity.
	var boundary []boundaryFacet
	for _, ci := range cavity {
		tt := &d.tets[ci]
		for f := 0; f < 4; f++ {
			nb := tt.nbr[f]
			if nb >= 0 && d.stamp[nb] == d.epoch {
				continue
			}
			fv := FacetVertices[f]
			boundary = append(boundary, boundaryFacet{
				v:     [3]int32{tt.v[fv[0]], tt.v[fv[1]], tt.v[fv[2]]},
				outer: nb,
			})
		}
	}
	for _, ci := range cavity {
		d.tets[ci].alive = false
	}

	// One new tet per boundary facet. The facet normal points out of the
	// cavity, so (a, c, b, vi) is positively oriented.
	edgeLink := make(map[[2]int32][2]int32, 3*len(boundary))
	for _, bf := range boundary {
		ni := int32(len(d.tets))
		nt := tet{v: [4]int32{bf.v[0], bf.v[2], bf.v[1], vi}, nbr: [4]int32{-1, -1, -1, -1}, alive: true}
		nt.nbr[3] = bf.outer
		d.tets = append(d.tets, nt)
		if bf.outer >= 0 {
			// The outer tet pointed at a retired cavity tet across this
			// facet; repoint the facet that carries the same vertex triple.
			ot := &d.tets[bf.outer]
			for f := 0; f < 4; f++ {
				fv := FacetVertices[f]
				if sameTriple(ot.v[fv[0]], ot.v[fv[1]], ot.v[fv[2]], bf.v) {
					ot.nbr[f] = ni
					break
				}
			}
		}
		// The three facets through vi are shared with sibling new tets.
		// Facet opposite local k (k<3) contains vi and the boundary edge
		// not using local vertex k.
		for k := 0; k < 3; k++ {
			fv := FacetVertices[k]
			var e [2]int32
			ei := 0
			for _, lv := range fv {
				if nt.v[lv] != vi {
					e[ei] = nt.v[lv]
					ei++
				}
			}
			if e[0] > e[1] {
				e[0], e[1] = e[1], e[0]
			}
			if other, ok := edgeLink[e]; ok {
				d.tets[ni].nbr[k] = other[0]
				d.tets[other[0]].nbr[other[1]] = ni
				delete(edgeLink, e)
			} else {
				edgeLink[e] = [2]int32{ni, int32(k)}
			}
		}
		d.last = ni
	}
	return nil
}

// sameTriple reports set equality of the vertex triples (a, b, c) and w.
func sameTriple(a, b, c int32, w [3]int32) bool {
	for _, x := range [3]int32{a, b, c} {
		if x != w[0] && x != w[1] && x != w[2] {
			return false
		}
	}
	return true
}

// extract copies the finite tets (those without super vertices) into the
// tessellation, rebuilding adjacency over the surviving set.
func (t *Tessellation) extract(d *triangulator) {
	remap := make([]int32, len(d.tets))
	for i := range remap {
		remap[i] = -1
	}
	for i := range d.tets {
		tt := &d.tets[i]
		if !tt.alive || tt.v[0] >= int32(d.super) || tt.v[1] >= int32(d.super) ||
			tt.v[2] >= int32(d.super) || tt.v[3] >= int32(d.super) {
			continue
		}
		remap[i] = int32(len(t.cells))
		t.cells = append(t.cells, Cell{V: tt.v})
	}
	t.nbr = make([][4]int32, len(t.cells))
	for i := range d.tets {
		ci := remap[i]
		if ci < 0 {
			continue
		}
		for f := 0; f < 4; f++ {
			nb := d.tets[i].nbr[f]
			if nb >= 0 && remap[nb] >= 0 {
				t.nbr[ci][f] = remap[nb]
			} else {
				t.nbr[ci][f] = -1
			}
		}
	}
}

// jitterKey folds an atom index and its periodic image offset into one
// deterministic perturbation key. Each replica must perturb differently:
// two atoms translated by the same cell vector form an isosceles trapezoid
// with their images, which is always concyclic, so a shared per-atom jitter
// would leave exact cosphericities in the ghost overlap unbroken.
func jitterKey(atom int32, image [3]int8) uint64 {
	k := uint64(uint32(atom))
	for _, o := range image {
		k = k*37 + uint64(int(o)+1)
	}
	return k
}

// jitter derives a deterministic sub-numeric perturbation from a replica key.
func jitter(key uint64, eps float64) r3.Vec {
	return r3.Vec{
		X: eps * unitHash(key*3+0),
		Y: eps * unitHash(key*3+1),
		Z: eps * unitHash(key*3+2),
	}
}

// unitHash maps a key to (-0.5, 0.5) via splitmix64.
func unitHash(key uint64) float64 {
	z := key + 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	z ^= z >> 31
	return float64(z>>11)/float64(1<<53) - 0.5
}
