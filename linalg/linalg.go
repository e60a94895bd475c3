// Package linalg provides the small set of 3×3 matrix operations shared by
// the analysis stages: products, inverses, orthonormalization (polar
// decomposition), and the Kabsch best-fit rotation. Vectors and matrices are
// the gonum spatial/r3 types used throughout the module.
package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrSingular indicates a matrix with no inverse.
var ErrSingular = errors.New("linalg: matrix is singular")

// Identity returns a new 3×3 identity matrix.
func Identity() *r3.Mat {
	return r3.NewMat([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// NewFromRows builds a matrix from nine row-major values.
func NewFromRows(v [9]float64) *r3.Mat {
	return r3.NewMat(v[:])
}

// Clone returns a copy of m.
func Clone(m *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.CloneFrom(m)
	return out
}

// Mul returns the product a·b.
func Mul(a, b *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.Mul(a, b)
	return out
}

// Transpose returns a copy of the transpose of m.
func Transpose(m *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.CloneFrom(m.T())
	return out
}

// Inverse returns the inverse of m computed by the adjugate rule, or
// ErrSingular.
func Inverse(m *r3.Mat) (*r3.Mat, error) {
	d := m.Det()
	if d == 0 || math.IsNaN(d) {
		return nil, ErrSingular
	}
	a, b, c := m.At(0, 0), m.At(0, 1), m.At(0, 2)
	e, f, g := m.At(1, 0), m.At(1, 1), m.At(1, 2)
	h, i, j := m.At(2, 0), m.At(2, 1), m.At(2, 2)
	return r3.NewMat([]float64{
		(f*j - g*i) / d, (c*i - b*j) / d, (b*g - c*f) / d,
		(g*h - e*j) / d, (a*j - c*h) / d, (c*e - a*g) / d,
		(e*i - f*h) / d, (b*h - a*i) / d, (a*f - b*e) / d,
	}), nil
}

// Equals reports whether a and b agree element-wise within eps.
func Equals(a, b *r3.Mat, eps float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.Abs(a.At(i, j)-b.At(i, j)) > eps {
				return false
			}
		}
	}
	return true
}

// EqualsIdentity reports whether m is the identity within eps.
func EqualsIdentity(m *r3.Mat, eps float64) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			if math.Abs(m.At(i, j)-want) > eps {
				return false
			}
		}
	}
	return true
}

// Orthonormalize returns the rotation factor of the polar decomposition of m
// (the closest proper rotation in the Frobenius sense), computed via SVD.
// Returns ErrSingular if m has no full rank.
func Orthonormalize(m *r3.Mat) (*r3.Mat, error) {
	var svd mat.SVD
	if !svd.Factorize(m, mat.SVDFull) {
		return nil, ErrSingular
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r := r3.NewMat(nil)
	r.Mul(&u, v.T())
	if r.Det() < 0 {
		// Flip the axis of the smallest singular value to keep a proper
		// rotation.
		flip := mat.NewDiagDense(3, []float64{1, 1, -1})
		tmp := r3.NewMat(nil)
		tmp.Mul(&u, flip)
		r.Mul(tmp, v.T())
	}
	return r, nil
}

// Kabsch computes the proper rotation R minimizing Σ|p_i − R·q_i|² together
// with the uniform scale s minimizing Σ|p_i − s·R·q_i|². The inputs must have
// equal nonzero length.
func Kabsch(p, q []r3.Vec) (rot *r3.Mat, scale float64, err error) {
	if len(p) != len(q) || len(p) == 0 {
		return nil, 0, errors.New("linalg: Kabsch inputs must have equal nonzero length")
	}
	// Cross-covariance H = Σ q_i p_iᵀ.
	var h [9]float64
	for k := range p {
		h[0] += q[k].X * p[k].X
		h[1] += q[k].X * p[k].Y
		h[2] += q[k].X * p[k].Z
		h[3] += q[k].Y * p[k].X
		h[4] += q[k].Y * p[k].Y
		h[5] += q[k].Y * p[k].Z
		h[6] += q[k].Z * p[k].X
		h[7] += q[k].Z * p[k].Y
		h[8] += q[k].Z * p[k].Z
	}
	hm := r3.NewMat(h[:])
	var svd mat.SVD
	if !svd.Factorize(hm.T(), mat.SVDFull) {
		return nil, 0, ErrSingular
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r := r3.NewMat(nil)
	r.Mul(&u, v.T())
	if r.Det() < 0 {
		flip := mat.NewDiagDense(3, []float64{1, 1, -1})
		tmp := r3.NewMat(nil)
		tmp.Mul(&u, flip)
		r.Mul(tmp, v.T())
	}
	var num, den float64
	for k := range p {
		rq := r.MulVec(q[k])
		num += r3.Dot(p[k], rq)
		den += r3.Norm2(q[k])
	}
	if den == 0 {
		return nil, 0, ErrSingular
	}
	return r, num / den, nil
}

// ScaleMat returns s·m.
func ScaleMat(s float64, m *r3.Mat) *r3.Mat {
	out := r3.NewMat(nil)
	out.Scale(s, m)
	return out
}
