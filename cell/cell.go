package cell

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/linalg"
)

// Sentinel errors for cell construction and geometric validation.
var (
	// ErrCell2D indicates that the three cell vectors do not span a proper
	// three-dimensional volume. Flat (2D) cells are not supported by the
	// dislocation analysis.
	ErrCell2D = errors.New("cell: simulation cell is degenerate (2D cells are not supported)")

	// ErrCellTooSmall indicates that a periodic cell extent is smaller than
	// required by the requested ghost layer or probe radius. The caller must
	// surface this as a user-facing input error, not attempt to continue.
	ErrCellTooSmall = errors.New("cell: simulation cell is too small along a periodic direction")
)

// degenerateVolumeEps is the relative volume threshold below which a cell is
// considered flat.
const degenerateVolumeEps = 1e-12

// Cell is an immutable simulation cell. The cell matrix holds the three cell
// vectors as columns; Origin is the position of the cell corner at reduced
// coordinate (0,0,0).
type Cell struct {
	m      *r3.Mat // column j = cell vector j
	inv    *r3.Mat // inverse of m, maps absolute to reduced coordinates
	origin r3.Vec
	pbc    [3]bool
	volume float64
}

// New constructs a Cell from three cell vectors, an origin, and per-direction
// periodicity flags. It returns ErrCell2D if the vectors do not span a
// three-dimensional volume.
func New(a, b, c, origin r3.Vec, pbc [3]bool) (*Cell, error) {
	m := r3.NewMat([]float64{
		a.X, b.X, c.X,
		a.Y, b.Y, c.Y,
		a.Z, b.Z, c.Z,
	})
	vol := m.Det()
	scale := r3.Norm(a) * r3.Norm(b) * r3.Norm(c)
	if scale == 0 || math.Abs(vol) <= degenerateVolumeEps*scale {
		return nil, ErrCell2D
	}
	inv, err := linalg.Inverse(m)
	if err != nil {
		return nil, ErrCell2D
	}
	return &Cell{m: m, inv: inv, origin: origin, pbc: pbc, volume: math.Abs(vol)}, nil
}

// NewOrthorhombic constructs an axis-aligned cell with extents lx, ly, lz and
// origin at (0,0,0).
func NewOrthorhombic(lx, ly, lz float64, pbc [3]bool) (*Cell, error) {
	return New(
		r3.Vec{X: lx}, r3.Vec{Y: ly}, r3.Vec{Z: lz},
		r3.Vec{}, pbc,
	)
}

// Matrix returns the cell matrix (cell vectors as columns).
func (c *Cell) Matrix() *r3.Mat { return c.m }

// Origin returns the cell origin.
func (c *Cell) Origin() r3.Vec { return c.origin }

// Periodic reports whether direction dim (0..2) has periodic boundaries.
func (c *Cell) Periodic(dim int) bool { return c.pbc[dim] }

// PBC returns all three periodicity flags.
func (c *Cell) PBC() [3]bool { return c.pbc }

// Volume returns the cell volume.
func (c *Cell) Volume() float64 { return c.volume }

// Vector returns cell vector dim (0..2).
func (c *Cell) Vector(dim int) r3.Vec {
	return r3.Vec{X: c.m.At(0, dim), Y: c.m.At(1, dim), Z: c.m.At(2, dim)}
}

// ReducedToAbsolute converts reduced (fractional) coordinates to an absolute
// position.
func (c *Cell) ReducedToAbsolute(r r3.Vec) r3.Vec {
	return r3.Add(c.origin, c.m.MulVec(r))
}

// AbsoluteToReduced converts an absolute position to reduced coordinates.
func (c *Cell) AbsoluteToReduced(p r3.Vec) r3.Vec {
	return c.inv.MulVec(r3.Sub(p, c.origin))
}

// reducedVector converts a displacement vector to reduced coordinates.
func (c *Cell) reducedVector(v r3.Vec) r3.Vec {
	return c.inv.MulVec(v)
}

// WrapVector applies the minimum-image convention to a displacement vector:
// along each periodic direction the reduced component is shifted into
// [-0.5, 0.5).
func (c *Cell) WrapVector(v r3.Vec) r3.Vec {
	red := c.reducedVector(v)
	shift := r3.Vec{}
	changed := false
	for dim := 0; dim < 3; dim++ {
		if !c.pbc[dim] {
			continue
		}
		rc := component(red, dim)
		s := math.Floor(rc + 0.5)
		if s != 0 {
			changed = true
			shift = r3.Sub(shift, r3.Scale(s, c.Vector(dim)))
		}
	}
	if !changed {
		return v
	}
	return r3.Add(v, shift)
}

// WrapPoint wraps a point into the primary cell image along all periodic
// directions.
func (c *Cell) WrapPoint(p r3.Vec) r3.Vec {
	red := c.AbsoluteToReduced(p)
	out := p
	for dim := 0; dim < 3; dim++ {
		if !c.pbc[dim] {
			continue
		}
		s := math.Floor(component(red, dim))
		if s != 0 {
			out = r3.Sub(out, r3.Scale(s, c.Vector(dim)))
		}
	}
	return out
}

// IsWrappedVector reports whether v spans more than half of the periodic cell
// along any periodic direction. Such a vector indicates that the cell is too
// small relative to the local feature size.
func (c *Cell) IsWrappedVector(v r3.Vec) bool {
	const eps = 1e-9
	red := c.reducedVector(v)
	for dim := 0; dim < 3; dim++ {
		if c.pbc[dim] && math.Abs(component(red, dim)) >= 0.5+eps {
			return true
		}
	}
	return false
}

// PerpendicularWidth returns the distance between the two cell faces
// orthogonal to cell direction dim. For ghost-layer validation this is the
// relevant "size" of the cell along dim.
func (c *Cell) PerpendicularWidth(dim int) float64 {
	b := c.Vector((dim + 1) % 3)
	d := c.Vector((dim + 2) % 3)
	area := r3.Norm(r3.Cross(b, d))
	if area == 0 {
		return 0
	}
	return c.volume / area
}

// ValidateGhostLayer verifies that every periodic cell extent can accommodate
// a ghost layer of the given thickness (cell width must be at least twice the
// layer). Returns ErrCellTooSmall on violation.
func (c *Cell) ValidateGhostLayer(thickness float64) error {
	for dim := 0; dim < 3; dim++ {
		if c.pbc[dim] && c.PerpendicularWidth(dim) < 2*thickness {
			return ErrCellTooSmall
		}
	}
	return nil
}

// component extracts coordinate dim from a vector.
func component(v r3.Vec, dim int) float64 {
	switch dim {
	case 0:
		return v.X
	case 1:
		return v.Y
	default:
		return v.Z
	}
}
