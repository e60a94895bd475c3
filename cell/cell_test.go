package cell_test

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
)

func TestNew_Rejects2DCell(t *testing.T) {
	// Third cell vector lies in the plane of the first two.
	_, err := cell.New(
		r3.Vec{X: 10}, r3.Vec{Y: 10}, r3.Vec{X: 3, Y: 4},
		r3.Vec{}, [3]bool{true, true, true},
	)
	if !errors.Is(err, cell.ErrCell2D) {
		t.Fatalf("degenerate cell: want ErrCell2D, got %v", err)
	}
}

func TestVolumeAndWidth(t *testing.T) {
	c, err := cell.NewOrthorhombic(4, 5, 6, [3]bool{true, true, true})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := c.Volume(), 120.0; math.Abs(got-want) > 1e-12 {
		t.Errorf("Volume = %v; want %v", got, want)
	}
	for dim, want := range []float64{4, 5, 6} {
		if got := c.PerpendicularWidth(dim); math.Abs(got-want) > 1e-12 {
			t.Errorf("PerpendicularWidth(%d) = %v; want %v", dim, got, want)
		}
	}
}

func TestWrapVector_MinimumImage(t *testing.T) {
	c, err := cell.NewOrthorhombic(10, 10, 10, [3]bool{true, false, true})
	if err != nil {
		t.Fatal(err)
	}
	v := c.WrapVector(r3.Vec{X: 9, Y: 9, Z: -6})
	if math.Abs(v.X - -1) > 1e-12 {
		t.Errorf("X wrapped to %v; want -1", v.X)
	}
	// Y is not periodic and must pass through unchanged.
	if v.Y != 9 {
		t.Errorf("Y = %v; want 9 (non-periodic)", v.Y)
	}
	if math.Abs(v.Z-4) > 1e-12 {
		t.Errorf("Z wrapped to %v; want 4", v.Z)
	}
}

func TestReducedRoundTrip(t *testing.T) {
	// A sheared, non-orthogonal cell.
	c, err := cell.New(
		r3.Vec{X: 8, Y: 1}, r3.Vec{Y: 7, Z: 2}, r3.Vec{X: 0.5, Z: 9},
		r3.Vec{X: -1, Y: 2, Z: 3}, [3]bool{true, true, true},
	)
	if err != nil {
		t.Fatal(err)
	}
	p := r3.Vec{X: 1.25, Y: -0.5, Z: 4}
	back := c.ReducedToAbsolute(c.AbsoluteToReduced(p))
	if r3.Norm(r3.Sub(back, p)) > 1e-9 {
		t.Errorf("round trip: got %v; want %v", back, p)
	}
}

func TestIsWrappedVector(t *testing.T) {
	c, err := cell.NewOrthorhombic(10, 10, 10, [3]bool{true, true, false})
	if err != nil {
		t.Fatal(err)
	}
	if c.IsWrappedVector(r3.Vec{X: 4.9}) {
		t.Error("vector shorter than half the cell must not be wrapped")
	}
	if !c.IsWrappedVector(r3.Vec{X: 5.1}) {
		t.Error("vector longer than half the cell must be wrapped")
	}
	// Non-periodic direction is never wrapped.
	if c.IsWrappedVector(r3.Vec{Z: 9}) {
		t.Error("non-periodic direction must not be wrapped")
	}
}

func TestValidateGhostLayer(t *testing.T) {
	c, err := cell.NewOrthorhombic(10, 10, 10, [3]bool{true, true, true})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.ValidateGhostLayer(4.9); err != nil {
		t.Errorf("ghost layer 4.9 in a 10-wide cell must fit: %v", err)
	}
	if err := c.ValidateGhostLayer(5.1); !errors.Is(err, cell.ErrCellTooSmall) {
		t.Errorf("ghost layer 5.1: want ErrCellTooSmall, got %v", err)
	}
}
