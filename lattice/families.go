package lattice

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// BurgersFamily is one crystallographic family of Burgers vectors, e.g. the
// 1/6<112> Shockley partials of the fcc lattice.
type BurgersFamily struct {
	// Name is the display name used in output attributes, e.g. "1/6<112>".
	Name string

	// Prototype is one representative member of the family.
	Prototype r3.Vec

	// Members holds every vector of the family in the lattice frame.
	Members []r3.Vec
}

// Contains reports whether b matches a member of the family within eps
// (absolute, per component, in lattice units).
func (f *BurgersFamily) Contains(b r3.Vec, eps float64) bool {
	for _, m := range f.Members {
		if vecEquals(b, m, eps) {
			return true
		}
	}
	return false
}

func vecEquals(a, b r3.Vec, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps && math.Abs(a.Y-b.Y) <= eps && math.Abs(a.Z-b.Z) <= eps
}

var families [Count][]*BurgersFamily

// FamiliesOf returns the Burgers vector families of the given structure type
// in classification order.
func FamiliesOf(s StructureType) []*BurgersFamily {
	if s <= Other || int(s) >= Count {
		return nil
	}
	return families[s]
}

// ClassifyBurgers returns the first family of the structure whose member set
// contains b within eps, or nil if none matches. First-match order is part of
// the output contract.
func ClassifyBurgers(s StructureType, b r3.Vec, eps float64) *BurgersFamily {
	for _, f := range FamiliesOf(s) {
		if f.Contains(b, eps) {
			return f
		}
	}
	return nil
}

func initFamilies() {
	fccFamilies := []*BurgersFamily{
		cubicFamily("1/2<110>", 0.5, 0.5, 0),
		cubicFamily("1/6<112>", 1.0/6, 1.0/6, 2.0/6),
		cubicFamily("1/6<110>", 1.0/6, 1.0/6, 0),
		cubicFamily("1/3<100>", 1.0/3, 0, 0),
		cubicFamily("1/3<111>", 1.0/3, 1.0/3, 1.0/3),
	}
	families[FCC] = fccFamilies
	// Both diamond structures dissociate on the same {111} systems as fcc.
	families[CubicDiamond] = fccFamilies

	families[BCC] = []*BurgersFamily{
		cubicFamily("1/2<111>", 0.5, 0.5, 0.5),
		cubicFamily("<100>", 1, 0, 0),
		cubicFamily("<110>", 1, 1, 0),
	}

	a := math.Sqrt(0.5)
	c := a * math.Sqrt(8.0/3.0)
	hcpFamilies := []*BurgersFamily{
		{Name: "1/3<1-210>", Prototype: r3.Vec{X: a}, Members: basalVectors(a, 0)},
		{Name: "<0001>", Prototype: r3.Vec{Z: c}, Members: []r3.Vec{{Z: c}, {Z: -c}}},
		{Name: "1/3<1-100>", Prototype: r3.Vec{X: a / math.Sqrt(3) * math.Cos(math.Pi/6), Y: a / math.Sqrt(3) * math.Sin(math.Pi/6)}, Members: basalVectors(a/math.Sqrt(3), math.Pi/6)},
		{Name: "1/6<2-203>", Prototype: r3.Vec{X: a / math.Sqrt(3) * math.Cos(math.Pi/6), Y: a / math.Sqrt(3) * math.Sin(math.Pi/6), Z: c / 2}, Members: pyramidalVectors(a/math.Sqrt(3), c/2, math.Pi/6)},
		{Name: "1/3<1-213>", Prototype: r3.Vec{X: a, Z: c}, Members: pyramidalVectors(a, c, 0)},
	}
	families[HCP] = hcpFamilies
	families[HexDiamond] = hcpFamilies
}

// cubicFamily builds a family from every sign/permutation image of the
// prototype (x, y, z).
func cubicFamily(name string, x, y, z float64) *BurgersFamily {
	return &BurgersFamily{
		Name:      name,
		Prototype: r3.Vec{X: x, Y: y, Z: z},
		Members:   permuteSigns(x, y, z),
	}
}

// basalVectors returns the six in-plane vectors of length r starting at phase
// angle phase.
func basalVectors(r, phase float64) []r3.Vec {
	out := make([]r3.Vec, 0, 6)
	for k := 0; k < 6; k++ {
		ang := phase + float64(k)*math.Pi/3
		out = append(out, r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang)})
	}
	return out
}

// pyramidalVectors returns the twelve vectors combining a basal component of
// length r at phase angle phase with an out-of-plane component ±z. The
// <2-203> basal parts line up with the <1-100> directions and the <1-213>
// basal parts with the <1-210> directions, so the two families carry
// different phases.
func pyramidalVectors(r, z, phase float64) []r3.Vec {
	out := make([]r3.Vec, 0, 12)
	for k := 0; k < 6; k++ {
		ang := phase + float64(k)*math.Pi/3
		out = append(out,
			r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang), Z: z},
			r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang), Z: -z},
		)
	}
	return out
}

// FormatVector renders a Burgers vector as a crystallographic direction
// string, e.g. "1/6<112>". Vectors that do not reduce to a small rational
// form are rendered numerically.
func FormatVector(b r3.Vec) string {
	const eps = 1e-3
	for _, den := range []int{1, 2, 3, 6, 12} {
		x := b.X * float64(den)
		y := b.Y * float64(den)
		z := b.Z * float64(den)
		if isNearInt(x, eps) && isNearInt(y, eps) && isNearInt(z, eps) {
			ix, iy, iz := absInt(x), absInt(y), absInt(z)
			// Canonical digit order: descending.
			if ix < iy {
				ix, iy = iy, ix
			}
			if iy < iz {
				iy, iz = iz, iy
			}
			if ix < iy {
				ix, iy = iy, ix
			}
			if ix == 0 {
				break
			}
			if den == 1 {
				return fmt.Sprintf("<%d%d%d>", ix, iy, iz)
			}
			return fmt.Sprintf("1/%d<%d%d%d>", den, ix, iy, iz)
		}
	}
	return fmt.Sprintf("%.3f %.3f %.3f", b.X, b.Y, b.Z)
}

func isNearInt(v, eps float64) bool {
	return math.Abs(v-math.Round(v)) <= eps
}

func absInt(v float64) int {
	i := int(math.Round(v))
	if i < 0 {
		return -i
	}
	return i
}
