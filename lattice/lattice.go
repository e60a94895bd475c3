package lattice

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// StructureType identifies the local lattice structure assigned to an atom.
type StructureType int

// Supported lattice structure types. Other marks atoms whose neighborhood
// matched no template.
const (
	Other StructureType = iota
	FCC
	HCP
	BCC
	CubicDiamond
	HexDiamond
)

// structureNames maps structure types to their display names.
var structureNames = [...]string{"OTHER", "FCC", "HCP", "BCC", "CubicDiamond", "HexagonalDiamond"}

// String returns the display name of the structure type.
func (s StructureType) String() string {
	if s < 0 || int(s) >= len(structureNames) {
		return "OTHER"
	}
	return structureNames[s]
}

// Count is the number of defined structure types, including Other.
const Count = 6

// Template describes the ideal neighbor shell of one lattice structure in a
// local lattice frame (length unit: conventional lattice constant).
type Template struct {
	// Structure is the lattice type this template describes.
	Structure StructureType

	// Neighbors holds the ideal neighbor vectors, ordered by increasing
	// length, then lexicographically. The order is deterministic and stable.
	Neighbors []r3.Vec

	// NearestDistance is the ideal first-neighbor distance in lattice units.
	NearestDistance float64

	// CutoffFactor scales the measured nearest-neighbor distance to the
	// neighbor-search cutoff that captures exactly the template shell.
	CutoffFactor float64

	// Partner is the planar-defect partner structure (FCC↔HCP and cubic↔
	// hexagonal diamond); Other if the structure has none. Atoms of the
	// partner type are treated as crystalline when imperfect (partial)
	// dislocations are requested.
	Partner StructureType
}

// MaxNeighbors is the largest neighbor count of any template.
const MaxNeighbors = 16

var templates [Count]*Template

// TemplateOf returns the neighbor template for the given structure type, or
// nil for Other.
func TemplateOf(s StructureType) *Template {
	if s <= Other || int(s) >= Count {
		return nil
	}
	return templates[s]
}

func init() {
	templates[FCC] = &Template{
		Structure:       FCC,
		Neighbors:       sortVectors(permuteSigns(0.5, 0.5, 0)),
		NearestDistance: math.Sqrt(0.5),
		CutoffFactor:    1.21,
		Partner:         HCP,
	}
	templates[HCP] = &Template{
		Structure:       HCP,
		Neighbors:       sortVectors(hcpShell(math.Sqrt(0.5))),
		NearestDistance: math.Sqrt(0.5),
		CutoffFactor:    1.21,
		Partner:         FCC,
	}
	bccNeighbors := append(permuteSigns(0.5, 0.5, 0.5), permuteSigns(1, 0, 0)...)
	templates[BCC] = &Template{
		Structure:       BCC,
		Neighbors:       sortVectors(bccNeighbors),
		NearestDistance: math.Sqrt(3) / 2,
		CutoffFactor:    1.30,
		Partner:         Other,
	}
	cdNeighbors := append(diamondBonds(), permuteSigns(0.5, 0.5, 0)...)
	templates[CubicDiamond] = &Template{
		Structure:       CubicDiamond,
		Neighbors:       sortVectors(cdNeighbors),
		NearestDistance: math.Sqrt(3) / 4,
		CutoffFactor:    1.77,
		Partner:         HexDiamond,
	}
	templates[HexDiamond] = &Template{
		Structure:       HexDiamond,
		Neighbors:       sortVectors(hexDiamondShell()),
		NearestDistance: math.Sqrt(3) / 4,
		CutoffFactor:    1.77,
		Partner:         CubicDiamond,
	}

	initFamilies()
}

// permuteSigns generates every distinct coordinate permutation and sign
// combination of (x, y, z).
func permuteSigns(x, y, z float64) []r3.Vec {
	perms := [][3]float64{
		{x, y, z}, {x, z, y}, {y, x, z}, {y, z, x}, {z, x, y}, {z, y, x},
	}
	seen := make(map[[3]float64]bool)
	var out []r3.Vec
	for _, p := range perms {
		for sx := -1.0; sx <= 1; sx += 2 {
			for sy := -1.0; sy <= 1; sy += 2 {
				for sz := -1.0; sz <= 1; sz += 2 {
					v := [3]float64{sx * p[0], sy * p[1], sz * p[2]}
					// Normalize signed zeros so deduplication works.
					for i := range v {
						if v[i] == 0 {
							v[i] = 0
						}
					}
					if !seen[v] {
						seen[v] = true
						out = append(out, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
					}
				}
			}
		}
	}
	return out
}

// hcpShell generates the 12-neighbor shell of an ideal hcp lattice with
// in-plane spacing a (c/a = sqrt(8/3)).
func hcpShell(a float64) []r3.Vec {
	c := a * math.Sqrt(8.0/3.0)
	out := make([]r3.Vec, 0, 12)
	for k := 0; k < 6; k++ {
		ang := float64(k) * math.Pi / 3
		out = append(out, r3.Vec{X: a * math.Cos(ang), Y: a * math.Sin(ang)})
	}
	r := a / math.Sqrt(3)
	for k := 0; k < 3; k++ {
		ang := math.Pi/6 + float64(k)*2*math.Pi/3
		out = append(out, r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang), Z: c / 2})
	}
	for k := 0; k < 3; k++ {
		ang := math.Pi/2 + float64(k)*2*math.Pi/3
		out = append(out, r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang), Z: -c / 2})
	}
	return out
}

// diamondBonds returns the four tetrahedral bond vectors of the cubic diamond
// lattice.
func diamondBonds() []r3.Vec {
	return []r3.Vec{
		{X: 0.25, Y: 0.25, Z: 0.25},
		{X: 0.25, Y: -0.25, Z: -0.25},
		{X: -0.25, Y: 0.25, Z: -0.25},
		{X: -0.25, Y: -0.25, Z: 0.25},
	}
}

// hexDiamondShell generates the 4 bond vectors plus the 12-vector sublattice
// shell of the hexagonal diamond (lonsdaleite) structure, scaled so the bond
// length matches cubic diamond.
func hexDiamondShell() []r3.Vec {
	d := math.Sqrt(3) / 4 // bond length
	out := make([]r3.Vec, 0, 16)
	// One bond along +z, three below.
	out = append(out, r3.Vec{Z: d})
	r := d * 2 * math.Sqrt(2) / 3
	for k := 0; k < 3; k++ {
		ang := math.Pi/6 + float64(k)*2*math.Pi/3
		out = append(out, r3.Vec{X: r * math.Cos(ang), Y: r * math.Sin(ang), Z: -d / 3})
	}
	// Second shell: the hcp arrangement of the heavy sublattice.
	out = append(out, hcpShell(d*math.Sqrt(8.0/3.0))...)
	return out
}

// sortVectors orders vectors by length, then lexicographically, giving every
// template a stable, deterministic neighbor order.
func sortVectors(vs []r3.Vec) []r3.Vec {
	out := append([]r3.Vec(nil), vs...)
	less := func(a, b r3.Vec) bool {
		la, lb := r3.Norm2(a), r3.Norm2(b)
		if math.Abs(la-lb) > 1e-12 {
			return la < lb
		}
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	}
	// Insertion sort keeps this allocation-free; templates are tiny.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && less(out[j], out[j-1]); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
