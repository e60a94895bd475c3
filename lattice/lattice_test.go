package lattice_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/lattice"
)

func TestTemplates_ShellSizes(t *testing.T) {
	cases := []struct {
		structure lattice.StructureType
		neighbors int
		nearest   float64
	}{
		{lattice.FCC, 12, math.Sqrt(0.5)},
		{lattice.HCP, 12, math.Sqrt(0.5)},
		{lattice.BCC, 14, math.Sqrt(3) / 2},
		{lattice.CubicDiamond, 16, math.Sqrt(3) / 4},
		{lattice.HexDiamond, 16, math.Sqrt(3) / 4},
	}
	for _, tc := range cases {
		tmpl := lattice.TemplateOf(tc.structure)
		require.NotNil(t, tmpl, tc.structure.String())
		assert.Len(t, tmpl.Neighbors, tc.neighbors, tc.structure.String())
		// First template vector must be a nearest neighbor.
		assert.InDelta(t, tc.nearest, r3.Norm(tmpl.Neighbors[0]), 1e-9, tc.structure.String())
	}
	assert.Nil(t, lattice.TemplateOf(lattice.Other))
}

func TestTemplates_PartnerSymmetry(t *testing.T) {
	assert.Equal(t, lattice.HCP, lattice.TemplateOf(lattice.FCC).Partner)
	assert.Equal(t, lattice.FCC, lattice.TemplateOf(lattice.HCP).Partner)
	assert.Equal(t, lattice.Other, lattice.TemplateOf(lattice.BCC).Partner)
	assert.Equal(t, lattice.HexDiamond, lattice.TemplateOf(lattice.CubicDiamond).Partner)
}

func TestClassifyBurgers_FCC(t *testing.T) {
	const eps = 1e-4

	perfect := lattice.ClassifyBurgers(lattice.FCC, r3.Vec{X: 0.5, Y: -0.5}, eps)
	require.NotNil(t, perfect)
	assert.Equal(t, "1/2<110>", perfect.Name)

	shockley := lattice.ClassifyBurgers(lattice.FCC, r3.Vec{X: 1.0 / 6, Y: 1.0 / 6, Z: -2.0 / 6}, eps)
	require.NotNil(t, shockley)
	assert.Equal(t, "1/6<112>", shockley.Name)

	frank := lattice.ClassifyBurgers(lattice.FCC, r3.Vec{X: -1.0 / 3, Y: 1.0 / 3, Z: 1.0 / 3}, eps)
	require.NotNil(t, frank)
	assert.Equal(t, "1/3<111>", frank.Name)

	assert.Nil(t, lattice.ClassifyBurgers(lattice.FCC, r3.Vec{X: 0.4, Y: 0.1, Z: 0.1}, eps))
	assert.Nil(t, lattice.ClassifyBurgers(lattice.FCC, r3.Vec{}, eps))
}

func TestClassifyBurgers_BCC(t *testing.T) {
	const eps = 1e-4
	f := lattice.ClassifyBurgers(lattice.BCC, r3.Vec{X: 0.5, Y: 0.5, Z: -0.5}, eps)
	require.NotNil(t, f)
	assert.Equal(t, "1/2<111>", f.Name)

	f = lattice.ClassifyBurgers(lattice.BCC, r3.Vec{Y: 1}, eps)
	require.NotNil(t, f)
	assert.Equal(t, "<100>", f.Name)
}

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "1/2<110>", lattice.FormatVector(r3.Vec{X: 0.5, Y: -0.5}))
	assert.Equal(t, "1/6<211>", lattice.FormatVector(r3.Vec{X: 1.0 / 6, Y: 1.0 / 6, Z: 2.0 / 6}))
	assert.Equal(t, "<100>", lattice.FormatVector(r3.Vec{X: -1}))
}

func TestFamilies_PyramidalBasalAlignment(t *testing.T) {
	byName := map[string]*lattice.BurgersFamily{}
	for _, f := range lattice.FamiliesOf(lattice.HCP) {
		byName[f.Name] = f
	}
	// The basal projection of each pyramidal member is itself a basal
	// Burgers vector: <2-203> projects onto <1-100>, <1-213> onto <1-210>.
	for _, pair := range []struct{ pyramidal, basal string }{
		{"1/6<2-203>", "1/3<1-100>"},
		{"1/3<1-213>", "1/3<1-210>"},
	} {
		pf := byName[pair.pyramidal]
		bf := byName[pair.basal]
		require.NotNil(t, pf, pair.pyramidal)
		require.NotNil(t, bf, pair.basal)
		for _, m := range pf.Members {
			assert.True(t, bf.Contains(r3.Vec{X: m.X, Y: m.Y}, 1e-9),
				"%s member %v", pair.pyramidal, m)
		}
	}
}

func TestFamilies_MembersContainPrototype(t *testing.T) {
	for _, s := range []lattice.StructureType{lattice.FCC, lattice.BCC, lattice.HCP} {
		for _, f := range lattice.FamiliesOf(s) {
			assert.True(t, f.Contains(f.Prototype, 1e-9), "%s / %s", s, f.Name)
		}
	}
}
