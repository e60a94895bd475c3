package tessellation

import (
	"context"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
)

// EdgeVertices lists the local vertex pairs of the six edges of a
// tetrahedron. Edge order is part of the contract with the elastic mapping.
var EdgeVertices = [6][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}, {1, 3}, {2, 3}}

// FacetVertices lists, per local facet f (the facet opposite local vertex
// f), the local vertex triple ordered so the facet normal points out of a
// positively oriented tetrahedron.
var FacetVertices = [4][3]int{{1, 2, 3}, {0, 3, 2}, {0, 1, 3}, {0, 2, 1}}

// Vertex is one tessellation vertex: a primary atom or a periodic ghost
// image of one.
type Vertex struct {
	// Pos is the vertex position, which for a ghost image differs from the
	// source atom position by a cell translation.
	Pos r3.Vec

	// Atom is the source atom index.
	Atom int32

	// Primary reports whether this vertex is the atom's primary image.
	Primary bool

	// image is the periodic offset of this vertex relative to the primary
	// image, one component per cell vector.
	image [3]int8
}

// Cell is one tetrahedron, referencing four vertices.
type Cell struct {
	V [4]int32

	// ghost marks periodic duplicate cells.
	ghost bool
}

// Tessellation is the result of Generate.
type Tessellation struct {
	simCell *cell.Cell
	verts   []Vertex
	cells   []Cell

	// nbr[c][f] is the cell adjacent to cell c across facet f, -1 at the
	// hull.
	nbr [][4]int32
}

// Generate tessellates the given configuration. ghostLayer is the thickness
// of the periodic replication slab; it must fit twice into every periodic
// cell extent or cell.ErrCellTooSmall is returned. A non-nil selection
// restricts the point set to atoms whose mask entry is true.
func Generate(ctx context.Context, positions []r3.Vec, simCell *cell.Cell, ghostLayer float64, selection []bool) (*Tessellation, error) {
	if err := simCell.ValidateGhostLayer(ghostLayer); err != nil {
		return nil, err
	}
	verts := replicate(positions, simCell, ghostLayer, selection)
	t := &Tessellation{simCell: simCell, verts: verts}
	if err := t.triangulate(ctx, ghostLayer); err != nil {
		return nil, err
	}
	t.markGhostCells()
	return t, nil
}

// replicate wraps every selected atom into the primary cell and adds ghost
// images within ghostLayer of each periodic boundary.
func replicate(positions []r3.Vec, simCell *cell.Cell, ghostLayer float64, selection []bool) []Vertex {
	var verts []Vertex
	// Relative ghost margin per periodic direction.
	var margin [3]float64
	for d := 0; d < 3; d++ {
		if simCell.Periodic(d) {
			margin[d] = ghostLayer / simCell.PerpendicularWidth(d)
		}
	}
	for i, p := range positions {
		if selection != nil && !selection[i] {
			continue
		}
		wrapped := simCell.WrapPoint(p)
		verts = append(verts, Vertex{Pos: wrapped, Atom: int32(i), Primary: true})
		red := simCell.AbsoluteToReduced(wrapped)
		for _, off := range imageOffsets(red, margin, simCell) {
			shift := r3.Add(r3.Add(
				r3.Scale(float64(off[0]), simCell.Vector(0)),
				r3.Scale(float64(off[1]), simCell.Vector(1))),
				r3.Scale(float64(off[2]), simCell.Vector(2)))
			verts = append(verts, Vertex{
				Pos:   r3.Add(wrapped, shift),
				Atom:  int32(i),
				image: [3]int8{int8(off[0]), int8(off[1]), int8(off[2])},
			})
		}
	}
	return verts
}

// imageOffsets returns the nonzero periodic image offsets that place the
// reduced point red inside the ghost-extended region.
func imageOffsets(red r3.Vec, margin [3]float64, simCell *cell.Cell) [][3]int {
	choices := [3][]int{}
	comps := [3]float64{red.X, red.Y, red.Z}
	for d := 0; d < 3; d++ {
		choices[d] = []int{0}
		if !simCell.Periodic(d) {
			continue
		}
		if comps[d] < margin[d] {
			choices[d] = append(choices[d], 1)
		}
		if comps[d] > 1-margin[d] {
			choices[d] = append(choices[d], -1)
		}
	}
	var out [][3]int
	for _, ox := range choices[0] {
		for _, oy := range choices[1] {
			for _, oz := range choices[2] {
				if ox == 0 && oy == 0 && oz == 0 {
					continue
				}
				out = append(out, [3]int{ox, oy, oz})
			}
		}
	}
	return out
}

// markGhostCells designates, among the periodic copies of each tetrahedron,
// the one whose lowest-atom-index vertex is a primary image as the single
// non-ghost copy.
func (t *Tessellation) markGhostCells() {
	for c := range t.cells {
		min := 0
		for k := 1; k < 4; k++ {
			if t.verts[t.cells[c].V[k]].Atom < t.verts[t.cells[c].V[min]].Atom {
				min = k
			}
		}
		t.cells[c].ghost = !t.verts[t.cells[c].V[min]].Primary
	}
}

// VertexCount returns the number of tessellation vertices, ghost images
// included.
func (t *Tessellation) VertexCount() int { return len(t.verts) }

// CellCount returns the number of tetrahedra.
func (t *Tessellation) CellCount() int { return len(t.cells) }

// CellVertex returns the vertex handle of local vertex k of cell c.
func (t *Tessellation) CellVertex(c, k int) int { return int(t.cells[c].V[k]) }

// VertexAtom returns the source atom index of a vertex handle.
func (t *Tessellation) VertexAtom(v int) int { return int(t.verts[v].Atom) }

// VertexPos returns the position of a vertex handle.
func (t *Tessellation) VertexPos(v int) r3.Vec { return t.verts[v].Pos }

// IsPrimaryVertex reports whether the vertex is an atom's primary image.
func (t *Tessellation) IsPrimaryVertex(v int) bool { return t.verts[v].Primary }

// IsGhostCell reports whether cell c is a periodic duplicate.
func (t *Tessellation) IsGhostCell(c int) bool { return t.cells[c].ghost }

// AdjacentCell returns the cell adjacent to c across facet f and the index
// of the shared facet within that cell. Returns (-1, -1) at the hull.
func (t *Tessellation) AdjacentCell(c, f int) (int, int) {
	ac := int(t.nbr[c][f])
	if ac < 0 {
		return -1, -1
	}
	for af := 0; af < 4; af++ {
		if int(t.nbr[ac][af]) == c {
			return ac, af
		}
	}
	return -1, -1
}

// CellVolume returns the signed volume of cell c.
func (t *Tessellation) CellVolume(c int) float64 {
	a := t.verts[t.cells[c].V[0]].Pos
	b := r3.Sub(t.verts[t.cells[c].V[1]].Pos, a)
	cc := r3.Sub(t.verts[t.cells[c].V[2]].Pos, a)
	d := r3.Sub(t.verts[t.cells[c].V[3]].Pos, a)
	return r3.Dot(b, r3.Cross(cc, d)) / 6
}
