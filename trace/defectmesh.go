package trace

import (
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/mesh"
)

// EmitDefectMesh returns the residual defect surface: every interface mesh
// face not swept by a Burgers circuit. Holes left by stuck circuits are
// capped with triangle fans, so the result is again a closed two-manifold.
func (t *Tracer) EmitDefectMesh() (*mesh.Mesh, error) {
	src := t.im.Mesh
	out := mesh.New()
	if len(src.Faces) == 0 {
		return out, nil
	}

	vmap := make([]int32, len(src.Vertices))
	for i := range vmap {
		vmap[i] = mesh.InvalidIndex
	}
	emap := make([]int32, len(src.Edges))
	for i := range emap {
		emap[i] = mesh.InvalidIndex
	}

	for f := range src.Faces {
		if t.FaceSwept(f) {
			continue
		}
		var verts [3]int
		e := src.Faces[f].FirstEdge
		for k := 0; k < 3; k++ {
			o := src.Edges[e].Origin
			if vmap[o] == mesh.InvalidIndex {
				vmap[o] = int32(out.CreateVertex(src.Vertices[o].Pos))
			}
			verts[k] = int(vmap[o])
			e = src.Edges[e].NextFace
		}
		nf := out.CreateFace(verts[0], verts[1], verts[2])
		first := out.Faces[nf].FirstEdge
		e = src.Faces[f].FirstEdge
		for k := int32(0); k < 3; k++ {
			emap[e] = first + k
			e = src.Edges[e].NextFace
		}
	}

	// Carry over the opposite pairing where both sides survived.
	for se, oe := range emap {
		if oe == mesh.InvalidIndex {
			continue
		}
		so := src.Edges[se].Opposite
		if emap[so] != mesh.InvalidIndex && out.Edges[oe].Opposite == mesh.InvalidIndex {
			out.LinkOpposite(int(oe), int(emap[so]))
		}
	}

	// Reverse map from copied edges back to their interface mesh source,
	// used to recover which circuit swept the faces across a hole boundary.
	srcOf := make([]int32, len(out.Edges))
	for se, oe := range emap {
		if oe != mesh.InvalidIndex {
			srcOf[oe] = int32(se)
		}
	}

	// Unpaired edges trace the hole boundaries. Collect every loop first,
	// then cap, so cap edges never leak into the loop walk.
	visited := make([]bool, len(out.Edges))
	var loops [][]int32
	for e0 := range out.Edges {
		if visited[e0] || out.Edges[e0].Opposite != mesh.InvalidIndex {
			continue
		}
		var loop []int32
		e := int32(e0)
		for {
			visited[e] = true
			loop = append(loop, e)
			e = nextBoundaryEdge(out, e)
			if e == int32(e0) {
				break
			}
		}
		loops = append(loops, loop)
	}
	for _, loop := range loops {
		t.capHole(out, loop, srcOf)
	}

	if err := out.ConnectOppositeHalfedges(); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// nextBoundaryEdge rotates around the destination of boundary edge e until
// the next unpaired edge of the same fan sector is reached.
func nextBoundaryEdge(m *mesh.Mesh, e int32) int32 {
	g := m.Edges[e].NextFace
	for m.Edges[g].Opposite != mesh.InvalidIndex {
		g = m.Edges[m.Edges[g].Opposite].NextFace
	}
	return g
}

// capHole closes one boundary loop with a triangle fan. The fan apex sits
// on the dangling dislocation node the hole belongs to, found through the
// circuit that swept the faces across the boundary; loops without a
// dangling owner fall back to the loop centroid.
func (t *Tracer) capHole(m *mesh.Mesh, loop []int32, srcOf []int32) {
	sc := t.im.Cell()
	anchor := m.Vertices[m.Edges[loop[0]].Origin].Pos
	apex, ok := t.holeNodePosition(loop, srcOf)
	if ok {
		apex = r3.Add(anchor, sc.WrapVector(r3.Sub(apex, anchor)))
	} else {
		cur := anchor
		sum := cur
		for _, e := range loop[1:] {
			q := m.Vertices[m.Edges[e].Origin].Pos
			cur = r3.Add(cur, sc.WrapVector(r3.Sub(q, cur)))
			sum = r3.Add(sum, cur)
		}
		apex = sc.WrapPoint(r3.Scale(1/float64(len(loop)), sum))
	}
	capV := m.CreateVertex(apex)
	for _, e := range loop {
		m.CreateFace(capV, int(m.Edges[e].Dest), int(m.Edges[e].Origin))
	}
}

// holeNodePosition looks across the boundary loop for a swept face whose
// circuit still ends in a dangling node and returns that node's position.
func (t *Tracer) holeNodePosition(loop []int32, srcOf []int32) (r3.Vec, bool) {
	src := t.im.Mesh
	for _, e := range loop {
		opp := src.Edges[srcOf[e]].Opposite
		owner := t.faceOwner[src.Edges[opp].Face]
		if owner < 0 || int(owner) >= len(t.circuits) {
			continue
		}
		if n := t.nodeOf(t.circuits[owner]); n.IsDangling() {
			return n.Position(), true
		}
	}
	return r3.Vec{}, false
}
