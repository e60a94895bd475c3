package mesh

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"
)

// InvalidIndex marks an absent vertex, face or edge link.
const InvalidIndex = -1

// ErrNonManifold indicates a mesh whose half-edges cannot be paired into a
// closed two-manifold. It signals an internal consistency failure of the
// mesh construction, not bad user input.
var ErrNonManifold = errors.New("mesh: surface is not a closed two-manifold")

// Vertex is one mesh vertex.
type Vertex struct {
	Pos r3.Vec

	// FirstEdge heads the linked list (via HalfEdge.NextVertex) of
	// half-edges leaving this vertex.
	FirstEdge int32
}

// Face is one polygonal face, referencing its half-edge cycle.
type Face struct {
	FirstEdge int32

	// Flags carries caller-defined face markers.
	Flags uint32
}

// HalfEdge is one directed edge of a face cycle.
type HalfEdge struct {
	Origin, Dest int32
	Opposite     int32
	NextFace     int32
	PrevFace     int32
	NextVertex   int32
	Face         int32
}

// Mesh is an index-arena half-edge mesh.
type Mesh struct {
	Vertices []Vertex
	Faces    []Face
	Edges    []HalfEdge
}

// New returns an empty mesh.
func New() *Mesh {
	return &Mesh{}
}

// CreateVertex appends a vertex and returns its index.
func (m *Mesh) CreateVertex(pos r3.Vec) int {
	m.Vertices = append(m.Vertices, Vertex{Pos: pos, FirstEdge: InvalidIndex})
	return len(m.Vertices) - 1
}

// CreateFace appends a face over the given vertex cycle, creating one
// half-edge per consecutive vertex pair. Opposite links start unset.
func (m *Mesh) CreateFace(verts ...int) int {
	fi := int32(len(m.Faces))
	first := int32(len(m.Edges))
	n := len(verts)
	for i := 0; i < n; i++ {
		ei := first + int32(i)
		origin := int32(verts[i])
		m.Edges = append(m.Edges, HalfEdge{
			Origin:     origin,
			Dest:       int32(verts[(i+1)%n]),
			Opposite:   InvalidIndex,
			NextFace:   first + int32((i+1)%n),
			PrevFace:   first + int32((i+n-1)%n),
			NextVertex: m.Vertices[origin].FirstEdge,
			Face:       fi,
		})
		m.Vertices[origin].FirstEdge = ei
	}
	m.Faces = append(m.Faces, Face{FirstEdge: first})
	return int(fi)
}

// FindEdge returns the half-edge from origin to dest, or InvalidIndex.
func (m *Mesh) FindEdge(origin, dest int) int {
	for e := m.Vertices[origin].FirstEdge; e != InvalidIndex; e = m.Edges[e].NextVertex {
		if int(m.Edges[e].Dest) == dest {
			return int(e)
		}
	}
	return InvalidIndex
}

// LinkOpposite pairs two half-edges as opposites. The edges must run
// between the same vertices in opposite directions.
func (m *Mesh) LinkOpposite(e1, e2 int) {
	m.Edges[e1].Opposite = int32(e2)
	m.Edges[e2].Opposite = int32(e1)
}

// ConnectOppositeHalfedges pairs every half-edge that still lacks an
// opposite with the reverse half-edge of an adjacent face. Fails with
// ErrNonManifold when a reverse edge is missing or already paired.
func (m *Mesh) ConnectOppositeHalfedges() error {
	for ei := range m.Edges {
		e := &m.Edges[ei]
		if e.Opposite != InvalidIndex {
			continue
		}
		found := InvalidIndex
		for c := m.Vertices[e.Dest].FirstEdge; c != InvalidIndex; c = m.Edges[c].NextVertex {
			if m.Edges[c].Dest == e.Origin && m.Edges[c].Opposite == InvalidIndex {
				if found != InvalidIndex {
					return fmt.Errorf("%w: multiple unpaired reverse edges between vertices %d and %d",
						ErrNonManifold, e.Origin, e.Dest)
				}
				found = int(c)
			}
		}
		if found == InvalidIndex {
			return fmt.Errorf("%w: no reverse edge between vertices %d and %d",
				ErrNonManifold, e.Origin, e.Dest)
		}
		m.LinkOpposite(ei, found)
	}
	return nil
}

// Validate checks the half-edge round-trip identities of a closed mesh.
func (m *Mesh) Validate() error {
	for ei := range m.Edges {
		e := &m.Edges[ei]
		if e.Opposite == InvalidIndex {
			return fmt.Errorf("%w: edge %d has no opposite", ErrNonManifold, ei)
		}
		op := &m.Edges[e.Opposite]
		if int(op.Opposite) != ei {
			return fmt.Errorf("%w: opposite link of edge %d is not mutual", ErrNonManifold, ei)
		}
		if op.Origin != e.Dest || op.Dest != e.Origin {
			return fmt.Errorf("%w: opposite of edge %d joins different vertices", ErrNonManifold, ei)
		}
		if int(m.Edges[e.NextFace].PrevFace) != ei || int(m.Edges[e.PrevFace].NextFace) != ei {
			return fmt.Errorf("%w: face cycle of edge %d broken", ErrNonManifold, ei)
		}
		if m.Edges[e.NextFace].Face != e.Face {
			return fmt.Errorf("%w: face cycle of edge %d crosses faces", ErrNonManifold, ei)
		}
		if m.Edges[e.NextFace].Origin != e.Dest {
			return fmt.Errorf("%w: face cycle of edge %d not vertex-continuous", ErrNonManifold, ei)
		}
	}
	for fi := range m.Faces {
		if m.Faces[fi].FirstEdge == InvalidIndex {
			return fmt.Errorf("%w: face %d has no edges", ErrNonManifold, fi)
		}
		if int(m.Edges[m.Faces[fi].FirstEdge].Face) != fi {
			return fmt.Errorf("%w: first edge of face %d belongs elsewhere", ErrNonManifold, fi)
		}
	}
	return nil
}

// FaceVertexCount returns the number of vertices of face f.
func (m *Mesh) FaceVertexCount(f int) int {
	n := 0
	start := m.Faces[f].FirstEdge
	for e := start; ; e = m.Edges[e].NextFace {
		n++
		if m.Edges[e].NextFace == start {
			return n
		}
	}
}
