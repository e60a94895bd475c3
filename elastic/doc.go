// Package elastic builds the elastic mapping between the physical atomistic
// configuration and the ideal crystal lattice. It assigns to every edge of
// the Delaunay tessellation the ideal lattice vector the edge corresponds
// to, expressed in the frame of the edge's first vertex cluster, together
// with the cluster-graph transition that carries vectors across the edge.
//
// Tetrahedra whose six edges carry ideal vectors that close consistently
// around every face are "good" (they lie in intact crystal); all others are
// "bad" and make up the crystal defects. The interface between the two is
// where downstream stages trace dislocation lines.
package elastic
