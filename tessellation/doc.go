// Package tessellation computes a Delaunay tetrahedral tessellation of an
// atomistic configuration. Periodic boundary conditions are handled by
// replicating atoms near periodic boundaries into a ghost layer; every
// tetrahedron then exists once per periodic image, and exactly one copy is
// designated the primary (non-ghost) cell so that downstream consumers
// process each tetrahedron exactly once.
//
// The tessellation is built by incremental Bowyer-Watson insertion. The
// in-sphere and orientation predicates operate on deterministically jittered
// coordinates, which removes the exact cosphericity degeneracies of perfect
// lattices without introducing run-to-run nondeterminism.
package tessellation
