// Package trace extracts dislocation lines from an elastic mapping. It
// builds the interface mesh separating good (intact crystal) from bad
// (defective) tetrahedra, searches the mesh for Burgers circuits with a
// nonzero net lattice vector, sweeps those circuits along the defect tubes
// to trace dislocation segments, and finally emits the capped defect
// surface mesh.
//
// Rejected circuits, unresolved regions and dangling line ends are ordinary
// outcomes. The only errors are context cancellation, a simulation cell too
// small for its defects, and mesh manifold violations after capping, which
// indicate an internal defect of the tracing itself.
package trace
