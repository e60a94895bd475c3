// Package dxa extracts dislocation lines from atomistic crystal
// snapshots.
//
// Given atom positions and a simulation cell, the engine classifies every
// atom against ideal lattice templates, groups matched atoms into
// orientation-consistent clusters, tessellates space into tetrahedra, and
// assigns each tessellation edge the ideal lattice vector it corresponds
// to in the unstrained crystal. Tetrahedra whose edges fail to close under
// these ideal vectors form the defective region; the two-manifold surface
// around it is swept by Burgers circuits, which condense into a network of
// dislocation lines with true Burgers vectors. What the circuits cannot
// explain remains as a closed defect mesh.
//
// The pipeline is split into one package per stage:
//
//	cell/         simulation cell, periodic wrapping, minimum image
//	lattice/      structure templates and Burgers vector families
//	cluster/      cluster graph with frame transitions
//	structure/    per-atom structure identification and clustering
//	tessellation/ periodic Delaunay tessellation
//	elastic/      ideal lattice vectors on tessellation edges
//	mesh/         half-edge surface mesh with Taubin smoothing
//	trace/        interface mesh, Burgers circuits, defect mesh
//	disloc/       dislocation network, line smoothing
//
// Typical use:
//
//	engine := dxa.New(lattice.FCC)
//	res, err := engine.Analyze(ctx, positions, simCell)
//	if err != nil {
//		// ...
//	}
//	for _, seg := range res.Network.Segments() {
//		fmt.Println(lattice.FormatVector(seg.BurgersVector), seg.Length())
//	}
//
// All blocking operations take a context.Context and stop early when it is
// cancelled. Results are deterministic: the same input produces the same
// network, point for point.
package dxa
