// Package lattice defines the crystal lattice templates and Burgers vector
// families known to the dislocation analysis.
//
// A Template describes the ideal first (and, where needed, second) neighbor
// shell of one lattice structure, expressed in a local lattice frame whose
// length unit is the conventional lattice constant. The structure analyzer
// matches each atom's physical neighborhood against these templates; the
// elastic mapping and the dislocation tracer express all ideal ("cluster")
// vectors in the same frame, so Burgers vectors can be classified by direct
// comparison against the family tables in this package.
//
// Family classification deliberately returns the first matching family in
// declaration order. The order is part of the golden output contract and
// must not be reshuffled.
package lattice
