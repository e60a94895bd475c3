// Package structure implements the structure analyzer stage of the
// dislocation analysis: per-atom classification of the local lattice
// structure, grouping of atoms into orientation-consistent clusters, and
// construction of the cluster graph transitions between adjacent clusters.
//
// The analyzer proceeds in three explicitly ordered steps:
//
//	a, err := structure.NewAnalyzer(positions, cell, lattice.FCC)
//	err := a.IdentifyStructures(ctx)  // per-atom template matching
//	err = a.BuildClusters(ctx)        // orientation-consistent grouping
//	err = a.ConnectClusters(ctx)      // cluster graph transitions
//
// Classification fails softly: an atom whose neighborhood matches no template
// is assigned lattice.Other and simply does not participate in clusters.
// Only context cancellation aborts an analysis step.
package structure
