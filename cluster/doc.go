// Package cluster implements the cluster graph of the dislocation analysis:
// the set of orientation-consistent crystal clusters identified by the
// structure analyzer, together with the rigid transitions relating adjacent
// clusters of differing orientation.
//
// Clusters are arena-owned by a Graph and referenced (never owned) by atoms,
// tessellation vertices, and mesh edges. Transitions always exist in
// reverse-closed pairs: creating A→B implicitly creates B→A with the
// transposed matrix, and composing a transition with its reverse yields the
// identity within numeric tolerance.
//
// Two clusters may legitimately live in disconnected components of the
// graph; DetermineTransition then returns nil, which downstream stages treat
// as an expected outcome, not an error.
package cluster
