package structure

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/lattice"
)

// Sentinel errors for analyzer construction.
var (
	// ErrNoAtoms indicates an empty position array.
	ErrNoAtoms = errors.New("structure: no atom positions")

	// ErrNilCell indicates a nil simulation cell.
	ErrNilCell = errors.New("structure: cell is nil")

	// ErrUnknownStructure indicates an input structure type without a
	// template.
	ErrUnknownStructure = errors.New("structure: unknown input structure type")

	// ErrBadSelection indicates a selection mask whose length disagrees with
	// the position array.
	ErrBadSelection = errors.New("structure: selection mask length mismatch")

	// ErrBadClusterIDs indicates a precomputed cluster id array whose length
	// disagrees with the position array.
	ErrBadClusterIDs = errors.New("structure: cluster id array length mismatch")
)

// Tolerances bundles the numeric tolerances of the analyzer. One instance is
// shared by every stage of a computation so the stages agree on what "equal"
// means.
type Tolerances struct {
	// NeighborMatch is the maximum relative deviation between a physical
	// neighbor vector and its matched template vector.
	NeighborMatch float64

	// OrientationMatch is the maximum element-wise deviation between two
	// orientation matrices considered equal.
	OrientationMatch float64

	// TransitionEpsilon is the element-wise tolerance for transition matrix
	// identities (round trips, disclination tests).
	TransitionEpsilon float64

	// LatticeVectorEpsilon is the per-component tolerance for ideal lattice
	// vector comparisons (Burgers circuit closure, family classification).
	LatticeVectorEpsilon float64
}

// DefaultTolerances returns the tolerances used by the reference analysis.
func DefaultTolerances() Tolerances {
	return Tolerances{
		NeighborMatch:        0.26,
		OrientationMatch:     0.25,
		TransitionEpsilon:    1e-4,
		LatticeVectorEpsilon: 1e-3,
	}
}

// Option configures an Analyzer.
type Option func(*options)

type options struct {
	selection             []bool
	preferredOrientations []*r3.Mat
	clusterIDs            []int
	allowImperfect        bool
	tol                   Tolerances
	progress              ProgressFunc
}

// ProgressFunc receives progress updates at a bounded granularity. done and
// total are stage-local counts.
type ProgressFunc func(done, total int)

// WithSelection restricts the analysis to atoms whose mask entry is true.
// The mask length must equal the number of atoms.
func WithSelection(mask []bool) Option {
	return func(o *options) { o.selection = mask }
}

// WithPrecomputedClusters supplies a per-atom partition (one id per atom,
// e.g. grain ids from a prior segmentation) that cluster growth must not
// cross. Atoms with different ids never join the same cluster; a single id
// may still split into several clusters when the shell match fails across
// it. The array length must equal the number of atoms.
func WithPrecomputedClusters(ids []int) Option {
	return func(o *options) { o.clusterIDs = ids }
}

// WithPreferredOrientations supplies crystal orientations that cluster
// orientations snap to when within tolerance.
func WithPreferredOrientations(orientations []*r3.Mat) Option {
	return func(o *options) { o.preferredOrientations = orientations }
}

// WithImperfect allows atoms matching the planar-defect partner structure
// (e.g. HCP atoms inside an FCC crystal) to count as crystalline, so that
// partial dislocations can be resolved. Disabling it restricts the analysis
// to perfect dislocations.
func WithImperfect(allow bool) Option {
	return func(o *options) { o.allowImperfect = allow }
}

// WithTolerances overrides the default tolerances.
func WithTolerances(t Tolerances) Option {
	return func(o *options) { o.tol = t }
}

// WithProgress installs a progress hook.
func WithProgress(fn ProgressFunc) Option {
	return func(o *options) { o.progress = fn }
}

// progressGranularity is the atom-count interval between cancellation checks
// and progress updates.
const progressGranularity = 4096

// atomState is the per-atom working state of the analyzer.
type atomState struct {
	structure lattice.StructureType
	clusterID int

	// neighbors are neighbor atom indices within the cutoff, sorted by
	// distance then index. A few entries beyond lattice.MaxNeighbors are
	// kept so an over-coordinated shell is detectable.
	neighbors []int32

	// slots maps neighbor positions to template slots in the frame of the
	// atom's cluster; -1 while unknown.
	slots []int8

	// orientation is the free-fit orientation found during identification
	// (lattice frame to physical, scale included). Nil for unmatched atoms.
	orientation *r3.Mat
}

// Analyzer owns the per-atom classification state and the cluster graph of
// one analysis run.
type Analyzer struct {
	positions []r3.Vec
	simCell   *cell.Cell
	input     lattice.StructureType
	opts      options

	atoms      []atomState
	graph      *cluster.Graph
	clusters   []*cluster.Cluster // by id-1
	typeCounts [lattice.Count]int

	// nearestDistance is the median measured first-neighbor distance.
	nearestDistance float64

	// latticeConstant is the estimated physical lattice constant.
	latticeConstant float64

	// maxNeighborDistance is the largest neighbor distance that
	// participates in the analysis; the tessellation ghost layer is sized
	// from it.
	maxNeighborDistance float64
}

// AtomCount returns the number of atoms.
func (a *Analyzer) AtomCount() int { return len(a.positions) }

// Positions returns the atom position array (read-only).
func (a *Analyzer) Positions() []r3.Vec { return a.positions }

// Cell returns the simulation cell.
func (a *Analyzer) Cell() *cell.Cell { return a.simCell }

// InputStructure returns the requested lattice type.
func (a *Analyzer) InputStructure() lattice.StructureType { return a.input }

// StructureTypeOf returns the structure type assigned to atom i.
func (a *Analyzer) StructureTypeOf(i int) lattice.StructureType { return a.atoms[i].structure }

// TypeCount returns the number of atoms assigned to the given type.
func (a *Analyzer) TypeCount(s lattice.StructureType) int {
	if s < 0 || int(s) >= lattice.Count {
		return 0
	}
	return a.typeCounts[s]
}

// ClusterGraph returns the cluster graph (valid after BuildClusters).
func (a *Analyzer) ClusterGraph() *cluster.Graph { return a.graph }

// AtomClusterID returns the cluster id of atom i, 0 if unclustered.
func (a *Analyzer) AtomClusterID(i int) int { return a.atoms[i].clusterID }

// AtomCluster returns the cluster of atom i, nil if unclustered.
func (a *Analyzer) AtomCluster(i int) *cluster.Cluster {
	id := a.atoms[i].clusterID
	if id == 0 {
		return nil
	}
	return a.clusters[id-1]
}

// MaximumNeighborDistance returns the largest neighbor distance used by the
// analysis. The tessellation ghost layer is sized as a multiple of it.
func (a *Analyzer) MaximumNeighborDistance() float64 { return a.maxNeighborDistance }

// LatticeConstant returns the estimated physical lattice constant.
func (a *Analyzer) LatticeConstant() float64 { return a.latticeConstant }

// NumNeighbors returns the neighbor count of atom i.
func (a *Analyzer) NumNeighbors(i int) int { return len(a.atoms[i].neighbors) }

// Neighbor returns the k-th neighbor of atom i.
func (a *Analyzer) Neighbor(i, k int) int { return int(a.atoms[i].neighbors[k]) }

// NeighborIndex returns the position of atom j in atom i's neighbor list, or
// -1.
func (a *Analyzer) NeighborIndex(i, j int) int {
	for k, n := range a.atoms[i].neighbors {
		if int(n) == j {
			return k
		}
	}
	return -1
}

// IdealNeighborVector returns the ideal lattice vector of the bond from atom
// i to its k-th neighbor, expressed in the frame of atom i's cluster. The
// second return is false if the bond has no assigned template slot.
func (a *Analyzer) IdealNeighborVector(i, k int) (r3.Vec, bool) {
	st := &a.atoms[i]
	if st.clusterID == 0 || k >= len(st.slots) || st.slots[k] < 0 {
		return r3.Vec{}, false
	}
	tmpl := lattice.TemplateOf(st.structure)
	return tmpl.Neighbors[st.slots[k]], true
}
