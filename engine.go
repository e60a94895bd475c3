package dxa

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/katalvlaran/dxa/cell"
	"github.com/katalvlaran/dxa/cluster"
	"github.com/katalvlaran/dxa/disloc"
	"github.com/katalvlaran/dxa/elastic"
	"github.com/katalvlaran/dxa/lattice"
	"github.com/katalvlaran/dxa/mesh"
	"github.com/katalvlaran/dxa/structure"
	"github.com/katalvlaran/dxa/tessellation"
	"github.com/katalvlaran/dxa/trace"
)

// ProgressFunc observes pipeline progress. done and total are weighted
// stage counters; stage names the phase just finished.
type ProgressFunc func(stage string, done, total int)

// Option customizes an Engine.
type Option func(*Engine)

// WithMaxCircuitSize sets the maximum length of trial Burgers circuits.
func WithMaxCircuitSize(n int) Option {
	return func(e *Engine) { e.maxCircuitSize = n }
}

// WithCircuitElongation sets how far a circuit may stretch beyond the
// trial maximum while sweeping along a dislocation line.
func WithCircuitElongation(n int) Option {
	return func(e *Engine) { e.maxElongation = n }
}

// WithOnlyPerfectDislocations restricts tracing to perfect dislocations by
// forcing every cluster into the orientation of its parent grain.
func WithOnlyPerfectDislocations(only bool) Option {
	return func(e *Engine) { e.onlyPerfect = only }
}

// WithDefectMeshSmoothing sets the Taubin smoothing level applied to the
// output defect mesh. Zero disables smoothing.
func WithDefectMeshSmoothing(level int) Option {
	return func(e *Engine) { e.defectMeshSmoothing = level }
}

// WithLineSmoothing sets the smoothing level applied to dislocation lines.
// Zero disables smoothing.
func WithLineSmoothing(level int) Option {
	return func(e *Engine) { e.lineSmoothing = level }
}

// WithLinePointInterval sets the coarsening interval of dislocation lines,
// in multiples of the local core width.
func WithLinePointInterval(interval float64) Option {
	return func(e *Engine) { e.linePointInterval = interval }
}

// WithInterfaceMeshOutput keeps the raw interface mesh in the result.
func WithInterfaceMeshOutput(output bool) Option {
	return func(e *Engine) { e.outputInterfaceMesh = output }
}

// WithSelection restricts the analysis to the atoms marked true.
func WithSelection(mask []bool) Option {
	return func(e *Engine) { e.selection = mask }
}

// WithPreferredOrientations biases cluster orientations toward the given
// crystal orientations.
func WithPreferredOrientations(orientations []*r3.Mat) Option {
	return func(e *Engine) { e.preferredOrientations = orientations }
}

// WithPrecomputedClusters supplies a per-atom partition (one id per atom)
// that cluster growth must not cross.
func WithPrecomputedClusters(ids []int) Option {
	return func(e *Engine) { e.clusterIDs = ids }
}

// WithTolerances overrides the numeric tolerances of every stage.
func WithTolerances(t structure.Tolerances) Option {
	return func(e *Engine) { e.tol = t }
}

// WithProgress installs a progress hook.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// Engine runs the dislocation extraction pipeline: structure
// identification, Delaunay tessellation, elastic mapping, interface mesh
// construction, Burgers circuit tracing and defect mesh emission.
type Engine struct {
	input lattice.StructureType

	maxCircuitSize      int
	maxElongation       int
	onlyPerfect         bool
	defectMeshSmoothing int
	lineSmoothing       int
	linePointInterval   float64
	outputInterfaceMesh bool

	selection             []bool
	preferredOrientations []*r3.Mat
	clusterIDs            []int
	tol                   structure.Tolerances
	progress              ProgressFunc
}

// New returns an engine analyzing crystals of the given input structure.
func New(input lattice.StructureType, opts ...Option) *Engine {
	e := &Engine{
		input:               input,
		maxCircuitSize:      trace.DefaultMaxCircuitSize,
		maxElongation:       trace.DefaultMaxElongation,
		defectMeshSmoothing: 8,
		lineSmoothing:       1,
		linePointInterval:   2.5,
		tol:                 structure.DefaultTolerances(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Result carries everything one analysis produced.
type Result struct {
	// DefectMesh is the closed surface enclosing the defective regions
	// that remain after dislocation lines were extracted. When
	// SpaceFillingGood is set the crystal is defect free and the mesh is
	// empty; SpaceFillingBad marks a fully defective input.
	DefectMesh       *mesh.Mesh
	SpaceFillingGood bool
	SpaceFillingBad  bool

	// InterfaceMesh is the unsmoothed good/bad interface, present only
	// when requested.
	InterfaceMesh *mesh.Mesh

	ClusterGraph *cluster.Graph
	Network      *disloc.Network

	// StructureCounts holds the number of atoms matched per structure
	// type.
	StructureCounts [lattice.Count]int

	TotalLineLength float64
	CellVolume      float64

	// Attributes mirrors the scalar outputs under stable string keys.
	Attributes map[string]float64

	// Status is a one-line human readable summary.
	Status string
}

// Pipeline stages with their relative progress weights.
var stageWeights = []struct {
	name   string
	weight int
}{
	{"identify structures", 35},
	{"build clusters", 6},
	{"connect clusters", 1},
	{"tessellation", 220},
	{"tessellation edges", 60},
	{"assign vertices", 1},
	{"assign ideal vectors", 53},
	{"interface mesh", 190},
	{"trace dislocations", 146},
	{"junctions", 20},
	{"defect mesh", 4},
	{"smoothing", 4},
}

// Analyze runs the full pipeline on one snapshot. The ghost layer is sized
// from the measured maximum neighbor distance; cells smaller than twice
// the ghost layer fail with cell.ErrCellTooSmall.
func (e *Engine) Analyze(ctx context.Context, positions []r3.Vec, simCell *cell.Cell) (*Result, error) {
	total := 0
	for _, s := range stageWeights {
		total += s.weight
	}
	done := 0
	step := func(i int) {
		done += stageWeights[i].weight
		if e.progress != nil {
			e.progress(stageWeights[i].name, done, total)
		}
	}

	a, err := structure.NewAnalyzer(positions, simCell, e.input,
		structure.WithSelection(e.selection),
		structure.WithPreferredOrientations(e.preferredOrientations),
		structure.WithPrecomputedClusters(e.clusterIDs),
		structure.WithImperfect(!e.onlyPerfect),
		structure.WithTolerances(e.tol),
	)
	if err != nil {
		return nil, err
	}
	if err := a.IdentifyStructures(ctx); err != nil {
		return nil, err
	}
	step(0)
	if err := a.BuildClusters(ctx); err != nil {
		return nil, err
	}
	step(1)
	if err := a.ConnectClusters(ctx); err != nil {
		return nil, err
	}
	step(2)

	ghost := 3 * a.MaximumNeighborDistance()
	tess, err := tessellation.Generate(ctx, positions, simCell, ghost, e.selection)
	if err != nil {
		return nil, err
	}
	step(3)

	m := elastic.NewMapping(a, tess)
	if err := m.GenerateTessellationEdges(ctx); err != nil {
		return nil, err
	}
	step(4)
	if err := m.AssignVerticesToClusters(ctx); err != nil {
		return nil, err
	}
	step(5)
	if err := m.AssignIdealVectorsToEdges(ctx, elastic.DefaultPathDepth); err != nil {
		return nil, err
	}
	step(6)

	im, err := trace.BuildInterfaceMesh(ctx, a, tess, m, e.tol.LatticeVectorEpsilon)
	if err != nil {
		return nil, err
	}
	step(7)

	network := disloc.NewNetwork(simCell)
	tracer := trace.NewTracer(im, network, e.maxCircuitSize, e.maxElongation)
	if err := tracer.Trace(ctx); err != nil {
		return nil, err
	}
	step(8)
	step(9)

	defectMesh, err := tracer.EmitDefectMesh()
	if err != nil {
		return nil, err
	}
	step(10)

	if e.defectMeshSmoothing > 0 {
		defectMesh.Smooth(e.defectMeshSmoothing, simCell)
	}
	if e.lineSmoothing > 0 {
		network.SmoothLines(e.lineSmoothing, e.linePointInterval)
	}
	step(11)

	res := &Result{
		DefectMesh:       defectMesh,
		SpaceFillingGood: im.SpaceFillingGood,
		SpaceFillingBad:  im.SpaceFillingBad,
		ClusterGraph:     a.ClusterGraph(),
		Network:          network,
		TotalLineLength:  network.TotalLineLength(),
		CellVolume:       simCell.Volume(),
	}
	if e.outputInterfaceMesh {
		res.InterfaceMesh = im.Mesh
	}
	for s := lattice.StructureType(0); s < lattice.Count; s++ {
		res.StructureCounts[s] = a.TypeCount(s)
	}
	e.emitAttributes(res)
	return res, nil
}

// emitAttributes fills the scalar attribute map and the status line.
func (e *Engine) emitAttributes(res *Result) {
	attrs := map[string]float64{
		"DislocationAnalysis.total_line_length": res.TotalLineLength,
		"DislocationAnalysis.cell_volume":       res.CellVolume,
	}
	for s := lattice.StructureType(0); s < lattice.Count; s++ {
		attrs["DislocationAnalysis.counts."+s.String()] = float64(res.StructureCounts[s])
	}
	for _, seg := range res.Network.Segments() {
		name := lattice.FormatVector(seg.BurgersVector)
		if seg.Cluster != nil {
			if f := lattice.ClassifyBurgers(seg.Cluster.Structure, seg.BurgersVector, e.tol.LatticeVectorEpsilon); f != nil {
				name = f.Name
			}
		}
		attrs["DislocationAnalysis.length."+name] += seg.Length()
		attrs["DislocationAnalysis.counts."+name]++
	}
	res.Attributes = attrs

	n := len(res.Network.Segments())
	if n == 0 {
		res.Status = "No dislocations found"
	} else {
		res.Status = fmt.Sprintf("Found %d dislocation segments, total line length %g", n, res.TotalLineLength)
	}
}
