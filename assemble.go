package demstitch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assemblyTilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_assembly_tiles_skipped_total",
		Help: "Tiles that failed to load or resample during assembly and were skipped.",
	})
	chunksSpooled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_chunks_spooled_total",
		Help: "Chunks assembled and spooled to temporary files.",
	})
	chunksMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_chunks_merged_total",
		Help: "Spooled chunks merged into final rasters.",
	})
)

// A ProgressFunc receives assembly progress in [0, 1]. Reported values
// never decrease across one Assemble call, even when internal phases
// re-estimate their share of the work.
type ProgressFunc func(fraction float64)

// monotonicProgress clamps progress reports to be non-decreasing and
// isolates the caller from a panicking callback.
type monotonicProgress struct {
	fn   ProgressFunc
	last float64
}

func (p *monotonicProgress) report(fraction float64) {
	if p.fn == nil {
		return
	}
	fraction = min(max(fraction, p.last), 1)
	p.last = fraction
	defer func() {
		_ = recover()
	}()
	p.fn(fraction)
}

// An Assembler stitches catalog tiles into single seamless rasters. The
// zero value is not usable, construct with NewAssembler.
type Assembler struct {
	catalog        *Catalog
	loader         *Loader
	ownsLoader     bool
	logger         *slog.Logger
	chunkSizeMB    int
	memoryFraction float64
	forced         Strategy
	memoryLimit    uint64
	availableFunc  func() (uint64, error)
	tempDir        string
	progress       ProgressFunc
}

type AssemblerOption func(*Assembler)

// WithChunkSizeMB sets the nominal per-chunk memory budget for chunked
// assembly.
func WithChunkSizeMB(chunkSizeMB int) AssemblerOption {
	return func(a *Assembler) {
		a.chunkSizeMB = chunkSizeMB
	}
}

// WithMemoryFraction sets the fraction of available memory the in-memory
// strategy may claim before assembly falls back to chunking.
func WithMemoryFraction(memoryFraction float64) AssemblerOption {
	return func(a *Assembler) {
		a.memoryFraction = memoryFraction
	}
}

// WithForcedStrategy bypasses automatic strategy selection.
func WithForcedStrategy(strategy Strategy) AssemblerOption {
	return func(a *Assembler) {
		a.forced = strategy
	}
}

// WithMemoryLimit caps the memory considered available, regardless of what
// the system reports. Zero means no artificial limit.
func WithMemoryLimit(limitBytes uint64) AssemblerOption {
	return func(a *Assembler) {
		a.memoryLimit = limitBytes
	}
}

// WithTempDir sets the directory for spooled chunk files and assembled
// output rasters. Defaults to the system temporary directory.
func WithTempDir(dir string) AssemblerOption {
	return func(a *Assembler) {
		a.tempDir = dir
	}
}

func WithProgressFunc(fn ProgressFunc) AssemblerOption {
	return func(a *Assembler) {
		a.progress = fn
	}
}

func WithLogger(logger *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = logger
	}
}

// WithLoader supplies a shared tile loader. The assembler will not close
// a loader it did not create.
func WithLoader(loader *Loader) AssemblerOption {
	return func(a *Assembler) {
		a.loader = loader
		a.ownsLoader = false
	}
}

func NewAssembler(catalog *Catalog, options ...AssemblerOption) (*Assembler, error) {
	a := &Assembler{
		catalog:        catalog,
		logger:         slog.Default(),
		chunkSizeMB:    defaultChunkSizeMB,
		memoryFraction: defaultMemoryFraction,
		forced:         StrategyAuto,
		availableFunc:  systemAvailableBytes,
		tempDir:        os.TempDir(),
	}
	for _, option := range options {
		option(a)
	}
	if a.loader == nil {
		loader, err := NewLoader()
		if err != nil {
			return nil, err
		}
		a.loader = loader
		a.ownsLoader = true
	}
	return a, nil
}

// Close releases the assembler's tile loader if the assembler created it.
func (a *Assembler) Close() {
	if a.ownsLoader {
		a.loader.Close()
	}
}

// A Result describes one completed assembly.
type Result struct {
	Path     string
	Width    int
	Height   int
	Coverage float64
	Strategy Strategy
	Chunks   int
}

func (a *Assembler) fail(phase Phase, b Bounds, strategy Strategy, err error) error {
	var assemblyErr *AssemblyError
	if errors.As(err, &assemblyErr) {
		return err
	}
	return &AssemblyError{Phase: phase, Bounds: b, Strategy: strategy, Err: err}
}

// Assemble stitches every catalog tile intersecting b into one raster,
// resampled by scale, and writes it as a 16-bit DEM under the assembler's
// temporary directory. Requests may extend past the antimeridian in either
// raw form (east past 180 or west past -180) or normalized form (west
// numerically greater than east).
func (a *Assembler) Assemble(ctx context.Context, b Bounds, scale float64) (*Result, error) {
	progress := &monotonicProgress{fn: a.progress}

	if err := b.Validate(); err != nil {
		return nil, a.fail(PhasePlan, b, StrategyAuto, err)
	}
	if scale <= 0 || scale > 1 {
		return nil, a.fail(PhasePlan, b, StrategyAuto, fmt.Errorf("%w: %g", ErrInvalidScale, scale))
	}
	if a.catalog.Len() == 0 {
		return nil, a.fail(PhasePlan, b, StrategyAuto, ErrEmptyCatalog)
	}

	// Rewrite crossing requests so that longitudes increase monotonically
	// from west to east, with east carried past 180 where needed. All
	// downstream pixel math then works in one linear coordinate space.
	span := Span(b.West, b.East)
	if span.TwoRegions {
		west := NormalizeLongitude(b.West)
		b = Bounds{West: west, North: b.North, East: west + span.Width, South: b.South}
		span = Span(b.West, b.East)
	}

	hits := a.catalog.Query(b)
	if len(hits) == 0 {
		return nil, a.fail(PhaseQuery, b, StrategyAuto, ErrNoIntersectingTiles)
	}
	progress.report(0.05)

	pixelsPerDegree := defaultPixelsPerDegree
	for _, hit := range hits {
		pixelsPerDegree = max(pixelsPerDegree, hit.Tile.PixelsPerDegree)
	}
	outW := max(int(span.Width*pixelsPerDegree*scale+0.5), 1)
	outH := max(int(b.Height()*pixelsPerDegree*scale+0.5), 1)

	estimated := estimatePixelBytes(outW, outH)
	available, err := a.availableBytes()
	if err != nil {
		a.logger.Warn("memory probe failed, assuming chunked assembly", "error", err)
		available = 0
	}
	strategy := SelectStrategy(estimated, available, a.memoryFraction, a.forced)
	a.logger.Info("assembly planned",
		"west", b.West, "north", b.North, "east", b.East, "south", b.South,
		"width", outW, "height", outH, "tiles", len(hits),
		"estimated_bytes", estimated, "available_bytes", available,
		"strategy", strategy.String())

	var grid *Grid
	chunks := 1
	switch strategy {
	case StrategyChunked:
		grid, chunks, err = a.runChunked(ctx, b, outW, outH, hits, progress)
	default:
		grid, err = a.assembleRegion(ctx, b, outW, outH, hits)
		progress.report(0.8)
	}
	if err != nil {
		return nil, a.fail(PhaseAssemble, b, strategy, err)
	}

	valid := grid.ValidCount()
	if valid == 0 {
		return nil, a.fail(PhaseAssemble, b, strategy, ErrNoValidData)
	}
	progress.report(0.95)

	path := a.outputPath()
	if err := WriteDEM(path, grid, b); err != nil {
		return nil, a.fail(PhaseWrite, b, strategy, err)
	}
	progress.report(1)

	return &Result{
		Path:     path,
		Width:    outW,
		Height:   outH,
		Coverage: float64(valid) / float64(outW*outH),
		Strategy: strategy,
		Chunks:   chunks,
	}, nil
}

func (a *Assembler) availableBytes() (uint64, error) {
	available, err := a.availableFunc()
	if err != nil {
		return 0, err
	}
	if a.memoryLimit > 0 {
		available = min(available, a.memoryLimit)
	}
	return available, nil
}

func (a *Assembler) outputPath() string {
	name := fmt.Sprintf("demstitch_%d_%d.dem", os.Getpid(), time.Now().UnixNano())
	return filepath.Join(a.tempDir, name)
}

// assembleRegion composites every intersecting tile into one grid covering
// b at the given output dimensions. Single tile failures are logged and
// skipped, context cancellation is fatal.
func (a *Assembler) assembleRegion(ctx context.Context, b Bounds, outW, outH int, hits []QueryHit) (*Grid, error) {
	grid := NewGrid(outW, outH)
	for _, hit := range hits {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := a.placeTile(ctx, grid, b, hit); err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			assemblyTilesSkipped.Inc()
			a.logger.Warn("skipping tile", "tile", hit.Tile.Name, "error", err)
		}
	}
	return grid, nil
}

// placeTile resamples the part of one tile that overlaps b into the
// matching rectangle of dst. The overlap is computed in b's coordinate
// space after applying the tile's query shift, then mapped back to tile
// pixels before reading.
func (a *Assembler) placeTile(ctx context.Context, dst *Grid, b Bounds, hit QueryHit) error {
	tile := hit.Tile
	shifted := tile.Bounds.shiftLon(hit.Shift)

	west := max(shifted.West, b.West)
	east := min(shifted.East, b.East)
	north := min(shifted.North, b.North)
	south := max(shifted.South, b.South)
	if east <= west || north <= south {
		return nil
	}

	spanW := b.East - b.West
	dx0 := clampPixel((west-b.West)/spanW*float64(dst.Width), dst.Width)
	dx1 := clampPixel((east-b.West)/spanW*float64(dst.Width), dst.Width)
	dy0 := clampPixel((b.North-north)/b.Height()*float64(dst.Height), dst.Height)
	dy1 := clampPixel((b.North-south)/b.Height()*float64(dst.Height), dst.Height)
	if dx1 <= dx0 || dy1 <= dy0 {
		return nil
	}

	source, err := a.loader.Grid(ctx, tile.Path)
	if err != nil {
		return err
	}

	tileW := tile.Bounds.East - tile.Bounds.West
	tileH := tile.Bounds.Height()
	sx0 := clampPixel((west-hit.Shift-tile.Bounds.West)/tileW*float64(source.Width), source.Width)
	sx1 := clampPixel((east-hit.Shift-tile.Bounds.West)/tileW*float64(source.Width), source.Width)
	sy0 := clampPixel((tile.Bounds.North-north)/tileH*float64(source.Height), source.Height)
	sy1 := clampPixel((tile.Bounds.North-south)/tileH*float64(source.Height), source.Height)
	if sx1 <= sx0 || sy1 <= sy0 {
		return nil
	}

	patch, method := ResampleNaN(source.Crop(sx0, sy0, sx1, sy1), dx1-dx0, dy1-dy0)
	if method != ResampleCopy {
		a.logger.Debug("resampled tile", "tile", tile.Name, "method", method.String())
	}

	// Valid samples win over whatever is already placed, so overlapping
	// tile margins fill each other's voids instead of erasing them.
	for y := range patch.Height {
		dstRow := dst.Row(dy0 + y)
		srcRow := patch.Row(y)
		for x, v := range srcRow {
			if v == v {
				dstRow[dx0+x] = v
			}
		}
	}
	return nil
}

func clampPixel(f float64, n int) int {
	return min(max(int(math.Round(f)), 0), n)
}

// runChunked assembles b chunk by chunk, spooling each chunk to disk, then
// merges the spooled chunks into the final grid. Spool files are removed
// after a successful merge and best-effort removed on failure.
func (a *Assembler) runChunked(ctx context.Context, b Bounds, outW, outH int, hits []QueryHit, progress *monotonicProgress) (*Grid, int, error) {
	chunks := planChunks(b, outW, outH, a.chunkSizeMB)
	if len(chunks) == 1 {
		grid, err := a.assembleRegion(ctx, b, outW, outH, hits)
		progress.report(0.8)
		return grid, 1, err
	}

	spoolDir, err := os.MkdirTemp(a.tempDir, "demstitch-chunks-")
	if err != nil {
		return nil, 0, &AssemblyError{Phase: PhaseSpool, Bounds: b, Strategy: StrategyChunked, Err: err}
	}
	defer os.RemoveAll(spoolDir)

	a.logger.Info("chunked assembly", "chunks", len(chunks), "spool_dir", spoolDir)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		chunkHits := a.catalog.Query(chunk.Bounds)
		chunkGrid, err := a.assembleRegion(ctx, chunk.Bounds, chunk.Width, chunk.Height, chunkHits)
		if err != nil {
			return nil, 0, err
		}
		if err := writeChunkFile(filepath.Join(spoolDir, chunk.filename()), chunkGrid); err != nil {
			err = fmt.Errorf("spool chunk %d,%d: %w", chunk.Row, chunk.Col, err)
			return nil, 0, &AssemblyError{Phase: PhaseSpool, Bounds: b, Strategy: StrategyChunked, Err: err}
		}
		chunksSpooled.Inc()
		progress.report(0.05 + 0.75*float64(i+1)/float64(len(chunks)))
	}

	grid := NewGrid(outW, outH)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		path := filepath.Join(spoolDir, chunk.filename())
		chunkGrid, err := readChunkFile(path)
		if err != nil {
			err = fmt.Errorf("merge chunk %d,%d: %w", chunk.Row, chunk.Col, err)
			return nil, 0, &AssemblyError{Phase: PhaseMerge, Bounds: b, Strategy: StrategyChunked, Err: err}
		}
		if chunkGrid.Width != chunk.Width || chunkGrid.Height != chunk.Height {
			err = fmt.Errorf("merge chunk %d,%d: spooled %dx%d, planned %dx%d",
				chunk.Row, chunk.Col, chunkGrid.Width, chunkGrid.Height, chunk.Width, chunk.Height)
			return nil, 0, &AssemblyError{Phase: PhaseMerge, Bounds: b, Strategy: StrategyChunked, Err: err}
		}
		for y := range chunk.Height {
			copy(grid.Row(chunk.Y0+y)[chunk.X0:chunk.X0+chunk.Width], chunkGrid.Row(y))
		}
		_ = os.Remove(path)
		chunksMerged.Inc()
		progress.report(0.8 + 0.15*float64(i+1)/float64(len(chunks)))
	}
	return grid, len(chunks), nil
}
