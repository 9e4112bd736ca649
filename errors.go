package demstitch

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidBounds       = errors.New("invalid bounds")
	ErrEmptySpan           = errors.New("empty longitude span")
	ErrSpanTooWide         = errors.New("longitude span exceeds 360 degrees")
	ErrInvalidScale        = errors.New("scale must be in (0, 1]")
	ErrEmptyCatalog        = errors.New("catalog contains no tiles")
	ErrNoIntersectingTiles = errors.New("no tiles intersect the requested bounds")
	ErrNoValidData         = errors.New("assembled raster contains no valid samples")
	ErrProjectedCRS        = errors.New("projected coordinate reference system")
)

// A Phase identifies how far an assembly got before failing.
type Phase string

const (
	PhasePlan     Phase = "plan"
	PhaseQuery    Phase = "query"
	PhaseAssemble Phase = "assemble"
	PhaseSpool    Phase = "spool"
	PhaseMerge    Phase = "merge"
	PhaseWrite    Phase = "write"
)

// An AssemblyError is a fatal assembly failure. It carries the request
// bounds, the strategy in effect, and the phase reached so callers can
// report the failure without re-deriving context. Per-tile failures are
// recovered internally and never surface as an AssemblyError.
type AssemblyError struct {
	Phase    Phase
	Bounds   Bounds
	Strategy Strategy
	Err      error
}

func (e *AssemblyError) Error() string {
	return fmt.Sprintf("assembly failed in %s phase (strategy %s, bounds W=%g N=%g E=%g S=%g): %v",
		e.Phase, e.Strategy, e.Bounds.West, e.Bounds.North, e.Bounds.East, e.Bounds.South, e.Err)
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
