package demstitch

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// A Strategy is the assembly approach chosen for one request.
type Strategy int

const (
	// StrategyAuto selects between the other strategies from the memory
	// estimate and live memory availability.
	StrategyAuto Strategy = iota
	// StrategyInMemory assembles the whole target in one pass.
	StrategyInMemory
	// StrategyChunked partitions the target into disk-spooled chunks.
	StrategyChunked
)

func (s Strategy) String() string {
	switch s {
	case StrategyInMemory:
		return "in_memory"
	case StrategyChunked:
		return "chunked"
	default:
		return "auto"
	}
}

const (
	bytesPerPixel        = 4 // float32 samples
	memoryOverheadFactor = 2.5

	defaultMemoryFraction  = 0.5
	defaultChunkSizeMB     = 200
	defaultPixelsPerDegree = 120.0
)

// EstimateBytes estimates the working memory needed to assemble bounds at
// the given output scale and nominal source resolution: the output array
// at 4 bytes per pixel times an empirical overhead factor for intermediate
// buffers.
func EstimateBytes(b Bounds, scale, pixelsPerDegree float64) uint64 {
	span := Span(b.West, b.East)
	width := int(span.Width * pixelsPerDegree * scale)
	height := int(b.Height() * pixelsPerDegree * scale)
	return estimatePixelBytes(width, height)
}

func estimatePixelBytes(width, height int) uint64 {
	return uint64(float64(width) * float64(height) * bytesPerPixel * memoryOverheadFactor)
}

// SelectStrategy is a pure function of the memory estimate, the available
// memory and the configuration: identical inputs always yield the same
// strategy. If forced names a concrete strategy it wins unconditionally.
func SelectStrategy(estimatedBytes, availableBytes uint64, memoryFraction float64, forced Strategy) Strategy {
	if forced == StrategyInMemory || forced == StrategyChunked {
		return forced
	}
	if float64(estimatedBytes) < float64(availableBytes)*memoryFraction {
		return StrategyInMemory
	}
	return StrategyChunked
}

// systemAvailableBytes returns the memory currently available to the
// process according to the operating system.
func systemAvailableBytes() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Available, nil
}
