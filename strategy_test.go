package demstitch

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestEstimateBytes(t *testing.T) {
	b := Bounds{West: 0, North: 10, East: 10, South: 0}
	// 10x10 degrees at 120 px/deg full scale: 1200x1200 pixels, 4 bytes
	// each, times the overhead factor.
	assert.Equal(t, uint64(1200*1200*4*2.5), EstimateBytes(b, 1, 120))
	assert.Equal(t, uint64(600*600*4*2.5), EstimateBytes(b, 0.5, 120))

	// A crossing request measures its true eastward width.
	crossing := Bounds{West: 170, North: 10, East: -170, South: 0}
	assert.Equal(t, uint64(2400*1200*4*2.5), EstimateBytes(crossing, 1, 120))
}

func TestSelectStrategy(t *testing.T) {
	const gb = uint64(1) << 30
	assert.Equal(t, StrategyInMemory, SelectStrategy(gb/4, gb, 0.5, StrategyAuto))
	assert.Equal(t, StrategyChunked, SelectStrategy(gb, gb, 0.5, StrategyAuto))
	assert.Equal(t, StrategyChunked, SelectStrategy(gb/2, gb, 0.5, StrategyAuto))

	// Forcing wins regardless of the estimate.
	assert.Equal(t, StrategyChunked, SelectStrategy(1, gb, 0.5, StrategyChunked))
	assert.Equal(t, StrategyInMemory, SelectStrategy(100*gb, gb, 0.5, StrategyInMemory))

	// No memory information means chunked.
	assert.Equal(t, StrategyChunked, SelectStrategy(1, 0, 0.5, StrategyAuto))
}

func TestSelectStrategyDeterministic(t *testing.T) {
	first := SelectStrategy(123456789, 987654321, 0.5, StrategyAuto)
	for range 10 {
		assert.Equal(t, first, SelectStrategy(123456789, 987654321, 0.5, StrategyAuto))
	}
}
