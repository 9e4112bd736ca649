package demstitch

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestPlanChunksPartition(t *testing.T) {
	b := Bounds{West: 0, North: 10, East: 20, South: 0}
	const outW, outH = 2400, 1200
	chunks := planChunks(b, outW, outH, 1)

	assert.True(t, len(chunks) > 1, "expected multiple chunks, got %d", len(chunks))

	// Every output pixel is covered exactly once.
	covered := make([]bool, outW*outH)
	for _, chunk := range chunks {
		assert.True(t, chunk.Width > 0 && chunk.Height > 0)
		for y := chunk.Y0; y < chunk.Y0+chunk.Height; y++ {
			for x := chunk.X0; x < chunk.X0+chunk.Width; x++ {
				i := y*outW + x
				if covered[i] {
					t.Fatalf("pixel %d,%d covered twice", x, y)
				}
				covered[i] = true
			}
		}
	}
	for i, ok := range covered {
		if !ok {
			t.Fatalf("pixel index %d not covered", i)
		}
	}
}

func TestPlanChunksBounds(t *testing.T) {
	b := Bounds{West: 0, North: 10, East: 20, South: 0}
	const outW, outH = 2400, 1200
	chunks := planChunks(b, outW, outH, 1)

	for _, chunk := range chunks {
		// Chunk bounds are the exact geographic projection of the chunk's
		// pixel rectangle.
		wantWest := b.West + float64(chunk.X0)/outW*20
		wantNorth := b.North - float64(chunk.Y0)/outH*10
		assert.True(t, math.Abs(chunk.Bounds.West-wantWest) < 1e-9)
		assert.True(t, math.Abs(chunk.Bounds.North-wantNorth) < 1e-9)
	}
}

func TestPlanChunksSmallOutput(t *testing.T) {
	b := Bounds{West: 0, North: 1, East: 1, South: 0}
	chunks := planChunks(b, 100, 100, 200)
	assert.Equal(t, 1, len(chunks))
	assert.Equal(t, 100, chunks[0].Width)
	assert.Equal(t, 100, chunks[0].Height)
	assert.Equal(t, b, chunks[0].Bounds)
}

func TestPlanChunksCrossing(t *testing.T) {
	// A canonicalized crossing target keeps raw longitudes past 180 in
	// its eastern chunks.
	b := Bounds{West: 170, North: 10, East: 190, South: 0}
	chunks := planChunks(b, 2400, 1200, 1)

	var sawRawEast bool
	for _, chunk := range chunks {
		assert.True(t, chunk.Bounds.East > chunk.Bounds.West)
		if chunk.Bounds.East > 180 {
			sawRawEast = true
		}
	}
	assert.True(t, sawRawEast, "no chunk extends past 180")
}

func TestChunkFileRoundTrip(t *testing.T) {
	grid := NewGrid(17, 9)
	for y := range grid.Height {
		for x := range grid.Width {
			if (x+y)%5 == 0 {
				continue
			}
			grid.Set(x, y, float32(x)-float32(y)/2)
		}
	}

	path := filepath.Join(t.TempDir(), "chunk_0_0.grid")
	assert.NoError(t, writeChunkFile(path, grid))

	read, err := readChunkFile(path)
	assert.NoError(t, err)
	assert.Equal(t, grid.Width, read.Width)
	assert.Equal(t, grid.Height, read.Height)
	for i := range grid.Data {
		want, got := grid.Data[i], read.Data[i]
		if want != want {
			assert.True(t, got != got, "index %d", i)
		} else {
			assert.Equal(t, want, got, "index %d", i)
		}
	}
}

func TestReadChunkFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := readChunkFile(filepath.Join(dir, "missing.grid"))
	assert.Error(t, err)

	// Truncated spool file: header promises more samples than exist.
	path := filepath.Join(dir, "truncated.grid")
	assert.NoError(t, writeChunkFile(path, NewGrid(4, 4)))
	assert.NoError(t, os.Truncate(path, 20))
	_, err = readChunkFile(path)
	assert.Error(t, err)
}
