package demstitch

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// A chunkRegion is one rectangular sub-region of the output raster: its
// grid position, its geographic bounds in the target's coordinate space,
// and its pixel placement in the final array.
type chunkRegion struct {
	Row    int
	Col    int
	Bounds Bounds
	X0     int
	Y0     int
	Width  int
	Height int
}

// planChunks partitions the output raster into a near-square grid of
// chunks sized so each fits the nominal chunk budget under the same
// bytes-per-pixel model as the memory estimator. The pixel partition is
// exact: every output pixel belongs to exactly one chunk.
func planChunks(b Bounds, outW, outH, chunkSizeMB int) []chunkRegion {
	pixelsPerChunk := int(float64(chunkSizeMB) * (1 << 20) / (bytesPerPixel * memoryOverheadFactor))
	pixelsPerChunk = max(pixelsPerChunk, 1)

	rows, cols := 1, 1
	total := outW * outH
	if total > pixelsPerChunk {
		side := math.Sqrt(float64(pixelsPerChunk))
		needed := float64(total) / float64(pixelsPerChunk)
		rows = min(int(math.Sqrt(needed))+1, int(math.Ceil(float64(outH)/side)))
		cols = min(int(math.Sqrt(needed))+1, int(math.Ceil(float64(outW)/side)))
		rows = max(rows, 1)
		cols = max(cols, 1)
		for float64(rows*cols) < needed {
			if rows <= cols {
				rows++
			} else {
				cols++
			}
		}
		rows = min(rows, outH)
		cols = min(cols, outW)
	}

	span := Span(b.West, b.East)
	chunks := make([]chunkRegion, 0, rows*cols)
	for row := range rows {
		y0 := row * outH / rows
		y1 := (row + 1) * outH / rows
		north := b.North - float64(y0)/float64(outH)*b.Height()
		south := b.North - float64(y1)/float64(outH)*b.Height()
		for col := range cols {
			x0 := col * outW / cols
			x1 := (col + 1) * outW / cols
			// Chunk longitudes stay in the target's coordinate space, so
			// eastern chunks of a crossing target keep raw values past
			// 180 and the shift-aware query still finds their tiles.
			west := b.West + float64(x0)/float64(outW)*span.Width
			east := b.West + float64(x1)/float64(outW)*span.Width
			chunks = append(chunks, chunkRegion{
				Row:    row,
				Col:    col,
				Bounds: Bounds{West: west, North: north, East: east, South: south},
				X0:     x0,
				Y0:     y0,
				Width:  x1 - x0,
				Height: y1 - y0,
			})
		}
	}
	return chunks
}

func (c chunkRegion) filename() string {
	return fmt.Sprintf("chunk_%d_%d.grid", c.Row, c.Col)
}

// writeChunkFile spools a chunk's samples to a temporary file: two
// little-endian int32 dimensions followed by raw float32 samples.
func writeChunkFile(path string, grid *Grid) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	for _, dim := range [...]int32{int32(grid.Width), int32(grid.Height)} {
		if err := binary.Write(w, binary.LittleEndian, dim); err != nil {
			_ = file.Close()
			return err
		}
	}
	if err := binary.Write(w, binary.LittleEndian, grid.Data); err != nil {
		_ = file.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

func readChunkFile(path string) (*Grid, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r := bufio.NewReader(file)
	var width, height int32
	if err := binary.Read(r, binary.LittleEndian, &width); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &height); err != nil {
		return nil, err
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%s: invalid chunk dimensions %dx%d", path, width, height)
	}
	grid := &Grid{
		Width:  int(width),
		Height: int(height),
		Data:   make([]float32, int(width)*int(height)),
	}
	if err := binary.Read(r, binary.LittleEndian, grid.Data); err != nil {
		return nil, err
	}
	return grid, nil
}
