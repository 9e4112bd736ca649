package demstitch

import "math"

// A Grid is a row-major raster of float32 elevation samples. No-data is
// represented by NaN.
type Grid struct {
	Width  int
	Height int
	Data   []float32
}

// NewGrid returns a Grid of the given dimensions filled with no-data.
func NewGrid(width, height int) *Grid {
	data := make([]float32, width*height)
	nan := float32(math.NaN())
	for i := range data {
		data[i] = nan
	}
	return &Grid{Width: width, Height: height, Data: data}
}

func (g *Grid) At(x, y int) float32 {
	return g.Data[y*g.Width+x]
}

func (g *Grid) Set(x, y int, v float32) {
	g.Data[y*g.Width+x] = v
}

// Row returns the samples of row y, aliasing g's storage.
func (g *Grid) Row(y int) []float32 {
	return g.Data[y*g.Width : (y+1)*g.Width]
}

// Crop returns a copy of the rectangle [x0, x1) x [y0, y1).
func (g *Grid) Crop(x0, y0, x1, y1 int) *Grid {
	out := &Grid{
		Width:  x1 - x0,
		Height: y1 - y0,
		Data:   make([]float32, (x1-x0)*(y1-y0)),
	}
	for y := y0; y < y1; y++ {
		copy(out.Row(y-y0), g.Row(y)[x0:x1])
	}
	return out
}

// ValidCount returns the number of samples that are not no-data.
func (g *Grid) ValidCount() int {
	n := 0
	for _, v := range g.Data {
		if v == v { // not NaN
			n++
		}
	}
	return n
}

// SizeBytes returns the in-memory size of the sample data.
func (g *Grid) SizeBytes() int {
	return 4 * len(g.Data)
}
