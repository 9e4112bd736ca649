package demstitch

import (
	"bufio"
	"encoding/binary"
	"math"
	"os"
)

// NoDataSentinel is the integer no-data value written to DEM files in
// place of NaN.
const NoDataSentinel = -9999

// WriteDEM serializes grid as a raw big-endian int16 raster at path with a
// companion .hdr text header, so the output can be re-consumed as a tile
// by the same reader. NaN samples become the no-data sentinel; valid
// samples are rounded and clamped to the int16 range.
func WriteDEM(path string, grid *Grid, bounds Bounds) error {
	span := Span(bounds.West, bounds.East)
	xDim := span.Width / float64(grid.Width)
	yDim := bounds.Height() / float64(grid.Height)
	west := bounds.West
	if west < -180 || west > 180 {
		west = NormalizeLongitude(west)
	}
	header := rasterHeader{
		Rows:      grid.Height,
		Cols:      grid.Width,
		Bands:     1,
		Bits:      16,
		ByteOrder: 'M',
		NoData:    NoDataSentinel,
		ULX:       west + xDim/2,
		ULY:       bounds.North - yDim/2,
		XDim:      xDim,
		YDim:      yDim,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(file)
	row := make([]byte, 2*grid.Width)
	for y := range grid.Height {
		for x, v := range grid.Row(y) {
			binary.BigEndian.PutUint16(row[2*x:], uint16(quantizeSample(v)))
		}
		if _, err := w.Write(row); err != nil {
			_ = file.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	hdrFile, err := os.Create(companionPath(path, ".hdr"))
	if err != nil {
		return err
	}
	if err := header.writeTo(hdrFile); err != nil {
		_ = hdrFile.Close()
		return err
	}
	return hdrFile.Close()
}

func quantizeSample(v float32) int16 {
	if v != v {
		return NoDataSentinel
	}
	r := math.Round(float64(v))
	switch {
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	default:
		return int16(r)
	}
}
