package demstitch

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

type projectionClass int

const (
	projectionUnknown projectionClass = iota
	projectionGeographic
	projectionProjected
)

// classifyProjection examines the WKT of a .prj companion. Projected
// coordinate systems are refused outright; anything unrecognizable is
// reported as unknown so the tile can still be used with a warning.
func classifyProjection(wkt []byte) projectionClass {
	s := string(wkt)
	if strings.Contains(s, "PROJCS[") || strings.Contains(s, "PROJCRS[") {
		return projectionProjected
	}
	if strings.Contains(s, "GEOGCS[") || strings.Contains(s, "GEOGCRS[") {
		return projectionGeographic
	}
	return projectionUnknown
}

// parseStats parses a .stx statistics companion: one line per band with
// band number, min, max, mean and standard deviation.
func parseStats(data []byte) *TileStats {
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		var values [4]float64
		ok := true
		for i := range values {
			v, err := strconv.ParseFloat(fields[i+1], 64)
			if err != nil {
				ok = false
				break
			}
			values[i] = v
		}
		if ok {
			return &TileStats{Min: values[0], Max: values[1], Mean: values[2], StdDev: values[3]}
		}
	}
	return nil
}

func probeBILHeader(path string) (rasterHeader, TileMeta, error) {
	hdrFile, err := os.Open(companionPath(path, ".hdr"))
	if err != nil {
		return rasterHeader{}, TileMeta{}, err
	}
	defer hdrFile.Close()
	header, err := parseRasterHeader(hdrFile)
	if err != nil {
		return rasterHeader{}, TileMeta{}, fmt.Errorf("%s: %w", path, err)
	}

	meta := TileMeta{
		Bounds: snapBounds(header.bounds()),
		Width:  header.Cols,
		Height: header.Rows,
	}
	if wkt, err := os.ReadFile(companionPath(path, ".prj")); err == nil {
		switch classifyProjection(wkt) {
		case projectionProjected:
			return rasterHeader{}, TileMeta{}, fmt.Errorf("%s: %w", path, ErrProjectedCRS)
		case projectionUnknown:
			meta.ProjectionUnknown = true
		}
	}
	if stx, err := os.ReadFile(companionPath(path, ".stx")); err == nil {
		meta.Stats = parseStats(stx)
	}
	return header, meta, nil
}

// probeBIL probes a raw BIL elevation raster via its companion files.
func probeBIL(path string) (TileMeta, error) {
	_, meta, err := probeBILHeader(path)
	return meta, err
}

// A bilTile is an open raw BIL elevation raster.
type bilTile struct {
	file   *os.File
	header rasterHeader
	meta   TileMeta
}

func openBILTile(path string) (*bilTile, error) {
	header, meta, err := probeBILHeader(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &bilTile{file: file, header: header, meta: meta}, nil
}

func (t *bilTile) Meta() TileMeta {
	return t.meta
}

func (t *bilTile) Close() error {
	return t.file.Close()
}

// ReadGrid reads the full raster, mapping the header's no-data value to
// NaN.
func (t *bilTile) ReadGrid() (*Grid, error) {
	bytesPerSample := t.header.Bits / 8
	n := t.header.Rows * t.header.Cols
	buf := make([]byte, n*bytesPerSample)
	if _, err := t.file.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("%s: reading %d samples: %w", t.file.Name(), n, err)
	}

	var order binary.ByteOrder = binary.BigEndian
	if t.header.ByteOrder == 'I' {
		order = binary.LittleEndian
	}
	nan := float32(math.NaN())
	grid := &Grid{Width: t.header.Cols, Height: t.header.Rows, Data: make([]float32, n)}
	switch t.header.Bits {
	case 16:
		for i := range n {
			v := int16(order.Uint16(buf[2*i:]))
			if float64(v) == t.header.NoData {
				grid.Data[i] = nan
			} else {
				grid.Data[i] = float32(v)
			}
		}
	case 32:
		for i := range n {
			v := int32(order.Uint32(buf[4*i:]))
			if float64(v) == t.header.NoData {
				grid.Data[i] = nan
			} else {
				grid.Data[i] = float32(v)
			}
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", t.header.Bits)
	}
	return grid, nil
}
