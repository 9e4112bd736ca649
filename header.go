package demstitch

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// A rasterHeader is the companion text header of a raw BIL elevation
// raster: GTOPO30-style whitespace-separated key-value lines. ULX/ULY are
// the map coordinates of the upper-left pixel center.
type rasterHeader struct {
	Rows      int
	Cols      int
	Bands     int
	Bits      int
	ByteOrder byte // 'M' big-endian, 'I' little-endian
	NoData    float64
	ULX       float64
	ULY       float64
	XDim      float64
	YDim      float64
}

var requiredHeaderFields = []string{"NROWS", "NCOLS", "NBITS", "NODATA", "ULXMAP", "ULYMAP", "XDIM", "YDIM"}

func parseRasterHeader(r io.Reader) (rasterHeader, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		parts := strings.Fields(scanner.Text())
		if len(parts) < 2 {
			continue
		}
		fields[strings.ToUpper(parts[0])] = strings.Join(parts[1:], " ")
	}
	if err := scanner.Err(); err != nil {
		return rasterHeader{}, err
	}
	for _, field := range requiredHeaderFields {
		if _, ok := fields[field]; !ok {
			return rasterHeader{}, fmt.Errorf("required header field missing: %s", field)
		}
	}

	h := rasterHeader{Bands: 1, ByteOrder: 'M'}
	var err error
	if h.Rows, err = strconv.Atoi(fields["NROWS"]); err != nil {
		return rasterHeader{}, fmt.Errorf("NROWS: %w", err)
	}
	if h.Cols, err = strconv.Atoi(fields["NCOLS"]); err != nil {
		return rasterHeader{}, fmt.Errorf("NCOLS: %w", err)
	}
	if h.Bits, err = strconv.Atoi(fields["NBITS"]); err != nil {
		return rasterHeader{}, fmt.Errorf("NBITS: %w", err)
	}
	if bands, ok := fields["NBANDS"]; ok {
		if h.Bands, err = strconv.Atoi(bands); err != nil {
			return rasterHeader{}, fmt.Errorf("NBANDS: %w", err)
		}
	}
	if order, ok := fields["BYTEORDER"]; ok && order != "" {
		h.ByteOrder = order[0]
	}
	for _, f := range []struct {
		key string
		dst *float64
	}{
		{"NODATA", &h.NoData},
		{"ULXMAP", &h.ULX},
		{"ULYMAP", &h.ULY},
		{"XDIM", &h.XDim},
		{"YDIM", &h.YDim},
	} {
		if *f.dst, err = strconv.ParseFloat(fields[f.key], 64); err != nil {
			return rasterHeader{}, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	if h.Rows <= 0 || h.Cols <= 0 {
		return rasterHeader{}, fmt.Errorf("non-positive raster dimensions %dx%d", h.Cols, h.Rows)
	}
	if h.XDim <= 0 || h.YDim <= 0 {
		return rasterHeader{}, fmt.Errorf("non-positive pixel size %gx%g", h.XDim, h.YDim)
	}
	return h, nil
}

func (h rasterHeader) writeTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "BYTEORDER      %c\n", h.ByteOrder)
	fmt.Fprintf(bw, "LAYOUT         BIL\n")
	fmt.Fprintf(bw, "NROWS          %d\n", h.Rows)
	fmt.Fprintf(bw, "NCOLS          %d\n", h.Cols)
	fmt.Fprintf(bw, "NBANDS         %d\n", h.Bands)
	fmt.Fprintf(bw, "NBITS          %d\n", h.Bits)
	fmt.Fprintf(bw, "BANDROWBYTES   %d\n", h.Cols*h.Bits/8)
	fmt.Fprintf(bw, "TOTALROWBYTES  %d\n", h.Cols*h.Bits/8)
	fmt.Fprintf(bw, "BANDGAPBYTES   0\n")
	fmt.Fprintf(bw, "NODATA         %s\n", formatDegrees(h.NoData))
	fmt.Fprintf(bw, "ULXMAP         %s\n", formatDegrees(h.ULX))
	fmt.Fprintf(bw, "ULYMAP         %s\n", formatDegrees(h.ULY))
	fmt.Fprintf(bw, "XDIM           %s\n", formatDegrees(h.XDim))
	fmt.Fprintf(bw, "YDIM           %s\n", formatDegrees(h.YDim))
	return bw.Flush()
}

// bounds derives the tile's geographic bounds from the upper-left pixel
// center and per-pixel angular size.
func (h rasterHeader) bounds() Bounds {
	west := h.ULX - h.XDim/2
	north := h.ULY + h.YDim/2
	return Bounds{
		West:  west,
		North: north,
		East:  west + float64(h.Cols)*h.XDim,
		South: north - float64(h.Rows)*h.YDim,
	}
}

func formatDegrees(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
