package demstitch

import (
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestParseRasterHeader(t *testing.T) {
	hdr := `BYTEORDER      M
LAYOUT         BIL
NROWS          6000
NCOLS          4800
NBANDS         1
NBITS          16
NODATA         -9999
ULXMAP         -99.99583333333334
ULYMAP         89.99583333333334
XDIM           0.00833333333333
YDIM           0.00833333333333
`
	header, err := parseRasterHeader(strings.NewReader(hdr))
	assert.NoError(t, err)
	assert.Equal(t, 6000, header.Rows)
	assert.Equal(t, 4800, header.Cols)
	assert.Equal(t, 16, header.Bits)
	assert.Equal(t, byte('M'), header.ByteOrder)
	assert.Equal(t, -9999.0, header.NoData)

	bounds := header.bounds()
	assert.True(t, bounds.West < bounds.East)
	assert.True(t, bounds.South < bounds.North)
}

func TestParseRasterHeaderMissingField(t *testing.T) {
	hdr := "NROWS 100\nNCOLS 100\n"
	_, err := parseRasterHeader(strings.NewReader(hdr))
	assert.Error(t, err)
}

func TestRasterHeaderWriteParseRoundTrip(t *testing.T) {
	header := rasterHeader{
		Rows:      1200,
		Cols:      2400,
		Bands:     1,
		Bits:      16,
		ByteOrder: 'M',
		NoData:    -9999,
		ULX:       -9.9375,
		ULY:       49.9375,
		XDim:      0.125,
		YDim:      0.125,
	}

	var buf strings.Builder
	assert.NoError(t, header.writeTo(&buf))
	parsed, err := parseRasterHeader(strings.NewReader(buf.String()))
	assert.NoError(t, err)
	assert.Equal(t, header, parsed)
}
