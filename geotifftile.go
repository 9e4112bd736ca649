package demstitch

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/google/tiff"
	_ "github.com/google/tiff/bigtiff"
	_ "github.com/google/tiff/geotiff"
	"golang.org/x/image/tiff/lzw"
)

const (
	tiffCompressionNone = 1
	tiffCompressionLZW  = 5

	tiffSampleFormatInt   = 2
	tiffSampleFormatFloat = 3

	geoKeyModelType        = 1024
	geoModelTypeProjected  = 1
	geoModelTypeGeographic = 2
)

// A geoTIFFIFD is a struct into which github.com/google/tiff can unmarshal
// an IFD.
type geoTIFFIFD struct {
	ImageWidth                uint16    `tiff:"field,tag=256"`
	ImageLength               uint16    `tiff:"field,tag=257"`
	BitsPerSample             uint16    `tiff:"field,tag=258"`
	Compression               uint16    `tiff:"field,tag=259"`
	PhotometricInterpretation uint16    `tiff:"field,tag=262"`
	StripOffsets              []uint64  `tiff:"field,tag=273"`
	SamplesPerPixel           uint16    `tiff:"field,tag=277"`
	RowsPerStrip              uint16    `tiff:"field,tag=278"`
	StripByteCounts           []uint64  `tiff:"field,tag=279"`
	PlanarConfiguration       uint16    `tiff:"field,tag=284"`
	Predictor                 uint16    `tiff:"field,tag=317"`
	TileWidth                 uint16    `tiff:"field,tag=322"`
	TileLength                uint16    `tiff:"field,tag=323"`
	TileOffsets               []uint64  `tiff:"field,tag=324"`
	TileByteCounts            []uint64  `tiff:"field,tag=325"`
	SampleFormat              uint16    `tiff:"field,tag=339"`
	ModelPixelScaleTag        []float64 `tiff:"field,tag=33550"`
	ModelTiepointTag          []float64 `tiff:"field,tag=33922"`
	GeoKeyDirectoryTag        []uint16  `tiff:"field,tag=34735"`
	GDALNoData                string    `tiff:"field,tag=42113"`
}

// A geoTIFFTile is an open single-band GeoTIFF elevation file in
// geographic coordinates.
type geoTIFFTile struct {
	file        *os.File
	ifd         geoTIFFIFD
	meta        TileMeta
	noData      float64
	hasNoData   bool
	tiled       bool
	segmentCols int // samples per segment row
	segmentRows int // rows per segment
}

func parseGeoTIFFIFD(file *os.File) (geoTIFFIFD, error) {
	var ifd geoTIFFIFD
	tiffTIFF, err := tiff.Parse(file, tiff.GetTagSpace("GeoTIFF"), nil)
	if err != nil {
		return ifd, err
	}
	if len(tiffTIFF.IFDs()) < 1 {
		return ifd, fmt.Errorf("found %d IFDs, expected at least 1", len(tiffTIFF.IFDs()))
	}
	if err := tiff.UnmarshalIFD(tiffTIFF.IFDs()[0], &ifd); err != nil {
		return ifd, err
	}
	return ifd, nil
}

func (ifd *geoTIFFIFD) validate(path string) error {
	if ifd.SamplesPerPixel > 1 || ifd.PlanarConfiguration > 1 {
		return fmt.Errorf("%s: multi-band rasters are unsupported", path)
	}
	if ifd.Compression != tiffCompressionNone && ifd.Compression != tiffCompressionLZW {
		return fmt.Errorf("%s: unsupported compression %d", path, ifd.Compression)
	}
	if ifd.Predictor > 1 {
		return fmt.Errorf("%s: unsupported predictor %d", path, ifd.Predictor)
	}
	switch {
	case ifd.BitsPerSample == 16:
	case ifd.BitsPerSample == 32 && ifd.SampleFormat == tiffSampleFormatFloat:
	default:
		return fmt.Errorf("%s: unsupported sample type (%d bits, format %d)", path, ifd.BitsPerSample, ifd.SampleFormat)
	}
	if len(ifd.ModelPixelScaleTag) < 2 || len(ifd.ModelTiepointTag) < 6 {
		return fmt.Errorf("%s: missing georeferencing tags", path)
	}
	if ifd.ModelPixelScaleTag[0] <= 0 || ifd.ModelPixelScaleTag[1] <= 0 {
		return fmt.Errorf("%s: non-positive pixel scale", path)
	}
	return nil
}

// modelType extracts GTModelTypeGeoKey from the GeoKey directory. The
// directory is a flat array of 4-value entries following a 4-value header;
// a zero tag location means the value is stored inline.
func (ifd *geoTIFFIFD) modelType() (int, bool) {
	keys := ifd.GeoKeyDirectoryTag
	for i := 4; i+3 < len(keys); i += 4 {
		if keys[i] == geoKeyModelType && keys[i+1] == 0 {
			return int(keys[i+3]), true
		}
	}
	return 0, false
}

func (ifd *geoTIFFIFD) metaFrom(path string) (TileMeta, error) {
	meta := TileMeta{
		Width:  int(ifd.ImageWidth),
		Height: int(ifd.ImageLength),
	}
	switch modelType, ok := ifd.modelType(); {
	case ok && modelType == geoModelTypeGeographic:
	case ok:
		return TileMeta{}, fmt.Errorf("%s: %w (model type %d)", path, ErrProjectedCRS, modelType)
	default:
		meta.ProjectionUnknown = true
	}

	scaleX, scaleY := ifd.ModelPixelScaleTag[0], ifd.ModelPixelScaleTag[1]
	i, j := ifd.ModelTiepointTag[0], ifd.ModelTiepointTag[1]
	x, y := ifd.ModelTiepointTag[3], ifd.ModelTiepointTag[4]
	west := x - i*scaleX
	north := y + j*scaleY
	meta.Bounds = snapBounds(Bounds{
		West:  west,
		North: north,
		East:  west + float64(meta.Width)*scaleX,
		South: north - float64(meta.Height)*scaleY,
	})
	return meta, nil
}

// probeGeoTIFF probes a GeoTIFF tile's dimensions and geographic bounds.
func probeGeoTIFF(path string) (TileMeta, error) {
	tile, err := openGeoTIFFTile(path)
	if err != nil {
		return TileMeta{}, err
	}
	defer tile.Close()
	return tile.Meta(), nil
}

func openGeoTIFFTile(path string) (*geoTIFFTile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	ok := false
	defer func() {
		if !ok {
			_ = file.Close()
		}
	}()

	ifd, err := parseGeoTIFFIFD(file)
	if err != nil {
		return nil, err
	}
	if err := ifd.validate(path); err != nil {
		return nil, err
	}
	meta, err := ifd.metaFrom(path)
	if err != nil {
		return nil, err
	}

	t := &geoTIFFTile{file: file, ifd: ifd, meta: meta}
	if len(ifd.TileOffsets) > 0 {
		t.tiled = true
		t.segmentCols = int(ifd.TileWidth)
		t.segmentRows = int(ifd.TileLength)
		if t.segmentCols <= 0 || t.segmentRows <= 0 {
			return nil, fmt.Errorf("%s: invalid tile layout", path)
		}
	} else {
		if len(ifd.StripOffsets) == 0 {
			return nil, fmt.Errorf("%s: no strip or tile offsets", path)
		}
		t.segmentCols = meta.Width
		t.segmentRows = int(ifd.RowsPerStrip)
		if t.segmentRows <= 0 {
			t.segmentRows = meta.Height
		}
	}
	if noData := strings.TrimSpace(ifd.GDALNoData); noData != "" {
		if v, err := strconv.ParseFloat(noData, 64); err == nil {
			t.noData = v
			t.hasNoData = true
		}
	}

	ok = true
	return t, nil
}

func (t *geoTIFFTile) Meta() TileMeta {
	return t.meta
}

func (t *geoTIFFTile) Close() error {
	return t.file.Close()
}

// readSegment reads and decompresses one strip or tile of sample data.
func (t *geoTIFFTile) readSegment(offset, byteCount uint64, uncompressed int) ([]byte, error) {
	compressed := make([]byte, byteCount)
	if _, err := t.file.ReadAt(compressed, int64(offset)); err != nil {
		return nil, err
	}
	if t.ifd.Compression == tiffCompressionNone {
		return compressed, nil
	}
	data := make([]byte, uncompressed)
	r := lzw.NewReader(bytes.NewReader(compressed), lzw.MSB, 8)
	defer r.Close()
	bytesRead := 0
	for bytesRead < uncompressed {
		n, err := r.Read(data[bytesRead:])
		bytesRead += n
		if err == io.EOF {
			// The final segment of a striped image is shorter than a
			// full segment.
			break
		}
		if err != nil {
			return nil, err
		}
	}
	return data[:bytesRead], nil
}

func (t *geoTIFFTile) sampleAt(data []byte, i int) float32 {
	var v float64
	if t.ifd.BitsPerSample == 16 {
		v = float64(int16(binary.LittleEndian.Uint16(data[2*i:])))
	} else {
		v = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:])))
	}
	if t.hasNoData && v == t.noData {
		return float32(math.NaN())
	}
	return float32(v)
}

// ReadGrid decodes the full raster, mapping the GDAL no-data value to NaN.
func (t *geoTIFFTile) ReadGrid() (*Grid, error) {
	grid := NewGrid(t.meta.Width, t.meta.Height)
	bytesPerSample := int(t.ifd.BitsPerSample) / 8

	offsets := t.ifd.StripOffsets
	byteCounts := t.ifd.StripByteCounts
	if t.tiled {
		offsets = t.ifd.TileOffsets
		byteCounts = t.ifd.TileByteCounts
	}
	if len(byteCounts) < len(offsets) {
		return nil, fmt.Errorf("segment byte counts do not match offsets")
	}
	segmentBytes := t.segmentCols * t.segmentRows * bytesPerSample
	segmentsAcross := 1
	if t.tiled {
		segmentsAcross = (t.meta.Width + t.segmentCols - 1) / t.segmentCols
	}

	for index, offset := range offsets {
		data, err := t.readSegment(offset, byteCounts[index], segmentBytes)
		if err != nil {
			return nil, err
		}
		x0 := (index % segmentsAcross) * t.segmentCols
		y0 := (index / segmentsAcross) * t.segmentRows
		for row := 0; row < t.segmentRows && y0+row < t.meta.Height; row++ {
			for col := 0; col < t.segmentCols && x0+col < t.meta.Width; col++ {
				i := row*t.segmentCols + col
				if (i+1)*bytesPerSample > len(data) {
					break
				}
				grid.Set(x0+col, y0+row, t.sampleAt(data, i))
			}
		}
	}
	return grid, nil
}
