package demstitch

import (
	"path/filepath"
	"strings"
)

// TileStats are advisory statistics from a tile's companion .stx file.
type TileStats struct {
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64
}

// TileMeta describes an elevation tile as probed from its header, before
// any sample data is read.
type TileMeta struct {
	Bounds Bounds
	Width  int
	Height int
	// ProjectionUnknown is set when a projection companion exists but
	// could not be classified. Such tiles are used with a warning.
	ProjectionUnknown bool
	Stats             *TileStats
}

// An openTile is an open elevation source file.
type openTile interface {
	Meta() TileMeta
	ReadGrid() (*Grid, error)
	Close() error
}

var tileExtensions = map[string]bool{
	".dem":  true,
	".bil":  true,
	".tif":  true,
	".tiff": true,
}

func isTIFFPath(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".tif" || ext == ".tiff"
}

// probeTile reads a tile's dimensions and bounds without loading samples.
func probeTile(path string) (TileMeta, error) {
	if isTIFFPath(path) {
		return probeGeoTIFF(path)
	}
	return probeBIL(path)
}

// openTileFile opens a tile for sample reads.
func openTileFile(path string) (openTile, error) {
	if isTIFFPath(path) {
		return openGeoTIFFTile(path)
	}
	return openBILTile(path)
}

// companionPath replaces path's extension, preserving the directory and
// base name, e.g. gt30w020n90.dem -> gt30w020n90.hdr.
func companionPath(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}
