package demstitch

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/alecthomas/assert/v2"
)

// writeTestTile synthesizes a 16-bit tile on disk with the given bounds
// and per-pixel values. Values are quantized to integers by the writer.
func writeTestTile(t *testing.T, dir, name string, b Bounds, width, height int, sample func(x, y int) float32) string {
	t.Helper()
	grid := NewGrid(width, height)
	for y := range height {
		for x := range width {
			grid.Set(x, y, sample(x, y))
		}
	}
	path := filepath.Join(dir, name)
	assert.NoError(t, WriteDEM(path, grid, b))
	return path
}

func flatTile(v float32) func(x, y int) float32 {
	return func(x, y int) float32 {
		return v
	}
}

func TestCatalogDiscovery(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "n40w010.dem", Bounds{West: -10, North: 50, East: 0, South: 40}, 120, 120, flatTile(100))
	writeTestTile(t, dir, "n40e000.dem", Bounds{West: 0, North: 50, East: 10, South: 40}, 120, 120, flatTile(200))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a tile"), 0o644))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)
	assert.Equal(t, 2, catalog.Len())

	tiles := catalog.Tiles()
	assert.Equal(t, "n40e000", tiles[0].Name)
	assert.Equal(t, "n40w010", tiles[1].Name)
	assert.Equal(t, 120, tiles[0].Width)
	assert.Equal(t, 12.0, tiles[0].PixelsPerDegree)

	bounds, ok := catalog.Bounds()
	assert.True(t, ok)
	assert.Equal(t, Bounds{West: -10, North: 50, East: 10, South: 40}, bounds)
}

func TestCatalogRejectsProjected(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "good.dem", Bounds{West: 0, North: 10, East: 10, South: 0}, 60, 60, flatTile(1))
	writeTestTile(t, dir, "projected.dem", Bounds{West: 0, North: 10, East: 10, South: 0}, 60, 60, flatTile(1))
	wkt := `PROJCS["WGS 84 / UTM zone 30N",GEOGCS["WGS 84"]]`
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "projected.prj"), []byte(wkt), 0o644))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())
	assert.Equal(t, "good", catalog.Tiles()[0].Name)
}

func TestCatalogSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "good.dem", Bounds{West: 0, North: 10, East: 10, South: 0}, 60, 60, flatTile(1))
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "broken.dem"), []byte("no header companion"), 0o644))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())
}

func TestCatalogQuery(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "west.dem", Bounds{West: -10, North: 10, East: 0, South: 0}, 60, 60, flatTile(1))
	writeTestTile(t, dir, "east.dem", Bounds{West: 0, North: 10, East: 10, South: 0}, 60, 60, flatTile(2))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)

	hits := catalog.Query(Bounds{West: -5, North: 8, East: 5, South: 2})
	assert.Equal(t, 2, len(hits))
	for _, hit := range hits {
		assert.Equal(t, 0.0, hit.Shift)
	}

	hits = catalog.Query(Bounds{West: -9, North: 8, East: -1, South: 2})
	assert.Equal(t, 1, len(hits))
	assert.Equal(t, "west", hits[0].Tile.Name)

	assert.Equal(t, 0, len(catalog.Query(Bounds{West: 50, North: 8, East: 60, South: 2})))
}

func TestCatalogQueryShifted(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "w180.dem", Bounds{West: 170, North: 10, East: 180, South: 0}, 60, 60, flatTile(1))
	writeTestTile(t, dir, "e180.dem", Bounds{West: -180, North: 10, East: -170, South: 0}, 60, 60, flatTile(2))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)

	// Raw-east crossing rectangle: the tile east of the antimeridian is
	// found through a +360 shift.
	hits := catalog.Query(Bounds{West: 175, North: 8, East: 185, South: 2})
	assert.Equal(t, 2, len(hits))
	shifts := map[string]float64{}
	for _, hit := range hits {
		shifts[hit.Tile.Name] = hit.Shift
	}
	assert.Equal(t, 0.0, shifts["w180"])
	assert.Equal(t, 360.0, shifts["e180"])

	// The same region expressed with a raw west edge below -180 finds the
	// western tile through a -360 shift.
	hits = catalog.Query(Bounds{West: -185, North: 8, East: -175, South: 2})
	shifts = map[string]float64{}
	for _, hit := range hits {
		shifts[hit.Tile.Name] = hit.Shift
	}
	assert.Equal(t, 2, len(hits))
	assert.Equal(t, -360.0, shifts["w180"])
	assert.Equal(t, 0.0, shifts["e180"])
}

func TestCatalogQueryDeduplicates(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "e180.dem", Bounds{West: -180, North: 10, East: -170, South: 0}, 60, 60, flatTile(1))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)

	// The rectangle covers the tile both directly and through its +360
	// shifted copy; only the unshifted hit survives.
	hits := catalog.Query(Bounds{West: -180, North: 8, East: 185, South: 2})
	assert.Equal(t, 1, len(hits))
	assert.Equal(t, 0.0, hits[0].Shift)
}

func TestCatalogStats(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "tile.dem", Bounds{West: 0, North: 10, East: 10, South: 0}, 60, 60, flatTile(7))
	stx := "1 7 7 7.0 0.0\n"
	assert.NoError(t, os.WriteFile(filepath.Join(dir, "tile.stx"), []byte(stx), 0o644))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)
	tile := catalog.Tiles()[0]
	assert.NotZero(t, tile.Stats)
	assert.Equal(t, 7.0, tile.Stats.Min)
	assert.Equal(t, 7.0, tile.Stats.Max)
}

func TestTileSnappedBounds(t *testing.T) {
	dir := t.TempDir()
	writeTestTile(t, dir, "tile.dem", Bounds{West: -180 + 1e-12, North: 10, East: -170, South: 0}, 60, 60, flatTile(1))

	catalog, err := NewCatalog(dir)
	assert.NoError(t, err)
	tile := catalog.Tiles()[0]
	assert.True(t, tile.Bounds.West == -180, "got west %v", tile.Bounds.West)
	assert.True(t, !math.Signbit(tile.Bounds.South) || tile.Bounds.South == 0)
}
