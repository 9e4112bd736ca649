package demstitch

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tilesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_tiles_discovered_total",
		Help: "The total number of tiles discovered during catalog scans",
	})
	tilesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_tiles_skipped_total",
		Help: "The total number of candidate files skipped as unreadable during catalog scans",
	})
	tilesRejectedProjected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_tiles_rejected_projected_total",
		Help: "The total number of tiles rejected for declaring a projected coordinate system",
	})
	catalogQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_catalog_queries_total",
		Help: "The total number of catalog spatial queries",
	})
	shiftedQueryHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_shifted_query_hits_total",
		Help: "The total number of tiles found only after an antimeridian longitude shift",
	})
)

// A Tile describes one elevation source file, probed once at catalog build
// time and immutable thereafter.
type Tile struct {
	Name            string
	Path            string
	Bounds          Bounds
	Width           int
	Height          int
	PixelsPerDegree float64
	Stats           *TileStats
}

// A Catalog maps tile names to tile descriptors for one database
// directory. It is an explicit value: every operation that needs tiles
// takes a Catalog, there is no process-wide instance.
type Catalog struct {
	dir    string
	logger *slog.Logger
	tiles  map[string]*Tile
	names  []string // sorted, for deterministic iteration
	bounds Bounds
}

// A CatalogOption sets an option on a Catalog.
type CatalogOption func(*Catalog)

func WithCatalogLogger(logger *slog.Logger) CatalogOption {
	return func(c *Catalog) {
		c.logger = logger
	}
}

// NewCatalog scans dir for elevation tiles and returns a catalog of the
// ones that probe successfully. Unreadable files are skipped with a
// warning; tiles declaring a projected coordinate system are rejected. A
// directory with no usable tiles yields an empty, queryable catalog.
func NewCatalog(dir string, options ...CatalogOption) (*Catalog, error) {
	c := &Catalog{
		dir:    dir,
		logger: slog.Default(),
		tiles:  make(map[string]*Tile),
	}
	for _, option := range options {
		option(c)
	}
	if err := c.Rescan(); err != nil {
		return nil, err
	}
	return c, nil
}

// Rescan rebuilds the catalog from the directory contents. Existing
// descriptors are discarded.
func (c *Catalog) Rescan() error {
	clear(c.tiles)
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !tileExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		c.addTile(path)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning %s: %w", c.dir, err)
	}
	c.names = make([]string, 0, len(c.tiles))
	for name := range c.tiles {
		c.names = append(c.names, name)
	}
	sort.Strings(c.names)
	c.computeBounds()
	c.logger.Info("catalog scan complete", "dir", c.dir, "tiles", len(c.tiles))
	return nil
}

func (c *Catalog) addTile(path string) {
	meta, err := probeTile(path)
	switch {
	case errors.Is(err, ErrProjectedCRS):
		tilesRejectedProjected.Inc()
		c.logger.Warn("rejecting tile with projected coordinate system", "path", path, "err", err)
		return
	case err != nil:
		tilesSkipped.Inc()
		c.logger.Warn("skipping unreadable tile", "path", path, "err", err)
		return
	}
	if meta.ProjectionUnknown {
		c.logger.Warn("tile projection could not be classified, using tile anyway", "path", path)
	}

	widthDeg := meta.Bounds.East - meta.Bounds.West
	heightDeg := meta.Bounds.Height()
	if widthDeg <= 0 || heightDeg <= 0 {
		tilesSkipped.Inc()
		c.logger.Warn("skipping tile with degenerate bounds", "path", path)
		return
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	c.tiles[name] = &Tile{
		Name:            name,
		Path:            path,
		Bounds:          meta.Bounds,
		Width:           meta.Width,
		Height:          meta.Height,
		PixelsPerDegree: (float64(meta.Width)/widthDeg + float64(meta.Height)/heightDeg) / 2,
		Stats:           meta.Stats,
	}
	tilesDiscovered.Inc()
}

func (c *Catalog) computeBounds() {
	c.bounds = Bounds{}
	first := true
	for _, tile := range c.tiles {
		if first {
			c.bounds = tile.Bounds
			first = false
			continue
		}
		c.bounds.West = min(c.bounds.West, tile.Bounds.West)
		c.bounds.East = max(c.bounds.East, tile.Bounds.East)
		c.bounds.North = max(c.bounds.North, tile.Bounds.North)
		c.bounds.South = min(c.bounds.South, tile.Bounds.South)
	}
}

// Len returns the number of tiles in the catalog.
func (c *Catalog) Len() int {
	return len(c.tiles)
}

// Tiles returns the tile descriptors in name order.
func (c *Catalog) Tiles() []*Tile {
	tiles := make([]*Tile, len(c.names))
	for i, name := range c.names {
		tiles[i] = c.tiles[name]
	}
	return tiles
}

// Bounds returns the union of all tile bounds. The second return is false
// for an empty catalog.
func (c *Catalog) Bounds() (Bounds, bool) {
	return c.bounds, len(c.tiles) > 0
}

// A QueryHit is a tile matching a spatial query, with the longitude shift
// under which it matched. A non-zero shift means the tile lies on the far
// side of the antimeridian: its bounds must be shifted by Shift degrees
// before intersecting with the query rectangle, and intersection
// longitudes shifted back by the same amount before indexing into the
// tile's pixels.
type QueryHit struct {
	Tile  *Tile
	Shift float64
}

// queryShifts is the uniform set of longitude offsets under which tiles
// are tested against a query rectangle.
var queryShifts = [...]float64{0, 360, -360}

// Query returns the tiles whose bounds intersect b, including tiles that
// intersect only after a ±360 degree longitude shift when b extends past
// ±180. Duplicates are removed by tile name, keeping the unshifted match.
func (c *Catalog) Query(b Bounds) []QueryHit {
	catalogQueries.Inc()
	seen := make(map[string]bool)
	var hits []QueryHit
	for _, shift := range queryShifts {
		// Shifted copies can only intersect a rectangle that extends
		// past the antimeridian.
		if shift > 0 && b.East <= 180 {
			continue
		}
		if shift < 0 && b.West >= -180 {
			continue
		}
		for _, name := range c.names {
			if seen[name] {
				continue
			}
			tile := c.tiles[name]
			if tile.Bounds.shiftLon(shift).overlaps(b) {
				hits = append(hits, QueryHit{Tile: tile, Shift: shift})
				seen[name] = true
				if shift != 0 {
					shiftedQueryHits.Inc()
				}
			}
		}
	}
	return hits
}
