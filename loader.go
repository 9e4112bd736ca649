package demstitch

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/maypok86/otter/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	gridRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_grid_requests_total",
		Help: "The total number of tile grid requests",
	})
	gridLoads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_grid_loads_total",
		Help: "The total number of tile grids decoded from disk",
	})
	openTileEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demstitch_open_tile_evictions_total",
		Help: "The total number of open tiles evicted and closed",
	})
)

// A Loader reads tile sample grids with caching: decoded grids are kept in
// a loading cache, and open file handles are kept in an LRU that closes
// them on eviction.
type Loader struct {
	mutex         sync.Mutex
	openTileCount int
	gridCount     int
	open          *lru.Cache[string, openTile]
	grids         *otter.Cache[string, *Grid]
}

// A LoaderOption sets an option on a Loader.
type LoaderOption func(*Loader)

func WithOpenTileCacheSize(openTileCount int) LoaderOption {
	return func(l *Loader) {
		l.openTileCount = openTileCount
	}
}

func WithGridCacheSize(gridCount int) LoaderOption {
	return func(l *Loader) {
		l.gridCount = gridCount
	}
}

// NewLoader returns a new Loader with the given options.
func NewLoader(options ...LoaderOption) (*Loader, error) {
	l := &Loader{
		openTileCount: 32,
		gridCount:     8,
	}
	for _, option := range options {
		option(l)
	}

	var err error
	l.open, err = lru.NewWithEvict(l.openTileCount, func(key string, value openTile) {
		openTileEvictions.Inc()
		_ = value.Close()
	})
	if err != nil {
		return nil, err
	}
	l.grids, err = otter.New(&otter.Options[string, *Grid]{
		MaximumSize: l.gridCount,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Grid returns the full decoded sample grid of the tile at path. Callers
// must not mutate the returned grid: it is shared through the cache.
func (l *Loader) Grid(ctx context.Context, path string) (*Grid, error) {
	gridRequests.Inc()
	return l.grids.Get(ctx, path, otter.LoaderFunc[string, *Grid](l.loadGrid))
}

func (l *Loader) loadGrid(ctx context.Context, path string) (*Grid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	gridLoads.Inc()
	tile, err := l.openTile(path)
	if err != nil {
		return nil, err
	}
	return tile.ReadGrid()
}

func (l *Loader) openTile(path string) (openTile, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if tile, ok := l.open.Get(path); ok {
		return tile, nil
	}
	tile, err := openTileFile(path)
	if err != nil {
		return nil, err
	}
	l.open.Add(path, tile)
	return tile, nil
}

// Close closes all open tiles.
func (l *Loader) Close() {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.open.Purge()
}
