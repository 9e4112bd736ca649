package demstitch

import (
	"testing"

	"github.com/alecthomas/assert/v2"
)

func TestNormalizeLongitude(t *testing.T) {
	assert.Equal(t, 0.0, NormalizeLongitude(0))
	assert.Equal(t, -170.0, NormalizeLongitude(190))
	assert.Equal(t, 170.0, NormalizeLongitude(-190))
	assert.Equal(t, -180.0, NormalizeLongitude(180))
	assert.Equal(t, -180.0, NormalizeLongitude(-180))
	assert.Equal(t, 5.0, NormalizeLongitude(365))
	assert.Equal(t, -5.0, NormalizeLongitude(-365))
}

func TestSpan(t *testing.T) {
	for _, tc := range []struct {
		name       string
		west       float64
		east       float64
		width      float64
		crosses    bool
		twoRegions bool
	}{
		{name: "simple", west: 10, east: 20, width: 10},
		{name: "prime_meridian", west: -10, east: 10, width: 20},
		{name: "crossing_normalized", west: 170, east: -170, width: 20, crosses: true, twoRegions: true},
		{name: "crossing_raw_east", west: 170, east: 190, width: 20, crosses: true, twoRegions: true},
		{name: "crossing_raw_west", west: -190, east: -170, width: 20, crosses: true, twoRegions: true},
		{name: "crossing_wide", west: 160, east: -160, width: 40, crosses: true, twoRegions: true},
		{name: "crossing_narrow", west: 179.5, east: -179.5, width: 1, crosses: true, twoRegions: true},
		{name: "full_world", west: -180, east: 180, width: 360, crosses: true},
		{name: "half_world_to_180", west: 0, east: 180, width: 180},
		{name: "ending_at_180", west: 160, east: 180, width: 20},
	} {
		t.Run(tc.name, func(t *testing.T) {
			span := Span(tc.west, tc.east)
			assert.Equal(t, tc.width, span.Width)
			assert.Equal(t, tc.crosses, span.Crosses)
			assert.Equal(t, tc.twoRegions, span.TwoRegions)
		})
	}
}

func TestSpanEquivalentForms(t *testing.T) {
	// The same crossing request in normalized and raw form must produce
	// identical spans.
	normalized := Span(170, -170)
	raw := Span(170, 190)
	assert.Equal(t, normalized, raw)
}

func TestColumnCrossing(t *testing.T) {
	span := Span(170, -170)
	const width = 200
	for _, tc := range []struct {
		lon    float64
		column int
	}{
		{lon: 170, column: 0},
		{lon: 175, column: 50},
		{lon: 180, column: 100},
		{lon: -180, column: 100},
		{lon: -175, column: 150},
		{lon: -170, column: 200},
	} {
		assert.Equal(t, tc.column, span.Column(tc.lon, width), "lon=%g", tc.lon)
	}
}

func TestColumnFullWorld(t *testing.T) {
	span := Span(-180, 180)
	assert.Equal(t, 0, span.Column(-180, 360))
	assert.Equal(t, 180, span.Column(0, 360))
	assert.Equal(t, 360, span.Column(180, 360))
}

func TestColumnNonCrossing(t *testing.T) {
	span := Span(0, 180)
	assert.Equal(t, 0, span.Column(0, 180))
	assert.Equal(t, 90, span.Column(90, 180))
	assert.Equal(t, 180, span.Column(180, 180))
}

func TestColumnEdges(t *testing.T) {
	// The western edge always maps to column 0 and the eastern edge to
	// the full width, whatever form the span was given in.
	for _, tc := range []struct {
		west float64
		east float64
	}{
		{west: 10, east: 20},
		{west: -120, east: -60},
		{west: 170, east: -170},
		{west: 150, east: 210},
	} {
		span := Span(tc.west, tc.east)
		assert.Equal(t, 0, span.Column(tc.west, 100), "west=%g east=%g", tc.west, tc.east)
		assert.Equal(t, 100, span.Column(tc.east, 100), "west=%g east=%g", tc.west, tc.east)
	}
}
