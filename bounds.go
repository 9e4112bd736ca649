package demstitch

import (
	"fmt"
	"math"
)

// Longitudes outside [-180, 180] are accepted up to this extended range so
// that antimeridian-crossing requests can be expressed without wrapping.
const maxExtendedLongitude = 540.0

// Bounds is a geographic rectangle in decimal degrees. Longitudes are not
// pre-normalized: east > 180 or west < -180 signals an intended
// antimeridian crossing.
type Bounds struct {
	West  float64
	North float64
	East  float64
	South float64
}

// Validate reports whether b is a usable assembly target. Latitudes must
// satisfy -90 <= south < north <= 90 and the eastward longitude span must
// be non-empty and at most 360 degrees.
func (b Bounds) Validate() error {
	if math.Abs(b.West) > maxExtendedLongitude || math.Abs(b.East) > maxExtendedLongitude {
		return fmt.Errorf("%w: longitude outside extended range ±%g", ErrInvalidBounds, maxExtendedLongitude)
	}
	if b.North > 90 || b.South < -90 || b.North <= b.South {
		return fmt.Errorf("%w: latitude range %g..%g", ErrInvalidBounds, b.South, b.North)
	}
	span := Span(b.West, b.East)
	if span.Width <= 0 {
		return ErrEmptySpan
	}
	if span.Width > 360 {
		return ErrSpanTooWide
	}
	return nil
}

// Height returns the north-south extent in degrees.
func (b Bounds) Height() float64 {
	return b.North - b.South
}

// shiftLon returns b translated by delta degrees of longitude.
func (b Bounds) shiftLon(delta float64) Bounds {
	b.West += delta
	b.East += delta
	return b
}

// overlaps reports whether b and o intersect with non-zero area. Both are
// interpreted as plain rectangles; meridian crossing is handled by the
// caller via shiftLon.
func (b Bounds) overlaps(o Bounds) bool {
	return b.West < o.East && b.East > o.West && b.South < o.North && b.North > o.South
}

// snapBounds cleans up floating-point noise in bounds probed from tile
// headers, snapping values close to 0, ±90 and ±180 and rounding to 1e-6
// degrees so that catalog bounds are stable.
func snapBounds(b Bounds) Bounds {
	return Bounds{
		West:  snapDegrees(b.West),
		North: snapDegrees(b.North),
		East:  snapDegrees(b.East),
		South: snapDegrees(b.South),
	}
}

func snapDegrees(v float64) float64 {
	const tolerance = 1e-10
	for _, anchor := range [...]float64{0, 90, -90, 180, -180} {
		if math.Abs(v-anchor) < tolerance {
			return anchor
		}
	}
	return math.Round(v*1e6) / 1e6
}
