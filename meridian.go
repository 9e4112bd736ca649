package demstitch

import "math"

// Tolerance for recognizing the full-world and 180°-terminated spans that
// must bypass the normalize-then-compare logic.
const spanEdgeTolerance = 0.01

// NormalizeLongitude maps lon into [-180, 180). Exactly 180 folds to -180;
// full-world spans are recognized by Span before normalization so the two
// remain distinguishable.
func NormalizeLongitude(lon float64) float64 {
	for lon > 180 {
		lon -= 360
	}
	for lon <= -180 {
		lon += 360
	}
	if math.Abs(lon-180) < 1e-10 {
		lon = -180
	}
	return lon
}

// A LongitudeSpan is a west-to-east interval that may cross the
// antimeridian. Width is the shortest eastward distance from west to east.
// When Crosses is set and TwoRegions is set the span covers
// [West1, East1=180] and [West2=-180, East2]; the full-world span crosses
// but is a single region.
type LongitudeSpan struct {
	Width      float64
	Crosses    bool
	TwoRegions bool
	West1      float64
	East1      float64
	West2      float64
	East2      float64
}

// Span computes the longitude span from west eastward to east. Crossing
// detection happens on the original inputs: normalization is lossy with
// respect to directionality, so a request expressed as (170, -170) and one
// expressed as (170, 190) must produce the same span.
func Span(west, east float64) LongitudeSpan {
	// Full world. Must be recognized before normalization folds east to
	// -180 and collapses the span to zero width.
	if math.Abs(west+180) < spanEdgeTolerance && math.Abs(east-180) < spanEdgeTolerance {
		return LongitudeSpan{Width: 360, Crosses: true, West1: -180, East1: 180}
	}
	// Half-world spans ending exactly at 180 do not cross, but the generic
	// path would normalize 180 to -180 and misread them.
	if math.Abs(east-180) < spanEdgeTolerance && west >= -180 && west <= 180 {
		if w := east - west; w > 0 && w <= 180 {
			return LongitudeSpan{Width: w, West1: west, East1: east}
		}
	}

	crossing := east > 180 || west < -180
	w := NormalizeLongitude(west)
	e := NormalizeLongitude(east)
	if w > e {
		crossing = true
	}
	if !crossing {
		return LongitudeSpan{Width: e - w, West1: w, East1: e}
	}
	return LongitudeSpan{
		Width:      (180 - w) + (e + 180),
		Crosses:    true,
		TwoRegions: true,
		West1:      w,
		East1:      180,
		West2:      -180,
		East2:      e,
	}
}

// Column maps lon to a pixel column in an output raster of the given width
// covering s. West1 maps to 0 and the eastern edge maps to width.
func (s LongitudeSpan) Column(lon float64, width int) int {
	if s.Crosses && !s.TwoRegions {
		// Full world: direct linear mapping. Routing this through the
		// generic crossing formula would fold 180 onto -180.
		if lon > 180 {
			lon -= 360
		} else if lon < -180 {
			lon += 360
		}
		return int((lon + 180) / 360 * float64(width))
	}
	if !s.Crosses {
		if s.East1 == 180 && math.Abs(lon-180) < 1e-9 {
			return width
		}
		lon = NormalizeLongitude(lon)
		if s.East1 == s.West1 {
			return 0
		}
		return int((lon - s.West1) / (s.East1 - s.West1) * float64(width))
	}
	lon = NormalizeLongitude(lon)
	var rel float64
	if lon >= s.West1 {
		// Western region [West1, 180].
		rel = (lon - s.West1) / s.Width
	} else {
		// Eastern region [-180, East2].
		rel = ((180 - s.West1) + (lon + 180)) / s.Width
	}
	return int(rel * float64(width))
}
