package earlywarning

import (
	"math"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
)

const (
	// DefaultBufferDistanceM is how far outside a no-go zone excavation
	// still counts as encroaching.
	DefaultBufferDistanceM = 500.0

	// DefaultCriticalDistanceM marks imminent encroachment.
	DefaultCriticalDistanceM = 100.0
)

// analyzeProximity measures how much of the latest excavation footprint
// sits within the buffer and critical distances of any no-go zone. Pixel
// centers are recovered from the vectorized mask: each polygon in the mask
// geometry is a single-row run of pixels whose height is the ground
// resolution.
func analyzeProximity(mask *geo.ExcavationMask, zones []*geo.Boundary, bufferM, criticalM float64) Proximity {
	prox := Proximity{
		BufferDistanceM: bufferM,
		ZoneCount:       len(zones),
	}
	if mask == nil || mask.Geometry == nil || mask.FlaggedPixels == 0 || len(zones) == 0 {
		return prox
	}

	for i := 0; i < mask.Geometry.NumPolygons(); i++ {
		run := mask.Geometry.Polygon(i)
		bounds := run.Bounds()
		res := bounds.Max(1) - bounds.Min(1)
		if res <= 0 {
			continue
		}
		cy := bounds.Min(1) + res/2
		for cx := bounds.Min(0) + res/2; cx < bounds.Max(0); cx += res {
			d := distanceToZones(cx, cy, zones)
			if d <= bufferM {
				prox.PixelsInBuffer++
			}
			if d <= criticalM {
				prox.PixelsInCritical++
			}
		}
	}

	prox.BufferCoverage = float64(prox.PixelsInBuffer) / float64(mask.FlaggedPixels)
	return prox
}

// distanceToZones returns the distance from a point to the nearest no-go
// zone, 0 when the point is inside one.
func distanceToZones(x, y float64, zones []*geo.Boundary) float64 {
	min := math.Inf(1)
	for _, z := range zones {
		if z.Polygon == nil {
			continue
		}
		if z.Contains(x, y) {
			return 0
		}
		if d := distanceToPolygon(x, y, z); d < min {
			min = d
		}
	}
	return min
}

func distanceToPolygon(x, y float64, b *geo.Boundary) float64 {
	min := math.Inf(1)
	flat := b.Polygon.FlatCoords()
	stride := b.Polygon.Stride()
	ends := b.Polygon.Ends()

	start := 0
	for _, end := range ends {
		for i := start; i+stride < end; i += stride {
			d := pointToSegment(x, y,
				flat[i], flat[i+1],
				flat[i+stride], flat[i+stride+1])
			if d < min {
				min = d
			}
		}
		start = end
	}
	return min
}

func pointToSegment(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
