package geo

import (
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
)

// Boundary is a named legal or no-go polygon inside a monitored area. It is
// consumed read-only by the pipeline; boundary CRUD lives outside the core.
type Boundary struct {
	ID        uuid.UUID     `json:"id"`
	AreaID    uuid.UUID     `json:"area_id"`
	Name      string        `json:"name"`
	IsLegal   bool          `json:"is_legal"` // true: permitted concession, false: protected no-go zone
	Polygon   *geom.Polygon `json:"-"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NewBoundary validates and constructs a boundary.
func NewBoundary(areaID uuid.UUID, name string, isLegal bool, polygon *geom.Polygon) (*Boundary, error) {
	if areaID == uuid.Nil {
		return nil, errors.NewValidationError("INVALID_AREA_ID", "area ID cannot be nil")
	}
	if name == "" {
		return nil, errors.NewValidationError("INVALID_NAME", "boundary name cannot be empty")
	}

	b := &Boundary{
		ID:        uuid.New(),
		AreaID:    areaID,
		Name:      name,
		IsLegal:   isLegal,
		Polygon:   polygon,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := b.ValidateGeometry(); err != nil {
		return nil, err
	}
	return b, nil
}

// ValidateGeometry rejects malformed polygons: nil or empty geometry, open
// rings, degenerate rings, and self-intersecting shells. Geometry errors are
// scoped to this boundary so one bad polygon never aborts a whole run.
func (b *Boundary) ValidateGeometry() error {
	id := b.ID.String()

	if b.Polygon == nil || b.Polygon.NumLinearRings() == 0 {
		return errors.NewGeometryError(id, "boundary polygon is empty")
	}

	stride := b.Polygon.Stride()
	for r := 0; r < b.Polygon.NumLinearRings(); r++ {
		ring := b.Polygon.LinearRing(r).FlatCoords()
		n := len(ring) / stride
		if n < 4 {
			return errors.NewGeometryError(id, "polygon ring has fewer than four points")
		}
		if ring[0] != ring[(n-1)*stride] || ring[1] != ring[(n-1)*stride+1] {
			return errors.NewGeometryError(id, "polygon ring is not closed")
		}
		if ringSelfIntersects(ring, stride) {
			return errors.NewGeometryError(id, "polygon ring is self-intersecting")
		}
	}

	if b.Polygon.Area() == 0 {
		return errors.NewGeometryError(id, "polygon has zero area")
	}

	return nil
}

// Contains reports whether a point lies inside the boundary polygon,
// honoring interior rings as holes.
func (b *Boundary) Contains(x, y float64) bool {
	p := geom.Coord{x, y}
	layout := b.Polygon.Layout()

	if !xy.IsPointInRing(layout, p, b.Polygon.LinearRing(0).FlatCoords()) {
		return false
	}
	for r := 1; r < b.Polygon.NumLinearRings(); r++ {
		if xy.IsPointInRing(layout, p, b.Polygon.LinearRing(r).FlatCoords()) {
			return false
		}
	}
	return true
}

// ringSelfIntersects runs a pairwise segment test over one flat-coordinate
// ring. Adjacent segments sharing an endpoint are skipped.
func ringSelfIntersects(flat []float64, stride int) bool {
	n := len(flat)/stride - 1 // closing point repeats the first
	if n < 3 {
		return false
	}

	seg := func(i int) (x1, y1, x2, y2 float64) {
		return flat[i*stride], flat[i*stride+1], flat[(i+1)*stride], flat[(i+1)*stride+1]
	}

	for i := 0; i < n; i++ {
		for j := i + 2; j < n; j++ {
			// The first and last segments are adjacent on a closed ring.
			if i == 0 && j == n-1 {
				continue
			}
			ax1, ay1, ax2, ay2 := seg(i)
			bx1, by1, bx2, by2 := seg(j)
			if segmentsIntersect(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(ax1, ay1, ax2, ay2, bx1, by1, bx2, by2 float64) bool {
	d1 := cross(bx1, by1, bx2, by2, ax1, ay1)
	d2 := cross(bx1, by1, bx2, by2, ax2, ay2)
	d3 := cross(ax1, ay1, ax2, ay2, bx1, by1)
	d4 := cross(ax1, ay1, ax2, ay2, bx2, by2)

	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func cross(ox, oy, ax, ay, bx, by float64) float64 {
	return (ax-ox)*(by-oy) - (ay-oy)*(bx-ox)
}
