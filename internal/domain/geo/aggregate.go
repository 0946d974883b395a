package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom"
	"golang.org/x/sync/errgroup"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/detection"
)

// Transform georeferences a pixel grid: pixel (col, row) maps to the ground
// coordinates of its center in a projected meters CRS shared with the
// boundary polygons.
type Transform struct {
	OriginX     float64 `json:"origin_x"` // ground X of the grid's upper-left corner
	OriginY     float64 `json:"origin_y"` // ground Y of the grid's upper-left corner
	ResolutionM float64 `json:"resolution_m"`
}

// PixelCenter returns the ground coordinates of a pixel's center.
func (t Transform) PixelCenter(col, row int) (x, y float64) {
	x = t.OriginX + (float64(col)+0.5)*t.ResolutionM
	y = t.OriginY - (float64(row)+0.5)*t.ResolutionM
	return x, y
}

// BoundaryArea is the excavated area attributed to one boundary.
type BoundaryArea struct {
	BoundaryID uuid.UUID `json:"boundary_id"`
	Name       string    `json:"name"`
	IsLegal    bool      `json:"is_legal"`
	AreaHa     float64   `json:"area_ha"`
	PixelCount int       `json:"pixel_count"`
	// Err is set when this boundary's polygon was rejected; the other
	// boundaries of the run are unaffected. ErrorMessage carries the
	// reason into serialized run results.
	Err          error  `json:"-"`
	ErrorMessage string `json:"error,omitempty"`
}

// Aggregation converts a consensus mask into ground areas.
type Aggregation struct {
	TotalAreaHa float64        `json:"total_area_ha"`
	PixelCount  int            `json:"pixel_count"`
	Boundaries  []BoundaryArea `json:"boundaries"`
}

// LegalAreaHa sums area attributed to legal concession boundaries.
func (a *Aggregation) LegalAreaHa() float64 {
	var sum float64
	for _, b := range a.Boundaries {
		if b.Err == nil && b.IsLegal {
			sum += b.AreaHa
		}
	}
	return sum
}

// NoGoArea returns the area attributed to one no-go zone, or 0.
func (a *Aggregation) NoGoArea(zoneID uuid.UUID) float64 {
	for _, b := range a.Boundaries {
		if b.BoundaryID == zoneID && b.Err == nil {
			return b.AreaHa
		}
	}
	return 0
}

// Aggregate converts the consensus pixel mask into hectares, in total and
// per boundary. Pixel-to-area conversion is count x resolution^2 / 10,000.
// Per-boundary attribution intersects each flagged pixel's center with the
// boundary polygon; overlapping no-go zones are computed independently, never
// deduplicated across zones. Boundaries run concurrently since the mask and
// polygons are immutable.
func Aggregate(ctx context.Context, mask *detection.Mask, tr Transform, boundaries []*Boundary) (*Aggregation, error) {
	if mask == nil {
		return nil, fmt.Errorf("mask cannot be nil")
	}
	if tr.ResolutionM <= 0 {
		return nil, fmt.Errorf("transform resolution must be positive, got %f", tr.ResolutionM)
	}

	pixelAreaHa := tr.ResolutionM * tr.ResolutionM / 10_000
	count := mask.Count()

	agg := &Aggregation{
		TotalAreaHa: float64(count) * pixelAreaHa,
		PixelCount:  count,
		Boundaries:  make([]BoundaryArea, len(boundaries)),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, boundary := range boundaries {
		i, boundary := i, boundary
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			agg.Boundaries[i] = intersectBoundary(mask, tr, boundary, pixelAreaHa)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return agg, nil
}

func intersectBoundary(mask *detection.Mask, tr Transform, boundary *Boundary, pixelAreaHa float64) BoundaryArea {
	ba := BoundaryArea{
		BoundaryID: boundary.ID,
		Name:       boundary.Name,
		IsLegal:    boundary.IsLegal,
	}

	if err := boundary.ValidateGeometry(); err != nil {
		ba.Err = err
		ba.ErrorMessage = err.Error()
		return ba
	}

	for row := 0; row < mask.Height; row++ {
		for col := 0; col < mask.Width; col++ {
			if !mask.IsSet(row*mask.Width + col) {
				continue
			}
			x, y := tr.PixelCenter(col, row)
			if boundary.Contains(x, y) {
				ba.PixelCount++
			}
		}
	}

	ba.AreaHa = float64(ba.PixelCount) * pixelAreaHa
	return ba
}

// ExcavationMask is the geometric artifact of one run: the consensus-flagged
// region as a polygon/pixel-count pair. Immutable and owned by the run.
type ExcavationMask struct {
	ID            uuid.UUID          `json:"id"`
	AreaID        uuid.UUID          `json:"area_id"`
	Timestamp     time.Time          `json:"timestamp"`
	Geometry      *geom.MultiPolygon `json:"-"`
	TotalPixels   int                `json:"total_pixels"`
	FlaggedPixels int                `json:"flagged_pixels"`
	CreatedAt     time.Time          `json:"created_at"`
}

// NewExcavationMask vectorizes a consensus mask into a MultiPolygon of
// pixel-run rectangles. Horizontal runs of flagged pixels collapse into one
// rectangle each; exact cell union is not needed for audit purposes.
func NewExcavationMask(areaID uuid.UUID, timestamp time.Time, mask *detection.Mask, tr Transform) *ExcavationMask {
	mp := geom.NewMultiPolygon(geom.XY)

	for row := 0; row < mask.Height; row++ {
		col := 0
		for col < mask.Width {
			if !mask.IsSet(row*mask.Width + col) {
				col++
				continue
			}
			start := col
			for col < mask.Width && mask.IsSet(row*mask.Width+col) {
				col++
			}

			x0 := tr.OriginX + float64(start)*tr.ResolutionM
			x1 := tr.OriginX + float64(col)*tr.ResolutionM
			y0 := tr.OriginY - float64(row)*tr.ResolutionM
			y1 := tr.OriginY - float64(row+1)*tr.ResolutionM

			rect := geom.NewPolygon(geom.XY)
			rect.MustSetCoords([][]geom.Coord{{
				{x0, y0}, {x1, y0}, {x1, y1}, {x0, y1}, {x0, y0},
			}})
			if err := mp.Push(rect); err != nil {
				// Pushing an XY polygon onto an XY multipolygon cannot
				// fail; skip the run if it somehow does.
				continue
			}
		}
	}

	return &ExcavationMask{
		ID:            uuid.New(),
		AreaID:        areaID,
		Timestamp:     timestamp,
		Geometry:      mp,
		TotalPixels:   mask.Len(),
		FlaggedPixels: mask.Count(),
		CreatedAt:     time.Now().UTC(),
	}
}
