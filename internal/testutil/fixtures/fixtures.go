package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	domaingeo "github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// PointBuilder builds test time-series points.
type PointBuilder struct {
	t     *testing.T
	point timeseries.Point
}

// NewPointBuilder creates a builder with a plausible confident point.
func NewPointBuilder(t *testing.T) *PointBuilder {
	t.Helper()
	return &PointBuilder{
		t: t,
		point: timeseries.Point{
			ID:             uuid.New(),
			AreaID:         uuid.New(),
			Timestamp:      time.Now().UTC(),
			RawAreaHa:      0.5,
			SmoothedAreaHa: 0.5,
			MeanNDVI:       0.45,
			AnomalyScore:   2.5,
			Confidence:     0.8,
			CreatedAt:      time.Now().UTC(),
		},
	}
}

func (b *PointBuilder) WithArea(areaID uuid.UUID) *PointBuilder {
	b.point.AreaID = areaID
	return b
}

func (b *PointBuilder) WithTimestamp(at time.Time) *PointBuilder {
	b.point.Timestamp = at
	return b
}

func (b *PointBuilder) WithSmoothedArea(ha float64) *PointBuilder {
	b.point.RawAreaHa = ha
	b.point.SmoothedAreaHa = ha
	return b
}

func (b *PointBuilder) Advisory() *PointBuilder {
	b.point.Advisory = true
	return b
}

func (b *PointBuilder) Build() *timeseries.Point {
	p := b.point
	return &p
}

// EventBuilder builds violation lifecycle events.
type EventBuilder struct {
	t     *testing.T
	event violation.Event
}

// NewEventBuilder creates a builder for an open START event.
func NewEventBuilder(t *testing.T) *EventBuilder {
	t.Helper()
	return &EventBuilder{
		t: t,
		event: violation.Event{
			ID:         uuid.New(),
			AreaID:     uuid.New(),
			ZoneID:     uuid.New(),
			Kind:       violation.EventStart,
			DetectedAt: time.Now().UTC(),
			AreaHa:     0.3,
			Severity:   violation.SeverityMedium,
			Confidence: 0.8,
			CreatedAt:  time.Now().UTC(),
		},
	}
}

func (b *EventBuilder) WithArea(areaID uuid.UUID) *EventBuilder {
	b.event.AreaID = areaID
	return b
}

func (b *EventBuilder) WithZone(zoneID uuid.UUID) *EventBuilder {
	b.event.ZoneID = zoneID
	return b
}

func (b *EventBuilder) WithKind(kind violation.EventKind) *EventBuilder {
	b.event.Kind = kind
	if kind == violation.EventResolved {
		b.event.Resolved = true
		at := b.event.DetectedAt
		b.event.ResolvedAt = &at
	}
	return b
}

func (b *EventBuilder) WithAreaHa(ha float64) *EventBuilder {
	b.event.AreaHa = ha
	b.event.Severity = violation.DefaultSeverityBands().SeverityFor(ha)
	return b
}

func (b *EventBuilder) Build() *violation.Event {
	e := b.event
	return &e
}

// Mask builds an excavation mask whose footprint is one rectangle of the
// given size in meters, anchored at the origin.
func Mask(t *testing.T, areaID uuid.UUID, widthM, heightM float64) *domaingeo.ExcavationMask {
	t.Helper()

	poly := geom.NewPolygon(geom.XY)
	_, err := poly.SetCoords([][]geom.Coord{{
		{0, 0}, {widthM, 0}, {widthM, heightM}, {0, heightM}, {0, 0},
	}})
	require.NoError(t, err)

	mp := geom.NewMultiPolygon(geom.XY)
	require.NoError(t, mp.Push(poly))

	return &domaingeo.ExcavationMask{
		ID:            uuid.New(),
		AreaID:        areaID,
		Timestamp:     time.Now().UTC(),
		Geometry:      mp,
		TotalPixels:   100,
		FlaggedPixels: 1,
	}
}
