package timeseries

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Point is one row of an area's excavation time series. Points are
// append-only: corrections arrive as new points, never as edits.
type Point struct {
	ID             uuid.UUID `json:"id"`
	AreaID         uuid.UUID `json:"area_id"`
	MaskID         uuid.UUID `json:"mask_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	RawAreaHa      float64   `json:"raw_area_ha"`
	SmoothedAreaHa float64   `json:"smoothed_area_ha"`
	RateHaPerDay   float64   `json:"rate_ha_per_day"`
	MeanNDVI       float64   `json:"mean_ndvi"`
	AnomalyScore   float64   `json:"anomaly_score"`
	Confidence     float64   `json:"confidence"`
	Advisory       bool      `json:"advisory"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewPoint validates and constructs a time-series point.
func NewPoint(areaID uuid.UUID, timestamp time.Time, rawAreaHa, anomalyScore, confidence float64) (*Point, error) {
	if areaID == uuid.Nil {
		return nil, fmt.Errorf("area ID cannot be nil")
	}
	if timestamp.IsZero() {
		return nil, fmt.Errorf("timestamp cannot be zero")
	}
	if rawAreaHa < 0 {
		return nil, fmt.Errorf("raw area cannot be negative, got %f", rawAreaHa)
	}
	if anomalyScore < 0 {
		return nil, fmt.Errorf("anomaly score cannot be negative, got %f", anomalyScore)
	}
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0,1], got %f", confidence)
	}

	return &Point{
		ID:             uuid.New(),
		AreaID:         areaID,
		Timestamp:      timestamp,
		RawAreaHa:      rawAreaHa,
		SmoothedAreaHa: rawAreaHa,
		AnomalyScore:   anomalyScore,
		Confidence:     confidence,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Rate computes the excavation rate in ha/day between a previous and the
// current point, from the smoothed areas and elapsed time. Negative deltas
// (from re-vegetation or a correcting read) stay in the series but are not
// reported as a negative excavation rate, so the result is clamped to >= 0.
func Rate(prev, cur *Point) float64 {
	if prev == nil || cur == nil {
		return 0
	}
	days := cur.Timestamp.Sub(prev.Timestamp).Hours() / 24
	if days <= 0 {
		return 0
	}
	rate := (cur.SmoothedAreaHa - prev.SmoothedAreaHa) / days
	if rate < 0 {
		return 0
	}
	return rate
}
