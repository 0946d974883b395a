package earlywarning

import (
	"math"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
)

// Degradation bands for shift severity, in NDVI units.
const (
	shiftHighDegradation   = 0.05
	shiftMediumDegradation = 0.02
	shiftLowDegradation    = 0.01
)

// detectSpectralShift looks for NDVI degradation across the window: a
// vegetation stress signal that often precedes excavation becoming large
// enough for the consensus mask. Degradation compares the minimum of the
// three newest scene means against the minimum of the three oldest.
func detectSpectralShift(points []*timeseries.Point) SpectralShift {
	if len(points) < 3 {
		return SpectralShift{Severity: ShiftNone, Sufficient: false}
	}

	ndvi := make([]float64, len(points))
	for i, p := range points {
		ndvi[i] = p.MeanNDVI
	}

	diffs := make([]float64, len(ndvi)-1)
	var sum float64
	for i := 1; i < len(ndvi); i++ {
		diffs[i-1] = ndvi[i] - ndvi[i-1]
		sum += diffs[i-1]
	}
	meanChange := sum / float64(len(diffs))

	var variance float64
	for _, d := range diffs {
		variance += (d - meanChange) * (d - meanChange)
	}
	stdChange := math.Sqrt(variance / float64(len(diffs)))

	// Periods dropping more than two deviations below the mean change
	// mark abrupt stress.
	threshold := meanChange - 2*stdChange
	anomalous := 0
	for _, d := range diffs {
		if d < threshold {
			anomalous++
		}
	}

	degradation := minOf(ndvi[:3]) - minOf(ndvi[len(ndvi)-3:])

	severity := ShiftNone
	switch {
	case degradation > shiftHighDegradation:
		severity = ShiftHigh
	case degradation > shiftMediumDegradation:
		severity = ShiftMedium
	case degradation > shiftLowDegradation:
		severity = ShiftLow
	}

	return SpectralShift{
		Severity:         severity,
		Degradation:      degradation,
		MeanChange:       meanChange,
		AnomalousPeriods: anomalous,
		Sufficient:       true,
	}
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
