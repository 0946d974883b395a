package earlywarning

import (
	"math"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
)

// stableSlopeHaPerDay is the band around zero inside which the series is
// considered flat.
const stableSlopeHaPerDay = 0.001

// analyzeTrend fits a least-squares line through the smoothed area series,
// with time in days since the first point. R-squared reports how well the
// line explains the series; a noisy flat series scores near zero.
func analyzeTrend(points []*timeseries.Point) TrendAnalysis {
	if len(points) < 3 {
		return TrendAnalysis{Trend: TrendStable, Sufficient: false}
	}

	t0 := points[0].Timestamp
	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.Timestamp.Sub(t0).Hours() / 24
		ys[i] = p.SmoothedAreaHa
	}

	n := float64(len(points))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return TrendAnalysis{Trend: TrendStable, Sufficient: false}
	}
	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i := range xs {
		fit := intercept + slope*xs[i]
		ssRes += (ys[i] - fit) * (ys[i] - fit)
		ssTot += (ys[i] - meanY) * (ys[i] - meanY)
	}
	rSquared := 0.0
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
		if rSquared < 0 {
			rSquared = 0
		}
	}

	trend := TrendStable
	switch {
	case math.Abs(slope) < stableSlopeHaPerDay:
		trend = TrendStable
	case slope > 0:
		trend = TrendIncreasing
	default:
		trend = TrendDecreasing
	}

	return TrendAnalysis{
		Trend:      trend,
		Slope:      slope,
		RSquared:   rSquared,
		Sufficient: true,
	}
}
