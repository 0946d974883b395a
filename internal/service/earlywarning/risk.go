package earlywarning

// Component weights of the combined risk score.
const (
	weightBoundary = 0.35
	weightSpectral = 0.25
	weightRate     = 0.25
	weightTrend    = 0.15
)

// scoreRisk combines the component assessments into a 0-100 score.
func scoreRisk(prox Proximity, shift SpectralShift, rateHaPerDay float64, trend TrendAnalysis) RiskScore {
	boundaryRisk := prox.BufferCoverage * 100

	var spectralRisk float64
	switch shift.Severity {
	case ShiftHigh:
		spectralRisk = 40
	case ShiftMedium:
		spectralRisk = 25
	case ShiftLow:
		spectralRisk = 10
	}

	var rateRisk float64
	switch {
	case rateHaPerDay > 0.2:
		rateRisk = 35
	case rateHaPerDay > 0.1:
		rateRisk = 20
	case rateHaPerDay > 0.01:
		rateRisk = 10
	}

	var trendRisk float64
	switch trend.Trend {
	case TrendIncreasing:
		trendRisk = 25
	case TrendDecreasing:
		// Shrinking excavation earns a small credit.
		trendRisk = -10
	}

	total := boundaryRisk*weightBoundary + spectralRisk*weightSpectral +
		rateRisk*weightRate + trendRisk*weightTrend
	if total < 0 {
		total = 0
	} else if total > 100 {
		total = 100
	}

	level := RiskLow
	switch {
	case total >= 75:
		level = RiskCritical
	case total >= 50:
		level = RiskHigh
	case total >= 25:
		level = RiskMedium
	}

	return RiskScore{
		Total:     total,
		Level:     level,
		Boundary:  boundaryRisk,
		Spectral:  spectralRisk,
		Rate:      rateRisk,
		TrendRisk: trendRisk,
	}
}
