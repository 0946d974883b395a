package earlywarning

// projectionDays is the look-ahead horizon.
const projectionDays = 14

// Alert types emitted by the projection.
const (
	AlertPredictiveViolation = "PREDICTIVE_VIOLATION_WARNING"
	AlertPredictive          = "PREDICTIVE_ALERT"
	AlertNone                = "NO_SIGNIFICANT_ALERT"
)

// project extrapolates the current excavation rate two weeks out and
// estimates the probability of a no-go boundary violation in that window.
func project(rateHaPerDay float64, trend TrendAnalysis, risk RiskScore) Projection {
	// An increasing trend accelerates the projected rate, a decreasing
	// one tempers it.
	factor := 1.0
	switch trend.Trend {
	case TrendIncreasing:
		factor = 1.1
	case TrendDecreasing:
		factor = 0.9
	}

	projectedRate := rateHaPerDay * factor
	projectedArea := projectedRate * projectionDays

	var probability float64
	switch risk.Level {
	case RiskCritical:
		probability = 0.85
	case RiskHigh:
		probability = 0.60
	case RiskMedium:
		probability = 0.30
	default:
		probability = 0.10
	}

	if projectedArea > 5 {
		probability += 0.25
	} else if projectedArea < 0.1 {
		probability -= 0.15
	}
	if probability > 1 {
		probability = 1
	} else if probability < 0 {
		probability = 0
	}

	p := Projection{
		Days:                 projectionDays,
		ProjectedRateHaDay:   projectedRate,
		ProjectedAreaHa:      projectedArea,
		ViolationProbability: probability,
	}

	p.AlertTriggered = probability > 0.3
	switch {
	case !p.AlertTriggered:
		p.AlertType = AlertNone
		p.AlertSeverity = "LOW"
	case probability > 0.7:
		p.AlertType = AlertPredictiveViolation
		p.AlertSeverity = "CRITICAL"
	case probability > 0.5:
		p.AlertType = AlertPredictive
		p.AlertSeverity = "HIGH"
	default:
		p.AlertType = AlertPredictive
		p.AlertSeverity = "MEDIUM"
	}
	if p.AlertTriggered {
		p.DaysToViolation = int(projectionDays * (1 - probability))
	}
	return p
}
