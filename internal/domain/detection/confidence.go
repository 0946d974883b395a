package detection

const (
	// DefaultCloudPenaltyCap bounds how far cloud cover alone can reduce
	// confidence: cover above the cap penalizes no further.
	DefaultCloudPenaltyCap = 0.15

	// DefaultMinConfidence is the floor below which a result is advisory
	// only: recorded, visible, but never driving a violation transition.
	DefaultMinConfidence = 0.6
)

// ConfidenceScore combines consensus quality, acquisition quality and
// baseline goodness-of-fit into one scalar in [0,1]:
//
//	confidence = quality × (1 − min(cloudCover, cap)) × baselineFit
//
// The cloud penalty is deliberately capped, not linear to zero; a fully
// overcast pass degrades the result rather than erasing it.
func ConfidenceScore(quality, cloudCover, baselineFit, cloudPenaltyCap float64) float64 {
	if cloudPenaltyCap <= 0 {
		cloudPenaltyCap = DefaultCloudPenaltyCap
	}

	penalty := cloudCover
	if penalty < 0 {
		penalty = 0
	}
	if penalty > cloudPenaltyCap {
		penalty = cloudPenaltyCap
	}

	confidence := quality * (1 - penalty) * baselineFit
	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// Advisory reports whether a confidence value is below the minimum and the
// result must therefore not open, escalate, or resolve a violation.
func Advisory(confidence, minConfidence float64) bool {
	if minConfidence <= 0 {
		minConfidence = DefaultMinConfidence
	}
	return confidence < minConfidence
}
