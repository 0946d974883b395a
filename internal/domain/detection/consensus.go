package detection

import "math"

// Consensus holds the reconciliation of the two independent detection
// methods. Requiring agreement suppresses seasonal vegetation cycles (caught
// by MAD but not the threshold) and permanently bare terrain (caught by the
// threshold but not MAD).
type Consensus struct {
	// Mask is the logical AND of the MAD and threshold masks.
	Mask *Mask `json:"mask"`

	// Quality is |AND| / |OR| in [0,1], 0 when the union is empty.
	Quality float64 `json:"quality"`

	// UnionCount is the number of pixels flagged by either method. Zero
	// means a clean scene: neither method saw anything, so Quality is 0 by
	// definition but there was no disagreement either. Callers weighing
	// confidence must treat that case as vacuous agreement, not as discord.
	UnionCount int `json:"union_count"`

	// AnomalyScore is a scalar summary of how far consensus pixels sit
	// from baseline: the mean MAD score over consensus-flagged pixels.
	// Unbounded above, 0 when nothing was flagged.
	AnomalyScore float64 `json:"anomaly_score"`
}

// Validate reconciles the MAD and threshold masks into a consensus.
func Validate(mad *MADResult, threshold *Mask) (*Consensus, error) {
	cons, err := mad.Mask.And(threshold)
	if err != nil {
		return nil, err
	}
	union, err := mad.Mask.Or(threshold)
	if err != nil {
		return nil, err
	}

	unionCount := union.Count()
	quality := 0.0
	if unionCount > 0 {
		quality = float64(cons.Count()) / float64(unionCount)
	}

	var scoreSum float64
	var scoreCount int
	for i, set := range cons.Bits {
		if !set {
			continue
		}
		if s := mad.Scores[i]; !math.IsNaN(s) {
			scoreSum += s
			scoreCount++
		}
	}
	anomalyScore := 0.0
	if scoreCount > 0 {
		anomalyScore = scoreSum / float64(scoreCount)
	}

	return &Consensus{
		Mask:         cons,
		Quality:      quality,
		UnionCount:   unionCount,
		AnomalyScore: anomalyScore,
	}, nil
}
