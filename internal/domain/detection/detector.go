package detection

import (
	"fmt"
	"math"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
)

const (
	// DefaultSigmaThreshold is the MAD-score above which a pixel counts as
	// statistically anomalous.
	DefaultSigmaThreshold = 2.0

	// DefaultNDVICutoff is the fixed vegetation-loss threshold. Pixels
	// below it read as sparse vegetation or bare soil.
	DefaultNDVICutoff = 0.4
)

// MADResult carries the statistical detection mask together with per-pixel
// scores. Scores[i] is the largest anomaly score across configured indices;
// NaN marks pixels with no usable baseline.
type MADResult struct {
	Mask   *Mask
	Scores []float64
}

// Score is the MAD-based anomaly score of one value against a pixel's
// historical median and dispersion: |value - median| / dispersion. A value
// equal to the median always scores 0.
func Score(value, median, dispersion float64) float64 {
	diff := math.Abs(value - median)
	if diff == 0 {
		return 0
	}
	return diff / dispersion
}

// DetectMAD flags pixels whose deviation from the historical baseline
// exceeds sigma, in any of the configured spectral indices. Pixels without
// baseline statistics (insufficient history, or cloud-masked through the
// history window) are excluded from the flaggable set; the threshold method
// remains responsible for them.
func DetectMAD(set *imagery.IndexSet, stats *baseline.Stats, sigma float64) (*MADResult, error) {
	ndvi := set.Grid(imagery.IndexNDVI)
	if ndvi == nil {
		return nil, fmt.Errorf("index set is missing an NDVI grid")
	}
	if sigma <= 0 {
		sigma = DefaultSigmaThreshold
	}

	mask, err := NewMask(ndvi.Width, ndvi.Height)
	if err != nil {
		return nil, err
	}
	scores := make([]float64, ndvi.Len())
	for i := range scores {
		scores[i] = math.NaN()
	}

	if stats == nil || !stats.Usable() {
		// Brand-new area: no pixel is MAD-flaggable, but the run still
		// proceeds on the threshold method alone.
		return &MADResult{Mask: mask, Scores: scores}, nil
	}

	for _, kind := range imagery.AllIndexKinds {
		grid := set.Grid(kind)
		ps := stats.Index(kind)
		if grid == nil || ps == nil {
			continue
		}
		if grid.Width != ndvi.Width || grid.Height != ndvi.Height {
			return nil, fmt.Errorf("index %s shape differs from NDVI grid", kind)
		}

		for i := 0; i < grid.Len(); i++ {
			v, ok := grid.At(i)
			if !ok {
				continue
			}
			med, ok := ps.Median.At(i)
			if !ok {
				continue
			}
			disp, ok := ps.Dispersion.At(i)
			if !ok {
				continue
			}

			score := Score(v, med, disp)
			if math.IsNaN(scores[i]) || score > scores[i] {
				scores[i] = score
			}
			if score > sigma {
				mask.Set(i)
			}
		}
	}

	return &MADResult{Mask: mask, Scores: scores}, nil
}

// DetectThreshold flags pixels whose NDVI falls below the fixed cutoff,
// detecting vegetation loss independent of any history. Masked pixels are
// never flagged.
func DetectThreshold(ndvi *imagery.Grid, cutoff float64) (*Mask, error) {
	if ndvi == nil {
		return nil, fmt.Errorf("ndvi grid cannot be nil")
	}
	if cutoff <= 0 {
		cutoff = DefaultNDVICutoff
	}

	mask, err := NewMask(ndvi.Width, ndvi.Height)
	if err != nil {
		return nil, err
	}

	for i := 0; i < ndvi.Len(); i++ {
		v, ok := ndvi.At(i)
		if !ok {
			continue
		}
		if v < cutoff {
			mask.Set(i)
		}
	}

	return mask, nil
}
