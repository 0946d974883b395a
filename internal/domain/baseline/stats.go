package baseline

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
)

const (
	// DefaultMinHistory is the minimum number of historical observations
	// required before per-pixel statistics are considered usable.
	DefaultMinHistory = 5

	// DefaultLookbackYears is the rolling window of history the baseline
	// is computed over.
	DefaultLookbackYears = 5

	// madToSigma converts a median absolute deviation into a standard
	// deviation equivalent for normally distributed samples.
	madToSigma = 1.4826

	// minDispersion guards the degenerate case where both MAD and the
	// standard-deviation fallback resolve to zero.
	minDispersion = 1e-9
)

// Status describes whether baseline statistics are usable for scoring.
type Status int

const (
	StatusOK Status = iota
	StatusInsufficient
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInsufficient:
		return "insufficient"
	default:
		return "unknown"
	}
}

// PixelStats holds the per-pixel robust statistics of one spectral index
// across the history window. Pixels without enough valid history are masked
// in both grids. Invariant: every valid dispersion value is > 0.
type PixelStats struct {
	Median     *imagery.Grid `json:"median"`
	Dispersion *imagery.Grid `json:"dispersion"` // MAD, or std dev when MAD degenerates to 0
}

// Stats is the historical per-pixel reference for one monitored area.
type Stats struct {
	AreaID      uuid.UUID                         `json:"area_id"`
	Status      Status                            `json:"status"`
	SampleCount int                               `json:"sample_count"`
	ComputedAt  time.Time                         `json:"computed_at"`
	Indices     map[imagery.IndexKind]*PixelStats `json:"indices,omitempty"`
}

// Usable reports whether the statistics can back the MAD detection method.
func (s *Stats) Usable() bool {
	return s.Status == StatusOK
}

// Index returns the pixel statistics for one spectral index, or nil.
func (s *Stats) Index(kind imagery.IndexKind) *PixelStats {
	if s.Indices == nil {
		return nil
	}
	return s.Indices[kind]
}

// Compute derives per-pixel (median, MAD) statistics for each spectral index
// across a history of prior observations' index sets. History below
// minHistory fails soft: the returned Stats carries StatusInsufficient and no
// grids, and the caller must treat the area as scorable only at degraded
// confidence. It is never an error.
func Compute(areaID uuid.UUID, history []*imagery.IndexSet, minHistory int) (*Stats, error) {
	if areaID == uuid.Nil {
		return nil, fmt.Errorf("area ID cannot be nil")
	}
	if minHistory <= 0 {
		minHistory = DefaultMinHistory
	}

	stats := &Stats{
		AreaID:      areaID,
		SampleCount: len(history),
		ComputedAt:  time.Now().UTC(),
	}

	if len(history) < minHistory {
		stats.Status = StatusInsufficient
		return stats, nil
	}

	ref := history[0].Grid(imagery.IndexNDVI)
	if ref == nil {
		return nil, fmt.Errorf("history entries must carry an NDVI grid")
	}
	for i, set := range history {
		for _, kind := range imagery.AllIndexKinds {
			g := set.Grid(kind)
			if g == nil {
				return nil, fmt.Errorf("history entry %d is missing index %s", i, kind)
			}
			if !ref.SameShape(g) {
				return nil, fmt.Errorf("history entry %d index %s is %dx%d, expected %dx%d",
					i, kind, g.Width, g.Height, ref.Width, ref.Height)
			}
		}
	}

	stats.Status = StatusOK
	stats.Indices = make(map[imagery.IndexKind]*PixelStats, len(imagery.AllIndexKinds))

	for _, kind := range imagery.AllIndexKinds {
		ps, err := computePixelStats(history, kind, ref.Width, ref.Height, minHistory)
		if err != nil {
			return nil, fmt.Errorf("index %s: %w", kind, err)
		}
		stats.Indices[kind] = ps
	}

	return stats, nil
}

func computePixelStats(history []*imagery.IndexSet, kind imagery.IndexKind, width, height, minHistory int) (*PixelStats, error) {
	medianGrid, err := imagery.NewGrid(width, height)
	if err != nil {
		return nil, err
	}
	dispGrid, err := imagery.NewGrid(width, height)
	if err != nil {
		return nil, err
	}

	samples := make([]float64, 0, len(history))
	deviations := make([]float64, 0, len(history))

	for i := 0; i < width*height; i++ {
		samples = samples[:0]
		for _, set := range history {
			if v, ok := set.Grid(kind).At(i); ok {
				samples = append(samples, v)
			}
		}

		// A pixel can be cloud-masked in enough scenes that it lacks
		// history even when the area as a whole has plenty.
		if len(samples) < minHistory {
			medianGrid.Mask(i)
			dispGrid.Mask(i)
			continue
		}

		med := median(samples)

		deviations = deviations[:0]
		for _, v := range samples {
			deviations = append(deviations, math.Abs(v-med))
		}
		mad := median(deviations)

		if mad == 0 {
			// Degenerate history: substitute the sample standard
			// deviation so downstream scoring never divides by zero.
			mad = stddev(samples, mean(samples))
		}
		if mad < minDispersion {
			mad = minDispersion
		}

		medianGrid.Set(i, med)
		dispGrid.Set(i, mad)
	}

	return &PixelStats{Median: medianGrid, Dispersion: dispGrid}, nil
}

// Fit scores how well the observation's non-flagged pixels agree with
// history, in [0,1]. flagged may be nil; flagged pixels are excluded so an
// active excavation does not drag down its own confidence. When the baseline
// is insufficient the conservative default is returned instead of failing.
func (s *Stats) Fit(set *imagery.IndexSet, flagged []bool) float64 {
	const insufficientFit = 0.5

	if !s.Usable() {
		return insufficientFit
	}

	ps := s.Index(imagery.IndexNDVI)
	grid := set.Grid(imagery.IndexNDVI)
	if ps == nil || grid == nil {
		return insufficientFit
	}

	var total float64
	var count int

	for i := 0; i < grid.Len(); i++ {
		if flagged != nil && i < len(flagged) && flagged[i] {
			continue
		}
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

		// Residual normalized against a 3-sigma equivalent band.
		r := math.Abs(v-med) / (3 * madToSigma * disp)
		if r > 1 {
			r = 1
		}
		total += r
		count++
	}

	if count == 0 {
		return insufficientFit
	}

	fit := 1 - total/float64(count)
	if fit < 0 {
		fit = 0
	}
	return fit
}

func median(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func mean(values []float64) float64 {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func stddev(values []float64, m float64) float64 {
	var sum float64
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}
