package baseline_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
)

// historyOf builds n index sets over a 2x2 grid where every index pixel
// takes the given per-scene values.
func historyOf(t *testing.T, values []float64) []*imagery.IndexSet {
	t.Helper()
	history := make([]*imagery.IndexSet, 0, len(values))
	for _, v := range values {
		grids := make(map[imagery.IndexKind]*imagery.Grid, len(imagery.AllIndexKinds))
		for _, kind := range imagery.AllIndexKinds {
			g, err := imagery.NewGrid(2, 2)
			require.NoError(t, err)
			for i := 0; i < g.Len(); i++ {
				g.Set(i, v)
			}
			grids[kind] = g
		}
		history = append(history, &imagery.IndexSet{Grids: grids})
	}
	return history
}

func TestCompute_InsufficientHistory(t *testing.T) {
	stats, err := baseline.Compute(uuid.New(), historyOf(t, []float64{0.5, 0.5}), 5)
	require.NoError(t, err, "insufficient history is a status, not an error")

	assert.Equal(t, baseline.StatusInsufficient, stats.Status)
	assert.False(t, stats.Usable())
	assert.Equal(t, 2, stats.SampleCount)
	assert.Nil(t, stats.Index(imagery.IndexNDVI))
}

func TestCompute_MedianAndMAD(t *testing.T) {
	history := historyOf(t, []float64{0.50, 0.52, 0.55, 0.58, 0.60})

	stats, err := baseline.Compute(uuid.New(), history, 5)
	require.NoError(t, err)
	require.True(t, stats.Usable())

	ps := stats.Index(imagery.IndexNDVI)
	require.NotNil(t, ps)

	med, ok := ps.Median.At(0)
	require.True(t, ok)
	assert.InDelta(t, 0.55, med, 1e-9)

	// Deviations from 0.55: {0.05, 0.03, 0, 0.03, 0.05} -> MAD = 0.03.
	mad, ok := ps.Dispersion.At(0)
	require.True(t, ok)
	assert.InDelta(t, 0.03, mad, 1e-9)
}

func TestCompute_DegenerateMADFallsBackToStdDev(t *testing.T) {
	// Four identical samples and one outlier: median 0.5, MAD 0 -> std dev.
	history := historyOf(t, []float64{0.5, 0.5, 0.5, 0.5, 0.7})

	stats, err := baseline.Compute(uuid.New(), history, 5)
	require.NoError(t, err)

	disp, ok := stats.Index(imagery.IndexNDVI).Dispersion.At(0)
	require.True(t, ok)
	assert.Greater(t, disp, 0.0, "dispersion must never be zero")
	assert.InDelta(t, 0.08, disp, 1e-9) // population std dev of the sample
}

func TestCompute_PixelWithoutHistoryIsMasked(t *testing.T) {
	history := historyOf(t, []float64{0.5, 0.5, 0.5, 0.5, 0.5})
	// Cloud-mask pixel 3 in every scene for every index.
	for _, set := range history {
		for _, kind := range imagery.AllIndexKinds {
			set.Grid(kind).Mask(3)
		}
	}

	stats, err := baseline.Compute(uuid.New(), history, 5)
	require.NoError(t, err)

	ps := stats.Index(imagery.IndexNDVI)
	_, ok := ps.Median.At(3)
	assert.False(t, ok, "pixel with no history must be masked, not defaulted")
	_, ok = ps.Median.At(0)
	assert.True(t, ok)
}

func TestFit(t *testing.T) {
	history := historyOf(t, []float64{0.50, 0.52, 0.55, 0.58, 0.60})
	stats, err := baseline.Compute(uuid.New(), history, 5)
	require.NoError(t, err)

	t.Run("observation at median fits perfectly", func(t *testing.T) {
		current := historyOf(t, []float64{0.55})[0]
		fit := stats.Fit(current, nil)
		assert.InDelta(t, 1.0, fit, 1e-9)
	})

	t.Run("far observation fits poorly", func(t *testing.T) {
		current := historyOf(t, []float64{-0.9})[0]
		fit := stats.Fit(current, nil)
		assert.InDelta(t, 0.0, fit, 1e-9)
	})

	t.Run("flagged pixels are excluded", func(t *testing.T) {
		current := historyOf(t, []float64{0.55})[0]
		// Corrupt pixel 0 but flag it; remaining pixels still fit.
		current.Grid(imagery.IndexNDVI).Set(0, -0.9)
		fit := stats.Fit(current, []bool{true, false, false, false})
		assert.InDelta(t, 1.0, fit, 1e-9)
	})

	t.Run("insufficient baseline returns conservative default", func(t *testing.T) {
		short, err := baseline.Compute(uuid.New(), historyOf(t, []float64{0.5}), 5)
		require.NoError(t, err)
		current := historyOf(t, []float64{0.55})[0]
		assert.InDelta(t, 0.5, short.Fit(current, nil), 1e-9)
	})
}
