package detection_test

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/detection"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
)

func indexSetOf(t *testing.T, width, height int, ndvi float64) *imagery.IndexSet {
	t.Helper()
	grids := make(map[imagery.IndexKind]*imagery.Grid, len(imagery.AllIndexKinds))
	for _, kind := range imagery.AllIndexKinds {
		g, err := imagery.NewGrid(width, height)
		require.NoError(t, err)
		for i := 0; i < g.Len(); i++ {
			g.Set(i, ndvi)
		}
		grids[kind] = g
	}
	return &imagery.IndexSet{Grids: grids}
}

func baselineOf(t *testing.T, width, height int, values []float64) *baseline.Stats {
	t.Helper()
	history := make([]*imagery.IndexSet, 0, len(values))
	for _, v := range values {
		history = append(history, indexSetOf(t, width, height, v))
	}
	stats, err := baseline.Compute(uuid.New(), history, len(values))
	require.NoError(t, err)
	require.True(t, stats.Usable())
	return stats
}

func TestScore(t *testing.T) {
	t.Run("value at median scores zero", func(t *testing.T) {
		assert.Zero(t, detection.Score(0.55, 0.55, 0.03))
	})

	t.Run("excavation scenario", func(t *testing.T) {
		// Baseline median 0.55, MAD 0.03, current 0.10 -> ~15 sigma.
		score := detection.Score(0.10, 0.55, 0.03)
		assert.InDelta(t, 15.0, score, 0.1)
		assert.Greater(t, score, detection.DefaultSigmaThreshold)
	})
}

func TestDetectMAD(t *testing.T) {
	stats := baselineOf(t, 2, 2, []float64{0.50, 0.52, 0.55, 0.58, 0.60})

	t.Run("flags deviating pixels", func(t *testing.T) {
		current := indexSetOf(t, 2, 2, 0.55)
		current.Grid(imagery.IndexNDVI).Set(0, 0.10)

		result, err := detection.DetectMAD(current, stats, 2.0)
		require.NoError(t, err)

		assert.True(t, result.Mask.IsSet(0))
		assert.False(t, result.Mask.IsSet(1))
		assert.InDelta(t, 15.0, result.Scores[0], 0.1)
	})

	t.Run("no baseline means no MAD flags", func(t *testing.T) {
		insufficient, err := baseline.Compute(uuid.New(), nil, 5)
		require.NoError(t, err)

		current := indexSetOf(t, 2, 2, 0.05)
		result, err := detection.DetectMAD(current, insufficient, 2.0)
		require.NoError(t, err)

		assert.Zero(t, result.Mask.Count())
		for _, s := range result.Scores {
			assert.True(t, math.IsNaN(s), "pixels without baseline carry NaN scores")
		}
	})

	t.Run("any index can flag a pixel", func(t *testing.T) {
		current := indexSetOf(t, 2, 2, 0.55)
		// NDVI stays at baseline; NBR collapses at pixel 2.
		current.Grid(imagery.IndexNBR).Set(2, -0.8)

		result, err := detection.DetectMAD(current, stats, 2.0)
		require.NoError(t, err)
		assert.True(t, result.Mask.IsSet(2))
	})
}

func TestDetectThreshold(t *testing.T) {
	g, err := imagery.NewGrid(2, 2)
	require.NoError(t, err)
	g.Set(0, 0.10) // bare soil
	g.Set(1, 0.39) // just under the cutoff
	g.Set(2, 0.40) // exactly at the cutoff: not flagged
	g.Mask(3)      // cloud

	mask, err := detection.DetectThreshold(g, 0.4)
	require.NoError(t, err)

	assert.True(t, mask.IsSet(0))
	assert.True(t, mask.IsSet(1))
	assert.False(t, mask.IsSet(2))
	assert.False(t, mask.IsSet(3), "masked pixels are never flagged")
}

func TestValidate(t *testing.T) {
	newMask := func(bits ...int) *detection.Mask {
		m, err := detection.NewMask(2, 2)
		require.NoError(t, err)
		for _, i := range bits {
			m.Set(i)
		}
		return m
	}
	scores := func(vals ...float64) []float64 { return vals }

	t.Run("consensus is the intersection", func(t *testing.T) {
		mad := &detection.MADResult{Mask: newMask(0, 1), Scores: scores(5, 3, math.NaN(), math.NaN())}
		thr := newMask(1, 2)

		cons, err := detection.Validate(mad, thr)
		require.NoError(t, err)

		assert.Equal(t, 1, cons.Mask.Count())
		assert.True(t, cons.Mask.IsSet(1))
		// |AND| = 1, |OR| = 3.
		assert.InDelta(t, 1.0/3.0, cons.Quality, 1e-9)
		assert.Equal(t, 3, cons.UnionCount)
		assert.InDelta(t, 3.0, cons.AnomalyScore, 1e-9)
	})

	t.Run("empty union means zero quality and zero union count", func(t *testing.T) {
		mad := &detection.MADResult{Mask: newMask(), Scores: scores(0, 0, 0, 0)}
		thr := newMask()

		cons, err := detection.Validate(mad, thr)
		require.NoError(t, err)

		assert.Zero(t, cons.Mask.Count())
		assert.Zero(t, cons.Quality)
		assert.Zero(t, cons.UnionCount)
		assert.Zero(t, cons.AnomalyScore)
	})

	t.Run("consensus is a subset of the union", func(t *testing.T) {
		mad := &detection.MADResult{Mask: newMask(0, 3), Scores: scores(4, math.NaN(), math.NaN(), 6)}
		thr := newMask(0, 1, 3)

		cons, err := detection.Validate(mad, thr)
		require.NoError(t, err)

		union, err := mad.Mask.Or(thr)
		require.NoError(t, err)
		for i := 0; i < cons.Mask.Len(); i++ {
			if cons.Mask.IsSet(i) {
				assert.True(t, union.IsSet(i))
			}
		}
		assert.GreaterOrEqual(t, cons.Quality, 0.0)
		assert.LessOrEqual(t, cons.Quality, 1.0)
	})
}

func TestConfidenceScore(t *testing.T) {
	t.Run("cloud penalty is capped", func(t *testing.T) {
		light := detection.ConfidenceScore(1.0, 0.15, 1.0, 0.15)
		heavy := detection.ConfidenceScore(1.0, 0.90, 1.0, 0.15)
		assert.InDelta(t, 0.85, light, 1e-9)
		assert.Equal(t, light, heavy, "cover above the cap penalizes no further")
	})

	t.Run("monotonic in quality", func(t *testing.T) {
		prev := -1.0
		for q := 0.0; q <= 1.0; q += 0.1 {
			c := detection.ConfidenceScore(q, 0.05, 0.9, 0.15)
			assert.GreaterOrEqual(t, c, prev)
			prev = c
		}
	})

	t.Run("non-increasing in cloud cover", func(t *testing.T) {
		prev := 2.0
		for cc := 0.0; cc <= 1.0; cc += 0.1 {
			c := detection.ConfidenceScore(0.8, cc, 0.9, 0.15)
			assert.LessOrEqual(t, c, prev)
			prev = c
		}
	})

	t.Run("clamped to [0,1]", func(t *testing.T) {
		assert.Equal(t, 0.0, detection.ConfidenceScore(-1, 0, 1, 0.15))
		assert.Equal(t, 1.0, detection.ConfidenceScore(2, 0, 1, 0.15))
	})
}

func TestAdvisory(t *testing.T) {
	assert.True(t, detection.Advisory(0.4, 0.6))
	assert.False(t, detection.Advisory(0.6, 0.6))
	assert.False(t, detection.Advisory(0.9, 0.6))
}
