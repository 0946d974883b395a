package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/baseline"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/detection"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// Config carries the pipeline's detection and retry tuning.
type Config struct {
	SigmaThreshold  float64       `json:"sigma_threshold"`
	NDVICutoff      float64       `json:"ndvi_cutoff"`
	CloudPenaltyCap float64       `json:"cloud_penalty_cap"`
	MinConfidence   float64       `json:"min_confidence"`
	SmoothingWindow int           `json:"smoothing_window"`
	MinHistory      int           `json:"min_history"`
	LookbackYears   int           `json:"lookback_years"`
	BaselineTTL     time.Duration `json:"baseline_ttl"`
	MaxRetries      int           `json:"max_retries"`
	RetryBackoff    time.Duration `json:"retry_backoff"`

	Violation violation.Config `json:"violation"`
}

// DefaultConfig returns the production pipeline tuning.
func DefaultConfig() Config {
	return Config{
		SigmaThreshold:  detection.DefaultSigmaThreshold,
		NDVICutoff:      detection.DefaultNDVICutoff,
		CloudPenaltyCap: detection.DefaultCloudPenaltyCap,
		MinConfidence:   detection.DefaultMinConfidence,
		SmoothingWindow: timeseries.DefaultSmoothingWindow,
		MinHistory:      baseline.DefaultMinHistory,
		LookbackYears:   baseline.DefaultLookbackYears,
		BaselineTTL:     6 * time.Hour,
		MaxRetries:      3,
		RetryBackoff:    500 * time.Millisecond,
		Violation:       violation.DefaultConfig(),
	}
}

// service implements the Service interface
type service struct {
	observations ObservationProvider
	history      HistoryProvider
	boundaries   BoundaryProvider
	cache        BaselineCache
	store        Store
	alerts       AlertPublisher
	metrics      MetricsCollector
	logger       *slog.Logger

	smoother *timeseries.Smoother
	machine  *violation.Machine
	cfg      Config

	mu     sync.Mutex
	active map[uuid.UUID]*sync.Mutex
}

// NewService creates the pipeline orchestrator.
func NewService(
	observations ObservationProvider,
	history HistoryProvider,
	boundaries BoundaryProvider,
	cache BaselineCache,
	store Store,
	alerts AlertPublisher,
	metrics MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) (Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	smoother, err := timeseries.NewSmoother(cfg.SmoothingWindow)
	if err != nil {
		return nil, err
	}
	return &service{
		observations: observations,
		history:      history,
		boundaries:   boundaries,
		cache:        cache,
		store:        store,
		alerts:       alerts,
		metrics:      metrics,
		logger:       logger,
		smoother:     smoother,
		machine:      violation.NewMachine(cfg.Violation),
		cfg:          cfg,
		active:       make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// ProcessArea runs one full detection pass for the area.
func (s *service) ProcessArea(ctx context.Context, areaID uuid.UUID) (*RunResult, error) {
	lock := s.areaLock(areaID)
	if !lock.TryLock() {
		return nil, errors.ErrRunInProgress
	}
	defer lock.Unlock()

	start := time.Now()
	result, err := s.run(ctx, areaID)

	if s.metrics != nil {
		outcome := OutcomeCommitted
		switch {
		case err != nil:
			outcome = OutcomeFailed
		case result.Skipped:
			outcome = OutcomeSkipped
		}
		s.metrics.RecordRun(ctx, outcome, time.Since(start))
	}

	return result, err
}

func (s *service) run(ctx context.Context, areaID uuid.UUID) (*RunResult, error) {
	latest, err := s.store.LatestPoint(ctx, areaID)
	if err != nil {
		return nil, errors.Wrap(err, "loading latest point")
	}

	var after time.Time
	if latest != nil {
		after = latest.Timestamp
	}

	obs, err := s.fetchObservation(ctx, areaID, after)
	if err != nil {
		if errors.IsNoData(err) {
			s.logger.InfoContext(ctx, "no usable scene, skipping period",
				slog.String("area_id", areaID.String()))
			return &RunResult{AreaID: areaID, Skipped: true, SkipReason: "no usable scene"}, nil
		}
		return nil, err
	}

	if latest != nil && obs.Timestamp.Before(latest.Timestamp) {
		return nil, errors.ErrOutOfOrderTimestamp.WithDetails(map[string]interface{}{
			"observed_at": obs.Timestamp,
			"latest_at":   latest.Timestamp,
		})
	}

	indices, err := imagery.ComputeIndices(obs)
	if err != nil {
		return nil, errors.Wrap(err, "computing spectral indices")
	}

	stats, err := s.loadBaseline(ctx, areaID, obs.Timestamp)
	if err != nil {
		return nil, err
	}

	mad, err := detection.DetectMAD(indices, stats, s.cfg.SigmaThreshold)
	if err != nil {
		return nil, errors.Wrap(err, "running deviation detection")
	}
	threshold, err := detection.DetectThreshold(indices.Grid(imagery.IndexNDVI), s.cfg.NDVICutoff)
	if err != nil {
		return nil, errors.Wrap(err, "running threshold detection")
	}
	consensus, err := detection.Validate(mad, threshold)
	if err != nil {
		return nil, errors.Wrap(err, "validating consensus")
	}

	fit := stats.Fit(indices, consensus.Mask.Bits)
	// A clean scene flags nothing in either method, leaving no agreement to
	// measure. The quality factor is vacuous there: scoring it as discord
	// would make every clean pass advisory and open violations unresolvable.
	quality := consensus.Quality
	if consensus.UnionCount == 0 {
		quality = 1
	}
	confidence := detection.ConfidenceScore(quality, obs.CloudCover, fit, s.cfg.CloudPenaltyCap)
	advisory := detection.Advisory(confidence, s.cfg.MinConfidence)

	if s.metrics != nil {
		s.metrics.RecordDetection(ctx, areaID, consensus.Mask.Count(), confidence)
	}

	transform, err := s.boundaries.TransformForArea(ctx, areaID)
	if err != nil {
		return nil, errors.Wrap(err, "loading area transform")
	}
	boundaries, err := s.boundaries.BoundariesForArea(ctx, areaID)
	if err != nil {
		return nil, errors.Wrap(err, "loading boundaries")
	}

	agg, err := geo.Aggregate(ctx, consensus.Mask, transform, boundaries)
	if err != nil {
		return nil, errors.Wrap(err, "aggregating areas")
	}
	for _, ba := range agg.Boundaries {
		if ba.Err != nil {
			s.logger.WarnContext(ctx, "boundary rejected during aggregation",
				slog.String("boundary_id", ba.BoundaryID.String()),
				slog.String("error", ba.Err.Error()))
		}
	}

	mask := geo.NewExcavationMask(areaID, obs.Timestamp, consensus.Mask, transform)

	point, err := s.buildPoint(ctx, areaID, obs.Timestamp, agg, consensus, indices, confidence, advisory, mask.ID, latest)
	if err != nil {
		return nil, err
	}

	events, err := s.evaluateZones(ctx, areaID, obs.Timestamp, agg, confidence)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		AreaID:      areaID,
		Observation: obs,
		ObservedAt:  obs.Timestamp,
		Baseline:    stats,
		Mask:        mask,
		Aggregation: agg,
		Point:       point,
		Events:      events,
		Advisory:    advisory,
	}

	// A confident clean observation folds into the index history so the
	// baseline tracks seasonal drift. The sample rides the run's
	// transaction: the point never commits without it. Anomalous or
	// advisory reads never contaminate the baseline.
	if !advisory && consensus.Mask.Count() == 0 {
		result.BaselineSample = indices
		result.BaselineUpdated = true
	}

	if err := s.store.CommitRun(ctx, result); err != nil {
		return nil, errors.Wrap(err, "committing run")
	}

	if result.BaselineUpdated {
		s.invalidateBaseline(ctx, areaID)
	}
	s.publishAlerts(ctx, events)

	s.logger.InfoContext(ctx, "pipeline run committed",
		slog.String("area_id", areaID.String()),
		slog.Time("observed_at", obs.Timestamp),
		slog.Float64("area_ha", agg.TotalAreaHa),
		slog.Float64("confidence", confidence),
		slog.Bool("advisory", advisory),
		slog.Int("events", len(events)))

	return result, nil
}

// fetchObservation retries retryable provider failures with exponential
// backoff. No-data and non-retryable errors return immediately.
func (s *service) fetchObservation(ctx context.Context, areaID uuid.UUID, after time.Time) (*imagery.Observation, error) {
	backoff := s.cfg.RetryBackoff
	var lastErr error
	for attempt := 0; attempt <= s.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		obs, err := s.observations.NextObservation(ctx, areaID, after)
		if err == nil {
			return obs, nil
		}
		if !errors.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		s.logger.WarnContext(ctx, "observation fetch failed, retrying",
			slog.String("area_id", areaID.String()),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
	return nil, lastErr
}

// loadBaseline serves the baseline from cache when possible, otherwise
// recomputes it from stored history. Cache failures degrade to a
// recompute, never to a failed run.
func (s *service) loadBaseline(ctx context.Context, areaID uuid.UUID, at time.Time) (*baseline.Stats, error) {
	if s.cache != nil {
		stats, err := s.cache.Get(ctx, areaID)
		if err != nil {
			s.logger.WarnContext(ctx, "baseline cache read failed",
				slog.String("area_id", areaID.String()),
				slog.String("error", err.Error()))
		} else if stats != nil {
			return stats, nil
		}
	}

	from := at.AddDate(-s.cfg.LookbackYears, 0, 0)
	history, err := s.history.IndexHistory(ctx, areaID, from, at)
	if err != nil {
		return nil, errors.Wrap(err, "loading index history")
	}
	stats, err := baseline.Compute(areaID, history, s.cfg.MinHistory)
	if err != nil {
		return nil, errors.Wrap(err, "computing baseline")
	}

	if s.cache != nil && stats.Usable() {
		if err := s.cache.Put(ctx, areaID, stats, s.cfg.BaselineTTL); err != nil {
			s.logger.WarnContext(ctx, "baseline cache write failed",
				slog.String("area_id", areaID.String()),
				slog.String("error", err.Error()))
		}
	}
	return stats, nil
}

func (s *service) buildPoint(
	ctx context.Context,
	areaID uuid.UUID,
	observedAt time.Time,
	agg *geo.Aggregation,
	consensus *detection.Consensus,
	indices *imagery.IndexSet,
	confidence float64,
	advisory bool,
	maskID uuid.UUID,
	latest *timeseries.Point,
) (*timeseries.Point, error) {
	point, err := timeseries.NewPoint(areaID, observedAt, agg.TotalAreaHa, consensus.AnomalyScore, confidence)
	if err != nil {
		return nil, errors.Wrap(err, "building time-series point")
	}
	point.MaskID = maskID
	point.Advisory = advisory
	point.MeanNDVI = meanValidValue(indices.Grid(imagery.IndexNDVI))

	recent, err := s.store.RecentPoints(ctx, areaID, s.smoother.Window()-1)
	if err != nil {
		return nil, errors.Wrap(err, "loading recent points")
	}
	values := make([]float64, 0, len(recent)+1)
	for _, p := range recent {
		values = append(values, p.RawAreaHa)
	}
	values = append(values, point.RawAreaHa)
	point.SmoothedAreaHa = s.smoother.SmoothLatest(values)
	point.RateHaPerDay = timeseries.Rate(latest, point)
	return point, nil
}

// evaluateZones runs the violation state machine for every no-go zone the
// area carries. Advisory readings pass through the machine unchanged: the
// confidence gate inside it keeps them from transitioning state.
func (s *service) evaluateZones(
	ctx context.Context,
	areaID uuid.UUID,
	observedAt time.Time,
	agg *geo.Aggregation,
	confidence float64,
) ([]*violation.Event, error) {
	var events []*violation.Event
	for _, ba := range agg.Boundaries {
		if ba.IsLegal || ba.Err != nil {
			continue
		}
		latest, err := s.store.LatestEvent(ctx, areaID, ba.BoundaryID)
		if err != nil {
			return nil, errors.Wrap(err, "loading latest violation event")
		}
		ev, err := s.machine.Evaluate(latest, violation.Reading{
			AreaID:     areaID,
			ZoneID:     ba.BoundaryID,
			Timestamp:  observedAt,
			AreaHa:     ba.AreaHa,
			Confidence: confidence,
		})
		if err != nil {
			return nil, errors.Wrap(err, "evaluating violation state")
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}

// invalidateBaseline drops the cached stats after a committed run changed
// the index history. A cache failure only logs: the entry expires on its
// TTL and the committed history stays authoritative.
func (s *service) invalidateBaseline(ctx context.Context, areaID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, areaID); err != nil {
		s.logger.WarnContext(ctx, "baseline cache invalidation failed",
			slog.String("area_id", areaID.String()),
			slog.String("error", err.Error()))
	}
}

// publishAlerts delivers lifecycle alerts after the commit. Delivery is
// best effort; a failed publish never rolls back a committed run.
func (s *service) publishAlerts(ctx context.Context, events []*violation.Event) {
	if s.alerts == nil {
		return
	}
	for _, ev := range events {
		if err := s.alerts.Publish(ctx, violation.NewAlert(ev)); err != nil {
			s.logger.ErrorContext(ctx, "alert publish failed",
				slog.String("event_id", ev.ID.String()),
				slog.String("error", err.Error()))
		}
	}
}

func meanValidValue(g *imagery.Grid) float64 {
	if g == nil {
		return 0
	}
	var sum float64
	var count int
	for i := 0; i < g.Len(); i++ {
		if v, ok := g.At(i); ok {
			sum += v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func (s *service) areaLock(areaID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.active[areaID]
	if !ok {
		lock = &sync.Mutex{}
		s.active[areaID] = lock
	}
	return lock
}
