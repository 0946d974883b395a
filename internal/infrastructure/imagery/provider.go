package imagery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	domimagery "github.com/terrawatch/excavation-monitor-backend/internal/domain/imagery"
	"github.com/terrawatch/excavation-monitor-backend/internal/infrastructure/config"
)

// SceneProvider fetches atmospherically corrected scenes from the imagery
// service. It implements the pipeline's ObservationProvider: an empty result
// maps to a no-data error, transport and server failures to retryable
// external errors. Retrying is the orchestrator's job, not the client's.
type SceneProvider struct {
	cfg     config.ImageryConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewSceneProvider creates an imagery client from the imagery config.
func NewSceneProvider(cfg config.ImageryConfig, logger *zap.Logger) *SceneProvider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 5
	}

	return &SceneProvider{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitRPS*2),
		logger:  logger,
	}
}

// sceneBand mirrors the provider's per-band payload.
type sceneBand struct {
	Width  int       `json:"width"`
	Height int       `json:"height"`
	Values []float64 `json:"values"`
	Valid  []bool    `json:"valid,omitempty"`
}

// sceneResponse mirrors the provider's scene payload.
type sceneResponse struct {
	SceneID     string               `json:"scene_id"`
	ObservedAt  time.Time            `json:"observed_at"`
	CloudCover  float64              `json:"cloud_cover"`
	ResolutionM float64              `json:"resolution_m"`
	Bands       map[string]sceneBand `json:"bands"`
}

// NextObservation returns the next usable scene for the area strictly after
// the given timestamp.
func (p *SceneProvider) NextObservation(ctx context.Context, areaID uuid.UUID, after time.Time) (*domimagery.Observation, error) {
	if p.cfg.ProviderURL == "" {
		return nil, errors.NewNoDataError("no imagery provider configured")
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/v1/areas/%s/scenes/next", p.cfg.ProviderURL, areaID)
	query := url.Values{}
	if !after.IsZero() {
		query.Set("after", after.UTC().Format(time.RFC3339))
	}
	query.Set("max_cloud_cover", strconv.FormatFloat(p.cfg.MaxCloudCover, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, errors.NewInternalError("failed to create scene request").WithCause(err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, errors.NewExternalError("imagery", "scene request failed").WithCause(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent:
		return nil, errors.NewNoDataError("no usable scene for the requested period")
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, errors.NewExternalError("imagery",
			fmt.Sprintf("scene request returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, errors.NewValidationError("SCENE_REQUEST_REJECTED",
			fmt.Sprintf("scene request returned status %d", resp.StatusCode))
	}

	var scene sceneResponse
	if err := json.NewDecoder(resp.Body).Decode(&scene); err != nil {
		return nil, errors.NewExternalError("imagery", "failed to decode scene payload").WithCause(err)
	}

	obs, err := p.toObservation(areaID, &scene)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("scene fetched",
		zap.String("area_id", areaID.String()),
		zap.String("scene_id", scene.SceneID),
		zap.Time("observed_at", obs.Timestamp),
		zap.Float64("cloud_cover", obs.CloudCover))
	return obs, nil
}

var bandNames = map[string]domimagery.Band{
	"green": domimagery.BandGreen,
	"red":   domimagery.BandRed,
	"nir":   domimagery.BandNIR,
	"swir2": domimagery.BandSWIR2,
}

func (p *SceneProvider) toObservation(areaID uuid.UUID, scene *sceneResponse) (*domimagery.Observation, error) {
	bands := make(map[domimagery.Band]*domimagery.Grid, len(scene.Bands))
	for name, raw := range scene.Bands {
		band, ok := bandNames[name]
		if !ok {
			p.logger.Warn("ignoring unknown band", zap.String("band", name))
			continue
		}
		grid, err := toGrid(raw)
		if err != nil {
			return nil, errors.NewValidationError("MALFORMED_SCENE",
				fmt.Sprintf("band %s: %v", name, err))
		}
		bands[band] = grid
	}

	resolution := scene.ResolutionM
	if resolution == 0 {
		resolution = p.cfg.ResolutionM
	}

	obs, err := domimagery.NewObservation(areaID, scene.ObservedAt, bands, scene.CloudCover, resolution)
	if err != nil {
		return nil, errors.NewValidationError("MALFORMED_SCENE", err.Error())
	}
	return obs, nil
}

func toGrid(raw sceneBand) (*domimagery.Grid, error) {
	grid, err := domimagery.NewGrid(raw.Width, raw.Height)
	if err != nil {
		return nil, err
	}
	if len(raw.Values) != len(grid.Values) {
		return nil, fmt.Errorf("expected %d samples, got %d", len(grid.Values), len(raw.Values))
	}
	copy(grid.Values, raw.Values)
	if raw.Valid != nil {
		if len(raw.Valid) != len(grid.Valid) {
			return nil, fmt.Errorf("validity mask length %d does not match %d samples", len(raw.Valid), len(grid.Values))
		}
		copy(grid.Valid, raw.Valid)
	}
	return grid, nil
}
