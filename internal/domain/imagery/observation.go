package imagery

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Band identifies a spectral band of a satellite acquisition.
type Band int

const (
	BandGreen Band = iota
	BandRed
	BandNIR
	BandSWIR2
)

func (b Band) String() string {
	switch b {
	case BandGreen:
		return "green"
	case BandRed:
		return "red"
	case BandNIR:
		return "nir"
	case BandSWIR2:
		return "swir2"
	default:
		return "unknown"
	}
}

// Observation is one satellite acquisition for a monitored area. It is
// immutable once ingested and owned by the pipeline run that consumes it;
// the core does not retain it beyond the run.
type Observation struct {
	ID          uuid.UUID      `json:"id"`
	AreaID      uuid.UUID      `json:"area_id"`
	Timestamp   time.Time      `json:"timestamp"`
	Bands       map[Band]*Grid `json:"bands"`
	CloudCover  float64        `json:"cloud_cover"`  // scene-level fraction in [0,1]
	ResolutionM float64        `json:"resolution_m"` // ground sample distance, meters/pixel
}

// NewObservation validates and constructs an observation. All supplied band
// grids must share the same dimensions.
func NewObservation(areaID uuid.UUID, timestamp time.Time, bands map[Band]*Grid, cloudCover, resolutionM float64) (*Observation, error) {
	if areaID == uuid.Nil {
		return nil, fmt.Errorf("area ID cannot be nil")
	}
	if timestamp.IsZero() {
		return nil, fmt.Errorf("timestamp cannot be zero")
	}
	if len(bands) == 0 {
		return nil, fmt.Errorf("observation requires at least one band grid")
	}
	if cloudCover < 0 || cloudCover > 1 {
		return nil, fmt.Errorf("cloud cover must be in [0,1], got %f", cloudCover)
	}
	if resolutionM <= 0 {
		return nil, fmt.Errorf("resolution must be positive, got %f", resolutionM)
	}

	var ref *Grid
	for band, grid := range bands {
		if grid == nil {
			return nil, fmt.Errorf("band %s grid cannot be nil", band)
		}
		if ref == nil {
			ref = grid
			continue
		}
		if !ref.SameShape(grid) {
			return nil, fmt.Errorf("band %s grid is %dx%d, expected %dx%d",
				band, grid.Width, grid.Height, ref.Width, ref.Height)
		}
	}

	return &Observation{
		ID:          uuid.New(),
		AreaID:      areaID,
		Timestamp:   timestamp,
		Bands:       bands,
		CloudCover:  cloudCover,
		ResolutionM: resolutionM,
	}, nil
}

// Band returns the grid for the requested band, or nil when absent.
func (o *Observation) Band(b Band) *Grid {
	return o.Bands[b]
}

// PixelAreaHa returns the ground area covered by one pixel, in hectares.
func (o *Observation) PixelAreaHa() float64 {
	return o.ResolutionM * o.ResolutionM / 10_000
}
