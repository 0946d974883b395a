package rest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/geo"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/timeseries"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
	"github.com/terrawatch/excavation-monitor-backend/internal/service/earlywarning"
	"github.com/terrawatch/excavation-monitor-backend/internal/service/pipeline"
)

// Read-side stores the handlers query directly. The pipeline owns all
// writes; these are narrow on purpose so tests can stub them.
type TimeSeriesReader interface {
	PointsSince(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*timeseries.Point, error)
}

type ViolationReader interface {
	EventsForArea(ctx context.Context, areaID uuid.UUID, from time.Time) ([]*violation.Event, error)
	OpenEvents(ctx context.Context, areaID uuid.UUID) ([]*violation.Event, error)
}

type MaskReader interface {
	LatestMask(ctx context.Context, areaID uuid.UUID) (*geo.ExcavationMask, error)
}

// Handler serves the monitoring API.
type Handler struct {
	pipeline   pipeline.Service
	warning    earlywarning.Service
	points     TimeSeriesReader
	violations ViolationReader
	masks      MaskReader
}

func NewHandler(
	pipelineSvc pipeline.Service,
	warningSvc earlywarning.Service,
	points TimeSeriesReader,
	violations ViolationReader,
	masks MaskReader,
) *Handler {
	return &Handler{
		pipeline:   pipelineSvc,
		warning:    warningSvc,
		points:     points,
		violations: violations,
		masks:      masks,
	}
}

// Routes returns the API routes, unprefixed. The server mounts them
// under /api/v1.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /areas/{id}/runs", h.triggerRun)
	mux.HandleFunc("GET /areas/{id}/timeseries", h.getTimeSeries)
	mux.HandleFunc("GET /areas/{id}/events", h.getEvents)
	mux.HandleFunc("GET /areas/{id}/violations/open", h.getOpenViolations)
	mux.HandleFunc("GET /areas/{id}/early-warning", h.getEarlyWarning)
	mux.HandleFunc("GET /areas/{id}/mask/latest", h.getLatestMask)

	return mux
}

// Defaults for query windows.
const (
	defaultTimeSeriesWindow = 90 * 24 * time.Hour
	defaultEventWindow      = 365 * 24 * time.Hour
	defaultWarningDays      = 90
	maxWarningDays          = 3650
)

func (h *Handler) triggerRun(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.pipeline.ProcessArea(r.Context(), areaID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, r, status, result)
}

func (h *Handler) getTimeSeries(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	from, err := fromParam(r, time.Now().UTC().Add(-defaultTimeSeriesWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}

	points, err := h.points.PointsSince(r.Context(), areaID, from)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"area_id": areaID,
		"from":    from,
		"count":   len(points),
		"points":  points,
	})
}

func (h *Handler) getEvents(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	from, err := fromParam(r, time.Now().UTC().Add(-defaultEventWindow))
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.violations.EventsForArea(r.Context(), areaID, from)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"area_id": areaID,
		"from":    from,
		"count":   len(events),
		"events":  events,
	})
}

func (h *Handler) getOpenViolations(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	events, err := h.violations.OpenEvents(r.Context(), areaID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]interface{}{
		"area_id":    areaID,
		"count":      len(events),
		"violations": events,
	})
}

func (h *Handler) getEarlyWarning(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	days := defaultWarningDays
	if raw := r.URL.Query().Get("window_days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days < 1 || days > maxWarningDays {
			writeError(w, r, errors.NewValidationError("INVALID_WINDOW",
				"window_days must be an integer between 1 and 3650"))
			return
		}
	}

	report, err := h.warning.Report(r.Context(), areaID, time.Duration(days)*24*time.Hour)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, report)
}

// latestMaskResponse pairs the mask metadata with its footprint as
// GeoJSON, since the raw geometry does not marshal to JSON on its own.
type latestMaskResponse struct {
	ID            uuid.UUID         `json:"id"`
	AreaID        uuid.UUID         `json:"area_id"`
	Timestamp     time.Time         `json:"timestamp"`
	TotalPixels   int               `json:"total_pixels"`
	FlaggedPixels int               `json:"flagged_pixels"`
	Geometry      *geojson.Geometry `json:"geometry"`
}

func (h *Handler) getLatestMask(w http.ResponseWriter, r *http.Request) {
	areaID, err := areaIDFrom(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	mask, err := h.masks.LatestMask(r.Context(), areaID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if mask == nil {
		writeError(w, r, errors.NewNotFoundError("excavation mask"))
		return
	}

	gj, err := geojson.Encode(mask.Geometry)
	if err != nil {
		writeError(w, r, errors.NewInternalError("failed to encode mask geometry").WithCause(err))
		return
	}

	writeJSON(w, r, http.StatusOK, latestMaskResponse{
		ID:            mask.ID,
		AreaID:        mask.AreaID,
		Timestamp:     mask.Timestamp,
		TotalPixels:   mask.TotalPixels,
		FlaggedPixels: mask.FlaggedPixels,
		Geometry:      gj,
	})
}

func areaIDFrom(r *http.Request) (uuid.UUID, error) {
	raw := r.PathValue("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, errors.NewValidationError("INVALID_AREA_ID",
			"area id must be a valid UUID")
	}
	return id, nil
}

func fromParam(r *http.Request, fallback time.Time) (time.Time, error) {
	raw := r.URL.Query().Get("from")
	if raw == "" {
		return fallback, nil
	}
	from, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.NewValidationError("INVALID_FROM",
			"from must be an RFC 3339 timestamp")
	}
	return from, nil
}
