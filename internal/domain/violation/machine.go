package violation

import (
	"time"

	"github.com/google/uuid"
	"github.com/terrawatch/excavation-monitor-backend/internal/domain/errors"
)

const (
	// DefaultMinConfidence gates lifecycle transitions; advisory readings
	// below it never move the state machine.
	DefaultMinConfidence = 0.6

	// DefaultMinAreaHa is the floor below which an intersection is treated
	// as noise rather than excavation.
	DefaultMinAreaHa = 0.01

	// DefaultGrowthAbsHa is the absolute growth since the last open event
	// that triggers an escalation.
	DefaultGrowthAbsHa = 0.1

	// DefaultGrowthRatio is the relative growth since the last open event
	// that triggers an escalation.
	DefaultGrowthRatio = 0.25
)

// Config carries the tunable thresholds of the state machine.
type Config struct {
	MinConfidence float64       `json:"min_confidence"`
	MinAreaHa     float64       `json:"min_area_ha"`
	GrowthAbsHa   float64       `json:"growth_abs_ha"`
	GrowthRatio   float64       `json:"growth_ratio"`
	Bands         SeverityBands `json:"bands"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinConfidence: DefaultMinConfidence,
		MinAreaHa:     DefaultMinAreaHa,
		GrowthAbsHa:   DefaultGrowthAbsHa,
		GrowthRatio:   DefaultGrowthRatio,
		Bands:         DefaultSeverityBands(),
	}
}

// Reading is one confident-or-advisory area measurement for a
// (monitored area, no-go zone) pair at a point in time.
type Reading struct {
	AreaID     uuid.UUID
	ZoneID     uuid.UUID
	Timestamp  time.Time
	AreaHa     float64
	Confidence float64
}

// Machine decides lifecycle transitions from readings. It is stateless:
// the caller supplies the pair's latest event, which fully determines
// the current state (nil or resolved latest means no open violation).
type Machine struct {
	cfg Config
}

// NewMachine builds a state machine with the given thresholds. Zero-value
// fields fall back to the defaults.
func NewMachine(cfg Config) *Machine {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = DefaultMinConfidence
	}
	if cfg.MinAreaHa <= 0 {
		cfg.MinAreaHa = DefaultMinAreaHa
	}
	if cfg.GrowthAbsHa <= 0 {
		cfg.GrowthAbsHa = DefaultGrowthAbsHa
	}
	if cfg.GrowthRatio <= 0 {
		cfg.GrowthRatio = DefaultGrowthRatio
	}
	if cfg.Bands == (SeverityBands{}) {
		cfg.Bands = DefaultSeverityBands()
	}
	return &Machine{cfg: cfg}
}

// Evaluate applies a reading against the pair's latest event and returns
// the event to append, or nil when no transition occurs. latest must be
// the most recent event for the reading's (area, zone) pair, or nil when
// the pair has no history. Readings older than the latest event are
// rejected so the log stays in timestamp order.
func (m *Machine) Evaluate(latest *Event, r Reading) (*Event, error) {
	if latest != nil && r.Timestamp.Before(latest.DetectedAt) {
		return nil, errors.ErrOutOfOrderTimestamp.WithDetails(map[string]interface{}{
			"reading_at": r.Timestamp,
			"latest_at":  latest.DetectedAt,
		})
	}

	// Advisory readings carry too little confidence to open, escalate,
	// or resolve anything.
	if r.Confidence < m.cfg.MinConfidence {
		return nil, nil
	}

	if !latest.Open() {
		if r.AreaHa <= m.cfg.MinAreaHa {
			return nil, nil
		}
		return m.newEvent(EventStart, r), nil
	}

	if r.AreaHa <= m.cfg.MinAreaHa {
		ev := m.newEvent(EventResolved, r)
		ev.Resolved = true
		ts := r.Timestamp
		ev.ResolvedAt = &ts
		return ev, nil
	}

	growth := r.AreaHa - latest.AreaHa
	if growth > m.cfg.GrowthAbsHa ||
		(latest.AreaHa > 0 && growth/latest.AreaHa > m.cfg.GrowthRatio) {
		return m.newEvent(EventEscalation, r), nil
	}

	return nil, nil
}

func (m *Machine) newEvent(kind EventKind, r Reading) *Event {
	now := time.Now()
	return &Event{
		ID:         uuid.New(),
		AreaID:     r.AreaID,
		ZoneID:     r.ZoneID,
		Kind:       kind,
		DetectedAt: r.Timestamp,
		AreaHa:     r.AreaHa,
		Severity:   m.cfg.Bands.SeverityFor(r.AreaHa),
		Confidence: r.Confidence,
		CreatedAt:  now,
	}
}
