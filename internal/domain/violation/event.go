package violation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity is the ordinal classification of a violation's extent.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ParseSeverity maps the stored text form back to a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch s {
	case "LOW":
		return SeverityLow, nil
	case "MEDIUM":
		return SeverityMedium, nil
	case "HIGH":
		return SeverityHigh, nil
	case "CRITICAL":
		return SeverityCritical, nil
	default:
		return SeverityLow, fmt.Errorf("unknown severity %q", s)
	}
}

// SeverityBands maps area-in-zone to severity. Bands are monotonic:
// area < LowMaxHa is LOW, then MEDIUM up to MediumMaxHa, HIGH up to
// HighMaxHa, CRITICAL above.
type SeverityBands struct {
	LowMaxHa    float64 `json:"low_max_ha"`
	MediumMaxHa float64 `json:"medium_max_ha"`
	HighMaxHa   float64 `json:"high_max_ha"`
}

// DefaultSeverityBands returns the default band edges.
func DefaultSeverityBands() SeverityBands {
	return SeverityBands{
		LowMaxHa:    0.05,
		MediumMaxHa: 0.5,
		HighMaxHa:   2.0,
	}
}

// SeverityFor classifies an area-in-zone against the bands. An area
// exactly on a band edge belongs to the band below it, so CRITICAL
// starts strictly above HighMaxHa.
func (b SeverityBands) SeverityFor(areaHa float64) Severity {
	switch {
	case areaHa > b.HighMaxHa:
		return SeverityCritical
	case areaHa > b.MediumMaxHa:
		return SeverityHigh
	case areaHa >= b.LowMaxHa:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// EventKind is a violation lifecycle transition.
type EventKind string

const (
	EventStart      EventKind = "START"
	EventEscalation EventKind = "ESCALATION"
	EventResolved   EventKind = "RESOLVED"
)

// Event is one entry of the append-only violation log for a (monitored
// area, no-go zone) pair. Past events are never mutated: each transition
// appends a new event, preserving the full audit history. A pair is open
// when its latest event kind is not RESOLVED.
type Event struct {
	ID         uuid.UUID              `json:"id"`
	AreaID     uuid.UUID              `json:"area_id"`
	ZoneID     uuid.UUID              `json:"zone_id"`
	Kind       EventKind              `json:"kind"`
	DetectedAt time.Time              `json:"detected_at"`
	AreaHa     float64                `json:"area_ha"`
	Severity   Severity               `json:"severity"`
	Confidence float64                `json:"confidence"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Open reports whether this event leaves the pair's violation open.
func (e *Event) Open() bool {
	return e != nil && e.Kind != EventResolved
}

// Alert is the payload handed to the real-time publish interface when a
// lifecycle transition occurs. The core does not manage subscribers or
// transport.
type Alert struct {
	Type       EventKind `json:"type"`
	Severity   string    `json:"severity"`
	AreaID     uuid.UUID `json:"area_id"`
	ZoneID     uuid.UUID `json:"zone_id"`
	AreaHa     float64   `json:"excavated_area_ha"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewAlert builds the delivery payload for a lifecycle event.
func NewAlert(e *Event) Alert {
	return Alert{
		Type:       e.Kind,
		Severity:   e.Severity.String(),
		AreaID:     e.AreaID,
		ZoneID:     e.ZoneID,
		AreaHa:     e.AreaHa,
		Confidence: e.Confidence,
		Timestamp:  e.DetectedAt,
	}
}
