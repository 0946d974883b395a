package events

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// AlertSink is one delivery channel for violation alerts.
type AlertSink interface {
	Publish(ctx context.Context, alert violation.Alert) error
}

// FanoutPublisher delivers each alert to every configured sink. Delivery is
// best effort per sink: one channel failing does not stop the others, and
// the first error is returned for the caller's log.
type FanoutPublisher struct {
	sinks  []AlertSink
	logger *zap.Logger
}

// NewFanoutPublisher creates a publisher over the given sinks.
func NewFanoutPublisher(logger *zap.Logger, sinks ...AlertSink) *FanoutPublisher {
	return &FanoutPublisher{sinks: sinks, logger: logger}
}

// Publish sends one alert to all sinks.
func (p *FanoutPublisher) Publish(ctx context.Context, alert violation.Alert) error {
	var firstErr error
	for _, sink := range p.sinks {
		if err := sink.Publish(ctx, alert); err != nil {
			p.logger.Warn("alert sink delivery failed",
				zap.String("area_id", alert.AreaID.String()),
				zap.String("zone_id", alert.ZoneID.String()),
				zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Subscription restricts which alerts a sink receives. The zero value
// matches everything; a non-empty Areas list matches only those areas, and
// MinSeverity drops alerts classified below it.
type Subscription struct {
	Areas       []uuid.UUID
	MinSeverity violation.Severity
}

// Matches reports whether the alert passes the subscription's filters.
func (s Subscription) Matches(alert violation.Alert) bool {
	if sev, err := violation.ParseSeverity(alert.Severity); err == nil && sev < s.MinSeverity {
		return false
	}
	if len(s.Areas) == 0 {
		return true
	}
	for _, id := range s.Areas {
		if id == alert.AreaID {
			return true
		}
	}
	return false
}

// FilteredSink wraps a sink with a subscription, silently dropping alerts
// the subscription does not match.
type FilteredSink struct {
	Sink AlertSink
	Sub  Subscription
}

// Publish forwards the alert when the subscription matches it.
func (f FilteredSink) Publish(ctx context.Context, alert violation.Alert) error {
	if !f.Sub.Matches(alert) {
		return nil
	}
	return f.Sink.Publish(ctx, alert)
}

// HubSink adapts the WebSocket hub to the sink interface.
type HubSink struct {
	Hub *AlertHub
}

// Publish broadcasts the alert to hub subscribers.
func (s HubSink) Publish(ctx context.Context, alert violation.Alert) error {
	return s.Hub.Broadcast(ctx, alert)
}
