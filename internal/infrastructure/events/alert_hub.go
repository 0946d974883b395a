package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/terrawatch/excavation-monitor-backend/internal/domain/violation"
)

// AlertHub fans violation alerts out to WebSocket subscribers. Clients
// subscribe to specific monitored areas or, by default, to everything.
type AlertHub struct {
	logger      *zap.Logger
	connections map[string]*AlertConnection
	connMu      sync.RWMutex

	config HubConfig

	healthCheck *HealthChecker
}

// AlertConnection represents one WebSocket subscriber.
type AlertConnection struct {
	ID       string
	Conn     *websocket.Conn
	Send     chan []byte
	LastPing time.Time

	mu sync.Mutex
	// nil means all areas
	areas map[uuid.UUID]bool
}

// HubConfig configures the alert hub.
type HubConfig struct {
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64
	SendBufferSize int
}

// DefaultHubConfig returns default hub configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:   10 * time.Second,
		PingInterval:   30 * time.Second,
		PongTimeout:    60 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBufferSize: 256,
	}
}

// AlertMessage is the frame sent to subscribers.
type AlertMessage struct {
	Type      string           `json:"type"`
	Alert     *violation.Alert `json:"alert,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewAlertHub creates a hub and starts its stale-connection sweeper.
func NewAlertHub(logger *zap.Logger, config HubConfig) *AlertHub {
	hub := &AlertHub{
		logger:      logger,
		connections: make(map[string]*AlertConnection),
		config:      config,
		healthCheck: NewHealthChecker(5 * time.Minute),
	}

	go hub.connectionManager()

	return hub
}

// Broadcast queues an alert to every subscriber of its area.
func (h *AlertHub) Broadcast(ctx context.Context, alert violation.Alert) error {
	message := AlertMessage{
		Type:      "violation_alert",
		Alert:     &alert,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	h.connMu.RLock()
	defer h.connMu.RUnlock()

	var sendErrors int
	for id, conn := range h.connections {
		if !conn.subscribedTo(alert.AreaID) {
			continue
		}

		select {
		case conn.Send <- data:
			// queued
		case <-time.After(h.config.WriteTimeout):
			sendErrors++
			h.logger.Warn("alert send timed out",
				zap.String("connection_id", id),
				zap.String("area_id", alert.AreaID.String()))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if sendErrors > 0 {
		h.healthCheck.RecordFailure()
		return fmt.Errorf("failed to deliver alert to %d subscribers", sendErrors)
	}

	h.healthCheck.RecordSuccess()
	return nil
}

// IsHealthy checks if the hub is healthy.
func (h *AlertHub) IsHealthy() bool {
	return h.healthCheck.IsHealthy()
}

// Close shuts down every connection.
func (h *AlertHub) Close() error {
	h.logger.Info("closing alert hub")

	h.connMu.Lock()
	defer h.connMu.Unlock()

	for id, conn := range h.connections {
		close(conn.Send)
		conn.Conn.Close()
		delete(h.connections, id)
	}

	return nil
}

// AddConnection registers a new subscriber and starts its pumps.
func (h *AlertHub) AddConnection(id string, conn *websocket.Conn) {
	c := &AlertConnection{
		ID:       id,
		Conn:     conn,
		Send:     make(chan []byte, h.config.SendBufferSize),
		LastPing: time.Now(),
	}

	h.connMu.Lock()
	h.connections[id] = c
	h.connMu.Unlock()

	go h.writePump(c)
	go h.readPump(c)

	h.logger.Info("alert subscriber connected", zap.String("connection_id", id))
}

// RemoveConnection unregisters a subscriber.
func (h *AlertHub) RemoveConnection(id string) {
	h.connMu.Lock()
	conn, exists := h.connections[id]
	if exists {
		close(conn.Send)
		delete(h.connections, id)
	}
	h.connMu.Unlock()

	if exists {
		h.logger.Info("alert subscriber disconnected", zap.String("connection_id", id))
	}
}

// ConnectionCount returns the number of active subscribers.
func (h *AlertHub) ConnectionCount() int {
	h.connMu.RLock()
	defer h.connMu.RUnlock()
	return len(h.connections)
}

func (c *AlertConnection) subscribedTo(areaID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.areas == nil {
		return true
	}
	return c.areas[areaID]
}

func (c *AlertConnection) setAreas(areaIDs []uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(areaIDs) == 0 {
		c.areas = nil
		return
	}
	c.areas = make(map[uuid.UUID]bool, len(areaIDs))
	for _, id := range areaIDs {
		c.areas[id] = true
	}
}

func (h *AlertHub) writePump(conn *AlertConnection) {
	ticker := time.NewTicker(h.config.PingInterval)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
		h.RemoveConnection(conn.ID)
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))

			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Error("websocket write error",
					zap.Error(err),
					zap.String("connection_id", conn.ID))
				return
			}

			// Drain queued messages in the same wake-up
			n := len(conn.Send)
			for i := 0; i < n; i++ {
				if err := conn.Conn.WriteMessage(websocket.TextMessage, <-conn.Send); err != nil {
					return
				}
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *AlertHub) readPump(conn *AlertConnection) {
	defer func() {
		conn.Conn.Close()
		h.RemoveConnection(conn.ID)
	}()

	conn.Conn.SetReadLimit(h.config.MaxMessageSize)
	conn.Conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
	conn.Conn.SetPongHandler(func(string) error {
		conn.LastPing = time.Now()
		conn.Conn.SetReadDeadline(time.Now().Add(h.config.PongTimeout))
		return nil
	})

	for {
		messageType, message, err := conn.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("websocket read error",
					zap.Error(err),
					zap.String("connection_id", conn.ID))
			}
			break
		}

		if messageType == websocket.TextMessage {
			h.handleClientMessage(conn, message)
		}
	}
}

type clientMessage struct {
	Type    string   `json:"type"`
	AreaIDs []string `json:"area_ids,omitempty"`
}

func (h *AlertHub) handleClientMessage(conn *AlertConnection, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		h.logger.Warn("invalid client message",
			zap.Error(err),
			zap.String("connection_id", conn.ID))
		return
	}

	switch msg.Type {
	case "ping":
		pong := AlertMessage{Type: "pong", Timestamp: time.Now()}
		if data, err := json.Marshal(pong); err == nil {
			select {
			case conn.Send <- data:
			default:
				// send buffer full, skip pong
			}
		}

	case "subscribe":
		var areaIDs []uuid.UUID
		for _, raw := range msg.AreaIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				h.logger.Warn("ignoring invalid area id in subscription",
					zap.String("area_id", raw),
					zap.String("connection_id", conn.ID))
				continue
			}
			areaIDs = append(areaIDs, id)
		}
		conn.setAreas(areaIDs)
		h.logger.Debug("subscription updated",
			zap.String("connection_id", conn.ID),
			zap.Int("area_count", len(areaIDs)))

	default:
		h.logger.Debug("unknown message type",
			zap.String("type", msg.Type),
			zap.String("connection_id", conn.ID))
	}
}

func (h *AlertHub) connectionManager() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		h.cleanupStaleConnections()
	}
}

func (h *AlertHub) cleanupStaleConnections() {
	h.connMu.Lock()
	defer h.connMu.Unlock()

	now := time.Now()
	staleTimeout := 2 * h.config.PongTimeout

	for id, conn := range h.connections {
		if now.Sub(conn.LastPing) > staleTimeout {
			h.logger.Warn("removing stale connection",
				zap.String("connection_id", id),
				zap.Duration("last_ping_ago", now.Sub(conn.LastPing)))

			close(conn.Send)
			conn.Conn.Close()
			delete(h.connections, id)
		}
	}
}

// HealthChecker tracks delivery health over a trailing window.
type HealthChecker struct {
	lastSuccess   time.Time
	lastFailure   time.Time
	failureCount  int
	mu            sync.RWMutex
	healthTimeout time.Duration
}

func NewHealthChecker(timeout time.Duration) *HealthChecker {
	return &HealthChecker{
		healthTimeout: timeout,
		lastSuccess:   time.Now(),
	}
}

func (h *HealthChecker) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastSuccess = time.Now()
	h.failureCount = 0
}

func (h *HealthChecker) RecordFailure() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastFailure = time.Now()
	h.failureCount++
}

func (h *HealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return time.Since(h.lastSuccess) < h.healthTimeout
}
