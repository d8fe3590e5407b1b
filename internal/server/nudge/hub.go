// Package nudge tells the other devices of a family that new changes exist.
//
// A nudge carries no data. It is only a hint for the client to run a sync
// cycle; a device that misses one catches up on its next timer or
// connectivity trigger.
package nudge

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iudanet/famsync/internal/metrics"
	"github.com/iudanet/famsync/internal/server/handlers"
	"github.com/iudanet/famsync/pkg/api"
)

// Config controls the websocket side of the hub.
type Config struct {
	PingInterval time.Duration
	PongWait     time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 2 * c.PingInterval
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 8
	}
	return c
}

// subscriber is one open device connection.
type subscriber struct {
	send     chan api.Nudge
	deviceID string
}

// Hub tracks nudge connections per family and delivers nudges to them.
type Hub struct {
	logger   *slog.Logger
	families map[string]map[*subscriber]struct{}
	closed   chan struct{}
	upgrader websocket.Upgrader
	cfg      Config
	count    int
	mu       sync.RWMutex
	once     sync.Once
}

// NewHub creates an empty hub.
func NewHub(cfg Config, logger *slog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		families: make(map[string]map[*subscriber]struct{}),
		closed:   make(chan struct{}),
		cfg:      cfg.withDefaults(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
		},
	}
}

// Publish delivers n to the local subscribers of its family.
func (h *Hub) Publish(ctx context.Context, n api.Nudge) error {
	h.Broadcast(n)
	return nil
}

// Broadcast delivers n to every connection of the family except the origin
// device and returns the number of connections reached. A subscriber with a
// full buffer already has a nudge pending and is skipped.
func (h *Hub) Broadcast(n api.Nudge) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for sub := range h.families[n.FamilyID] {
		if sub.deviceID == n.DeviceID {
			continue
		}
		select {
		case sub.send <- n:
			sent++
		default:
		}
	}
	return sent
}

// Subscribers returns the number of open connections.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Close disconnects every subscriber with a going-away close frame.
func (h *Hub) Close() {
	h.once.Do(func() {
		close(h.closed)
	})
}

// ServeHTTP upgrades GET /api/v1/nudge. AuthMiddleware must run first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, ok := handlers.GetClaims(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrader уже ответил клиенту
		h.logger.Warn("Nudge upgrade failed", "error", err, "device_id", claims.DeviceID)
		return
	}

	sub := &subscriber{
		send:     make(chan api.Nudge, h.cfg.SendBuffer),
		deviceID: claims.DeviceID,
	}
	h.register(claims.FamilyID, sub)
	defer h.unregister(claims.FamilyID, sub)

	h.logger.Info("Nudge subscriber connected",
		"family_id", claims.FamilyID,
		"device_id", claims.DeviceID)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.readLoop(conn)
	}()

	h.writeLoop(conn, sub, done)
	_ = conn.Close()
	<-done

	h.logger.Info("Nudge subscriber disconnected", "device_id", claims.DeviceID)
}

// readLoop only watches for pongs and the close frame; clients send nothing else.
func (h *Hub) readLoop(conn *websocket.Conn) {
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(conn *websocket.Conn, sub *subscriber, done <-chan struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case <-h.closed:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(h.cfg.WriteTimeout))
			return

		case n := <-sub.send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
			if err := conn.WriteJSON(n); err != nil {
				h.logger.Debug("Nudge write failed", "error", err, "device_id", sub.deviceID)
				return
			}
			metrics.ObserveNudges(1)

		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(familyID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.families[familyID] == nil {
		h.families[familyID] = make(map[*subscriber]struct{})
	}
	h.families[familyID][sub] = struct{}{}
	h.count++
	metrics.SetNudgeSubscribers(h.count)
}

func (h *Hub) unregister(familyID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.families[familyID]
	if _, ok := subs[sub]; !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.families, familyID)
	}
	h.count--
	metrics.SetNudgeSubscribers(h.count)
}
