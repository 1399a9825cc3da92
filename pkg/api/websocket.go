package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/llmos-bridge/bridge/pkg/events"
	"github.com/llmos-bridge/bridge/pkg/metrics"
)

// wsSendBuffer is the per-client event queue; a client that cannot keep
// up loses events rather than stalling the bus.
const wsSendBuffer = 64

const wsWriteTimeout = 5 * time.Second

// wsClient is one WebSocket subscriber with its topic subscriptions.
type wsClient struct {
	id     string
	conn   *websocket.Conn
	sendCh chan []byte
	subs   []*events.Subscription
	cancel context.CancelFunc
}

// wsHub tracks connected event-stream clients.
type wsHub struct {
	bus     events.Bus
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*wsClient
}

func newWSHub(bus events.Bus, m *metrics.Metrics, logger *slog.Logger) *wsHub {
	return &wsHub{
		bus:     bus,
		metrics: m,
		logger:  logger,
		clients: make(map[string]*wsClient),
	}
}

func (h *wsHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *wsHub) closeAll() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.cancel()
	}
}

// handleWS upgrades the connection and streams bus events matching the
// requested topic patterns, e.g. `?topics=plan.#,trigger.fired`.
func (s *Server) handleWS(c *gin.Context) {
	patterns := splitTopics(c.Query("topics"))

	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.deps.Config.Server.AllowedWSOrigins,
	})
	if err != nil {
		s.deps.Logger.Warn("WebSocket upgrade refused", "error", err)
		return
	}
	s.hub.serve(c.Request.Context(), conn, patterns)
}

func splitTopics(raw string) []string {
	if raw == "" {
		return []string{"#"}
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"#"}
	}
	return out
}

// serve blocks until the client disconnects.
func (h *wsHub) serve(parentCtx context.Context, conn *websocket.Conn, patterns []string) {
	ctx, cancel := context.WithCancel(parentCtx)
	client := &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		sendCh: make(chan []byte, wsSendBuffer),
		cancel: cancel,
	}

	for _, pattern := range patterns {
		sub, err := h.bus.Subscribe(pattern, func(e *events.UniversalEvent) {
			payload, err := json.Marshal(e)
			if err != nil {
				return
			}
			select {
			case client.sendCh <- payload:
			default:
				// Slow consumer: drop rather than block the bus.
				h.logger.Warn("Dropping event for slow WebSocket client",
					"connection_id", client.id, "topic", e.Topic)
			}
		})
		if err != nil {
			h.logger.Warn("Rejecting WebSocket subscription",
				"pattern", pattern, "error", err)
			_ = conn.Close(websocket.StatusPolicyViolation, "invalid topic pattern")
			cancel()
			return
		}
		client.subs = append(client.subs, sub)
	}

	h.register(client)
	defer h.unregister(client)

	h.sendJSON(client, map[string]any{
		"type":          "connection.established",
		"connection_id": client.id,
		"topics":        patterns,
	})

	go client.writeLoop(ctx)

	// Read loop: the stream is one-way, but reading surfaces closes and
	// answers control frames.
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}

func (h *wsHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.metrics.WSClientConnected(1)
	h.logger.Debug("WebSocket client connected", "connection_id", c.id)
}

func (h *wsHub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
	for _, sub := range c.subs {
		sub.Unsubscribe()
	}
	c.cancel()
	h.metrics.WSClientConnected(-1)
	h.logger.Debug("WebSocket client disconnected", "connection_id", c.id)
}

func (h *wsHub) sendJSON(c *wsClient, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.sendCh <- payload:
	default:
	}
}

func (c *wsClient) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case payload := <-c.sendCh:
			writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
			err := c.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				c.cancel()
				return
			}
		}
	}
}
