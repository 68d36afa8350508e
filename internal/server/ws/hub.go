// Package ws bridges the engine's signal bus to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/causeway-labs/causeway/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// defaultChannels are the signal bus channels the hub subscribes to:
// event lifecycle, clause escrow activity, oracle phase changes, and batch
// execution summaries. New sessions start subscribed to all of them.
var defaultChannels = []string{
	"ch:event",
	"ch:clause",
	"ch:oracle",
	"ch:batch",
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin filtering happens in the CORS middleware in front of /ws.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// signal is a bus message tagged with the channel it arrived on, so fanout
// can skip sessions that opted out of that channel.
type signal struct {
	channel string
	data    []byte
}

// session is one connected WebSocket client and its channel subscriptions.
type session struct {
	hub      *Hub
	conn     *websocket.Conn
	outbox   chan []byte
	mu       sync.RWMutex
	channels map[string]bool
}

// Config carries the runtime metadata reported in the status frame sent to
// every session on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
}

// Hub fans engine signals out from the bus to every subscribed session.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[*session]struct{}

	fanout chan signal
	joins  chan *session
	leaves chan *session

	mode      string
	startedAt time.Time
}

// NewHub creates a hub over the given signal bus.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	mode := strings.TrimSpace(strings.ToLower(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	startedAt := cfg.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}

	return &Hub{
		bus:       bus,
		logger:    logger,
		sessions:  make(map[*session]struct{}),
		fanout:    make(chan signal, 256),
		joins:     make(chan *session),
		leaves:    make(chan *session),
		mode:      mode,
		startedAt: startedAt,
	}
}

// Run drives the hub until ctx is cancelled: bus subscriptions feed fanout,
// and joins/leaves maintain the session set. Call it in a goroutine.
func (h *Hub) Run(ctx context.Context) error {
	for _, ch := range defaultChannels {
		go h.pipe(ctx, ch)
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for s := range h.sessions {
				close(s.outbox)
				delete(h.sessions, s)
			}
			h.mu.Unlock()
			return ctx.Err()

		case s := <-h.joins:
			h.mu.Lock()
			h.sessions[s] = struct{}{}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case s := <-h.leaves:
			h.mu.Lock()
			if _, ok := h.sessions[s]; ok {
				delete(h.sessions, s)
				close(s.outbox)
			}
			n := len(h.sessions)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case sig := <-h.fanout:
			h.mu.RLock()
			for s := range h.sessions {
				if !s.wants(sig.channel) {
					continue
				}
				select {
				case s.outbox <- sig.data:
				default:
					// Slow consumer; drop rather than stall the loop.
					h.logger.Warn("ws: dropping message for slow client")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// pipe forwards one bus channel into the fanout loop until the subscription
// closes or ctx ends.
func (h *Hub) pipe(ctx context.Context, channel string) {
	msgs, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("ws: bus subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Info("ws: subscribed to channel", slog.String("channel", channel))

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: bus subscription closed", slog.String("channel", channel))
				return
			}
			h.fanout <- signal{channel: channel, data: data}
		}
	}
}

// HandleWS upgrades the request and attaches the session to the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	s := &session{
		hub:      h,
		conn:     conn,
		outbox:   make(chan []byte, sendBuffer),
		channels: make(map[string]bool, len(defaultChannels)),
	}
	for _, ch := range defaultChannels {
		s.channels[ch] = true
	}

	h.joins <- s
	s.greet()

	go s.writeLoop()
	go s.readLoop()
}

// subscribeMsg is the JSON a session sends to adjust its channel set:
//
//	{"action":"subscribe","channels":["ch:oracle"]}
//	{"action":"unsubscribe","channels":["ch:*"]}
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// readLoop consumes inbound frames, honoring subscription requests and
// tearing the session down on any read error.
func (s *session) readLoop() {
	defer func() {
		s.hub.leaves <- s
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.hub.logger.Warn("ws: unexpected close", slog.String("error", err.Error()))
			}
			return
		}

		var req subscribeMsg
		if err := json.Unmarshal(frame, &req); err != nil || req.Action == "" {
			continue
		}

		s.mu.Lock()
		for _, ch := range req.Channels {
			switch req.Action {
			case "subscribe":
				s.channels[ch] = true
			case "unsubscribe":
				delete(s.channels, ch)
			}
		}
		s.mu.Unlock()
	}
}

// writeLoop drains the outbox onto the wire and keeps the connection alive
// with periodic pings. All payloads are JSON, hence text frames.
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.outbox:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// greet queues the status frame so clients can mark the connection healthy
// before any engine signal flows.
func (s *session) greet() {
	uptime := int64(time.Since(s.hub.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	frame, err := json.Marshal(map[string]any{
		"type": "engine_status",
		"payload": map[string]any{
			"mode":           s.hub.mode,
			"ws_connected":   true,
			"uptime_seconds": uptime,
		},
	})
	if err != nil {
		return
	}

	select {
	case s.outbox <- frame:
	default:
	}
}

// wants reports whether the session subscribed to channel, either exactly
// or through a trailing-star pattern like "ch:*".
func (s *session) wants(channel string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.channels[channel] {
		return true
	}
	for pattern := range s.channels {
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(channel, prefix) {
			return true
		}
	}
	return false
}
