// Package server implements the per-connection control flow: classify the
// first frame as a create or join, replay history to joiners, then relay
// talk requests into the room until the peer disconnects.
package server

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// chatNotFoundMessage is sent on a join attempt with an unknown key.
const chatNotFoundMessage = "chat not found"

var (
	errNotInit         = errors.New("first frame is not an init request")
	errShutdownTimeout = errors.New("shutdown timed out")
)

// Handler upgrades HTTP requests to chat connections and drives each one
// through the init/relay protocol. It owns the set of live clients so a
// process shutdown can close them all; room membership lives in the rooms
// themselves.
type Handler struct {
	cfg      *Config
	registry *Registry
	logger   *zap.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
	wg      sync.WaitGroup
}

// NewHandler wires a connection handler to its registry. The registry is
// injected rather than shared through package state so tests and the main
// binary control its lifecycle explicitly.
func NewHandler(cfg *Config, registry *Registry, logger *zap.Logger, metrics *Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	h := &Handler{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		metrics:  metrics,
		clients:  make(map[*Client]struct{}),
	}

	policy := newOriginPolicy(cfg.AllowedOrigins, logger)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.check,
	}
	return h
}

// ServeWS handles WebSocket upgrade requests on the chat endpoint. The
// handler goroutine doubles as the connection's read loop; the write pump
// runs alongside it until the connection closes.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}

	client := NewClient(conn, h.logger)
	conn.SetReadLimit(h.cfg.MaxMessageSize)

	h.track(client)
	if h.metrics != nil {
		h.metrics.ActiveConnections.Inc()
	}
	defer func() {
		client.Close()
		h.untrack(client)
		if h.metrics != nil {
			h.metrics.ActiveConnections.Dec()
		}
	}()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		client.writePump(h.cfg.PingInterval, h.cfg.WriteWait)
	}()

	h.logger.Info("connection opened",
		zap.String("conn", client.ID()),
		zap.String("remote", r.RemoteAddr))

	h.serve(client)

	h.logger.Info("connection closed", zap.String("conn", client.ID()))
}

// serve reads the mandatory init frame and dispatches to the create or join
// path. A malformed or missing init is a protocol violation: the connection
// is dropped without an error event.
func (h *Handler) serve(c *Client) {
	req, err := h.readInit(c)
	if err != nil {
		h.logger.Warn("protocol violation in init",
			zap.String("conn", c.ID()),
			zap.Error(err))
		return
	}

	if req.JoinKey != nil {
		h.join(c, *req.JoinKey)
		return
	}
	h.create(c)
}

// readInit reads exactly one frame under the handshake deadline and requires
// it to be an init request.
func (h *Handler) readInit(c *Client) (Request, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(h.cfg.HandshakeTimeout)); err != nil {
		return Request{}, err
	}

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Request{}, err
	}

	req, err := decodeRequest(data)
	if err != nil {
		return Request{}, err
	}
	if req.Type != EventInit {
		return Request{}, errNotInit
	}
	return req, nil
}

// create registers a fresh room keyed by a new secret and relays for the
// creating connection. The room's lifetime is bound to this connection: when
// it closes, for any reason, the key is removed from the registry even if
// other members are still connected. Remaining members keep talking on the
// orphaned room, but nobody else can join it.
func (h *Handler) create(c *Client) {
	key, room := h.registry.Create()
	defer h.registry.Destroy(key)

	userID := room.AddMember(c)
	defer room.RemoveMember(c)

	h.logger.Info("room created",
		zap.String("conn", c.ID()),
		zap.Int("userId", userID))

	if err := c.deliver(encodeInitAck(key, userID), h.cfg.WriteWait); err != nil {
		return
	}

	h.relay(c, room, userID)
}

// join subscribes the connection to an existing room, replays the history
// snapshot, then relays. An unknown key yields an error event and a clean
// end; the failed join mutates nothing.
func (h *Handler) join(c *Client, key string) {
	room, ok := h.registry.Lookup(key)
	if !ok {
		_ = c.deliver(encodeError(chatNotFoundMessage), h.cfg.WriteWait)
		h.logger.Info("join rejected, unknown key", zap.String("conn", c.ID()))
		return
	}

	userID, history := room.Join(c)
	defer room.RemoveMember(c)

	h.logger.Info("member joined",
		zap.String("conn", c.ID()),
		zap.Int("userId", userID))

	if err := c.deliver(encodeInitAck(key, userID), h.cfg.WriteWait); err != nil {
		return
	}

	if err := h.replay(c, history); err != nil {
		return
	}

	h.relay(c, room, userID)
}

// replay sends a history snapshot to a new joiner as talk events in stored
// order. The snapshot boundary was pinned by Join: a message posted while
// the replay is in flight reaches the joiner through the live broadcast
// path instead, possibly out of order relative to the replay, but exactly
// once.
func (h *Handler) replay(c *Client, history []Message) error {
	for _, msg := range history {
		if err := c.deliver(encodeTalk(msg), h.cfg.WriteWait); err != nil {
			return err
		}
		if h.metrics != nil {
			h.metrics.MessagesReplayed.Inc()
		}
	}
	return nil
}

// relay consumes inbound frames until the connection ends. Talk requests are
// appended to the room under the connection-bound userID (any userId the
// client asserts is ignored) and broadcast to every member, including the
// sender. Unknown request types are silently ignored. An append failure is
// reported privately to the sender and the loop continues.
func (h *Handler) relay(c *Client, room *Room, userID int) {
	h.setupReadDeadlines(c)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !isExpectedCloseError(err) {
				h.logger.Warn("read error", zap.String("conn", c.ID()), zap.Error(err))
			}
			return
		}

		req, err := decodeRequest(data)
		if err != nil {
			h.logger.Warn("discarding malformed frame", zap.String("conn", c.ID()), zap.Error(err))
			continue
		}
		if req.Type != EventTalk {
			continue
		}

		if _, err := room.Post(req.Payload, userID); err != nil {
			_ = c.deliver(encodeError(err.Error()), h.cfg.WriteWait)
			continue
		}
		if h.metrics != nil {
			h.metrics.MessagesRelayed.Inc()
		}
	}
}

// setupReadDeadlines arms the idle timeout and resets it on every pong, so
// a silent peer is eventually detected through the ping/pong exchange.
func (h *Handler) setupReadDeadlines(c *Client) {
	if err := c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait)); err != nil {
		h.logger.Debug("setting read deadline", zap.String("conn", c.ID()), zap.Error(err))
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})
}

func (h *Handler) track(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

// ClientCount reports the number of live connections.
func (h *Handler) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown closes every live connection and waits for their write pumps to
// finish, up to timeout. Each connection's deferred cleanup still runs:
// joiners leave their rooms and creators take their rooms with them.
func (h *Handler) Shutdown(timeout time.Duration) error {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close()
	}
	h.logger.Info("closed client connections", zap.Int("count", len(clients)))

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		h.logger.Warn("shutdown timeout reached, some connections may still be draining")
		return errShutdownTimeout
	}
}
