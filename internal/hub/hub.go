// Package hub fans simulation frames out to websocket clients and applies the
// controls they send back.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"outbreak/internal/session"
	"outbreak/internal/sim"
	"outbreak/internal/wire"
)

const writeWait = time.Second

// Hub tracks connected clients. All writes happen under mu, which keeps
// gorilla's one-writer-per-connection rule.
type Hub struct {
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger: logger,
	}
}

func (h *Hub) add(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[conn] = struct{}{}
	h.logger.Info("client connected", "remote", conn.RemoteAddr().String(), "clients", len(h.clients))
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		h.logger.Info("client disconnected", "remote", conn.RemoteAddr().String(), "clients", len(h.clients))
	}
	conn.Close()
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast encodes f once and writes it to every client. Clients that fail
// the write are dropped.
func (h *Hub) Broadcast(f wire.Frame) {
	payload := wire.MarshalFrame(f)

	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		if err := h.write(conn, payload); err != nil {
			h.logger.Warn("failed to write to client", "remote", conn.RemoteAddr().String(), "err", err)
			conn.Close()
			delete(h.clients, conn)
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.BinaryMessage, payload)
}

// Handler upgrades the request, sends the current frame and then serves
// control messages until the client goes away.
func (h *Hub) Handler(sess *session.Session) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "err", err)
			return
		}
		h.add(conn)
		defer h.remove(conn)

		// Send the current state immediately so the client can draw before
		// the next tick.
		h.mu.Lock()
		err = h.write(conn, wire.MarshalFrame(sess.Frame()))
		h.mu.Unlock()
		if err != nil {
			h.logger.Warn("failed to send initial frame", "err", err)
			return
		}

		for {
			kind, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					h.logger.Warn("control stream read error", "err", err)
				}
				return
			}
			if kind != websocket.BinaryMessage {
				h.logger.Warn("ignoring non-binary control message", "type", kind)
				continue
			}

			control, err := wire.UnmarshalControl(data)
			if err != nil {
				h.logger.Warn("unable to decode control message", "err", err)
				continue
			}
			h.apply(sess, control)
		}
	}
}

func (h *Hub) apply(sess *session.Session, c wire.Control) {
	switch c.Action {
	case wire.ActionNewSim:
		mode, err := sim.ParseMode(c.Mode)
		if err != nil {
			h.logger.Warn("rejected new simulation", "err", err)
			return
		}
		if err := sess.Reset(mode, c.Compliance); err != nil {
			h.logger.Warn("rejected new simulation", "err", err)
			return
		}
	case wire.ActionSetSpeed:
		applied := sess.SetSpeed(c.Speed)
		h.logger.Info("speed changed", "requested", c.Speed, "applied", applied)
	default:
		h.logger.Debug("ignoring control", "action", c.Action)
		return
	}
	// Everyone sees the change without waiting for the next tick.
	h.Broadcast(sess.Frame())
}
