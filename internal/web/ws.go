package web

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/roman-kulish/ismscope/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// clients only send control frames
	maxClientMessage = 512
)

// Message types pushed to WebSocket clients
const (
	MessageHello    = "hello"
	MessageSnapshot = "snapshot"
)

// Message is the envelope of everything written to a WebSocket client.
type Message struct {
	Type     string            `json:"type"`
	ClientID string            `json:"clientId,omitempty"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
}

type client struct {
	id   string
	conn *websocket.Conn

	done      chan struct{}
	closeOnce sync.Once
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		done: make(chan struct{}),
	}

	s.register(cl)
	defer s.unregister(cl)

	updates, unsubscribe := s.controller.Subscribe()
	defer unsubscribe()

	go s.readPump(cl)
	s.writePump(cl, updates)
}

func (s *Server) register(cl *client) {
	s.clientsMu.Lock()
	s.clients[cl.id] = cl
	n := len(s.clients)
	s.clientsMu.Unlock()

	if s.metrics != nil {
		s.metrics.ClientConnected()
	}
	s.logger.Info("websocket client connected",
		slog.String("clientID", cl.id),
		slog.String("remote", cl.conn.RemoteAddr().String()),
		slog.Int("clients", n),
	)
}

func (s *Server) unregister(cl *client) {
	cl.close()

	s.clientsMu.Lock()
	_, ok := s.clients[cl.id]
	delete(s.clients, cl.id)
	n := len(s.clients)
	s.clientsMu.Unlock()

	if !ok {
		return
	}

	if s.metrics != nil {
		s.metrics.ClientDisconnected()
	}
	s.logger.Info("websocket client disconnected", slog.String("clientID", cl.id), slog.Int("clients", n))
}

// closeClients sends a close frame to every client and drops the connections.
func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for _, cl := range s.clients {
		clients = append(clients, cl)
	}
	s.clientsMu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for _, cl := range clients {
		_ = cl.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		cl.close()
	}
}

// readPump drains incoming frames so pings, pongs and close frames get
// handled. The client is closed when the connection fails.
func (s *Server) readPump(cl *client) {
	defer cl.close()

	cl.conn.SetReadLimit(maxClientMessage)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", slog.String("clientID", cl.id), slog.String("error", err.Error()))
			}
			return
		}
	}
}

// writePump is the only writer of data frames on the connection.
func (s *Server) writePump(cl *client, updates <-chan session.Snapshot) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	snap := s.controller.Snapshot()
	if s.send(cl, Message{Type: MessageHello, ClientID: cl.id, Snapshot: &snap}) != nil {
		return
	}

	for {
		select {
		case <-cl.done:
			return

		case snap, ok := <-updates:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "controller closed")
				_ = cl.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
				return
			}
			if s.send(cl, Message{Type: MessageSnapshot, Snapshot: &snap}) != nil {
				return
			}

		case <-ticker.C:
			if err := cl.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (s *Server) send(cl *client, msg Message) error {
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cl.conn.WriteJSON(msg); err != nil {
		s.logger.Debug("websocket write failed", slog.String("clientID", cl.id), slog.String("error", err.Error()))
		return err
	}

	if s.metrics != nil {
		s.metrics.MessageSent()
	}
	return nil
}

// Clients returns the number of connected WebSocket clients
func (s *Server) Clients() int {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	return len(s.clients)
}
