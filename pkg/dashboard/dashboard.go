package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/cyrilix/robocar-arcourse/pkg/vehicle"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	mtState = "state"

	writeWait = 2 * time.Second
)

type Message struct {
	MessageType string `json:"type"`
	Body        any    `json:"body,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func New(address string) *Server {
	s := Server{
		clients: make(map[*client]struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	s.srv = &http.Server{Addr: address, Handler: mux}
	return &s
}

/* Server streams the car state to web dashboards */
type Server struct {
	srv *http.Server

	muClients sync.Mutex
	clients   map[*client]struct{}

	muLast sync.Mutex
	last   []byte
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

func (s *Server) ListenAndServe() error {
	zap.S().Infof("dashboard listening on %v", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.muClients.Lock()
	for c := range s.clients {
		_ = c.conn.Close()
	}
	s.muClients.Unlock()
	return s.srv.Shutdown(ctx)
}

// PublishSnapshot is called from the simulation goroutine, slow clients miss updates
func (s *Server) PublishSnapshot(snapshot vehicle.Snapshot) {
	payload, err := json.Marshal(Message{MessageType: mtState, Body: snapshot})
	if err != nil {
		zap.S().Errorf("unable to marshal snapshot: %v", err)
		return
	}
	s.muLast.Lock()
	s.last = payload
	s.muLast.Unlock()

	s.muClients.Lock()
	defer s.muClients.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorf("unable to upgrade dashboard connection: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16)}

	s.muLast.Lock()
	if s.last != nil {
		c.send <- s.last
	}
	s.muLast.Unlock()

	s.muClients.Lock()
	s.clients[c] = struct{}{}
	s.muClients.Unlock()
	zap.S().Debugf("dashboard client connected from %v", r.RemoteAddr)

	go s.readLoop(c)
	s.writeLoop(c)
}

// readLoop only detects the client going away
func (s *Server) readLoop(c *client) {
	defer s.remove(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(c *client) {
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			zap.S().Debugf("dashboard write failed: %v", err)
			s.remove(c)
			return
		}
	}
}

func (s *Server) remove(c *client) {
	s.muClients.Lock()
	defer s.muClients.Unlock()
	if _, ok := s.clients[c]; !ok {
		return
	}
	delete(s.clients, c)
	close(c.send)
	_ = c.conn.Close()
}
