// Package dialoguetest runs an in-process stand-in for the dialogue
// service's bidirectional WebSocket endpoint.
package dialoguetest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Request captures what a client sent when it connected.
type Request struct {
	Path   string
	Header http.Header
}

// Server accepts dialogue connections and records every text frame.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	conns    chan *Conn
	requests chan Request
	accepted atomic.Int32
}

func NewServer() *Server {
	s := &Server{
		conns:    make(chan *Conn, 16),
		requests: make(chan Request, 16),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// BaseURL is the value to configure as the dialogue endpoint base.
func (s *Server) BaseURL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/locations"
}

// Connections counts accepted WebSocket upgrades.
func (s *Server) Connections() int {
	return int(s.accepted.Load())
}

func (s *Server) Close() {
	s.srv.Close()
}

// NextConn waits for the next accepted connection.
func (s *Server) NextConn(timeout time.Duration) (*Conn, Request, bool) {
	select {
	case c := <-s.conns:
		return c, <-s.requests, true
	case <-time.After(timeout):
		return nil, Request{}, false
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.accepted.Add(1)
	c := &Conn{ws: ws, frames: make(chan []byte, 1024), done: make(chan struct{})}
	go c.readLoop()
	s.requests <- Request{Path: r.URL.Path, Header: r.Header.Clone()}
	s.conns <- c
}

// Conn is the server end of one dialogue session.
type Conn struct {
	ws     *websocket.Conn
	mu     sync.Mutex
	frames chan []byte
	done   chan struct{}
}

// Frame waits for the next text frame from the client.
func (c *Conn) Frame(timeout time.Duration) ([]byte, bool) {
	select {
	case f := <-c.frames:
		return f, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Done is closed once the client side has gone away.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

func (c *Conn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(v)
}

func (c *Conn) SendRaw(raw string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(raw))
}

// Close performs an orderly close from the server side.
func (c *Conn) Close() error {
	c.mu.Lock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.mu.Unlock()
	return c.ws.Close()
}

func (c *Conn) readLoop() {
	defer close(c.done)
	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if mt == websocket.TextMessage {
			select {
			case c.frames <- data:
			default:
			}
		}
	}
}
