package audiohook

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/audiohook-bridge/internal/observability"
	"github.com/antoniostano/audiohook-bridge/internal/protocol"
)

const (
	peerLabel    = "telephony"
	writeTimeout = 5 * time.Second
)

// Conn serialises writes to the telephony WebSocket and owns the sequence
// numbers. Every control frame gets the next server sequence and echoes the
// last client sequence; audio frames carry neither.
type Conn struct {
	ws      *websocket.Conn
	metrics *observability.Metrics

	mu        sync.Mutex
	clientID  string
	clientSeq int64
	serverSeq int64
}

func NewConn(ws *websocket.Conn, metrics *observability.Metrics) *Conn {
	return &Conn{ws: ws, metrics: metrics}
}

// Observe records the header of an inbound control frame.
func (c *Conn) Observe(id string, seq int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientID = id
	c.clientSeq = seq
}

// SendControl writes one control frame and returns the sequence it used.
// The sequence is consumed even if the write fails.
func (c *Conn) SendControl(t protocol.MessageType, params any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.serverSeq++
	msg := protocol.ServerMessage{
		Version:    protocol.Version,
		Type:       t,
		ID:         c.clientID,
		Seq:        c.serverSeq,
		ClientSeq:  c.clientSeq,
		Parameters: params,
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(msg); err != nil {
		return msg.Seq, err
	}
	c.metrics.WSMessage(peerLabel, "out", string(t))
	return msg.Seq, nil
}

// WriteAudio sends one binary PCMU frame.
func (c *Conn) WriteAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.BinaryMessage, chunk)
}

func (c *Conn) ServerSeq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverSeq
}

// Close sends a normal close frame and releases the socket.
func (c *Conn) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
