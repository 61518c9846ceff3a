package reliability

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

// IsConnectionClosed reports whether err means the peer or this process
// closed a WebSocket in an orderly way, as opposed to a transport failure.
func IsConnectionClosed(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	switch {
	case errors.Is(err, websocket.ErrCloseSent),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, io.EOF),
		errors.Is(err, context.Canceled):
		return true
	default:
		return false
	}
}

// CloseCode extracts the close status from a WebSocket error, or -1.
func CloseCode(err error) int {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return -1
}
