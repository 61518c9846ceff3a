package reliability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"testing"

	"github.com/gorilla/websocket"
)

func TestIsConnectionClosed(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"normal close", &websocket.CloseError{Code: websocket.CloseNormalClosure}, true},
		{"going away", &websocket.CloseError{Code: websocket.CloseGoingAway}, true},
		{"abnormal close", &websocket.CloseError{Code: websocket.CloseAbnormalClosure}, false},
		{"close sent", websocket.ErrCloseSent, true},
		{"wrapped net closed", fmt.Errorf("write: %w", net.ErrClosed), true},
		{"eof", io.EOF, true},
		{"canceled", context.Canceled, true},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		if got := IsConnectionClosed(tc.err); got != tc.want {
			t.Fatalf("%s: IsConnectionClosed() = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCloseCode(t *testing.T) {
	err := fmt.Errorf("read: %w", &websocket.CloseError{Code: websocket.CloseGoingAway})
	if got := CloseCode(err); got != websocket.CloseGoingAway {
		t.Fatalf("CloseCode() = %d, want %d", got, websocket.CloseGoingAway)
	}
	if got := CloseCode(errors.New("x")); got != -1 {
		t.Fatalf("CloseCode() = %d, want -1", got)
	}
}
