package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/Signage/internal/core"
)

// Conn is an indirection over *websocket.Conn to ease testing.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(mt int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Dialer opens an authenticated channel to the relay.
type Dialer interface {
	Dial(ctx context.Context, url, token string) (Conn, error)
}

// WSDialer dials the relay over a gorilla websocket, sending the bearer token
// in the Authorization header.
type WSDialer struct {
	HandshakeTimeout time.Duration
	ReadLimit        int64
}

func (d WSDialer) Dial(ctx context.Context, url, token string) (Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout:  d.HandshakeTimeout,
		EnableCompression: true,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := dialer.DialContext(ctx, url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, &core.Error{Kind: core.KindAuthentication, Op: "session.dial", Status: resp.StatusCode, Err: err}
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.E(core.KindTimeout, "session.dial", err)
		}
		if resp != nil {
			return nil, &core.Error{Kind: core.KindNetwork, Op: "session.dial", Status: resp.StatusCode, Err: fmt.Errorf("status %d: %w", resp.StatusCode, err)}
		}
		return nil, core.E(core.KindNetwork, "session.dial", err)
	}
	if d.ReadLimit > 0 {
		conn.SetReadLimit(d.ReadLimit)
	}
	return conn, nil
}
