package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"nhooyr.io/websocket"
)

const (
	endpointPath = "/ws"
	readLimit    = 1 << 20
)

// Conn is one persistent duplex connection carrying text frames.
type Conn interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Endpoint derives the session endpoint from a device host such as
// "192.168.4.1:8080" or "https://bridge.lan".
func Endpoint(host string) (string, error) {
	h := strings.TrimSpace(host)
	if h == "" {
		return "", errors.New("empty device host")
	}
	if !strings.Contains(h, "://") {
		h = "http://" + h
	}
	u, err := url.Parse(h)
	if err != nil {
		return "", fmt.Errorf("parse host %q: %w", host, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("parse host %q: missing host", host)
	}

	var scheme string
	switch u.Scheme {
	case "http", "ws":
		scheme = "ws"
	case "https", "wss":
		scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return (&url.URL{Scheme: scheme, Host: u.Host, Path: endpointPath}).String(), nil
}

type wsConn struct {
	conn *websocket.Conn
}

// Dial opens the session connection to the device at host.
func Dial(ctx context.Context, host string) (Conn, error) {
	endpoint, err := Endpoint(host)
	if err != nil {
		return nil, err
	}
	conn, _, err := websocket.Dial(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}
	conn.SetReadLimit(readLimit)
	return &wsConn{conn: conn}, nil
}

func (c *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := c.conn.Read(ctx)
	return data, err
}

func (c *wsConn) Write(ctx context.Context, data []byte) error {
	return c.conn.Write(ctx, websocket.MessageText, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
