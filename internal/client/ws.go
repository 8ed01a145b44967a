package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	outgoingBuffer = 64
)

// wsConn owns one websocket. Writes go through a single pump goroutine;
// reads are done by whoever calls readLoop.
type wsConn struct {
	conn      *websocket.Conn
	outgoing  chan any
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func dialWS(ctx context.Context, rawURL string, header http.Header, log *slog.Logger) (*wsConn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect: %w", &APIError{Status: resp.StatusCode})
		}
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	c := &wsConn{
		conn:     conn,
		outgoing: make(chan any, outgoingBuffer),
		done:     make(chan struct{}),
		log:      log,
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writePump()
	return c, nil
}

// readLoop hands every text frame to handle until the connection fails or
// is closed.
func (c *wsConn) readLoop(handle func([]byte)) {
	defer c.close()

	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read failed", slog.String("error", err.Error()))
			}
			return
		}
		handle(raw)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.outgoing:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.log.Debug("websocket write failed", slog.String("error", err.Error()))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *wsConn) write(ctx context.Context, msg any) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// websocketURL turns the server base URL into a ws(s) URL for path.
func websocketURL(base *url.URL, path string, query url.Values) string {
	u := *base
	switch strings.ToLower(u.Scheme) {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	u.RawQuery = query.Encode()
	return u.String()
}
