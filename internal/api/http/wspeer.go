package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/meetroom/internal/relay"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBuffer     = 64
)

// wsPeer owns the write side of one websocket. Everything bound for the
// client goes through send; only writePump touches the connection for writes.
type wsPeer struct {
	conn      *websocket.Conn
	send      chan any
	done      chan struct{}
	closeOnce sync.Once
	log       *slog.Logger
}

func newWSPeer(conn *websocket.Conn, log *slog.Logger) *wsPeer {
	return &wsPeer{
		conn: conn,
		send: make(chan any, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

func (p *wsPeer) enqueue(msg any) bool {
	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.send <- msg:
		return true
	default:
		p.log.Debug("dropping outbound message, client too slow")
		return false
	}
}

func (p *wsPeer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteJSON(msg); err != nil {
				p.log.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.done:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = p.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (p *wsPeer) prepareRead() {
	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}

// forward pumps a relay subscription into the outbound queue until either
// side goes away.
func (p *wsPeer) forward(sub *relay.Subscription) {
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			p.enqueue(ev)
		case <-p.done:
			return
		}
	}
}

func (p *wsPeer) close() {
	p.closeOnce.Do(func() { close(p.done) })
}
