package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second    // Time allowed to write a message to the peer.
	pongWait       = 60 * time.Second    // Time allowed to read the next pong message from the peer.
	pingPeriod     = (pongWait * 9) / 10 // Must be less than pongWait.
	maxMessageSize = 512                 // Inbound frames are only read to notice disconnects.
	sendBuffer     = 256
)

// Conn is the Channel implementation over a gorilla websocket. Outbound
// frames go through a buffered queue drained by a single writer goroutine,
// so per-recipient order is the order of Enqueue calls.
type Conn struct {
	UserID string

	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	log  *slog.Logger
}

var _ Channel = (*Conn)(nil)

func NewConn(userID string, ws *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		log:    log,
	}
}

func (c *Conn) Enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Close sends a close frame with code and tears the socket down. Safe to
// call more than once and from any goroutine.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = c.ws.Close()
	})
}

// readPump blocks until the peer goes away. Inbound application frames are
// discarded.
func (c *Conn) readPump() {
	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Debug("websocket read", "user_id", c.UserID, "error", err)
			}
			return
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return

		case message := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.ws.NextWriter(websocket.TextMessage)
			if err != nil {
				c.fail(err)
				return
			}
			if _, err := w.Write(message); err != nil {
				c.fail(err)
				return
			}
			if err := w.Close(); err != nil {
				c.fail(err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// fail unblocks the reader so the handler unwinds through Remove.
func (c *Conn) fail(err error) {
	c.log.Debug("websocket write", "user_id", c.UserID, "error", err)
	_ = c.ws.Close()
}
