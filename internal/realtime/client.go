package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/logger"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxMessageSize  = 64 * 1024
)

// Client is a websocket connection with a buffered outbound queue drained by WritePump.
type Client struct {
	id        string
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	pongWait  time.Duration
	log       *logger.Logger
}

func NewClient(conn *websocket.Conn, buffer int, pongWait time.Duration, log *logger.Logger) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	if pongWait <= 0 {
		pongWait = defaultPongWait
	}
	id := uuid.NewString()
	return &Client{
		id:       id,
		conn:     conn,
		send:     make(chan []byte, buffer),
		done:     make(chan struct{}),
		pongWait: pongWait,
		log:      log.With("client", id),
	}
}

func (c *Client) ID() string { return c.id }

// Send queues payload without blocking. A full queue or a closed client drops the frame.
func (c *Client) Send(payload []byte) bool {
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

// ReadPump feeds text frames to handle in arrival order until the connection fails or closes.
func (c *Client) ReadPump(handle func([]byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		kind, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Warn("websocket read failed", "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		handle(message)
	}
}

// WritePump writes queued frames one per websocket message and pings at 90% of the pong wait.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}

// Close stops the write pump, which closes the underlying connection.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Reject sends a close frame with code and reason, then closes the client.
func (c *Client) Reject(code int, reason string) {
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeWait))
	if err != nil {
		c.log.Debug("close frame not sent", "code", code, "error", err)
	}
	c.Close()
}
