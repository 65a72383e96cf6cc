package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/reservo/chat-service/internal/config"
	"github.com/reservo/chat-service/internal/domain"
	"github.com/reservo/chat-service/pkg/log"
)

// Client is one live connection: the transport conn, its outbound queue
// and its session state.
type Client struct {
	ID      string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	Session *domain.Session
	cfg     config.WebSocketConfig

	mu     sync.Mutex
	closed bool
}

func NewClient(id string, h *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	bufSize := cfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{
		ID:      id,
		Hub:     h,
		Conn:    conn,
		Send:    make(chan []byte, bufSize),
		Session: domain.NewSession(id),
		cfg:     cfg,
	}
}

// ReadPump reads inbound frames and hands them to handler, one at a time.
// Each frame is handled to completion before the next is read, which is
// what gives a single sender in-order fan-out of its messages.
func (c *Client) ReadPump(handler func(*Client, []byte)) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Str(log.FieldConnID, c.ID).Err(err).Msg("websocket read error")
			}
			break
		}

		c.Session.UpdateActivity()
		handler(c, message)
	}
}

// WritePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue places a frame on the send queue. Returns false without
// enqueueing when the queue is full or the connection is already torn
// down; every producer must go through here so nothing ever sends on a
// closed channel.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// closeSend marks the connection torn down and closes the queue. Called
// exactly once, by Unregister.
func (c *Client) closeSend() {
	c.mu.Lock()
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
}

// SendEvent enqueues an event for this connection only. A full buffer or
// a torn-down connection drops the event rather than blocking the caller.
func (c *Client) SendEvent(event string, payload interface{}) error {
	data, err := domain.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	c.enqueue(data)
	return nil
}

// SendError enqueues an error event for this connection only.
func (c *Client) SendError(code, message string) {
	_ = c.SendEvent(domain.EventError, domain.NewErrorPayload(code, message))
}
