package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"guardshift/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClientClosed   = errors.New("websocket client closed")
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

type Options struct {
	ReadBufferSize  int
	WriteBufferSize int
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageSize  int64
	SendBuffer      int
	AllowedOrigins  []string
}

func DefaultOptions() Options {
	return Options{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingInterval:    54 * time.Second,
		PongTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Second,
		MaxMessageSize:  4096,
		SendBuffer:      256,
		AllowedOrigins:  []string{"*"},
	}
}

// Listener receives the lifecycle and inbound messages of every client.
// OnMessage is called from the client's read loop, one message at a time.
type Listener interface {
	OnConnect(client *Client)
	OnMessage(client *Client, msg *Message)
	OnDisconnect(client *Client)
}

type Client struct {
	id       string
	token    string
	hub      *Hub
	conn     *websocket.Conn
	listener Listener
	opts     Options
	logger   *logger.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn, listener Listener, token string, opts Options, log *logger.Logger) *Client {
	id := uuid.NewString()
	return &Client{
		id:       id,
		token:    token,
		hub:      hub,
		conn:     conn,
		listener: listener,
		opts:     opts,
		logger:   log.WithField("client_id", id),
		send:     make(chan []byte, opts.SendBuffer),
		closed:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

// Token is the access token presented when the socket was opened, if any.
func (c *Client) Token() string { return c.token }

// Send queues a message without blocking. A client whose buffer is full
// is too slow to keep up and gets disconnected.
func (c *Client) Send(msgType string, data interface{}) error {
	payload, err := encodeMessage(msgType, data)
	if err != nil {
		return err
	}

	select {
	case <-c.closed:
		return ErrClientClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrClientClosed
	default:
		c.logger.Warn("Send buffer full, closing client")
		c.Close()
		return ErrSendBufferFull
	}
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.Close()
		c.listener.OnDisconnect(c)
	}()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.PongTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithError(err).Warn("WebSocket read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
			_ = c.Send("error", map[string]string{"code": "BAD_MESSAGE", "message": "malformed message"})
			continue
		}
		c.listener.OnMessage(c, &msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closed:
			c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
