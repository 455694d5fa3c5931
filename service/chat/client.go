package chat

import (
	"net"
	"sync"
	"time"

	"PMarket/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientConf tunes the websocket pumps.
type ClientConf struct {
	SendQueue      int
	InboundQueue   int
	WriteWait      time.Duration
	PongWait       time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

func (c *ClientConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.InboundQueue <= 0 {
		c.InboundQueue = 64
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 75 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = c.PongWait * 2 / 5
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 64 << 10
	}
}

// Client is one websocket connection. Frames are queued on send and written by
// a single writer goroutine; inbound frames go to one dispatch goroutine.
type Client struct {
	ConnID string
	WS     *websocket.Conn
	Remote net.Addr

	send      chan []byte
	inbound   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	conf      ClientConf
	log       *zap.Logger
}

func NewClient(connID string, ws *websocket.Conn, conf ClientConf) *Client {
	conf.norm()
	c := &Client{
		ConnID:  connID,
		WS:      ws,
		send:    make(chan []byte, conf.SendQueue),
		inbound: make(chan []byte, conf.InboundQueue),
		done:    make(chan struct{}),
		conf:    conf,
		log:     logger.Named("ws").With(zap.String("conn_id", connID)),
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr()
	}
	return c
}

func (c *Client) ID() string { return c.ConnID }

// Send never blocks: a full queue reports ErrQueueFull.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrQueueFull
	}
}

func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// Inbound is closed when the read pump exits.
func (c *Client) Inbound() <-chan []byte { return c.inbound }

func (c *Client) Done() <-chan struct{} { return c.done }

// ReadPump reads frames until the peer goes away or Close is called.
func (c *Client) ReadPump() {
	defer func() {
		close(c.inbound)
		_ = c.Close()
	}()

	c.WS.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		mt, data, err := c.WS.ReadMessage()
		if err != nil {
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
				c.log.Debug("peer closed", zap.Error(err))
			case isTimeout(err):
				c.log.Info("read timeout", zap.Error(err))
			default:
				c.log.Debug("read error", zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		select {
		case c.inbound <- data:
		case <-c.done:
			return
		}
	}
}

// WritePump drains the send queue and keeps the connection alive with pings.
// It closes the socket on exit, which also unblocks ReadPump.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.WS.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
		_ = c.WS.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.WS.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("write error", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.conf.WriteWait)); err != nil {
				c.log.Debug("ping error", zap.Error(err))
				_ = c.Close()
				return
			}
		case <-c.done:
			c.flush()
			return
		}
	}
}

// flush writes what is already queued, best effort.
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}
