package wshub

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/openmined/photosync/internal/utils"
)

const (
	writeTimeout   = 20 * time.Second
	sendBuffer     = 64
	shutdownReason = "shutdown"
)

var (
	pingMessage = []byte("ping")
	pongMessage = []byte("pong")
)

// Client is one dashboard socket with its own outgoing queue.
type Client struct {
	ConnID string
	IPAddr string
	Closed chan struct{}

	conn      *websocket.Conn
	tx        chan []byte
	done      chan struct{}
	heartbeat time.Duration
	clock     clockwork.Clock
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newClient(conn *websocket.Conn, ip string, heartbeat time.Duration, clock clockwork.Clock) *Client {
	return &Client{
		ConnID:    utils.TokenHex(4),
		IPAddr:    ip,
		Closed:    make(chan struct{}),
		conn:      conn,
		tx:        make(chan []byte, sendBuffer),
		done:      make(chan struct{}),
		heartbeat: heartbeat,
		clock:     clock,
	}
}

func (c *Client) Start(ctx context.Context) {
	slog.Debug("wsclient start", "connId", c.ConnID)
	c.wg.Add(2)
	go c.writeLoop(ctx)
	go c.readLoop(ctx)
}

// Send queues msg without blocking. It reports false when the queue is full
// or the client is closed.
func (c *Client) Send(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.tx <- msg:
		return true
	default:
		return false
	}
}

// Close closes the socket and waits for both loops.
func (c *Client) Close() {
	c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	<-c.Closed
}

func (c *Client) closeConnection(status websocket.StatusCode, reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close(status, reason)

		go func() {
			c.wg.Wait()
			close(c.Closed)
			slog.Debug("wsclient closed", "connId", c.ConnID)
		}()
	})
}

func (c *Client) readLoop(ctx context.Context) {
	defer func() {
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				// closed by peer or shutdown
			} else if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && status != websocket.StatusNoStatusRcvd {
				slog.Warn("wsclient reader", "connId", c.ConnID, "error", err)
			}
			return
		}

		if string(data) == string(pingMessage) {
			if !c.Send(pongMessage) {
				slog.Warn("wsclient pong dropped", "connId", c.ConnID)
			}
		}
	}
}

func (c *Client) writeLoop(ctx context.Context) {
	defer func() {
		c.wg.Done()
		c.closeConnection(websocket.StatusNormalClosure, shutdownReason)
	}()

	idle := c.clock.NewTimer(c.heartbeat)
	defer idle.Stop()

	for {
		var msg []byte
		select {
		case msg = <-c.tx:
		case <-idle.Chan():
			msg = heartbeatMessage(c.clock.Now())
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}

		if err := c.write(ctx, msg); err != nil {
			slog.Warn("wsclient writer", "connId", c.ConnID, "error", err)
			return
		}
		idle.Reset(c.heartbeat)
	}
}

func (c *Client) write(ctx context.Context, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, websocket.MessageText, msg)
}
