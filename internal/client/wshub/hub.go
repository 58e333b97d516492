package wshub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"

	"github.com/openmined/photosync/internal/client/handlers"
	photosync "github.com/openmined/photosync/internal/client/sync"
)

const (
	maxMessageSize   = 4 * 1024
	DefaultHeartbeat = 30 * time.Second
)

var ErrHubClosed = errors.New("wshub: closed")

// StatusFunc returns the status sent to a socket right after it connects.
type StatusFunc func() photosync.Status

// Hub pushes engine events to every connected dashboard socket. It is a
// photosync.Observer; Notify never blocks on a socket.
type Hub struct {
	status    StatusFunc
	heartbeat time.Duration
	clock     clockwork.Clock

	mu      sync.RWMutex
	clients map[string]*Client
	closed  bool
	wg      sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type Option func(*Hub)

// WithHeartbeat sets how long a socket may stay silent before a heartbeat
// event is sent.
func WithHeartbeat(d time.Duration) Option {
	return func(h *Hub) {
		h.heartbeat = d
	}
}

func WithClock(c clockwork.Clock) Option {
	return func(h *Hub) {
		h.clock = c
	}
}

func NewHub(status StatusFunc, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		status:    status,
		heartbeat: DefaultHeartbeat,
		clock:     clockwork.NewRealClock(),
		clients:   make(map[string]*Client),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Len returns the number of connected sockets.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Notify broadcasts e. A socket whose queue is full is dropped; the others
// still get the event.
func (h *Hub) Notify(e photosync.Event) error {
	msg, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	h.Broadcast(msg)
	return nil
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.Send(msg) {
			slog.Warn("wshub send buffer full, dropping client", "connId", client.ConnID, "ip", client.IPAddr)
			go client.closeConnection(websocket.StatusPolicyViolation, "send buffer full")
		}
	}
}

// Handler upgrades the request to a websocket, sends the current status and
// registers the socket.
func (h *Hub) Handler(ctx *gin.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		handlers.AbortWithError(ctx, http.StatusServiceUnavailable, handlers.ErrCodeUnavailable, ErrHubClosed)
		return
	}

	conn, err := websocket.Accept(ctx.Writer, ctx.Request, nil)
	if err != nil {
		slog.Warn("wshub accept", "ip", ctx.ClientIP(), "error", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := newClient(conn, ctx.ClientIP(), h.heartbeat, h.clock)
	if msg, err := h.statusMessage(); err != nil {
		slog.Warn("wshub initial status", "connId", client.ConnID, "error", err)
	} else {
		client.Send(msg)
	}

	client.Start(h.ctx)
	if err := h.register(client); err != nil {
		client.closeConnection(websocket.StatusGoingAway, shutdownReason)
	}
}

func (h *Hub) statusMessage() ([]byte, error) {
	if h.status == nil {
		return nil, errors.New("no status source")
	}
	status := h.status()
	return json.Marshal(photosync.Event{
		Type:      photosync.EventStatus,
		Timestamp: h.clock.Now(),
		Status:    &status,
	})
}

func (h *Hub) register(client *Client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return ErrHubClosed
	}
	h.clients[client.ConnID] = client
	slog.Debug("wshub registered", "connId", client.ConnID, "ip", client.IPAddr, "active", len(h.clients))

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		<-client.Closed

		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.clients, client.ConnID)
		slog.Debug("wshub removed", "connId", client.ConnID, "active", len(h.clients))
	}()
	return nil
}

// Shutdown closes every socket and waits for them, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		go c.closeConnection(websocket.StatusGoingAway, shutdownReason)
	}
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("wshub shutdown")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func heartbeatMessage(now time.Time) []byte {
	msg, _ := json.Marshal(photosync.Event{Type: photosync.EventHeartbeat, Timestamp: now})
	return msg
}
