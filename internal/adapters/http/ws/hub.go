// Package ws pushes siege messages to participants' clients over
// websockets. A client subscribes to one siege under one participant name.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/okian/siege/internal/domain/model"
	"github.com/okian/siege/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	readTimeout  = 60 * time.Second
)

// ErrSlowClient is returned when a client's outbound buffer is full.
var ErrSlowClient = errors.New("websocket client is not keeping up")

type key struct {
	siegeID string
	name    string
}

type client struct {
	out  chan []byte
	done chan struct{}
}

// Hub tracks connected clients and implements the broadcast messenger.
type Hub struct {
	mu       sync.RWMutex
	clients  map[key]map[*client]struct{}
	upgrader websocket.Upgrader
	logger   logger.Logger
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[key]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger.Get().Named("ws"),
	}
}

// Send implements the broadcast messenger. Recipients without a connected
// client are skipped.
func (h *Hub) Send(ctx context.Context, recipient string, msg model.Message) error {
	h.mu.RLock()
	set := h.clients[key{siegeID: msg.SiegeID, name: recipient}]
	targets := make([]*client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	if len(targets) == 0 {
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	var slow error
	for _, c := range targets {
		select {
		case c.out <- data:
		case <-c.done:
		case <-ctx.Done():
			return ctx.Err()
		default:
			slow = ErrSlowClient
		}
	}
	return slow
}

// Clients returns how many clients are connected for a recipient.
func (h *Hub) Clients(siegeID, name string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[key{siegeID: siegeID, name: name}])
}

func (h *Hub) add(k key, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[k]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[k] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) remove(k key, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients[k], c)
	if len(h.clients[k]) == 0 {
		delete(h.clients, k)
	}
}

// Serve upgrades the request and streams messages for (siegeID, name)
// until the client goes away.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, siegeID, name string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug(r.Context(), "websocket upgrade failed", logger.Error(err))
		return
	}
	defer conn.Close()

	k := key{siegeID: siegeID, name: name}
	c := &client{out: make(chan []byte, sendBuffer), done: make(chan struct{})}
	h.add(k, c)
	defer h.remove(k, c)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-c.done:
				return
			case b := <-c.out:
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop only notices the client going away.
	for {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	close(c.done)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

	select {
	case <-writerDone:
	case <-time.After(500 * time.Millisecond):
	}
}
