// Package realtime streams notifications to connected dashboard users over websockets.
package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBufferSize = 32
)

// Frame types sent to clients.
const (
	FrameNotification = "notification"
	FrameUnreadCount  = "unread_count"
)

// Frame is the envelope of every message written to a client.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Observer receives connection and delivery events, typically for metrics.
type Observer interface {
	Connected()
	Disconnected()
	Delivered(n int)
	Dropped()
}

type nopObserver struct{}

func (nopObserver) Connected()    {}
func (nopObserver) Disconnected() {}
func (nopObserver) Delivered(int) {}
func (nopObserver) Dropped()      {}

// Hub tracks live connections per recipient and fans notifications out to them.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*Client]struct{}
	observer Observer
	log      logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:  make(map[string]map[*Client]struct{}),
		observer: nopObserver{},
		log:      log.WithField("component", "realtime_hub"),
	}
}

// WithObserver registers o for connection events.
func (h *Hub) WithObserver(o Observer) *Hub {
	if o != nil {
		h.observer = o
	}
	return h
}

func recipientKey(workspaceID, userID string) string {
	return workspaceID + "/" + userID
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.key]
	if !ok {
		set = make(map[*Client]struct{})
		h.clients[c.key] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.observer.Connected()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	set, ok := h.clients[c.key]
	if ok {
		if _, member := set[c]; !member {
			ok = false
		} else {
			delete(set, c)
			if len(set) == 0 {
				delete(h.clients, c.key)
			}
		}
	}
	h.mu.Unlock()
	if ok {
		c.closeSend()
		h.observer.Disconnected()
	}
}

// Connections returns the number of live connections of one recipient.
func (h *Hub) Connections(workspaceID, userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[recipientKey(workspaceID, userID)])
}

// Deliver writes n to every connection of its recipient. A connection whose
// buffer is full is dropped; the client reconnects and refetches.
func (h *Hub) Deliver(n *domain.Notification) {
	payload, err := json.Marshal(Frame{Type: FrameNotification, Data: n})
	if err != nil {
		h.log.WithError(err).Error("failed to encode notification frame")
		return
	}

	h.mu.RLock()
	set := h.clients[recipientKey(n.WorkspaceID, n.UserID)]
	targets := make([]*Client, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(payload) {
			delivered++
			continue
		}
		h.log.WithField("user_id", n.UserID).Warn("dropping slow websocket client")
		h.observer.Dropped()
		h.unregister(c)
	}
	if delivered > 0 {
		h.observer.Delivered(delivered)
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	for _, set := range all {
		for c := range set {
			c.closeSend()
			h.observer.Disconnected()
		}
	}
}

// Attach starts serving conn for a recipient and queues the initial unread count.
// It returns immediately; the connection lives until either side closes it.
func (h *Hub) Attach(conn *websocket.Conn, workspaceID, userID string, unread int64) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		key:  recipientKey(workspaceID, userID),
		send: make(chan []byte, sendBufferSize),
	}
	if payload, err := json.Marshal(Frame{Type: FrameUnreadCount, Data: map[string]int64{"count": unread}}); err == nil {
		c.send <- payload
	}
	h.register(c)

	go c.writePump()
	go c.readPump()
	return c
}
