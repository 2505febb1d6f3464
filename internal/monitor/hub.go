// Package monitor exposes a live feed of relay events over WebSocket so an
// operator can watch conversations flow without touching the data path.
package monitor

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Event is one observable step of inbound-event handling.
type Event struct {
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	UserID string    `json:"user_id"`
	Kind   string    `json:"kind"`
	Detail string    `json:"detail,omitempty"`
}

// Event kinds published by the relay.
const (
	KindReceived       = "received"
	KindSkipped        = "skipped"
	KindReplied        = "replied"
	KindDelivered      = "delivered"
	KindDeliveryFailed = "delivery_failed"
	KindHandoff        = "handoff"
)

type subscriber struct {
	ch chan Event
}

// Hub fans relay events out to connected monitor clients. Publishing never
// blocks; a subscriber that cannot keep up loses events and is eventually
// disconnected by its own writer.
type Hub struct {
	mu   sync.RWMutex
	subs map[*subscriber]struct{}
	log  *zap.Logger
}

func NewHub(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{subs: make(map[*subscriber]struct{}), log: log}
}

// Publish broadcasts an event to all subscribers, dropping it for any
// subscriber whose buffer is full.
func (h *Hub) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs {
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// SubscriberCount reports connected monitor clients.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *Hub) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan Event, 64)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// ServeWS upgrades the request and streams events until the client goes
// away.
func (h *Hub) ServeWS(upgrader websocket.Upgrader, w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("monitor upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	sub := h.subscribe()
	defer h.unsubscribe(sub)

	// Reader goroutine notices client disconnects; inbound frames are
	// discarded.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev := <-sub.ch:
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}
