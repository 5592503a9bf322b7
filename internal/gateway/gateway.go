// internal/gateway/gateway.go

// Package gateway fans committed lobby events out to connected sessions.
// Each lobby gets one broadcast topic; events are stamped with a per-lobby
// monotonic sequence and delivered to every subscriber in commit order.
package gateway

import (
	"sync"

	"github.com/blue-orion/pongservice/internal/lobby"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// subscriberBuffer is each subscription's channel capacity. A subscriber
// that falls this far behind is dropped rather than allowed to block the
// publisher; it reconnects and resumes from a fresh snapshot.
const subscriberBuffer = 32

// Hub owns all lobby topics. It is the only structure shared between the
// lobby workers and the network accept path, and it carries its own locks.
type Hub struct {
	log *logrus.Logger

	mu     sync.Mutex
	topics map[uuid.UUID]*topic
}

type topic struct {
	mu   sync.Mutex
	seq  int64
	subs map[uuid.UUID]*Subscription
}

// Subscription is one session's membership in a lobby topic.
type Subscription struct {
	ID      uuid.UUID
	LobbyID uuid.UUID
	ch      chan lobby.Event
}

// Events returns the channel the hub delivers on. It is closed when the
// subscription is dropped or the topic closes.
func (s *Subscription) Events() <-chan lobby.Event { return s.ch }

// NewHub returns an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{log: log, topics: make(map[uuid.UUID]*topic)}
}

// Subscribe registers a new session on the lobby's topic. Callers obtain the
// accompanying state snapshot inside the lobby's worker, so no event can
// slip between snapshot and subscription.
func (h *Hub) Subscribe(lobbyID uuid.UUID) *Subscription {
	tp := h.getOrCreate(lobbyID)
	sub := &Subscription{
		ID:      uuid.New(),
		LobbyID: lobbyID,
		ch:      make(chan lobby.Event, subscriberBuffer),
	}
	tp.mu.Lock()
	tp.subs[sub.ID] = sub
	tp.mu.Unlock()
	return sub
}

// Unsubscribe removes the session and closes its channel. Safe to call for
// an already-dropped subscription.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	tp, ok := h.topics[sub.LobbyID]
	h.mu.Unlock()
	if !ok {
		return
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	if _, ok := tp.subs[sub.ID]; ok {
		delete(tp.subs, sub.ID)
		close(sub.ch)
	}
}

// Publish stamps the event with the topic's next sequence number and fans it
// out. Slow subscribers are dropped, never waited on. Returns the stamped
// event.
func (h *Hub) Publish(ev lobby.Event) lobby.Event {
	tp := h.getOrCreate(ev.LobbyID)
	tp.mu.Lock()
	defer tp.mu.Unlock()

	tp.seq++
	ev.ServerSeq = tp.seq
	for id, sub := range tp.subs {
		select {
		case sub.ch <- ev:
		default:
			if h.log != nil {
				h.log.WithFields(logrus.Fields{
					"lobby_id": ev.LobbyID,
					"sub_id":   id,
					"type":     ev.Type,
				}).Warn("dropping slow gateway subscriber")
			}
			delete(tp.subs, id)
			close(sub.ch)
		}
	}
	return ev
}

// CloseTopic closes every subscription of a finished lobby and forgets the
// topic.
func (h *Hub) CloseTopic(lobbyID uuid.UUID) {
	h.mu.Lock()
	tp, ok := h.topics[lobbyID]
	delete(h.topics, lobbyID)
	h.mu.Unlock()
	if !ok {
		return
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	for id, sub := range tp.subs {
		delete(tp.subs, id)
		close(sub.ch)
	}
}

// SubscriberCount reports the number of live sessions on a lobby's topic.
func (h *Hub) SubscriberCount(lobbyID uuid.UUID) int {
	h.mu.Lock()
	tp, ok := h.topics[lobbyID]
	h.mu.Unlock()
	if !ok {
		return 0
	}
	tp.mu.Lock()
	defer tp.mu.Unlock()
	return len(tp.subs)
}

func (h *Hub) getOrCreate(lobbyID uuid.UUID) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	tp, ok := h.topics[lobbyID]
	if !ok {
		tp = &topic{subs: make(map[uuid.UUID]*Subscription)}
		h.topics[lobbyID] = tp
	}
	return tp
}
