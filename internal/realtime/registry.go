// Package realtime delivers chat events to connected clients: a Registry of
// open sessions per chat, a Dispatcher that publishes stored messages
// (locally or through Redis), and the WebSocket Gateway that runs sessions.
package realtime

import (
	"sync"

	"github.com/google/uuid"
	"github.com/lalith-99/cohortchat/internal/metrics"
)

// Subscriber is one open connection as the registry sees it.
//
// Enqueue must not block: it returns false when the subscriber cannot take
// the frame right now. Close must be safe to call more than once.
type Subscriber interface {
	UserID() uuid.UUID
	Enqueue(frame []byte) bool
	Close()
}

// Registry maps chat ids to the sessions currently joined to them. It only
// tracks presence; who may join is decided before Join is called.
type Registry struct {
	mu     sync.RWMutex
	groups map[uuid.UUID]map[Subscriber]struct{}
}

func NewRegistry() *Registry {
	return &Registry{groups: make(map[uuid.UUID]map[Subscriber]struct{})}
}

func (r *Registry) Join(chatID uuid.UUID, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	group, ok := r.groups[chatID]
	if !ok {
		group = make(map[Subscriber]struct{})
		r.groups[chatID] = group
	}
	if _, dup := group[sub]; !dup {
		group[sub] = struct{}{}
		metrics.WsConnections.Inc()
	}
}

// Leave removes sub from the chat. It reports whether sub was still joined,
// so a session racing an eviction is only counted once.
func (r *Registry) Leave(chatID uuid.UUID, sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remove(chatID, sub)
}

func (r *Registry) remove(chatID uuid.UUID, sub Subscriber) bool {
	group, ok := r.groups[chatID]
	if !ok {
		return false
	}
	if _, ok := group[sub]; !ok {
		return false
	}
	delete(group, sub)
	if len(group) == 0 {
		delete(r.groups, chatID)
	}
	metrics.WsConnections.Dec()
	return true
}

// Evict drops and closes every session of userIDs joined to chatID, for
// users who just lost membership. It returns how many sessions it closed.
//
// Membership is checked when a session joins and again on every frame it
// sends, but a member who only listens never sends. Without Evict a removed
// user would keep receiving the chat's fan-out until they disconnect.
func (r *Registry) Evict(chatID uuid.UUID, userIDs []uuid.UUID) int {
	if len(userIDs) == 0 {
		return 0
	}
	drop := make(map[uuid.UUID]bool, len(userIDs))
	for _, id := range userIDs {
		drop[id] = true
	}

	r.mu.Lock()
	var evicted []Subscriber
	for sub := range r.groups[chatID] {
		if drop[sub.UserID()] {
			evicted = append(evicted, sub)
		}
	}
	for _, sub := range evicted {
		r.remove(chatID, sub)
	}
	r.mu.Unlock()

	for _, sub := range evicted {
		sub.Close()
	}
	return len(evicted)
}

// Publish hands frame to every subscriber of chatID and returns how many
// accepted it. Subscribers that refuse are removed and closed; there is no
// retry.
//
// Why evict instead of waiting? Enqueue only fails when a session's send
// buffer is full, which means its client has stopped reading. Blocking here
// would let one stalled client hold up delivery to the whole chat, and the
// lock is not held while enqueueing so Join and Leave never wait on a slow
// socket either. An evicted client reconnects and pages the history it
// missed from GET /api/messages.
func (r *Registry) Publish(chatID uuid.UUID, frame []byte) int {
	r.mu.RLock()
	group := r.groups[chatID]
	subs := make([]Subscriber, 0, len(group))
	for sub := range group {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	delivered := 0
	var failed []Subscriber
	for _, sub := range subs {
		if sub.Enqueue(frame) {
			delivered++
			continue
		}
		failed = append(failed, sub)
	}
	metrics.FanoutDeliveries.Add(float64(delivered))

	if len(failed) > 0 {
		r.mu.Lock()
		for _, sub := range failed {
			if r.remove(chatID, sub) {
				metrics.WsEvictions.Inc()
			}
		}
		r.mu.Unlock()
		for _, sub := range failed {
			sub.Close()
		}
	}
	return delivered
}

// Online returns the number of sessions joined to chatID.
func (r *Registry) Online(chatID uuid.UUID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups[chatID])
}
