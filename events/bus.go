// Package events is the in-process fanout layer between the service layer and
// the websocket transport. Services publish after commit; delivery is
// fire-and-forget. A subscriber that cannot keep up is cancelled rather than
// allowed to stall publishers.
package events

import (
	"fmt"
	"sync"

	"github.com/bracketops/tournament-core/metrics"
)

// Event names carried in the wire envelope.
const (
	TournamentCreated   = "tournament:created"
	TournamentUpdated   = "tournament:updated"
	TournamentDeleted   = "tournament:deleted"
	TournamentStarted   = "tournament:started"
	TournamentReset     = "tournament:reset"
	TournamentCompleted = "tournament:completed"

	MatchUpdated   = "match:updated"
	MatchCompleted = "match:completed"
	MatchesUpdate  = "matches:update"

	ParticipantAdded   = "participant:added"
	ParticipantUpdated = "participant:updated"
	ParticipantDeleted = "participant:deleted"
	ParticipantCheckin = "participant:checkin"
	ParticipantBulk    = "participant:bulk"
	ParticipantSeeded  = "participant:seeded"

	// Published by the game-config tooling, not this server. Listed so the
	// wire catalog stays complete for subscribers.
	GameCreated = "games:created"
	GameUpdated = "games:updated"
	GameDeleted = "games:deleted"

	EmergencyActivated   = "emergency:activated"
	EmergencyDeactivated = "emergency:deactivated"

	DeploySet     = "deploy:set"
	DeployCleared = "deploy:cleared"
)

// Event is the envelope delivered to subscribers and, through the websocket
// hub, to browsers.
type Event struct {
	Event        string      `json:"event"`
	TournamentID int         `json:"tournament_id,omitempty"`
	Payload      interface{} `json:"payload,omitempty"`
}

// Room names scope delivery to a tenant. Tournament rooms additionally scope
// to one bracket; the flyer room feeds the public display service.
func TournamentsRoom(tenantID int) string {
	return fmt.Sprintf("tenant:%d:tournaments", tenantID)
}

func TournamentRoom(tenantID, tournamentID int) string {
	return fmt.Sprintf("tenant:%d:tournament:%d", tenantID, tournamentID)
}

func FlyerRoom(tenantID int) string {
	return fmt.Sprintf("tenant:%d:flyer", tenantID)
}

// subscriberBuffer is the per-subscription channel capacity. A full buffer
// means the subscriber is not draining; it gets cancelled on the next publish.
const subscriberBuffer = 64

type Subscription struct {
	C <-chan Event

	ch    chan Event
	rooms map[string]struct{}
	bus   *Bus
	once  sync.Once
}

// Cancel detaches the subscription and closes its channel. Safe to call more
// than once and safe to call concurrently with Publish.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}

func (s *Subscription) wants(room string) bool {
	_, ok := s.rooms[room]
	return ok
}

type Bus struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscription]struct{})}
}

// Subscribe registers a new subscription covering the given rooms. The caller
// must drain Subscription.C and call Cancel when done.
func (b *Bus) Subscribe(rooms ...string) *Subscription {
	sub := &Subscription{
		ch:    make(chan Event, subscriberBuffer),
		rooms: make(map[string]struct{}, len(rooms)),
		bus:   b,
	}
	sub.C = sub.ch
	for _, room := range rooms {
		sub.rooms[room] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish delivers evt to every subscription of room without blocking.
// Subscribers whose buffer is full are cancelled after the fanout; closing
// inside the read lock would race the send.
func (b *Bus) Publish(room string, evt Event) {
	metrics.EventsPublished.WithLabelValues(evt.Event).Inc()

	var stale []*Subscription
	b.mu.RLock()
	for sub := range b.subs {
		if !sub.wants(room) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			stale = append(stale, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range stale {
		metrics.EventsDropped.Inc()
		sub.Cancel()
	}
}

// SubscriberCount reports how many subscriptions are attached, for tests and
// the health endpoint.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
