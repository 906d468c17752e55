// Package feed is the change feed: "something changed for this couple" signals
// that tell a client to re-read authoritative state. Events never carry the
// changed rows themselves.
package feed

import (
	"context"
	"sync"

	"couple-games/models"
)

type Topic string

const (
	TopicSessions    Topic = "game_sessions"
	TopicResponses   Topic = "game_responses"
	TopicCompletions Topic = "game_completions"
)

// Event is the payload published for every insert/update.
type Event struct {
	CoupleID  string          `json:"couple_id"`
	Topic     Topic           `json:"topic"`
	Kind      string          `json:"kind"` // insert | update
	GameType  models.GameType `json:"game_type,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	ActorID   string          `json:"actor_id,omitempty"`
}

// Filter scopes a subscription. Empty Topic or GameType match anything.
type Filter struct {
	CoupleID string
	Topic    Topic
	GameType models.GameType
}

func (f Filter) Matches(e Event) bool {
	if f.CoupleID != e.CoupleID {
		return false
	}
	if f.Topic != "" && f.Topic != e.Topic {
		return false
	}
	if f.GameType != "" && e.GameType != "" && f.GameType != e.GameType {
		return false
	}
	return true
}

// Publisher announces a change. Implementations: *Broker (single process) and
// *PGNotifier (shared through postgres NOTIFY).
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber hands out subscriptions.
type Subscriber interface {
	Subscribe(f Filter, onEvent func(Event)) *Subscription
}

// Subscription delivers matching events to its handler on its own goroutine.
type Subscription struct {
	filter  Filter
	handler func(Event)
	ch      chan Event
	done    chan struct{}
	once    sync.Once
	broker  *Broker
}

// Unsubscribe stops delivery. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

func (s *Subscription) run() {
	for {
		select {
		case e := <-s.ch:
			s.handler(e)
		case <-s.done:
			return
		}
	}
}

// Broker is an in-process pub/sub for change events, keyed by couple ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers onEvent for events matching f.
func (b *Broker) Subscribe(f Filter, onEvent func(Event)) *Subscription {
	sub := &Subscription{
		filter:  f,
		handler: onEvent,
		ch:      make(chan Event, 1),
		done:    make(chan struct{}),
		broker:  b,
	}
	b.mu.Lock()
	if b.subs[f.CoupleID] == nil {
		b.subs[f.CoupleID] = make(map[*Subscription]struct{})
	}
	b.subs[f.CoupleID][sub] = struct{}{}
	b.mu.Unlock()

	go sub.run()
	return sub
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs[sub.filter.CoupleID], sub)
	if len(b.subs[sub.filter.CoupleID]) == 0 {
		delete(b.subs, sub.filter.CoupleID)
	}
	b.mu.Unlock()
}

// Publish fans e out to every matching subscriber. A subscriber that already
// has an undelivered event keeps that one: it will re-read state anyway.
func (b *Broker) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	for sub := range b.subs[e.CoupleID] {
		if !sub.filter.Matches(e) {
			continue
		}
		select {
		case sub.ch <- e:
		default:
		}
	}
	b.mu.RUnlock()
	return nil
}

// Subscribers returns the number of live subscriptions for a couple.
func (b *Broker) Subscribers(coupleID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[coupleID])
}
