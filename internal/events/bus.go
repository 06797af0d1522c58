package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type funcHandler struct {
	id string
	fn EventHandler
}

// EventBus delivers training events synchronously. Targets are resolved
// under the lock and called outside it, so a handler may subscribe or
// unsubscribe without deadlocking.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[string]Subscriber
	handlers    map[string][]funcHandler
	panics      atomic.Int64
	logger      zerolog.Logger
}

var _ Publisher = (*EventBus)(nil)

func NewEventBus(logger zerolog.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]Subscriber),
		handlers:    make(map[string][]funcHandler),
		logger:      logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers s, replacing any subscriber with the same ID.
func (eb *EventBus) Subscribe(s Subscriber) {
	eb.mu.Lock()
	eb.subscribers[s.ID()] = s
	eb.mu.Unlock()
	eb.logger.Debug().Str("subscriber_id", s.ID()).Msg("Subscriber added")
}

// Unsubscribe removes a subscriber or a func handler by id.
func (eb *EventBus) Unsubscribe(id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if _, ok := eb.subscribers[id]; ok {
		delete(eb.subscribers, id)
		eb.logger.Debug().Str("subscriber_id", id).Msg("Subscriber removed")
		return
	}
	for eventType, hs := range eb.handlers {
		for i, h := range hs {
			if h.id != id {
				continue
			}
			eb.handlers[eventType] = append(hs[:i:i], hs[i+1:]...)
			eb.logger.Debug().Str("handler_id", id).Str("event_type", eventType).Msg("Handler removed")
			return
		}
	}
}

// SubscribeFunc registers fn for one event type and returns an id usable
// with Unsubscribe.
func (eb *EventBus) SubscribeFunc(eventType string, fn EventHandler) string {
	id := eventType + "/" + uuid.NewString()
	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], funcHandler{id: id, fn: fn})
	eb.mu.Unlock()
	eb.logger.Debug().Str("handler_id", id).Str("event_type", eventType).Msg("Handler added")
	return id
}

// Publish delivers ev to every interested subscriber, then to the func
// handlers of its type. A panicking target is logged and counted; the
// remaining targets still run.
func (eb *EventBus) Publish(ev Event) {
	eventType := ev.Type()

	eb.mu.RLock()
	subs := make([]Subscriber, 0, len(eb.subscribers))
	for _, s := range eb.subscribers {
		if s.InterestedIn(eventType) {
			subs = append(subs, s)
		}
	}
	hs := append([]funcHandler(nil), eb.handlers[eventType]...)
	eb.mu.RUnlock()

	eb.logger.Trace().
		Str("event_type", eventType).
		Str("run_id", ev.RunID()).
		Int("targets", len(subs)+len(hs)).
		Msg("Publishing event")

	for _, s := range subs {
		eb.deliver(s.ID(), ev, s.HandleEvent)
	}
	for _, h := range hs {
		eb.deliver(h.id, ev, h.fn)
	}
}

func (eb *EventBus) deliver(target string, ev Event, fn EventHandler) {
	defer func() {
		if r := recover(); r != nil {
			eb.panics.Add(1)
			eb.logger.Error().
				Str("target", target).
				Str("event_type", ev.Type()).
				Interface("panic", r).
				Msg("Event target panicked")
		}
	}()
	fn(ev)
}

// SubscriberCount is the number of registered subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// HandlerCount is the number of func handlers for eventType.
func (eb *EventBus) HandlerCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// Panics is the number of deliveries that panicked.
func (eb *EventBus) Panics() int64 { return eb.panics.Load() }
