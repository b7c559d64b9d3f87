package event_bus

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/klokku/budgetly/internal/utils"
	log "github.com/sirupsen/logrus"
)

type EventType string

// Event carries a payload of any type together with the context of the operation that published it.
type Event struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      any
}

func (e Event) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

// EventT is the view typed subscribers receive.
type EventT[T any] struct {
	ctx       context.Context
	Type      EventType
	Timestamp time.Time
	Data      T
}

func (e EventT[T]) Context() context.Context {
	if e.ctx == nil {
		return context.Background()
	}
	return e.ctx
}

type subscription struct {
	id      uint64
	handler func(Event) error
}

// EventBus dispatches events synchronously to subscribers in registration order.
type EventBus struct {
	mu          sync.RWMutex
	clock       utils.Clock
	subscribers map[EventType][]subscription
	nextId      uint64
}

func NewEventBus(clock utils.Clock) *EventBus {
	return &EventBus{
		clock:       clock,
		subscribers: make(map[EventType][]subscription),
	}
}

// NewEvent stamps a payload with the bus clock.
func (eb *EventBus) NewEvent(ctx context.Context, eventType EventType, data any) Event {
	return Event{ctx: ctx, Type: eventType, Timestamp: eb.clock.Now(), Data: data}
}

func (eb *EventBus) Subscribe(eventType EventType, h func(Event) error) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextId++
	id := eb.nextId
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{id: id, handler: h})

	return func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		remaining := slices.DeleteFunc(eb.subscribers[eventType], func(s subscription) bool { return s.id == id })
		if len(remaining) == 0 {
			delete(eb.subscribers, eventType)
			return
		}
		eb.subscribers[eventType] = remaining
	}
}

// SubscribeTyped registers h for events whose payload is a T. Events with another payload type are skipped.
func SubscribeTyped[T any](eb *EventBus, eventType EventType, h func(EventT[T]) error) (unsubscribe func()) {
	return eb.Subscribe(eventType, func(e Event) error {
		payload, ok := e.Data.(T)
		if !ok {
			log.Warnf("event %s carries %T, expected %T; skipping", eventType, e.Data, *new(T))
			return nil
		}
		return h(EventT[T]{ctx: e.ctx, Type: e.Type, Timestamp: e.Timestamp, Data: payload})
	})
}

// Emit publishes payload as an event of eventType.
func Emit[T any](ctx context.Context, eb *EventBus, eventType EventType, payload T) error {
	return eb.Publish(eb.NewEvent(ctx, eventType, payload))
}

// Publish runs every subscriber of e.Type, even after one of them failed, and returns their joined errors.
// A panicking subscriber counts as failed. A cancelled context stops the dispatch.
func (eb *EventBus) Publish(e Event) error {
	if err := e.Context().Err(); err != nil {
		return fmt.Errorf("event %s not published: %w", e.Type, err)
	}

	eb.mu.RLock()
	subscribers := slices.Clone(eb.subscribers[e.Type])
	eb.mu.RUnlock()

	var errs []error
	for _, s := range subscribers {
		if err := e.Context().Err(); err != nil {
			errs = append(errs, fmt.Errorf("event %s dispatch cancelled: %w", e.Type, err))
			break
		}
		if err := dispatch(s, e); err != nil {
			log.WithFields(log.Fields{
				"event":      e.Type,
				"subscriber": s.id,
			}).Errorf("subscriber failed: %v", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func dispatch(s subscription, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber %d panicked on %s: %v", s.id, e.Type, r)
		}
	}()
	return s.handler(e)
}
