package client

import (
	"sync"
	"time"
)

// Reasons attached to an UnauthenticatedEvent.
const (
	ReasonUnauthorized       = "http_401"
	ReasonSessionErrorCode   = "session_error_code"
	ReasonSessionMessage     = "session_message"
	ReasonServerSessionError = "server_session_error"
)

// UnauthenticatedEvent is published after a forced logout has cleared the
// stored session. Subscribers decide what to do next (drop caches, prompt for
// login); the client itself never does more than clear storage.
type UnauthenticatedEvent struct {
	Reason    string
	Status    int
	ErrorCode int
	Message   string
	Method    string
	Path      string
	At        time.Time
}

// UnauthenticatedHandler receives forced-logout notifications.
type UnauthenticatedHandler func(UnauthenticatedEvent)

// eventBus is a small synchronous fan-out; handlers run in subscription order.
type eventBus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]UnauthenticatedHandler
	order    []int
}

func newEventBus() *eventBus {
	return &eventBus{handlers: make(map[int]UnauthenticatedHandler)}
}

func (b *eventBus) subscribe(h UnauthenticatedHandler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.handlers, id)
			for i, v := range b.order {
				if v == id {
					b.order = append(b.order[:i], b.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (b *eventBus) publish(ev UnauthenticatedEvent) {
	b.mu.RLock()
	handlers := make([]UnauthenticatedHandler, 0, len(b.order))
	for _, id := range b.order {
		handlers = append(handlers, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
