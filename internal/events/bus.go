// Package events carries session signals between the HTTP layer and the
// session manager without either importing the other.
package events

import (
	"context"
	"sync"
)

type Kind string

const (
	AuthLogin        Kind = "auth-login"
	AuthLogout       Kind = "auth-logout"
	SessionRefreshed Kind = "session-refreshed"
)

// Reason says why a logout happened.
type Reason string

const (
	ReasonUser            Reason = "user"
	ReasonRefreshRejected Reason = "refresh_rejected"
	ReasonExpired         Reason = "expired"
)

type Event struct {
	Kind   Kind
	Reason Reason // only set for AuthLogout
}

type Handler func(ctx context.Context, ev Event)

// Bus delivers events synchronously, in publish order, to every subscriber.
// No lock is held while handlers run, so a handler may publish or unsubscribe.
type Bus struct {
	mu       sync.RWMutex
	nextID   int
	handlers map[int]Handler
	order    []int
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers h and returns a function that removes it.
func (b *Bus) Subscribe(h Handler) (unsubscribe func()) {
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

func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	snapshot := make([]Handler, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.handlers[id])
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(ctx, ev)
	}
}

// Login is a convenience for Publish with AuthLogin.
func (b *Bus) Login(ctx context.Context) {
	b.Publish(ctx, Event{Kind: AuthLogin})
}

// Logout is a convenience for Publish with AuthLogout.
func (b *Bus) Logout(ctx context.Context, reason Reason) {
	b.Publish(ctx, Event{Kind: AuthLogout, Reason: reason})
}
