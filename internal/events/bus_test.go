package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_DeliversInSubscribeOrder(t *testing.T) {
	bus := NewBus()
	var got []string

	bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "a:"+string(ev.Kind)) })
	bus.Subscribe(func(_ context.Context, ev Event) { got = append(got, "b:"+string(ev.Kind)) })

	bus.Login(context.Background())
	bus.Logout(context.Background(), ReasonUser)

	assert.Equal(t, []string{
		"a:auth-login", "b:auth-login",
		"a:auth-logout", "b:auth-logout",
	}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	calls := 0
	unsubscribe := bus.Subscribe(func(context.Context, Event) { calls++ })

	bus.Login(context.Background())
	unsubscribe()
	unsubscribe()
	bus.Login(context.Background())

	assert.Equal(t, 1, calls)
}

func TestBus_HandlerMayPublish(t *testing.T) {
	bus := NewBus()
	var kinds []Kind

	bus.Subscribe(func(ctx context.Context, ev Event) {
		kinds = append(kinds, ev.Kind)
		if ev.Kind == SessionRefreshed {
			bus.Login(ctx)
		}
	})

	bus.Publish(context.Background(), Event{Kind: SessionRefreshed})

	assert.Equal(t, []Kind{SessionRefreshed, AuthLogin}, kinds)
}

func TestBus_LogoutCarriesReason(t *testing.T) {
	bus := NewBus()
	var got Event
	bus.Subscribe(func(_ context.Context, ev Event) { got = ev })

	bus.Logout(context.Background(), ReasonExpired)

	assert.Equal(t, Event{Kind: AuthLogout, Reason: ReasonExpired}, got)
}
