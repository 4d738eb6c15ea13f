package sites

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRegistryDispatch(t *testing.T) {
	reg := NewEventRegistry()
	var seen []string

	reg.Register(EventSiteCreated, ListenerFunc(func(ctx context.Context, ev Event) error {
		seen = append(seen, "first:"+ev.ShortName)
		return nil
	}))
	reg.Register(EventSiteCreated, ListenerFunc(func(ctx context.Context, ev Event) error {
		seen = append(seen, "second:"+ev.ShortName)
		return nil
	}))
	reg.Register(EventSiteDeleted, ListenerFunc(func(ctx context.Context, ev Event) error {
		seen = append(seen, "deleted")
		return nil
	}))

	require.NoError(t, reg.Dispatch(context.Background(), Event{Type: EventSiteCreated, ShortName: "eng"}))
	assert.Equal(t, []string{"first:eng", "second:eng"}, seen)
}

func TestEventRegistryStopsOnListenerError(t *testing.T) {
	reg := NewEventRegistry()
	boom := errors.New("boom")
	ran := false

	reg.Register(EventSitePurged, ListenerFunc(func(ctx context.Context, ev Event) error {
		return boom
	}))
	reg.Register(EventSitePurged, ListenerFunc(func(ctx context.Context, ev Event) error {
		ran = true
		return nil
	}))

	err := reg.Dispatch(context.Background(), Event{Type: EventSitePurged, ShortName: "eng"})
	assert.ErrorIs(t, err, boom)
	assert.False(t, ran, "dispatch aborts on the first listener error")
}

func TestLifecycleEventsFire(t *testing.T) {
	svc, _ := newTestService(t)
	var events []EventType

	for _, typ := range []EventType{EventSiteCreated, EventSiteDeleted, EventSitePurged} {
		typ := typ
		svc.Events().Register(typ, ListenerFunc(func(ctx context.Context, ev Event) error {
			if ev.ShortName == "watched" {
				events = append(events, typ)
			}
			return nil
		}))
	}

	mustCreateSite(t, svc, "alice", "watched", VisibilityPrivate)
	require.NoError(t, svc.DeleteSite(as("alice"), "watched"))
	require.NoError(t, svc.PurgeSite(as("admin"), "watched"))

	assert.Equal(t, []EventType{EventSiteCreated, EventSiteDeleted, EventSitePurged}, events)
}
