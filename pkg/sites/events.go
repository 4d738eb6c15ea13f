package sites

import (
	"context"
	"fmt"
	"sync"

	"github.com/sitekit/sitekit/pkg/repo"
)

// EventType identifies a site lifecycle event.
type EventType string

const (
	// EventSiteCreated fires after a site is fully provisioned.
	EventSiteCreated EventType = "site.created"

	// EventSiteDeleted fires after a site is soft-deleted into the trash.
	EventSiteDeleted EventType = "site.deleted"

	// EventSitePurged fires after a site's backing node is permanently
	// purged. The default listener deprovisions the authority groups here,
	// not on deletion, so ACLs stay recoverable during the trash window.
	EventSitePurged EventType = "site.purged"

	// EventNodeRelocated fires after a node is copied or moved between
	// sites. The default listener runs the permission cleaner.
	EventNodeRelocated EventType = "node.relocated"
)

// Event carries the context of one lifecycle event.
type Event struct {
	Type      EventType
	ShortName string
	Node      repo.NodeRef
}

// Listener handles lifecycle events. Implementations are plain values; no
// reflection is involved in dispatch.
type Listener interface {
	HandleSiteEvent(ctx context.Context, ev Event) error
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(ctx context.Context, ev Event) error

// HandleSiteEvent calls f.
func (f ListenerFunc) HandleSiteEvent(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// EventRegistry is an explicit listener registry keyed by lifecycle event.
type EventRegistry struct {
	mu        sync.RWMutex
	listeners map[EventType][]Listener
}

// NewEventRegistry creates an empty registry.
func NewEventRegistry() *EventRegistry {
	return &EventRegistry{listeners: make(map[EventType][]Listener)}
}

// Register adds a listener for one event type. Listeners run in
// registration order.
func (r *EventRegistry) Register(t EventType, l Listener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[t] = append(r.listeners[t], l)
}

// Dispatch delivers an event to every registered listener. The first
// listener error aborts dispatch and propagates.
func (r *EventRegistry) Dispatch(ctx context.Context, ev Event) error {
	r.mu.RLock()
	listeners := append([]Listener(nil), r.listeners[ev.Type]...)
	r.mu.RUnlock()

	for _, l := range listeners {
		if err := l.HandleSiteEvent(ctx, ev); err != nil {
			return fmt.Errorf("dispatch %s: %w", ev.Type, err)
		}
	}
	return nil
}
