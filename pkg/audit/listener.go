package audit

import (
	"context"

	"github.com/sitekit/sitekit/pkg/repo"
	"github.com/sitekit/sitekit/pkg/sites"
)

var eventTypes = map[sites.EventType]EventType{
	sites.EventSiteCreated:   EventTypeSiteCreate,
	sites.EventSiteDeleted:   EventTypeSiteDelete,
	sites.EventSitePurged:    EventTypeSitePurge,
	sites.EventNodeRelocated: EventTypeNodeRelocate,
}

// Attach registers a listener on every site lifecycle event that writes an
// audit record to logger. The actor is the caller identity on the event
// context; internal listeners that run elevated record the system identity.
func Attach(registry *sites.EventRegistry, logger Logger) {
	listener := sites.ListenerFunc(func(ctx context.Context, ev sites.Event) error {
		eventType, ok := eventTypes[ev.Type]
		if !ok {
			return nil
		}
		return logger.Log(ctx, Record{
			Event: eventType,
			Actor: repo.Caller(ctx),
			Site:  ev.ShortName,
			Node:  string(ev.Node),
		})
	})
	for siteEvent := range eventTypes {
		registry.Register(siteEvent, listener)
	}
}
