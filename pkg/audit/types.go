package audit

import (
	"context"
	"time"
)

// EventType categorizes an audit record.
type EventType string

const (
	EventTypeSiteCreate   EventType = "site.create"
	EventTypeSiteDelete   EventType = "site.delete"
	EventTypeSitePurge    EventType = "site.purge"
	EventTypeNodeRelocate EventType = "node.relocate"
)

// Record is one audit trail entry. Details carries event-specific context.
type Record struct {
	Time    time.Time         `json:"time"`
	Event   EventType         `json:"event"`
	Actor   string            `json:"actor,omitempty"`
	Site    string            `json:"site,omitempty"`
	Node    string            `json:"node,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// Logger persists audit records.
type Logger interface {
	Log(ctx context.Context, rec Record) error
	Close() error
}
