// Package audit writes an append-only trail of site lifecycle events.
//
// Records are JSON lines in a size-rotated log file. The trail is wired to
// the lifecycle event registry with Attach, so every create, delete, purge
// and relocation leaves a record attributed to the caller that triggered it.
package audit
