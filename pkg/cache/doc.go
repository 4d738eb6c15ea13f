// Package cache provides the site name→identity cache consulted on every
// registry lookup.
//
// Two implementations share one interface: an in-process bounded LRU
// (NewLRU) and a Redis-backed variant (NewRedis) for deployments where
// several processes should share invalidations. Entries are hints only —
// the registry revalidates existence before trusting a hit, so a stale
// entry costs one extra lookup, never a wrong answer.
package cache
