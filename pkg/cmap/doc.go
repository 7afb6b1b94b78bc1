// Package cmap provides a concurrent map keyed by strings.
//
// Keys are spread over a fixed number of shards by their murmur3 hash,
// each guarded by its own RWMutex. GetOrCreate runs the constructor under
// the shard lock, which makes the map usable as a keyed singleton registry.
//
// Usage:
//
//	m := cmap.New[*Conn]()
//	conn := m.GetOrCreate(endpoint, func() *Conn { return dial(endpoint) })
package cmap
