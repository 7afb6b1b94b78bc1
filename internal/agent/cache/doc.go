// Package cache is the agent's response cache.
//
// Responses are stored in SQLite, grouped into named caches. Each cache
// name belongs to a resource class with its own entry ceiling and max age;
// names carry a generation tag so that activation can drop caches left
// behind by an older agent.
package cache
