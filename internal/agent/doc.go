// Package agent implements the background agent: an offline-capable
// reverse proxy in front of the application origin.
//
// The agent owns the response cache, the durable sync queue, the unread
// badge and the page-state slot, and notifies live pages over an event
// stream. Requests it does not own are forwarded upstream network first;
// when the upstream is unreachable, reads fall back to the cache and
// mutations are queued for replay.
package agent
