// Package main provides the entry point for shellkeep-agent.
//
// The agent sits between the page and the application origin and provides:
//
//   - Offline response caching with per-class expiry and size limits
//   - A durable queue of failed writes, replayed when the origin returns
//   - The unread badge, push notifications and the page event stream
//   - A server-side slot for the page state snapshot
//
// Usage:
//
//	shellkeep-agent [flags]
//	shellkeep-agent -config /path/to/agent.yaml
//	shellkeep-agent -config agent.yaml -listen unix:///run/shellkeep.sock -log-level debug
//
// The agent loads configuration, opens its stores, and serves page and
// operator traffic on one listener (TCP, TLS or a unix socket).
package main
