// Package main provides the entry point for shellkeep-cli.
//
// shellkeep-cli inspects and drives a running shellkeep-agent (status,
// sync queue, caches, badge, stored page state, live events) and can host
// a headless shell that restores and autosaves page state.
//
// Usage:
//
//	shellkeep-cli status
//	shellkeep-cli queue list --wide
//	shellkeep-cli watch --type badge_update
//	shellkeep-cli shell run --base-uri http://127.0.0.1:5080/
package main
