// Package domain defines the core domain models for shellkeep.
//
// Domain models are plain value types without IO dependencies.
// This package contains:
//
//   - Snapshot: restorable interaction state of one page
//   - SyncItem: a mutating request deferred for replay
//   - Message and Reply: the page to agent request/reply protocol
//   - Errors: structured domain error definitions
package domain
