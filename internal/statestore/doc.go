// Package statestore holds the persistence backends for page state
// snapshots.
//
// Four backends share one contract: a synchronous file store, a
// transactional Badger store, the agent's virtual state endpoint, and the
// agent message channel. The controller queries them in that order on
// restore and writes to all of them on save.
package statestore
