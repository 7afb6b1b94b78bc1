// Package syncqueue holds mutating requests that could not reach the
// upstream and replays them once connectivity returns.
//
// Items live in the agent KV store under "sync-<id>" keys. IDs are ULIDs,
// so a prefix scan visits them oldest first.
package syncqueue
