// Package output renders shellkeep-cli results.
//
// ParseFormat and NewFormatter pick the encoding named by --output. Tables
// are built by reflection over json tags, so the structs the agent returns
// (sync reports, cache sizes, timer listings) print without per-command
// code. Spinner animates long operator calls on stderr.
package output
