// Package confloader provides configuration loading mechanism.
//
// It layers koanf providers:
//
//  1. Values already present in the target struct (defaults)
//  2. YAML configuration file
//  3. Environment variables with the SHELLKEEP_ prefix
//  4. Explicit maps (command-line flags, tests)
//
// Watcher reports edits to a configuration file through fsnotify so a
// running agent can pick up changes such as the log level.
package confloader
