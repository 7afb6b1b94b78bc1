// Package command defines the shellkeep-cli commands using urfave/cli/v2:
//
//   - root.go: application, global flags, config resolution
//   - agent.go: status, health, push and watch
//   - queue.go: offline sync queue
//   - cache.go: response caches
//   - badge.go: unread badge
//   - state.go: stored page state
//   - shell.go: headless shell host
//   - config.go: CLI and agent configuration
//
// Commands parse their flags, call the agent, and format the result with
// the output package.
package command
