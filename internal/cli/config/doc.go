// Package config holds the shellkeep-cli configuration (~/.shellkeep/cli.yaml):
// the agent to talk to, the output format and the headless shell host
// settings.
package config
