// Package config provides the shellkeep-agent configuration.
//
// This package defines the agent configuration structure and validation:
//
//   - spec.go: AgentConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Business validation (addresses, upstream URL, paths)
//   - sanitize.go: Log sanitization (hide sensitive values)
//
// Configuration is loaded via internal/infra/confloader from a YAML file
// and SHELLKEEP_ environment variables.
package config
