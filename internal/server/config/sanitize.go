package config

import (
	"net/url"
	"strings"
)

// Sanitize returns a copy of the config with sensitive fields masked.
//
// This is used for logging configuration without exposing secrets.
func Sanitize(cfg *AgentConfig) *AgentConfig {
	// Create a shallow copy
	sanitized := *cfg

	// Mask sensitive fields
	if sanitized.Security.EncryptionKey != "" {
		sanitized.Security.EncryptionKey = maskSecret(sanitized.Security.EncryptionKey)
	}
	if u, err := url.Parse(sanitized.Upstream.URL); err == nil && u.User != nil {
		u.User = url.User(u.User.Username())
		sanitized.Upstream.URL = u.String()
	}

	return &sanitized
}

// maskSecret masks a secret value for safe logging.
func maskSecret(s string) string {
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}
