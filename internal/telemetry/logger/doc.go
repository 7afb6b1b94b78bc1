// Package logger provides structured logging for shellkeep.
//
// It wraps log/slog:
//
//   - logger.go: handler setup, dynamic level, package-level helpers
//   - context.go: request ids carried by context into every record
//   - redact.go: sensitive data redaction
//
// Redaction covers secret-like attribute keys, credentials embedded in
// URLs and every value captured from page forms (keys form_value,
// form_values, field_value and anything logged inside those groups).
package logger
