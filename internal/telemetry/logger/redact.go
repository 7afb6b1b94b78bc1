package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// Sensitive key patterns that should be redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"key",
	"credential",
	"auth",
	"bearer",
	"cookie",
}

// Keys and groups whose values are user input captured from page forms.
// Form values may hold anything the user typed, so they never reach logs.
var formValueKeys = []string{
	"form_value",
	"form_values",
	"field_value",
	"formvalues",
}

// redactedValue is the placeholder for redacted sensitive data.
const redactedValue = "***REDACTED***"

// redactSensitive checks if an attribute contains sensitive data
// and redacts it if necessary.
func redactSensitive(groups []string, a slog.Attr) slog.Attr {
	if inFormGroup(groups) || isFormValueKey(a.Key) {
		return redactAll(a)
	}

	if a.Value.Kind() == slog.KindString {
		strVal := a.Value.String()

		// URL credentials are masked in place; the rest of the URL stays useful.
		if masked, ok := maskURLPassword(strVal); ok {
			return slog.String(a.Key, masked)
		}

		if strVal != "" && IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		inner := append(groups[:len(groups):len(groups)], a.Key)
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(inner, attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}

	return a
}

// redactAll replaces every non-empty leaf under a with the placeholder.
func redactAll(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactAll(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	case slog.KindString:
		if a.Value.String() == "" {
			return a
		}
	}
	return slog.String(a.Key, redactedValue)
}

func inFormGroup(groups []string) bool {
	for _, g := range groups {
		if isFormValueKey(g) {
			return true
		}
	}
	return false
}

func isFormValueKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, k := range formValueKeys {
		if keyLower == k {
			return true
		}
	}
	return false
}

// maskURLPassword masks the password of an absolute URL with userinfo.
func maskURLPassword(value string) (string, bool) {
	if !strings.Contains(value, "://") || !strings.Contains(value, "@") {
		return "", false
	}
	u, err := url.Parse(value)
	if err != nil || u.User == nil {
		return "", false
	}
	if _, has := u.User.Password(); !has {
		return "", false
	}
	return u.Redacted(), true
}

// RedactString manually redacts a string value.
// Use this when you need to redact a value before logging.
func RedactString(value string) string {
	if masked, ok := maskURLPassword(value); ok {
		return masked
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return isFormValueKey(key)
}

// IsSensitiveValue checks if a value appears to be sensitive.
func IsSensitiveValue(value string) bool {
	_, ok := maskURLPassword(value)
	return ok
}
