// Package redact masks sensitive values before configuration or catalog
// properties are printed to an operator.
package redact

import "strings"

// Value is the replacement string for sensitive values.
const Value = "***REDACTED***"

// sensitiveKeyPatterns are key substrings that indicate sensitive values.
var sensitiveKeyPatterns = []string{
	"password", "token", "secret", "apikey", "api_key", "credential", "access-key", "access_key",
}

// IsSensitiveKey checks if a key indicates a sensitive value.
// The check is case-insensitive and matches any of the known sensitive patterns.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeyPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Strings returns a copy of props with sensitive values replaced by Value.
// Empty values stay empty so operators can tell "unset" from "set".
func Strings(props map[string]string) map[string]string {
	if props == nil {
		return nil
	}
	out := make(map[string]string, len(props))
	for k, v := range props {
		if v != "" && IsSensitiveKey(k) {
			out[k] = Value
			continue
		}
		out[k] = v
	}
	return out
}

// Any returns a copy of props with sensitive scalar values replaced by Value.
// Nested maps are walked recursively; slices are passed through unchanged.
func Any(props map[string]any) map[string]any {
	if props == nil {
		return nil
	}
	out := make(map[string]any, len(props))
	for k, v := range props {
		if nested, ok := v.(map[string]any); ok {
			out[k] = Any(nested)
			continue
		}
		if IsSensitiveKey(k) && v != nil {
			out[k] = Value
			continue
		}
		out[k] = v
	}
	return out
}
