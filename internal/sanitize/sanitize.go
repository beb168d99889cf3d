// Package sanitize redacts sensitive values from metadata before anything is
// persisted or transmitted.
package sanitize

import "strings"

// RedactedValue replaces any value whose key matches the sensitive list.
const RedactedValue = "[REDACTED]"

// DefaultSensitiveKeys covers the credential-shaped keys redacted out of the box.
func DefaultSensitiveKeys() []string {
	return []string{
		"password",
		"token",
		"secret",
		"key",
		"authorization",
		"cookie",
		"session",
		"apikey",
	}
}

// Sanitizer redacts configured sensitive keys from metadata maps. Matching is
// case-insensitive and by substring, so "Authorization" and "x-api-key" both
// trip the "authorization" and "key" rules.
type Sanitizer struct {
	keys []string
}

// New builds a Sanitizer from the given sensitive-key list. An empty list
// falls back to DefaultSensitiveKeys.
func New(keys []string) *Sanitizer {
	if len(keys) == 0 {
		keys = DefaultSensitiveKeys()
	}
	lowered := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			lowered = append(lowered, k)
		}
	}
	return &Sanitizer{keys: lowered}
}

// Sanitize returns a copy of metadata with sensitive values replaced by
// RedactedValue. Nested maps (header maps and the like) are walked
// recursively. Nil input yields an empty map.
func (s *Sanitizer) Sanitize(metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if s.sensitive(k) {
			out[k] = RedactedValue
			continue
		}
		switch nested := v.(type) {
		case map[string]any:
			out[k] = s.Sanitize(nested)
		case map[string]string:
			out[k] = s.SanitizeStrings(nested)
		default:
			out[k] = v
		}
	}
	return out
}

// SanitizeStrings applies the same redaction to a flat string map, the shape
// HTTP headers arrive in.
func (s *Sanitizer) SanitizeStrings(values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		if s.sensitive(k) {
			out[k] = RedactedValue
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Sanitizer) sensitive(key string) bool {
	lowered := strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(lowered, k) {
			return true
		}
	}
	return false
}
