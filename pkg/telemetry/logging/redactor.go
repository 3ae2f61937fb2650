package logging

import (
	"log/slog"
	"regexp"
)

// redactedPlaceholder replaces matched secret material.
const redactedPlaceholder = "[REDACTED]"

// secretKeys are attribute keys whose values are always masked whole.
var secretKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"token":         true,
	"secret":        true,
}

// Redactor masks secret material in log attribute values.
type Redactor struct {
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the built-in secret patterns: bearer
// tokens, api-key style assignments, and long opaque key strings.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)bearer\s+[a-z0-9\-._~+/]+=*`),
			regexp.MustCompile(`(?i)(api[-_]?key|secret|token)[=:]\s*\S+`),
			regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{16,}\b`),
		},
	}
}

// RedactAttr masks the attribute value when the key is secret-bearing or the
// value matches a secret pattern. Non-string values pass through unchanged.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if secretKeys[a.Key] {
		return slog.String(a.Key, redactedPlaceholder)
	}
	if a.Value.Kind() != slog.KindString {
		return a
	}
	return slog.String(a.Key, r.RedactString(a.Value.String()))
}

// RedactString masks secret material inside s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range r.patterns {
		s = p.ReplaceAllString(s, redactedPlaceholder)
	}
	return s
}
