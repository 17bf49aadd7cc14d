// Package logutil keeps credentials and session ids out of log lines.
package logutil

import (
	"encoding/json"
	"strings"
)

// Redacted stands in for a removed value.
const Redacted = "[REDACTED]"

// sensitiveFragments match field names after lowercasing and dropping '-'
// and '_', so "session_id" and "Set-Cookie" both hit.
var sensitiveFragments = []string{"password", "session", "cookie", "token", "secret", "authorization"}

// Sensitive reports whether a field or header name may carry a secret.
func Sensitive(key string) bool {
	k := strings.NewReplacer("-", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(key)))
	for _, frag := range sensitiveFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

// RedactJSON blanks every sensitive field of a JSON request body, at any
// depth. Non-JSON content types come back unchanged. A body that claims JSON
// but does not parse is replaced whole when it mentions a sensitive name.
func RedactJSON(contentType string, body []byte) string {
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return string(body)
	}
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		if Sensitive(string(body)) {
			return Redacted
		}
		return string(body)
	}
	out, err := json.Marshal(redact(payload))
	if err != nil {
		return string(body)
	}
	return string(out)
}

func redact(v any) any {
	switch v := v.(type) {
	case map[string]any:
		for k, child := range v {
			if Sensitive(k) {
				v[k] = Redacted
			} else {
				v[k] = redact(child)
			}
		}
	case []any:
		for i, child := range v {
			v[i] = redact(child)
		}
	}
	return v
}

// Preview flattens value onto one line and cuts it at max bytes.
func Preview(value string, max int) string {
	line := strings.ReplaceAll(strings.TrimSpace(value), "\n", `\n`)
	if max <= 0 || len(line) <= max {
		return line
	}
	return line[:max] + "... [truncated]"
}
