// Package redact masks caller PII in log output. Call transcripts and phone
// numbers are the two places personal data leaks into logs; nothing here
// touches what gets persisted.
package redact

import (
	"regexp"
	"strings"
	"sync/atomic"
)

var enabled atomic.Bool

var (
	emailRe = regexp.MustCompile(`(?i)[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	phoneRe = regexp.MustCompile(`\b\+?\d[\d\s\-]{7,}\d\b`)
)

// SetEnabled toggles redaction of free-form text.
func SetEnabled(v bool) {
	enabled.Store(v)
}

// Enabled returns true when redaction is active.
func Enabled() bool {
	return enabled.Load()
}

// Text redacts emails and phone numbers in free-form text when enabled.
// Transcript fragments pass through here before they are logged.
func Text(in string) string {
	if !enabled.Load() || strings.TrimSpace(in) == "" {
		return in
	}
	out := emailRe.ReplaceAllString(in, "[REDACTED_EMAIL]")
	out = phoneRe.ReplaceAllString(out, "[REDACTED_PHONE]")
	return out
}

// Phone masks a phone number down to its last four digits. Unlike Text this
// is unconditional: dialed numbers are always masked in logs.
func Phone(number string) string {
	digits := 0
	for _, r := range number {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits <= 4 {
		return number
	}
	seen := 0
	keepFrom := digits - 4
	var b strings.Builder
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			if seen >= keepFrom {
				b.WriteRune(r)
			} else {
				b.WriteRune('*')
			}
			seen++
		case r == '+':
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
