// Package textx provides small text utilities used across the project.
package textx

import "strings"

// StripNUL removes NUL bytes, which Postgres text columns reject.
func StripNUL(s string) string {
	return strings.ReplaceAll(s, "\x00", "")
}

// SanitizeText removes control characters except tab/newline/CR and trims
// surrounding whitespace.
func SanitizeText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
