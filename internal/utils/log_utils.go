// Package utils holds small helpers shared across packages
package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxLogStringLength defines the maximum length in bytes for user-provided strings in logs
const MaxLogStringLength = 200

// Any character that is not a letter, number, punctuation, symbol or separator
var unprintable = regexp.MustCompile(`[^\p{L}\p{N}\p{P}\p{S}\p{Z}]`)

// SanitizeLogString sanitizes a user-controlled string (room titles, user names,
// session IDs) for safe logging. It replaces control characters, limits the
// length without splitting multi-byte characters, and escapes format specifiers.
func SanitizeLogString(input string) string {
	if input == "" {
		return ""
	}

	if len(input) > MaxLogStringLength {
		cut := MaxLogStringLength
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut] + "... (truncated)"
	}

	// Pre-process CRLF to avoid double spaces
	input = strings.ReplaceAll(input, "\r\n", "\n")

	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, input)

	// Replace % with %% to prevent format string issues
	sanitized = strings.ReplaceAll(sanitized, "%", "%%")

	return unprintable.ReplaceAllString(sanitized, "")
}
