package util

import "unicode/utf8"

// TrimString cuts s to at most length bytes without splitting a UTF-8 rune.
func TrimString(s string, length int) string {
	if len(s) <= length {
		return s
	}

	cut := length
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}

	return s[:cut]
}
