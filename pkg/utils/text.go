// Package utils holds small helpers shared by the commands and the embedders.
package utils

// Truncate returns s cut to maxLen runes, with "..." appended if it was cut, so
// multi-byte names are never split mid-character. maxLen <= 0 returns s unchanged.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
