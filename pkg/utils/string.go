package utils

// Truncate shortens s to at most maxLen characters, appending "..." when
// anything was cut. It counts runes so multi-byte text is never split.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
