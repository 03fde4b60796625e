package application

import "strings"

// splitPair splits "a:b" into its two non-empty halves.
func splitPair(id string) (string, string, bool) {
	a, b, ok := strings.Cut(id, ":")
	if !ok || a == "" || b == "" {
		return "", "", false
	}
	return a, b, true
}
