package utils

import "strings"

// Slugify lowercases a name and collapses whitespace runs into single
// hyphens, e.g. "Gallup Norge" -> "gallup-norge".
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}
