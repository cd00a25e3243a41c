package domain

import "strings"

// =============================================================================
// Slug Generation
// =============================================================================

// Slugify converts a name to a URL-safe slug.
//
// The transformation rules are:
//   - Lowercase letters (a-z) are kept as-is
//   - Digits (0-9) are kept as-is
//   - Hyphens (-) are kept as-is
//   - Uppercase letters (A-Z) are converted to lowercase
//   - Spaces are converted to hyphens
//   - All other characters are removed
//
// This is a pure function with no side effects.
//
// Example:
//
//	Slugify("Hello World")        // returns "hello-world"
//	Slugify("Calorie Counter")    // returns "calorie-counter"
//	Slugify("My App 2.0!")        // returns "my-app-20"
func Slugify(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + 32)
		case r == ' ':
			b.WriteByte('-')
		}
		// All other characters are dropped
	}
	return b.String()
}
