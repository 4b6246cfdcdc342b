package matcher

import (
	"fmt"
	"regexp"
	"strings"
)

// globToRegexp translates a shell-style glob into an anchored regular
// expression over slash-separated relative paths.
//
// Supported syntax:
//
//	*      any run of characters within one path segment
//	**     any run of characters across segments; "**/" matches zero or
//	       more whole segments
//	?      exactly one character within a segment
//	[...]  character class, [!...] negated
//
// Everything else matches literally. Patterns are scoped to the project
// root; there is no way to escape it.
func globToRegexp(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	for i := 0; i < len(glob); {
		switch c := glob[i]; c {
		case '*':
			if i+1 < len(glob) && glob[i+1] == '*' {
				if i+2 < len(glob) && glob[i+2] == '/' {
					// "**/" spans zero or more whole segments.
					b.WriteString(`(?:[^/]+/)*`)
					i += 3
				} else {
					b.WriteString(`.*`)
					i += 2
				}
			} else {
				b.WriteString(`[^/]*`)
				i++
			}
		case '?':
			b.WriteString(`[^/]`)
			i++
		case '[':
			j := i + 1
			if j < len(glob) && (glob[j] == '!' || glob[j] == '^') {
				j++
			}
			// A ']' directly after the opening (or negation) is a literal.
			if j < len(glob) && glob[j] == ']' {
				j++
			}
			for j < len(glob) && glob[j] != ']' {
				j++
			}
			if j >= len(glob) {
				return "", fmt.Errorf("unterminated character class at offset %d", i)
			}
			class := glob[i : j+1]
			if strings.HasPrefix(class, "[!") {
				class = "[^" + class[2:]
			}
			b.WriteString(class)
			i = j + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}

	b.WriteString("$")
	return b.String(), nil
}
